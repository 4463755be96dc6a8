package config

import (
	"crypto/subtle"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPackagesURL is the armhf package index of the Kano release archive.
const DefaultPackagesURL = "http://repo.kano.me/archive-jessie/dists/release/main/binary-armhf/Packages.gz"

// CLIOptions holds command-line argument overrides
type CLIOptions struct {
	BundlePath     string // -bundle: path to a .tar.gz feedback bundle
	BundleDir      string // -dir: directory holding an extracted bundle
	ReportID       string // -report-id: id recorded for this report (default: random UUID)
	Concurrency    int    // -concurrency: files inspected in parallel (0 = config)
	FailurePolicy  string // -failure-policy: isolate or abort
	NoNotify       bool   // -no-notify: skip Telegram even when configured
	ListInspectors bool   // -list-inspectors: print the registered file names and exit
	ShowHelp       bool   // -help: show usage
	ShowVersion    bool   // -version: show version
}

// ParseCLI parses os.Args and returns CLIOptions
func ParseCLI() *CLIOptions {
	opts, _ := parseArgs(flag.CommandLine, os.Stderr, os.Args[1:])
	return opts
}

// parseArgs registers the flags on fs and parses args.
func parseArgs(fs *flag.FlagSet, out io.Writer, args []string) (*CLIOptions, error) {
	opts := &CLIOptions{}

	fs.StringVar(&opts.BundlePath, "bundle", "", "Path to a .tar.gz feedback bundle")
	fs.StringVar(&opts.BundleDir, "dir", "", "Directory containing an extracted feedback bundle")
	fs.StringVar(&opts.ReportID, "report-id", "", "Report id to record (default: random UUID)")
	fs.IntVar(&opts.Concurrency, "concurrency", 0, "Files inspected in parallel (overrides INSPECT_CONCURRENCY)")
	fs.StringVar(&opts.FailurePolicy, "failure-policy", "", "What a failed file does to the run: isolate or abort (overrides FAILURE_POLICY)")
	fs.BoolVar(&opts.NoNotify, "no-notify", false, "Do not send the Telegram digest")
	fs.BoolVar(&opts.ListInspectors, "list-inspectors", false, "List registered bundle file names and exit")
	fs.BoolVar(&opts.ShowHelp, "help", false, "Show usage information")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Show version information")

	fs.SetOutput(out)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(out, "drfeedback - Diagnostic bundle inspector\n\n")
		_, _ = fmt.Fprintf(out, "Usage: %s [options]\n\n", fs.Name())
		_, _ = fmt.Fprintf(out, "Options:\n")
		fs.PrintDefaults()
		_, _ = fmt.Fprintf(out, "\nExamples:\n")
		_, _ = fmt.Fprintf(out, "  %s -bundle /srv/feedback/1234.tar.gz\n", fs.Name())
		_, _ = fmt.Fprintf(out, "  %s -dir ./feedback/1234 -no-notify\n", fs.Name())
		_, _ = fmt.Fprintf(out, "  %s -bundle report.tgz -concurrency 1 -failure-policy abort\n", fs.Name())
		_, _ = fmt.Fprintf(out, "\nEnvironment variables can be set in .env file or exported directly.\n")
		_, _ = fmt.Fprintf(out, "CLI arguments override environment variables.\n")
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// PrintUsage prints the command-line usage information
func PrintUsage() {
	flag.Usage()
}

// Config holds all application configuration
type Config struct {
	// Bundle input (CLI only)
	BundlePath string
	BundleDir  string
	ReportID   string

	// Inspection
	InspectConcurrency int
	FailurePolicy      string // "isolate" (default) or "abort"
	MaxBundleSizeMB    int

	// Package repository used by the packages.txt inspector
	PackagesURL            string
	FetchTimeoutSeconds    int
	FetchMaxRetries        int
	PackageCacheTTLMinutes int

	// Telegram (optional; enabled when a bot token is set)
	TelegramBotToken       string
	TelegramArchiveChannel int64
	TelegramAlertsChannel  int64 // Optional
	DisableNotifications   bool

	// AI triage (optional)
	EnableTriage     bool
	AnthropicAPIKey  string
	ClaudeModel      string
	AITimeoutSeconds int
	AIMaxTokens      int

	// Application
	LogLevel            string
	LogDir              string
	EnableDatabase      bool
	DatabasePath        string
	ReportRetentionDays int

	// Proxy
	HTTPProxy  string
	HTTPSProxy string
}

// Load loads configuration from .env file and environment variables
// Priority: .env file > OS environment variables
// For CLI overrides, use LoadWithCLI instead
func Load() (*Config, error) {
	return LoadWithCLI(nil)
}

// LoadWithCLI loads configuration with CLI argument overrides
// Priority: CLI args > .env file > OS environment variables
func LoadWithCLI(cli *CLIOptions) (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// godotenv sets OS env vars from .env, which viper then reads
	_ = godotenv.Load()

	setDefaults()

	config := &Config{
		InspectConcurrency: viper.GetInt("INSPECT_CONCURRENCY"),
		FailurePolicy:      viper.GetString("FAILURE_POLICY"),
		MaxBundleSizeMB:    viper.GetInt("MAX_BUNDLE_SIZE_MB"),

		PackagesURL:            viper.GetString("PACKAGES_URL"),
		FetchTimeoutSeconds:    viper.GetInt("FETCH_TIMEOUT_SECONDS"),
		FetchMaxRetries:        viper.GetInt("FETCH_MAX_RETRIES"),
		PackageCacheTTLMinutes: viper.GetInt("PACKAGE_CACHE_TTL_MINUTES"),

		TelegramBotToken:       viper.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramArchiveChannel: viper.GetInt64("TELEGRAM_CHANNEL_ARCHIVE_ID"),
		TelegramAlertsChannel:  viper.GetInt64("TELEGRAM_CHANNEL_ALERTS_ID"),

		EnableTriage:     viper.GetBool("ENABLE_TRIAGE"),
		AnthropicAPIKey:  viper.GetString("ANTHROPIC_API_KEY"),
		ClaudeModel:      viper.GetString("CLAUDE_MODEL"),
		AITimeoutSeconds: viper.GetInt("AI_TIMEOUT_SECONDS"),
		AIMaxTokens:      viper.GetInt("AI_MAX_TOKENS"),

		LogLevel:            viper.GetString("LOG_LEVEL"),
		LogDir:              viper.GetString("LOG_DIR"),
		EnableDatabase:      viper.GetBool("ENABLE_DATABASE"),
		DatabasePath:        viper.GetString("DATABASE_PATH"),
		ReportRetentionDays: viper.GetInt("REPORT_RETENTION_DAYS"),

		HTTPProxy:  viper.GetString("HTTP_PROXY"),
		HTTPSProxy: viper.GetString("HTTPS_PROXY"),
	}

	config.applyCLI(cli)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// applyCLI copies set CLI options over the environment values.
func (c *Config) applyCLI(cli *CLIOptions) {
	if cli == nil {
		return
	}
	c.BundlePath = cli.BundlePath
	c.BundleDir = cli.BundleDir
	c.ReportID = cli.ReportID
	if cli.Concurrency != 0 {
		c.InspectConcurrency = cli.Concurrency
	}
	if cli.FailurePolicy != "" {
		c.FailurePolicy = cli.FailurePolicy
	}
	if cli.NoNotify {
		c.DisableNotifications = true
	}
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("INSPECT_CONCURRENCY", 4)
	viper.SetDefault("FAILURE_POLICY", "isolate")
	viper.SetDefault("MAX_BUNDLE_SIZE_MB", 50)

	viper.SetDefault("PACKAGES_URL", DefaultPackagesURL)
	viper.SetDefault("FETCH_TIMEOUT_SECONDS", 30)
	viper.SetDefault("FETCH_MAX_RETRIES", 3)
	viper.SetDefault("PACKAGE_CACHE_TTL_MINUTES", 60)

	viper.SetDefault("ENABLE_TRIAGE", false)
	viper.SetDefault("CLAUDE_MODEL", "claude-sonnet-4-5-20250929")
	viper.SetDefault("AI_TIMEOUT_SECONDS", 120)
	viper.SetDefault("AI_MAX_TOKENS", 2000)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_DIR", "./logs")
	viper.SetDefault("ENABLE_DATABASE", true)
	viper.SetDefault("DATABASE_PATH", "./data/reports.db")
	viper.SetDefault("REPORT_RETENTION_DAYS", 90)
}

var telegramTokenRegex = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BundlePath != "" && c.BundleDir != "" {
		return fmt.Errorf("-bundle and -dir are mutually exclusive")
	}

	if c.InspectConcurrency < 1 || c.InspectConcurrency > 64 {
		return fmt.Errorf("INSPECT_CONCURRENCY must be between 1 and 64")
	}
	if c.FailurePolicy != "isolate" && c.FailurePolicy != "abort" {
		return fmt.Errorf("FAILURE_POLICY must be 'isolate' or 'abort' (got: %s)", c.FailurePolicy)
	}
	if c.MaxBundleSizeMB < 1 || c.MaxBundleSizeMB > 500 {
		return fmt.Errorf("MAX_BUNDLE_SIZE_MB must be between 1 and 500")
	}

	if err := c.validatePackageRepo(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateTriage(); err != nil {
		return err
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if c.EnableDatabase && c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required when ENABLE_DATABASE=true")
	}
	if c.ReportRetentionDays < 0 {
		return fmt.Errorf("REPORT_RETENTION_DAYS cannot be negative")
	}

	return nil
}

// validatePackageRepo checks the package index settings. An empty URL
// disables the comparison; packages.txt then reports the missing repository.
func (c *Config) validatePackageRepo() error {
	if c.PackagesURL != "" {
		u, err := url.Parse(c.PackagesURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("PACKAGES_URL must be an http(s) URL")
		}
	}
	if c.FetchTimeoutSeconds < 5 || c.FetchTimeoutSeconds > 300 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS must be between 5 and 300")
	}
	if c.FetchMaxRetries < 1 || c.FetchMaxRetries > 10 {
		return fmt.Errorf("FETCH_MAX_RETRIES must be between 1 and 10")
	}
	if c.PackageCacheTTLMinutes < 0 {
		return fmt.Errorf("PACKAGE_CACHE_TTL_MINUTES cannot be negative")
	}
	return nil
}

// validateTelegram checks the optional Telegram settings. Nothing is
// required until a bot token is set.
func (c *Config) validateTelegram() error {
	if c.TelegramBotToken == "" {
		if c.TelegramArchiveChannel != 0 || c.TelegramAlertsChannel != 0 {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when a Telegram channel is configured")
		}
		return nil
	}
	if !telegramTokenRegex.MatchString(c.TelegramBotToken) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN has invalid format (expected: 'number:token')")
	}

	if c.TelegramArchiveChannel == 0 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.TelegramArchiveChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID must be a supergroup/channel ID (starts with -100)")
	}
	if c.TelegramAlertsChannel != 0 && c.TelegramAlertsChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ALERTS_ID must be a supergroup/channel ID (starts with -100)")
	}
	return nil
}

// validateTriage checks the AI triage settings when triage is enabled.
func (c *Config) validateTriage() error {
	if !c.EnableTriage {
		return nil
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when ENABLE_TRIAGE=true")
	}
	// Constant-time comparison to avoid leaking key prefix timing
	if !constantTimePrefixMatch(c.AnthropicAPIKey, "sk-ant-") {
		return fmt.Errorf("ANTHROPIC_API_KEY must start with 'sk-ant-'")
	}
	if c.ClaudeModel == "" {
		return fmt.Errorf("CLAUDE_MODEL is required when ENABLE_TRIAGE=true")
	}
	if c.AITimeoutSeconds < 30 || c.AITimeoutSeconds > 600 {
		return fmt.Errorf("AI_TIMEOUT_SECONDS must be between 30 and 600")
	}
	if c.AIMaxTokens < 256 || c.AIMaxTokens > 16000 {
		return fmt.Errorf("AI_MAX_TOKENS must be between 256 and 16000")
	}
	return nil
}

// HasBundle reports whether a bundle source was given.
func (c *Config) HasBundle() bool {
	return c.BundlePath != "" || c.BundleDir != ""
}

// NotificationsEnabled reports whether the Telegram digest should be sent.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramBotToken != "" && !c.DisableNotifications
}

// HasAlertsChannel returns true if alerts channel is configured
func (c *Config) HasAlertsChannel() bool {
	return c.TelegramAlertsChannel != 0
}

// GetProxyURL returns the appropriate proxy URL for HTTP/HTTPS requests
func (c *Config) GetProxyURL(isHTTPS bool) string {
	if isHTTPS && c.HTTPSProxy != "" {
		return c.HTTPSProxy
	}
	if c.HTTPProxy != "" {
		return c.HTTPProxy
	}
	return ""
}

// PackagesUseHTTPS reports whether the package index is fetched over TLS,
// which selects the proxy to use.
func (c *Config) PackagesUseHTTPS() bool {
	return strings.HasPrefix(strings.ToLower(c.PackagesURL), "https://")
}

// constantTimePrefixMatch checks if s starts with prefix using constant-time comparison.
// Returns false if s is shorter than prefix.
func constantTimePrefixMatch(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s[:len(prefix)]), []byte(prefix)) == 1
}
