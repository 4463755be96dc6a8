package config

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkError is a helper to verify error expectations in tests
func checkError(t *testing.T, err error, expectError bool, errorContains string) {
	t.Helper()
	if !expectError {
		assert.NoError(t, err)
		return
	}
	if assert.Error(t, err) && errorContains != "" {
		assert.Contains(t, err.Error(), errorContains)
	}
}

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		InspectConcurrency:     4,
		FailurePolicy:          "isolate",
		MaxBundleSizeMB:        50,
		PackagesURL:            DefaultPackagesURL,
		FetchTimeoutSeconds:    30,
		FetchMaxRetries:        3,
		PackageCacheTTLMinutes: 60,
		ClaudeModel:            "claude-sonnet-4-5-20250929",
		AITimeoutSeconds:       120,
		AIMaxTokens:            2000,
		LogLevel:               "info",
		EnableDatabase:         true,
		DatabasePath:           "./data/reports.db",
		ReportRetentionDays:    90,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		modify        func(c *Config)
		expectError   bool
		errorContains string
	}{
		{
			name:   "Valid config",
			modify: func(c *Config) {},
		},
		{
			name: "Bundle and dir together",
			modify: func(c *Config) {
				c.BundlePath = "a.tar.gz"
				c.BundleDir = "./a"
			},
			expectError:   true,
			errorContains: "mutually exclusive",
		},
		{
			name:          "Concurrency too low",
			modify:        func(c *Config) { c.InspectConcurrency = 0 },
			expectError:   true,
			errorContains: "INSPECT_CONCURRENCY",
		},
		{
			name:          "Concurrency too high",
			modify:        func(c *Config) { c.InspectConcurrency = 65 },
			expectError:   true,
			errorContains: "INSPECT_CONCURRENCY",
		},
		{
			name:   "Abort policy",
			modify: func(c *Config) { c.FailurePolicy = "abort" },
		},
		{
			name:          "Unknown policy",
			modify:        func(c *Config) { c.FailurePolicy = "skip" },
			expectError:   true,
			errorContains: "FAILURE_POLICY",
		},
		{
			name:          "Bundle size too large",
			modify:        func(c *Config) { c.MaxBundleSizeMB = 501 },
			expectError:   true,
			errorContains: "MAX_BUNDLE_SIZE_MB",
		},
		{
			name:   "Empty packages URL disables comparison",
			modify: func(c *Config) { c.PackagesURL = "" },
		},
		{
			name:          "Packages URL with bad scheme",
			modify:        func(c *Config) { c.PackagesURL = "ftp://repo.example.com/Packages.gz" },
			expectError:   true,
			errorContains: "PACKAGES_URL",
		},
		{
			name:          "Fetch timeout out of range",
			modify:        func(c *Config) { c.FetchTimeoutSeconds = 2 },
			expectError:   true,
			errorContains: "FETCH_TIMEOUT_SECONDS",
		},
		{
			name:          "Fetch retries out of range",
			modify:        func(c *Config) { c.FetchMaxRetries = 11 },
			expectError:   true,
			errorContains: "FETCH_MAX_RETRIES",
		},
		{
			name: "Telegram configured",
			modify: func(c *Config) {
				c.TelegramBotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"
				c.TelegramArchiveChannel = -1001234567890
				c.TelegramAlertsChannel = -1009876543210
			},
		},
		{
			name: "Telegram token invalid",
			modify: func(c *Config) {
				c.TelegramBotToken = "not-a-token"
				c.TelegramArchiveChannel = -1001234567890
			},
			expectError:   true,
			errorContains: "TELEGRAM_BOT_TOKEN has invalid format",
		},
		{
			name:          "Telegram token missing archive channel",
			modify:        func(c *Config) { c.TelegramBotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz" },
			expectError:   true,
			errorContains: "TELEGRAM_CHANNEL_ARCHIVE_ID is required",
		},
		{
			name: "Telegram archive channel not a supergroup",
			modify: func(c *Config) {
				c.TelegramBotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"
				c.TelegramArchiveChannel = 12345
			},
			expectError:   true,
			errorContains: "supergroup",
		},
		{
			name:          "Telegram channel without token",
			modify:        func(c *Config) { c.TelegramArchiveChannel = -1001234567890 },
			expectError:   true,
			errorContains: "TELEGRAM_BOT_TOKEN is required",
		},
		{
			name: "Triage configured",
			modify: func(c *Config) {
				c.EnableTriage = true
				c.AnthropicAPIKey = "sk-ant-test-key-1234567890"
			},
		},
		{
			name:          "Triage without key",
			modify:        func(c *Config) { c.EnableTriage = true },
			expectError:   true,
			errorContains: "ANTHROPIC_API_KEY is required",
		},
		{
			name: "Triage with invalid key",
			modify: func(c *Config) {
				c.EnableTriage = true
				c.AnthropicAPIKey = "invalid-key"
			},
			expectError:   true,
			errorContains: "must start with 'sk-ant-'",
		},
		{
			name: "Triage timeout out of range",
			modify: func(c *Config) {
				c.EnableTriage = true
				c.AnthropicAPIKey = "sk-ant-test-key-1234567890"
				c.AITimeoutSeconds = 10
			},
			expectError:   true,
			errorContains: "AI_TIMEOUT_SECONDS",
		},
		{
			name:   "Invalid key ignored when triage disabled",
			modify: func(c *Config) { c.AnthropicAPIKey = "invalid-key" },
		},
		{
			name:          "Invalid log level",
			modify:        func(c *Config) { c.LogLevel = "verbose" },
			expectError:   true,
			errorContains: "LOG_LEVEL",
		},
		{
			name:          "Database without path",
			modify:        func(c *Config) { c.DatabasePath = "" },
			expectError:   true,
			errorContains: "DATABASE_PATH",
		},
		{
			name: "Database disabled without path",
			modify: func(c *Config) {
				c.EnableDatabase = false
				c.DatabasePath = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(c)
			checkError(t, c.Validate(), tt.expectError, tt.errorContains)
		})
	}
}

func TestLogLevelCaseInsensitive(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "Warn", "ERROR"} {
		t.Run(level, func(t *testing.T) {
			c := validConfig()
			c.LogLevel = level
			assert.NoError(t, c.Validate())
		})
	}
}

func TestNotificationsEnabled(t *testing.T) {
	c := validConfig()
	assert.False(t, c.NotificationsEnabled(), "no bot token")

	c.TelegramBotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"
	assert.True(t, c.NotificationsEnabled(), "bot token set")

	c.DisableNotifications = true
	assert.False(t, c.NotificationsEnabled(), "-no-notify")
}

func TestHasAlertsChannel(t *testing.T) {
	c := validConfig()
	assert.False(t, c.HasAlertsChannel())
	c.TelegramAlertsChannel = -1009876543210
	assert.True(t, c.HasAlertsChannel())
}

func TestGetProxyURL(t *testing.T) {
	tests := []struct {
		name       string
		httpProxy  string
		httpsProxy string
		isHTTPS    bool
		want       string
	}{
		{name: "no proxy", want: ""},
		{name: "http proxy for http", httpProxy: "http://proxy:8080", want: "http://proxy:8080"},
		{name: "https proxy for https", httpProxy: "http://proxy:8080", httpsProxy: "http://secure:8443", isHTTPS: true, want: "http://secure:8443"},
		{name: "http proxy fallback for https", httpProxy: "http://proxy:8080", isHTTPS: true, want: "http://proxy:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{HTTPProxy: tt.httpProxy, HTTPSProxy: tt.httpsProxy}
			assert.Equal(t, tt.want, c.GetProxyURL(tt.isHTTPS))
		})
	}
}

func TestPackagesUseHTTPS(t *testing.T) {
	c := &Config{PackagesURL: "HTTPS://repo.example.com/Packages.gz"}
	assert.True(t, c.PackagesUseHTTPS())
	c.PackagesURL = DefaultPackagesURL
	assert.False(t, c.PackagesUseHTTPS())
}

func TestLoad(t *testing.T) {
	t.Setenv("INSPECT_CONCURRENCY", "8")
	t.Setenv("FAILURE_POLICY", "abort")
	t.Setenv("ENABLE_DATABASE", "false")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, config.InspectConcurrency)
	assert.Equal(t, "abort", config.FailurePolicy)
	assert.Equal(t, DefaultPackagesURL, config.PackagesURL)
	assert.False(t, config.EnableDatabase, "ENABLE_DATABASE not loaded from environment")
}

func TestLoad_ValidationFails(t *testing.T) {
	t.Setenv("INSPECT_CONCURRENCY", "0")

	_, err := Load()
	checkError(t, err, true, "INSPECT_CONCURRENCY")
}

func TestLoadWithCLIOverrides(t *testing.T) {
	t.Setenv("INSPECT_CONCURRENCY", "8")
	t.Setenv("FAILURE_POLICY", "isolate")

	config, err := LoadWithCLI(&CLIOptions{
		BundlePath:    "/srv/feedback/1234.tar.gz",
		ReportID:      "1234",
		Concurrency:   1,
		FailurePolicy: "abort",
		NoNotify:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, config.InspectConcurrency)
	assert.Equal(t, "abort", config.FailurePolicy)
	assert.Equal(t, "/srv/feedback/1234.tar.gz", config.BundlePath)
	assert.Equal(t, "1234", config.ReportID)
	assert.True(t, config.HasBundle())
	assert.True(t, config.DisableNotifications)
}

func TestParseArgs(t *testing.T) {
	var out bytes.Buffer
	fs := flag.NewFlagSet("drfeedback", flag.ContinueOnError)

	opts, err := parseArgs(fs, &out, []string{
		"-bundle", "report.tgz",
		"-report-id", "abc",
		"-concurrency", "2",
		"-failure-policy", "abort",
		"-no-notify",
	})
	require.NoError(t, err)

	assert.Equal(t, "report.tgz", opts.BundlePath)
	assert.Equal(t, "abc", opts.ReportID)
	assert.Equal(t, 2, opts.Concurrency)
	assert.Equal(t, "abort", opts.FailurePolicy)
	assert.True(t, opts.NoNotify)
	assert.False(t, opts.ShowHelp)
	assert.False(t, opts.ShowVersion)
	assert.False(t, opts.ListInspectors)
}

func TestParseArgsUnknownFlag(t *testing.T) {
	var out bytes.Buffer
	fs := flag.NewFlagSet("drfeedback", flag.ContinueOnError)

	_, err := parseArgs(fs, &out, []string{"-source-type", "logwatch"})
	assert.Error(t, err)
	assert.Contains(t, out.String(), "drfeedback - Diagnostic bundle inspector")
}

func TestConstantTimePrefixMatch(t *testing.T) {
	tests := []struct {
		s      string
		prefix string
		want   bool
	}{
		{"sk-ant-api03-xyz", "sk-ant-", true},
		{"sk-ant-", "sk-ant-", true},
		{"sk-an", "sk-ant-", false},
		{"sk-xyz-api03", "sk-ant-", false},
		{"", "sk-ant-", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, constantTimePrefixMatch(tt.s, tt.prefix), "constantTimePrefixMatch(%q, %q)", tt.s, tt.prefix)
	}
}
