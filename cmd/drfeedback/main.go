package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olegiv/go-logger"

	"github.com/olegiv/drfeedback-go/internal/ai"
	"github.com/olegiv/drfeedback-go/internal/bundle"
	"github.com/olegiv/drfeedback-go/internal/config"
	"github.com/olegiv/drfeedback-go/internal/inspector"
	"github.com/olegiv/drfeedback-go/internal/logging"
	"github.com/olegiv/drfeedback-go/internal/notification"
	"github.com/olegiv/drfeedback-go/internal/render"
	"github.com/olegiv/drfeedback-go/internal/repo"
	"github.com/olegiv/drfeedback-go/internal/runner"
	"github.com/olegiv/drfeedback-go/internal/storage"
)

const (
	exitSuccess = 0
	exitFailure = 1
	// exitFindings means the run completed and the bundle has error findings
	exitFindings = 2
)

// Version information - injected at build time via ldflags
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli := config.ParseCLI()

	if cli.ShowHelp {
		return exitSuccess
	}

	if cli.ShowVersion {
		render.Version(os.Stdout, "drfeedback", version)
		if gitCommit != "unknown" {
			fmt.Printf("  commit: %s\n", gitCommit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
		return exitSuccess
	}

	if cli.ListInspectors {
		render.Inspectors(os.Stdout, inspector.DefaultRegistry().List())
		return exitSuccess
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	cfg, err := config.LoadWithCLI(cli)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitFailure
	}
	if !cfg.HasBundle() {
		_, _ = fmt.Fprintln(os.Stderr, "No bundle given: use -bundle or -dir")
		config.PrintUsage()
		return exitFailure
	}

	baseLog := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		LogDir:     cfg.LogDir,
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    true,
	})
	log := logging.NewSecure(baseLog)
	defer func() {
		if err := log.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()

	log.Info().Str("version", version).Msg("Starting drfeedback")

	agg, err := runInspection(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Inspection failed")
		return exitFailure
	}

	if agg.HasErrors() {
		return exitFindings
	}
	return exitSuccess
}

func runInspection(ctx context.Context, cfg *config.Config, log *logging.SecureLogger) (*runner.AggregateReport, error) {
	startTime := time.Now()

	// 1. Load the bundle
	source := cfg.BundlePath
	var b *bundle.Bundle
	var err error
	if cfg.BundlePath != "" {
		b, err = bundle.LoadArchive(cfg.ReportID, cfg.BundlePath, cfg.MaxBundleSizeMB)
	} else {
		source = cfg.BundleDir
		b, err = bundle.LoadDir(cfg.ReportID, cfg.BundleDir, cfg.MaxBundleSizeMB)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle: %w", err)
	}
	log = log.With("report_id", b.ID())
	log.Info().Str("source", source).Int("files", b.Len()).Msg("Bundle loaded")

	// 2. Package repository for packages.txt
	deps, err := packageDeps(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Packages != nil {
		log.Info().Str("url", deps.Packages.Source()).Msg("Package repository configured")
	}

	// 3. Inspect
	policy, err := runner.ParsePolicy(cfg.FailurePolicy)
	if err != nil {
		return nil, err
	}
	r := runner.New(runner.Options{
		Deps:        deps,
		Concurrency: cfg.InspectConcurrency,
		Policy:      policy,
		Logger:      log,
	})

	agg, runErr := r.Run(ctx, b)
	if runErr != nil && (agg == nil || errors.Is(runErr, context.Canceled)) {
		return nil, fmt.Errorf("inspection stopped: %w", runErr)
	}
	if runErr != nil {
		log.Warn().Err(runErr).Msg("Inspection aborted, reporting partial results")
	}

	// 4. Optional triage
	var triage *ai.Triage
	var stats *ai.Stats
	if cfg.EnableTriage {
		triage, stats = runTriage(ctx, cfg, agg, log)
	}

	render.Report(os.Stdout, agg, triage, render.Options{})

	// 5. History
	if cfg.EnableDatabase {
		saveReport(cfg, agg, source, triage, log)
	}

	// 6. Telegram digest
	if cfg.NotificationsEnabled() {
		if err := notify(ctx, cfg, agg, source, triage, stats, log); err != nil {
			log.Warn().Err(err).Msg("Failed to send Telegram notification")
		}
	}

	log.Info().Dur("total_duration", time.Since(startTime)).Msg("All operations completed")

	if runErr != nil {
		return agg, fmt.Errorf("inspection aborted: %w", runErr)
	}
	return agg, nil
}

func packageDeps(cfg *config.Config) (inspector.Deps, error) {
	if cfg.PackagesURL == "" {
		return inspector.Deps{}, nil
	}

	timeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	httpClient, err := repo.NewHTTPClient(cfg.GetProxyURL(cfg.PackagesUseHTTPS()), timeout)
	if err != nil {
		return inspector.Deps{}, fmt.Errorf("failed to configure package repository client: %w", err)
	}

	fetcher, err := repo.NewFetcher(cfg.PackagesURL,
		repo.WithHTTPClient(httpClient),
		repo.WithMaxAttempts(cfg.FetchMaxRetries),
		repo.WithCacheTTL(time.Duration(cfg.PackageCacheTTLMinutes)*time.Minute),
	)
	if err != nil {
		return inspector.Deps{}, fmt.Errorf("failed to configure package repository: %w", err)
	}
	return inspector.Deps{Packages: fetcher}, nil
}

// runTriage never fails the run; a missing triage only drops the summary.
func runTriage(ctx context.Context, cfg *config.Config, agg *runner.AggregateReport, log *logging.SecureLogger) (*ai.Triage, *ai.Stats) {
	client, err := ai.NewClient(ai.ClientConfig{
		APIKey:    cfg.AnthropicAPIKey,
		Model:     cfg.ClaudeModel,
		ProxyURL:  cfg.GetProxyURL(true),
		Timeout:   time.Duration(cfg.AITimeoutSeconds) * time.Second,
		MaxTokens: cfg.AIMaxTokens,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Claude client, skipping triage")
		return nil, nil
	}

	log.Info().Str("model", cfg.ClaudeModel).Msg("Triaging bundle with Claude AI...")
	triage, stats, err := client.Triage(ctx, agg)
	if err != nil {
		log.Warn().Err(err).Msg("Triage failed")
		return nil, nil
	}

	log.Info().
		Str("status", triage.Status).
		Int("suspect_files", len(triage.SuspectFiles)).
		Msg("Triage completed")
	log.Debug().
		Int("input_tokens", stats.InputTokens).
		Int("output_tokens", stats.OutputTokens).
		Msgf("Triage cost $%.4f", stats.CostUSD)
	return triage, stats
}

func saveReport(cfg *config.Config, agg *runner.AggregateReport, source string, triage *ai.Triage, log *logging.SecureLogger) {
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open report database")
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	rep := storage.FromAggregate(agg, source, triage)
	if err := store.SaveReport(rep); err != nil {
		log.Warn().Err(err).Msg("Failed to save report to database")
	} else {
		log.Info().Int64("id", rep.ID).Msg("Report saved to database")
	}

	if cfg.ReportRetentionDays > 0 {
		deleted, err := store.CleanupOldReports(cfg.ReportRetentionDays)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to cleanup old reports")
		} else if deleted > 0 {
			log.Info().Int64("deleted", deleted).Msg("Old reports cleaned up")
		}
	}
}

func notify(ctx context.Context, cfg *config.Config, agg *runner.AggregateReport, source string, triage *ai.Triage, stats *ai.Stats, log *logging.SecureLogger) error {
	client, err := notification.NewTelegramClient(
		cfg.TelegramBotToken,
		cfg.TelegramArchiveChannel,
		cfg.TelegramAlertsChannel,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram client: %w", err)
	}

	info := client.BotInfo()
	log.Info().Str("username", info["username"].(string)).Msg("Sending Telegram digest...")

	return client.SendBundleReport(ctx, agg, source, triage, stats)
}
