package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/modeldepot/core/internal/credentials"
	"github.com/modeldepot/core/internal/httpclient"
	"github.com/modeldepot/core/internal/observability"
	"github.com/modeldepot/core/internal/sentry_ext"
	"github.com/modeldepot/core/internal/settings"
	"github.com/modeldepot/core/internal/version"
	"github.com/modeldepot/core/internal/waiting"
	"github.com/modeldepot/core/pkg/transfer"
)

func main() {
	configPath := flag.String("config", "",
		"Path to a YAML settings file.")
	baseDir := flag.String("base-dir", "",
		"Directory that replaces the {base} placeholder in destination paths.")
	remoteURL := flag.String("url", "",
		"Remote URL of a single artifact to fetch.")
	gitURL := flag.String("git", "",
		"Git URL of a single repository to fetch.")
	dest := flag.String("dest", "",
		"Destination path for the -url or -git artifact.")
	token := flag.String("token", "",
		"Access token applied to the provider matching each remote URL, overriding the environment.")
	syncMode := flag.Bool("sync", false,
		"Wait for each transfer on its submitting goroutine instead of polling.")
	logLevel := flag.Int("log-level", 0,
		"Specifies the log level to use for logging. -4: debug, 0: info, 4: warn, 8: error.")
	disableAnalytics := flag.Bool("no-observability", false,
		"Disables error reporting.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "depot-fetch %s\n\n", version.Version)
		fmt.Fprintf(os.Stderr, "Downloads model artifacts to local storage.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  depot-fetch [flags] [SOURCE=DEST ...]\n\n")
		fmt.Fprintf(os.Stderr, "Sources ending in .git or prefixed with git+ are cloned; bucket URLs\n")
		fmt.Fprintf(os.Stderr, "(s3, gs, azblob) and everything else are downloaded directly.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	// Missing .env files are fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := settings.Default()
	if *configPath != "" {
		fileCfg, err := settings.LoadFromFile(*configPath)
		if err != nil {
			slog.Error("main: failed to load settings", "error", err)
			os.Exit(2)
		}
		cfg = cfg.Merge(fileCfg)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("main: bad environment", "error", err)
		os.Exit(2)
	}
	if *baseDir != "" {
		cfg.BaseDir = *baseDir
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("main: invalid settings", "error", err)
		os.Exit(2)
	}

	artifacts, err := collectArtifacts(*remoteURL, *gitURL, *dest, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if len(artifacts) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	dsn := cfg.SentryDSN
	if *disableAnalytics {
		dsn = ""
	}
	sentryClient := sentry_ext.New(sentry_ext.Params{
		DSN:              dsn,
		AttachStacktrace: true,
		Release:          version.Version,
		Environment:      version.Environment,
	})
	defer sentryClient.Flush(2 * time.Second)

	logger := observability.NewCoreLogger(
		slog.New(
			slog.NewJSONHandler(
				os.Stderr,
				&slog.HandlerOptions{
					Level: slog.Level(*logLevel),
				},
			),
		),
		&observability.CoreLoggerParams{
			Sentry: sentryClient,
			Tags:   observability.Tags{"service": "depot-fetch"},
		},
	)

	logger.Info(
		"main: starting",
		"version", version.Version,
		"base_dir", cfg.BaseDir,
		"artifacts", len(artifacts),
		"sync", *syncMode,
	)

	creds := credentials.FromEnv()
	if *token != "" {
		creds.HuggingFace = *token
		creds.CivitAI = *token
	}

	stats := transfer.NewTransferStats()
	client := httpclient.NewRetryClient(
		httpclient.WithLogger(logger),
		httpclient.WithRetryMax(cfg.RetryMax),
	)
	probe := httpclient.NewRetryClient(
		httpclient.WithLogger(logger),
		httpclient.WithRetryMax(cfg.RetryMax),
		httpclient.WithTimeout(cfg.ProbeTimeout),
	)
	manager := transfer.NewManager(
		transfer.WithLogger(logger),
		transfer.WithRegistry(transfer.NewRegistry(transfer.RegistryParams{
			Logger:    logger,
			Retention: cfg.Retention,
		})),
		transfer.WithTransfers(transfer.NewTransfers(
			client, logger, stats, cfg.ChunkSize, waiting.NewDelay(cfg.TermGrace))),
		transfer.WithPreflight(transfer.NewPreflight(probe, logger)),
		transfer.WithStats(stats),
		transfer.WithProgressInterval(cfg.ProgressInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		// The next signal gets the default disposition and kills the
		// process outright.
		signal.Reset(syscall.SIGINT, syscall.SIGTERM)
		logger.Info("main: received shutdown signal", "signal", sig.String())
		cancel()
	}()

	group := new(errgroup.Group)
	keys := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		keys = append(keys, artifact.Key())
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := manager.Submit(ctx, artifact, transfer.SubmitParams{
				BasePath:    cfg.BaseDir,
				Credentials: creds,
				Sync:        *syncMode,
			})
			return err
		})
	}
	submitErr := group.Wait()
	if submitErr != nil && ctx.Err() == nil {
		manager.Close()
		logger.CaptureError(fmt.Errorf("main: %w", submitErr))
		sentryClient.Flush(2 * time.Second)
		os.Exit(2)
	}

	finished := pollStatus(ctx, os.Stdout, manager, keys, waiting.NewDelay(cfg.PollInterval))

	manager.Close()

	if !finished {
		printStatus(os.Stdout, manager, keys)
		logger.Info(
			"main: interrupted, transfers cancelled",
			"downloaded_bytes", stats.DownloadedBytes(),
			"total_bytes", stats.TotalBytes(),
		)
		sentryClient.Flush(2 * time.Second)
		os.Exit(1)
	}

	logger.Info(
		"main: complete",
		"downloaded_bytes", stats.DownloadedBytes(),
		"total_bytes", stats.TotalBytes(),
	)

	for _, key := range keys {
		if rec := manager.Progress(key); rec.Status == transfer.StatusError {
			sentryClient.Flush(2 * time.Second)
			os.Exit(1)
		}
	}
}

// pollStatus prints a status table until every artifact reaches a
// terminal state or ctx is cancelled. It reports whether all transfers
// finished.
func pollStatus(ctx context.Context, w io.Writer, manager *transfer.Manager, keys []string, poll waiting.Delay) bool {
	for {
		if printStatus(w, manager, keys) {
			return true
		}
		tick, cancel := poll.Wait()
		select {
		case <-tick:
			cancel()
		case <-ctx.Done():
			cancel()
			return false
		}
	}
}

// printStatus writes one status line per artifact and reports whether
// every transfer has reached a terminal state.
func printStatus(w io.Writer, manager *transfer.Manager, keys []string) bool {
	done := true
	for _, key := range keys {
		rec := manager.Progress(key)
		line := fmt.Sprintf("%-11s %3d%%  %s", rec.Status, rec.Progress, rec.DestinationPath)
		if rec.Status == transfer.StatusError {
			line += "  (" + rec.ErrorMessage + ")"
		}
		fmt.Fprintln(w, line)
		if !rec.Status.Terminal() {
			done = false
		}
	}
	return done
}

// collectArtifacts merges the single-artifact flags with positional
// SOURCE=DEST arguments.
func collectArtifacts(remoteURL, gitURL, dest string, args []string) ([]transfer.Artifact, error) {
	var artifacts []transfer.Artifact
	if remoteURL != "" || gitURL != "" {
		artifacts = append(artifacts, transfer.Artifact{
			RemoteURL:       remoteURL,
			GitURL:          gitURL,
			DestinationPath: dest,
		})
	} else if dest != "" {
		return nil, errors.New("-dest requires -url or -git")
	}
	for _, arg := range args {
		artifact, err := parseArtifactArg(arg)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

func parseArtifactArg(arg string) (transfer.Artifact, error) {
	source, dest, ok := strings.Cut(arg, "=")
	if !ok || source == "" || dest == "" {
		return transfer.Artifact{}, fmt.Errorf("malformed artifact %q, want SOURCE=DEST", arg)
	}
	if after, ok := strings.CutPrefix(source, "git+"); ok {
		return transfer.Artifact{GitURL: after, DestinationPath: dest}, nil
	}
	if strings.HasSuffix(source, ".git") {
		return transfer.Artifact{GitURL: source, DestinationPath: dest}, nil
	}
	return transfer.Artifact{RemoteURL: source, DestinationPath: dest}, nil
}
