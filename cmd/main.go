package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vea/internal/aggregator"
	"vea/internal/config"
	"vea/internal/database"
	"vea/internal/feed"
	"vea/internal/ratelimiter"
	"vea/internal/sink"

	"github.com/joho/godotenv"
)

const logFilePerm = 0o644

func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).ErrorContext(ctx, "Failed to load config",
			"error", err)

		return 1
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).ErrorContext(ctx, "Failed to initialize logger",
			"error", err,
			"logFile", cfg.LogFile)

		return 1
	}
	defer closeLog()

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.WarnContext(ctx, "Failed to load .env file",
			"error", envErr)
	}

	log.InfoContext(ctx, "Starting vea",
		"feedCount", len(cfg.Feeds),
		"keywordCount", len(cfg.Keywords),
		"outputDirectory", cfg.OutputDirectory)

	code := execute(ctx, cfg, start, log)

	log.InfoContext(ctx, "vea run is finished",
		"exitCode", code,
		"uptimeSeconds", time.Since(start).Seconds())

	return code
}

// execute runs one aggregation with a loaded config and returns the process
// exit code: 0 when the output file is written, even if some sources failed,
// 1 when the run is interrupted or the output cannot be written.
func execute(ctx context.Context, cfg config.Config, start time.Time, log *slog.Logger) int {
	var (
		db  *database.Database
		err error
	)

	if cfg.DBPath != "" {
		db, err = database.New(ctx, cfg.DBPath, log)
		if err != nil {
			log.ErrorContext(ctx, "Failed to initialize db",
				"error", err,
				"dbPath", cfg.DBPath)

			return 1
		}
		defer func() {
			if err = db.Close(); err != nil {
				log.ErrorContext(ctx, "Failed to close db",
					"error", err,
					"dbPath", cfg.DBPath)
			}
		}()
	}

	fetcher := feed.NewFetcher(feed.Options{
		Timeout:      cfg.FetchTimeout,
		Retries:      cfg.FetchRetries,
		RetryBackoff: cfg.FetchRetryBackoff,
		Limiter:      ratelimiter.New(cfg.HostInterval, log),
	}, log)

	result := aggregator.New(fetcher, cfg.MaxConcurrency, log).Run(ctx, cfg.Sources(), cfg.Keywords)

	if ctx.Err() != nil {
		log.ErrorContext(ctx, "Run is interrupted so no output is written",
			"error", ctx.Err())

		return 1
	}

	dateKey := sink.DateKey(start)

	path, err := sink.Write(result.Entries, cfg.OutputDirectory, dateKey)
	if err != nil {
		log.ErrorContext(ctx, "Failed to write output",
			"error", err,
			"path", path,
			"entryCount", len(result.Entries))

		return 1
	}
	log.InfoContext(ctx, "Output is written",
		"path", path,
		"entryCount", len(result.Entries),
		"sourcesFailed", result.Stats.SourcesFailed)

	if db != nil {
		if err = db.ReplaceSnapshot(ctx, dateKey, result.Entries, result.Stats); err != nil {
			log.ErrorContext(ctx, "Failed to archive snapshot",
				"error", err,
				"dbPath", cfg.DBPath,
				"dateKey", dateKey)
		}
	}

	return 0
}

func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var levelVar slog.LevelVar
	levelVar.Set(level)

	var w io.Writer = os.Stdout
	closeLog := func() {}

	if cfg.LogFile != "" {
		f, openErr := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if openErr != nil {
			return nil, nil, fmt.Errorf("open log file: %w", openErr)
		}

		w = io.MultiWriter(os.Stdout, f)
		closeLog = func() {
			_ = f.Close()
		}
	}

	log := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: &levelVar}))
	slog.SetDefault(log)

	return log, closeLog, nil
}
