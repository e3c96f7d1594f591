package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rf-watch/gnss-sentry/internal/classify"
	"github.com/rf-watch/gnss-sentry/internal/storage"
)

const storageDir = "data"

// Run monitors the configured receiver until the context is cancelled
// or the telemetry stream ends.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	sessionID, err := store.CreateSession(ctx, config.Receiver.Name, config.Receiver.Source, config)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	logger.Info("monitoring session started",
		slog.Int64("session", sessionID),
		slog.String("receiver", config.Receiver.Name),
		slog.String("source", config.Receiver.Source))

	source, closeSource, err := openSource(config.Receiver.Source)
	if err != nil {
		return fmt.Errorf("opening telemetry source: %w", err)
	}
	defer closeSource()

	feed := NewEpochFeed(source, logger)
	metrics := NewMetrics(config.Receiver.Name)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if config.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(ctx, config.Metrics.ListenAddress, logger)
		})
	}
	g.Go(func() error {
		// The metrics endpoint has no reason to outlive the stream.
		defer cancel()
		defer logger.Info("monitoring session finished", slog.Int64("session", sessionID))
		return monitor(ctx, config, feed, metrics, store, sessionID, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// monitor is the classification loop: one verdict per telemetry epoch.
func monitor(ctx context.Context, config *Config, feed *EpochFeed, metrics *Metrics, store storage.Store, sessionID int64, logger *slog.Logger) error {
	classifier := classify.New(config.Classifier.Classify())

	var wasJammed bool
	for {
		epoch, err := feed.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		verdict := classifier.Classify(epoch)
		metrics.Observe(verdict, feed.ParseErrors())

		if _, err := store.StoreVerdict(ctx, sessionID, epoch.Timestamp, verdict); err != nil {
			return fmt.Errorf("storing verdict: %w", err)
		}

		logVerdict(logger, verdict, wasJammed)
		wasJammed = verdict.Jammed
	}
}

// logVerdict reports state transitions loudly and steady state quietly.
func logVerdict(logger *slog.Logger, v classify.Verdict, wasJammed bool) {
	attrs := []any{
		slog.String("severity", string(v.Severity)),
		slog.String("type", string(v.Type)),
		slog.Float64("confidence", v.Confidence),
		slog.Int("satellites", v.Stats.Satellites),
		slog.Float64("avgCN0", v.Stats.AvgCN0DBHz),
	}

	switch {
	case v.Jammed && !wasJammed:
		logger.Warn("jamming detected", attrs...)
	case !v.Jammed && wasJammed:
		logger.Info("jamming cleared", attrs...)
	case v.Jammed:
		logger.Debug("jamming ongoing", attrs...)
	default:
		logger.Debug("epoch clean", attrs...)
	}
}

func openSource(path string) (io.Reader, func() error, error) {
	if path == "-" {
		return os.Stdin, func() error { return nil }, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func createStorage(config *StorageConfig) (storage.Store, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		dbPath = config.DataDirectory
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(wd, dbPath)
		}
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("gnss_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
