// Command laywatch monitors an application's layout library.
//
// Usage:
//
//	laywatch -config laywatch.yaml            # run from YAML config
//	laywatch -source settings.xml -once       # single cycle, then exit
//	laywatch -source settings.xml             # interval loop with defaults
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/laywatch/history"
	"github.com/hazyhaar/laywatch/monitor"
	"github.com/hazyhaar/laywatch/notify"
)

func main() {
	configPath := flag.String("config", "", "path to laywatch.yaml config file")
	sourcePath := flag.String("source", "", "settings file to watch (overrides config)")
	collection := flag.String("collection", "", "collection name (overrides config)")
	snapshotDir := flag.String("snapshots", "", "snapshot directory (overrides config)")
	once := flag.Bool("once", false, "run one cycle and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *sourcePath, *collection, *snapshotDir, *once); err != nil {
		logger.Error("laywatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, sourcePath, collection, snapshotDir string, once bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if sourcePath != "" {
		cfg.Source.Path = sourcePath
	}
	if collection != "" {
		cfg.Source.Collection = collection
	}
	if snapshotDir != "" {
		cfg.Snapshot.Dir = snapshotDir
	}

	var opts []monitor.Option

	var sinks []notify.Sink
	if cfg.SMTP.Configured() {
		sinks = append(sinks, notify.NewSMTP(cfg.SMTP, logger))
	} else {
		logger.Warn("laywatch: smtp not configured, removals will not be mailed")
	}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.Webhook.URL, notify.WithWebhookLogger(logger)))
	}
	if len(sinks) == 1 {
		opts = append(opts, monitor.WithSink(sinks[0]))
	} else if len(sinks) > 1 {
		opts = append(opts, monitor.WithSink(notify.NewRouter(logger, sinks...)))
	}

	var hist *history.Log
	if cfg.History.Path != "" {
		db, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()
		hist = history.NewLog(db, logger)
		opts = append(opts, monitor.WithHistory(hist))
	}

	mon := monitor.New(cfg, logger, opts...)

	logger.Info("laywatch: starting",
		"source", cfg.Source.Path,
		"collection", cfg.Source.Collection,
		"snapshots", cfg.Snapshot.Dir,
		"interval", cfg.Trigger.Interval,
		"once", once)

	if once {
		return mon.RunCycle(ctx)
	}

	if cfg.API.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.API.Addr,
			Handler:           monitor.NewAPI(mon, hist).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("laywatch: status api listening", "addr", cfg.API.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("laywatch: status api", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
	}

	err = monitor.NewRunner(mon, logger).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loadConfig(path string) (*monitor.Config, error) {
	if path == "" {
		return monitor.DefaultConfig(), nil
	}
	cfg, err := monitor.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
