package monitor

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Runner drives a Monitor: one cycle immediately on start, then one per
// tick, plus optional cycles after the source file changes on disk. All
// cycles run on the Runner's goroutine, so they never overlap.
type Runner struct {
	monitor *Monitor
	logger  *slog.Logger
}

// NewRunner creates a Runner for m.
func NewRunner(m *Monitor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{monitor: m, logger: logger}
}

// Run blocks until ctx is cancelled. The first cycle fires before the
// first tick so a fresh process reports the current state right away.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.monitor.Config()

	// File events are collapsed into a debounced "pending" flag rather
	// than queued, so a burst of editor writes yields one extra cycle.
	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if cfg.Trigger.WatchFile {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			r.logger.Warn("runner: file watch unavailable, using interval only", "error", err)
		} else {
			defer w.Close()
			// Watch the directory: editors replace the file, which would
			// invalidate a watch on the file itself.
			dir := filepath.Dir(cfg.Source.Path)
			if err := w.Add(dir); err != nil {
				r.logger.Warn("runner: watch source dir failed, using interval only",
					"dir", dir, "error", err)
			} else {
				events = w.Events
				watchErrs = w.Errors
				r.logger.Info("runner: watching source directory", "dir", dir)
			}
		}
	}

	ticker := time.NewTicker(cfg.Trigger.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	stopDebounce := func() {
		if debounce != nil {
			debounce.Stop()
			debounce, debounceC = nil, nil
		}
	}
	defer stopDebounce()

	r.logger.Info("runner: started",
		"source", cfg.Source.Path,
		"interval", cfg.Trigger.Interval,
		"watch_file", events != nil)

	if err := r.monitor.RunCycle(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner: stopping", "cycles", r.monitor.Stats().Cycles)
			return ctx.Err()

		case <-ticker.C:
			stopDebounce()
			if err := r.monitor.RunCycle(ctx); err != nil {
				return err
			}

		case ev := <-events:
			if filepath.Base(ev.Name) != filepath.Base(cfg.Source.Path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(cfg.Trigger.Debounce)
				debounceC = debounce.C
			} else {
				debounce.Reset(cfg.Trigger.Debounce)
			}

		case <-debounceC:
			debounce, debounceC = nil, nil
			r.logger.Info("runner: source file changed, running cycle")
			if err := r.monitor.RunCycle(ctx); err != nil {
				return err
			}

		case err := <-watchErrs:
			r.logger.Warn("runner: file watch error", "error", err)
		}
	}
}
