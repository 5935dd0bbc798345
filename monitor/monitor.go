// Package monitor runs the observe, diff, persist and notify cycle for one
// layout library.
//
// A Monitor owns the only cross-cycle state in the process: the flag
// recording whether the current layout list has been logged once. Cycles
// are triggered serially by a Runner, so no two cycles ever overlap.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/laywatch/history"
	"github.com/hazyhaar/laywatch/layout"
	"github.com/hazyhaar/laywatch/notify"
	"github.com/hazyhaar/laywatch/snapshot"
)

// Monitor performs monitoring cycles over one source file.
type Monitor struct {
	cfg    *Config
	store  *snapshot.Store
	sink   notify.Sink  // nil disables notification
	hist   *history.Log // nil disables history
	logger *slog.Logger
	now    func() time.Time

	// baselineLogged survives across cycles within one process run and
	// never persists to disk.
	baselineLogged bool

	// Counters for observability (exported via Stats).
	cycles     atomic.Int64
	failures   atomic.Int64
	lastStatus atomic.Pointer[string]
}

// Stats are point-in-time counters over the cycles run so far.
type Stats struct {
	Cycles     int64  `json:"cycles"`
	Failures   int64  `json:"failures"`
	LastStatus string `json:"last_status,omitempty"`
}

// Stats returns the current counters.
func (m *Monitor) Stats() Stats {
	s := Stats{Cycles: m.cycles.Load(), Failures: m.failures.Load()}
	if p := m.lastStatus.Load(); p != nil {
		s.LastStatus = *p
	}
	return s
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSink sets the notification sink for removal reports.
func WithSink(s notify.Sink) Option {
	return func(m *Monitor) { m.sink = s }
}

// WithHistory sets the cycle history log.
func WithHistory(h *history.Log) Option {
	return func(m *Monitor) { m.hist = h }
}

// WithClock overrides the time source (and the snapshot store's, unless a
// store is injected explicitly).
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithStore injects a pre-built snapshot store.
func WithStore(st *snapshot.Store) Option {
	return func(m *Monitor) { m.store = st }
}

// New creates a Monitor from configuration.
func New(cfg *Config, logger *slog.Logger, opts ...Option) *Monitor {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{cfg: cfg, logger: logger, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	if m.store == nil {
		m.store = snapshot.New(cfg.Snapshot.Dir, snapshot.WithClock(m.now))
	}
	return m
}

// Config returns the monitor's configuration.
func (m *Monitor) Config() *Config { return m.cfg }

// Store returns the snapshot store (status API).
func (m *Monitor) Store() *snapshot.Store { return m.store }

// cycleResult is everything one pass produced, for logging and history.
type cycleResult struct {
	status   string
	err      error
	layouts  int
	diff     layout.Diff
	saved    bool
	snapshot string
}

// RunCycle performs one monitoring pass. Every failure kind is handled at
// this boundary: nothing propagates into the next cycle. The returned error
// is non-nil only for cooperative cancellation.
func (m *Monitor) RunCycle(ctx context.Context) error {
	started := m.now()
	res := m.run(ctx)
	finished := m.now()

	m.cycles.Add(1)
	if res.status != history.StatusOK {
		m.failures.Add(1)
	}
	m.lastStatus.Store(&res.status)

	switch {
	case res.status == history.StatusCancelled:
		m.logger.Info("monitor: cycle cancelled")
	case res.status == history.StatusError:
		m.logger.Error("monitor: cycle failed", "error", res.err)
	}

	if m.hist != nil {
		rec := history.Record{
			StartedAt:    started,
			FinishedAt:   finished,
			Status:       res.status,
			Layouts:      res.layouts,
			Added:        len(res.diff.Added),
			Removed:      len(res.diff.Removed),
			Saved:        res.saved,
			SnapshotPath: res.snapshot,
		}
		if res.err != nil {
			rec.Error = res.err.Error()
		}
		m.hist.RecordCycle(context.WithoutCancel(ctx), rec, res.diff.Removed)
	}

	if res.status == history.StatusCancelled {
		return res.err
	}
	return nil
}

func (m *Monitor) run(ctx context.Context) cycleResult {
	res := cycleResult{status: history.StatusOK}

	if err := ctx.Err(); err != nil {
		res.status, res.err = history.StatusCancelled, err
		return res
	}

	data, err := os.ReadFile(m.cfg.Source.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("monitor: source file missing", "path", m.cfg.Source.Path)
			res.status = history.StatusSourceMissing
			res.err = fmt.Errorf("%w: %s", ErrSourceNotFound, m.cfg.Source.Path)
		} else {
			res.status = history.StatusError
			res.err = fmt.Errorf("monitor: read source: %w", err)
		}
		return res
	}

	doc, err := layout.ParseDocument(data)
	if err != nil {
		res.status, res.err = history.StatusError, err
		return res
	}

	col, err := doc.Collection(m.cfg.Source.Collection)
	if err != nil {
		m.logger.Warn("monitor: collection not found",
			"collection", m.cfg.Source.Collection, "path", m.cfg.Source.Path)
		res.status, res.err = history.StatusCollectionMissing, err
		return res
	}

	current := layout.ExtractLayouts(col)
	res.layouts = current.Len()

	latest, err := m.store.Latest()
	if err != nil {
		res.status, res.err = history.StatusError, err
		return res
	}

	baseline := latest == ""
	priorUnreadable := false
	var previous *layout.Mapping
	if !baseline {
		_, prev, err := m.store.Read(ctx, latest)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			res.status, res.err = history.StatusCancelled, err
			return res
		case err != nil:
			// A corrupted newest snapshot suppresses both the save and the
			// notification until it is removed by hand.
			m.logger.Warn("monitor: prior snapshot unreadable, skipping save and notification",
				"path", latest, "error", err)
			res.status = history.StatusPriorUnreadable
			priorUnreadable = true
		default:
			previous = prev
		}
	}

	if previous != nil {
		res.diff = layout.Compare(previous, current)
	}

	if (baseline || res.diff.Changed()) && !priorUnreadable {
		path, err := m.store.Write(ctx, col)
		switch {
		case errors.Is(err, snapshot.ErrConflict):
			m.logger.Warn("monitor: snapshot name collision, skipping save", "error", err)
			res.status = history.StatusWriteConflict
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			res.status, res.err = history.StatusCancelled, err
			return res
		case err != nil:
			res.status, res.err = history.StatusError, err
			return res
		default:
			res.saved, res.snapshot = true, path
			m.logger.Info("monitor: snapshot saved",
				"path", path,
				"layouts", current.Len(),
				"added", len(res.diff.Added),
				"removed", len(res.diff.Removed),
				"baseline", baseline)
		}
	}

	// Full listing once at process start, then only when a save happened.
	if !m.baselineLogged {
		m.logLayouts(current)
		m.baselineLogged = true
	} else if res.saved {
		m.logLayouts(current)
	}

	if len(res.diff.Removed) > 0 {
		if m.sink == nil {
			m.logger.Warn("monitor: notifier unconfigured, skipping removal report",
				"removed", len(res.diff.Removed))
		} else {
			report := notify.Report{
				Collection: col.Name(),
				Removed:    res.diff.Removed,
				ObservedAt: m.now().UTC(),
			}
			if err := m.sink.SendRemoved(ctx, report); err != nil {
				if errors.Is(err, context.Canceled) {
					res.status, res.err = history.StatusCancelled, err
					return res
				}
				m.logger.Warn("monitor: removal report failed", "error", err)
			}
		}
	}
	return res
}

func (m *Monitor) logLayouts(current *layout.Mapping) {
	entries := current.Entries()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, fmt.Sprintf("%s (%s)", e.Label, e.Key))
	}
	m.logger.Info("monitor: current layouts",
		"collection", m.cfg.Source.Collection,
		"count", len(entries),
		"layouts", names)
}
