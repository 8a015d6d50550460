package worker

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"bottega/internal/sheets"
)

// MonthExporter is satisfied by ExportWorker.
type MonthExporter interface {
	ExportMonth(ctx context.Context, year, month int) error
}

type ReconcilerConfig struct {
	// PollInterval is how often queued months are retried (default: 1m)
	PollInterval time.Duration

	// RefreshInterval is how often the current month is re-exported even
	// without a ledger change (default: 15m)
	RefreshInterval time.Duration

	// MaxRetries is the number of attempts before a month is parked as
	// failed (default: 5)
	MaxRetries int
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		PollInterval:    time.Minute,
		RefreshInterval: 15 * time.Minute,
		MaxRetries:      5,
	}
}

type month struct{ year, month int }

// queued tracks one pending month. seq changes on every Enqueue so a pass
// that started before a newer change does not clear it.
type queued struct {
	attempts int
	seq      uint64
}

func (m month) String() string { return sheets.Period(m.year, m.month) }

// Reconciler keeps the spreadsheet converging on the ledger when events
// are lost or an export fails: it retries queued months and periodically
// refreshes the current one.
type Reconciler struct {
	exporter MonthExporter
	config   ReconcilerConfig
	now      func() time.Time

	mu     sync.Mutex
	queue  map[month]queued
	failed map[month]string
	enqSeq uint64

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// ReconcilerStats counts months by state.
type ReconcilerStats struct {
	Pending int      `json:"pending"`
	Failed  int      `json:"failed"`
	Periods []string `json:"failed_periods,omitempty"`
}

func NewReconciler(exporter MonthExporter, config ReconcilerConfig) *Reconciler {
	def := DefaultReconcilerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = def.RefreshInterval
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	return &Reconciler{
		exporter: exporter,
		config:   config,
		now:      time.Now,
		queue:    make(map[month]queued),
		failed:   make(map[month]string),
	}
}

// Enqueue schedules a month for export on the next pass. A month parked
// as failed gets a fresh set of attempts.
func (r *Reconciler) Enqueue(year, mon int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := month{year, mon}
	delete(r.failed, m)
	r.enqSeq++
	q := r.queue[m]
	q.seq = r.enqSeq
	r.queue[m] = q
}

func (r *Reconciler) enqueueCurrent() {
	now := r.now()
	r.Enqueue(now.Year(), int(now.Month()))
}

// Start exports the current month right away and then runs the loop in
// the background. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	r.enqueueCurrent()
	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Export reconciler started",
		"poll_interval", r.config.PollInterval,
		"refresh_interval", r.config.RefreshInterval)
	return nil
}

// Stop signals the loop and waits for the pass in flight.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Export reconciler stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export reconciler stop timed out")
		return ctx.Err()
	}
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	pollTicker := time.NewTicker(r.config.PollInterval)
	defer pollTicker.Stop()

	refreshTicker := time.NewTicker(r.config.RefreshInterval)
	defer refreshTicker.Stop()

	r.processBatch(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			r.processBatch(ctx)
		case <-refreshTicker.C:
			r.enqueueCurrent()
			r.processBatch(ctx)
		}
	}
}

// processBatch tries every queued month once, oldest first.
func (r *Reconciler) processBatch(ctx context.Context) {
	r.mu.Lock()
	batch := make([]month, 0, len(r.queue))
	seqs := make(map[month]uint64, len(r.queue))
	for m, q := range r.queue {
		batch = append(batch, m)
		seqs[m] = q.seq
	}
	r.mu.Unlock()

	slices.SortFunc(batch, func(a, b month) int {
		return cmp.Or(cmp.Compare(a.year, b.year), cmp.Compare(a.month, b.month))
	})

	for _, m := range batch {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := r.exporter.ExportMonth(ctx, m.year, m.month); err != nil {
			r.handleFailure(ctx, m, err)
			continue
		}
		r.mu.Lock()
		if r.queue[m].seq == seqs[m] {
			delete(r.queue, m)
		}
		r.mu.Unlock()
	}
}

func (r *Reconciler) handleFailure(ctx context.Context, m month, exportErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.queue[m]
	q.attempts++
	attempt := q.attempts
	if attempt < r.config.MaxRetries {
		r.queue[m] = q
		slog.WarnContext(ctx, "Month export failed",
			"period", m.String(),
			"attempt", attempt,
			"error", exportErr)
		return
	}

	delete(r.queue, m)
	r.failed[m] = exportErr.Error()
	slog.ErrorContext(ctx, "Month export failed permanently after max retries",
		"period", m.String(),
		"attempts", attempt,
		"error", exportErr)
}

func (r *Reconciler) Stats() ReconcilerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := ReconcilerStats{Pending: len(r.queue), Failed: len(r.failed)}
	for m := range r.failed {
		stats.Periods = append(stats.Periods, m.String())
	}
	slices.Sort(stats.Periods)
	return stats
}

// RetryFailed requeues every parked month.
func (r *Reconciler) RetryFailed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.failed)
	for m := range r.failed {
		r.enqSeq++
		r.queue[m] = queued{seq: r.enqSeq}
		delete(r.failed, m)
	}
	return n
}
