// Package worker turns ledger-change events into spreadsheet exports.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bottega/internal/amqp"
	"bottega/internal/cache"
	"bottega/internal/core"
	"bottega/internal/sheets"
)

// SummaryComputer is satisfied by aggregate.Engine.
type SummaryComputer interface {
	ComputeMonthlySummary(ctx context.Context, year, month int) (core.Summary, error)
}

// ExportWorker recomputes the month a change touched and writes its row.
// Changes not bound to a month (users, categories, suppliers) re-export
// the current month.
type ExportWorker struct {
	summaries SummaryComputer
	writer    sheets.SummaryWriter
	retrier   Retrier
	seen      *cache.LRU[struct{}]
	now       func() time.Time
}

// Retrier takes over a month whose export failed.
type Retrier interface {
	Enqueue(year, month int)
}

func NewExportWorker(summaries SummaryComputer, writer sheets.SummaryWriter) *ExportWorker {
	return &ExportWorker{
		summaries: summaries,
		writer:    writer,
		seen:      cache.NewLRU[struct{}](1024, time.Hour),
		now:       time.Now,
	}
}

// WithRetrier hands failed exports to r and acknowledges the message
// instead of asking the broker to redeliver it.
func (w *ExportWorker) WithRetrier(r Retrier) *ExportWorker {
	w.retrier = r
	return w
}

// HandleLedgerChanged is the AMQP handler. Redelivered messages are
// skipped once exported.
func (w *ExportWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	id := msg.MessageID.String()
	if _, dup := w.seen.Get(id); dup {
		slog.DebugContext(ctx, "Skipping already exported ledger change", "message_id", id)
		return nil
	}

	year, month := msg.Year, msg.Month
	if !msg.Periodic() {
		now := w.now()
		year, month = now.Year(), int(now.Month())
	}

	slog.InfoContext(ctx, "Processing ledger change",
		"message_id", id,
		"collection", msg.Collection,
		"id", msg.ID,
		"op", msg.Op,
		"period", sheets.Period(year, month))

	if err := w.ExportMonth(ctx, year, month); err != nil {
		if w.retrier == nil {
			return err
		}
		slog.WarnContext(ctx, "Export failed, queued for retry",
			"message_id", id,
			"period", sheets.Period(year, month),
			"error", err)
		w.retrier.Enqueue(year, month)
	}
	w.seen.Set(id, struct{}{})
	return nil
}

// ExportMonth recomputes one month and writes it.
func (w *ExportWorker) ExportMonth(ctx context.Context, year, month int) error {
	summary, err := w.summaries.ComputeMonthlySummary(ctx, year, month)
	if err != nil {
		return fmt.Errorf("compute %s: %w", sheets.Period(year, month), err)
	}
	ref, err := w.writer.WriteSummary(ctx, sheets.RowFromSummary(summary, w.now()))
	if err != nil {
		return fmt.Errorf("write %s: %w", sheets.Period(year, month), err)
	}
	slog.InfoContext(ctx, "Exported monthly summary",
		"period", sheets.Period(year, month),
		"ref", ref,
		"revenue", summary.TotalRevenue.String(),
		"net_profit", summary.NetProfit.String())
	return nil
}
