// Package services is the single entry point of the ledger. Every
// operation takes the caller's identity, runs the policy checks and the
// write inside one store transaction, and only then announces the change.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"bottega/internal/aggregate"
	"bottega/internal/amqp"
	"bottega/internal/cache"
	"bottega/internal/core"
	"bottega/internal/policy"
	"bottega/internal/store"
)

// Publisher receives ledger changes after commit.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
}

// SubmitResult reports how a daily submission landed.
type SubmitResult struct {
	ID      int64 `json:"id"`
	Updated bool  `json:"updated"`
}

type Ledger struct {
	store     store.Store
	engine    *aggregate.Engine
	summaries *cache.Summaries
	publisher Publisher
}

type Option func(*Ledger)

// WithSummaryCache serves repeated dashboard reads from c.
func WithSummaryCache(c *cache.Summaries) Option {
	return func(l *Ledger) { l.summaries = c }
}

// WithPublisher announces every committed write to p.
func WithPublisher(p Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

func NewLedger(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{store: s, engine: aggregate.New(s)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dashboard returns the month's summary. Per-user revenue is only shown to
// callers allowed to see every user's sales.
func (l *Ledger) Dashboard(ctx context.Context, identity core.User, year, month int) (core.Summary, error) {
	if err := policy.Allow(identity, policy.Dashboard, policy.Read); err != nil {
		return core.Summary{}, err
	}

	var (
		summary core.Summary
		err     error
	)
	if l.summaries != nil {
		summary, err = l.summaries.Summary(ctx, year, month, func(ctx context.Context) (core.Summary, error) {
			return l.engine.ComputeMonthlySummary(ctx, year, month)
		})
	} else {
		summary, err = l.engine.ComputeMonthlySummary(ctx, year, month)
	}
	if err != nil {
		return core.Summary{}, err
	}

	if !policy.SeesAllSalesBreakdown(identity) {
		summary.SalesByUser = nil
	}
	return summary, nil
}

// change describes a committed write. A change without dates affects
// every period.
type change struct {
	collection store.Collection
	id         int64
	op         amqp.Op
	dates      []core.Date
}

type period struct{ year, month int }

func (c change) periods() []period {
	var out []period
	for _, d := range c.dates {
		p := period{d.Year(), d.Month()}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// committed invalidates cached summaries and publishes the change. Publish
// failures are logged; the write already succeeded.
func (l *Ledger) committed(ctx context.Context, c change) {
	periods := c.periods()
	if l.summaries != nil {
		if len(periods) == 0 {
			l.summaries.Purge()
		}
		for _, p := range periods {
			l.summaries.InvalidateMonth(p.year, p.month)
		}
	}

	if l.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping ledger change",
			"collection", c.collection, "id", c.id, "op", c.op)
		return
	}

	msgs := []*amqp.LedgerChangedMessage{}
	if len(periods) == 0 {
		msgs = append(msgs, amqp.NewLedgerChangedMessage(string(c.collection), c.id, c.op, 0, 0))
	}
	for _, p := range periods {
		msgs = append(msgs, amqp.NewLedgerChangedMessage(string(c.collection), c.id, c.op, p.year, p.month))
	}
	for _, msg := range msgs {
		if err := l.publisher.PublishLedgerChanged(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish ledger change",
				"collection", c.collection, "id", c.id, "error", err)
		}
	}
}

// translate turns store sentinels into ledger errors. Errors that are
// already classified pass through.
func translate(entity string, id int64, err error) error {
	if err == nil {
		return nil
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return core.NotFound(entity, id)
	case errors.Is(err, store.ErrDuplicate):
		return core.Invalid("%s conflicts with an existing row", entity)
	}
	return core.StoreFailure(fmt.Sprintf("%s %d", entity, id), err)
}

// newestFirst reverses a Find result, which is ordered oldest first.
func newestFirst[T any](rows []T) []T {
	slices.Reverse(rows)
	return rows
}
