package services

import (
	"context"

	"github.com/shopspring/decimal"

	"bottega/internal/amqp"
	"bottega/internal/core"
	"bottega/internal/policy"
	"bottega/internal/store"
)

// TargetInput is a monthly budget. Omitted fields take the shop defaults:
// no revenue goal, 30% product cost and 28% labor.
type TargetInput struct {
	Year               int
	Month              int
	RevenueTarget      *core.Money
	ProductCostPercent *decimal.Decimal
	LaborCostPercent   *decimal.Decimal
}

func (in TargetInput) target() core.Target {
	t := core.Target{
		Year:               in.Year,
		Month:              in.Month,
		ProductCostPercent: core.DefaultProductCostPercent,
		LaborCostPercent:   core.DefaultLaborCostPercent,
	}
	if in.RevenueTarget != nil {
		t.RevenueTarget = *in.RevenueTarget
	}
	if in.ProductCostPercent != nil {
		t.ProductCostPercent = *in.ProductCostPercent
	}
	if in.LaborCostPercent != nil {
		t.LaborCostPercent = *in.LaborCostPercent
	}
	return t
}

// UpsertTarget creates or replaces the target of (year, month).
func (l *Ledger) UpsertTarget(ctx context.Context, identity core.User, in TargetInput) (core.Target, error) {
	if err := policy.Allow(identity, policy.Targets, policy.Write); err != nil {
		return core.Target{}, err
	}
	t := in.target()
	if err := t.Validate(); err != nil {
		return core.Target{}, err
	}

	op := amqp.OpCreate
	err := l.store.Update(ctx, func(tx store.Tx) error {
		existing, ok, err := store.First(tx.FindTargets(ctx, store.Filter{Year: t.Year, Month: t.Month}))
		if err != nil {
			return err
		}
		if ok {
			t.ID = existing.ID
			op = amqp.OpUpdate
			return tx.UpdateTarget(ctx, t)
		}
		t.ID, err = tx.InsertTarget(ctx, t)
		return err
	})
	if err != nil {
		return core.Target{}, translate("target", t.ID, err)
	}
	l.committed(ctx, change{collection: store.Targets, id: t.ID, op: op, dates: []core.Date{core.NewDate(t.Year, t.Month, 1)}})
	return t, nil
}

// ListTargets returns every target, or one year's when year is non-zero.
func (l *Ledger) ListTargets(ctx context.Context, identity core.User, year int) ([]core.Target, error) {
	if err := policy.Allow(identity, policy.Targets, policy.Read); err != nil {
		return nil, err
	}
	var rows []core.Target
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.FindTargets(ctx, store.Filter{Year: year})
		return err
	})
	if err != nil {
		return nil, core.StoreFailure("list targets", err)
	}
	return rows, nil
}
