package services

import (
	"context"

	"bottega/internal/amqp"
	"bottega/internal/core"
	"bottega/internal/policy"
	"bottega/internal/store"
)

// SubmitSale records the caller's takings for one income category and
// day. Resubmitting the same (user, category, date) updates amount and
// notes in place.
func (l *Ledger) SubmitSale(ctx context.Context, identity core.User, in core.Sale) (SubmitResult, error) {
	if err := policy.Allow(identity, policy.Sales, policy.Write); err != nil {
		return SubmitResult{}, err
	}
	owner, err := policy.SaleOwner(identity, in.UserID)
	if err != nil {
		return SubmitResult{}, err
	}
	in.UserID = owner
	in.ID = 0
	if err := in.Validate(); err != nil {
		return SubmitResult{}, err
	}

	var res SubmitResult
	err = l.store.Update(ctx, func(tx store.Tx) error {
		if owner != identity.ID {
			if _, err := policy.CheckUserExists(ctx, tx, owner); err != nil {
				return err
			}
		}
		if err := policy.CheckSaleCategory(ctx, tx, in.CategoryID); err != nil {
			return err
		}
		n, err := policy.NormalizeSale(ctx, tx, in)
		if err != nil {
			return err
		}
		if n.Updated {
			in.ID = n.ID
			res = SubmitResult{ID: n.ID, Updated: true}
			return tx.UpdateSale(ctx, in)
		}
		id, err := tx.InsertSale(ctx, in)
		res = SubmitResult{ID: id}
		return err
	})
	if err != nil {
		return SubmitResult{}, translate("sale", in.ID, err)
	}

	op := amqp.OpCreate
	if res.Updated {
		op = amqp.OpUpdate
	}
	l.committed(ctx, change{collection: store.Sales, id: res.ID, op: op, dates: []core.Date{in.Date}})
	return res, nil
}

// UpdateSale rewrites an existing sale. Leaving UserID zero keeps the
// current owner.
func (l *Ledger) UpdateSale(ctx context.Context, identity core.User, in core.Sale) error {
	if err := policy.Allow(identity, policy.Sales, policy.Write); err != nil {
		return err
	}

	var before core.Sale
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if before, err = tx.GetSale(ctx, in.ID); err != nil {
			return err
		}
		if !policy.CanWriteSale(identity, before) {
			return core.Forbidden("sale %d belongs to another user", in.ID)
		}
		if in.UserID == 0 {
			in.UserID = before.UserID
		}
		if in.UserID != before.UserID {
			if _, err := policy.SaleOwner(identity, in.UserID); err != nil {
				return err
			}
			if _, err := policy.CheckUserExists(ctx, tx, in.UserID); err != nil {
				return err
			}
		}
		if err := in.Validate(); err != nil {
			return err
		}
		if err := policy.CheckSaleCategory(ctx, tx, in.CategoryID); err != nil {
			return err
		}
		if err := policy.CheckSaleKeyFree(ctx, tx, in); err != nil {
			return err
		}
		return tx.UpdateSale(ctx, in)
	})
	if err != nil {
		return translate("sale", in.ID, err)
	}
	l.committed(ctx, change{collection: store.Sales, id: in.ID, op: amqp.OpUpdate, dates: []core.Date{before.Date, in.Date}})
	return nil
}

func (l *Ledger) DeleteSale(ctx context.Context, identity core.User, id int64) error {
	if err := policy.Allow(identity, policy.Sales, policy.Write); err != nil {
		return err
	}
	var existing core.Sale
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if existing, err = tx.GetSale(ctx, id); err != nil {
			return err
		}
		if !policy.CanWriteSale(identity, existing) {
			return core.Forbidden("sale %d belongs to another user", id)
		}
		return tx.DeleteSale(ctx, id)
	})
	if err != nil {
		return translate("sale", id, err)
	}
	l.committed(ctx, change{collection: store.Sales, id: id, op: amqp.OpDelete, dates: []core.Date{existing.Date}})
	return nil
}

// ListSales returns matching sales newest first. Non-admins only ever see
// their own rows whatever the filter asks for.
func (l *Ledger) ListSales(ctx context.Context, identity core.User, f store.Filter) ([]core.Sale, error) {
	if err := policy.Allow(identity, policy.Sales, policy.Read); err != nil {
		return nil, err
	}
	f = policy.SaleScope(identity, f)
	var rows []core.Sale
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.FindSales(ctx, f)
		return err
	})
	if err != nil {
		return nil, core.StoreFailure("list sales", err)
	}
	return newestFirst(rows), nil
}

// SubmitShift records hours worked on one day. A second submission for
// the same (user, date) overwrites the hours.
func (l *Ledger) SubmitShift(ctx context.Context, identity core.User, in core.Shift) (SubmitResult, error) {
	if err := policy.Allow(identity, policy.Shifts, policy.Write); err != nil {
		return SubmitResult{}, err
	}
	owner, err := policy.ShiftOwner(identity, in.UserID)
	if err != nil {
		return SubmitResult{}, err
	}
	in.UserID = owner
	in.ID = 0
	if err := in.Validate(); err != nil {
		return SubmitResult{}, err
	}

	var res SubmitResult
	err = l.store.Update(ctx, func(tx store.Tx) error {
		if owner != identity.ID {
			if _, err := policy.CheckUserExists(ctx, tx, owner); err != nil {
				return err
			}
		}
		n, err := policy.NormalizeShift(ctx, tx, in)
		if err != nil {
			return err
		}
		if n.Updated {
			in.ID = n.ID
			res = SubmitResult{ID: n.ID, Updated: true}
			return tx.UpdateShift(ctx, in)
		}
		id, err := tx.InsertShift(ctx, in)
		res = SubmitResult{ID: id}
		return err
	})
	if err != nil {
		return SubmitResult{}, translate("shift", in.ID, err)
	}

	op := amqp.OpCreate
	if res.Updated {
		op = amqp.OpUpdate
	}
	l.committed(ctx, change{collection: store.Shifts, id: res.ID, op: op, dates: []core.Date{in.Date}})
	return res, nil
}

func (l *Ledger) UpdateShift(ctx context.Context, identity core.User, in core.Shift) error {
	if err := policy.Allow(identity, policy.Shifts, policy.Write); err != nil {
		return err
	}

	var before core.Shift
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if before, err = tx.GetShift(ctx, in.ID); err != nil {
			return err
		}
		if !policy.CanWriteShift(identity, before) {
			return core.Forbidden("shift %d belongs to another user", in.ID)
		}
		if in.UserID == 0 {
			in.UserID = before.UserID
		}
		if in.UserID != before.UserID {
			if _, err := policy.ShiftOwner(identity, in.UserID); err != nil {
				return err
			}
			if _, err := policy.CheckUserExists(ctx, tx, in.UserID); err != nil {
				return err
			}
		}
		if err := in.Validate(); err != nil {
			return err
		}
		if err := policy.CheckShiftKeyFree(ctx, tx, in); err != nil {
			return err
		}
		return tx.UpdateShift(ctx, in)
	})
	if err != nil {
		return translate("shift", in.ID, err)
	}
	l.committed(ctx, change{collection: store.Shifts, id: in.ID, op: amqp.OpUpdate, dates: []core.Date{before.Date, in.Date}})
	return nil
}

func (l *Ledger) DeleteShift(ctx context.Context, identity core.User, id int64) error {
	if err := policy.Allow(identity, policy.Shifts, policy.Write); err != nil {
		return err
	}
	var existing core.Shift
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if existing, err = tx.GetShift(ctx, id); err != nil {
			return err
		}
		if !policy.CanWriteShift(identity, existing) {
			return core.Forbidden("shift %d belongs to another user", id)
		}
		return tx.DeleteShift(ctx, id)
	})
	if err != nil {
		return translate("shift", id, err)
	}
	l.committed(ctx, change{collection: store.Shifts, id: id, op: amqp.OpDelete, dates: []core.Date{existing.Date}})
	return nil
}

// ListShifts returns matching shifts newest first. Workers only see their
// own.
func (l *Ledger) ListShifts(ctx context.Context, identity core.User, f store.Filter) ([]core.Shift, error) {
	if err := policy.Allow(identity, policy.Shifts, policy.Read); err != nil {
		return nil, err
	}
	f = policy.ShiftScope(identity, f)
	var rows []core.Shift
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.FindShifts(ctx, f)
		return err
	})
	if err != nil {
		return nil, core.StoreFailure("list shifts", err)
	}
	return newestFirst(rows), nil
}
