package services

import (
	"context"

	"bottega/internal/amqp"
	"bottega/internal/core"
	"bottega/internal/policy"
	"bottega/internal/store"
)

func (l *Ledger) CreateExpense(ctx context.Context, identity core.User, in core.Expense) (int64, error) {
	if err := policy.Allow(identity, policy.Expenses, policy.Write); err != nil {
		return 0, err
	}
	in.ID = 0
	if err := in.Validate(); err != nil {
		return 0, err
	}
	err := l.store.Update(ctx, func(tx store.Tx) error {
		if err := checkExpenseRefs(ctx, tx, in); err != nil {
			return err
		}
		var err error
		in.ID, err = tx.InsertExpense(ctx, in)
		return err
	})
	if err != nil {
		return 0, translate("expense", 0, err)
	}
	l.committed(ctx, change{collection: store.Expenses, id: in.ID, op: amqp.OpCreate, dates: []core.Date{in.Date}})
	return in.ID, nil
}

func (l *Ledger) UpdateExpense(ctx context.Context, identity core.User, in core.Expense) error {
	if err := policy.Allow(identity, policy.Expenses, policy.Write); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	var before core.Expense
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if before, err = tx.GetExpense(ctx, in.ID); err != nil {
			return err
		}
		if err := checkExpenseRefs(ctx, tx, in); err != nil {
			return err
		}
		return tx.UpdateExpense(ctx, in)
	})
	if err != nil {
		return translate("expense", in.ID, err)
	}
	l.committed(ctx, change{collection: store.Expenses, id: in.ID, op: amqp.OpUpdate, dates: []core.Date{before.Date, in.Date}})
	return nil
}

func checkExpenseRefs(ctx context.Context, tx store.Tx, e core.Expense) error {
	if err := policy.CheckExpenseCategory(ctx, tx, e.CategoryID); err != nil {
		return err
	}
	return policy.CheckSupplier(ctx, tx, e.SupplierID)
}

func (l *Ledger) DeleteExpense(ctx context.Context, identity core.User, id int64) error {
	if err := policy.Allow(identity, policy.Expenses, policy.Write); err != nil {
		return err
	}
	var existing core.Expense
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if existing, err = tx.GetExpense(ctx, id); err != nil {
			return err
		}
		return tx.DeleteExpense(ctx, id)
	})
	if err != nil {
		return translate("expense", id, err)
	}
	l.committed(ctx, change{collection: store.Expenses, id: id, op: amqp.OpDelete, dates: []core.Date{existing.Date}})
	return nil
}

// ListExpenses returns matching expenses newest first. A CategoryType in
// the filter keeps only expenses booked under categories of that type.
func (l *Ledger) ListExpenses(ctx context.Context, identity core.User, f store.Filter) ([]core.Expense, error) {
	if err := policy.Allow(identity, policy.Expenses, policy.Read); err != nil {
		return nil, err
	}
	var rows []core.Expense
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		if rows, err = tx.FindExpenses(ctx, f); err != nil {
			return err
		}
		if f.CategoryType == "" {
			return nil
		}
		categories, err := tx.FindCategories(ctx, store.Filter{CategoryType: f.CategoryType})
		if err != nil {
			return err
		}
		keep := make(map[int64]bool, len(categories))
		for _, c := range categories {
			keep[c.ID] = true
		}
		filtered := rows[:0]
		for _, e := range rows {
			if keep[e.CategoryID] {
				filtered = append(filtered, e)
			}
		}
		rows = filtered
		return nil
	})
	if err != nil {
		return nil, core.StoreFailure("list expenses", err)
	}
	return newestFirst(rows), nil
}

func (l *Ledger) CreateCategory(ctx context.Context, identity core.User, in core.Category) (int64, error) {
	if err := policy.Allow(identity, policy.Categories, policy.Write); err != nil {
		return 0, err
	}
	if err := in.Validate(); err != nil {
		return 0, err
	}
	in.ID = 0
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		in.ID, err = tx.InsertCategory(ctx, in)
		return err
	})
	if err != nil {
		return 0, translate("category", 0, err)
	}
	l.committed(ctx, change{collection: store.Categories, id: in.ID, op: amqp.OpCreate})
	return in.ID, nil
}

// UpdateCategory renames or retypes a category. Retyping across the
// income/expense boundary is refused while rows use the category.
func (l *Ledger) UpdateCategory(ctx context.Context, identity core.User, in core.Category) error {
	if err := policy.Allow(identity, policy.Categories, policy.Write); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	err := l.store.Update(ctx, func(tx store.Tx) error {
		before, err := tx.GetCategory(ctx, in.ID)
		if err != nil {
			return err
		}
		if err := policy.CheckCategoryRetype(ctx, tx, before, in); err != nil {
			return err
		}
		return tx.UpdateCategory(ctx, in)
	})
	if err != nil {
		return translate("category", in.ID, err)
	}
	l.committed(ctx, change{collection: store.Categories, id: in.ID, op: amqp.OpUpdate})
	return nil
}

func (l *Ledger) DeleteCategory(ctx context.Context, identity core.User, id int64) error {
	if err := policy.Allow(identity, policy.Categories, policy.Write); err != nil {
		return err
	}
	err := l.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetCategory(ctx, id); err != nil {
			return err
		}
		if err := policy.CheckCategoryDelete(ctx, tx, id); err != nil {
			return err
		}
		return tx.DeleteCategory(ctx, id)
	})
	if err != nil {
		return translate("category", id, err)
	}
	l.committed(ctx, change{collection: store.Categories, id: id, op: amqp.OpDelete})
	return nil
}

// ListCategories honours Filter.CategoryType.
func (l *Ledger) ListCategories(ctx context.Context, identity core.User, f store.Filter) ([]core.Category, error) {
	if err := policy.Allow(identity, policy.Categories, policy.Read); err != nil {
		return nil, err
	}
	var rows []core.Category
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.FindCategories(ctx, f)
		return err
	})
	if err != nil {
		return nil, core.StoreFailure("list categories", err)
	}
	return rows, nil
}

func (l *Ledger) CreateSupplier(ctx context.Context, identity core.User, in core.Supplier) (int64, error) {
	if err := policy.Allow(identity, policy.Suppliers, policy.Write); err != nil {
		return 0, err
	}
	if err := in.Validate(); err != nil {
		return 0, err
	}
	in.ID = 0
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		in.ID, err = tx.InsertSupplier(ctx, in)
		return err
	})
	if err != nil {
		return 0, translate("supplier", 0, err)
	}
	l.committed(ctx, change{collection: store.Suppliers, id: in.ID, op: amqp.OpCreate})
	return in.ID, nil
}

func (l *Ledger) UpdateSupplier(ctx context.Context, identity core.User, in core.Supplier) error {
	if err := policy.Allow(identity, policy.Suppliers, policy.Write); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	err := l.store.Update(ctx, func(tx store.Tx) error {
		return tx.UpdateSupplier(ctx, in)
	})
	if err != nil {
		return translate("supplier", in.ID, err)
	}
	l.committed(ctx, change{collection: store.Suppliers, id: in.ID, op: amqp.OpUpdate})
	return nil
}

func (l *Ledger) DeleteSupplier(ctx context.Context, identity core.User, id int64) error {
	if err := policy.Allow(identity, policy.Suppliers, policy.Write); err != nil {
		return err
	}
	err := l.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.GetSupplier(ctx, id); err != nil {
			return err
		}
		if err := policy.CheckSupplierDelete(ctx, tx, id); err != nil {
			return err
		}
		return tx.DeleteSupplier(ctx, id)
	})
	if err != nil {
		return translate("supplier", id, err)
	}
	l.committed(ctx, change{collection: store.Suppliers, id: id, op: amqp.OpDelete})
	return nil
}

func (l *Ledger) ListSuppliers(ctx context.Context, identity core.User) ([]core.Supplier, error) {
	if err := policy.Allow(identity, policy.Suppliers, policy.Read); err != nil {
		return nil, err
	}
	var rows []core.Supplier
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.FindSuppliers(ctx, store.Filter{})
		return err
	})
	if err != nil {
		return nil, core.StoreFailure("list suppliers", err)
	}
	return rows, nil
}
