// Package storetest holds the behavior every store.Store implementation must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bottega/internal/core"
	"bottega/internal/store"
)

// Opener returns a fresh, empty store. Run closes it.
type Opener func(t *testing.T) store.Store

func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"InsertGetUpdateDelete", testCRUD},
		{"FindFiltersAndOrder", testFind},
		{"NaturalKeysAreUnique", testUnique},
		{"FailedUpdateRollsBack", testRollback},
		{"ViewIsReadOnly", testViewReadOnly},
		{"ViewSeesCommittedSnapshot", testSnapshot},
		{"ConcurrentUpdatesSerialize", testConcurrentUpdates},
		{"Count", testCount},
		{"NullableSupplier", testNullableSupplier},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

// Fixture holds ids created by Seed.
type Fixture struct {
	Admin, Worker               int64
	Income, Supplies, Rent, Ops int64
	Supplier                    int64
}

// Seed inserts a small reference data set.
func Seed(t *testing.T, s store.Store) Fixture {
	t.Helper()
	var f Fixture
	err := s.Update(context.Background(), func(tx store.Tx) error {
		ctx := context.Background()
		var err error
		if f.Admin, err = tx.InsertUser(ctx, core.User{Username: "admin", PasswordHash: "x", Name: "Admin", Role: core.RoleAdmin}); err != nil {
			return err
		}
		if f.Worker, err = tx.InsertUser(ctx, core.User{Username: "dana", PasswordHash: "x", Name: "Dana", Role: core.RoleWorker, HourlyRate: core.Money{Cents: 2500}}); err != nil {
			return err
		}
		if f.Income, err = tx.InsertCategory(ctx, core.Category{Name: "Dog food", Type: core.CategoryIncome}); err != nil {
			return err
		}
		if f.Supplies, err = tx.InsertCategory(ctx, core.Category{Name: "Stock", Type: core.CategoryExpenseSupplier}); err != nil {
			return err
		}
		if f.Rent, err = tx.InsertCategory(ctx, core.Category{Name: "Rent", Type: core.CategoryExpenseFixed}); err != nil {
			return err
		}
		if f.Ops, err = tx.InsertCategory(ctx, core.Category{Name: "Repairs", Type: core.CategoryExpenseOperational}); err != nil {
			return err
		}
		f.Supplier, err = tx.InsertSupplier(ctx, core.Supplier{Name: "Main supplier", Phone: "555"})
		return err
	})
	require.NoError(t, err)
	return f
}

func testCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)

	var id int64
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		var err error
		id, err = tx.InsertSale(ctx, core.Sale{UserID: f.Worker, CategoryID: f.Income, Amount: core.Money{Cents: 1000}, Date: core.NewDate(2025, 1, 10), Notes: "a"})
		return err
	}))
	require.NotZero(t, id)

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		sale, err := tx.GetSale(ctx, id)
		if err != nil {
			return err
		}
		sale.Amount = core.Money{Cents: 1500}
		return tx.UpdateSale(ctx, sale)
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		sale, err := tx.GetSale(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1500), sale.Amount.Cents)
		assert.Equal(t, "2025-01-10", sale.Date.String())
		assert.Equal(t, "a", sale.Notes)
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.DeleteSale(ctx, id) }))

	err := s.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetSale(ctx, id)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, func(tx store.Tx) error { return tx.DeleteSale(ctx, id) })
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.UpdateCategory(ctx, core.Category{ID: 999, Name: "x", Type: core.CategoryIncome})
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFind(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		rows := []core.Sale{
			{UserID: f.Worker, CategoryID: f.Income, Amount: core.Money{Cents: 300}, Date: core.NewDate(2025, 2, 1)},
			{UserID: f.Admin, CategoryID: f.Income, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 31)},
			{UserID: f.Worker, CategoryID: f.Income, Amount: core.Money{Cents: 200}, Date: core.NewDate(2025, 1, 1)},
			{UserID: f.Admin, CategoryID: f.Income, Amount: core.Money{Cents: 50}, Date: core.NewDate(2024, 12, 31)},
		}
		for _, r := range rows {
			if _, err := tx.InsertSale(ctx, r); err != nil {
				return err
			}
		}
		_, err := tx.InsertShift(ctx, core.Shift{UserID: f.Worker, Date: core.NewDate(2025, 1, 5), Hours: decimal.RequireFromString("7.5")})
		return err
	}))

	jan, err := store.InMonth(2025, 1)
	require.NoError(t, err)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		sales, err := tx.FindSales(ctx, jan)
		require.NoError(t, err)
		require.Len(t, sales, 2)
		assert.Equal(t, "2025-01-01", sales[0].Date.String())
		assert.Equal(t, "2025-01-31", sales[1].Date.String())

		mine := jan
		mine.UserID = f.Worker
		sales, err = tx.FindSales(ctx, mine)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, int64(200), sales[0].Amount.Cents)

		sales, err = tx.FindSales(ctx, store.Filter{Date: core.NewDate(2024, 12, 31)})
		require.NoError(t, err)
		require.Len(t, sales, 1)

		shifts, err := tx.FindShifts(ctx, jan)
		require.NoError(t, err)
		require.Len(t, shifts, 1)
		assert.True(t, shifts[0].Hours.Equal(decimal.RequireFromString("7.5")))

		cats, err := tx.FindCategories(ctx, store.Filter{CategoryType: core.CategoryExpenseFixed})
		require.NoError(t, err)
		require.Len(t, cats, 1)
		assert.Equal(t, "Rent", cats[0].Name)

		users, err := tx.FindUsers(ctx, store.Filter{Username: "DANA"})
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, f.Worker, users[0].ID)
		assert.Equal(t, int64(2500), users[0].HourlyRate.Cents)
		return nil
	}))
}

func testUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	day := core.NewDate(2025, 1, 10)

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertSale(ctx, core.Sale{UserID: f.Worker, CategoryID: f.Income, Amount: core.Money{Cents: 100}, Date: day})
		return err
	}))
	err := s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertSale(ctx, core.Sale{UserID: f.Worker, CategoryID: f.Income, Amount: core.Money{Cents: 200}, Date: day})
		return err
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertShift(ctx, core.Shift{UserID: f.Worker, Date: day, Hours: decimal.NewFromInt(8)})
		return err
	}))
	err = s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertShift(ctx, core.Shift{UserID: f.Worker, Date: day, Hours: decimal.NewFromInt(6)})
		return err
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	err = s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertUser(ctx, core.User{Username: "Dana", PasswordHash: "x", Name: "Other", Role: core.RoleWorker})
		return err
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	target := core.Target{Year: 2025, Month: 1, ProductCostPercent: decimal.NewFromInt(30), LaborCostPercent: decimal.NewFromInt(28)}
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertTarget(ctx, target)
		return err
	}))
	err = s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertTarget(ctx, target)
		return err
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		n, err := tx.Count(ctx, store.Sales, store.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = tx.Count(ctx, store.Shifts, store.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}))
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)

	err := s.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.InsertSupplier(ctx, core.Supplier{Name: "Temp"}); err != nil {
			return err
		}
		return tx.DeleteCategory(ctx, 12345)
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		suppliers, err := tx.FindSuppliers(ctx, store.Filter{})
		require.NoError(t, err)
		require.Len(t, suppliers, 1)
		assert.Equal(t, f.Supplier, suppliers[0].ID)
		return nil
	}))
}

func testViewReadOnly(t *testing.T, s store.Store) {
	ctx := context.Background()
	err := s.View(ctx, func(tx store.Tx) error {
		_, err := tx.InsertSupplier(ctx, core.Supplier{Name: "nope"})
		return err
	})
	assert.ErrorIs(t, err, store.ErrReadOnly)
}

func testSnapshot(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertExpense(ctx, core.Expense{CategoryID: f.Rent, Amount: core.Money{Cents: 500}, Date: core.NewDate(2025, 1, 3)})
		return err
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		first, err := tx.FindExpenses(ctx, store.Filter{})
		require.NoError(t, err)
		second, err := tx.FindExpenses(ctx, store.Filter{})
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Len(t, first, 1)
		return nil
	}))
}

func testConcurrentUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)
	day := core.NewDate(2025, 3, 1)

	// Every writer checks for the row first; only one may insert.
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			err := s.Update(ctx, func(tx store.Tx) error {
				existing, ok, err := store.First(tx.FindSales(ctx, store.Filter{UserID: f.Worker, CategoryID: f.Income, Date: day}))
				if err != nil {
					return err
				}
				if ok {
					existing.Amount = core.Money{Cents: amount}
					return tx.UpdateSale(ctx, existing)
				}
				_, err = tx.InsertSale(ctx, core.Sale{UserID: f.Worker, CategoryID: f.Income, Amount: core.Money{Cents: amount}, Date: day})
				return err
			})
			assert.NoError(t, err)
		}(int64(100 + i))
	}
	wg.Wait()

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		n, err := tx.Count(ctx, store.Sales, store.Filter{Date: day})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}))
}

func testCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		supplier := f.Supplier
		for day := 1; day <= 3; day++ {
			if _, err := tx.InsertExpense(ctx, core.Expense{CategoryID: f.Supplies, SupplierID: &supplier, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, day)}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		n, err := tx.Count(ctx, store.Expenses, store.Filter{SupplierID: f.Supplier})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		n, err = tx.Count(ctx, store.Expenses, store.Filter{CategoryID: f.Rent})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		n, err = tx.Count(ctx, store.Sales, store.Filter{CategoryID: f.Supplies})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		n, err = tx.Count(ctx, store.Users, store.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	}))
}

func testNullableSupplier(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Seed(t, s)

	var withID, withoutID int64
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		supplier := f.Supplier
		var err error
		if withID, err = tx.InsertExpense(ctx, core.Expense{CategoryID: f.Supplies, SupplierID: &supplier, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 1)}); err != nil {
			return err
		}
		withoutID, err = tx.InsertExpense(ctx, core.Expense{CategoryID: f.Ops, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 1)})
		return err
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		e, err := tx.GetExpense(ctx, withID)
		require.NoError(t, err)
		require.NotNil(t, e.SupplierID)
		assert.Equal(t, f.Supplier, *e.SupplierID)

		e, err = tx.GetExpense(ctx, withoutID)
		require.NoError(t, err)
		assert.Nil(t, e.SupplierID)
		return nil
	}))
}
