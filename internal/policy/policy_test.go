package policy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bottega/internal/core"
	"bottega/internal/store"
	"bottega/internal/store/memory"
	"bottega/internal/store/storetest"
)

var (
	admin   = core.User{ID: 1, Role: core.RoleAdmin}
	manager = core.User{ID: 2, Role: core.RoleShiftManager}
	worker  = core.User{ID: 3, Role: core.RoleWorker}
	other   = core.User{ID: 4, Role: core.RoleWorker}
)

func TestAllow(t *testing.T) {
	cases := []struct {
		name string
		user core.User
		res  Resource
		act  Action
		want core.ErrorKind
	}{
		{"worker reads dashboard", worker, Dashboard, Read, ""},
		{"worker writes sales", worker, Sales, Write, ""},
		{"worker reads expenses", worker, Expenses, Read, core.KindForbidden},
		{"manager reads expenses", manager, Expenses, Read, ""},
		{"manager writes expenses", manager, Expenses, Write, core.KindForbidden},
		{"admin writes expenses", admin, Expenses, Write, ""},
		{"worker writes categories", worker, Categories, Write, core.KindForbidden},
		{"worker reads categories", worker, Categories, Read, ""},
		{"manager reads users", manager, Users, Read, core.KindForbidden},
		{"admin writes targets", admin, Targets, Write, ""},
		{"worker writes targets", worker, Targets, Write, core.KindForbidden},
		{"nobody", core.User{}, Dashboard, Read, core.KindUnauthenticated},
		{"dashboard is read only", admin, Dashboard, Write, core.KindForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Allow(tc.user, tc.res, tc.act)
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, core.IsKind(err, tc.want), "got %v", err)
		})
	}
}

func TestRowOwnership(t *testing.T) {
	sale := core.Sale{UserID: worker.ID}
	shift := core.Shift{UserID: worker.ID}

	assert.True(t, CanWriteSale(worker, sale))
	assert.True(t, CanWriteSale(admin, sale))
	assert.False(t, CanWriteSale(other, sale))
	assert.False(t, CanWriteSale(manager, sale))
	assert.False(t, CanReadSale(manager, sale))

	assert.True(t, CanWriteShift(worker, shift))
	assert.True(t, CanWriteShift(manager, shift))
	assert.True(t, CanReadShift(admin, shift))
	assert.False(t, CanWriteShift(other, shift))
	assert.False(t, CanReadShift(other, shift))
}

func TestOwnerResolution(t *testing.T) {
	id, err := SaleOwner(worker, 0)
	require.NoError(t, err)
	assert.Equal(t, worker.ID, id)

	_, err = SaleOwner(worker, other.ID)
	assert.True(t, core.IsKind(err, core.KindForbidden))

	_, err = SaleOwner(manager, other.ID)
	assert.True(t, core.IsKind(err, core.KindForbidden))

	id, err = SaleOwner(admin, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, id)

	id, err = ShiftOwner(manager, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, id)

	_, err = ShiftOwner(worker, other.ID)
	assert.True(t, core.IsKind(err, core.KindForbidden))
}

func TestScopes(t *testing.T) {
	f := store.Filter{UserID: other.ID}
	assert.Equal(t, worker.ID, SaleScope(worker, f).UserID)
	assert.Equal(t, other.ID, SaleScope(admin, f).UserID)
	assert.Equal(t, manager.ID, SaleScope(manager, store.Filter{}).UserID)
	assert.Equal(t, int64(0), ShiftScope(manager, store.Filter{}).UserID)
	assert.Equal(t, worker.ID, ShiftScope(worker, store.Filter{}).UserID)
}

func seeded(t *testing.T) (store.Store, storetest.Fixture) {
	t.Helper()
	s := memory.New()
	return s, storetest.Seed(t, s)
}

func TestNormalizeSale(t *testing.T) {
	s, f := seeded(t)
	ctx := context.Background()
	day := core.NewDate(2025, 1, 10)
	candidate := core.Sale{UserID: f.Worker, CategoryID: f.Income, Amount: core.Money{Cents: 100}, Date: day}

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		n, err := NormalizeSale(ctx, tx, candidate)
		require.NoError(t, err)
		assert.False(t, n.Updated)
		_, err = tx.InsertSale(ctx, candidate)
		return err
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		n, err := NormalizeSale(ctx, tx, candidate)
		require.NoError(t, err)
		assert.True(t, n.Updated)
		assert.NotZero(t, n.ID)

		otherDay := candidate
		otherDay.Date = core.NewDate(2025, 1, 11)
		n, err = NormalizeSale(ctx, tx, otherDay)
		require.NoError(t, err)
		assert.False(t, n.Updated)
		return nil
	}))
}

func TestCheckKeyFree(t *testing.T) {
	s, f := seeded(t)
	ctx := context.Background()

	var first, second int64
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		var err error
		first, err = tx.InsertShift(ctx, core.Shift{UserID: f.Worker, Date: core.NewDate(2025, 1, 10), Hours: decimal.NewFromInt(8)})
		if err != nil {
			return err
		}
		second, err = tx.InsertShift(ctx, core.Shift{UserID: f.Worker, Date: core.NewDate(2025, 1, 11), Hours: decimal.NewFromInt(8)})
		return err
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		moved := core.Shift{ID: second, UserID: f.Worker, Date: core.NewDate(2025, 1, 10)}
		err := CheckShiftKeyFree(ctx, tx, moved)
		assert.True(t, core.IsKind(err, core.KindValidation), "got %v", err)

		same := core.Shift{ID: first, UserID: f.Worker, Date: core.NewDate(2025, 1, 10)}
		assert.NoError(t, CheckShiftKeyFree(ctx, tx, same))
		return nil
	}))
}

func TestCategoryTypeChecks(t *testing.T) {
	s, f := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		assert.NoError(t, CheckSaleCategory(ctx, tx, f.Income))
		assert.NoError(t, CheckExpenseCategory(ctx, tx, f.Supplies))
		assert.NoError(t, CheckExpenseCategory(ctx, tx, f.Rent))
		assert.NoError(t, CheckExpenseCategory(ctx, tx, f.Ops))

		err := CheckSaleCategory(ctx, tx, f.Rent)
		var ce *core.Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, core.KindValidation, ce.Kind)
		assert.Equal(t, core.CodeInvalidCategoryType, ce.Code)

		err = CheckExpenseCategory(ctx, tx, f.Income)
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, core.CodeInvalidCategoryType, ce.Code)

		err = CheckSaleCategory(ctx, tx, 999)
		assert.True(t, core.IsKind(err, core.KindValidation))

		missing := int64(999)
		assert.True(t, core.IsKind(CheckSupplier(ctx, tx, &missing), core.KindValidation))
		assert.NoError(t, CheckSupplier(ctx, tx, nil))
		assert.NoError(t, CheckSupplier(ctx, tx, &f.Supplier))
		return nil
	}))
}

func TestDeleteGuards(t *testing.T) {
	s, f := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		assert.NoError(t, CheckCategoryDelete(ctx, tx, f.Income))
		assert.NoError(t, CheckSupplierDelete(ctx, tx, f.Supplier))
		assert.NoError(t, CheckUserDelete(ctx, tx, core.User{ID: f.Admin, Role: core.RoleAdmin}, f.Worker))
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		supplier := f.Supplier
		if _, err := tx.InsertSale(ctx, core.Sale{UserID: f.Worker, CategoryID: f.Income, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 1)}); err != nil {
			return err
		}
		if _, err := tx.InsertShift(ctx, core.Shift{UserID: f.Worker, Date: core.NewDate(2025, 1, 1), Hours: decimal.NewFromInt(1)}); err != nil {
			return err
		}
		_, err := tx.InsertExpense(ctx, core.Expense{CategoryID: f.Supplies, SupplierID: &supplier, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 1)})
		return err
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var ce *core.Error

		err := CheckCategoryDelete(ctx, tx, f.Income)
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, core.KindReferentialConflict, ce.Kind)
		assert.Equal(t, []string{"sales"}, ce.Blockers)

		err = CheckCategoryDelete(ctx, tx, f.Supplies)
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"expenses"}, ce.Blockers)

		assert.NoError(t, CheckCategoryDelete(ctx, tx, f.Rent))

		err = CheckSupplierDelete(ctx, tx, f.Supplier)
		assert.True(t, core.IsKind(err, core.KindReferentialConflict))

		identity := core.User{ID: f.Admin, Role: core.RoleAdmin}
		err = CheckUserDelete(ctx, tx, identity, f.Worker)
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"sales", "shifts"}, ce.Blockers)

		err = CheckUserDelete(ctx, tx, identity, f.Admin)
		assert.True(t, core.IsKind(err, core.KindSelfDeletion))
		return nil
	}))
}

func TestCheckCategoryRetype(t *testing.T) {
	s, f := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertExpense(ctx, core.Expense{CategoryID: f.Rent, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 1)})
		return err
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		rent := core.Category{ID: f.Rent, Name: "Rent", Type: core.CategoryExpenseFixed}

		toOps := rent
		toOps.Type = core.CategoryExpenseOperational
		assert.NoError(t, CheckCategoryRetype(ctx, tx, rent, toOps))

		toIncome := rent
		toIncome.Type = core.CategoryIncome
		assert.True(t, core.IsKind(CheckCategoryRetype(ctx, tx, rent, toIncome), core.KindReferentialConflict))

		unused := core.Category{ID: f.Income, Name: "Dog food", Type: core.CategoryIncome}
		retyped := unused
		retyped.Type = core.CategoryExpenseFixed
		assert.NoError(t, CheckCategoryRetype(ctx, tx, unused, retyped))
		return nil
	}))
}
