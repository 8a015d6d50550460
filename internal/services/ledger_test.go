package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bottega/internal/amqp"
	"bottega/internal/cache"
	"bottega/internal/core"
	"bottega/internal/storage"
	"bottega/internal/store"
	"bottega/internal/store/memory"
	"bottega/internal/store/storetest"
)

type recorder struct {
	mu   sync.Mutex
	msgs []amqp.LedgerChangedMessage
}

func (r *recorder) PublishLedgerChanged(_ context.Context, msg *amqp.LedgerChangedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, *msg)
	return nil
}

func (r *recorder) messages() []amqp.LedgerChangedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]amqp.LedgerChangedMessage(nil), r.msgs...)
}

type env struct {
	ledger *Ledger
	store  store.Store
	fix    storetest.Fixture
	admin  core.User
	worker core.User
	events *recorder
}

func newEnv(t *testing.T, s store.Store) *env {
	t.Helper()
	fix := storetest.Seed(t, s)
	e := &env{store: s, fix: fix, events: &recorder{}}
	e.ledger = NewLedger(s, WithSummaryCache(cache.NewSummaries(16, time.Hour)), WithPublisher(e.events))
	require.NoError(t, s.View(context.Background(), func(tx store.Tx) error {
		var err error
		if e.admin, err = tx.GetUser(context.Background(), fix.Admin); err != nil {
			return err
		}
		e.worker, err = tx.GetUser(context.Background(), fix.Worker)
		return err
	}))
	return e
}

// backends runs fn once per store implementation.
func backends(t *testing.T, fn func(t *testing.T, e *env)) {
	t.Run("memory", func(t *testing.T) {
		s := memory.New()
		t.Cleanup(func() { s.Close() })
		fn(t, newEnv(t, s))
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := storage.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "bottega.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, newEnv(t, s))
	})
}

func hours(h int64) decimal.Decimal { return decimal.NewFromInt(h) }

func TestShiftResubmissionOverwritesHours(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		day := core.NewDate(2025, 3, 4)

		first, err := e.ledger.SubmitShift(ctx, e.worker, core.Shift{Date: day, Hours: hours(8)})
		require.NoError(t, err)
		assert.False(t, first.Updated)

		second, err := e.ledger.SubmitShift(ctx, e.worker, core.Shift{Date: day, Hours: hours(6)})
		require.NoError(t, err)
		assert.True(t, second.Updated)
		assert.Equal(t, first.ID, second.ID)

		rows, err := e.ledger.ListShifts(ctx, e.worker, store.Filter{Date: day})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Hours.Equal(hours(6)))
	})
}

func TestSaleResubmissionIsIdempotentOnKey(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		sale := core.Sale{CategoryID: e.fix.Income, Amount: core.Money{Cents: 10000}, Date: core.NewDate(2025, 3, 4)}

		first, err := e.ledger.SubmitSale(ctx, e.worker, sale)
		require.NoError(t, err)

		sale.Amount = core.Money{Cents: 12000}
		sale.Notes = "corrected"
		second, err := e.ledger.SubmitSale(ctx, e.worker, sale)
		require.NoError(t, err)
		assert.True(t, second.Updated)
		assert.Equal(t, first.ID, second.ID)

		rows, err := e.ledger.ListSales(ctx, e.admin, store.Filter{})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(12000), rows[0].Amount.Cents)
		assert.Equal(t, "corrected", rows[0].Notes)
		assert.Equal(t, e.worker.ID, rows[0].UserID)
	})
}

func TestWorkerCannotActForOthers(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		day := core.NewDate(2025, 3, 4)

		_, err := e.ledger.SubmitSale(ctx, e.worker, core.Sale{UserID: e.admin.ID, CategoryID: e.fix.Income, Amount: core.Money{Cents: 100}, Date: day})
		assert.True(t, core.IsKind(err, core.KindForbidden), "got %v", err)

		_, err = e.ledger.SubmitShift(ctx, e.worker, core.Shift{UserID: e.admin.ID, Date: day, Hours: hours(1)})
		assert.True(t, core.IsKind(err, core.KindForbidden), "got %v", err)

		adminSale, err := e.ledger.SubmitSale(ctx, e.admin, core.Sale{CategoryID: e.fix.Income, Amount: core.Money{Cents: 100}, Date: day})
		require.NoError(t, err)

		err = e.ledger.UpdateSale(ctx, e.worker, core.Sale{ID: adminSale.ID, CategoryID: e.fix.Income, Amount: core.Money{Cents: 1}, Date: day})
		assert.True(t, core.IsKind(err, core.KindForbidden), "got %v", err)
		err = e.ledger.DeleteSale(ctx, e.worker, adminSale.ID)
		assert.True(t, core.IsKind(err, core.KindForbidden), "got %v", err)

		onBehalf, err := e.ledger.SubmitShift(ctx, e.admin, core.Shift{UserID: e.worker.ID, Date: day, Hours: hours(4)})
		require.NoError(t, err)
		assert.False(t, onBehalf.Updated)

		mine, err := e.ledger.ListSales(ctx, e.worker, store.Filter{UserID: e.admin.ID})
		require.NoError(t, err)
		assert.Empty(t, mine)
	})
}

func TestSaleRequiresIncomeCategory(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		_, err := e.ledger.SubmitSale(ctx, e.worker, core.Sale{CategoryID: e.fix.Rent, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 3, 4)})
		var ce *core.Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, core.CodeInvalidCategoryType, ce.Code)

		rows, err := e.ledger.ListSales(ctx, e.admin, store.Filter{})
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.Empty(t, e.events.messages())
	})
}

func TestReferentialDeletes(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		day := core.NewDate(2025, 3, 4)
		_, err := e.ledger.SubmitSale(ctx, e.worker, core.Sale{CategoryID: e.fix.Income, Amount: core.Money{Cents: 100}, Date: day})
		require.NoError(t, err)
		supplier := e.fix.Supplier
		_, err = e.ledger.CreateExpense(ctx, e.admin, core.Expense{CategoryID: e.fix.Supplies, SupplierID: &supplier, Amount: core.Money{Cents: 100}, Date: day})
		require.NoError(t, err)

		var ce *core.Error
		err = e.ledger.DeleteCategory(ctx, e.admin, e.fix.Income)
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, core.KindReferentialConflict, ce.Kind)
		assert.Equal(t, []string{"sales"}, ce.Blockers)

		err = e.ledger.DeleteSupplier(ctx, e.admin, e.fix.Supplier)
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"expenses"}, ce.Blockers)

		err = e.ledger.DeleteUser(ctx, e.admin, e.worker.ID)
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"sales"}, ce.Blockers)

		err = e.ledger.DeleteUser(ctx, e.admin, e.admin.ID)
		assert.True(t, core.IsKind(err, core.KindSelfDeletion), "got %v", err)

		assert.NoError(t, e.ledger.DeleteCategory(ctx, e.admin, e.fix.Ops))
		err = e.ledger.DeleteCategory(ctx, e.admin, e.fix.Ops)
		assert.True(t, core.IsKind(err, core.KindNotFound), "got %v", err)
	})
}

func TestConcurrentSubmitsKeepOneRowPerKey(t *testing.T) {
	const n = 20
	backends(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		day := core.NewDate(2025, 4, 9)

		var wg sync.WaitGroup
		sales := make([]SubmitResult, n)
		shifts := make([]SubmitResult, n)
		errs := make([]error, 2*n)
		for i := range n {
			wg.Add(2)
			go func() {
				defer wg.Done()
				sales[i], errs[i] = e.ledger.SubmitSale(ctx, e.worker, core.Sale{CategoryID: e.fix.Income, Amount: core.Money{Cents: int64(100 * (i + 1))}, Date: day})
			}()
			go func() {
				defer wg.Done()
				shifts[i], errs[n+i] = e.ledger.SubmitShift(ctx, e.worker, core.Shift{Date: day, Hours: hours(int64(i%8 + 1))})
			}()
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		created := 0
		for i := range n {
			if !sales[i].Updated {
				created++
			}
			assert.Equal(t, sales[0].ID, sales[i].ID)
			assert.Equal(t, shifts[0].ID, shifts[i].ID)
		}
		assert.Equal(t, 1, created, "exactly one submission inserts the sale")

		rows, err := e.ledger.ListSales(ctx, e.admin, store.Filter{Date: day})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Positive(t, rows[0].Amount.Cents)
		assert.LessOrEqual(t, rows[0].Amount.Cents, int64(100*n))
		assert.Zero(t, rows[0].Amount.Cents%100)

		shiftRows, err := e.ledger.ListShifts(ctx, e.admin, store.Filter{Date: day})
		require.NoError(t, err)
		require.Len(t, shiftRows, 1)
	})
}

func TestDeleteCategoryRacingSale(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		for round := range 10 {
			id, err := e.ledger.CreateCategory(ctx, e.admin, core.Category{Name: fmt.Sprintf("Grooming %d", round), Type: core.CategoryIncome})
			require.NoError(t, err)

			var wg sync.WaitGroup
			var deleteErr, submitErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				deleteErr = e.ledger.DeleteCategory(ctx, e.admin, id)
			}()
			go func() {
				defer wg.Done()
				_, submitErr = e.ledger.SubmitSale(ctx, e.worker, core.Sale{CategoryID: id, Amount: core.Money{Cents: 500}, Date: core.NewDate(2025, 4, round+1)})
			}()
			wg.Wait()

			rows, err := e.ledger.ListSales(ctx, e.admin, store.Filter{CategoryID: id})
			require.NoError(t, err)
			if submitErr == nil {
				assert.True(t, core.IsKind(deleteErr, core.KindReferentialConflict), "round %d: got %v", round, deleteErr)
				assert.Len(t, rows, 1)
			} else {
				require.NoError(t, deleteErr, "round %d", round)
				assert.True(t, core.IsKind(submitErr, core.KindValidation), "round %d: got %v", round, submitErr)
				assert.Empty(t, rows, "round %d: no sale may point at a deleted category", round)
			}
		}
	})
}

func TestDashboardTargetsAndCache(t *testing.T) {
	backends(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		day := core.NewDate(2025, 3, 4)

		_, err := e.ledger.SubmitSale(ctx, e.worker, core.Sale{CategoryID: e.fix.Income, Amount: core.Money{Cents: 10000}, Date: day})
		require.NoError(t, err)

		summary, err := e.ledger.Dashboard(ctx, e.admin, 2025, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), summary.TotalRevenue.Cents)
		assert.Equal(t, core.StatusNoTarget, summary.Target.ProductCostStatus)
		assert.Equal(t, core.StatusNoTarget, summary.Target.LaborCostStatus)
		assert.Nil(t, summary.Target.RevenueProgress)
		assert.Len(t, summary.SalesByUser, 1)

		_, err = e.ledger.SubmitShift(ctx, e.worker, core.Shift{Date: day, Hours: hours(2)})
		require.NoError(t, err)
		target, err := e.ledger.UpsertTarget(ctx, e.admin, TargetInput{Year: 2025, Month: 3, RevenueTarget: &core.Money{Cents: 40000}})
		require.NoError(t, err)
		assert.True(t, target.ProductCostPercent.Equal(decimal.NewFromInt(30)))
		assert.True(t, target.LaborCostPercent.Equal(decimal.NewFromInt(28)))

		summary, err = e.ledger.Dashboard(ctx, e.admin, 2025, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), summary.LaborCosts.Cents)
		assert.Equal(t, "50", summary.LaborCostPercent.String())
		assert.Equal(t, core.StatusOver, summary.Target.LaborCostStatus)
		assert.Equal(t, core.StatusUnder, summary.Target.ProductCostStatus)
		require.NotNil(t, summary.Target.RevenueProgress)
		assert.Equal(t, "25", summary.Target.RevenueProgress.String())

		forWorker, err := e.ledger.Dashboard(ctx, e.worker, 2025, 3)
		require.NoError(t, err)
		assert.Nil(t, forWorker.SalesByUser)
		assert.Equal(t, summary.TotalRevenue, forWorker.TotalRevenue)

		again, err := e.ledger.Dashboard(ctx, e.admin, 2025, 3)
		require.NoError(t, err)
		assert.Len(t, again.SalesByUser, 1, "stripping for one caller must not leak into the cache")
	})
}

func TestUpsertTargetReplacesMonth(t *testing.T) {
	e := newEnv(t, memory.New())
	ctx := context.Background()
	labor := decimal.NewFromInt(25)

	first, err := e.ledger.UpsertTarget(ctx, e.admin, TargetInput{Year: 2025, Month: 5})
	require.NoError(t, err)
	second, err := e.ledger.UpsertTarget(ctx, e.admin, TargetInput{Year: 2025, Month: 5, LaborCostPercent: &labor})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	rows, err := e.ledger.ListTargets(ctx, e.worker, 2025)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].LaborCostPercent.Equal(labor))

	_, err = e.ledger.UpsertTarget(ctx, e.worker, TargetInput{Year: 2025, Month: 6})
	assert.True(t, core.IsKind(err, core.KindForbidden))

	over := decimal.NewFromInt(101)
	_, err = e.ledger.UpsertTarget(ctx, e.admin, TargetInput{Year: 2025, Month: 6, ProductCostPercent: &over})
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestUserManagement(t *testing.T) {
	e := newEnv(t, memory.New())
	ctx := context.Background()

	u, err := e.ledger.CreateUser(ctx, e.admin, UserInput{Username: "Marco", Password: "secret1", Name: "Marco", Role: core.RoleShiftManager})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.NotEmpty(t, u.PasswordHash)

	_, err = e.ledger.CreateUser(ctx, e.admin, UserInput{Username: "marco", Password: "secret1", Name: "Other", Role: core.RoleWorker})
	assert.True(t, core.IsKind(err, core.KindValidation), "got %v", err)

	_, err = e.ledger.CreateUser(ctx, e.admin, UserInput{Username: "short", Password: "123", Name: "Short", Role: core.RoleWorker})
	assert.True(t, core.IsKind(err, core.KindValidation), "got %v", err)

	_, err = e.ledger.CreateUser(ctx, e.worker, UserInput{Username: "x", Password: "secret1", Name: "X", Role: core.RoleWorker})
	assert.True(t, core.IsKind(err, core.KindForbidden))

	updated, err := e.ledger.UpdateUser(ctx, e.admin, u.ID, UserInput{Username: "marco", Name: "Marco R.", Role: core.RoleWorker, HourlyRate: core.Money{Cents: 1800}})
	require.NoError(t, err)
	assert.Equal(t, u.PasswordHash, updated.PasswordHash)
	assert.Equal(t, core.RoleWorker, updated.Role)

	_, err = e.ledger.UpdateUser(ctx, e.admin, u.ID, UserInput{Username: "dana", Name: "Clash", Role: core.RoleWorker})
	assert.True(t, core.IsKind(err, core.KindValidation))

	require.NoError(t, e.ledger.DeleteUser(ctx, e.admin, u.ID))
	users, err := e.ledger.ListUsers(ctx, e.admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestExpenseAccessAndFilters(t *testing.T) {
	e := newEnv(t, memory.New())
	ctx := context.Background()
	manager := core.User{ID: 99, Role: core.RoleShiftManager}

	_, err := e.ledger.CreateExpense(ctx, e.admin, core.Expense{CategoryID: e.fix.Rent, Amount: core.Money{Cents: 90000}, Date: core.NewDate(2025, 3, 1)})
	require.NoError(t, err)
	_, err = e.ledger.CreateExpense(ctx, e.admin, core.Expense{CategoryID: e.fix.Ops, Amount: core.Money{Cents: 1500}, Date: core.NewDate(2025, 3, 9)})
	require.NoError(t, err)

	_, err = e.ledger.CreateExpense(ctx, e.admin, core.Expense{CategoryID: e.fix.Income, Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 3, 9)})
	assert.True(t, core.IsKind(err, core.KindValidation))

	_, err = e.ledger.ListExpenses(ctx, e.worker, store.Filter{})
	assert.True(t, core.IsKind(err, core.KindForbidden))

	_, err = e.ledger.CreateExpense(ctx, manager, core.Expense{CategoryID: e.fix.Ops, Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 3, 9)})
	assert.True(t, core.IsKind(err, core.KindForbidden))

	all, err := e.ledger.ListExpenses(ctx, manager, store.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, core.NewDate(2025, 3, 9).String(), all[0].Date.String(), "newest first")

	fixed, err := e.ledger.ListExpenses(ctx, e.admin, store.Filter{CategoryType: core.CategoryExpenseFixed})
	require.NoError(t, err)
	require.Len(t, fixed, 1)
	assert.Equal(t, e.fix.Rent, fixed[0].CategoryID)
}

func TestChangesArePublishedPerMonth(t *testing.T) {
	e := newEnv(t, memory.New())
	ctx := context.Background()

	res, err := e.ledger.SubmitSale(ctx, e.worker, core.Sale{CategoryID: e.fix.Income, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 1, 31)})
	require.NoError(t, err)
	require.NoError(t, e.ledger.UpdateSale(ctx, e.worker, core.Sale{ID: res.ID, CategoryID: e.fix.Income, Amount: core.Money{Cents: 100}, Date: core.NewDate(2025, 2, 1)}))
	_, err = e.ledger.CreateSupplier(ctx, e.admin, core.Supplier{Name: "Second"})
	require.NoError(t, err)

	msgs := e.events.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, amqp.OpCreate, msgs[0].Op)
	assert.Equal(t, 1, msgs[0].Month)
	assert.Equal(t, amqp.OpUpdate, msgs[1].Op)
	assert.Equal(t, 1, msgs[1].Month)
	assert.Equal(t, 2, msgs[2].Month)
	assert.Equal(t, "suppliers", msgs[3].Collection)
	assert.False(t, msgs[3].Periodic())
}

func TestLedgerWithoutPublisherOrCache(t *testing.T) {
	s := memory.New()
	fix := storetest.Seed(t, s)
	l := NewLedger(s)
	ctx := context.Background()
	admin := core.User{ID: fix.Admin, Role: core.RoleAdmin}

	_, err := l.SubmitSale(ctx, admin, core.Sale{CategoryID: fix.Income, Amount: core.Money{Cents: 700}, Date: core.NewDate(2024, 2, 29)})
	require.NoError(t, err)
	summary, err := l.Dashboard(ctx, admin, 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(700), summary.TotalRevenue.Cents)

	_, err = l.Dashboard(ctx, admin, 2024, 13)
	assert.True(t, core.IsKind(err, core.KindValidation))

	_, err = l.Dashboard(ctx, core.User{}, 2024, 2)
	assert.True(t, core.IsKind(err, core.KindUnauthenticated))
}
