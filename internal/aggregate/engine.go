// Package aggregate computes the monthly financial summary from ledger rows.
package aggregate

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"bottega/internal/core"
	"bottega/internal/store"
)

const (
	TopSuppliersLimit = 5
	RecentLimit       = 10
)

// Input is everything one summary is folded from.
type Input struct {
	Year, Month int
	From, To    core.Date

	Sales    []core.Sale
	Expenses []core.Expense
	Shifts   []core.Shift

	Users      []core.User
	Categories []core.Category
	Suppliers  []core.Supplier

	Target *core.Target
}

type Engine struct {
	store store.Store
}

func New(s store.Store) *Engine {
	return &Engine{store: s}
}

// ComputeMonthlySummary reads the month's rows from one snapshot and folds
// them. An empty month yields a zero summary, not an error.
func (e *Engine) ComputeMonthlySummary(ctx context.Context, year, month int) (core.Summary, error) {
	start := time.Now()
	window, err := store.InMonth(year, month)
	if err != nil {
		return core.Summary{}, core.Invalid("invalid period %d-%02d: %v", year, month, err)
	}

	in := Input{Year: year, Month: month, From: window.From, To: window.To}
	err = e.store.View(ctx, func(tx store.Tx) error {
		var err error
		if in.Sales, err = tx.FindSales(ctx, window); err != nil {
			return err
		}
		if in.Expenses, err = tx.FindExpenses(ctx, window); err != nil {
			return err
		}
		if in.Shifts, err = tx.FindShifts(ctx, window); err != nil {
			return err
		}
		if in.Users, err = tx.FindUsers(ctx, store.Filter{}); err != nil {
			return err
		}
		if in.Categories, err = tx.FindCategories(ctx, store.Filter{}); err != nil {
			return err
		}
		if in.Suppliers, err = tx.FindSuppliers(ctx, store.Filter{}); err != nil {
			return err
		}
		target, ok, err := store.First(tx.FindTargets(ctx, store.Filter{Year: year, Month: month}))
		if err != nil {
			return err
		}
		if ok {
			in.Target = &target
		}
		return nil
	})
	if err != nil {
		return core.Summary{}, core.StoreFailure(fmt.Sprintf("scan %d-%02d", year, month), err)
	}

	summary := Fold(in)
	slog.DebugContext(ctx, "Monthly summary computed",
		"year", year,
		"month", month,
		"sales", len(in.Sales),
		"expenses", len(in.Expenses),
		"shifts", len(in.Shifts),
		"duration", time.Since(start))
	return summary, nil
}

// Fold is the pure aggregation over already loaded rows.
func Fold(in Input) core.Summary {
	s := core.Summary{
		Year:  in.Year,
		Month: in.Month,
		From:  in.From,
		To:    in.To,
	}

	categories := make(map[int64]core.Category, len(in.Categories))
	for _, c := range in.Categories {
		categories[c.ID] = c
	}
	users := make(map[int64]core.User, len(in.Users))
	for _, u := range in.Users {
		users[u.ID] = u
	}

	foldSales(&s, in, users)
	foldExpenses(&s, in, categories)
	foldLabor(&s, in, users)

	s.TotalExpenses = s.SupplierExpenses.
		Add(s.FixedExpenses).
		Add(s.OperationalExpenses).
		Add(s.LaborCosts)
	s.NetProfit = s.TotalRevenue.Sub(s.TotalExpenses)

	s.ProductCostPercent = core.Percent(s.SupplierExpenses, s.TotalRevenue)
	s.LaborCostPercent = core.Percent(s.LaborCosts, s.TotalRevenue)

	s.Target = compare(s, in.Target)
	return s
}

func foldSales(s *core.Summary, in Input, users map[int64]core.User) {
	byCategory := map[int64]int64{}
	byDate := map[string]core.DailyTotal{}
	byUser := map[int64]int64{}
	var userOrder []int64

	for _, sale := range in.Sales {
		s.TotalRevenue = s.TotalRevenue.Add(sale.Amount)
		byCategory[sale.CategoryID] += sale.Amount.Cents
		day := byDate[sale.Date.String()]
		day.Date = sale.Date
		day.Total = day.Total.Add(sale.Amount)
		byDate[sale.Date.String()] = day
		if _, seen := byUser[sale.UserID]; !seen {
			userOrder = append(userOrder, sale.UserID)
		}
		byUser[sale.UserID] += sale.Amount.Cents
	}

	s.RevenueByCategory = categoryTotals(in.Categories, byCategory, func(t core.CategoryType) bool {
		return t == core.CategoryIncome
	})

	s.DailyRevenue = make([]core.DailyTotal, 0, len(byDate))
	for _, day := range byDate {
		s.DailyRevenue = append(s.DailyRevenue, day)
	}
	slices.SortFunc(s.DailyRevenue, func(a, b core.DailyTotal) int { return a.Date.Compare(b.Date.Time) })

	s.SalesByUser = make([]core.UserTotal, 0, len(userOrder))
	for _, id := range userOrder {
		s.SalesByUser = append(s.SalesByUser, core.UserTotal{UserID: id, Name: users[id].Name, Total: core.Money{Cents: byUser[id]}})
	}
	slices.SortStableFunc(s.SalesByUser, func(a, b core.UserTotal) int { return cmp.Compare(b.Total.Cents, a.Total.Cents) })

	recent := slices.Clone(in.Sales)
	slices.SortStableFunc(recent, func(a, b core.Sale) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	s.RecentSales = recent[:min(len(recent), RecentLimit)]
}

func foldExpenses(s *core.Summary, in Input, categories map[int64]core.Category) {
	byCategory := map[int64]int64{}
	bySupplier := map[int64]int64{}
	var supplierOrder []int64

	for _, e := range in.Expenses {
		byCategory[e.CategoryID] += e.Amount.Cents
		switch categories[e.CategoryID].Type {
		case core.CategoryExpenseSupplier:
			s.SupplierExpenses = s.SupplierExpenses.Add(e.Amount)
		case core.CategoryExpenseFixed:
			s.FixedExpenses = s.FixedExpenses.Add(e.Amount)
		case core.CategoryExpenseOperational:
			s.OperationalExpenses = s.OperationalExpenses.Add(e.Amount)
		}
		if e.SupplierID != nil {
			id := *e.SupplierID
			if _, seen := bySupplier[id]; !seen {
				supplierOrder = append(supplierOrder, id)
			}
			bySupplier[id] += e.Amount.Cents
		}
	}

	s.ExpensesByCategory = categoryTotals(in.Categories, byCategory, core.CategoryType.IsExpense)

	names := make(map[int64]string, len(in.Suppliers))
	for _, sup := range in.Suppliers {
		names[sup.ID] = sup.Name
	}
	top := make([]core.SupplierTotal, 0, len(supplierOrder))
	for _, id := range supplierOrder {
		top = append(top, core.SupplierTotal{SupplierID: id, Name: names[id], Total: core.Money{Cents: bySupplier[id]}})
	}
	// stable: equal totals keep first-seen order
	slices.SortStableFunc(top, func(a, b core.SupplierTotal) int { return cmp.Compare(b.Total.Cents, a.Total.Cents) })
	s.TopSuppliers = top[:min(len(top), TopSuppliersLimit)]

	recent := slices.Clone(in.Expenses)
	slices.SortStableFunc(recent, func(a, b core.Expense) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	s.RecentExpenses = recent[:min(len(recent), RecentLimit)]
}

// foldLabor prices each shift at the owner's current rate. The sum stays in
// fractional cents and is rounded once.
func foldLabor(s *core.Summary, in Input, users map[int64]core.User) {
	hours := decimal.Zero
	cents := decimal.Zero
	for _, sh := range in.Shifts {
		hours = hours.Add(sh.Hours)
		rate := users[sh.UserID].HourlyRate.Cents
		cents = cents.Add(sh.Hours.Mul(decimal.NewFromInt(rate)))
	}
	s.LaborHours = hours
	s.LaborCosts = core.CentsFromDecimal(cents)
}

// categoryTotals lists every category of the wanted types, including those
// with no rows this month, largest total first.
func categoryTotals(all []core.Category, totals map[int64]int64, want func(core.CategoryType) bool) []core.CategoryTotal {
	out := make([]core.CategoryTotal, 0, len(all))
	for _, c := range all {
		if !want(c.Type) {
			continue
		}
		out = append(out, core.CategoryTotal{CategoryID: c.ID, Name: c.Name, Type: c.Type, Total: core.Money{Cents: totals[c.ID]}})
	}
	slices.SortStableFunc(out, func(a, b core.CategoryTotal) int { return cmp.Compare(b.Total.Cents, a.Total.Cents) })
	return out
}

var hundred = decimal.NewFromInt(100)

func compare(s core.Summary, target *core.Target) core.TargetComparison {
	if target == nil {
		return core.TargetComparison{
			ProductCostStatus: core.StatusNoTarget,
			LaborCostStatus:   core.StatusNoTarget,
		}
	}
	t := *target
	out := core.TargetComparison{
		Target:            &t,
		ProductCostStatus: status(s.ProductCostPercent, t.ProductCostPercent),
		LaborCostStatus:   status(s.LaborCostPercent, t.LaborCostPercent),
	}
	if t.RevenueTarget.Cents > 0 {
		progress := decimal.Min(hundred, core.Percent(s.TotalRevenue, t.RevenueTarget))
		out.RevenueProgress = &progress
	}
	return out
}

// status compares one cost ratio with its limit. A zero limit means the
// ratio is not tracked.
func status(actual, limit decimal.Decimal) core.TargetStatus {
	if limit.IsZero() {
		return core.StatusNoTarget
	}
	if actual.GreaterThan(limit) {
		return core.StatusOver
	}
	return core.StatusUnder
}
