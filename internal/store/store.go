// Package store defines the record store the ledger runs on.
//
// Every read and write happens inside a transaction callback. Update
// transactions are serialized, so a check followed by a write inside one
// callback is atomic. View transactions see one consistent snapshot.
package store

import (
	"context"
	"errors"

	"bottega/internal/core"
)

type Collection string

const (
	Users      Collection = "users"
	Categories Collection = "categories"
	Suppliers  Collection = "suppliers"
	Sales      Collection = "sales"
	Expenses   Collection = "expenses"
	Shifts     Collection = "shifts"
	Targets    Collection = "targets"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate natural key")
	ErrReadOnly  = errors.New("write attempted in read-only transaction")
)

// Filter selects rows of one collection. Zero-valued fields do not
// constrain the scan; fields that do not apply to a collection are ignored.
type Filter struct {
	// From and To bound the row date inclusively.
	From core.Date
	To   core.Date
	Date core.Date

	UserID     int64
	CategoryID int64
	SupplierID int64

	Year  int
	Month int

	Username     string
	CategoryType core.CategoryType
}

// InMonth returns a filter covering the whole calendar month.
func InMonth(year, month int) (Filter, error) {
	from, to, err := core.MonthWindow(year, month)
	if err != nil {
		return Filter{}, err
	}
	return Filter{From: from, To: to}, nil
}

// Tx is a unit of work. Find results are ordered by date then id for dated
// collections, by year and month for targets, and by id otherwise.
// Update methods replace the row with the given id and return ErrNotFound
// when it does not exist.
type Tx interface {
	InsertUser(ctx context.Context, u core.User) (int64, error)
	UpdateUser(ctx context.Context, u core.User) error
	DeleteUser(ctx context.Context, id int64) error
	GetUser(ctx context.Context, id int64) (core.User, error)
	FindUsers(ctx context.Context, f Filter) ([]core.User, error)

	InsertCategory(ctx context.Context, c core.Category) (int64, error)
	UpdateCategory(ctx context.Context, c core.Category) error
	DeleteCategory(ctx context.Context, id int64) error
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	FindCategories(ctx context.Context, f Filter) ([]core.Category, error)

	InsertSupplier(ctx context.Context, s core.Supplier) (int64, error)
	UpdateSupplier(ctx context.Context, s core.Supplier) error
	DeleteSupplier(ctx context.Context, id int64) error
	GetSupplier(ctx context.Context, id int64) (core.Supplier, error)
	FindSuppliers(ctx context.Context, f Filter) ([]core.Supplier, error)

	InsertSale(ctx context.Context, s core.Sale) (int64, error)
	UpdateSale(ctx context.Context, s core.Sale) error
	DeleteSale(ctx context.Context, id int64) error
	GetSale(ctx context.Context, id int64) (core.Sale, error)
	FindSales(ctx context.Context, f Filter) ([]core.Sale, error)

	InsertExpense(ctx context.Context, e core.Expense) (int64, error)
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, id int64) error
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	FindExpenses(ctx context.Context, f Filter) ([]core.Expense, error)

	InsertShift(ctx context.Context, s core.Shift) (int64, error)
	UpdateShift(ctx context.Context, s core.Shift) error
	DeleteShift(ctx context.Context, id int64) error
	GetShift(ctx context.Context, id int64) (core.Shift, error)
	FindShifts(ctx context.Context, f Filter) ([]core.Shift, error)

	InsertTarget(ctx context.Context, t core.Target) (int64, error)
	UpdateTarget(ctx context.Context, t core.Target) error
	DeleteTarget(ctx context.Context, id int64) error
	GetTarget(ctx context.Context, id int64) (core.Target, error)
	FindTargets(ctx context.Context, f Filter) ([]core.Target, error)

	Count(ctx context.Context, c Collection, f Filter) (int, error)
}

type Store interface {
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs fn in a serialized read-write transaction. The
	// transaction commits only if fn returns nil.
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// First returns the first row of a Find result.
func First[T any](rows []T, err error) (T, bool, error) {
	var zero T
	if err != nil {
		return zero, false, err
	}
	if len(rows) == 0 {
		return zero, false, nil
	}
	return rows[0], true, nil
}

// CoversDate reports whether d satisfies the date constraints of f.
func (f Filter) CoversDate(d core.Date) bool {
	if !f.Date.IsZero() && !d.Equal(f.Date.Time) {
		return false
	}
	if !f.From.IsZero() && d.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && d.After(f.To.Time) {
		return false
	}
	return true
}
