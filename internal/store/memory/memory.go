// Package memory is an in-process record store for development and tests.
//
// Committed state is immutable: an Update transaction copies each table the
// first time it writes to it and swaps the new tables in on commit, so a View
// keeps reading the state that was current when it started.
package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"bottega/internal/core"
	"bottega/internal/store"
)

var errClosed = errors.New("memory store closed")

type table[T any] struct {
	rows map[int64]T
	seq  int64
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: map[int64]T{}}
}

func (t *table[T]) clone() *table[T] {
	rows := make(map[int64]T, len(t.rows))
	for id, row := range t.rows {
		rows[id] = row
	}
	return &table[T]{rows: rows, seq: t.seq}
}

func (t *table[T]) values() []T {
	out := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, row)
	}
	return out
}

type tables struct {
	users      *table[core.User]
	categories *table[core.Category]
	suppliers  *table[core.Supplier]
	sales      *table[core.Sale]
	expenses   *table[core.Expense]
	shifts     *table[core.Shift]
	targets    *table[core.Target]
}

func (t tables) copy() *tables { return &t }

type Store struct {
	writeMu sync.Mutex // serializes Update

	mu      sync.RWMutex
	current *tables
	closed  bool
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

func New() *Store {
	return &Store{current: &tables{
		users:      newTable[core.User](),
		categories: newTable[core.Category](),
		suppliers:  newTable[core.Supplier](),
		sales:      newTable[core.Sale](),
		expenses:   newTable[core.Expense](),
		shifts:     newTable[core.Shift](),
		targets:    newTable[core.Target](),
	}}
}

func (s *Store) snapshot() (*tables, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	return s.current, nil
}

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	return fn(&tx{t: snap, readOnly: true})
}

func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	work := &tx{t: snap.copy(), dirty: map[store.Collection]bool{}}
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.current = work.t
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type tx struct {
	t        *tables
	readOnly bool
	dirty    map[store.Collection]bool
}

// own returns a private copy of the table on the first write in this tx.
func own[T any](x *tx, c store.Collection, tp **table[T]) (*table[T], error) {
	if x.readOnly {
		return nil, store.ErrReadOnly
	}
	if !x.dirty[c] {
		*tp = (*tp).clone()
		x.dirty[c] = true
	}
	return *tp, nil
}

func insert[T any](x *tx, c store.Collection, tp **table[T], row T, setID func(*T, int64)) (int64, error) {
	t, err := own(x, c, tp)
	if err != nil {
		return 0, err
	}
	t.seq++
	setID(&row, t.seq)
	t.rows[t.seq] = row
	return t.seq, nil
}

func replace[T any](x *tx, c store.Collection, tp **table[T], id int64, row T) error {
	if _, ok := (*tp).rows[id]; !ok {
		return store.ErrNotFound
	}
	t, err := own(x, c, tp)
	if err != nil {
		return err
	}
	t.rows[id] = row
	return nil
}

func remove[T any](x *tx, c store.Collection, tp **table[T], id int64) error {
	if _, ok := (*tp).rows[id]; !ok {
		return store.ErrNotFound
	}
	t, err := own(x, c, tp)
	if err != nil {
		return err
	}
	delete(t.rows, id)
	return nil
}

func get[T any](t *table[T], id int64) (T, error) {
	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, store.ErrNotFound
	}
	return row, nil
}

func find[T any](t *table[T], keep func(T) bool, order func(a, b T) int) []T {
	out := make([]T, 0)
	for _, row := range t.values() {
		if keep(row) {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, order)
	return out
}

func byDateThenID(da, db core.Date, ia, ib int64) int {
	if c := da.Compare(db.Time); c != 0 {
		return c
	}
	return cmp.Compare(ia, ib)
}

// users

func (x *tx) usernameTaken(username string, except int64) bool {
	for id, u := range x.t.users.rows {
		if id != except && strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}

func (x *tx) InsertUser(_ context.Context, u core.User) (int64, error) {
	if x.usernameTaken(u.Username, 0) {
		return 0, store.ErrDuplicate
	}
	return insert(x, store.Users, &x.t.users, u, func(r *core.User, id int64) { r.ID = id })
}

func (x *tx) UpdateUser(_ context.Context, u core.User) error {
	if x.usernameTaken(u.Username, u.ID) {
		return store.ErrDuplicate
	}
	return replace(x, store.Users, &x.t.users, u.ID, u)
}

func (x *tx) DeleteUser(_ context.Context, id int64) error {
	return remove(x, store.Users, &x.t.users, id)
}

func (x *tx) GetUser(_ context.Context, id int64) (core.User, error) {
	return get(x.t.users, id)
}

func (x *tx) FindUsers(_ context.Context, f store.Filter) ([]core.User, error) {
	return find(x.t.users, func(u core.User) bool {
		return f.Username == "" || strings.EqualFold(u.Username, f.Username)
	}, func(a, b core.User) int { return cmp.Compare(a.ID, b.ID) }), nil
}

// categories

func (x *tx) InsertCategory(_ context.Context, c core.Category) (int64, error) {
	return insert(x, store.Categories, &x.t.categories, c, func(r *core.Category, id int64) { r.ID = id })
}

func (x *tx) UpdateCategory(_ context.Context, c core.Category) error {
	return replace(x, store.Categories, &x.t.categories, c.ID, c)
}

func (x *tx) DeleteCategory(_ context.Context, id int64) error {
	return remove(x, store.Categories, &x.t.categories, id)
}

func (x *tx) GetCategory(_ context.Context, id int64) (core.Category, error) {
	return get(x.t.categories, id)
}

func (x *tx) FindCategories(_ context.Context, f store.Filter) ([]core.Category, error) {
	return find(x.t.categories, func(c core.Category) bool {
		return f.CategoryType == "" || c.Type == f.CategoryType
	}, func(a, b core.Category) int { return cmp.Compare(a.ID, b.ID) }), nil
}

// suppliers

func (x *tx) InsertSupplier(_ context.Context, s core.Supplier) (int64, error) {
	return insert(x, store.Suppliers, &x.t.suppliers, s, func(r *core.Supplier, id int64) { r.ID = id })
}

func (x *tx) UpdateSupplier(_ context.Context, s core.Supplier) error {
	return replace(x, store.Suppliers, &x.t.suppliers, s.ID, s)
}

func (x *tx) DeleteSupplier(_ context.Context, id int64) error {
	return remove(x, store.Suppliers, &x.t.suppliers, id)
}

func (x *tx) GetSupplier(_ context.Context, id int64) (core.Supplier, error) {
	return get(x.t.suppliers, id)
}

func (x *tx) FindSuppliers(_ context.Context, _ store.Filter) ([]core.Supplier, error) {
	return find(x.t.suppliers, func(core.Supplier) bool { return true },
		func(a, b core.Supplier) int { return cmp.Compare(a.ID, b.ID) }), nil
}

// sales

func matchSale(f store.Filter) func(core.Sale) bool {
	return func(s core.Sale) bool {
		return f.CoversDate(s.Date) &&
			(f.UserID == 0 || s.UserID == f.UserID) &&
			(f.CategoryID == 0 || s.CategoryID == f.CategoryID)
	}
}

func (x *tx) saleKeyTaken(s core.Sale) bool {
	for id, row := range x.t.sales.rows {
		if id != s.ID && row.UserID == s.UserID && row.CategoryID == s.CategoryID && row.Date.Equal(s.Date.Time) {
			return true
		}
	}
	return false
}

func (x *tx) InsertSale(_ context.Context, s core.Sale) (int64, error) {
	s.ID = 0
	if x.saleKeyTaken(s) {
		return 0, store.ErrDuplicate
	}
	return insert(x, store.Sales, &x.t.sales, s, func(r *core.Sale, id int64) { r.ID = id })
}

func (x *tx) UpdateSale(_ context.Context, s core.Sale) error {
	if x.saleKeyTaken(s) {
		return store.ErrDuplicate
	}
	return replace(x, store.Sales, &x.t.sales, s.ID, s)
}

func (x *tx) DeleteSale(_ context.Context, id int64) error {
	return remove(x, store.Sales, &x.t.sales, id)
}

func (x *tx) GetSale(_ context.Context, id int64) (core.Sale, error) {
	return get(x.t.sales, id)
}

func (x *tx) FindSales(_ context.Context, f store.Filter) ([]core.Sale, error) {
	return find(x.t.sales, matchSale(f), func(a, b core.Sale) int {
		return byDateThenID(a.Date, b.Date, a.ID, b.ID)
	}), nil
}

// expenses

func matchExpense(f store.Filter) func(core.Expense) bool {
	return func(e core.Expense) bool {
		if !f.CoversDate(e.Date) {
			return false
		}
		if f.CategoryID != 0 && e.CategoryID != f.CategoryID {
			return false
		}
		if f.SupplierID != 0 && (e.SupplierID == nil || *e.SupplierID != f.SupplierID) {
			return false
		}
		return true
	}
}

func cloneExpense(e core.Expense) core.Expense {
	if e.SupplierID != nil {
		id := *e.SupplierID
		e.SupplierID = &id
	}
	return e
}

func (x *tx) InsertExpense(_ context.Context, e core.Expense) (int64, error) {
	return insert(x, store.Expenses, &x.t.expenses, cloneExpense(e), func(r *core.Expense, id int64) { r.ID = id })
}

func (x *tx) UpdateExpense(_ context.Context, e core.Expense) error {
	return replace(x, store.Expenses, &x.t.expenses, e.ID, cloneExpense(e))
}

func (x *tx) DeleteExpense(_ context.Context, id int64) error {
	return remove(x, store.Expenses, &x.t.expenses, id)
}

func (x *tx) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	e, err := get(x.t.expenses, id)
	return cloneExpense(e), err
}

func (x *tx) FindExpenses(_ context.Context, f store.Filter) ([]core.Expense, error) {
	rows := find(x.t.expenses, matchExpense(f), func(a, b core.Expense) int {
		return byDateThenID(a.Date, b.Date, a.ID, b.ID)
	})
	for i := range rows {
		rows[i] = cloneExpense(rows[i])
	}
	return rows, nil
}

// shifts

func matchShift(f store.Filter) func(core.Shift) bool {
	return func(s core.Shift) bool {
		return f.CoversDate(s.Date) && (f.UserID == 0 || s.UserID == f.UserID)
	}
}

func (x *tx) shiftKeyTaken(s core.Shift) bool {
	for id, row := range x.t.shifts.rows {
		if id != s.ID && row.UserID == s.UserID && row.Date.Equal(s.Date.Time) {
			return true
		}
	}
	return false
}

func (x *tx) InsertShift(_ context.Context, s core.Shift) (int64, error) {
	s.ID = 0
	if x.shiftKeyTaken(s) {
		return 0, store.ErrDuplicate
	}
	return insert(x, store.Shifts, &x.t.shifts, s, func(r *core.Shift, id int64) { r.ID = id })
}

func (x *tx) UpdateShift(_ context.Context, s core.Shift) error {
	if x.shiftKeyTaken(s) {
		return store.ErrDuplicate
	}
	return replace(x, store.Shifts, &x.t.shifts, s.ID, s)
}

func (x *tx) DeleteShift(_ context.Context, id int64) error {
	return remove(x, store.Shifts, &x.t.shifts, id)
}

func (x *tx) GetShift(_ context.Context, id int64) (core.Shift, error) {
	return get(x.t.shifts, id)
}

func (x *tx) FindShifts(_ context.Context, f store.Filter) ([]core.Shift, error) {
	return find(x.t.shifts, matchShift(f), func(a, b core.Shift) int {
		return byDateThenID(a.Date, b.Date, a.ID, b.ID)
	}), nil
}

// targets

func matchTarget(f store.Filter) func(core.Target) bool {
	return func(t core.Target) bool {
		return (f.Year == 0 || t.Year == f.Year) && (f.Month == 0 || t.Month == f.Month)
	}
}

func (x *tx) targetKeyTaken(t core.Target) bool {
	for id, row := range x.t.targets.rows {
		if id != t.ID && row.Year == t.Year && row.Month == t.Month {
			return true
		}
	}
	return false
}

func (x *tx) InsertTarget(_ context.Context, t core.Target) (int64, error) {
	t.ID = 0
	if x.targetKeyTaken(t) {
		return 0, store.ErrDuplicate
	}
	return insert(x, store.Targets, &x.t.targets, t, func(r *core.Target, id int64) { r.ID = id })
}

func (x *tx) UpdateTarget(_ context.Context, t core.Target) error {
	if x.targetKeyTaken(t) {
		return store.ErrDuplicate
	}
	return replace(x, store.Targets, &x.t.targets, t.ID, t)
}

func (x *tx) DeleteTarget(_ context.Context, id int64) error {
	return remove(x, store.Targets, &x.t.targets, id)
}

func (x *tx) GetTarget(_ context.Context, id int64) (core.Target, error) {
	return get(x.t.targets, id)
}

func (x *tx) FindTargets(_ context.Context, f store.Filter) ([]core.Target, error) {
	return find(x.t.targets, matchTarget(f), func(a, b core.Target) int {
		if c := cmp.Compare(a.Year, b.Year); c != 0 {
			return c
		}
		return cmp.Compare(a.Month, b.Month)
	}), nil
}

func (x *tx) Count(ctx context.Context, c store.Collection, f store.Filter) (int, error) {
	switch c {
	case store.Users:
		rows, err := x.FindUsers(ctx, f)
		return len(rows), err
	case store.Categories:
		rows, err := x.FindCategories(ctx, f)
		return len(rows), err
	case store.Suppliers:
		return len(x.t.suppliers.rows), nil
	case store.Sales:
		return len(find(x.t.sales, matchSale(f), func(core.Sale, core.Sale) int { return 0 })), nil
	case store.Expenses:
		return len(find(x.t.expenses, matchExpense(f), func(core.Expense, core.Expense) int { return 0 })), nil
	case store.Shifts:
		return len(find(x.t.shifts, matchShift(f), func(core.Shift, core.Shift) int { return 0 })), nil
	case store.Targets:
		rows, err := x.FindTargets(ctx, f)
		return len(rows), err
	}
	return 0, errors.New("unknown collection " + string(c))
}
