package policy

import (
	"context"
	"errors"

	"bottega/internal/core"
	"bottega/internal/store"
)

// Normalized is a write after natural-key resolution. ID is zero for an
// insert and the existing row's id when the write updates that row.
type Normalized struct {
	ID      int64
	Updated bool
}

// NormalizeSale resolves a submitted sale onto its natural key
// (user, category, date). An existing row is updated in place.
func NormalizeSale(ctx context.Context, tx store.Tx, s core.Sale) (Normalized, error) {
	existing, ok, err := store.First(tx.FindSales(ctx, store.Filter{
		UserID:     s.UserID,
		CategoryID: s.CategoryID,
		Date:       s.Date,
	}))
	if err != nil {
		return Normalized{}, core.StoreFailure("find sale by key", err)
	}
	if !ok {
		return Normalized{}, nil
	}
	return Normalized{ID: existing.ID, Updated: true}, nil
}

// NormalizeShift resolves a submitted shift onto its natural key (user, date).
func NormalizeShift(ctx context.Context, tx store.Tx, s core.Shift) (Normalized, error) {
	existing, ok, err := store.First(tx.FindShifts(ctx, store.Filter{UserID: s.UserID, Date: s.Date}))
	if err != nil {
		return Normalized{}, core.StoreFailure("find shift by key", err)
	}
	if !ok {
		return Normalized{}, nil
	}
	return Normalized{ID: existing.ID, Updated: true}, nil
}

// CheckSaleKeyFree fails when moving sale s onto its key would collide
// with a different row.
func CheckSaleKeyFree(ctx context.Context, tx store.Tx, s core.Sale) error {
	n, err := NormalizeSale(ctx, tx, s)
	if err != nil {
		return err
	}
	if n.Updated && n.ID != s.ID {
		return core.Invalid("a sale for this user, category and date already exists (id %d)", n.ID)
	}
	return nil
}

// CheckShiftKeyFree fails when moving shift s onto its key would collide
// with a different row.
func CheckShiftKeyFree(ctx context.Context, tx store.Tx, s core.Shift) error {
	n, err := NormalizeShift(ctx, tx, s)
	if err != nil {
		return err
	}
	if n.Updated && n.ID != s.ID {
		return core.Invalid("a shift for this user and date already exists (id %d)", n.ID)
	}
	return nil
}

func lookupCategory(ctx context.Context, tx store.Tx, id int64) (core.Category, error) {
	c, err := tx.GetCategory(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return core.Category{}, core.Invalid("category %d does not exist", id)
	}
	if err != nil {
		return core.Category{}, core.StoreFailure("get category", err)
	}
	return c, nil
}

// CheckSaleCategory requires an income category.
func CheckSaleCategory(ctx context.Context, tx store.Tx, categoryID int64) error {
	c, err := lookupCategory(ctx, tx, categoryID)
	if err != nil {
		return err
	}
	if c.Type != core.CategoryIncome {
		return core.InvalidCategoryType("sale category %q is %s, not income", c.Name, c.Type)
	}
	return nil
}

// CheckExpenseCategory requires one of the three expense subtypes.
func CheckExpenseCategory(ctx context.Context, tx store.Tx, categoryID int64) error {
	c, err := lookupCategory(ctx, tx, categoryID)
	if err != nil {
		return err
	}
	if !c.Type.IsExpense() {
		return core.InvalidCategoryType("expense category %q is %s, not an expense type", c.Name, c.Type)
	}
	return nil
}

// CheckSupplier requires a nil supplier or an existing one.
func CheckSupplier(ctx context.Context, tx store.Tx, supplierID *int64) error {
	if supplierID == nil {
		return nil
	}
	if _, err := tx.GetSupplier(ctx, *supplierID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Invalid("supplier %d does not exist", *supplierID)
		}
		return core.StoreFailure("get supplier", err)
	}
	return nil
}

// CheckUserExists is used when a row is recorded for another user.
func CheckUserExists(ctx context.Context, tx store.Tx, userID int64) (core.User, error) {
	u, err := tx.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return core.User{}, core.Invalid("user %d does not exist", userID)
	}
	if err != nil {
		return core.User{}, core.StoreFailure("get user", err)
	}
	return u, nil
}

type reference struct {
	collection store.Collection
	filter     store.Filter
}

// blockers returns the collections that still hold a reference.
func blockers(ctx context.Context, tx store.Tx, refs []reference) ([]string, error) {
	var out []string
	for _, ref := range refs {
		n, err := tx.Count(ctx, ref.collection, ref.filter)
		if err != nil {
			return nil, core.StoreFailure("count "+string(ref.collection), err)
		}
		if n > 0 {
			out = append(out, string(ref.collection))
		}
	}
	return out, nil
}

// CheckCategoryDelete fails while any sale or expense uses the category.
func CheckCategoryDelete(ctx context.Context, tx store.Tx, id int64) error {
	by, err := blockers(ctx, tx, []reference{
		{store.Sales, store.Filter{CategoryID: id}},
		{store.Expenses, store.Filter{CategoryID: id}},
	})
	if err != nil {
		return err
	}
	if len(by) > 0 {
		return core.ReferentialConflict(by, "category %d is in use", id)
	}
	return nil
}

// CheckCategoryRetype keeps existing rows consistent with their category:
// an income category with sales cannot become an expense type and vice versa.
func CheckCategoryRetype(ctx context.Context, tx store.Tx, before, after core.Category) error {
	if before.Type == after.Type {
		return nil
	}
	var refs []reference
	switch {
	case before.Type == core.CategoryIncome && after.Type != core.CategoryIncome:
		refs = []reference{{store.Sales, store.Filter{CategoryID: before.ID}}}
	case before.Type.IsExpense() && !after.Type.IsExpense():
		refs = []reference{{store.Expenses, store.Filter{CategoryID: before.ID}}}
	default:
		return nil
	}
	by, err := blockers(ctx, tx, refs)
	if err != nil {
		return err
	}
	if len(by) > 0 {
		return core.ReferentialConflict(by, "category %d cannot change from %s to %s while in use", before.ID, before.Type, after.Type)
	}
	return nil
}

// CheckSupplierDelete fails while any expense names the supplier.
func CheckSupplierDelete(ctx context.Context, tx store.Tx, id int64) error {
	by, err := blockers(ctx, tx, []reference{
		{store.Expenses, store.Filter{SupplierID: id}},
	})
	if err != nil {
		return err
	}
	if len(by) > 0 {
		return core.ReferentialConflict(by, "supplier %d is in use", id)
	}
	return nil
}

// CheckUserDelete forbids deleting yourself and users that own rows.
func CheckUserDelete(ctx context.Context, tx store.Tx, identity core.User, id int64) error {
	if id == identity.ID {
		return core.SelfDeletion()
	}
	by, err := blockers(ctx, tx, []reference{
		{store.Sales, store.Filter{UserID: id}},
		{store.Shifts, store.Filter{UserID: id}},
	})
	if err != nil {
		return err
	}
	if len(by) > 0 {
		return core.ReferentialConflict(by, "user %d owns recorded rows", id)
	}
	return nil
}

// CheckUsernameFree fails when another user already holds username.
func CheckUsernameFree(ctx context.Context, tx store.Tx, username string, except int64) error {
	existing, ok, err := store.First(tx.FindUsers(ctx, store.Filter{Username: username}))
	if err != nil {
		return core.StoreFailure("find user by username", err)
	}
	if ok && existing.ID != except {
		return core.Invalid("username %q is already taken", username)
	}
	return nil
}
