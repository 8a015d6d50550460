package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"bottega/internal/core"
	"bottega/internal/store"
)

type sqlTx struct {
	tx       *sqlx.Tx
	readOnly bool
}

type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) dates(f store.Filter, col string) {
	if !f.Date.IsZero() {
		w.add(col+" = ?", f.Date.String())
	}
	if !f.From.IsZero() {
		w.add(col+" >= ?", f.From.String())
	}
	if !f.To.IsZero() {
		w.add(col+" <= ?", f.To.String())
	}
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (t *sqlTx) writable() error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	return nil
}

func (t *sqlTx) insert(ctx context.Context, op, query string, args ...any) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: last insert id: %w", op, err)
	}
	return id, nil
}

// exec runs an UPDATE or DELETE against a single id.
func (t *sqlTx) exec(ctx context.Context, op, query string, args ...any) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) get(ctx context.Context, op string, dest any, query string, args ...any) error {
	if err := t.tx.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, store.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func parseDate(s string) (core.Date, error) {
	// tolerate rows written with a time suffix
	if len(s) > len(core.DateLayout) {
		s = s[:len(core.DateLayout)]
	}
	return core.ParseDate(s)
}

// users

const userColumns = `id, username, password_hash, name, role, hourly_rate_cents, created_at`

type userRow struct {
	ID              int64  `db:"id"`
	Username        string `db:"username"`
	PasswordHash    string `db:"password_hash"`
	Name            string `db:"name"`
	Role            string `db:"role"`
	HourlyRateCents int64  `db:"hourly_rate_cents"`
	CreatedAt       string `db:"created_at"`
}

func (r userRow) toCore() core.User {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return core.User{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Name:         r.Name,
		Role:         core.Role(r.Role),
		HourlyRate:   core.Money{Cents: r.HourlyRateCents},
		CreatedAt:    created,
	}
}

func (t *sqlTx) InsertUser(ctx context.Context, u core.User) (int64, error) {
	return t.insert(ctx, "insert user",
		`INSERT INTO users (username, password_hash, name, role, hourly_rate_cents) VALUES (?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.Name, string(u.Role), u.HourlyRate.Cents)
}

func (t *sqlTx) UpdateUser(ctx context.Context, u core.User) error {
	return t.exec(ctx, "update user",
		`UPDATE users SET username = ?, password_hash = ?, name = ?, role = ?, hourly_rate_cents = ? WHERE id = ?`,
		u.Username, u.PasswordHash, u.Name, string(u.Role), u.HourlyRate.Cents, u.ID)
}

func (t *sqlTx) DeleteUser(ctx context.Context, id int64) error {
	return t.exec(ctx, "delete user", `DELETE FROM users WHERE id = ?`, id)
}

func (t *sqlTx) GetUser(ctx context.Context, id int64) (core.User, error) {
	var row userRow
	if err := t.get(ctx, "get user", &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id); err != nil {
		return core.User{}, err
	}
	return row.toCore(), nil
}

func userWhere(f store.Filter) *where {
	w := &where{}
	if f.Username != "" {
		w.add("username = ?", f.Username)
	}
	return w
}

func (t *sqlTx) FindUsers(ctx context.Context, f store.Filter) ([]core.User, error) {
	w := userWhere(f)
	var rows []userRow
	if err := t.tx.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	out := make([]core.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// categories

type categoryRow struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Type string `db:"type"`
}

func (r categoryRow) toCore() core.Category {
	return core.Category{ID: r.ID, Name: r.Name, Type: core.CategoryType(r.Type)}
}

func (t *sqlTx) InsertCategory(ctx context.Context, c core.Category) (int64, error) {
	return t.insert(ctx, "insert category",
		`INSERT INTO categories (name, type) VALUES (?, ?)`, c.Name, string(c.Type))
}

func (t *sqlTx) UpdateCategory(ctx context.Context, c core.Category) error {
	return t.exec(ctx, "update category",
		`UPDATE categories SET name = ?, type = ? WHERE id = ?`, c.Name, string(c.Type), c.ID)
}

func (t *sqlTx) DeleteCategory(ctx context.Context, id int64) error {
	return t.exec(ctx, "delete category", `DELETE FROM categories WHERE id = ?`, id)
}

func (t *sqlTx) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var row categoryRow
	if err := t.get(ctx, "get category", &row, `SELECT id, name, type FROM categories WHERE id = ?`, id); err != nil {
		return core.Category{}, err
	}
	return row.toCore(), nil
}

func categoryWhere(f store.Filter) *where {
	w := &where{}
	if f.CategoryType != "" {
		w.add("type = ?", string(f.CategoryType))
	}
	return w
}

func (t *sqlTx) FindCategories(ctx context.Context, f store.Filter) ([]core.Category, error) {
	w := categoryWhere(f)
	var rows []categoryRow
	if err := t.tx.SelectContext(ctx, &rows, `SELECT id, name, type FROM categories`+w.String()+` ORDER BY id`, w.args...); err != nil {
		return nil, fmt.Errorf("find categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// suppliers

const supplierColumns = `id, name, contact_name, phone, email`

type supplierRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	ContactName string `db:"contact_name"`
	Phone       string `db:"phone"`
	Email       string `db:"email"`
}

func (r supplierRow) toCore() core.Supplier {
	return core.Supplier{ID: r.ID, Name: r.Name, ContactName: r.ContactName, Phone: r.Phone, Email: r.Email}
}

func (t *sqlTx) InsertSupplier(ctx context.Context, s core.Supplier) (int64, error) {
	return t.insert(ctx, "insert supplier",
		`INSERT INTO suppliers (name, contact_name, phone, email) VALUES (?, ?, ?, ?)`,
		s.Name, s.ContactName, s.Phone, s.Email)
}

func (t *sqlTx) UpdateSupplier(ctx context.Context, s core.Supplier) error {
	return t.exec(ctx, "update supplier",
		`UPDATE suppliers SET name = ?, contact_name = ?, phone = ?, email = ? WHERE id = ?`,
		s.Name, s.ContactName, s.Phone, s.Email, s.ID)
}

func (t *sqlTx) DeleteSupplier(ctx context.Context, id int64) error {
	return t.exec(ctx, "delete supplier", `DELETE FROM suppliers WHERE id = ?`, id)
}

func (t *sqlTx) GetSupplier(ctx context.Context, id int64) (core.Supplier, error) {
	var row supplierRow
	if err := t.get(ctx, "get supplier", &row, `SELECT `+supplierColumns+` FROM suppliers WHERE id = ?`, id); err != nil {
		return core.Supplier{}, err
	}
	return row.toCore(), nil
}

func (t *sqlTx) FindSuppliers(ctx context.Context, _ store.Filter) ([]core.Supplier, error) {
	var rows []supplierRow
	if err := t.tx.SelectContext(ctx, &rows, `SELECT `+supplierColumns+` FROM suppliers ORDER BY id`); err != nil {
		return nil, fmt.Errorf("find suppliers: %w", err)
	}
	out := make([]core.Supplier, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// sales

const saleColumns = `id, user_id, category_id, amount_cents, date, notes`

type saleRow struct {
	ID          int64  `db:"id"`
	UserID      int64  `db:"user_id"`
	CategoryID  int64  `db:"category_id"`
	AmountCents int64  `db:"amount_cents"`
	Date        string `db:"date"`
	Notes       string `db:"notes"`
}

func (r saleRow) toCore() (core.Sale, error) {
	d, err := parseDate(r.Date)
	if err != nil {
		return core.Sale{}, fmt.Errorf("sale %d: bad date %q", r.ID, r.Date)
	}
	return core.Sale{
		ID:         r.ID,
		UserID:     r.UserID,
		CategoryID: r.CategoryID,
		Amount:     core.Money{Cents: r.AmountCents},
		Date:       d,
		Notes:      r.Notes,
	}, nil
}

func (t *sqlTx) InsertSale(ctx context.Context, s core.Sale) (int64, error) {
	return t.insert(ctx, "insert sale",
		`INSERT INTO sales (user_id, category_id, amount_cents, date, notes) VALUES (?, ?, ?, ?, ?)`,
		s.UserID, s.CategoryID, s.Amount.Cents, s.Date.String(), s.Notes)
}

func (t *sqlTx) UpdateSale(ctx context.Context, s core.Sale) error {
	return t.exec(ctx, "update sale",
		`UPDATE sales SET user_id = ?, category_id = ?, amount_cents = ?, date = ?, notes = ? WHERE id = ?`,
		s.UserID, s.CategoryID, s.Amount.Cents, s.Date.String(), s.Notes, s.ID)
}

func (t *sqlTx) DeleteSale(ctx context.Context, id int64) error {
	return t.exec(ctx, "delete sale", `DELETE FROM sales WHERE id = ?`, id)
}

func (t *sqlTx) GetSale(ctx context.Context, id int64) (core.Sale, error) {
	var row saleRow
	if err := t.get(ctx, "get sale", &row, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id); err != nil {
		return core.Sale{}, err
	}
	return row.toCore()
}

func saleWhere(f store.Filter) *where {
	w := &where{}
	w.dates(f, "date")
	if f.UserID != 0 {
		w.add("user_id = ?", f.UserID)
	}
	if f.CategoryID != 0 {
		w.add("category_id = ?", f.CategoryID)
	}
	return w
}

func (t *sqlTx) FindSales(ctx context.Context, f store.Filter) ([]core.Sale, error) {
	w := saleWhere(f)
	var rows []saleRow
	if err := t.tx.SelectContext(ctx, &rows, `SELECT `+saleColumns+` FROM sales`+w.String()+` ORDER BY date, id`, w.args...); err != nil {
		return nil, fmt.Errorf("find sales: %w", err)
	}
	out := make([]core.Sale, 0, len(rows))
	for _, r := range rows {
		s, err := r.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// expenses

const expenseColumns = `id, category_id, supplier_id, amount_cents, date, notes`

type expenseRow struct {
	ID          int64         `db:"id"`
	CategoryID  int64         `db:"category_id"`
	SupplierID  sql.NullInt64 `db:"supplier_id"`
	AmountCents int64         `db:"amount_cents"`
	Date        string        `db:"date"`
	Notes       string        `db:"notes"`
}

func (r expenseRow) toCore() (core.Expense, error) {
	d, err := parseDate(r.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: bad date %q", r.ID, r.Date)
	}
	e := core.Expense{
		ID:         r.ID,
		CategoryID: r.CategoryID,
		Amount:     core.Money{Cents: r.AmountCents},
		Date:       d,
		Notes:      r.Notes,
	}
	if r.SupplierID.Valid {
		id := r.SupplierID.Int64
		e.SupplierID = &id
	}
	return e, nil
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func (t *sqlTx) InsertExpense(ctx context.Context, e core.Expense) (int64, error) {
	return t.insert(ctx, "insert expense",
		`INSERT INTO expenses (category_id, supplier_id, amount_cents, date, notes) VALUES (?, ?, ?, ?, ?)`,
		e.CategoryID, nullID(e.SupplierID), e.Amount.Cents, e.Date.String(), e.Notes)
}

func (t *sqlTx) UpdateExpense(ctx context.Context, e core.Expense) error {
	return t.exec(ctx, "update expense",
		`UPDATE expenses SET category_id = ?, supplier_id = ?, amount_cents = ?, date = ?, notes = ? WHERE id = ?`,
		e.CategoryID, nullID(e.SupplierID), e.Amount.Cents, e.Date.String(), e.Notes, e.ID)
}

func (t *sqlTx) DeleteExpense(ctx context.Context, id int64) error {
	return t.exec(ctx, "delete expense", `DELETE FROM expenses WHERE id = ?`, id)
}

func (t *sqlTx) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	var row expenseRow
	if err := t.get(ctx, "get expense", &row, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id); err != nil {
		return core.Expense{}, err
	}
	return row.toCore()
}

func expenseWhere(f store.Filter) *where {
	w := &where{}
	w.dates(f, "date")
	if f.CategoryID != 0 {
		w.add("category_id = ?", f.CategoryID)
	}
	if f.SupplierID != 0 {
		w.add("supplier_id = ?", f.SupplierID)
	}
	return w
}

func (t *sqlTx) FindExpenses(ctx context.Context, f store.Filter) ([]core.Expense, error) {
	w := expenseWhere(f)
	var rows []expenseRow
	if err := t.tx.SelectContext(ctx, &rows, `SELECT `+expenseColumns+` FROM expenses`+w.String()+` ORDER BY date, id`, w.args...); err != nil {
		return nil, fmt.Errorf("find expenses: %w", err)
	}
	out := make([]core.Expense, 0, len(rows))
	for _, r := range rows {
		e, err := r.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// shifts

const shiftColumns = `id, user_id, date, hours`

type shiftRow struct {
	ID     int64  `db:"id"`
	UserID int64  `db:"user_id"`
	Date   string `db:"date"`
	Hours  string `db:"hours"`
}

func (r shiftRow) toCore() (core.Shift, error) {
	d, err := parseDate(r.Date)
	if err != nil {
		return core.Shift{}, fmt.Errorf("shift %d: bad date %q", r.ID, r.Date)
	}
	hours, err := decimal.NewFromString(r.Hours)
	if err != nil {
		return core.Shift{}, fmt.Errorf("shift %d: bad hours %q", r.ID, r.Hours)
	}
	return core.Shift{ID: r.ID, UserID: r.UserID, Date: d, Hours: hours}, nil
}

func (t *sqlTx) InsertShift(ctx context.Context, s core.Shift) (int64, error) {
	return t.insert(ctx, "insert shift",
		`INSERT INTO shifts (user_id, date, hours) VALUES (?, ?, ?)`,
		s.UserID, s.Date.String(), s.Hours.String())
}

func (t *sqlTx) UpdateShift(ctx context.Context, s core.Shift) error {
	return t.exec(ctx, "update shift",
		`UPDATE shifts SET user_id = ?, date = ?, hours = ? WHERE id = ?`,
		s.UserID, s.Date.String(), s.Hours.String(), s.ID)
}

func (t *sqlTx) DeleteShift(ctx context.Context, id int64) error {
	return t.exec(ctx, "delete shift", `DELETE FROM shifts WHERE id = ?`, id)
}

func (t *sqlTx) GetShift(ctx context.Context, id int64) (core.Shift, error) {
	var row shiftRow
	if err := t.get(ctx, "get shift", &row, `SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id); err != nil {
		return core.Shift{}, err
	}
	return row.toCore()
}

func shiftWhere(f store.Filter) *where {
	w := &where{}
	w.dates(f, "date")
	if f.UserID != 0 {
		w.add("user_id = ?", f.UserID)
	}
	return w
}

func (t *sqlTx) FindShifts(ctx context.Context, f store.Filter) ([]core.Shift, error) {
	w := shiftWhere(f)
	var rows []shiftRow
	if err := t.tx.SelectContext(ctx, &rows, `SELECT `+shiftColumns+` FROM shifts`+w.String()+` ORDER BY date, id`, w.args...); err != nil {
		return nil, fmt.Errorf("find shifts: %w", err)
	}
	out := make([]core.Shift, 0, len(rows))
	for _, r := range rows {
		s, err := r.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// targets

const targetColumns = `id, year, month, revenue_target_cents, product_cost_percent, labor_cost_percent`

type targetRow struct {
	ID                 int64  `db:"id"`
	Year               int    `db:"year"`
	Month              int    `db:"month"`
	RevenueTargetCents int64  `db:"revenue_target_cents"`
	ProductCostPercent string `db:"product_cost_percent"`
	LaborCostPercent   string `db:"labor_cost_percent"`
}

func (r targetRow) toCore() (core.Target, error) {
	product, err := decimal.NewFromString(r.ProductCostPercent)
	if err != nil {
		return core.Target{}, fmt.Errorf("target %d: bad product cost percent %q", r.ID, r.ProductCostPercent)
	}
	labor, err := decimal.NewFromString(r.LaborCostPercent)
	if err != nil {
		return core.Target{}, fmt.Errorf("target %d: bad labor cost percent %q", r.ID, r.LaborCostPercent)
	}
	return core.Target{
		ID:                 r.ID,
		Year:               r.Year,
		Month:              r.Month,
		RevenueTarget:      core.Money{Cents: r.RevenueTargetCents},
		ProductCostPercent: product,
		LaborCostPercent:   labor,
	}, nil
}

func (t *sqlTx) InsertTarget(ctx context.Context, tg core.Target) (int64, error) {
	return t.insert(ctx, "insert target",
		`INSERT INTO targets (year, month, revenue_target_cents, product_cost_percent, labor_cost_percent) VALUES (?, ?, ?, ?, ?)`,
		tg.Year, tg.Month, tg.RevenueTarget.Cents, tg.ProductCostPercent.String(), tg.LaborCostPercent.String())
}

func (t *sqlTx) UpdateTarget(ctx context.Context, tg core.Target) error {
	return t.exec(ctx, "update target",
		`UPDATE targets SET year = ?, month = ?, revenue_target_cents = ?, product_cost_percent = ?, labor_cost_percent = ? WHERE id = ?`,
		tg.Year, tg.Month, tg.RevenueTarget.Cents, tg.ProductCostPercent.String(), tg.LaborCostPercent.String(), tg.ID)
}

func (t *sqlTx) DeleteTarget(ctx context.Context, id int64) error {
	return t.exec(ctx, "delete target", `DELETE FROM targets WHERE id = ?`, id)
}

func (t *sqlTx) GetTarget(ctx context.Context, id int64) (core.Target, error) {
	var row targetRow
	if err := t.get(ctx, "get target", &row, `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id); err != nil {
		return core.Target{}, err
	}
	return row.toCore()
}

func targetWhere(f store.Filter) *where {
	w := &where{}
	if f.Year != 0 {
		w.add("year = ?", f.Year)
	}
	if f.Month != 0 {
		w.add("month = ?", f.Month)
	}
	return w
}

func (t *sqlTx) FindTargets(ctx context.Context, f store.Filter) ([]core.Target, error) {
	w := targetWhere(f)
	var rows []targetRow
	if err := t.tx.SelectContext(ctx, &rows, `SELECT `+targetColumns+` FROM targets`+w.String()+` ORDER BY year, month`, w.args...); err != nil {
		return nil, fmt.Errorf("find targets: %w", err)
	}
	out := make([]core.Target, 0, len(rows))
	for _, r := range rows {
		tg, err := r.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, tg)
	}
	return out, nil
}

func (t *sqlTx) Count(ctx context.Context, c store.Collection, f store.Filter) (int, error) {
	var w *where
	switch c {
	case store.Users:
		w = userWhere(f)
	case store.Categories:
		w = categoryWhere(f)
	case store.Suppliers:
		w = &where{}
	case store.Sales:
		w = saleWhere(f)
	case store.Expenses:
		w = expenseWhere(f)
	case store.Shifts:
		w = shiftWhere(f)
	case store.Targets:
		w = targetWhere(f)
	default:
		return 0, fmt.Errorf("count: unknown collection %q", c)
	}
	var n int
	if err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+string(c)+w.String(), w.args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", c, err)
	}
	return n, nil
}
