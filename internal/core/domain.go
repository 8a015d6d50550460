package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

const (
	RoleAdmin        Role = "admin"
	RoleShiftManager Role = "shift_manager"
	RoleWorker       Role = "worker"
)

const (
	CategoryIncome             CategoryType = "income"
	CategoryExpenseSupplier    CategoryType = "expense_supplier"
	CategoryExpenseFixed       CategoryType = "expense_fixed"
	CategoryExpenseOperational CategoryType = "expense_operational"
)

type (
	Role         string
	CategoryType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID           int64     `json:"id"`
		Username     string    `json:"username"`
		PasswordHash string    `json:"-"`
		Name         string    `json:"name"`
		Role         Role      `json:"role"`
		HourlyRate   Money     `json:"hourly_rate"`
		CreatedAt    time.Time `json:"created_at"`
	}

	Category struct {
		ID   int64        `json:"id"`
		Name string       `json:"name"`
		Type CategoryType `json:"type"`
	}

	Supplier struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		ContactName string `json:"contact_name,omitempty"`
		Phone       string `json:"phone,omitempty"`
		Email       string `json:"email,omitempty"`
	}

	Sale struct {
		ID         int64  `json:"id"`
		UserID     int64  `json:"user_id"`
		CategoryID int64  `json:"category_id"`
		Amount     Money  `json:"amount"`
		Date       Date   `json:"date"`
		Notes      string `json:"notes,omitempty"`
	}

	Expense struct {
		ID         int64  `json:"id"`
		CategoryID int64  `json:"category_id"`
		SupplierID *int64 `json:"supplier_id,omitempty"`
		Amount     Money  `json:"amount"`
		Date       Date   `json:"date"`
		Notes      string `json:"notes,omitempty"`
	}

	// Shift cost is hours times the owner's current hourly rate; the rate is
	// never copied onto the row.
	Shift struct {
		ID     int64           `json:"id"`
		UserID int64           `json:"user_id"`
		Date   Date            `json:"date"`
		Hours  decimal.Decimal `json:"hours"`
	}

	Target struct {
		ID                 int64           `json:"id"`
		Year               int             `json:"year"`
		Month              int             `json:"month"`
		RevenueTarget      Money           `json:"revenue_target"`
		ProductCostPercent decimal.Decimal `json:"product_cost_percent"`
		LaborCostPercent   decimal.Decimal `json:"labor_cost_percent"`
	}
)

var (
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
)

var (
	DefaultProductCostPercent = decimal.NewFromInt(30)
	DefaultLaborCostPercent   = decimal.NewFromInt(28)
)

var hundred = decimal.NewFromInt(100)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleShiftManager, RoleWorker:
		return true
	}
	return false
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

func (t CategoryType) IsValid() bool {
	return t == CategoryIncome || t.IsExpense()
}

// IsExpense reports whether t is one of the three expense subtypes.
func (t CategoryType) IsExpense() bool {
	switch t {
	case CategoryExpenseSupplier, CategoryExpenseFixed, CategoryExpenseOperational:
		return true
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// MonthWindow returns the first and last calendar day of the month.
func MonthWindow(year, month int) (Date, Date, error) {
	if month < 1 || month > 12 {
		return Date{}, Date{}, ErrInvalidMonth
	}
	if year < 1 || year > 9999 {
		return Date{}, Date{}, errors.New("invalid year")
	}
	first := NewDate(year, month, 1)
	// day 0 of the next month normalizes to the last day of this one
	last := Date{Time: time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)}
	return first, last, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return Invalid("username is required")
	}
	if len(u.Username) > 64 {
		return Invalid("username too long (max 64 characters)")
	}
	if strings.TrimSpace(u.Name) == "" {
		return Invalid("name is required")
	}
	if !u.Role.IsValid() {
		return Invalid("invalid role %q", u.Role)
	}
	if u.HourlyRate.Cents < 0 {
		return Invalid("hourly rate cannot be negative")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("category name is required")
	}
	if !c.Type.IsValid() {
		return InvalidCategoryType("unknown category type %q", c.Type)
	}
	return nil
}

func (s Supplier) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return Invalid("supplier name is required")
	}
	return nil
}

func (s Sale) Validate() error {
	if s.UserID <= 0 {
		return Invalid("user is required")
	}
	if s.CategoryID <= 0 {
		return Invalid("category is required")
	}
	if err := s.Amount.Validate(); err != nil {
		return Invalid("amount must be greater than zero")
	}
	if err := s.Date.Validate(); err != nil {
		return Invalid("invalid date: %v", err)
	}
	if len(s.Notes) > 500 {
		return Invalid("notes too long (max 500 characters)")
	}
	return nil
}

func (e Expense) Validate() error {
	if e.CategoryID <= 0 {
		return Invalid("category is required")
	}
	if e.SupplierID != nil && *e.SupplierID <= 0 {
		return Invalid("invalid supplier")
	}
	if err := e.Amount.Validate(); err != nil {
		return Invalid("amount must be greater than zero")
	}
	if err := e.Date.Validate(); err != nil {
		return Invalid("invalid date: %v", err)
	}
	if len(e.Notes) > 500 {
		return Invalid("notes too long (max 500 characters)")
	}
	return nil
}

func (s Shift) Validate() error {
	if s.UserID <= 0 {
		return Invalid("user is required")
	}
	if err := s.Date.Validate(); err != nil {
		return Invalid("invalid date: %v", err)
	}
	if s.Hours.IsNegative() {
		return Invalid("hours cannot be negative")
	}
	if s.Hours.GreaterThan(decimal.NewFromInt(24)) {
		return Invalid("hours cannot exceed 24 per day")
	}
	return nil
}

func (t Target) Validate() error {
	if t.Month < 1 || t.Month > 12 {
		return Invalid("month must be between 1 and 12")
	}
	if t.Year < 2000 || t.Year > 9999 {
		return Invalid("invalid year %d", t.Year)
	}
	if t.RevenueTarget.Cents < 0 {
		return Invalid("revenue target cannot be negative")
	}
	if !isPercent(t.ProductCostPercent) {
		return Invalid("product cost percent must be between 0 and 100")
	}
	if !isPercent(t.LaborCostPercent) {
		return Invalid("labor cost percent must be between 0 and 100")
	}
	return nil
}

func isPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}
