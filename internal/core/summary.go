package core

import "github.com/shopspring/decimal"

const (
	StatusNoTarget TargetStatus = "no_target"
	StatusOver     TargetStatus = "over"
	StatusUnder    TargetStatus = "under"
)

type TargetStatus string

// CategoryTotal is an amount aggregated by category.
type CategoryTotal struct {
	CategoryID int64        `json:"category_id"`
	Name       string       `json:"name"`
	Type       CategoryType `json:"type"`
	Total      Money        `json:"total"`
}

type SupplierTotal struct {
	SupplierID int64  `json:"supplier_id"`
	Name       string `json:"name"`
	Total      Money  `json:"total"`
}

type DailyTotal struct {
	Date  Date  `json:"date"`
	Total Money `json:"total"`
}

type UserTotal struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Total  Money  `json:"total"`
}

// TargetComparison holds the month's target and how the actuals compare.
// RevenueProgress is nil when no positive revenue target is set.
type TargetComparison struct {
	Target            *Target          `json:"target,omitempty"`
	RevenueProgress   *decimal.Decimal `json:"revenue_progress,omitempty"`
	ProductCostStatus TargetStatus     `json:"product_cost_status"`
	LaborCostStatus   TargetStatus     `json:"labor_cost_status"`
}

// Summary is the monthly financial read model.
type Summary struct {
	Year  int  `json:"year"`
	Month int  `json:"month"`
	From  Date `json:"from"`
	To    Date `json:"to"`

	TotalRevenue        Money `json:"total_revenue"`
	SupplierExpenses    Money `json:"supplier_expenses"`
	FixedExpenses       Money `json:"fixed_expenses"`
	OperationalExpenses Money `json:"operational_expenses"`
	LaborCosts          Money `json:"labor_costs"`
	TotalExpenses       Money `json:"total_expenses"`
	NetProfit           Money `json:"net_profit"`

	LaborHours         decimal.Decimal `json:"labor_hours"`
	ProductCostPercent decimal.Decimal `json:"product_cost_percent"`
	LaborCostPercent   decimal.Decimal `json:"labor_cost_percent"`

	RevenueByCategory  []CategoryTotal `json:"revenue_by_category"`
	ExpensesByCategory []CategoryTotal `json:"expenses_by_category"`
	TopSuppliers       []SupplierTotal `json:"top_suppliers"`
	DailyRevenue       []DailyTotal    `json:"daily_revenue"`
	SalesByUser        []UserTotal     `json:"sales_by_user,omitempty"`
	RecentSales        []Sale          `json:"recent_sales"`
	RecentExpenses     []Expense       `json:"recent_expenses"`

	Target TargetComparison `json:"target"`
}
