// Package sheets exports monthly summaries to a spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bottega/internal/core"
)

// Ports for outbound adapters.
type (
	// SummaryWriter stores one row per month, replacing the month's
	// previous row if any.
	SummaryWriter interface {
		WriteSummary(ctx context.Context, row SummaryRow) (rowRef string, err error)
	}

	SummaryReader interface {
		ReadSummary(ctx context.Context, year, month int) (SummaryRow, bool, error)
	}
)

// Header is the first row of the summary sheet.
var Header = []string{
	"Period", "Revenue", "Supplier expenses", "Fixed expenses", "Operational expenses",
	"Labor costs", "Total expenses", "Net profit", "Product cost %", "Labor cost %",
	"Labor hours", "Revenue target", "Updated at",
}

// SummaryRow is the flattened export of a core.Summary.
type SummaryRow struct {
	Year, Month         int
	Revenue             core.Money
	SupplierExpenses    core.Money
	FixedExpenses       core.Money
	OperationalExpenses core.Money
	LaborCosts          core.Money
	TotalExpenses       core.Money
	NetProfit           core.Money
	ProductCostPercent  decimal.Decimal
	LaborCostPercent    decimal.Decimal
	LaborHours          decimal.Decimal
	// RevenueTarget is zero when the month has no target.
	RevenueTarget core.Money
	UpdatedAt     time.Time
}

func RowFromSummary(s core.Summary, now time.Time) SummaryRow {
	row := SummaryRow{
		Year:                s.Year,
		Month:               s.Month,
		Revenue:             s.TotalRevenue,
		SupplierExpenses:    s.SupplierExpenses,
		FixedExpenses:       s.FixedExpenses,
		OperationalExpenses: s.OperationalExpenses,
		LaborCosts:          s.LaborCosts,
		TotalExpenses:       s.TotalExpenses,
		NetProfit:           s.NetProfit,
		ProductCostPercent:  s.ProductCostPercent,
		LaborCostPercent:    s.LaborCostPercent,
		LaborHours:          s.LaborHours,
		UpdatedAt:           now.UTC(),
	}
	if s.Target.Target != nil {
		row.RevenueTarget = s.Target.Target.RevenueTarget
	}
	return row
}

// Period is the row key, "YYYY-MM".
func Period(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func (r SummaryRow) Period() string { return Period(r.Year, r.Month) }

// Values renders the row in Header order. Money is written in euros so
// the sheet can sum it.
func (r SummaryRow) Values() []any {
	return []any{
		r.Period(),
		r.Revenue.Euros(),
		r.SupplierExpenses.Euros(),
		r.FixedExpenses.Euros(),
		r.OperationalExpenses.Euros(),
		r.LaborCosts.Euros(),
		r.TotalExpenses.Euros(),
		r.NetProfit.Euros(),
		r.ProductCostPercent.InexactFloat64(),
		r.LaborCostPercent.InexactFloat64(),
		r.LaborHours.InexactFloat64(),
		r.RevenueTarget.Euros(),
		r.UpdatedAt.Format(time.RFC3339),
	}
}
