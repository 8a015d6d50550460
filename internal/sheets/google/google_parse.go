package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bottega/internal/core"
	ports "bottega/internal/sheets"
)

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// indexPeriods maps every "YYYY-MM" key in column A to its 1-based row.
// The header and blank rows are skipped.
func indexPeriods(values [][]any) map[string]int {
	index := make(map[string]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		key := strings.TrimSpace(fmt.Sprint(row[0]))
		if !isPeriod(key) {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i + 1
		}
	}
	return index
}

func findPeriodRow(values [][]any, period string) int {
	return indexPeriods(values)[period]
}

func isPeriod(s string) bool {
	_, err := time.Parse("2006-01", s)
	return err == nil && len(s) == 7
}

// parseSummaryRow reads a row written by SummaryRow.Values. Sheets may
// return numbers formatted with a decimal comma.
func parseSummaryRow(raw []any) (ports.SummaryRow, error) {
	cols := toStrings(raw)
	if len(cols) < len(ports.Header)-1 {
		return ports.SummaryRow{}, fmt.Errorf("expected %d columns, got %d", len(ports.Header), len(cols))
	}
	period, err := time.Parse("2006-01", cols[0])
	if err != nil {
		return ports.SummaryRow{}, fmt.Errorf("period %q: %w", cols[0], err)
	}
	row := ports.SummaryRow{Year: period.Year(), Month: int(period.Month())}

	money := []*core.Money{
		&row.Revenue, &row.SupplierExpenses, &row.FixedExpenses, &row.OperationalExpenses,
		&row.LaborCosts, &row.TotalExpenses, &row.NetProfit,
	}
	for i, dst := range money {
		if *dst, err = parseEuros(cols[1+i]); err != nil {
			return ports.SummaryRow{}, fmt.Errorf("%s: %w", ports.Header[1+i], err)
		}
	}
	numbers := []*decimal.Decimal{&row.ProductCostPercent, &row.LaborCostPercent, &row.LaborHours}
	for i, dst := range numbers {
		if *dst, err = parseNumber(cols[8+i]); err != nil {
			return ports.SummaryRow{}, fmt.Errorf("%s: %w", ports.Header[8+i], err)
		}
	}
	if row.RevenueTarget, err = parseEuros(cols[11]); err != nil {
		return ports.SummaryRow{}, fmt.Errorf("%s: %w", ports.Header[11], err)
	}
	if len(cols) > 12 && cols[12] != "" {
		if row.UpdatedAt, err = time.Parse(time.RFC3339, cols[12]); err != nil {
			return ports.SummaryRow{}, fmt.Errorf("%s: %w", ports.Header[12], err)
		}
	}
	return row, nil
}

func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
}

// parseEuros converts a signed euro amount to cents, rounding half away
// from zero.
func parseEuros(s string) (core.Money, error) {
	d, err := parseNumber(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: d.Shift(2).Round(0).IntPart()}, nil
}
