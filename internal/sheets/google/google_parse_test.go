package google

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bottega/internal/core"
	ports "bottega/internal/sheets"
)

func TestIndexPeriods(t *testing.T) {
	values := [][]any{
		{"Period", "Revenue"},
		{"2025-01", 100.0},
		{},
		{"2025-02", 80.5},
		{"notes", ""},
		{"2025-01", 1.0},
	}
	index := indexPeriods(values)
	if len(index) != 2 {
		t.Fatalf("index = %v, want 2 periods", index)
	}
	if index["2025-01"] != 2 {
		t.Errorf("2025-01 row = %d, want first occurrence 2", index["2025-01"])
	}
	if got := findPeriodRow(values, "2025-02"); got != 4 {
		t.Errorf("2025-02 row = %d, want 4", got)
	}
	if got := findPeriodRow(values, "2025-03"); got != 0 {
		t.Errorf("missing period row = %d, want 0", got)
	}
}

func TestParseSummaryRow_RoundTrip(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)
	in := ports.SummaryRow{
		Year: 2025, Month: 3,
		Revenue:             core.Money{Cents: 18000},
		SupplierExpenses:    core.Money{Cents: 4000},
		FixedExpenses:       core.Money{Cents: 2000},
		OperationalExpenses: core.Money{Cents: 0},
		LaborCosts:          core.Money{Cents: 10000},
		TotalExpenses:       core.Money{Cents: 16000},
		NetProfit:           core.Money{Cents: 2000},
		ProductCostPercent:  decimal.RequireFromString("22.2"),
		LaborCostPercent:    decimal.RequireFromString("55.6"),
		LaborHours:          decimal.RequireFromString("4"),
		RevenueTarget:       core.Money{Cents: 50000},
		UpdatedAt:           now,
	}

	out, err := parseSummaryRow(in.Values())
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if out.Period() != "2025-03" {
		t.Errorf("period = %s", out.Period())
	}
	if out.Revenue != in.Revenue || out.NetProfit != in.NetProfit || out.RevenueTarget != in.RevenueTarget {
		t.Errorf("money mismatch: %+v", out)
	}
	if !out.LaborCostPercent.Equal(in.LaborCostPercent) || !out.ProductCostPercent.Equal(in.ProductCostPercent) {
		t.Errorf("percent mismatch: %s %s", out.ProductCostPercent, out.LaborCostPercent)
	}
	if !out.UpdatedAt.Equal(now) {
		t.Errorf("updated at = %v", out.UpdatedAt)
	}
}

func TestParseSummaryRow_CommaDecimalsAndLoss(t *testing.T) {
	raw := []any{"2025-02", "1.234,5", "0", "0", "0", "0", "1500", "-265,5", "0", "0", "0", "0"}
	// "1.234,5" is not a plain decimal once the comma is swapped
	if _, err := parseSummaryRow(raw); err == nil {
		t.Fatal("expected error for thousands separator")
	}

	raw[1] = "1234,5"
	row, err := parseSummaryRow(raw)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if row.Revenue.Cents != 123450 {
		t.Errorf("revenue = %d", row.Revenue.Cents)
	}
	if row.NetProfit.Cents != -26550 {
		t.Errorf("net profit = %d, want -26550", row.NetProfit.Cents)
	}
	if !row.UpdatedAt.IsZero() {
		t.Errorf("updated at should be zero without the column")
	}
}

func TestParseSummaryRow_Short(t *testing.T) {
	if _, err := parseSummaryRow([]any{"2025-01", 1.0}); err == nil {
		t.Fatal("expected error for a short row")
	}
}

func TestIsPeriod(t *testing.T) {
	cases := map[string]bool{"2025-01": true, "2025-1": false, "Period": false, "2025-13": false, "": false}
	for in, want := range cases {
		if got := isPeriod(in); got != want {
			t.Errorf("isPeriod(%q) = %v, want %v", in, got, want)
		}
	}
}
