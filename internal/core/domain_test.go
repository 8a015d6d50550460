package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMonthWindow(t *testing.T) {
	cases := []struct {
		year, month int
		last        string
	}{
		{2024, 2, "2024-02-29"},
		{2025, 2, "2025-02-28"},
		{1900, 2, "1900-02-28"},
		{2000, 2, "2000-02-29"},
		{2025, 4, "2025-04-30"},
		{2025, 12, "2025-12-31"},
	}
	for _, tc := range cases {
		first, last, err := MonthWindow(tc.year, tc.month)
		if err != nil {
			t.Fatalf("%d-%d: unexpected error %v", tc.year, tc.month, err)
		}
		if first.Day() != 1 || first.Month() != tc.month {
			t.Fatalf("%d-%d: bad first day %s", tc.year, tc.month, first)
		}
		if last.String() != tc.last {
			t.Fatalf("%d-%d: expected last %s, got %s", tc.year, tc.month, tc.last, last)
		}
	}

	if _, _, err := MonthWindow(2025, 13); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(NewDate(2025, 1, 10).Time) {
		t.Fatalf("unexpected date %v", d)
	}
	if _, err := ParseDate("10/01/2025"); err == nil {
		t.Fatalf("expected error for non ISO date")
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestSaleValidate(t *testing.T) {
	good := Sale{UserID: 1, CategoryID: 2, Amount: Money{Cents: 100}, Date: NewDate(2025, 1, 1)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Sale{
		{UserID: 0, CategoryID: 2, Amount: Money{Cents: 100}, Date: NewDate(2025, 1, 1)},
		{UserID: 1, CategoryID: 0, Amount: Money{Cents: 100}, Date: NewDate(2025, 1, 1)},
		{UserID: 1, CategoryID: 2, Amount: Money{Cents: 0}, Date: NewDate(2025, 1, 1)},
		{UserID: 1, CategoryID: 2, Amount: Money{Cents: 100}},
	}
	for i, s := range bads {
		err := s.Validate()
		if !IsKind(err, KindValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestShiftValidate(t *testing.T) {
	ok := Shift{UserID: 1, Date: NewDate(2025, 1, 10), Hours: decimal.Zero}
	if err := ok.Validate(); err != nil {
		t.Fatalf("zero hours should be valid, got %v", err)
	}
	neg := Shift{UserID: 1, Date: NewDate(2025, 1, 10), Hours: decimal.NewFromInt(-1)}
	if err := neg.Validate(); err == nil {
		t.Fatalf("expected error for negative hours")
	}
}

func TestTargetValidate(t *testing.T) {
	good := Target{Year: 2025, Month: 1, ProductCostPercent: decimal.NewFromInt(30), LaborCostPercent: decimal.NewFromInt(28)}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := good
	bad.LaborCostPercent = decimal.NewFromInt(101)
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for percent above 100")
	}
}

func TestCategoryValidateRejectsUnknownType(t *testing.T) {
	err := Category{Name: "Misc", Type: "expense"}.Validate()
	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeInvalidCategoryType {
		t.Fatalf("expected invalid category type error, got %v", err)
	}
}

func TestStoreFailurePreservesKind(t *testing.T) {
	nf := NotFound("sale", 3)
	if got := StoreFailure("get sale", nf); !IsKind(got, KindNotFound) {
		t.Fatalf("expected not_found to pass through, got %v", got)
	}
	raw := errors.New("disk full")
	got := StoreFailure("insert sale", raw)
	if !IsKind(got, KindStore) || !errors.Is(got, raw) {
		t.Fatalf("expected wrapped store error, got %v", got)
	}
}
