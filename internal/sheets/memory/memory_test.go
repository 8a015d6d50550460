package memory

import (
	"context"
	"testing"
	"time"

	"bottega/internal/core"
	"bottega/internal/sheets"
)

func TestStore_WriteReplacesPeriod(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := sheets.SummaryRow{Year: 2025, Month: 3, Revenue: core.Money{Cents: 100}, UpdatedAt: time.Now()}
	ref, err := s.WriteSummary(ctx, first)
	if err != nil {
		t.Fatalf("WriteSummary error: %v", err)
	}
	if ref != "mem:2025-03" {
		t.Errorf("ref = %q", ref)
	}

	second := first
	second.Revenue = core.Money{Cents: 250}
	if _, err := s.WriteSummary(ctx, second); err != nil {
		t.Fatalf("WriteSummary error: %v", err)
	}

	got, ok, err := s.ReadSummary(ctx, 2025, 3)
	if err != nil || !ok {
		t.Fatalf("ReadSummary = %v, %v", ok, err)
	}
	if got.Revenue.Cents != 250 {
		t.Errorf("revenue = %d, want 250", got.Revenue.Cents)
	}
	if len(s.Periods()) != 1 || s.Writes() != 2 {
		t.Errorf("periods = %v, writes = %d", s.Periods(), s.Writes())
	}
}

func TestStore_RejectsBadMonth(t *testing.T) {
	if _, err := New().WriteSummary(context.Background(), sheets.SummaryRow{Year: 2025, Month: 13}); err == nil {
		t.Fatal("expected error for month 13")
	}
}

func TestStore_MissingPeriod(t *testing.T) {
	_, ok, err := New().ReadSummary(context.Background(), 2024, 1)
	if err != nil || ok {
		t.Fatalf("ReadSummary = %v, %v; want false, nil", ok, err)
	}
}
