package http

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"bottega/internal/core"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
		check   func(t *testing.T, from, to string)
	}{
		{name: "empty", query: ""},
		{name: "month window", query: "year=2024&month=2", check: func(t *testing.T, from, to string) {
			if from != "2024-02-01" || to != "2024-02-29" {
				t.Errorf("window = %s..%s", from, to)
			}
		}},
		{name: "explicit range", query: "from=2025-01-05&to=2025-01-20", check: func(t *testing.T, from, to string) {
			if from != "2025-01-05" || to != "2025-01-20" {
				t.Errorf("range = %s..%s", from, to)
			}
		}},
		{name: "year without month", query: "year=2025", wantErr: true},
		{name: "month out of range", query: "year=2025&month=13", wantErr: true},
		{name: "month and range", query: "year=2025&month=1&from=2025-01-01", wantErr: true},
		{name: "reversed range", query: "from=2025-02-01&to=2025-01-01", wantErr: true},
		{name: "bad date", query: "date=2025-02-30", wantErr: true},
		{name: "bad user", query: "user_id=-1", wantErr: true},
		{name: "bad category type", query: "category_type=gifts", wantErr: true},
		{name: "ids and type", query: "user_id=3&category_id=4&supplier_id=5&category_type=expense_fixed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			f, err := parseFilter(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !core.IsKind(err, core.KindValidation) {
					t.Errorf("error kind = %s", core.KindOf(err))
				}
				return
			}
			if tt.check != nil {
				tt.check(t, f.From.String(), f.To.String())
			}
			if tt.name == "ids and type" && (f.UserID != 3 || f.CategoryID != 4 || f.SupplierID != 5 || f.CategoryType != core.CategoryExpenseFixed) {
				t.Errorf("filter = %+v", f)
			}
		})
	}
}

func TestParseMonthDefaults(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	y, m, err := parseMonth(url.Values{}, now)
	if err != nil || y != 2025 || m != 6 {
		t.Errorf("defaults = %d-%d, %v", y, m, err)
	}
	y, m, err = parseMonth(url.Values{"month": {"2"}}, now)
	if err != nil || y != 2025 || m != 2 {
		t.Errorf("month only = %d-%d, %v", y, m, err)
	}
	if _, _, err := parseMonth(url.Values{"year": {"twenty"}}, now); err == nil {
		t.Error("expected error for non-numeric year")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.Unauthenticated("x"), http.StatusUnauthorized},
		{core.Forbidden("x"), http.StatusForbidden},
		{core.Invalid("x"), http.StatusBadRequest},
		{core.InvalidCategoryType("x"), http.StatusUnprocessableEntity},
		{core.ReferentialConflict([]string{"sales"}, "x"), http.StatusConflict},
		{core.SelfDeletion(), http.StatusBadRequest},
		{core.NotFound("sale", 1), http.StatusNotFound},
		{core.StoreFailure("insert", errors.New("disk full")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
