package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bottega/internal/sheets"
)

// Store keeps exported rows in process. Used when no spreadsheet is
// configured and in tests.
type Store struct {
	mu     sync.Mutex
	rows   map[string]sheets.SummaryRow
	writes int
}

var (
	_ sheets.SummaryWriter = (*Store)(nil)
	_ sheets.SummaryReader = (*Store)(nil)
)

func New() *Store {
	return &Store{rows: map[string]sheets.SummaryRow{}}
}

func (s *Store) WriteSummary(_ context.Context, row sheets.SummaryRow) (string, error) {
	if row.Month < 1 || row.Month > 12 {
		return "", fmt.Errorf("invalid month: %d", row.Month)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.Period()] = row
	s.writes++
	return "mem:" + row.Period(), nil
}

func (s *Store) ReadSummary(_ context.Context, year, month int) (sheets.SummaryRow, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[sheets.Period(year, month)]
	return row, ok, nil
}

// Periods lists stored months in order.
func (s *Store) Periods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows))
	for k := range s.rows {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Writes counts WriteSummary calls, including overwrites.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
