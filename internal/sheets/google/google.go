package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "bottega/internal/sheets"
)

const defaultSheetName = "Summary"

// Client writes one row per month to the summary tab of a spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// rows caches the period column so repeated exports of the same
	// month do not re-read the sheet.
	mu                 sync.Mutex
	rows               map[string]int
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var (
	_ ports.SummaryWriter = (*Client)(nil)
	_ ports.SummaryReader = (*Client)(nil)
)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID and one of GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SUMMARY_SHEET_NAME (default "Summary").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", spreadsheetID)
	return New(svc, spreadsheetID, os.Getenv("GOOGLE_SUMMARY_SHEET_NAME")), nil
}

func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: 5 * time.Minute,
	}
}

func credentialsFromEnv() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// WriteSummary updates the month's row in place or appends it. The header
// row is written when the sheet is empty.
func (c *Client) WriteSummary(ctx context.Context, row ports.SummaryRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if row.Month < 1 || row.Month > 12 {
		return "", fmt.Errorf("invalid month: %d", row.Month)
	}

	index, count, err := c.periodIndex(ctx)
	if err != nil {
		return "", err
	}

	if count == 0 {
		header := make([]any, len(ports.Header))
		for i, h := range ports.Header {
			header[i] = h
		}
		if err := c.update(ctx, 1, header); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		count = 1
	}

	target, exists := index[row.Period()]
	if !exists {
		target = count + 1
	}
	if err := c.update(ctx, target, row.Values()); err != nil {
		c.invalidate()
		return "", fmt.Errorf("write %s: %w", row.Period(), err)
	}

	c.remember(row.Period(), target, max(count, target))
	slog.InfoContext(ctx, "Summary exported", "period", row.Period(), "row", target, "replaced", exists)
	return c.rangeFor(target), nil
}

// ReadSummary reads the month's row back.
func (c *Client) ReadSummary(ctx context.Context, year, month int) (ports.SummaryRow, bool, error) {
	if c.svc == nil {
		return ports.SummaryRow{}, false, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:M", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return ports.SummaryRow{}, false, fmt.Errorf("read %s: %w", rng, err)
	}
	n := findPeriodRow(resp.Values, ports.Period(year, month))
	if n == 0 {
		return ports.SummaryRow{}, false, nil
	}
	row, err := parseSummaryRow(resp.Values[n-1])
	if err != nil {
		return ports.SummaryRow{}, false, fmt.Errorf("parse row %d: %w", n, err)
	}
	return row, true, nil
}

func (c *Client) update(ctx context.Context, rowNumber int, values []any) error {
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rangeFor(rowNumber), vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (c *Client) rangeFor(rowNumber int) string {
	return fmt.Sprintf("%s!A%d:M%d", c.sheetName, rowNumber, rowNumber)
}

// periodIndex returns period -> 1-based row number and the used row count.
func (c *Client) periodIndex(ctx context.Context) (map[string]int, int, error) {
	c.mu.Lock()
	if c.rows != nil && time.Now().Before(c.cacheExpiresAt) {
		index, count := c.rows, c.cachedRowCount
		c.mu.Unlock()
		return index, count, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", rng, err)
	}
	index := indexPeriods(resp.Values)

	c.mu.Lock()
	c.rows = index
	c.cachedRowCount = len(resp.Values)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()
	return index, len(resp.Values), nil
}

func (c *Client) remember(period string, rowNumber, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rows == nil {
		return
	}
	next := make(map[string]int, len(c.rows)+1)
	for k, v := range c.rows {
		next[k] = v
	}
	next[period] = rowNumber
	c.rows = next
	c.cachedRowCount = count
}

func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = nil
	c.cachedRowCount = 0
	c.cacheExpiresAt = time.Time{}
}
