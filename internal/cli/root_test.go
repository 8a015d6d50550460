package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bottega/internal/core"
	"bottega/internal/seed"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "bottegactl", cmd.Use)

	for _, path := range [][]string{{"migrate"}, {"seed"}, {"user", "add"}, {"user", "list"}, {"summary"}, {"export"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

// isolate clears the environment keys bottegactl reads and returns a
// fresh database path.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"DATA_BACKEND", "SEED_FILE", "AMQP_URL", "GOOGLE_SPREADSHEET_ID", "BOTTEGA_PASSWORD"} {
		t.Setenv(key, "")
	}
	return filepath.Join(t.TempDir(), "bottega.db")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInvalidFormat(t *testing.T) {
	db := isolate(t)
	_, err := run(t, "--format", "xml", "--db", db, "migrate")
	assert.ErrorContains(t, err, "invalid format")
}

func TestMigrate(t *testing.T) {
	db := isolate(t)
	out, err := run(t, "--db", db, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version")
}

func TestSeedTwice(t *testing.T) {
	db := isolate(t)

	out, err := run(t, "--db", db, "--format", "json", "seed")
	require.NoError(t, err)
	var res seed.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, seed.Result{Users: 1, Categories: 23, Suppliers: 3}, res)

	out, err = run(t, "--db", db, "seed")
	require.NoError(t, err)
	assert.Equal(t, "inserted 0 users, 0 categories, 0 suppliers\n", out)
}

func TestUserAddAndList(t *testing.T) {
	db := isolate(t)

	out, err := run(t, "--db", db, "user", "add", "--username", "dana", "--role", "worker", "--rate", "12,50", "--password", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "created user 1 dana (worker)\n", out)

	_, err = run(t, "--db", db, "user", "add", "--username", "DANA", "--password", "secret1")
	assert.Error(t, err, "usernames are unique regardless of case")

	_, err = run(t, "--db", db, "user", "add", "--username", "eli")
	assert.ErrorContains(t, err, "no password")

	t.Setenv("BOTTEGA_PASSWORD", "secret2")
	_, err = run(t, "--db", db, "user", "add", "--username", "eli", "--role", "shift_manager")
	require.NoError(t, err)

	_, err = run(t, "--db", db, "user", "add", "--username", "fay", "--role", "owner")
	assert.Error(t, err)

	out, err = run(t, "--db", db, "--format", "json", "user", "list")
	require.NoError(t, err)
	var users []core.User
	require.NoError(t, json.Unmarshal([]byte(out), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "dana", users[0].Username)
	assert.Equal(t, int64(1250), users[0].HourlyRate.Cents)
	assert.Equal(t, "eli", users[1].Name)
	assert.Equal(t, core.RoleShiftManager, users[1].Role)
}

func TestSummary(t *testing.T) {
	db := isolate(t)

	_, err := run(t, "--db", db, "summary", "--year", "2025", "--month", "13")
	assert.ErrorContains(t, err, "invalid --month")

	out, err := run(t, "--db", db, "--format", "json", "summary", "--year", "2025", "--month", "2")
	require.NoError(t, err)
	var s core.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 2025, s.Year)
	assert.Equal(t, "2025-02-28", s.To.String())
	assert.Equal(t, core.StatusNoTarget, s.Target.ProductCostStatus)
	assert.Contains(t, out, `"product_cost_percent": 0`, "ratios are JSON numbers")

	out, err = run(t, "--db", db, "summary", "--year", "2025", "--month", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-02 (2025-02-01 to 2025-02-28)")
	assert.Contains(t, out, "Net profit")
}

func TestExportNeedsSpreadsheet(t *testing.T) {
	db := isolate(t)
	_, err := run(t, "--db", db, "export", "--year", "2025", "--month", "1")
	assert.ErrorContains(t, err, "GOOGLE_SPREADSHEET_ID")
}
