package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bottega/internal/auth"
	"bottega/internal/core"
	"bottega/internal/store"
	"bottega/internal/store/memory"
)

func TestDefaultSeed(t *testing.T) {
	f, err := Default()
	require.NoError(t, err)

	require.Len(t, f.Users, 1)
	assert.Equal(t, "admin", f.Users[0].Username)
	assert.Equal(t, core.RoleAdmin, f.Users[0].Role)

	byType := map[core.CategoryType]int{}
	for _, c := range f.Categories {
		byType[c.Type]++
	}
	assert.Equal(t, 8, byType[core.CategoryIncome])
	assert.Equal(t, 5, byType[core.CategoryExpenseSupplier])
	assert.Equal(t, 7, byType[core.CategoryExpenseFixed])
	assert.Equal(t, 3, byType[core.CategoryExpenseOperational])
	assert.Len(t, f.Suppliers, 3)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "users:\n  - username: a\n    nickname: b\n"},
		{"bad role", "users:\n  - {username: a, password: secret1, name: A, role: owner}\n"},
		{"bad rate", "users:\n  - {username: a, password: secret1, name: A, role: worker, hourly_rate: \"-3\"}\n"},
		{"bad category type", "categories:\n  - {name: Gifts, type: gifts}\n"},
		{"nameless supplier", "suppliers:\n  - {phone: \"123\"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	doc := `users:
  - {username: dana, password: secret1, name: Dana, role: worker, hourly_rate: "12,50"}
suppliers:
  - {name: Acme, email: orders@acme.test}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Users, 1)
	rate, err := f.Users[0].rate()
	require.NoError(t, err)
	assert.Equal(t, int64(1250), rate.Cents)
	assert.Empty(t, f.Categories)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	f, err := Default()
	require.NoError(t, err)

	res, err := Apply(ctx, s, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 1, Categories: 23, Suppliers: 3}, res)

	res, err = Apply(ctx, s, f)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	err = s.View(ctx, func(tx store.Tx) error {
		users, err := tx.FindUsers(ctx, store.Filter{Username: "ADMIN"})
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.True(t, auth.CheckPassword(users[0].PasswordHash, "admin123"))
		assert.False(t, users[0].CreatedAt.IsZero())

		n, err := tx.Count(ctx, store.Categories, store.Filter{})
		require.NoError(t, err)
		assert.Equal(t, 23, n)
		return nil
	})
	require.NoError(t, err)
}

func TestApplyFillsGaps(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	err := s.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.InsertCategory(ctx, core.Category{Name: "Rent", Type: core.CategoryExpenseFixed}); err != nil {
			return err
		}
		// same name, different type: still missing
		if _, err := tx.InsertCategory(ctx, core.Category{Name: "Water", Type: core.CategoryExpenseOperational}); err != nil {
			return err
		}
		_, err := tx.InsertSupplier(ctx, core.Supplier{Name: "main FOOD supplier"})
		return err
	})
	require.NoError(t, err)

	f, err := Default()
	require.NoError(t, err)
	res, err := Apply(ctx, s, f)
	require.NoError(t, err)
	assert.Equal(t, 22, res.Categories)
	assert.Equal(t, 2, res.Suppliers)
}

func TestApplyRejectsWeakPassword(t *testing.T) {
	f := &File{Users: []User{{Username: "x", Password: "123", Name: "X", Role: core.RoleWorker}}}
	_, err := Apply(context.Background(), memory.New(), f)
	assert.ErrorIs(t, err, auth.ErrWeakPassword)
}
