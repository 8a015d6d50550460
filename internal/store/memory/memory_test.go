package memory

import (
	"context"
	"testing"

	"bottega/internal/core"
	"bottega/internal/store"
	"bottega/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestViewKeepsSnapshotAcrossCommit(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.View(ctx, func(tx store.Tx) error {
		if err := s.Update(ctx, func(w store.Tx) error {
			_, err := w.InsertSupplier(ctx, core.Supplier{Name: "late"})
			return err
		}); err != nil {
			t.Fatalf("update: %v", err)
		}
		suppliers, err := tx.FindSuppliers(ctx, store.Filter{})
		if err != nil {
			return err
		}
		if len(suppliers) != 0 {
			t.Fatalf("snapshot saw a later commit: %v", suppliers)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestClosedStoreRejectsTransactions(t *testing.T) {
	s := New()
	_ = s.Close()
	if err := s.View(context.Background(), func(store.Tx) error { return nil }); err == nil {
		t.Fatalf("expected error after close")
	}
}
