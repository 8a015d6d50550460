package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bottega/internal/aggregate"
	"bottega/internal/amqp"
	"bottega/internal/core"
	"bottega/internal/sheets"
	sheetsmem "bottega/internal/sheets/memory"
	"bottega/internal/store"
	"bottega/internal/store/memory"
	"bottega/internal/store/storetest"
)

func TestExportWorker_ExportsTouchedMonth(t *testing.T) {
	s := memory.New()
	fix := storetest.Seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		_, err := tx.InsertSale(ctx, core.Sale{UserID: fix.Worker, CategoryID: fix.Income, Amount: core.Money{Cents: 4200}, Date: core.NewDate(2025, 2, 10)})
		return err
	}))

	out := sheetsmem.New()
	w := NewExportWorker(aggregate.New(s), out)

	msg := amqp.NewLedgerChangedMessage("sales", 1, amqp.OpCreate, 2025, 2)
	require.NoError(t, w.HandleLedgerChanged(ctx, msg))

	row, ok, err := out.ReadSummary(ctx, 2025, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4200), row.Revenue.Cents)

	require.NoError(t, w.HandleLedgerChanged(ctx, msg))
	assert.Equal(t, 1, out.Writes(), "redelivery is skipped")
}

func TestExportWorker_GlobalChangeUsesCurrentMonth(t *testing.T) {
	s := memory.New()
	storetest.Seed(t, s)
	out := sheetsmem.New()
	w := NewExportWorker(aggregate.New(s), out)
	w.now = func() time.Time { return time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, w.HandleLedgerChanged(context.Background(), amqp.NewLedgerChangedMessage("categories", 3, amqp.OpUpdate, 0, 0)))
	assert.Equal(t, []string{"2025-07"}, out.Periods())
}

type failingWriter struct{ err error }

func (f failingWriter) WriteSummary(context.Context, sheets.SummaryRow) (string, error) {
	return "", f.err
}

func TestExportWorker_WriteFailureIsRetried(t *testing.T) {
	s := memory.New()
	storetest.Seed(t, s)
	boom := errors.New("quota exceeded")
	w := NewExportWorker(aggregate.New(s), failingWriter{err: boom})

	msg := amqp.NewLedgerChangedMessage("sales", 1, amqp.OpCreate, 2025, 2)
	err := w.HandleLedgerChanged(context.Background(), msg)
	assert.ErrorIs(t, err, boom)

	_, seen := w.seen.Get(msg.MessageID.String())
	assert.False(t, seen, "failed messages must stay eligible for redelivery")
}

type recordingRetrier struct{ months []string }

func (r *recordingRetrier) Enqueue(year, month int) {
	r.months = append(r.months, sheets.Period(year, month))
}

func TestExportWorker_WriteFailureGoesToRetrier(t *testing.T) {
	s := memory.New()
	storetest.Seed(t, s)
	retrier := &recordingRetrier{}
	w := NewExportWorker(aggregate.New(s), failingWriter{err: errors.New("quota exceeded")}).WithRetrier(retrier)

	msg := amqp.NewLedgerChangedMessage("expenses", 4, amqp.OpDelete, 2025, 3)
	require.NoError(t, w.HandleLedgerChanged(context.Background(), msg))
	require.NoError(t, w.HandleLedgerChanged(context.Background(), msg))
	assert.Equal(t, []string{"2025-03"}, retrier.months)
}
