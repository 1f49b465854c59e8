package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblac/paywatch/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCursorUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.GetCursor(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UpsertCursor(ctx, "s1", 10))
	seq, ok, err := store.GetCursor(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(10), seq)

	require.NoError(t, store.UpsertCursor(ctx, "s1", 20))
	seq, _, err = store.GetCursor(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), seq)

	rows, err := store.ListCursors(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s1", rows[0].StreamID)
	assert.Equal(t, uint64(20), rows[0].SequenceNumber)

	assert.Error(t, store.UpsertCursor(ctx, "", 1))
}

func TestDedupeTTL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.MarkDedupe(ctx, "k1", now.Add(1*time.Second)))
	dup, err := store.IsDuplicate(ctx, "k1", now)
	require.NoError(t, err)
	assert.True(t, dup, "expected duplicate before expiry")

	dup, err = store.IsDuplicate(ctx, "k1", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, dup, "expected non-duplicate after expiry")
}

func TestRecordPaymentOncePerSequence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := ledger.Event{
		SequenceNumber: 7,
		Version:        99,
		Payment: ledger.Payment{
			PaymentID: "order-7", Sender: "0xa", Amount: 1_000_000,
			Timestamp: 1_700_000_000, AdditionalData: "vip", Treasury: "0xt",
		},
	}

	inserted, err := store.RecordPayment(ctx, "stream", ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.RecordPayment(ctx, "stream", ev)
	require.NoError(t, err)
	assert.False(t, inserted, "replayed event must not be recorded twice")

	ev.SequenceNumber = 8
	_, err = store.RecordPayment(ctx, "other", ev)
	require.NoError(t, err)

	all, err := store.ListPayments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := store.ListPayments(ctx, "stream")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "order-7", one[0].PaymentID)
	assert.Equal(t, uint64(1_000_000), one[0].Amount)
	assert.Equal(t, uint64(99), one[0].Version)
	assert.Equal(t, "vip", one[0].AdditionalData)
}

func TestSaveSubmissionUpdatesState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSubmission(ctx, Submission{PaymentID: "p1", Amount: 5, State: ledger.TxSubmitted, TxHash: "0xh"}))
	require.NoError(t, store.SaveSubmission(ctx, Submission{PaymentID: "p1", Amount: 5, State: ledger.TxConfirmedOK, TxHash: "0xh", GasUsed: 12, Version: 40, VMStatus: "Executed successfully"}))

	subs, err := store.ListSubmissions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, ledger.TxConfirmedOK, subs[0].State)
	assert.Equal(t, uint64(40), subs[0].Version)
	assert.Equal(t, uint64(12), subs[0].GasUsed)

	assert.Error(t, store.SaveSubmission(ctx, Submission{PaymentID: "p2"}))
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	store.Close()
	assert.Error(t, store.Ping(ctx), "expected ping to fail after close")
}

func TestBadgerCursors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cur, err := OpenBadgerCursors(dir)
	require.NoError(t, err)

	_, ok, err := cur.GetCursor(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cur.UpsertCursor(ctx, "s1", 12))
	require.NoError(t, cur.Close())

	reopened, err := OpenBadgerCursors(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	seq, ok, err := reopened.GetCursor(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(12), seq)
}

func TestMemoryCursors(t *testing.T) {
	ctx := context.Background()
	cur := NewMemoryCursors()

	_, ok, err := cur.GetCursor(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cur.UpsertCursor(ctx, "s1", 3))
	seq, ok, err := cur.GetCursor(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), seq)
}
