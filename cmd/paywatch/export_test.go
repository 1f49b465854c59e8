package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devblac/paywatch/internal/config"
	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/storage"
)

func TestExportPaymentsCSV(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.RecordPayment(ctx, "s1", ledger.Event{
		SequenceNumber: 3,
		Payment:        ledger.Payment{PaymentID: "order-3", Sender: "0xabc", Amount: 150_000_000, Timestamp: 1700000000},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export(ctx, store, &buf, "payments", "csv", "s1"))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "payment_id", records[0][2])
	assert.Equal(t, []string{"s1", "3", "order-3", "0xabc", "150000000", "1.5", "2023-11-14T22:13:20Z", "", "", "0"}, records[1])
}

func TestExportRejectsUnknownInputs(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var buf bytes.Buffer
	assert.Error(t, export(ctx, store, &buf, "payments", "xml", ""))
	assert.Error(t, export(ctx, store, &buf, "alerts", "json", ""))
	require.NoError(t, export(ctx, store, &buf, "submissions", "json", ""))
	assert.Equal(t, "null\n", buf.String())
}

func TestInitScaffoldParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	written, err := writeScaffold(path, sampleConfig, false)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = writeScaffold(path, "changed", false)
	require.NoError(t, err)
	assert.False(t, written)

	t.Setenv("APTOS_API_KEY", "")
	t.Setenv("MODULE_ADDRESS", "0x1")
	t.Setenv("APTOS_PRIVATE_KEY", "")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := config.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "indexer", cfg.Poller.FetchMode)
	assert.Equal(t, uint64(1_000_000), cfg.Payment.MinAmount)
}
