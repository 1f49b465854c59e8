package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devblac/paywatch/internal/config"
	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/sink"
	"github.com/devblac/paywatch/internal/storage"
)

type captureSender struct {
	mu       sync.Mutex
	payloads []sink.EventPayload
	err      error
}

func (c *captureSender) Send(_ context.Context, p sink.EventPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.payloads = append(c.payloads, p)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func testConfig(rules ...config.Rule) *config.Config {
	return &config.Config{
		Module: config.ModuleConfig{Address: "0x1", Name: "payment", EventStruct: "PaymentProcessedEvent"},
		Sinks:  []config.Sink{{ID: "cap", Type: "log"}},
		Rules:  rules,
	}
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "dispatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func paymentEvent(seq uint64, id string, amount uint64) ledger.Event {
	return ledger.Event{
		SequenceNumber: seq,
		Type:           "0x1::payment::PaymentProcessedEvent",
		Payment:        ledger.Payment{PaymentID: id, Sender: "0xabc", Amount: amount, Treasury: "0x1"},
	}
}

func TestDispatcherSendsMatchingRulesAndRecords(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	capture := &captureSender{}
	cfg := testConfig(
		config.Rule{ID: "big", Where: []string{"amount >= apt(1)"}, Sinks: []string{"cap"}},
		config.Rule{ID: "all", Sinks: []string{"cap"}},
	)
	d, err := NewDispatcher(store, cfg, map[string]sink.Sender{"cap": capture}, false, quietLogger(), nil)
	require.NoError(t, err)

	require.NoError(t, d.Handle(ctx, paymentEvent(1, "order-1", 50_000_000)))
	require.NoError(t, d.Handle(ctx, paymentEvent(2, "order-2", 200_000_000)))

	require.Equal(t, 3, capture.count())
	assert.Equal(t, "all", capture.payloads[0].RuleID)
	assert.Equal(t, "big", capture.payloads[1].RuleID)
	assert.Equal(t, cfg.Module.StreamID(), capture.payloads[1].StreamID)

	payments, err := store.ListPayments(ctx, cfg.Module.StreamID())
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "order-2", payments[1].PaymentID)
}

func TestDispatcherDryRunRecordsWithoutSending(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	capture := &captureSender{}
	cfg := testConfig(config.Rule{ID: "all", Sinks: []string{"cap"}})
	d, err := NewDispatcher(store, cfg, map[string]sink.Sender{"cap": capture}, true, quietLogger(), nil)
	require.NoError(t, err)

	require.NoError(t, d.Handle(ctx, paymentEvent(1, "order-1", 1)))
	assert.Zero(t, capture.count())

	payments, err := store.ListPayments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestDispatcherDedupeByPaymentID(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	capture := &captureSender{}
	cfg := testConfig(config.Rule{ID: "once", Sinks: []string{"cap"}, Dedupe: &config.Dedupe{TTL: "1h"}})
	d, err := NewDispatcher(store, cfg, map[string]sink.Sender{"cap": capture}, false, quietLogger(), nil)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.nowFunc = func() time.Time { return now }

	require.NoError(t, d.Handle(ctx, paymentEvent(1, "order-1", 1)))
	require.NoError(t, d.Handle(ctx, paymentEvent(2, "order-1", 1)))
	assert.Equal(t, 1, capture.count())

	now = now.Add(2 * time.Hour)
	require.NoError(t, d.Handle(ctx, paymentEvent(3, "order-1", 1)))
	assert.Equal(t, 2, capture.count())
}

func TestDispatcherRateLimit(t *testing.T) {
	ctx := context.Background()
	capture := &captureSender{}
	cfg := testConfig(config.Rule{ID: "slow", Sinks: []string{"cap"}, RateLimit: &config.RateLimit{RPS: 1, Burst: 1}})
	d, err := NewDispatcher(nil, cfg, map[string]sink.Sender{"cap": capture}, false, quietLogger(), nil)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.nowFunc = func() time.Time { return now }

	require.NoError(t, d.Handle(ctx, paymentEvent(1, "a", 1)))
	require.NoError(t, d.Handle(ctx, paymentEvent(2, "b", 1)))
	assert.Equal(t, 1, capture.count())

	now = now.Add(time.Second)
	require.NoError(t, d.Handle(ctx, paymentEvent(3, "c", 1)))
	assert.Equal(t, 2, capture.count())
}

func TestDispatcherSinkFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	capture := &captureSender{err: errors.New("503")}
	cfg := testConfig(config.Rule{ID: "once", Sinks: []string{"cap"}, Dedupe: &config.Dedupe{TTL: "1h"}})
	d, err := NewDispatcher(store, cfg, map[string]sink.Sender{"cap": capture}, false, quietLogger(), nil)
	require.NoError(t, err)

	err = d.Handle(ctx, paymentEvent(1, "order-1", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink cap")

	payments, err := store.ListPayments(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, payments)

	capture.mu.Lock()
	capture.err = nil
	capture.mu.Unlock()
	require.NoError(t, d.Handle(ctx, paymentEvent(1, "order-1", 1)))
	assert.Equal(t, 1, capture.count())
}

func TestDispatcherRejectsBadPredicate(t *testing.T) {
	cfg := testConfig(config.Rule{ID: "bad", Where: []string{"amount > lots"}, Sinks: []string{"cap"}})
	_, err := NewDispatcher(nil, cfg, nil, false, quietLogger(), nil)
	assert.Error(t, err)
}

func TestBuildDedupeKey(t *testing.T) {
	ev := paymentEvent(9, "order-9", 1)
	assert.Equal(t, "r1:order-9", buildDedupeKey("r1", "", ev))
	assert.Equal(t, "r1:0xabc-9", buildDedupeKey("r1", "sender-sequence_number", ev))
}
