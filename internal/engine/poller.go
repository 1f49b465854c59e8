package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/metrics"
)

// Handler processes one new event. Events are handed over in ascending
// sequence order; an error stops the tick before the cursor moves past ev.
type Handler interface {
	Handle(ctx context.Context, ev ledger.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev ledger.Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev ledger.Event) error { return f(ctx, ev) }

// CursorStore persists the last processed sequence number per stream.
type CursorStore interface {
	GetCursor(ctx context.Context, streamID string) (uint64, bool, error)
	UpsertCursor(ctx context.Context, streamID string, seq uint64) error
}

// Outcome classifies a tick.
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"
	OutcomeProcessed Outcome = "processed"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

type TickResult struct {
	Outcome   Outcome
	Fetched   int
	Processed int
	Cursor    ledger.Cursor
}

type PollerConfig struct {
	StreamID  string
	BatchSize int
	Schedule  string
}

// Poller discovers new events of one stream and hands each to a Handler
// exactly once per run, in ascending sequence order.
type Poller struct {
	fetcher ledger.EventFetcher
	handler Handler
	store   CursorStore
	cfg     PollerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	tickMu sync.Mutex

	cursorMu sync.RWMutex
	cursor   ledger.Cursor
}

// NewPoller wraps fetcher with ledger.Ascending. store may be nil, in
// which case the cursor lives only in memory.
func NewPoller(fetcher ledger.EventFetcher, handler Handler, store CursorStore, cfg PollerConfig, logger *slog.Logger, m *metrics.Metrics) *Poller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		fetcher: ledger.Ascending(fetcher),
		handler: handler,
		store:   store,
		cfg:     cfg,
		logger:  logger.With("stream", cfg.StreamID),
		metrics: m,
	}
}

// Cursor returns the current position.
func (p *Poller) Cursor() ledger.Cursor {
	p.cursorMu.RLock()
	defer p.cursorMu.RUnlock()
	return p.cursor
}

// LoadCursor restores the persisted position, if any.
func (p *Poller) LoadCursor(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	seq, ok, err := p.store.GetCursor(ctx, p.cfg.StreamID)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if !ok {
		p.logger.Info("no stored cursor, processing all available events")
		return nil
	}
	p.cursorMu.Lock()
	p.cursor = ledger.CursorAt(seq)
	p.cursorMu.Unlock()
	p.metrics.Cursor(p.cfg.StreamID, seq)
	p.logger.Info("cursor restored", "sequence_number", seq)
	return nil
}

// Tick runs one fetch-and-process pass, waiting for any tick in flight.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	return p.tick(ctx)
}

// TryTick runs a tick unless one is already in progress, in which case it
// returns OutcomeSkipped immediately.
func (p *Poller) TryTick(ctx context.Context) (TickResult, error) {
	if !p.tickMu.TryLock() {
		p.metrics.Tick(string(OutcomeSkipped))
		p.logger.Debug("tick skipped, previous tick still running")
		return TickResult{Outcome: OutcomeSkipped, Cursor: p.Cursor()}, nil
	}
	defer p.tickMu.Unlock()
	return p.tick(ctx)
}

func (p *Poller) tick(ctx context.Context) (TickResult, error) {
	res := TickResult{Cursor: p.Cursor()}
	p.logger.Debug("tick started", "cursor", res.Cursor.String())

	events, err := p.fetcher.FetchEvents(ctx, p.cfg.BatchSize)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			res.Outcome = OutcomeNotFound
			p.metrics.Tick(string(res.Outcome))
			p.logger.Warn("event stream not found, EventStore not initialized at module address", "error", err)
			return res, nil
		}
		return p.fail(res, fmt.Errorf("fetch events: %w", err))
	}
	res.Fetched = len(events)

	for _, ev := range events {
		if !res.Cursor.IsNew(ev.SequenceNumber) {
			continue
		}
		if err := p.handler.Handle(ctx, ev); err != nil {
			return p.fail(res, fmt.Errorf("handle event %d: %w", ev.SequenceNumber, err))
		}

		p.cursorMu.Lock()
		p.cursor.Advance(ev.SequenceNumber)
		res.Cursor = p.cursor
		p.cursorMu.Unlock()
		res.Processed++
		p.metrics.Cursor(p.cfg.StreamID, ev.SequenceNumber)

		if p.store != nil {
			if err := p.store.UpsertCursor(ctx, p.cfg.StreamID, ev.SequenceNumber); err != nil {
				return p.fail(res, fmt.Errorf("persist cursor %d: %w", ev.SequenceNumber, err))
			}
		}
	}

	if res.Processed == 0 {
		res.Outcome = OutcomeIdle
		p.logger.Debug("no new events", "fetched", res.Fetched, "cursor", res.Cursor.String())
	} else {
		res.Outcome = OutcomeProcessed
		p.logger.Info("events processed", "fetched", res.Fetched, "processed", res.Processed, "cursor", res.Cursor.String())
	}
	p.metrics.Tick(string(res.Outcome))
	return res, nil
}

func (p *Poller) fail(res TickResult, err error) (TickResult, error) {
	res.Outcome = OutcomeFailed
	p.metrics.Tick(string(res.Outcome))
	p.metrics.Error(ledger.KindOf(err))
	return res, err
}

// Start restores the cursor, runs one tick immediately, then ticks on the
// configured schedule until ctx is cancelled. Tick errors are logged, never
// returned.
func (p *Poller) Start(ctx context.Context) error {
	if err := p.LoadCursor(ctx); err != nil {
		return err
	}
	p.scheduledTick(ctx)
	return Schedule(ctx, p.cfg.Schedule, p.logger, p.scheduledTick)
}

func (p *Poller) scheduledTick(ctx context.Context) {
	if _, err := p.TryTick(ctx); err != nil {
		p.logger.Error("tick failed", "error", err, "kind", ledger.KindOf(err), "cursor", p.Cursor().String())
	}
}
