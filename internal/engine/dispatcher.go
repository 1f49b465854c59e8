package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/devblac/paywatch/internal/config"
	"github.com/devblac/paywatch/internal/ledger"
	"github.com/devblac/paywatch/internal/metrics"
	"github.com/devblac/paywatch/internal/sink"
	"github.com/devblac/paywatch/internal/storage"
)

// Dispatcher is the poller's Handler: it evaluates rules for each payment
// event, applies dedupe and rate limits, sends to sinks and records the payment.
type Dispatcher struct {
	store    *storage.Store
	streamID string
	sinks    map[string]sink.Sender
	rules    []ruleExec
	dryRun   bool
	nowFunc  func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type ruleExec struct {
	rule    config.Rule
	preds   []Predicate
	ttl     time.Duration
	limiter *rate.Limiter
}

// NewDispatcher compiles cfg's rules. store may be nil, which disables
// dedupe and payment recording.
func NewDispatcher(store *storage.Store, cfg *config.Config, sinks map[string]sink.Sender, dryRun bool, logger *slog.Logger, m *metrics.Metrics) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rules := make([]ruleExec, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		preds, err := CompilePredicates(r.Where)
		if err != nil {
			return nil, fmt.Errorf("rule %s predicates: %w", r.ID, err)
		}
		exec := ruleExec{rule: r, preds: preds, ttl: 24 * time.Hour}
		if r.Dedupe != nil && r.Dedupe.TTL != "" {
			if d, err := time.ParseDuration(r.Dedupe.TTL); err == nil && d > 0 {
				exec.ttl = d
			}
		}
		if r.RateLimit != nil && r.RateLimit.RPS > 0 {
			burst := r.RateLimit.Burst
			if burst <= 0 {
				burst = 1
			}
			exec.limiter = rate.NewLimiter(rate.Limit(r.RateLimit.RPS), burst)
		}
		rules = append(rules, exec)
	}

	return &Dispatcher{
		store:    store,
		streamID: cfg.Module.StreamID(),
		sinks:    sinks,
		rules:    rules,
		dryRun:   dryRun,
		nowFunc:  time.Now,
		logger:   logger,
		metrics:  m,
	}, nil
}

// Handle runs every matching rule for ev. A sink failure is returned so the
// poller leaves the cursor before ev.
func (d *Dispatcher) Handle(ctx context.Context, ev ledger.Event) error {
	args := ev.Args()
	for _, exec := range d.rules {
		pass, err := allPredicates(exec.preds, args)
		if err != nil || !pass {
			continue
		}
		var dedupeKey string
		if exec.rule.Dedupe != nil && d.store != nil {
			dedupeKey = buildDedupeKey(exec.rule.ID, exec.rule.Dedupe.Key, ev)
			isDup, err := d.store.IsDuplicate(ctx, dedupeKey, d.nowFunc())
			if err != nil {
				return err
			}
			if isDup {
				d.drop(exec.rule.ID, "dedupe", ev)
				continue
			}
		}
		if exec.limiter != nil && !exec.limiter.AllowN(d.nowFunc(), 1) {
			d.drop(exec.rule.ID, "rate_limit", ev)
			continue
		}
		if d.dryRun {
			d.drop(exec.rule.ID, "dry_run", ev)
			continue
		}
		payload := sink.NewEventPayload(exec.rule.ID, d.streamID, ev)
		for _, sinkID := range exec.rule.Sinks {
			s := d.sinks[sinkID]
			if s == nil {
				continue
			}
			if err := s.Send(ctx, payload); err != nil {
				return fmt.Errorf("sink %s: %w", sinkID, err)
			}
			d.metrics.AlertSent()
		}
		// marked only after delivery so a failed send is retried on the next tick
		if dedupeKey != "" {
			if err := d.store.MarkDedupe(ctx, dedupeKey, d.nowFunc().Add(exec.ttl)); err != nil {
				return err
			}
		}
	}

	if d.store != nil {
		inserted, err := d.store.RecordPayment(ctx, d.streamID, ev)
		if err != nil {
			return err
		}
		if !inserted {
			d.logger.Debug("payment already recorded", "sequence_number", ev.SequenceNumber, "payment_id", ev.Payment.PaymentID)
		}
	}
	d.metrics.EventProcessed()
	return nil
}

func (d *Dispatcher) drop(ruleID, reason string, ev ledger.Event) {
	d.metrics.AlertDropped(reason)
	d.logger.Debug("alert dropped", "rule", ruleID, "reason", reason, "sequence_number", ev.SequenceNumber)
}

func allPredicates(preds []Predicate, args map[string]any) (bool, error) {
	for _, p := range preds {
		ok, err := p(args)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// buildDedupeKey expands payment_id, sender and sequence_number in pattern.
// The default pattern is payment_id.
func buildDedupeKey(ruleID, pattern string, ev ledger.Event) string {
	if pattern == "" {
		pattern = "payment_id"
	}
	key := strings.NewReplacer(
		"payment_id", ev.Payment.PaymentID,
		"sequence_number", strconv.FormatUint(ev.SequenceNumber, 10),
		"sender", ev.Payment.Sender,
	).Replace(pattern)
	return ruleID + ":" + key
}
