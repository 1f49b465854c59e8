package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/devblac/paywatch/internal/ledger"
)

type logSender struct {
	logger *slog.Logger
}

// NewLogSender writes every payment field to logger at info level.
func NewLogSender(logger *slog.Logger) Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &logSender{logger: logger}
}

func (s *logSender) Send(ctx context.Context, payload EventPayload) error {
	p := payload.Payment
	s.logger.InfoContext(ctx, "payment processed",
		"rule", payload.RuleID,
		"sequence_number", payload.SequenceNumber,
		"payment_id", p.PaymentID,
		"sender", p.Sender,
		"amount_octas", p.Amount,
		"amount_apt", ledger.FormatAPT(p.Amount),
		"treasury", p.Treasury,
		"timestamp", time.Unix(int64(p.Timestamp), 0).UTC().Format(time.RFC3339),
		"additional_data", p.AdditionalData,
	)
	return nil
}
