package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/devblac/paywatch/internal/config"
)

// Set is the sinks built from configuration, keyed by sink id.
type Set struct {
	Senders map[string]Sender
	conn    *nats.Conn
}

// Close drains the NATS connection if one was opened.
func (s *Set) Close() {
	if s != nil && s.conn != nil {
		_ = s.conn.Drain()
	}
}

// FromConfig builds a Sender for every configured sink. A NATS connection is
// opened only when at least one nats sink exists.
func FromConfig(ctx context.Context, sinks []config.Sink, natsCfg config.NATSConfig, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	set := &Set{Senders: make(map[string]Sender, len(sinks))}

	var natsSubjects []string
	for _, s := range sinks {
		if strings.EqualFold(s.Type, "nats") {
			natsSubjects = append(natsSubjects, s.Subject)
		}
	}
	if len(natsSubjects) > 0 {
		nc, js, err := ConnectJetStream(ctx, natsCfg.URL, natsCfg.Username, natsCfg.Password, natsCfg.Stream, natsSubjects, logger)
		if err != nil {
			return nil, err
		}
		set.conn = nc
		for _, s := range sinks {
			if !strings.EqualFold(s.Type, "nats") {
				continue
			}
			sender, err := NewNATSSender(js, s.Subject)
			if err != nil {
				set.Close()
				return nil, fmt.Errorf("sink %s: %w", s.ID, err)
			}
			set.Senders[s.ID] = sender
		}
	}

	for _, s := range sinks {
		var (
			sender Sender
			err    error
		)
		switch strings.ToLower(s.Type) {
		case "log":
			sender = NewLogSender(logger.With("sink", s.ID))
		case "slack":
			sender, err = NewSlackSender(s.WebhookURL, s.Template)
		case "teams":
			sender, err = NewTeamsSender(s.WebhookURL, s.Template)
		case "webhook":
			sender, err = NewWebhookSender(s.URL, s.Method, s.Template, nil)
		default:
			continue
		}
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("sink %s: %w", s.ID, err)
		}
		set.Senders[s.ID] = sender
	}
	return set, nil
}
