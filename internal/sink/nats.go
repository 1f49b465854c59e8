package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// publisher is the slice of jetstream.JetStream the sink needs.
type publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type natsSender struct {
	js      publisher
	subject string
}

// NewNATSSender publishes payloads as JSON to subject on JetStream. The
// Nats-Msg-Id header lets the stream drop redeliveries of the same event.
func NewNATSSender(js jetstream.JetStream, subject string) (Sender, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject required")
	}
	return &natsSender{js: js, subject: subject}, nil
}

func (s *natsSender) Send(ctx context.Context, payload EventPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	header := nats.Header{}
	header.Set(nats.MsgIdHdr, payload.MessageID())

	if _, err := s.js.PublishMsg(ctx, &nats.Msg{
		Subject: s.subject,
		Data:    data,
		Header:  header,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}

// ConnectJetStream dials NATS and ensures stream captures subjects.
func ConnectJetStream(ctx context.Context, url, username, password, stream string, subjects []string, logger *slog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("paywatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if username != "" {
		opts = append(opts, nats.UserInfo(username, password))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       stream,
		Subjects:   subjects,
		Storage:    jetstream.FileStorage,
		Duplicates: 24 * time.Hour,
	}); err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}
	return nc, js, nil
}
