package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/devblac/paywatch/internal/ledger"
)

// EventPayload is the data passed to sinks.
type EventPayload struct {
	RuleID         string         `json:"rule_id"`
	StreamID       string         `json:"stream_id"`
	SequenceNumber uint64         `json:"sequence_number"`
	EventType      string         `json:"event_type"`
	Version        uint64         `json:"version,omitempty"`
	Payment        ledger.Payment `json:"payment"`
	Args           map[string]any `json:"-"`
}

// NewEventPayload flattens an event for rule ruleID.
func NewEventPayload(ruleID, streamID string, ev ledger.Event) EventPayload {
	return EventPayload{
		RuleID:         ruleID,
		StreamID:       streamID,
		SequenceNumber: ev.SequenceNumber,
		EventType:      ev.Type,
		Version:        ev.Version,
		Payment:        ev.Payment,
		Args:           ev.Args(),
	}
}

// MessageID identifies the event across deliveries.
func (p EventPayload) MessageID() string {
	return fmt.Sprintf("%s:%d", p.StreamID, p.SequenceNumber)
}

type Sender interface {
	Send(ctx context.Context, payload EventPayload) error
}

const defaultTemplate = "Payment {{.Payment.PaymentID}}: {{apt .Payment.Amount}} APT from {{short_addr .Payment.Sender}} (seq {{.SequenceNumber}}, rule {{.RuleID}})"

type httpSender struct {
	url     string
	method  string
	render  *template.Template
	client  *http.Client
	headers map[string]string
}

// NewWebhookSender builds a generic HTTP sink.
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	if headers == nil {
		headers = map[string]string{"Content-Type": "application/json"}
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		client:  defaultClient(),
		headers: headers,
	}, nil
}

// NewSlackSender builds a Slack-compatible webhook sink.
func NewSlackSender(url, tmpl string) (Sender, error) {
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// NewTeamsSender builds a Teams-compatible webhook sink.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	// Teams accepts simple {text: "..."} payloads.
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

func (s *httpSender) Send(ctx context.Context, payload EventPayload) error {
	bodyStr, err := executeTemplate(s.render, payload)
	if err != nil {
		return err
	}
	reqBody, err := json.Marshal(map[string]string{
		"text": bodyStr,
	})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink http status %d", resp.StatusCode)
	}
	return nil
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	funcs := template.FuncMap{
		"pretty_json": func(v any) string {
			out, _ := json.MarshalIndent(v, "", "  ")
			return string(out)
		},
		"short_addr": func(addr string) string {
			if len(addr) <= 10 {
				return addr
			}
			return addr[:6] + "..." + addr[len(addr)-4:]
		},
		"apt": ledger.FormatAPT,
		"unix_time": func(secs uint64) string {
			return time.Unix(int64(secs), 0).UTC().Format(time.RFC3339)
		},
	}
	return template.New("msg").Funcs(funcs).Parse(tmpl)
}

func executeTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}
