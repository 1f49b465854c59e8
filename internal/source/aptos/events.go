package aptos

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/devblac/paywatch/internal/ledger"
)

// RESTEvents reads an event stream through the fullnode's
// events-by-handle endpoint. A missing EventStore resource is ErrNotFound.
type RESTEvents struct {
	client       *Client
	account      string
	handleStruct string
	field        string
}

func NewRESTEvents(c *Client, account, handleStruct, field string) *RESTEvents {
	return &RESTEvents{client: c, account: account, handleStruct: handleStruct, field: field}
}

// FetchEvents returns the latest limit events, newest first.
func (f *RESTEvents) FetchEvents(ctx context.Context, limit int) ([]ledger.Event, error) {
	raw, err := f.client.EventsByHandle(ctx, f.account, f.handleStruct, f.field, limit)
	if err != nil {
		return nil, classify("fetch events", err, ledger.ErrInvalidArgument)
	}
	out := make([]ledger.Event, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		ev, err := decodeEvent(uint64(raw[i].SequenceNumber), raw[i].Type, uint64(raw[i].Version), raw[i].Data)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

const eventsQuery = `query PaymentEvents($account: String!, $type: String!, $limit: Int!) {
  events(
    where: {account_address: {_eq: $account}, indexed_type: {_eq: $type}}
    order_by: {sequence_number: desc}
    limit: $limit
  ) {
    sequence_number
    type
    data
    transaction_version
  }
}`

type indexerEvent struct {
	SequenceNumber     U64             `json:"sequence_number"`
	Type               string          `json:"type"`
	Data               json.RawMessage `json:"data"`
	TransactionVersion U64             `json:"transaction_version"`
}

// IndexerEvents reads an event stream by type through the indexer GraphQL
// API. The indexer cannot tell a missing stream from an empty one, so it
// never reports ErrNotFound.
type IndexerEvents struct {
	client    *Client
	account   string
	eventType string
}

func NewIndexerEvents(c *Client, account, eventType string) *IndexerEvents {
	return &IndexerEvents{client: c, account: account, eventType: eventType}
}

// FetchEvents returns the latest limit events, newest first.
func (f *IndexerEvents) FetchEvents(ctx context.Context, limit int) ([]ledger.Event, error) {
	var resp struct {
		Events []indexerEvent `json:"events"`
	}
	vars := map[string]any{
		"account": NormalizeAddress(f.account),
		"type":    f.eventType,
		"limit":   limit,
	}
	if err := f.client.GraphQL(ctx, eventsQuery, vars, &resp); err != nil {
		return nil, classify("fetch events", err, ledger.ErrInvalidArgument)
	}
	out := make([]ledger.Event, 0, len(resp.Events))
	for _, raw := range resp.Events {
		ev, err := decodeEvent(uint64(raw.SequenceNumber), raw.Type, uint64(raw.TransactionVersion), raw.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeEvent(seq uint64, typ string, version uint64, data json.RawMessage) (ledger.Event, error) {
	var d PaymentEventData
	if err := json.Unmarshal(data, &d); err != nil {
		return ledger.Event{}, fmt.Errorf("decode event %d: %w", seq, err)
	}
	return ledger.Event{
		SequenceNumber: seq,
		Type:           typ,
		Version:        version,
		Payment: ledger.Payment{
			PaymentID:      DecodeMoveString(d.PaymentID),
			Sender:         d.Sender,
			Amount:         uint64(d.Amount),
			Timestamp:      uint64(d.Timestamp),
			AdditionalData: DecodeMoveString(d.AdditionalData),
			Treasury:       d.Treasury,
		},
	}, nil
}

// DecodeMoveString turns a hex-rendered vector<u8> into text when it decodes
// to printable UTF-8, and returns s unchanged otherwise.
func DecodeMoveString(s string) string {
	if !strings.HasPrefix(s, "0x") {
		return s
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil || !utf8.Valid(b) {
		return s
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return s
		}
	}
	return string(b)
}
