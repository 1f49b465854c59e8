package aptos

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devblac/paywatch/internal/ledger"
)

const (
	eventType    = testModule + "::payment::PaymentProcessedEvent"
	handleStruct = testModule + "::payment::EventStore"
	eventsRoute  = "GET /v1/accounts/" + testModule + "/events/" + handleStruct + "/payment_events"
)

func paymentEventJSON(seq int, id string) string {
	return `{
  "version": "` + strconv.Itoa(1000+seq) + `",
  "guid": {"creation_number": "4", "account_address": "` + testModule + `"},
  "sequence_number": "` + strconv.Itoa(seq) + `",
  "type": "` + eventType + `",
  "data": {
    "payment_id": "` + id + `",
    "sender": "` + testAddress + `",
    "amount": "1000000",
    "timestamp": "1700000000",
    "additional_data": "0x766970",
    "treasury": "0x1"
  }
}`
}

func TestRESTEventsNewestFirst(t *testing.T) {
	node, srv := newFakeNode(t)
	// the node answers in ascending order
	node.json(eventsRoute, http.StatusOK, "["+paymentEventJSON(10, "0x6f726465722d3130")+","+paymentEventJSON(11, "0x6f726465722d3131")+"]")

	f := NewRESTEvents(NewClient(srv.URL+"/v1", Options{}), testModule, handleStruct, "payment_events")
	events, err := f.FetchEvents(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, uint64(11), events[0].SequenceNumber)
	assert.Equal(t, uint64(10), events[1].SequenceNumber)

	ev := events[0]
	assert.Equal(t, eventType, ev.Type)
	assert.Equal(t, uint64(1011), ev.Version)
	assert.Equal(t, "order-11", ev.Payment.PaymentID)
	assert.Equal(t, "vip", ev.Payment.AdditionalData)
	assert.Equal(t, uint64(1_000_000), ev.Payment.Amount)
	assert.Equal(t, uint64(1_700_000_000), ev.Payment.Timestamp)
	assert.Equal(t, testAddress, ev.Payment.Sender)
}

func TestRESTEventsMissingStoreIsNotFound(t *testing.T) {
	node, srv := newFakeNode(t)
	node.json(eventsRoute, http.StatusNotFound, `{"message":"Resource not found","error_code":"resource_not_found"}`)

	f := NewRESTEvents(NewClient(srv.URL+"/v1", Options{}), testModule, handleStruct, "payment_events")
	_, err := f.FetchEvents(context.Background(), 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Contains(t, err.Error(), "resource_not_found")
}

func TestRESTEventsServerErrorIsNetwork(t *testing.T) {
	node, srv := newFakeNode(t)
	node.json(eventsRoute, http.StatusServiceUnavailable, `upstream down`)

	f := NewRESTEvents(NewClient(srv.URL+"/v1", Options{}), testModule, handleStruct, "payment_events")
	_, err := f.FetchEvents(context.Background(), 100)
	assert.ErrorIs(t, err, ledger.ErrNetwork)
}

func TestIndexerEvents(t *testing.T) {
	node, srv := newFakeNode(t)
	node.handle("POST /v1/graphql", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"events":[
  {"sequence_number": 13, "type": "` + eventType + `", "transaction_version": 2013,
   "data": {"payment_id":"0x6f726465722d3133","sender":"0xa","amount":"5","timestamp":"1","additional_data":"0x","treasury":"0x1"}},
  {"sequence_number": 12, "type": "` + eventType + `", "transaction_version": 2012,
   "data": {"payment_id":"0x6f726465722d3132","sender":"0xa","amount":"5","timestamp":"1","additional_data":"0x","treasury":"0x1"}}
]}}`))
	})

	client := NewClient(srv.URL+"/v1", Options{IndexerURL: srv.URL + "/v1/graphql", APIKey: "k"})
	f := NewIndexerEvents(client, testModule, eventType)
	events, err := f.FetchEvents(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(13), events[0].SequenceNumber)
	assert.Equal(t, uint64(2013), events[0].Version)
	assert.Equal(t, "order-13", events[0].Payment.PaymentID)
	assert.Equal(t, "", events[0].Payment.AdditionalData)

	var req graphQLRequest
	require.NoError(t, json.Unmarshal(node.body("POST /v1/graphql"), &req))
	assert.Equal(t, testModule, req.Variables["account"])
	assert.Equal(t, eventType, req.Variables["type"])
	assert.EqualValues(t, 50, req.Variables["limit"])
	assert.Equal(t, "application/json", node.header("POST /v1/graphql"))
}

func TestIndexerEventsEmptyIsNotAnError(t *testing.T) {
	node, srv := newFakeNode(t)
	node.json("POST /graphql", http.StatusOK, `{"data":{"events":[]}}`)

	f := NewIndexerEvents(NewClient(srv.URL+"/v1", Options{IndexerURL: srv.URL + "/graphql"}), testModule, eventType)
	events, err := f.FetchEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestIndexerGraphQLErrors(t *testing.T) {
	node, srv := newFakeNode(t)
	node.json("POST /graphql", http.StatusOK, `{"errors":[{"message":"field 'events' not found"}]}`)

	f := NewIndexerEvents(NewClient(srv.URL+"/v1", Options{IndexerURL: srv.URL + "/graphql"}), testModule, eventType)
	_, err := f.FetchEvents(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "field 'events' not found")
}

func TestDecodeMoveString(t *testing.T) {
	tests := map[string]string{
		"0x6f726465722d31": "order-1",
		"0x":               "",
		"0x00ff":           "0x00ff",
		"0xzz":             "0xzz",
		"plain":            "plain",
	}
	for in, want := range tests {
		assert.Equal(t, want, DecodeMoveString(in), in)
	}
}
