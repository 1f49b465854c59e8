package aptos

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// U64 decodes Aptos u64 values, which the REST API quotes and the indexer
// may not.
type U64 uint64

func (u *U64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %q: %w", string(b), err)
	}
	*u = U64(v)
	return nil
}

func (u U64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(u), 10))), nil
}

type LedgerInfo struct {
	ChainID             int    `json:"chain_id"`
	Epoch               U64    `json:"epoch"`
	LedgerVersion       U64    `json:"ledger_version"`
	OldestLedgerVersion U64    `json:"oldest_ledger_version"`
	LedgerTimestamp     U64    `json:"ledger_timestamp"`
	NodeRole            string `json:"node_role"`
	BlockHeight         U64    `json:"block_height"`
}

type AccountInfo struct {
	SequenceNumber    U64    `json:"sequence_number"`
	AuthenticationKey string `json:"authentication_key"`
}

type GasEstimate struct {
	GasEstimate              U64 `json:"gas_estimate"`
	DeprioritizedGasEstimate U64 `json:"deprioritized_gas_estimate,omitempty"`
	PrioritizedGasEstimate   U64 `json:"prioritized_gas_estimate,omitempty"`
}

type EventGUID struct {
	CreationNumber U64    `json:"creation_number"`
	AccountAddress string `json:"account_address"`
}

// Event is an event as returned by the events-by-handle endpoint.
type Event struct {
	Version        U64             `json:"version"`
	GUID           EventGUID       `json:"guid"`
	SequenceNumber U64             `json:"sequence_number"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
}

// PaymentEventData is the JSON body of a PaymentProcessedEvent. Move
// vector<u8> fields arrive as 0x-prefixed hex.
type PaymentEventData struct {
	PaymentID      string `json:"payment_id"`
	Sender         string `json:"sender"`
	Amount         U64    `json:"amount"`
	Timestamp      U64    `json:"timestamp"`
	AdditionalData string `json:"additional_data"`
	Treasury       string `json:"treasury"`
}

const (
	TxTypePending = "pending_transaction"
	TxTypeUser    = "user_transaction"
)

type Transaction struct {
	Type           string `json:"type"`
	Hash           string `json:"hash"`
	Version        U64    `json:"version,omitempty"`
	Success        bool   `json:"success"`
	VMStatus       string `json:"vm_status"`
	GasUsed        U64    `json:"gas_used"`
	GasUnitPrice   U64    `json:"gas_unit_price,omitempty"`
	Sender         string `json:"sender,omitempty"`
	SequenceNumber U64    `json:"sequence_number,omitempty"`
	Timestamp      U64    `json:"timestamp,omitempty"`
}

// Pending reports whether the node has not executed the transaction yet.
func (t *Transaction) Pending() bool {
	return t.Type == TxTypePending
}

type PendingTransaction struct {
	Hash           string `json:"hash"`
	Sender         string `json:"sender"`
	SequenceNumber U64    `json:"sequence_number"`
}
