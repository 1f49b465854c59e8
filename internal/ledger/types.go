package ledger

import (
	"fmt"
	"strings"
)

// Payment is the decoded body of a PaymentProcessedEvent.
type Payment struct {
	PaymentID      string `json:"payment_id"`
	Sender         string `json:"sender"`
	Amount         uint64 `json:"amount"`
	Timestamp      uint64 `json:"timestamp"`
	AdditionalData string `json:"additional_data"`
	Treasury       string `json:"treasury"`
}

// Event is one entry of an account's event stream as observed on the ledger.
type Event struct {
	SequenceNumber uint64  `json:"sequence_number"`
	Type           string  `json:"type"`
	Version        uint64  `json:"version,omitempty"`
	Payment        Payment `json:"payment"`
}

// Args flattens the event into the map rule predicates evaluate against.
func (e Event) Args() map[string]any {
	return map[string]any{
		"sequence_number": e.SequenceNumber,
		"payment_id":      e.Payment.PaymentID,
		"sender":          e.Payment.Sender,
		"amount":          e.Payment.Amount,
		"timestamp":       e.Payment.Timestamp,
		"additional_data": e.Payment.AdditionalData,
		"treasury":        e.Payment.Treasury,
	}
}

// FunctionID names an entry function as address::module::function.
type FunctionID struct {
	Address string
	Module  string
	Name    string
}

func (f FunctionID) String() string {
	return fmt.Sprintf("%s::%s::%s", f.Address, f.Module, f.Name)
}

// ParseFunctionID splits "0x1::coin::transfer" into its parts.
func ParseFunctionID(s string) (FunctionID, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return FunctionID{}, fmt.Errorf("invalid function id %q", s)
	}
	return FunctionID{Address: parts[0], Module: parts[1], Name: parts[2]}, nil
}

// ArgKind is the Move type an entry function argument is encoded as.
type ArgKind string

const (
	ArgAddress ArgKind = "address"
	ArgBytes   ArgKind = "vector<u8>"
	ArgU64     ArgKind = "u64"
)

// Arg is a typed entry function argument. Only the field matching Kind is set.
type Arg struct {
	Kind    ArgKind
	Address string
	Bytes   []byte
	Decimal string
}

func AddressArg(addr string) Arg { return Arg{Kind: ArgAddress, Address: addr} }

func BytesArg(b []byte) Arg { return Arg{Kind: ArgBytes, Bytes: b} }

// U64Arg carries a u64 as its decimal string form; the gateway parses it.
func U64Arg(decimal string) Arg { return Arg{Kind: ArgU64, Decimal: decimal} }

// TxRequest is the unsigned intent to call an entry function.
type TxRequest struct {
	Sender   string
	Function FunctionID
	Args     []Arg
}

// BuiltTx is a request the gateway has turned into a concrete raw transaction.
// Raw is adapter-specific (BCS bytes for Aptos) and opaque to callers.
type BuiltTx struct {
	Request        TxRequest
	SequenceNumber uint64
	MaxGasAmount   uint64
	GasUnitPrice   uint64
	ExpirationSecs uint64
	ChainID        uint8
	Raw            []byte
}

// Simulation is the outcome of a dry run.
type Simulation struct {
	Success  bool
	VMStatus string
	GasUsed  uint64
}

// Confirmation is the terminal ledger status of a submitted transaction.
type Confirmation struct {
	Hash     string
	Success  bool
	VMStatus string
	GasUsed  uint64
	Version  uint64
}

// TxState tracks a submission through its lifecycle.
type TxState string

const (
	TxBuilt           TxState = "built"
	TxSimulatedOK     TxState = "simulated_ok"
	TxSimulatedFailed TxState = "simulated_failed"
	TxSubmitted       TxState = "submitted"
	TxConfirmedOK     TxState = "confirmed_ok"
	TxConfirmedFailed TxState = "confirmed_failed"
	TxFailed          TxState = "failed"
)

// Terminal reports whether no further transition can follow s.
func (s TxState) Terminal() bool {
	switch s {
	case TxSimulatedFailed, TxConfirmedOK, TxConfirmedFailed, TxFailed:
		return true
	}
	return false
}
