package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrSimulationRejected = errors.New("simulation rejected")
	ErrNetwork            = errors.New("network error")
	ErrLedgerRejected     = errors.New("rejected by ledger")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrTimeout            = errors.New("timeout")
)

var kinds = []error{
	ErrValidation,
	ErrNotFound,
	ErrSimulationRejected,
	ErrNetwork,
	ErrLedgerRejected,
	ErrInvalidArgument,
	ErrTimeout,
}

// Error carries a kind, the operation that failed and an optional cause.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

// NewError builds an *Error. err may be nil.
func NewError(kind error, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	prefix := fmt.Sprint(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if msg == "" {
		return prefix
	}
	return prefix + ": " + msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// KindOf returns the short name of err's kind, "canceled" for a cancelled
// context, or "unknown".
func KindOf(err error) string {
	if err == nil {
		return "none"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "unknown"
}
