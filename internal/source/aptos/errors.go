package aptos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/devblac/paywatch/internal/ledger"
)

// APIError is a non-2xx answer from the node or indexer.
type APIError struct {
	Status      int    `json:"-"`
	Message     string `json:"message"`
	ErrorCode   string `json:"error_code"`
	VMErrorCode int    `json:"vm_error_code,omitempty"`
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("aptos api %d %s: %s", e.Status, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("aptos api %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// classify maps a transport or API failure onto a ledger error kind.
// clientKind is used for 4xx answers other than 404. Cancellation is not a
// ledger failure and passes through unclassified.
func classify(op string, err error, clientKind error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ledger.NewError(ledger.ErrTimeout, op, "", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusNotFound:
			return ledger.NewError(ledger.ErrNotFound, op, "", err)
		case apiErr.Status == http.StatusTooManyRequests:
			return ledger.NewError(ledger.ErrNetwork, op, "", err)
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return ledger.NewError(clientKind, op, "", err)
		}
	}
	return ledger.NewError(ledger.ErrNetwork, op, "", err)
}
