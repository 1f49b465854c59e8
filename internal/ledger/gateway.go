package ledger

import (
	"context"
	"sort"
)

// EventFetcher returns up to limit of the most recent events of one
// (account, event type) stream, newest first. A stream that does not exist
// yet fails with ErrNotFound.
type EventFetcher interface {
	FetchEvents(ctx context.Context, limit int) ([]Event, error)
}

// TxGateway is the transaction lifecycle surface of the ledger.
type TxGateway interface {
	BuildTransaction(ctx context.Context, req TxRequest) (*BuiltTx, error)
	Simulate(ctx context.Context, tx *BuiltTx) (*Simulation, error)
	SignAndSubmit(ctx context.Context, tx *BuiltTx) (string, error)
	AwaitConfirmation(ctx context.Context, hash string) (*Confirmation, error)
}

type ascending struct {
	next EventFetcher
}

// Ascending wraps a newest-first fetcher so batches come back ordered by
// ascending sequence number with in-batch duplicates removed.
func Ascending(f EventFetcher) EventFetcher {
	return ascending{next: f}
}

func (a ascending) FetchEvents(ctx context.Context, limit int) ([]Event, error) {
	events, err := a.next.FetchEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	return SortAscending(events), nil
}

// SortAscending returns a copy of events ordered by sequence number, keeping
// the first occurrence of any repeated sequence number.
func SortAscending(events []Event) []Event {
	out := make([]Event, 0, len(events))
	seen := make(map[uint64]struct{}, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.SequenceNumber]; dup {
			continue
		}
		seen[ev.SequenceNumber] = struct{}{}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}
