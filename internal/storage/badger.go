package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const cursorPrefix = "cursor/"

// BadgerCursors keeps stream cursors in an embedded badger database, for
// deployments that want persisted positions without the SQLite file.
type BadgerCursors struct {
	db *badger.DB
}

// OpenBadgerCursors opens (or creates) a badger directory.
func OpenBadgerCursors(dir string) (*BadgerCursors, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerCursors{db: db}, nil
}

func (b *BadgerCursors) GetCursor(ctx context.Context, streamID string) (uint64, bool, error) {
	var (
		seq   uint64
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cursorPrefix + streamID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt cursor value for %s: %d bytes", streamID, len(val))
			}
			seq = binary.BigEndian.Uint64(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
	return seq, found, nil
}

func (b *BadgerCursors) UpsertCursor(ctx context.Context, streamID string, seq uint64) error {
	if streamID == "" {
		return errors.New("streamID required")
	}
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, seq)
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cursorPrefix+streamID), val)
	}); err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (b *BadgerCursors) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
