package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/devblac/paywatch/internal/ledger"
	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for cursors, payments, submissions, and dedupe.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS cursors (
  stream_id       TEXT PRIMARY KEY,
  sequence_number INTEGER NOT NULL,
  updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS payments (
  stream_id        TEXT NOT NULL,
  sequence_number  INTEGER NOT NULL,
  payment_id       TEXT NOT NULL,
  sender           TEXT NOT NULL,
  amount           INTEGER NOT NULL,
  event_timestamp  INTEGER NOT NULL,
  additional_data  TEXT,
  treasury         TEXT,
  version          INTEGER,
  created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(stream_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS submissions (
  payment_id   TEXT PRIMARY KEY,
  amount       INTEGER NOT NULL,
  state        TEXT NOT NULL,
  txhash       TEXT,
  vm_status    TEXT,
  gas_used     INTEGER,
  version      INTEGER,
  error        TEXT,
  created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS dedupe (
  key         TEXT PRIMARY KEY,
  expires_at  TIMESTAMP NOT NULL
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertCursor records the last processed sequence number for a stream.
func (s *Store) UpsertCursor(ctx context.Context, streamID string, seq uint64) error {
	if streamID == "" {
		return errors.New("streamID required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cursors (stream_id, sequence_number, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(stream_id) DO UPDATE SET
  sequence_number=excluded.sequence_number,
  updated_at=CURRENT_TIMESTAMP;
`, streamID, int64(seq))
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// GetCursor retrieves the cursor for a stream.
func (s *Store) GetCursor(ctx context.Context, streamID string) (seq uint64, ok bool, err error) {
	var v int64
	row := s.db.QueryRowContext(ctx, `
SELECT sequence_number FROM cursors WHERE stream_id = ?;
`, streamID)
	switch err = row.Scan(&v); err {
	case nil:
		return uint64(v), true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
}

// CursorRow is one stored stream position.
type CursorRow struct {
	StreamID       string    `json:"stream_id"`
	SequenceNumber uint64    `json:"sequence_number"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListCursors returns every stored cursor ordered by stream.
func (s *Store) ListCursors(ctx context.Context) ([]CursorRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT stream_id, sequence_number, updated_at FROM cursors ORDER BY stream_id;
`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var out []CursorRow
	for rows.Next() {
		var (
			r   CursorRow
			seq int64
		)
		if err := rows.Scan(&r.StreamID, &seq, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		r.SequenceNumber = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkDedupe sets or refreshes a dedupe key until expiresAt.
func (s *Store) MarkDedupe(ctx context.Context, key string, expiresAt time.Time) error {
	if key == "" {
		return errors.New("key required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dedupe (key, expires_at)
VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET expires_at=excluded.expires_at;
`, key, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("mark dedupe: %w", err)
	}
	return nil
}

// IsDuplicate returns true if the key exists and is not expired; expired entries are pruned.
func (s *Store) IsDuplicate(ctx context.Context, key string, now time.Time) (bool, error) {
	if key == "" {
		return false, errors.New("key required")
	}

	var expires time.Time
	err := s.db.QueryRowContext(ctx, `
SELECT expires_at FROM dedupe WHERE key = ?;
`, key).Scan(&expires)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check dedupe: %w", err)
	}

	if expires.After(now.UTC()) {
		return true, nil
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM dedupe WHERE key = ?;`, key); err != nil {
		return false, fmt.Errorf("prune dedupe: %w", err)
	}
	return false, nil
}

// PaymentRecord is a processed PaymentProcessedEvent.
type PaymentRecord struct {
	StreamID       string    `json:"stream_id"`
	SequenceNumber uint64    `json:"sequence_number"`
	PaymentID      string    `json:"payment_id"`
	Sender         string    `json:"sender"`
	Amount         uint64    `json:"amount"`
	Timestamp      uint64    `json:"timestamp"`
	AdditionalData string    `json:"additional_data"`
	Treasury       string    `json:"treasury"`
	Version        uint64    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
}

// RecordPayment stores a processed event once per (stream, sequence number).
// It reports false when the event was already recorded, e.g. when a crash
// between processing and cursor persistence replays it.
func (s *Store) RecordPayment(ctx context.Context, streamID string, ev ledger.Event) (bool, error) {
	if streamID == "" {
		return false, errors.New("streamID required")
	}
	p := ev.Payment
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO payments (stream_id, sequence_number, payment_id, sender, amount, event_timestamp, additional_data, treasury, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, streamID, int64(ev.SequenceNumber), p.PaymentID, p.Sender, int64(p.Amount), int64(p.Timestamp), p.AdditionalData, p.Treasury, int64(ev.Version))
	if err != nil {
		return false, fmt.Errorf("record payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record payment: %w", err)
	}
	return n == 1, nil
}

// ListPayments returns recorded payments for a stream in sequence order.
// An empty streamID lists every stream.
func (s *Store) ListPayments(ctx context.Context, streamID string) ([]PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT stream_id, sequence_number, payment_id, sender, amount, event_timestamp,
       COALESCE(additional_data, ''), COALESCE(treasury, ''), COALESCE(version, 0), created_at
FROM payments
WHERE ? = '' OR stream_id = ?
ORDER BY stream_id, sequence_number;
`, streamID, streamID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []PaymentRecord
	for rows.Next() {
		var (
			r                    PaymentRecord
			seq, amount, ts, ver int64
		)
		if err := rows.Scan(&r.StreamID, &seq, &r.PaymentID, &r.Sender, &amount, &ts, &r.AdditionalData, &r.Treasury, &ver, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		r.SequenceNumber, r.Amount, r.Timestamp, r.Version = uint64(seq), uint64(amount), uint64(ts), uint64(ver)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Submission is the persisted state of one payment submission attempt.
type Submission struct {
	PaymentID string         `json:"payment_id"`
	Amount    uint64         `json:"amount"`
	State     ledger.TxState `json:"state"`
	TxHash    string         `json:"txhash,omitempty"`
	VMStatus  string         `json:"vm_status,omitempty"`
	GasUsed   uint64         `json:"gas_used,omitempty"`
	Version   uint64         `json:"version,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SaveSubmission inserts or updates the submission row for a payment id.
func (s *Store) SaveSubmission(ctx context.Context, sub Submission) error {
	if sub.PaymentID == "" || sub.State == "" {
		return errors.New("payment_id and state are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO submissions (payment_id, amount, state, txhash, vm_status, gas_used, version, error, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(payment_id) DO UPDATE SET
  amount=excluded.amount,
  state=excluded.state,
  txhash=excluded.txhash,
  vm_status=excluded.vm_status,
  gas_used=excluded.gas_used,
  version=excluded.version,
  error=excluded.error,
  updated_at=CURRENT_TIMESTAMP;
`, sub.PaymentID, int64(sub.Amount), string(sub.State), sub.TxHash, sub.VMStatus, int64(sub.GasUsed), int64(sub.Version), sub.Error)
	if err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	return nil
}

// ListSubmissions returns every stored submission, most recent first.
func (s *Store) ListSubmissions(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT payment_id, amount, state, COALESCE(txhash, ''), COALESCE(vm_status, ''),
       COALESCE(gas_used, 0), COALESCE(version, 0), COALESCE(error, ''), updated_at
FROM submissions
ORDER BY updated_at DESC, payment_id;
`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var (
			sub                  Submission
			state                string
			amount, gas, version int64
		)
		if err := rows.Scan(&sub.PaymentID, &amount, &state, &sub.TxHash, &sub.VMStatus, &gas, &version, &sub.Error, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.State = ledger.TxState(state)
		sub.Amount, sub.GasUsed, sub.Version = uint64(amount), uint64(gas), uint64(version)
		out = append(out, sub)
	}
	return out, rows.Err()
}
