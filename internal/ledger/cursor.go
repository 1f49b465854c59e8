package ledger

import "strconv"

// Cursor is the highest sequence number already processed for one stream.
// The zero value is unset: every event is new.
type Cursor struct {
	seq uint64
	set bool
}

// CursorAt returns a cursor positioned at seq.
func CursorAt(seq uint64) Cursor {
	return Cursor{seq: seq, set: true}
}

// IsNew reports whether an event with sequence number seq has not been processed yet.
func (c Cursor) IsNew(seq uint64) bool {
	return !c.set || seq > c.seq
}

// Advance moves the cursor to seq. It never moves backwards.
func (c *Cursor) Advance(seq uint64) {
	if c.IsNew(seq) {
		c.seq = seq
		c.set = true
	}
}

// Value returns the position and whether the cursor has been set.
func (c Cursor) Value() (uint64, bool) {
	return c.seq, c.set
}

func (c Cursor) String() string {
	if !c.set {
		return "unset"
	}
	return strconv.FormatUint(c.seq, 10)
}
