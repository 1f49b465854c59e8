package aptos

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/devblac/paywatch/internal/ledger"
)

// bcsWriter implements the subset of BCS needed for entry function
// transactions.
type bcsWriter struct {
	buf bytes.Buffer
}

func (w *bcsWriter) u8(v uint8) { w.buf.WriteByte(v) }

func (w *bcsWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *bcsWriter) uleb128(v uint64) {
	for v >= 0x80 {
		w.buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	w.buf.WriteByte(byte(v))
}

// fixed writes b with no length prefix (addresses, fixed arrays).
func (w *bcsWriter) fixed(b []byte) { w.buf.Write(b) }

// bytes writes a length-prefixed byte sequence.
func (w *bcsWriter) bytes(b []byte) {
	w.uleb128(uint64(len(b)))
	w.buf.Write(b)
}

func (w *bcsWriter) str(s string) { w.bytes([]byte(s)) }

func (w *bcsWriter) Bytes() []byte { return w.buf.Bytes() }

// TransactionPayload variants.
const payloadEntryFunction = 2

// TransactionAuthenticator variants.
const authenticatorEd25519 = 0

type rawTransaction struct {
	Sender         AccountAddress
	SequenceNumber uint64
	Module         AccountAddress
	ModuleName     string
	Function       string
	Args           [][]byte
	MaxGasAmount   uint64
	GasUnitPrice   uint64
	ExpirationSecs uint64
	ChainID        uint8
}

func (r rawTransaction) encode() []byte {
	var w bcsWriter
	w.fixed(r.Sender[:])
	w.u64(r.SequenceNumber)
	w.uleb128(payloadEntryFunction)
	w.fixed(r.Module[:])
	w.str(r.ModuleName)
	w.str(r.Function)
	w.uleb128(0) // type arguments
	w.uleb128(uint64(len(r.Args)))
	for _, a := range r.Args {
		w.bytes(a)
	}
	w.u64(r.MaxGasAmount)
	w.u64(r.GasUnitPrice)
	w.u64(r.ExpirationSecs)
	w.u8(r.ChainID)
	return w.Bytes()
}

// encodeSigned appends an Ed25519 authenticator to raw.
func encodeSigned(raw, publicKey, signature []byte) []byte {
	var w bcsWriter
	w.fixed(raw)
	w.uleb128(authenticatorEd25519)
	w.bytes(publicKey)
	w.bytes(signature)
	return w.Bytes()
}

// encodeArg returns the BCS encoding of a single entry function argument.
func encodeArg(a ledger.Arg) ([]byte, error) {
	var w bcsWriter
	switch a.Kind {
	case ledger.ArgAddress:
		addr, err := ParseAddress(a.Address)
		if err != nil {
			return nil, fmt.Errorf("address argument: %w", err)
		}
		w.fixed(addr[:])
	case ledger.ArgBytes:
		w.bytes(a.Bytes)
	case ledger.ArgU64:
		v, err := strconv.ParseUint(a.Decimal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("u64 argument %q: %w", a.Decimal, err)
		}
		w.u64(v)
	default:
		return nil, fmt.Errorf("unsupported argument kind %q", a.Kind)
	}
	return w.Bytes(), nil
}
