package aptos

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AccountAddress is the 32-byte account address.
type AccountAddress [32]byte

func (a AccountAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// NormalizeAddress lowercases addr and left-pads it to the long 0x + 64 hex form.
func NormalizeAddress(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	addr = strings.TrimPrefix(addr, "0x")
	if len(addr) < 64 {
		addr = strings.Repeat("0", 64-len(addr)) + addr
	}
	return "0x" + addr
}

func ValidateAddress(addr string) error {
	normalized := NormalizeAddress(addr)
	if len(normalized) != 66 {
		return fmt.Errorf("invalid address length: expected 66 characters (0x + 64 hex), got %d", len(normalized))
	}
	for i, c := range normalized[2:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return fmt.Errorf("invalid character at position %d: %c", i+2, c)
		}
	}
	return nil
}

// ParseAddress accepts short (0x1) and long address forms.
func ParseAddress(addr string) (AccountAddress, error) {
	var out AccountAddress
	if strings.TrimSpace(addr) == "" {
		return out, fmt.Errorf("empty address")
	}
	if err := ValidateAddress(addr); err != nil {
		return out, err
	}
	raw, err := hex.DecodeString(NormalizeAddress(addr)[2:])
	if err != nil {
		return out, fmt.Errorf("decode address: %w", err)
	}
	copy(out[:], raw)
	return out, nil
}

// ShortAddress strips leading zeros, e.g. 0x000…01 becomes 0x1.
func ShortAddress(addr string) string {
	normalized := NormalizeAddress(addr)
	trimmed := strings.TrimLeft(normalized[2:], "0")
	if trimmed == "" {
		return "0x0"
	}
	return "0x" + trimmed
}
