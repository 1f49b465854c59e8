package aptos

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	privateKeyPrefix = "ed25519-priv-"
	ed25519Scheme    = 0x00
)

var rawTransactionSalt = sha3.Sum256([]byte("APTOS::RawTransaction"))

// Signer holds an Ed25519 account key.
type Signer struct {
	priv    ed25519.PrivateKey
	address AccountAddress
}

// ParsePrivateKey accepts a 32-byte seed as hex, with or without the 0x and
// AIP-80 "ed25519-priv-" prefixes.
func ParsePrivateKey(s string) (*Signer, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, privateKeyPrefix)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("private key is not hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{priv: priv, address: deriveAddress(pub)}, nil
}

// deriveAddress is sha3-256(public key || scheme), the single-key auth key.
func deriveAddress(pub ed25519.PublicKey) AccountAddress {
	h := sha3.New256()
	h.Write(pub)
	h.Write([]byte{ed25519Scheme})
	var out AccountAddress
	copy(out[:], h.Sum(nil))
	return out
}

func (s *Signer) Address() AccountAddress { return s.address }

func (s *Signer) PublicKey() []byte {
	return []byte(s.priv.Public().(ed25519.PublicKey))
}

// SignTransaction signs the domain-separated signing message of raw.
func (s *Signer) SignTransaction(raw []byte) []byte {
	return ed25519.Sign(s.priv, signingMessage(raw))
}

func signingMessage(raw []byte) []byte {
	msg := make([]byte, 0, len(rawTransactionSalt)+len(raw))
	msg = append(msg, rawTransactionSalt[:]...)
	return append(msg, raw...)
}
