package core

// Address identifiers for the market-making engine.
//
// Every on-chain entity this package talks about — a token mint, an owner
// key, a vault PDA, the operator key — is a raw 32-byte ed25519 public key
// (or a PDA derived the same way a public key is addressed). There is no
// intermediate hash the way the teacher's account model hashes a public key
// down to a 20-byte address; a bonding-curve DEX of this shape addresses
// everything by the full 32-byte key, base58-encoded for display.

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Address is a 32-byte public key or Program-Derived Address.
type Address [32]byte

// ZeroAddress is the all-zero sentinel, used where no address is set.
var ZeroAddress = Address{}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// String renders the address as base58, the wire format of every identifier
// exchanged with the RPC node and persisted in the store.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Short returns an abbreviated form for log lines: first 4 + last 4 base58
// characters, matching the teacher's Address.Short() convention.
func (a Address) Short() string {
	s := a.String()
	if len(s) <= 8 {
		return s
	}
	return fmt.Sprintf("%s..%s", s[:4], s[len(s)-4:])
}

// Bytes returns the raw 32-byte key.
func (a Address) Bytes() []byte { return a[:] }

// ParseAddress decodes a base58 string into an Address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("decode base58 address %q: %w", s, err)
	}
	if len(b) != 32 {
		return a, fmt.Errorf("address %q decodes to %d bytes, want 32", s, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress panics on an invalid address. Reserved for well-known
// program constants declared at package init time.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MarshalJSON renders the address as its base58 string, the shape the store
// and the broadcast sink both expect.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses a base58 string into the address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = ZeroAddress
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ErrInvalidAddressLength is returned by low-level decoders fed the wrong
// number of raw bytes.
var ErrInvalidAddressLength = errors.New("address must be exactly 32 bytes")

// AddressFromBytes builds an Address from a raw byte slice, enforcing length.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != 32 {
		return a, ErrInvalidAddressLength
	}
	copy(a[:], b)
	return a, nil
}
