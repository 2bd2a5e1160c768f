// Package hfp holds the vocabulary shared by the Hands-Free Profile audio
// gateway packages: device addresses, the constants exchanged with the radio
// stack, and the small value types carried by stack events.
package hfp

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a Bluetooth device address (BD_ADDR) in display order, i.e.
// Address{0xAA, ...} prints as "AA:...". The zero Address means "no device".
type Address [6]byte

// ParseAddress parses "AA:BB:CC:DD:EE:FF" (or '-' / '_' separated) into an
// Address.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.NewReplacer("-", ":", "_", ":").Replace(strings.TrimSpace(s))
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Address{}, fmt.Errorf("hfp: invalid address %q", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return Address{}, fmt.Errorf("hfp: invalid address %q", s)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return Address{}, fmt.Errorf("hfp: invalid address %q: %w", s, err)
		}
		a[i] = b[0]
	}
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the colon separated upper-case form.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = Address{}
		return nil
	}
	v, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
