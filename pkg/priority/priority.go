// Package priority persists the per-device connection policy of the audio
// gateway (off, on, auto-connect).
//
// Records are keyed by device address. The package includes a
// BadgerDB-backed implementation for the daemon and an in-memory
// implementation for tests and ephemeral runs.
package priority

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// ErrNotFound is returned when no priority is stored for a device.
var ErrNotFound = errors.New("priority: not found")

// Record is the stored policy of one device.
type Record struct {
	Device    hfp.Address  `json:"device" yaml:"device" msgpack:"device"`
	Priority  hfp.Priority `json:"priority" yaml:"priority" msgpack:"priority"`
	UpdatedAt time.Time    `json:"updated_at" yaml:"updated_at" msgpack:"updated_at"`
}

// Store is the interface for a device priority store.
type Store interface {
	// Get returns the record of device. Returns ErrNotFound if not present.
	Get(ctx context.Context, device hfp.Address) (Record, error)

	// Set stores the priority of device, overwriting any previous value.
	Set(ctx context.Context, device hfp.Address, p hfp.Priority) error

	// Delete removes the record of device. No error if it does not exist.
	Delete(ctx context.Context, device hfp.Address) error

	// List iterates over all records ordered by device address.
	List(ctx context.Context) iter.Seq2[Record, error]

	// Close releases any resources held by the store.
	Close() error
}

// Lookup returns the priority of device, or hfp.PriorityUndefined when the
// store has no record or fails.
func Lookup(ctx context.Context, s Store, device hfp.Address) hfp.Priority {
	if s == nil {
		return hfp.PriorityUndefined
	}
	rec, err := s.Get(ctx, device)
	if err != nil {
		return hfp.PriorityUndefined
	}
	return rec.Priority
}

// keyPrefix namespaces priority records inside a shared database.
const keyPrefix = "hfp:priority:"

func encodeKey(device hfp.Address) []byte {
	return []byte(keyPrefix + device.String())
}

func decodeKey(b []byte) (hfp.Address, error) {
	if len(b) < len(keyPrefix) {
		return hfp.Address{}, errors.New("priority: short key")
	}
	return hfp.ParseAddress(string(b[len(keyPrefix):]))
}
