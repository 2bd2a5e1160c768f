package priority

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/haivivi/hfpag/pkg/hfp"
)

// Memory is an in-memory Store. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[hfp.Address]Record
	now  func() time.Time
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[hfp.Address]Record),
		now:  time.Now,
	}
}

func (m *Memory) Get(_ context.Context, device hfp.Address) (Record, error) {
	m.mu.RLock()
	rec, ok := m.data[device]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Set(_ context.Context, device hfp.Address, p hfp.Priority) error {
	m.mu.Lock()
	m.data[device] = Record{Device: device, Priority: p, UpdatedAt: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, device hfp.Address) error {
	m.mu.Lock()
	delete(m.data, device)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context) iter.Seq2[Record, error] {
	// Snapshot under read lock.
	m.mu.RLock()
	recs := make([]Record, 0, len(m.data))
	for _, r := range m.data {
		recs = append(recs, r)
	}
	m.mu.RUnlock()

	slices.SortFunc(recs, func(a, b Record) int {
		return bytes.Compare(a.Device[:], b.Device[:])
	})

	return func(yield func(Record, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (m *Memory) Close() error {
	return nil
}
