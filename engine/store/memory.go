// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/wager-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	docs  map[engine.Ref]record
	clock engine.Clock
}

type record struct {
	version int64
	data    []byte
}

func NewMemory() *Memory {
	return NewMemoryWithClock(engine.SystemClock{})
}

// NewMemoryWithClock injects the clock used for store-assigned timestamps.
func NewMemoryWithClock(clock engine.Clock) *Memory {
	return &Memory{
		docs:  make(map[engine.Ref]record),
		clock: clock,
	}
}

// Get returns the committed document, or engine.ErrDocMissing.
func (m *Memory) Get(_ context.Context, ref engine.Ref) (*engine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.docs[ref]
	if !ok {
		return nil, engine.ErrDocMissing
	}
	data := make([]byte, len(rec.data))
	copy(data, rec.data)
	return &engine.Record{Ref: ref, Version: rec.version, Data: data}, nil
}

// Commit validates every read stamp, then applies every write. All-or-nothing:
// validation happens before the first mutation, and mutations cannot fail
// except for malformed increment targets, which are applied to a scratch copy
// first.
func (m *Memory) Commit(_ context.Context, reads []engine.ReadStamp, writes []engine.Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate read stamps against current versions. Version 0 means the
	// unit observed an absence.
	for _, rs := range reads {
		current := int64(0)
		if rec, ok := m.docs[rs.Ref]; ok {
			current = rec.version
		}
		if current != rs.Version {
			return engine.ErrConflict
		}
	}

	// Validate creates and pre-compute increment results so the apply
	// phase below cannot fail halfway.
	staged := make(map[engine.Ref][]byte)
	for _, w := range writes {
		switch w.Kind {
		case engine.WriteCreate:
			if _, ok := m.docs[w.Ref]; ok {
				return engine.ErrDocExists
			}
			if _, ok := staged[w.Ref]; ok {
				return engine.ErrDocExists
			}
			data := w.Data
			if w.TimestampField != "" {
				stamped, err := engine.StampTimestamp(data, w.TimestampField, m.clock.Now())
				if err != nil {
					return err
				}
				data = stamped
			}
			staged[w.Ref] = data
		case engine.WritePut:
			staged[w.Ref] = w.Data
		case engine.WriteIncrement:
			base, ok := staged[w.Ref]
			if !ok {
				if rec, live := m.docs[w.Ref]; live {
					base = rec.data
				}
			}
			next, err := engine.ApplyIncrements(base, w.Deltas)
			if err != nil {
				return err
			}
			staged[w.Ref] = next
		}
	}

	// Apply. Every touched document gets its version bumped once.
	for ref, data := range staged {
		rec := m.docs[ref]
		m.docs[ref] = record{version: rec.version + 1, data: data}
	}
	return nil
}

// List returns every document in the collection, ordered by id.
func (m *Memory) List(_ context.Context, col engine.Collection) ([]engine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Record
	for ref, rec := range m.docs {
		if ref.Collection != col {
			continue
		}
		data := make([]byte, len(rec.data))
		copy(data, rec.data)
		out = append(out, engine.Record{Ref: ref, Version: rec.version, Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID < out[j].Ref.ID })
	return out, nil
}
