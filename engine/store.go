/*
store.go - Document store interface with optimistic conflict detection

PURPOSE:
  Defines the interface between the domain logic and the database.
  The store holds versioned JSON documents addressed by (collection, id)
  and applies multi-document commits atomically, rejecting a commit when
  any document read by the unit was concurrently modified.

KEY INTERFACES:
  Store:  Get single committed document; Commit a validated write set.

VERSIONING CONTRACT:
  Every committed write bumps the document's version (a per-document
  counter starting at 1). A ReadStamp records the version a unit
  observed; version 0 stamps an observed absence. Commit fails with
  ErrConflict if any stamped version no longer matches.

WRITE KINDS:
  Create     Fails the commit if the document exists (ErrDocExists).
             May name a TimestampField the store fills with its own
             commit time, so callers cannot backdate entries.
  Put        Full replacement. The conflict guard is the read stamp the
             unit recorded when it loaded the document.
  Increment  Numeric deltas against named top-level fields. Commutative:
             carries no version guard, so two concurrent increments to
             the same field both succeed.

IMPLEMENTATIONS:
  - engine/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: Production SQLite

SEE ALSO:
  - unit.go: Buffers reads/writes for one unit of work
  - coordinator.go: Retries units on ErrConflict
*/
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ADDRESSING
// =============================================================================

type Collection string
type DocID string

// Ref addresses one document.
type Ref struct {
	Collection Collection
	ID         DocID
}

func NewRef(col Collection, id DocID) Ref { return Ref{Collection: col, ID: id} }

func (r Ref) String() string { return fmt.Sprintf("%s/%s", r.Collection, r.ID) }

// =============================================================================
// RECORDS AND WRITES
// =============================================================================

// Record is a committed document.
type Record struct {
	Ref     Ref
	Version int64 // >= 1 for committed documents
	Data    []byte // JSON object
}

// ReadStamp records the version a unit observed for a document.
// Version 0 stamps an observed absence.
type ReadStamp struct {
	Ref     Ref
	Version int64
}

type WriteKind int

const (
	WriteCreate WriteKind = iota
	WritePut
	WriteIncrement
)

// Write is one buffered mutation inside a unit of work.
type Write struct {
	Kind WriteKind
	Ref  Ref

	// Create/Put payload.
	Data []byte

	// Create only: top-level field the store fills with its commit time
	// (RFC 3339). Empty means no stamping.
	TimestampField string

	// Increment only.
	Deltas map[string]decimal.Decimal
}

// =============================================================================
// STORE
// =============================================================================

// Store is the ledger store. Implementations must apply Commit atomically:
// either every write lands or none does.
type Store interface {
	// Get returns the committed document, or ErrDocMissing.
	Get(ctx context.Context, ref Ref) (*Record, error)

	// Commit validates every read stamp against current versions and, if
	// all hold, applies every write. Returns ErrConflict on a stale stamp,
	// ErrDocExists on a Create against a live document.
	Commit(ctx context.Context, reads []ReadStamp, writes []Write) error

	// List returns every committed document in a collection, ordered by id.
	// Serves the admin pending queues; not part of any unit of work.
	List(ctx context.Context, col Collection) ([]Record, error)
}

// =============================================================================
// INCREMENT APPLICATION - Shared by store implementations
// =============================================================================

// ApplyIncrements merges numeric deltas into a JSON document. Fields are
// decoded as decimal strings or numbers; missing fields start at zero. A
// nil document starts as an empty object, keeping increments commutative
// even when they arrive before the document's Create.
func ApplyIncrements(data []byte, deltas map[string]decimal.Decimal) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("increment target is not an object: %w", err)
		}
	}
	for field, delta := range deltas {
		current := decimal.Zero
		if raw, ok := doc[field]; ok {
			if err := json.Unmarshal(raw, &current); err != nil {
				return nil, fmt.Errorf("field %q is not numeric: %w", field, err)
			}
		}
		next, err := json.Marshal(current.Add(delta))
		if err != nil {
			return nil, err
		}
		doc[field] = next
	}
	return json.Marshal(doc)
}

// StampTimestamp overwrites a top-level field with the store's commit time.
// Whatever the caller put there is discarded; timestamps on stamped creates
// are store-assigned, never client-supplied.
func StampTimestamp(data []byte, field string, now time.Time) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("stamp target is not an object: %w", err)
		}
	}
	raw, err := json.Marshal(now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	doc[field] = raw
	return json.Marshal(doc)
}
