/*
unit.go - Unit-of-work handle passed to transactional functions

PURPOSE:
  A Unit buffers the reads and writes of one atomic operation. Nothing
  reaches the store until the coordinator commits the whole set; a unit
  function that returns an error leaves zero state change behind.

READ SEMANTICS:
  Get records a ReadStamp for every document it touches, including
  observed absences (version 0). The commit validates every stamp, so a
  unit only lands if all of its reads came from one consistent state.
  Reading a document this unit already buffered a Create/Put for
  returns the buffered value (read-your-writes).

WRITE SEMANTICS:
  Create/Put/Increment only buffer. Put relies on the stamp recorded by
  the prior Get for its conflict guard: load a document before replacing
  it. Increment is commutative and carries no guard (see store.go).

SEE ALSO:
  - coordinator.go: Runs unit functions with bounded retry
*/
package engine

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Unit is the handle a transactional function receives. Not safe for
// concurrent use; a unit belongs to exactly one goroutine.
type Unit struct {
	store    Store
	reads    []ReadStamp
	stamped  map[Ref]bool
	writes   []Write
	buffered map[Ref][]byte
}

func newUnit(store Store) *Unit {
	return &Unit{
		store:    store,
		stamped:  make(map[Ref]bool),
		buffered: make(map[Ref][]byte),
	}
}

// Get loads a document into out. Absent documents return a NotFound-kind
// error wrapping ErrDocMissing and stamp the absence, so a concurrent
// create of the same document still conflicts this unit.
func (u *Unit) Get(ctx context.Context, col Collection, id DocID, out any) error {
	ref := NewRef(col, id)

	if data, ok := u.buffered[ref]; ok {
		if err := json.Unmarshal(data, out); err != nil {
			return Wrap(Internal, err, "decode buffered %s", ref)
		}
		return nil
	}

	rec, err := u.store.Get(ctx, ref)
	if err != nil {
		if err == ErrDocMissing || IsKind(err, NotFound) {
			u.stamp(ref, 0)
			return Wrap(NotFound, ErrDocMissing, "%s", ref)
		}
		return Wrap(Internal, err, "read %s", ref)
	}

	u.stamp(ref, rec.Version)
	if err := json.Unmarshal(rec.Data, out); err != nil {
		return Wrap(Internal, err, "decode %s", ref)
	}
	return nil
}

// Create buffers a new document. The commit fails if it already exists.
func (u *Unit) Create(col Collection, id DocID, v any) error {
	return u.create(col, id, v, "")
}

// CreateStamped buffers a new document whose tsField the store fills with
// its own commit time. Used for audit entries so timestamps cannot be
// supplied by the caller.
func (u *Unit) CreateStamped(col Collection, id DocID, v any, tsField string) error {
	return u.create(col, id, v, tsField)
}

func (u *Unit) create(col Collection, id DocID, v any, tsField string) error {
	ref := NewRef(col, id)
	data, err := json.Marshal(v)
	if err != nil {
		return Wrap(Internal, err, "encode %s", ref)
	}
	u.writes = append(u.writes, Write{Kind: WriteCreate, Ref: ref, Data: data, TimestampField: tsField})
	u.buffered[ref] = data
	return nil
}

// Put buffers a full replacement. Call Get first in the same unit; the
// recorded stamp is what guards this write against concurrent change.
func (u *Unit) Put(col Collection, id DocID, v any) error {
	ref := NewRef(col, id)
	data, err := json.Marshal(v)
	if err != nil {
		return Wrap(Internal, err, "encode %s", ref)
	}
	u.writes = append(u.writes, Write{Kind: WritePut, Ref: ref, Data: data})
	u.buffered[ref] = data
	return nil
}

// Increment buffers commutative numeric deltas against named fields.
func (u *Unit) Increment(col Collection, id DocID, deltas map[string]decimal.Decimal) {
	copied := make(map[string]decimal.Decimal, len(deltas))
	for k, v := range deltas {
		copied[k] = v
	}
	u.writes = append(u.writes, Write{Kind: WriteIncrement, Ref: NewRef(col, id), Deltas: copied})
}

func (u *Unit) stamp(ref Ref, version int64) {
	if u.stamped[ref] {
		return
	}
	u.stamped[ref] = true
	u.reads = append(u.reads, ReadStamp{Ref: ref, Version: version})
}
