package sqlite_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wager-engine/engine"
	"github.com/warp/wager-engine/store/sqlite"
)

const colThings engine.Collection = "things"

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s *sqlite.Store, id string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, s.Commit(context.Background(), nil, []engine.Write{{
		Kind: engine.WriteCreate,
		Ref:  engine.NewRef(colThings, engine.DocID(id)),
		Data: data,
	}}))
}

func TestGet_RoundTripAndVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	mustCreate(t, s, "a", map[string]any{"name": "alpha"})

	rec, err := s.Get(ctx, engine.NewRef(colThings, "a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Data, &doc))
	assert.Equal(t, "alpha", doc["name"])
}

func TestGet_Missing(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(context.Background(), engine.NewRef(colThings, "nope"))
	assert.ErrorIs(t, err, engine.ErrDocMissing)
}

func TestCommit_StaleStamp_Conflict(t *testing.T) {
	// GIVEN: A document read at version 1, then bumped to 2 behind the
	//       reader's back
	// WHEN: The reader commits against its stale stamp
	// THEN: ErrConflict; the document keeps the interloper's data

	s := newStore(t)
	ctx := context.Background()
	ref := engine.NewRef(colThings, "a")
	mustCreate(t, s, "a", map[string]any{"n": 1})

	rec, err := s.Get(ctx, ref)
	require.NoError(t, err)
	stamp := engine.ReadStamp{Ref: ref, Version: rec.Version}

	// Interloper.
	require.NoError(t, s.Commit(ctx,
		[]engine.ReadStamp{stamp},
		[]engine.Write{{Kind: engine.WritePut, Ref: ref, Data: []byte(`{"n":2}`)}}))

	err = s.Commit(ctx,
		[]engine.ReadStamp{stamp},
		[]engine.Write{{Kind: engine.WritePut, Ref: ref, Data: []byte(`{"n":99}`)}})
	assert.ErrorIs(t, err, engine.ErrConflict)

	rec, err = s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)
	assert.JSONEq(t, `{"n":2}`, string(rec.Data))
}

func TestCommit_AbsenceStamp_ConflictsOnAppearance(t *testing.T) {
	// A version-0 stamp asserts the document does not exist. Once it
	// does, the stamp is stale.

	s := newStore(t)
	ctx := context.Background()
	ref := engine.NewRef(colThings, "a")
	absent := engine.ReadStamp{Ref: ref, Version: 0}

	mustCreate(t, s, "a", map[string]any{"n": 1})

	err := s.Commit(ctx, []engine.ReadStamp{absent}, []engine.Write{{
		Kind: engine.WriteCreate, Ref: ref, Data: []byte(`{"n":5}`),
	}})
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestCommit_CreateExisting_DocExists(t *testing.T) {
	s := newStore(t)
	ref := engine.NewRef(colThings, "a")
	mustCreate(t, s, "a", map[string]any{"n": 1})

	err := s.Commit(context.Background(), nil, []engine.Write{{
		Kind: engine.WriteCreate, Ref: ref, Data: []byte(`{"n":2}`),
	}})
	assert.ErrorIs(t, err, engine.ErrDocExists)
}

func TestCommit_Increments_MergeWithoutStamps(t *testing.T) {
	// GIVEN: A document with two numeric fields
	// WHEN: Two increment writes commit with no read stamps
	// THEN: Both deltas land and the version advances once per commit

	s := newStore(t)
	ctx := context.Background()
	ref := engine.NewRef(colThings, "w")
	mustCreate(t, s, "w", map[string]any{"deposit": "100.00", "winning": "0.00"})

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Commit(ctx, nil, []engine.Write{{
			Kind: engine.WriteIncrement,
			Ref:  ref,
			Deltas: map[string]decimal.Decimal{
				"deposit": decimal.NewFromInt(-25),
				"winning": decimal.NewFromInt(10),
			},
		}}))
	}

	rec, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Version)

	var doc map[string]string
	require.NoError(t, json.Unmarshal(rec.Data, &doc))
	assert.Equal(t, "50", doc["deposit"])
	assert.Equal(t, "20", doc["winning"])
}

func TestCommit_AtomicAcrossWrites(t *testing.T) {
	// A failing create in the batch must roll back the sibling put.

	s := newStore(t)
	ctx := context.Background()
	refA := engine.NewRef(colThings, "a")
	refB := engine.NewRef(colThings, "b")
	mustCreate(t, s, "a", map[string]any{"n": 1})
	mustCreate(t, s, "b", map[string]any{"n": 1})

	err := s.Commit(ctx, nil, []engine.Write{
		{Kind: engine.WritePut, Ref: refA, Data: []byte(`{"n":2}`)},
		{Kind: engine.WriteCreate, Ref: refB, Data: []byte(`{"n":2}`)},
	})
	assert.ErrorIs(t, err, engine.ErrDocExists)

	rec, err := s.Get(ctx, refA)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(rec.Data), "sibling write rolled back")
	assert.Equal(t, int64(1), rec.Version)
}

func TestCommit_StampedCreate_StoreAssignsTimestamp(t *testing.T) {
	// GIVEN: A clock pinned to a known instant and a payload claiming an
	//       earlier timestamp
	// WHEN: A stamped create commits
	// THEN: The stored document carries the clock's time, not the claim

	pinned := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	s, err := sqlite.NewWithClock(":memory:", engine.NewManualClock(pinned))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	ref := engine.NewRef(colThings, "e")
	require.NoError(t, s.Commit(ctx, nil, []engine.Write{{
		Kind:           engine.WriteCreate,
		Ref:            ref,
		Data:           []byte(`{"type":"float_topup","timestamp":"1999-01-01T00:00:00Z"}`),
		TimestampField: "timestamp",
	}}))

	rec, err := s.Get(ctx, ref)
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(rec.Data, &doc))
	got, err := time.Parse(time.RFC3339Nano, doc["timestamp"])
	require.NoError(t, err)
	assert.True(t, got.Equal(pinned), "got %s", got)
}

func TestList_SortedWithinCollection(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	mustCreate(t, s, "c", map[string]any{"n": 3})
	mustCreate(t, s, "a", map[string]any{"n": 1})
	mustCreate(t, s, "b", map[string]any{"n": 2})

	require.NoError(t, s.Commit(ctx, nil, []engine.Write{{
		Kind: engine.WriteCreate,
		Ref:  engine.NewRef("other", "z"),
		Data: []byte(`{}`),
	}}))

	recs, err := s.List(ctx, colThings)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, engine.DocID("a"), recs[0].Ref.ID)
	assert.Equal(t, engine.DocID("b"), recs[1].Ref.ID)
	assert.Equal(t, engine.DocID("c"), recs[2].Ref.ID)
}
