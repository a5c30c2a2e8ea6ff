/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Persists the versioned JSON documents of the wagering engine. The same
  pattern applies to PostgreSQL - only minor SQL dialect differences.

KEY TABLE:
  documents(collection, id, version, data, updated_at)

COMMIT PROTOCOL:
  Commit runs one database transaction:
    1. Re-read the version of every stamped document; any mismatch
       (including a document that appeared where the unit saw absence)
       fails the whole commit with engine.ErrConflict.
    2. Apply writes: creates (rejecting live rows), puts, and numeric
       increments. Increments are applied inside the database
       transaction, so they are atomic even though SQLite has no native
       field-increment on JSON text.
    3. Bump every touched document's version exactly once.
  Store-assigned timestamps on stamped creates come from the injected
  clock, never from the caller.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): multiple readers
  don't block, a single writer at a time, better crash recovery. The
  single-writer discipline also makes the version check in step 1
  exact.

USAGE:
  store, err := sqlite.New("./data/wager.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definition and write kinds
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/wager-engine/engine"
)

// Store implements engine.Store on SQLite.
type Store struct {
	db    *sql.DB
	clock engine.Clock

	// Serializes commits. WAL allows one writer anyway; taking the lock
	// up front turns SQLITE_BUSY storms into orderly queuing.
	mu sync.Mutex
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	return NewWithClock(dbPath, engine.SystemClock{})
}

// NewWithClock injects the clock used for store-assigned timestamps.
func NewWithClock(dbPath string, clock engine.Clock) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, clock: clock}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		version    INTEGER NOT NULL,
		data       TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// READS
// =============================================================================

// Get returns the committed document, or engine.ErrDocMissing.
func (s *Store) Get(ctx context.Context, ref engine.Ref) (*engine.Record, error) {
	var version int64
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM documents WHERE collection = ? AND id = ?`,
		string(ref.Collection), string(ref.ID),
	).Scan(&version, &data)
	if err == sql.ErrNoRows {
		return nil, engine.ErrDocMissing
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return &engine.Record{Ref: ref, Version: version, Data: []byte(data)}, nil
}

// List returns every document in a collection, ordered by id.
func (s *Store) List(ctx context.Context, col engine.Collection) ([]engine.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, data FROM documents WHERE collection = ? ORDER BY id`,
		string(col),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", col, err)
	}
	defer rows.Close()

	var out []engine.Record
	for rows.Next() {
		var id, data string
		var version int64
		if err := rows.Scan(&id, &version, &data); err != nil {
			return nil, fmt.Errorf("list %s: %w", col, err)
		}
		out = append(out, engine.Record{
			Ref:     engine.NewRef(col, engine.DocID(id)),
			Version: version,
			Data:    []byte(data),
		})
	}
	return out, rows.Err()
}

// =============================================================================
// COMMIT
// =============================================================================

// Commit validates the read stamps and applies the writes atomically.
func (s *Store) Commit(ctx context.Context, reads []engine.ReadStamp, writes []engine.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	// 1. Validate every stamp against the current version.
	for _, rs := range reads {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM documents WHERE collection = ? AND id = ?`,
			string(rs.Ref.Collection), string(rs.Ref.ID),
		).Scan(&current)
		if err == sql.ErrNoRows {
			current = 0
		} else if err != nil {
			return fmt.Errorf("validate %s: %w", rs.Ref, err)
		}
		if current != rs.Version {
			return engine.ErrConflict
		}
	}

	// 2. Stage writes in memory so a touched document's version bumps once.
	staged := make(map[engine.Ref][]byte)
	for _, w := range writes {
		switch w.Kind {
		case engine.WriteCreate:
			if _, ok := staged[w.Ref]; ok {
				return engine.ErrDocExists
			}
			live, err := s.loadRow(ctx, tx, w.Ref)
			if err != nil {
				return err
			}
			if live != nil {
				return engine.ErrDocExists
			}
			data := w.Data
			if w.TimestampField != "" {
				data, err = engine.StampTimestamp(data, w.TimestampField, s.clock.Now())
				if err != nil {
					return err
				}
			}
			staged[w.Ref] = data
		case engine.WritePut:
			staged[w.Ref] = w.Data
		case engine.WriteIncrement:
			base, ok := staged[w.Ref]
			if !ok {
				live, err := s.loadRow(ctx, tx, w.Ref)
				if err != nil {
					return err
				}
				base = live
			}
			next, err := engine.ApplyIncrements(base, w.Deltas)
			if err != nil {
				return err
			}
			staged[w.Ref] = next
		}
	}

	// 3. Upsert with version bump.
	now := s.clock.Now().UTC().Format(time.RFC3339Nano)
	for ref, data := range staged {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, version, data, updated_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET
				version = version + 1,
				data = excluded.data,
				updated_at = excluded.updated_at`,
			string(ref.Collection), string(ref.ID), string(data), now,
		)
		if err != nil {
			return fmt.Errorf("apply %s: %w", ref, err)
		}
	}

	return tx.Commit()
}

// loadRow reads a document's data inside the commit transaction. Nil means
// the row does not exist.
func (s *Store) loadRow(ctx context.Context, tx *sql.Tx, ref engine.Ref) ([]byte, error) {
	var data string
	err := tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		string(ref.Collection), string(ref.ID),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return []byte(data), nil
}
