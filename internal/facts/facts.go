// Package facts provides the SQLite-backed structured fact store for the
// Axon engine. Facts are key/value records scoped by conversation thread,
// partitioned into caller-defined domains, and optionally linked to a
// semantic vector record maintained by the sync coordinator.
//
// The structured layer is always authoritative: vector records reference
// facts, never the other way around.
package facts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrLockViolation is returned when a write targets a fact whose current
// record is locked. Locked facts keep their value and tags immutable until
// explicitly unlocked.
var ErrLockViolation = errors.New("facts: fact is locked")

// ErrNotFound is returned by Get and SetLocked when no fact exists for the
// given (thread, key) pair.
var ErrNotFound = errors.New("facts: fact not found")

// EmbedState records whether a fact's semantic counterpart exists.
// It is a result variant, not an error: an unreachable embedder degrades a
// write to fact-only storage instead of rejecting it.
type EmbedState string

const (
	// EmbedNone means no embedding was requested for this fact.
	EmbedNone EmbedState = "none"
	// Embedded means the fact has a live vector record (VectorRef is set).
	Embedded EmbedState = "embedded"
	// Unembedded means embedding was requested but could not be produced;
	// the fact is stored without a semantic counterpart.
	Unembedded EmbedState = "unembedded"
)

// Fact is a single structured memory record.
type Fact struct {
	// ThreadID scopes the fact to one conversation thread.
	ThreadID string
	// Key is the fact name, unique per thread.
	Key string
	// Value is the fact content.
	Value string
	// Identity names the speaker or source the fact was learned from.
	Identity string
	// Domain is the caller-defined namespace (e.g. "personal", "project").
	Domain string
	// Tags are free-form labels used for conjunctive list filtering.
	Tags []string
	// Locked marks the fact immutable: value and tags cannot change until
	// the fact is explicitly unlocked.
	Locked bool
	// VectorRef is the id of the linked vector record, empty when none.
	VectorRef string
	// EmbedState records the outcome of the last embedding attempt.
	EmbedState EmbedState
	// CreatedAt is when the fact was first written.
	CreatedAt time.Time
	// UpdatedAt is when the fact was last written.
	UpdatedAt time.Time
}

// Event describes a completed mutation, delivered to the store observer.
type Event struct {
	// Op is "put" or "delete".
	Op string
	// ThreadID and Key identify the affected fact.
	ThreadID string
	Key      string
	// Domain is the fact's domain at mutation time.
	Domain string
}

// Store is the fact persistence contract. Implementations must be safe for
// concurrent use and must evaluate the lock check atomically with the write
// it guards.
type Store interface {
	// Put inserts or updates a fact. A put against a locked record fails
	// with ErrLockViolation unless it only flips Locked to false while
	// leaving value and tags unchanged.
	Put(ctx context.Context, f *Fact) error
	// Get returns the fact for (threadID, key) or ErrNotFound.
	Get(ctx context.Context, threadID, key string) (*Fact, error)
	// List returns facts for the thread, filtered conjunctively by domain
	// and tag when non-empty.
	List(ctx context.Context, threadID, domain, tag string) ([]*Fact, error)
	// Delete removes the fact. Deleting a missing fact is not an error.
	Delete(ctx context.Context, threadID, key string) error
	// SetLocked flips the lock flag without touching value or tags.
	SetLocked(ctx context.Context, threadID, key string, locked bool) error
	// SetVectorRef records the linked vector id and embed state. Allowed
	// on locked facts: link metadata is not part of the immutable payload.
	SetVectorRef(ctx context.Context, threadID, key, vectorRef string, state EmbedState) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// observer, when set, receives an Event after every successful
	// put/delete. Set once at wiring time, before concurrent use.
	observer func(Event)
}

// DefaultDBPath returns the default path for the fact database.
// It resolves to ~/.axon/facts.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("facts: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".axon")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("facts: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "facts.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("facts: open %s: %w", path, err)
	}
	// A single connection serialises writers, which makes the lock
	// check-then-act inside Put atomic without SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS facts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    thread_id   TEXT    NOT NULL,
    key         TEXT    NOT NULL,
    value       TEXT    NOT NULL,
    identity    TEXT    NOT NULL DEFAULT '',
    domain      TEXT    NOT NULL DEFAULT '',
    tags        TEXT    NOT NULL DEFAULT '[]',  -- JSON array of strings
    locked      INTEGER NOT NULL DEFAULT 0,
    vector_ref  TEXT    NOT NULL DEFAULT '',
    embed_state TEXT    NOT NULL DEFAULT 'none',
    created_at  INTEGER NOT NULL,               -- Unix timestamp (seconds)
    updated_at  INTEGER NOT NULL,
    UNIQUE(thread_id, key)
);
CREATE INDEX IF NOT EXISTS idx_facts_thread_domain
    ON facts (thread_id, domain);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("facts: migrate: %w", err)
	}
	return nil
}

// SetObserver registers fn to receive an Event after every successful
// put/delete. Must be called before the store is used concurrently.
func (s *SQLiteStore) SetObserver(fn func(Event)) {
	s.observer = fn
}

// notify delivers ev to the observer, if one is registered.
func (s *SQLiteStore) notify(ev Event) {
	if s.observer != nil {
		s.observer(ev)
	}
}

// Put inserts or updates a fact. The existence and lock checks run in the
// same transaction as the write, so two concurrent writers cannot both pass
// the lock check.
func (s *SQLiteStore) Put(ctx context.Context, f *Fact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("facts: put begin: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanFact(tx.QueryRowContext(ctx, selectFactSQL, f.ThreadID, f.Key))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("facts: put lookup: %w", err)
	}

	now := time.Now()
	tags, err := json.Marshal(nonNilTags(f.Tags))
	if err != nil {
		return fmt.Errorf("facts: put marshal tags: %w", err)
	}

	if cur == nil {
		const q = `
INSERT INTO facts (thread_id, key, value, identity, domain, tags, locked,
                   vector_ref, embed_state, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = tx.ExecContext(ctx, q,
			f.ThreadID, f.Key, f.Value, f.Identity, f.Domain, string(tags),
			boolToInt(f.Locked), f.VectorRef, string(embedStateOrNone(f.EmbedState)),
			now.Unix(), now.Unix())
		if err != nil {
			return fmt.Errorf("facts: put insert: %w", err)
		}
	} else {
		if cur.Locked && !isUnlockingPut(cur, f) {
			return fmt.Errorf("facts: put %s/%s: %w", f.ThreadID, f.Key, ErrLockViolation)
		}
		const q = `
UPDATE facts
SET    value = ?, identity = ?, domain = ?, tags = ?, locked = ?, updated_at = ?
WHERE  thread_id = ? AND key = ?`
		_, err = tx.ExecContext(ctx, q,
			f.Value, f.Identity, f.Domain, string(tags), boolToInt(f.Locked),
			now.Unix(), f.ThreadID, f.Key)
		if err != nil {
			return fmt.Errorf("facts: put update: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("facts: put commit: %w", err)
	}

	f.UpdatedAt = now
	if cur == nil {
		f.CreatedAt = now
	} else {
		f.CreatedAt = cur.CreatedAt
		// Link metadata survives value updates; the coordinator rewrites
		// it after re-embedding.
		f.VectorRef = cur.VectorRef
		f.EmbedState = cur.EmbedState
	}

	s.notify(Event{Op: "put", ThreadID: f.ThreadID, Key: f.Key, Domain: f.Domain})
	return nil
}

// isUnlockingPut reports whether f is the one permitted write against a
// locked record: flipping Locked to false while leaving value and tags
// untouched.
func isUnlockingPut(cur, f *Fact) bool {
	return !f.Locked &&
		f.Value == cur.Value &&
		slices.Equal(nonNilTags(f.Tags), nonNilTags(cur.Tags))
}

// Get returns the fact for (threadID, key), or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, threadID, key string) (*Fact, error) {
	f, err := scanFact(s.db.QueryRowContext(ctx, selectFactSQL, threadID, key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("facts: get %s/%s: %w", threadID, key, ErrNotFound)
		}
		return nil, fmt.Errorf("facts: get: %w", err)
	}
	return f, nil
}

// List returns all facts in the thread matching the given filters. Both
// filters are conjunctive: when domain and tag are both non-empty a fact must
// match both to be returned. Results are ordered most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, threadID, domain, tag string) ([]*Fact, error) {
	q := `
SELECT thread_id, key, value, identity, domain, tags, locked,
       vector_ref, embed_state, created_at, updated_at
FROM   facts
WHERE  thread_id = ?`
	args := []any{threadID}
	if domain != "" {
		q += ` AND domain = ?`
		args = append(args, domain)
	}
	q += ` ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("facts: list: %w", err)
	}
	defer rows.Close()

	var out []*Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("facts: list scan: %w", err)
		}
		// Tag membership is checked in Go: tags are stored as a JSON
		// array, which SQLite cannot index usefully at this scale.
		if tag != "" && !slices.Contains(f.Tags, tag) {
			continue
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("facts: list rows: %w", err)
	}
	return out, nil
}

// Delete removes the fact for (threadID, key). Deleting a fact that does not
// exist is idempotent and returns nil.
func (s *SQLiteStore) Delete(ctx context.Context, threadID, key string) error {
	cur, err := s.Get(ctx, threadID, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	const q = `DELETE FROM facts WHERE thread_id = ? AND key = ?`
	if _, err := s.db.ExecContext(ctx, q, threadID, key); err != nil {
		return fmt.Errorf("facts: delete: %w", err)
	}

	s.notify(Event{Op: "delete", ThreadID: threadID, Key: key, Domain: cur.Domain})
	return nil
}

// SetLocked flips the lock flag for (threadID, key) without touching value
// or tags. Returns ErrNotFound if the fact does not exist.
func (s *SQLiteStore) SetLocked(ctx context.Context, threadID, key string, locked bool) error {
	const q = `UPDATE facts SET locked = ?, updated_at = ? WHERE thread_id = ? AND key = ?`
	res, err := s.db.ExecContext(ctx, q, boolToInt(locked), time.Now().Unix(), threadID, key)
	if err != nil {
		return fmt.Errorf("facts: set_locked: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("facts: set_locked rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("facts: set_locked %s/%s: %w", threadID, key, ErrNotFound)
	}
	return nil
}

// SetVectorRef records the linked vector record id and embed state. This is
// allowed even on locked facts: link metadata is deletion/sync bookkeeping,
// not part of the immutable value.
func (s *SQLiteStore) SetVectorRef(ctx context.Context, threadID, key, vectorRef string, state EmbedState) error {
	const q = `UPDATE facts SET vector_ref = ?, embed_state = ? WHERE thread_id = ? AND key = ?`
	res, err := s.db.ExecContext(ctx, q, vectorRef, string(state), threadID, key)
	if err != nil {
		return fmt.Errorf("facts: set_vector_ref: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("facts: set_vector_ref rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("facts: set_vector_ref %s/%s: %w", threadID, key, ErrNotFound)
	}
	return nil
}

// Ping probes the underlying database connection. Used by readiness checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("facts: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("facts: close: %w", err)
	}
	return nil
}

// selectFactSQL selects one full fact row by (thread_id, key).
const selectFactSQL = `
SELECT thread_id, key, value, identity, domain, tags, locked,
       vector_ref, embed_state, created_at, updated_at
FROM   facts
WHERE  thread_id = ? AND key = ?`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFact reads one fact row. Returns ErrNotFound for sql.ErrNoRows.
func scanFact(row rowScanner) (*Fact, error) {
	var (
		f         Fact
		tagsJSON  string
		locked    int
		state     string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&f.ThreadID, &f.Key, &f.Value, &f.Identity, &f.Domain,
		&tagsJSON, &locked, &f.VectorRef, &state, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &f.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	f.Locked = locked != 0
	f.EmbedState = EmbedState(state)
	f.CreatedAt = time.Unix(createdAt, 0)
	f.UpdatedAt = time.Unix(updatedAt, 0)
	return &f, nil
}

// nonNilTags normalises a nil tag slice to an empty one so JSON encoding and
// slice comparison behave uniformly.
func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// boolToInt converts a bool to the 0/1 integer SQLite stores.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// embedStateOrNone normalises a zero-value EmbedState to EmbedNone, matching
// the schema's embed_state DEFAULT 'none'.
func embedStateOrNone(s EmbedState) EmbedState {
	if s == "" {
		return EmbedNone
	}
	return s
}
