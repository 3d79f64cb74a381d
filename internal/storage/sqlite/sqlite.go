// Package sqlite persists the lock registry in a single SQLite file shared
// by every process on the machine. First-time schema creation is serialized
// across processes with an exclusive-create sidecar lock file; steady-state
// access relies on SQLite's own file locking.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mistakeknot/peerlock/internal/lockfile"
)

//go:embed schema.sql
var schema string

// staleLockTimeout bounds how long a crashed initializer's lock file can
// block other processes before they reclaim it.
const staleLockTimeout = time.Minute

// Contended bootstrap attempts back off for a random 100-200ms so racing
// processes don't retry in lockstep.
const (
	retryMin = 100 * time.Millisecond
	retryMax = 200 * time.Millisecond
)

type Store struct {
	db dbHandle
}

type options struct {
	bootstrapTimeout time.Duration
}

type Option func(*options)

// WithBootstrapTimeout caps the total wall-clock time Open may spend
// waiting on another process's bootstrap lock. Zero (the default) means
// wait indefinitely; the stale-lock reclamation still bounds the wait to
// roughly one staleness window in practice.
func WithBootstrapTimeout(d time.Duration) Option {
	return func(o *options) { o.bootstrapTimeout = d }
}

// Open returns a ready Store for the database at path, creating the file
// and schema if needed. Safe to call concurrently from multiple OS
// processes on the same path: exactly one of them creates the schema, the
// rest wait and open the finished file.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := openWithLock(path, o.bootstrapTimeout)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return &Store{db: &queryLogger{inner: db}}, nil
}

// NewInMemory returns a Store backed by an in-memory database. Single
// process only; no bootstrap lock is involved.
func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Each connection to ":memory:" is a separate database; pin the pool
	// to one connection so every statement sees the same data.
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: &queryLogger{inner: db}}, nil
}

// openWithLock runs the cross-process bootstrap protocol: reclaim a stale
// lock file if one is lying around, try to create the lock exclusively,
// and either proceed (we won) or back off with jitter and try again (a
// peer is mid-bootstrap). The filesystem's atomic exclusive create is the
// sole arbiter; there is no check-then-create race to lose.
func openWithLock(path string, maxWait time.Duration) (*sql.DB, error) {
	lockPath := path + ".lock"
	var deadline time.Time
	if maxWait > 0 {
		deadline = time.Now().Add(maxWait)
	}

	for {
		lockfile.CleanupStale(lockPath, staleLockTimeout)

		release, err := lockfile.TryLock(lockPath)
		if err != nil {
			if os.IsExist(err) {
				if !deadline.IsZero() && time.Now().After(deadline) {
					return nil, fmt.Errorf("bootstrap lock %s still held after %s", lockPath, maxWait)
				}
				lockfile.SleepJitter(retryMin, retryMax)
				continue
			}
			return nil, fmt.Errorf("create bootstrap lock: %w", err)
		}

		db, err := openDB(path)
		release()
		return db, err
	}
}

// openDB opens the database file and, when the file did not previously
// exist, creates the schema. Caller must hold the bootstrap lock.
func openDB(path string) (*sql.DB, error) {
	fresh := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fresh = true
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite is single-writer; one connection per process avoids
	// SQLITE_BUSY between our own goroutines and keeps pragmas on the
	// connection that does the work.
	db.SetMaxOpenConns(1)

	if fresh {
		if err := applySchema(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the database handle. No operations are valid afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}
