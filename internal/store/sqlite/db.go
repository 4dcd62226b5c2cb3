// Package sqlite is the on-device store: one SQLite file per installation,
// partitioned by user_id, holding memories, trips and the sync queue.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/4tyam/everyday/internal/migrate"
)

// DB wraps the sql.DB opened with the store configuration.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database file and brings its schema up to date.
// The database is opened with WAL journaling, a busy timeout and a single connection,
// since SQLite serializes writers anyway.
func Open(ctx context.Context, path string, log *zap.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	if err := migrate.Local(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

// Store is the lazily-opened, process-wide handle to the local database.
// Concurrent callers that arrive before the first open completes share that
// single in-flight open; a failed open is returned to all of them and the
// next call tries again.
type Store struct {
	path  string
	log   *zap.Logger
	group singleflight.Group
	db    atomic.Pointer[DB]
}

// New returns a Store for the database file at path. Nothing is opened yet.
func New(path string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{path: path, log: log}
}

// DB returns the initialized database, opening it on first use.
func (s *Store) DB(ctx context.Context) (*DB, error) {
	if db := s.db.Load(); db != nil {
		return db, nil
	}
	v, err, _ := s.group.Do("open", func() (any, error) {
		if db := s.db.Load(); db != nil {
			return db, nil
		}
		// the open outlives any single caller's cancellation
		db, err := Open(context.WithoutCancel(ctx), s.path, s.log)
		if err != nil {
			s.log.Error("local store init failed", zap.String("path", s.path), zap.Error(err))
			return nil, err
		}
		s.db.Store(db)
		s.log.Info("local store ready", zap.String("path", s.path))
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DB), nil
}

// Init opens the database eagerly, e.g. during startup.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.DB(ctx)
	return err
}

// Close closes the database if it was opened.
func (s *Store) Close() error {
	db := s.db.Swap(nil)
	if db == nil {
		return nil
	}
	return db.Close()
}

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, db *DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if e := tx.Commit(); e != nil {
			err = e
		}
	}()
	return fn(tx)
}

// isUniqueViolation reports whether the error is a primary key or unique constraint violation.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
