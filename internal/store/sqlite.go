package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_kv_entries.sql
var migrationV1 string

// SQLiteScope stores a scope as rows of a key/value table. Several scopes
// can share one database file; rows are partitioned by scope name.
type SQLiteScope struct {
	dbPath string
	scope  string
	ttl    time.Duration
	db     *sql.DB
	now    func() time.Time
}

// SQLiteScopeOption configures a SQLiteScope.
type SQLiteScopeOption func(*SQLiteScope)

// WithSQLiteTTL makes entries expire ttl after they were written.
func WithSQLiteTTL(ttl time.Duration) SQLiteScopeOption {
	return func(s *SQLiteScope) {
		s.ttl = ttl
	}
}

// WithSQLiteClock replaces the wall clock.
func WithSQLiteClock(now func() time.Time) SQLiteScopeOption {
	return func(s *SQLiteScope) {
		s.now = now
	}
}

// NewSQLiteScope opens (creating if needed) the database at dbPath and runs
// pending migrations.
func NewSQLiteScope(dbPath, scope string, opts ...SQLiteScopeOption) (*SQLiteScope, error) {
	s := &SQLiteScope{
		dbPath: dbPath,
		scope:  scope,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteScope) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet.
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// Backend implements Scope.
func (s *SQLiteScope) Backend() string { return "sqlite" }

// Path returns the database file.
func (s *SQLiteScope) Path() string { return s.dbPath }

// Get implements Scope.
func (s *SQLiteScope) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv_entries WHERE scope = ? AND key = ?",
		s.scope, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, core.ErrStorage(core.CodeStorageRead, "reading "+key).WithCause(err)
	}
	if expiresAt.Valid && s.now().UnixMilli() >= expiresAt.Int64 {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

// Set implements Scope.
func (s *SQLiteScope) Set(ctx context.Context, key string, value []byte) error {
	now := s.now()
	var expiresAt sql.NullInt64
	if s.ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(s.ttl).UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (scope, key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		s.scope, key, value, expiresAt, now.UnixMilli())
	if err != nil {
		return core.ErrStorage(core.CodeStorageWrite, "writing "+key).WithCause(err)
	}
	return nil
}

// Delete implements Scope.
func (s *SQLiteScope) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM kv_entries WHERE scope = ? AND key = ?", s.scope, key); err != nil {
		return core.ErrStorage(core.CodeStorageWrite, "deleting "+key).WithCause(err)
	}
	return nil
}

// Close implements Scope.
func (s *SQLiteScope) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
