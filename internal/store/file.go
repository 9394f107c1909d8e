package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/fsutil"
)

// FileScope keeps every key of a scope in one JSON file, written
// atomically. The previous version is kept as <path>.bak and used when the
// main file fails its checksum.
type FileScope struct {
	mu         sync.Mutex
	path       string
	backupPath string
	ttl        time.Duration
	now        func() time.Time
}

// FileScopeOption configures a FileScope.
type FileScopeOption func(*FileScope)

// WithFileTTL makes every entry expire ttl after it was written.
func WithFileTTL(ttl time.Duration) FileScopeOption {
	return func(s *FileScope) {
		s.ttl = ttl
	}
}

// WithFileClock replaces the wall clock, for expiry tests.
func WithFileClock(now func() time.Time) FileScopeOption {
	return func(s *FileScope) {
		s.now = now
	}
}

// NewFileScope creates a file-backed scope. The file is created on the
// first write.
func NewFileScope(path string, opts ...FileScopeOption) *FileScope {
	s := &FileScope{
		path:       path,
		backupPath: path + ".bak",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fileEnvelope wraps the entries with an integrity checksum.
type fileEnvelope struct {
	Version   int                  `json:"version"`
	Checksum  string               `json:"checksum"`
	UpdatedAt time.Time            `json:"updated_at"`
	Entries   map[string]fileEntry `json:"entries"`
}

type fileEntry struct {
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Backend implements Scope.
func (s *FileScope) Backend() string { return "file" }

// Path implements PathScope.
func (s *FileScope) Path() string { return s.path }

// Get implements Scope.
func (s *FileScope) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	e, ok := entries[key]
	if !ok || (e.ExpiresAt != nil && !s.now().Before(*e.ExpiresAt)) {
		return nil, ErrKeyNotFound
	}
	return []byte(e.Value), nil
}

// Set implements Scope.
func (s *FileScope) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		// A corrupt file with a corrupt backup cannot be recovered; start over.
		entries = map[string]fileEntry{}
	}
	e := fileEntry{Value: string(value)}
	if s.ttl > 0 {
		exp := s.now().Add(s.ttl)
		e.ExpiresAt = &exp
	}
	entries[key] = e
	return s.save(entries)
}

// Delete implements Scope.
func (s *FileScope) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		entries = map[string]fileEntry{}
	}
	if _, ok := entries[key]; !ok && err == nil {
		return nil
	}
	delete(entries, key)
	return s.save(entries)
}

// Close implements Scope.
func (s *FileScope) Close() error { return nil }

// load returns the live entries, pruning expired ones. A missing file is an
// empty scope.
func (s *FileScope) load() (map[string]fileEntry, error) {
	entries, err := s.loadFromPath(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]fileEntry{}, nil
	}
	if err != nil {
		backup, backupErr := s.loadFromPath(s.backupPath)
		if backupErr != nil {
			return nil, core.ErrStorage(core.CodeStorageRead,
				fmt.Sprintf("reading %s: %v (backup also failed: %v)", s.path, err, backupErr)).WithCause(err)
		}
		entries = backup
	}

	now := s.now()
	for k, e := range entries {
		if e.ExpiresAt != nil && !now.Before(*e.ExpiresAt) {
			delete(entries, k)
		}
	}
	return entries, nil
}

func (s *FileScope) loadFromPath(path string) (map[string]fileEntry, error) {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return nil, err
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	if env.Entries == nil {
		env.Entries = map[string]fileEntry{}
	}
	sum, err := checksum(env.Entries)
	if err != nil {
		return nil, err
	}
	if sum != env.Checksum {
		return nil, core.ErrStorage(core.CodeStorageRead, "checksum mismatch in "+path)
	}
	return env.Entries, nil
}

func (s *FileScope) save(entries map[string]fileEntry) error {
	sum, err := checksum(entries)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fileEnvelope{
		Version:   1,
		Checksum:  sum,
		UpdatedAt: s.now().UTC(),
		Entries:   entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	if prev, err := fsutil.ReadFileScoped(s.path); err == nil {
		if err := fsutil.WriteFileAtomic(s.backupPath, prev, 0o600); err != nil {
			return core.ErrStorage(core.CodeStorageWrite, "writing backup").WithCause(err)
		}
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return core.ErrStorage(core.CodeStorageWrite, "writing "+s.path).WithCause(err)
	}
	return nil
}

func checksum(entries map[string]fileEntry) (string, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling entries for checksum: %w", err)
	}
	hash := sha256.Sum256(b)
	return hex.EncodeToString(hash[:]), nil
}
