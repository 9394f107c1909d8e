package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hugo-lorenzo-mato/bsqa/internal/store"
)

// NewMemoryStore returns a store whose scopes live in memory. It is closed
// with the test.
func NewMemoryStore(t *testing.T, opts ...store.Option) *store.CredentialStore {
	t.Helper()
	st := store.New(store.NewMemoryScope(0), store.NewMemoryScope(0), opts...)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// TempFile writes content to name inside dir and returns its path.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
