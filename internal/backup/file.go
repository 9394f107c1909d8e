package backup

import (
	"path/filepath"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/fsutil"
)

const maxImportSize = fsutil.MaxImportSize

// WriteFile writes a to dir (or to path when path names a file) and
// returns the written path.
func WriteFile(path string, a Artifact) (string, error) {
	if path == "" {
		path = a.Filename
	} else if fsutil.IsDir(path) {
		path = filepath.Join(path, a.Filename)
	}
	if err := fsutil.WriteFileAtomic(path, a.Data, 0o600); err != nil {
		return "", core.ErrStorage(core.CodeStorageWrite, "writing "+path).WithCause(err)
	}
	return path, nil
}

// ReadFile reads an import file, refusing anything larger than an export
// could be.
func ReadFile(path string) ([]byte, error) {
	data, err := fsutil.ReadFileScopedLimit(path, fsutil.MaxImportSize)
	if err != nil {
		return nil, core.ErrStorage(core.CodeStorageRead, "reading "+path).WithCause(err)
	}
	return data, nil
}
