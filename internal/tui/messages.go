package tui

import (
	"github.com/hugo-lorenzo-mato/bsqa/internal/clip"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
)

// LoadedMsg carries the result of (re)loading the form.
type LoadedMsg struct {
	View session.View
	Err  error
}

// SavedMsg carries the result of a save.
type SavedMsg struct {
	Result *session.SaveResult
	Err    error
}

// ExportedMsg carries the result of an export.
type ExportedMsg struct {
	Path   string
	Copied *clip.Result
	Err    error
}

// ExternalChangeMsg signals that the stored settings changed outside this
// editor.
type ExternalChangeMsg struct {
	Marker  string
	Cleared bool
}
