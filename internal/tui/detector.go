package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// OutputMode is how a command presents its result.
type OutputMode int

const (
	// ModeEditor runs the interactive editor.
	ModeEditor OutputMode = iota

	// ModePlain prints plain text.
	ModePlain

	// ModeJSON prints JSON.
	ModeJSON
)

// String returns the string representation of the output mode.
func (m OutputMode) String() string {
	switch m {
	case ModeEditor:
		return "editor"
	case ModePlain:
		return "plain"
	case ModeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Detector determines the output mode from the environment.
type Detector struct {
	noColor bool
	getenv  func(string) string
	isTTY   func() bool
}

// NewDetector creates a detector for the process's stdout.
func NewDetector() *Detector {
	return &Detector{
		getenv: os.Getenv,
		isTTY:  func() bool { return term.IsTerminal(int(os.Stdout.Fd())) },
	}
}

// NoColor disables color output.
func (d *Detector) NoColor(disable bool) *Detector {
	d.noColor = disable
	return d
}

// Detect determines the output mode.
func (d *Detector) Detect() OutputMode {
	if d.getenv("BSQA_OUTPUT") == "json" {
		return ModeJSON
	}

	// CI runners allocate no usable terminal.
	if d.getenv("CI") != "" || d.getenv("GITHUB_ACTIONS") != "" {
		return ModePlain
	}

	if !d.isTTY() {
		return ModePlain
	}
	return ModeEditor
}

// Interactive reports whether the editor can run.
func (d *Detector) Interactive() bool {
	return d.Detect() == ModeEditor
}

// ShouldUseColor determines if color should be used.
func (d *Detector) ShouldUseColor() bool {
	if d.noColor {
		return false
	}
	if d.getenv("NO_COLOR") != "" {
		return false
	}
	if d.getenv("TERM") == "dumb" {
		return false
	}
	return d.isTTY()
}

// ApplyColorProfile drops lipgloss (and with it the editor and the
// markdown summary) to plain ASCII when color is off.
func (d *Detector) ApplyColorProfile() {
	if !d.ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// TerminalSize returns terminal dimensions.
func TerminalSize() (width, height int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80, 24
	}
	return w, h
}
