// Package clip puts exported settings on the clipboard.
package clip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that made the content available.
type Method string

const (
	MethodNative Method = "native" // OS clipboard
	MethodOSC52  Method = "osc52"  // terminal clipboard escape sequence
	MethodFile   Method = "file"   // temp file, nothing reached a clipboard
)

// Result reports how the content was copied.
type Result struct {
	Method   Method
	FilePath string // set when Method == MethodFile
}

// Describe is a one-line message for the user.
func (r Result) Describe() string {
	switch r.Method {
	case MethodNative:
		return "copied to the clipboard"
	case MethodOSC52:
		return "copied to the terminal clipboard"
	default:
		return "clipboard unavailable, saved to " + r.FilePath
	}
}

// Terminals can have strict OSC52 limits.
const osc52LimitBytes = 100_000

// Copier tries the native clipboard, then OSC52 on stderr, then a temp file.
type Copier struct {
	native  func(string) error
	osc52   func(string) error
	tempDir string
}

// Option configures a Copier.
type Option func(*Copier)

// WithNative replaces the native clipboard writer.
func WithNative(fn func(string) error) Option {
	return func(c *Copier) { c.native = fn }
}

// WithOSC52 replaces the terminal clipboard writer.
func WithOSC52(fn func(string) error) Option {
	return func(c *Copier) { c.osc52 = fn }
}

// WithTempDir sets where the fallback file is written.
func WithTempDir(dir string) Option {
	return func(c *Copier) { c.tempDir = dir }
}

// New creates a Copier.
func New(opts ...Option) *Copier {
	c := &Copier{
		native: atotto.WriteAll,
		osc52:  writeOSC52,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Copy makes text available, reporting which method worked.
func (c *Copier) Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}
	if err := c.native(text); err == nil {
		return Result{Method: MethodNative}, nil
	}
	if err := c.osc52(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := c.writeTempFile(text)
	if err != nil {
		return Result{}, err
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

// WriteAll copies text with the default Copier.
func WriteAll(text string) (Result, error) {
	return New().Copy(text)
}

func writeOSC52(text string) error {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return errors.New("stderr is not a terminal")
	}
	if len(text) > osc52LimitBytes {
		return fmt.Errorf("text too large for OSC52 (%d bytes > %d)", len(text), osc52LimitBytes)
	}

	seq := osc52.New(text).Limit(osc52LimitBytes)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	} else if os.Getenv("STY") != "" {
		seq = seq.Screen()
	}
	// stderr keeps the sequence out of the editor's stdout renderer.
	_, err := seq.WriteTo(os.Stderr)
	return err
}

func (c *Copier) writeTempFile(text string) (path string, err error) {
	f, err := os.CreateTemp(c.tempDir, "bsqa-clipboard-*.json")
	if err != nil {
		return "", err
	}
	path = f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if err = f.Chmod(0o600); err != nil {
		_ = f.Close()
		return "", err
	}
	if _, err = f.WriteString(text); err != nil {
		_ = f.Close()
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
