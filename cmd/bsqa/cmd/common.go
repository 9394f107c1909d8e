package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/hugo-lorenzo-mato/bsqa/internal/clip"
	"github.com/hugo-lorenzo-mato/bsqa/internal/config"
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/logging"
	"github.com/hugo-lorenzo-mato/bsqa/internal/merge"
	"github.com/hugo-lorenzo-mato/bsqa/internal/remote"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
	"github.com/hugo-lorenzo-mato/bsqa/internal/store"
	"github.com/hugo-lorenzo-mato/bsqa/internal/tui"
)

// App holds the dependencies shared by the commands.
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	Bus     *events.EventBus
	Store   *store.CredentialStore
	Backend *remote.Client // nil when offline
}

// loadConfig loads and validates the configuration using the global viper
// instance, so flag bindings apply.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// outputDetector reads the terminal and the --no-color flag.
func outputDetector() *tui.Detector {
	return tui.NewDetector().NoColor(noColor)
}

// openApp loads the configuration and opens both storage scopes.
func openApp(ctx context.Context) (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	detector := outputDetector()
	detector.ApplyColorProfile()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.NoColor = !detector.ShouldUseColor()
	logger := logging.New(logCfg)

	persistent, err := store.OpenScope(ctx, store.ScopeOptions{
		Name:     store.ScopePersistent,
		Backend:  cfg.Storage.Persistent.Backend,
		Path:     cfg.Storage.Persistent.Path,
		TTL:      cfg.Storage.Persistent.TTLDuration(),
		RedisURL: cfg.Storage.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening settings store: %w", err)
	}
	sessionScope, err := store.OpenScope(ctx, store.ScopeOptions{
		Name:     store.ScopeSession,
		Backend:  cfg.Storage.Session.Backend,
		Path:     cfg.Storage.Session.Path,
		TTL:      cfg.Storage.Session.TTLDuration(),
		RedisURL: cfg.Storage.RedisURL,
	})
	if err != nil {
		_ = persistent.Close()
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	bus := events.New(100)
	app := &App{
		Config: cfg,
		Logger: logger,
		Bus:    bus,
		Store:  store.New(persistent, sessionScope, store.WithEventBus(bus), store.WithLogger(logger)),
	}
	if !offline {
		app.Backend = remote.NewClient(cfg.API.BaseURL, cfg.API.TimeoutDuration(), remote.WithLogger(logger))
	}
	return app, nil
}

// Close releases the stores and the event bus.
func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("closing store", "error", err)
	}
	a.Bus.Close()
}

// NewSession creates a form session over the app's store and backend.
func (a *App) NewSession(opts ...session.Option) *session.ConfigFormSession {
	var source merge.Source
	if a.Backend != nil {
		source = a.Backend
	}
	base := []session.Option{
		session.WithEventBus(a.Bus),
		session.WithLogger(a.Logger),
		session.WithCatalog(a.Config.Catalog.Catalog()),
		session.WithClipboard(clip.New()),
	}
	if a.Backend != nil {
		base = append(base, session.WithBackend(a.Backend))
	}
	loader := merge.NewLoader(a.Store, source, a.Logger)
	return session.New(a.Store, loader, append(base, opts...)...)
}

// LoadSession opens a form session and loads it.
func (a *App) LoadSession(ctx context.Context, opts ...session.Option) (*session.ConfigFormSession, error) {
	s := a.NewSession(opts...)
	if _, err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// terminalConfirmation asks yes/no questions on the terminal. Without a
// terminal it cannot ask and reports core.ErrConfirmationRequired, unless
// assumeYes is set.
type terminalConfirmation struct {
	in        io.Reader
	out       io.Writer
	assumeYes bool
	isTTY     func() bool
}

func newTerminalConfirmation(assumeYes bool) *terminalConfirmation {
	return &terminalConfirmation{
		in:        os.Stdin,
		out:       os.Stderr,
		assumeYes: assumeYes,
		isTTY:     func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

// Confirm implements core.ConfirmationPort.
func (c *terminalConfirmation) Confirm(_ context.Context, message string) (bool, error) {
	if c.assumeYes {
		return true, nil
	}
	if !c.isTTY() {
		return false, core.ErrConfirmationRequired
	}
	fmt.Fprintf(c.out, "%s [y/N] ", message)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// readSecret reads a secret from the terminal without echo, or a line from
// stdin when it is not a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(prompt, ": "), err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeError returns the user-facing message of err.
func describeError(err error) string {
	var de *core.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
