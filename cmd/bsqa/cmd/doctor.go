package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/bsqa/internal/config"
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/bsqa/internal/remote"
	"github.com/hugo-lorenzo-mato/bsqa/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and backend",
	Long:  "Verify that the configuration is valid, both stores can be opened, and the backend answers.",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

var doctorTimeout time.Duration

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 5*time.Second, "timeout for the backend check")
}

// doctorCheck is the outcome of one check.
type doctorCheck struct {
	name     string
	err      error
	required bool
	detail   string
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Checking configuration...")
	fmt.Fprintln(out)

	cfg, err := loadConfig()
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, verr := range verrs {
				fmt.Fprintf(out, "  ✗ %s\n", verr.Error())
			}
		} else {
			fmt.Fprintf(out, "  ✗ %v\n", err)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Fix the configuration (or run 'bsqa init --force') and try again.")
		return fmt.Errorf("configuration check failed")
	}
	fmt.Fprintln(out, "  ✓ configuration valid")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Checking storage and backend...")
	fmt.Fprintln(out)

	checks := []doctorCheck{
		checkScope(ctx, store.ScopePersistent, cfg.Storage.Persistent, cfg.Storage.RedisURL),
		checkScope(ctx, store.ScopeSession, cfg.Storage.Session, cfg.Storage.RedisURL),
	}
	checks = append(checks, checkDisks(cfg)...)
	if !offline {
		checks = append(checks, checkBackend(ctx, cfg))
	}

	requiredOk := printChecks(out, checks)
	fmt.Fprintln(out)
	if !requiredOk {
		fmt.Fprintln(out, "Some required checks failed")
		return fmt.Errorf("doctor found problems")
	}
	fmt.Fprintln(out, "All required checks passed")
	return nil
}

func printChecks(out io.Writer, checks []doctorCheck) bool {
	ok := true
	for _, c := range checks {
		icon, suffix := "✓", ""
		if c.detail != "" {
			suffix = " (" + c.detail + ")"
		}
		if c.err != nil {
			if c.required {
				icon = "✗"
				ok = false
			} else {
				icon = "○"
			}
			suffix = ": " + describeError(c.err)
		}
		fmt.Fprintf(out, "  %s %s%s\n", icon, c.name, suffix)
	}
	return ok
}

// checkScope opens a scope and reads the change marker through it.
func checkScope(ctx context.Context, name string, sc config.ScopeConfig, redisURL string) doctorCheck {
	check := doctorCheck{name: name + " store", required: true, detail: sc.Backend}
	scope, err := store.OpenScope(ctx, store.ScopeOptions{
		Name:     name,
		Backend:  sc.Backend,
		Path:     sc.Path,
		TTL:      sc.TTLDuration(),
		RedisURL: redisURL,
	})
	if err != nil {
		check.err = err
		return check
	}
	defer scope.Close()

	if _, err := scope.Get(ctx, store.KeyChangeMarker); err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		check.err = err
		return check
	}
	if sc.Path != "" {
		check.detail = sc.Backend + ", " + sc.Path
	}
	return check
}

// checkDisks measures the filesystems of the file-backed scopes.
func checkDisks(cfg *config.Config) []doctorCheck {
	var checks []doctorCheck
	seen := make(map[string]bool)
	for _, sc := range []config.ScopeConfig{cfg.Storage.Persistent, cfg.Storage.Session} {
		if sc.Path == "" || (sc.Backend != config.BackendFile && sc.Backend != config.BackendSQLite) {
			continue
		}
		usage, err := diagnostics.StorageDisk(sc.Path)
		if err == nil && seen[usage.Path] {
			continue
		}
		check := doctorCheck{name: "disk space", required: true}
		switch {
		case err != nil:
			check.err = err
		case usage.Low(diagnostics.DefaultMinFreeBytes):
			seen[usage.Path] = true
			check.err = fmt.Errorf("only %s left at %s", diagnostics.FormatBytes(usage.FreeBytes), usage.Path)
		default:
			seen[usage.Path] = true
			check.detail = usage.String()
		}
		checks = append(checks, check)
	}
	if m, err := diagnostics.CollectSystem(); err == nil {
		checks = append(checks, doctorCheck{
			name:   "memory",
			detail: fmt.Sprintf("%.0f of %.0f MB used", m.MemUsedMB, m.MemTotalMB),
		})
	}
	return checks
}

// checkBackend asks the backend for its analysis catalog. An unreachable
// backend is not fatal: settings still work from the local copy.
func checkBackend(ctx context.Context, cfg *config.Config) doctorCheck {
	check := doctorCheck{name: "backend", detail: cfg.API.BaseURL}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	client := remote.NewClient(cfg.API.BaseURL, cfg.API.TimeoutDuration(), remote.WithMaxRetries(0))
	if _, err := client.AnalysisTypes(ctx); err != nil {
		if core.IsCategory(err, core.ErrCatNetwork) || core.IsCategory(err, core.ErrCatTimeout) {
			check.err = fmt.Errorf("%s unreachable, working offline", cfg.API.BaseURL)
			return check
		}
		check.err = err
	}
	return check
}
