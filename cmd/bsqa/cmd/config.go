package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/bsqa/internal/backup"
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/fsutil"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
	"github.com/hugo-lorenzo-mato/bsqa/internal/tui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change settings",
	Long: `Show and change the settings without opening the editor.

Every command that changes a setting saves right away: the settings are
validated, written locally and pushed to the backend.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	Long: `Print the current settings, merged from the backend and the local copy.

Formats:
  json      machine-readable document (default)
  yaml      the same document as YAML
  markdown  a summary rendered for the terminal`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get FIELD",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set FIELD VALUE [FIELD VALUE...]",
	Short: "Change settings and save",
	Example: `  bsqa config set userName "Ada Lovelace"
  bsqa config set openaiEnabled true openaiApiKey sk-... maxTokens 2000`,
	Args: func(_ *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return fmt.Errorf("expected FIELD VALUE pairs, got %d argument(s)", len(args))
		}
		return nil
	},
	RunE: runConfigSet,
}

var configEnableCmd = &cobra.Command{
	Use:       "enable INTEGRATION",
	Short:     "Enable jira, openai or stackspot and save",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"jira", "openai", "stackspot"},
	RunE:      runConfigToggle(true),
}

var configDisableCmd = &cobra.Command{
	Use:       "disable INTEGRATION",
	Short:     "Disable jira, openai or stackspot and save",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"jira", "openai", "stackspot"},
	RunE:      runConfigToggle(false),
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Validate the current settings and push them to the backend",
	Args:  cobra.NoArgs,
	RunE:  runConfigSave,
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the settings to a file",
	Long: `Export the settings as a JSON backup (default) or the AI credentials as
a dotenv file. With preferences.autoCopy on, the JSON export is also copied
to the clipboard.`,
	Args: cobra.NoArgs,
	RunE: runConfigExport,
}

var configImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import settings from a backup file",
	Long: `Import a JSON backup written by 'bsqa config export', replacing the current
settings. With --format env, AI credentials are read from a dotenv file
and saved. Use - to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigImport,
}

var configClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored settings and the Jira session",
	Args:  cobra.NoArgs,
	RunE:  runConfigClear,
}

var (
	showFormat        string
	showReveal        bool
	exportOutput      string
	exportFormat      string
	exportTimestamped bool
	importFormat      string
	clearYes          bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configEnableCmd,
		configDisableCmd, configSaveCmd, configExportCmd, configImportCmd, configClearCmd)

	configGetCmd.ValidArgsFunction = completeFieldIDs

	configShowCmd.Flags().StringVarP(&showFormat, "format", "f", "json", "output format (json, yaml, markdown)")
	configShowCmd.Flags().BoolVar(&showReveal, "reveal", false, "print secrets in clear")
	configGetCmd.Flags().BoolVar(&showReveal, "reveal", false, "print secrets in clear")

	configExportCmd.Flags().StringVarP(&exportOutput, "output", "o", ".", "file or directory to write, - for stdout")
	configExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format (json, env)")
	configExportCmd.Flags().BoolVar(&exportTimestamped, "timestamped", false, "put the export time in the file name")

	configImportCmd.Flags().StringVarP(&importFormat, "format", "f", "json", "import format (json, env)")

	configClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
}

// withSession opens the app, loads a form session and runs fn with it.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, app *App, s *session.ConfigFormSession) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	s, err := app.LoadSession(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, app, s)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(_ context.Context, _ *App, s *session.ConfigFormSession) error {
		view := s.View()
		out := cmd.OutOrStdout()

		for _, issue := range view.Issues {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", issue.Message)
		}

		doc := view.Document
		if !showReveal {
			doc = maskSecrets(doc)
		}

		switch showFormat {
		case "json":
			return writeJSON(out, doc)
		case "yaml":
			return writeYAML(out, doc)
		case "markdown", "md":
			width, _ := tui.TerminalSize()
			rendered, err := tui.RenderMarkdown(tui.SummaryMarkdown(view, showReveal), view.Document.Preferences.Theme, width)
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, rendered)
			return err
		default:
			return fmt.Errorf("unknown format %q (want json, yaml or markdown)", showFormat)
		}
	})
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	spec, err := lookupField(args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(_ context.Context, _ *App, s *session.ConfigFormSession) error {
		v, err := core.DefaultRegistry().Get(s.View().Document, spec.ID)
		if err != nil {
			return err
		}
		value := fmt.Sprint(v)
		if spec.Secret() && !showReveal {
			value = core.MaskSecret(value)
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return nil
	})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	specs := make([]core.FieldSpec, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		spec, err := lookupField(args[i])
		if err != nil {
			return err
		}
		specs = append(specs, spec)
	}
	return withSession(cmd, func(ctx context.Context, _ *App, s *session.ConfigFormSession) error {
		for i, spec := range specs {
			if _, err := s.Change(ctx, spec.ID, args[2*i+1]); err != nil {
				return fmt.Errorf("%s: %s", spec.ID, describeError(err))
			}
		}
		return save(ctx, cmd, s)
	})
}

func runConfigToggle(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		in, err := core.ParseIntegration(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, _ *App, s *session.ConfigFormSession) error {
			if _, err := s.Toggle(ctx, in, enabled); err != nil {
				return err
			}
			return save(ctx, cmd, s)
		})
	}
}

func runConfigSave(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, _ *App, s *session.ConfigFormSession) error {
		return save(ctx, cmd, s)
	})
}

// save saves the session and reports the outcome.
func save(ctx context.Context, cmd *cobra.Command, s *session.ConfigFormSession) error {
	res, err := s.Save(ctx, session.SaveOptions{})
	if err != nil {
		if issues := s.View().Issues; core.IsCategory(err, core.ErrCatValidation) && len(issues) > 0 {
			for _, issue := range issues {
				fmt.Fprintln(cmd.ErrOrStderr(), "✗", issue.Message)
			}
			return errors.New("settings not saved")
		}
		return err
	}
	if res.Warning != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", res.Warning)
	}
	if res.Remote {
		fmt.Fprintln(cmd.OutOrStdout(), "Settings saved")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Settings saved locally")
	}
	return nil
}

func runConfigExport(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, _ *App, s *session.ConfigFormSession) error {
		var (
			artifact backup.Artifact
			copied   string
		)
		switch exportFormat {
		case "json":
			res, err := s.Export(ctx, backup.ExportOptions{Timestamped: exportTimestamped})
			if err != nil {
				return err
			}
			artifact = res.Artifact
			if res.Copied != nil {
				copied = res.Copied.Describe()
			}
		case "env":
			a, err := backup.ExportEnv(s.View().Document, time.Now())
			if err != nil {
				return err
			}
			artifact = a
		default:
			return fmt.Errorf("unknown format %q (want json or env)", exportFormat)
		}

		if exportOutput == "-" {
			_, err := cmd.OutOrStdout().Write(artifact.Data)
			return err
		}
		path, err := backup.WriteFile(exportOutput, artifact)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Exported to", path)
		if copied != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), copied)
		}
		return nil
	})
}

func runConfigImport(cmd *cobra.Command, args []string) error {
	data, err := readImport(cmd, args[0])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, _ *App, s *session.ConfigFormSession) error {
		switch importFormat {
		case "json":
			if _, err := s.Import(ctx, data); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Settings imported")
			return nil
		case "env":
			env, err := backup.ImportEnv(data)
			if err != nil {
				return err
			}
			doc := core.ApplyAPIConfig(s.View().Document, env)
			if err := applyDocument(ctx, s, doc); err != nil {
				return err
			}
			return save(ctx, cmd, s)
		default:
			return fmt.Errorf("unknown format %q (want json or env)", importFormat)
		}
	})
}

func readImport(cmd *cobra.Command, path string) ([]byte, error) {
	if path != "-" {
		return backup.ReadFile(path)
	}
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), fsutil.MaxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return data, nil
}

func runConfigClear(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, _ *App, s *session.ConfigFormSession) error {
		ctx = core.WithConfirmation(ctx, newTerminalConfirmation(clearYes))
		_, err := s.ClearAll(ctx)
		switch {
		case errors.Is(err, core.ErrClearCancelled):
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing cleared")
			return nil
		case errors.Is(err, core.ErrConfirmationRequired):
			return errors.New("refusing to clear without confirmation: pass --yes")
		case err != nil:
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Settings cleared")
		return nil
	})
}

// applyDocument replays the differences between the form and doc as field
// edits, toggles first so that dependent fields are editable.
func applyDocument(ctx context.Context, s *session.ConfigFormSession, doc core.ConfigDocument) error {
	reg := core.DefaultRegistry()
	current := reg.Values(s.View().Document)
	target := reg.Values(doc)

	for _, spec := range reg.Fields() {
		if spec.Master && current[spec.ID] != target[spec.ID] {
			enabled, _ := target[spec.ID].(bool)
			if _, err := s.Toggle(ctx, spec.Block, enabled); err != nil {
				return err
			}
		}
	}
	for _, spec := range reg.Fields() {
		if spec.Master || current[spec.ID] == target[spec.ID] {
			continue
		}
		if _, err := s.Change(ctx, spec.ID, target[spec.ID]); err != nil {
			return err
		}
	}
	return nil
}

// lookupField resolves a field id, suggesting the closest match when it is
// unknown.
func lookupField(id string) (core.FieldSpec, error) {
	reg := core.DefaultRegistry()
	if spec, ok := reg.Lookup(core.FieldID(id)); ok {
		return spec, nil
	}
	ids := make([]string, 0, len(reg.Fields()))
	for _, f := range reg.Fields() {
		ids = append(ids, string(f.ID))
	}
	msg := fmt.Sprintf("unknown field %q", id)
	if matches := fuzzy.Find(id, ids); len(matches) > 0 {
		msg += fmt.Sprintf(" (did you mean %q?)", matches[0].Str)
	}
	return core.FieldSpec{}, core.ErrValidation(core.CodeInvalidField, msg)
}

// maskSecrets returns doc with every password field masked.
func maskSecrets(doc core.ConfigDocument) core.ConfigDocument {
	reg := core.DefaultRegistry()
	for _, spec := range reg.Fields() {
		if !spec.Secret() {
			continue
		}
		v, err := reg.Get(doc, spec.ID)
		if err != nil {
			continue
		}
		s, _ := v.(string)
		_ = reg.Set(&doc, spec.ID, core.MaskSecret(s))
	}
	return doc
}

// writeYAML writes v as YAML with the same keys as its JSON encoding.
func writeYAML(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func completeFieldIDs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, f := range core.DefaultRegistry().Fields() {
		out = append(out, string(f.ID))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
