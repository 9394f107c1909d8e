package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/bsqa/internal/store"
	"github.com/hugo-lorenzo-mato/bsqa/internal/tui"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the settings editor",
	Long: `Open the interactive settings editor.

Keys: ↑/↓ move, enter edits, space toggles, ctrl+s saves, e exports,
r reloads, q quits. Quitting with unsaved changes asks first.`,
	Args: cobra.NoArgs,
	RunE: runEdit,
}

var editExportDir string

func init() {
	rootCmd.AddCommand(editCmd)
	editCmd.Flags().StringVar(&editExportDir, "export-dir", ".", "directory the export key writes to")
}

func runEdit(cmd *cobra.Command, _ []string) error {
	if !outputDetector().Interactive() {
		return errors.New("the editor needs a terminal; use 'bsqa config show' and 'bsqa config set' instead")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	s, err := app.LoadSession(ctx)
	if err != nil {
		return err
	}

	// Pick up saves made by other processes while the editor is open.
	watcher := store.NewWatcher(app.Store, app.Bus, app.Logger, app.Config.Storage.PollIntervalDuration())
	go func() { _ = watcher.Run(ctx) }()

	return tui.Run(ctx, s, tui.WithEventBus(app.Bus), tui.WithExportDir(editExportDir))
}
