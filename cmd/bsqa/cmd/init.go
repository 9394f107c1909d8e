package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/bsqa/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default bsqa configuration to .bsqa.yaml in the current
directory, or to ~/.config/bsqa/config.yaml with --global.`,
	RunE: runInit,
}

var (
	initForce  bool
	initGlobal bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
	initCmd.Flags().BoolVar(&initGlobal, "global", false, "Write the per-user configuration instead")
}

func runInit(cmd *cobra.Command, _ []string) error {
	var path string
	if initGlobal {
		p, err := config.UserConfigFile()
		if err != nil {
			return err
		}
		path = p
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		path = filepath.Join(cwd, config.ProjectConfigFile)
	}

	created, err := config.EnsureConfigFile(path, initForce)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("configuration already exists at %s, use --force to overwrite", path)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration file:", path)
	fmt.Fprintln(out, "Run 'bsqa doctor' to verify setup")
	return nil
}
