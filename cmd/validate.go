package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/godispatch/sqlbatch/config"
)

func newValidateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a job file and count its statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			statements, err := job.LoadStatements()
			if err != nil {
				return err
			}
			cfg := job.DispatcherConfig()
			printf(cmd, "%s: %d statements, concurrency %d\n", root.configPath, len(statements), cfg.MaxConcurrency)
			return nil
		},
	}
}

func newInitCommand(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example job file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := root.configPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --%s to overwrite)", path, FlagForce)
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create job directory: %w", err)
				}
			}
			if err := os.WriteFile(path, []byte(config.Example), 0o644); err != nil {
				return fmt.Errorf("failed to write job file: %w", err)
			}
			printf(cmd, "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, FlagForce, false, "Overwrite an existing job file")
	return cmd
}
