// Package cmd implements the sqlbatch command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// CLI constants
const (
	FlagConfig      = "config"
	FlagConcurrency = "concurrency"
	FlagOrder       = "order"
	FlagDryRun      = "dry-run"
	FlagFailPattern = "fail-pattern"
	FlagVerbose     = "verbose"
	FlagForce       = "force"

	OrderSubmission = "submission"
	OrderCompletion = "completion"

	DefaultJobFile = "sqlbatch.yaml"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCommand builds the sqlbatch command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sqlbatch",
		Short: "Run a batch of independent statements with bounded concurrency",
		Long: `sqlbatch submits every statement of a job to a data-warehouse client,
running at most --concurrency of them at once, and reports one line per
statement once all of them finished.

EXAMPLES:
  sqlbatch init                          # write an example sqlbatch.yaml
  sqlbatch validate --config job.yaml    # check a job file
  sqlbatch run --config job.yaml         # run it
  sqlbatch run --dry-run                 # run against an in-memory client`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, FlagConfig, "c", DefaultJobFile, "Job file path")
	root.PersistentFlags().BoolVarP(&opts.verbose, FlagVerbose, "v", false, "Log every task")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newValidateCommand(opts))
	root.AddCommand(newInitCommand(opts))
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
