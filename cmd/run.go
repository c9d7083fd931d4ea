package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/godispatch/sqlbatch/collaborator"
	"github.com/godispatch/sqlbatch/config"
	"github.com/godispatch/sqlbatch/dispatcher"
)

type runOptions struct {
	*rootOptions
	concurrency  int
	order        string
	dryRun       bool
	failPatterns []string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every statement of a job and report the outcomes",
		Long: `Run loads the job file, runs its statements against the configured client
and prints one line per statement. The exit status is non-zero when any
statement failed. Ctrl-C cancels the run: statements that have not started
are reported as cancelled and running ones are allowed to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.concurrency, FlagConcurrency, "n", dispatcher.DefaultMaxConcurrency, "Maximum statements running at once (overrides the job file)")
	cmd.Flags().StringVar(&opts.order, FlagOrder, OrderSubmission, "Report order: submission or completion")
	cmd.Flags().BoolVar(&opts.dryRun, FlagDryRun, false, "Use an in-memory client instead of the configured one")
	cmd.Flags().StringArrayVar(&opts.failPatterns, FlagFailPattern, nil, "With --dry-run, reject statements matching this regexp (repeatable)")
	return cmd
}

func (o *runOptions) run(cmd *cobra.Command) error {
	if o.order != OrderSubmission && o.order != OrderCompletion {
		return fmt.Errorf("invalid --%s %q: want %s or %s", FlagOrder, o.order, OrderSubmission, OrderCompletion)
	}

	job, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed(FlagConcurrency) {
		job.SetConcurrency(o.concurrency)
		if err := job.Validate(); err != nil {
			return err
		}
	}

	statements, err := job.LoadStatements()
	if err != nil {
		return err
	}

	executor, closeExecutor, err := o.executor(job)
	if err != nil {
		return err
	}
	defer closeExecutor()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := o.logger(cmd.ErrOrStderr())
	d := dispatcher.New(executor, job.DispatcherConfig(), dispatcher.WithLogger(logger))

	rs, dispatchErr := d.DispatchStatements(ctx, statements...)
	if rs == nil {
		return dispatchErr
	}

	outcomes := rs.Outcomes()
	if o.order == OrderCompletion {
		outcomes = rs.Completed()
	}
	for _, outcome := range outcomes {
		printf(cmd, "%s\n", outcome)
	}
	printf(cmd, "\n%d statements: %d succeeded, %d failed\n", rs.Len(), len(rs.Succeeded()), len(rs.Failed()))

	if dispatchErr != nil {
		return dispatchErr
	}
	if failed := len(rs.Failed()); failed > 0 {
		return fmt.Errorf("%d of %d statements failed", failed, rs.Len())
	}
	return nil
}

// executor picks the client for the job and returns a cleanup func for it.
func (o *runOptions) executor(job *config.Job) (dispatcher.Executor, func(), error) {
	noop := func() {}

	switch {
	case o.dryRun:
		rec, err := collaborator.NewRecorder(0, o.failPatterns...)
		return rec, noop, err
	case job.Driver != "":
		db, err := collaborator.OpenSQL(job.Driver, job.DSN)
		if err != nil {
			return nil, noop, err
		}
		return db, func() { _ = db.Close() }, nil
	default:
		argv := job.Command
		if len(argv) == 0 {
			argv = collaborator.DefaultCommand
		}
		c, err := collaborator.NewCommand(argv,
			collaborator.WithEnv(job.Env),
			collaborator.WithWorkingDir(job.Dir()),
		)
		return c, noop, err
	}
}
