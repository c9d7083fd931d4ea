package collaborator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// StatementPlaceholder is replaced by the statement in Command arguments.
// When no argument contains it, the statement is appended as the last argument.
const StatementPlaceholder = "{{statement}}"

// DefaultCommand runs a statement through the MaxCompute console client.
var DefaultCommand = []string{"odpscmd", "-e", StatementPlaceholder}

// waitDelay bounds how long a cancelled client may keep its output pipes open.
const waitDelay = 2 * time.Second

// CommandResult is the success value of a Command execution.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command runs an external console client once per statement.
// Every call starts its own process, so a Command is safe for concurrent use.
type Command struct {
	program string
	args    []string
	dir     string
	env     map[string]string
}

// CommandOption configures a Command.
type CommandOption func(*Command)

// WithWorkingDir sets the directory the client runs in.
func WithWorkingDir(dir string) CommandOption {
	return func(c *Command) {
		c.dir = dir
	}
}

// WithEnv adds environment variables on top of the current environment.
func WithEnv(env map[string]string) CommandOption {
	return func(c *Command) {
		for k, v := range env {
			c.env[k] = v
		}
	}
}

// NewCommand creates a Command from an argv such as DefaultCommand.
func NewCommand(argv []string, opts ...CommandOption) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("command must name a program")
	}

	c := &Command{
		program: argv[0],
		args:    append([]string(nil), argv[1:]...),
		env:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute implements dispatcher.Executor
func (c *Command) Execute(ctx context.Context, statement string) error {
	_, err := c.ExecuteValue(ctx, statement)
	return err
}

// ExecuteValue implements dispatcher.ValueExecutor. The value is a *CommandResult.
func (c *Command) ExecuteValue(ctx context.Context, statement string) (any, error) {
	cmd := exec.CommandContext(ctx, c.program, c.argv(statement)...)
	cmd.WaitDelay = waitDelay
	if c.dir != "" {
		cmd.Dir = c.dir
	}
	if len(c.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s: %w", c.program, ctxErr)
	}
	if msg := strings.TrimSpace(result.Stderr); msg != "" {
		return nil, fmt.Errorf("%s exited with code %d: %s", c.program, result.ExitCode, msg)
	}
	return nil, fmt.Errorf("%s failed: %w", c.program, err)
}

func (c *Command) argv(statement string) []string {
	args := make([]string, len(c.args))
	replaced := false
	for i, arg := range c.args {
		if strings.Contains(arg, StatementPlaceholder) {
			arg = strings.ReplaceAll(arg, StatementPlaceholder, statement)
			replaced = true
		}
		args[i] = arg
	}
	if !replaced {
		args = append(args, statement)
	}
	return args
}
