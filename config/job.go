// Package config loads batch job files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/godispatch/sqlbatch/dispatcher"
)

// Job describes one batch run: what to execute, against which client and
// how many statements may run at once.
type Job struct {
	// Concurrency is the worker bound. Unset means dispatcher.DefaultMaxConcurrency.
	Concurrency *int `yaml:"concurrency,omitempty"`

	// TaskTimeout bounds each statement, e.g. "30s". Empty means no deadline.
	TaskTimeout time.Duration `yaml:"task_timeout,omitempty"`

	// Command is the console client argv; see collaborator.StatementPlaceholder.
	Command []string `yaml:"command,omitempty"`

	// Env is added to the client's environment.
	Env map[string]string `yaml:"env,omitempty"`

	// Driver and DSN select a database/sql driver instead of Command.
	// The sqlbatch binary links the MaxCompute driver as "odps".
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`

	Statements     []string `yaml:"statements,omitempty"`
	StatementsFile string   `yaml:"statements_file,omitempty"`

	// dir is where relative paths are resolved from.
	dir string
}

// Load reads and validates a job file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	job, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	job.dir = filepath.Dir(path)
	return job, nil
}

// Parse decodes and validates a job from YAML.
func Parse(data []byte) (*Job, error) {
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}
	return &job, nil
}

// Validate checks the job without touching the filesystem.
func (j *Job) Validate() error {
	if err := j.DispatcherConfig().Validate(); err != nil {
		return err
	}
	if j.Driver != "" && len(j.Command) > 0 {
		return errors.New("driver and command are mutually exclusive")
	}
	if j.Driver == "" && j.DSN != "" {
		return errors.New("dsn requires a driver")
	}
	if len(j.Statements) == 0 && j.StatementsFile == "" {
		return errors.New("no statements: set statements or statements_file")
	}
	return nil
}

// DispatcherConfig maps the job onto the dispatcher settings.
func (j *Job) DispatcherConfig() dispatcher.Config {
	cfg := dispatcher.DefaultConfig()
	if j.Concurrency != nil {
		cfg.MaxConcurrency = *j.Concurrency
	}
	cfg.TaskTimeout = j.TaskTimeout
	return cfg
}

// Dir is the directory of the job file, or "" for parsed jobs.
func (j *Job) Dir() string {
	return j.dir
}

// SetConcurrency overrides the worker bound.
func (j *Job) SetConcurrency(n int) {
	j.Concurrency = &n
}

// LoadStatements returns the inline statements followed by those read from
// StatementsFile, resolved relative to the job file.
func (j *Job) LoadStatements() ([]string, error) {
	out := append([]string(nil), j.Statements...)
	if j.StatementsFile == "" {
		return out, nil
	}

	path := j.StatementsFile
	if !filepath.IsAbs(path) && j.dir != "" {
		path = filepath.Join(j.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read statements file: %w", err)
	}
	return append(out, SplitStatements(string(data))...), nil
}

// SplitStatements splits a script on ';' terminators.
// Semicolons inside single- or double-quoted literals are kept, a
// backslash inside a literal escapes the next character, and "--"
// comments are dropped. Empty statements are skipped.
func SplitStatements(script string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
	)

	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			cur.WriteRune(r)
			switch {
			case r == '\\' && i+1 < len(runes):
				// keep the escaped rune, whatever it is
				i++
				cur.WriteRune(runes[i])
			case r == quote:
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			cur.WriteRune('\n')
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// Example is written by "sqlbatch init".
const Example = `# sqlbatch job
concurrency: 10
# task_timeout: 5m
command: ["odpscmd", "--config=odps_config.ini", "-e", "{{statement}}"]
# or talk to MaxCompute directly instead of through odpscmd:
# driver: odps
# dsn: http://<access_id>:<access_key>@<endpoint>?project=<project>
# statements_file: statements.sql
statements:
  - INSERT INTO your_table_name PARTITION(pt='20230101') VALUES (1, 'name_1', 1)
`
