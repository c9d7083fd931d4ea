// Package collaborator holds the remote-service clients a dispatch can run
// statements against. Every type in it is safe for concurrent use.
package collaborator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ExecResult is the success value of an SQL execution.
type ExecResult struct {
	RowsAffected int64
}

// SQL executes statements on a database/sql handle.
// *sql.DB is safe for concurrent use, so one SQL may serve every worker.
type SQL struct {
	db *sql.DB
}

// NewSQL wraps db.
func NewSQL(db *sql.DB) (*SQL, error) {
	if db == nil {
		return nil, errors.New("sql collaborator requires a database handle")
	}
	return &SQL{db: db}, nil
}

// OpenSQL opens a handle for a driver registered with database/sql.
// The driver package must be linked into the binary by the caller.
func OpenSQL(driver, dsn string) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return &SQL{db: db}, nil
}

// Execute implements dispatcher.Executor
func (s *SQL) Execute(ctx context.Context, statement string) error {
	_, err := s.ExecuteValue(ctx, statement)
	return err
}

// ExecuteValue implements dispatcher.ValueExecutor. The value is an ExecResult.
func (s *SQL) ExecuteValue(ctx context.Context, statement string) (any, error) {
	res, err := s.db.ExecContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}

	out := ExecResult{RowsAffected: -1}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	return out, nil
}

// Close releases the underlying handle.
func (s *SQL) Close() error {
	return s.db.Close()
}
