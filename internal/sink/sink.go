// Package sink persists converted rows in batches.
//
// The Sink is the terminal stage of a row chain. For every file it opens one
// Statement in BeforeFile, binds and queues each row, flushes every
// BatchSize rows and finishes the file in AfterFile according to the commit
// mode. Any failure releases the statement without committing.
//
// In CommitAuto mode batches that were already flushed stay committed when a
// later row of the same file fails. Callers that need all-or-nothing files
// use CommitDeferred or CommitExternal.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/fileimport/internal/codec"
	"github.com/JonMunkholm/fileimport/internal/core"
)

// DefaultBatchSize is used when Config.BatchSize is zero.
const DefaultBatchSize = 100

// ErrEmptyRow is returned for a row without any column.
var ErrEmptyRow = errors.New("row has no columns")

// Config configures a Sink.
type Config struct {
	// Columns are the statement parameters, in order. Column i is bound from
	// raw column i of the row.
	Columns []codec.Column

	Provider StatementProvider

	// BatchSize is the number of rows per flush. Zero selects
	// DefaultBatchSize; negative values are rejected.
	BatchSize int

	Mode CommitMode

	// RequireAllColumns rejects rows with fewer columns than Columns. By
	// default missing trailing columns are bound as NULL.
	RequireAllColumns bool

	Logger *slog.Logger
}

// Validate reports the first configuration problem as a *core.ConfigError.
func (c Config) Validate() error {
	if len(c.Columns) == 0 {
		return &core.ConfigError{Component: "sink", Field: "columns", Reason: "must not be empty"}
	}
	if c.Provider == nil {
		return &core.ConfigError{Component: "sink", Field: "provider", Reason: "is required"}
	}
	if c.BatchSize < 0 {
		return &core.ConfigError{Component: "sink", Field: "batch size", Reason: fmt.Sprintf("must be positive, got %d", c.BatchSize)}
	}
	if c.Mode < CommitAuto || c.Mode > CommitExternal {
		return &core.ConfigError{Component: "sink", Field: "commit mode", Reason: fmt.Sprintf("unknown mode %d", c.Mode)}
	}
	return codec.Validate(c.Columns...)
}

// fileState is the open statement of one file.
type fileState struct {
	stmt    Statement
	rows    int
	batches int
}

// Sink is a core.Processor[[]string] writing rows through a Statement.
type Sink struct {
	cfg   Config
	log   *slog.Logger
	state *core.StateKey[fileState]
}

// New validates cfg and returns a Sink.
func New(cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Sink{
		cfg:   cfg,
		log:   log.With("component", "sink", "commit_mode", cfg.Mode.String()),
		state: core.NewStateKey[fileState]("sink statement"),
	}, nil
}

// BatchSize returns the effective batch size.
func (s *Sink) BatchSize() int { return s.cfg.BatchSize }

// BeforeFile opens the statement for fc.
func (s *Sink) BeforeFile(ctx context.Context, fc *core.FileContext) error {
	if _, ok := s.state.Get(fc); ok {
		return fmt.Errorf("sink: %s is already open", fc.Path)
	}

	stmt, err := s.cfg.Provider.Open(ctx, fc)
	if err != nil {
		s.log.Error("failed to open statement", "file", fc.Path, "error", err)
		return &ResourceError{Op: "open", Path: fc.Path, Err: err}
	}
	s.state.Set(fc, &fileState{stmt: stmt})
	s.log.Debug("statement opened", "file", fc.Path, "run_id", fc.RunID)
	return nil
}

// ProcessRow binds and queues one row, flushing when the batch is full.
func (s *Sink) ProcessRow(ctx context.Context, rc core.RowContext[[]string]) (core.RowContext[[]string], error) {
	fc := rc.File
	st, ok := s.state.Get(fc)
	if !ok {
		return rc, fmt.Errorf("sink: no open statement for %s", fc.Path)
	}

	if err := s.bind(st.stmt, rc); err != nil {
		return rc, s.fail(ctx, fc, err)
	}
	st.rows++

	if st.rows%s.cfg.BatchSize == 0 {
		if err := s.flush(ctx, fc, st); err != nil {
			return rc, s.fail(ctx, fc, err)
		}
	}
	return rc, nil
}

// AfterFile flushes the partial batch, commits in deferred mode and closes
// the statement.
func (s *Sink) AfterFile(ctx context.Context, fc *core.FileContext) error {
	st, ok := s.state.Get(fc)
	if !ok {
		return nil
	}

	if st.rows%s.cfg.BatchSize != 0 {
		if err := s.flush(ctx, fc, st); err != nil {
			return s.fail(ctx, fc, err)
		}
	}

	if s.cfg.Mode == CommitDeferred {
		if err := st.stmt.Commit(ctx); err != nil {
			s.log.Error("failed to commit file", "file", fc.Path, "error", err)
			return s.fail(ctx, fc, &ResourceError{Op: "commit", Path: fc.Path, Err: err})
		}
	}

	s.state.Take(fc)
	if err := st.stmt.Close(ctx); err != nil {
		s.log.Error("failed to close statement", "file", fc.Path, "error", err)
		if s.cfg.Mode != CommitAuto {
			return &ResourceError{Op: "close", Path: fc.Path, Err: err}
		}
	}

	s.log.Debug("statement closed", "file", fc.Path, "rows", st.rows, "batches", st.batches)
	return nil
}

// AbortFile releases the statement of fc without committing. It is a no-op
// when the statement was already released.
func (s *Sink) AbortFile(ctx context.Context, fc *core.FileContext, cause error) {
	if err := s.release(ctx, fc); err != nil {
		s.log.Error("failed to release statement", "file", fc.Path, "cause", cause, "error", err)
	}
}

func (s *Sink) bind(stmt Statement, rc core.RowContext[[]string]) error {
	row, cols := rc.Row, s.cfg.Columns
	if len(row) == 0 {
		return &core.RowError{Path: rc.File.Path, Row: rc.Number, Err: ErrEmptyRow}
	}
	if len(row) < len(cols) {
		if s.cfg.RequireAllColumns {
			return &core.RowError{
				Path: rc.File.Path,
				Row:  rc.Number,
				Err:  fmt.Errorf("row has %d columns, %d required", len(row), len(cols)),
			}
		}
		s.log.Info("short row, binding missing columns as NULL",
			"file", rc.File.Path, "row", rc.Number, "columns", len(row), "expected", len(cols))
	}

	for i, col := range cols {
		raw, present := "", i < len(row)
		if present {
			raw = row[i]
		}
		if err := codec.Bind(stmt, i, col, raw, present); err != nil {
			return &core.RowError{Path: rc.File.Path, Row: rc.Number, Column: i + 1, Err: err}
		}
	}

	if err := stmt.AddBatch(); err != nil {
		return &core.RowError{Path: rc.File.Path, Row: rc.Number, Err: err}
	}
	return nil
}

func (s *Sink) flush(ctx context.Context, fc *core.FileContext, st *fileState) error {
	if err := st.stmt.ExecBatch(ctx); err != nil {
		return &ResourceError{Op: "flush", Path: fc.Path, Err: err}
	}
	st.batches++
	s.log.Debug("batch flushed", "file", fc.Path, "rows", st.rows, "batch", st.batches)

	if s.cfg.Mode == CommitAuto {
		if err := st.stmt.Commit(ctx); err != nil {
			return &ResourceError{Op: "commit", Path: fc.Path, Err: err}
		}
	}
	return nil
}

// fail releases the statement after cause and returns the error to report.
// Release failures are added to cause except in auto mode, where they are
// only logged.
func (s *Sink) fail(ctx context.Context, fc *core.FileContext, cause error) error {
	err := s.release(ctx, fc)
	if err == nil {
		return cause
	}
	s.log.Error("failed to release statement", "file", fc.Path, "cause", cause, "error", err)
	if s.cfg.Mode == CommitAuto {
		return cause
	}
	return errors.Join(cause, err)
}

// release rolls back (unless the transaction is external) and closes the
// statement of fc.
func (s *Sink) release(ctx context.Context, fc *core.FileContext) error {
	st, ok := s.state.Take(fc)
	if !ok {
		return nil
	}

	var errs []error
	if s.cfg.Mode != CommitExternal {
		if err := st.stmt.Rollback(ctx); err != nil {
			errs = append(errs, &ResourceError{Op: "rollback", Path: fc.Path, Err: err})
		}
	}
	if err := st.stmt.Close(ctx); err != nil {
		errs = append(errs, &ResourceError{Op: "close", Path: fc.Path, Err: err})
	}
	s.log.Debug("statement released", "file", fc.Path, "rows", st.rows)
	return errors.Join(errs...)
}
