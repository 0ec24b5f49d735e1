package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/fileimport/internal/codec"
	"github.com/JonMunkholm/fileimport/internal/core"
)

// Statement is one open, parameterized insert statement together with the
// transactional resource behind it. A Statement serves exactly one file.
//
// Parameters are set with SetParam and the row is queued with AddBatch.
// ExecBatch sends every queued row. Commit and Rollback end the current
// transaction, if any; the next ExecBatch starts a new one. Close releases
// the resource; anything not committed by then is rolled back.
type Statement interface {
	codec.ParamSetter
	AddBatch() error
	ExecBatch(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
}

// StatementProvider opens a Statement for a file.
type StatementProvider interface {
	Open(ctx context.Context, fc *core.FileContext) (Statement, error)
}

// CommitMode selects who commits and when.
type CommitMode int

const (
	// CommitAuto commits after every flushed batch.
	CommitAuto CommitMode = iota
	// CommitDeferred commits once, after the last batch of the file.
	CommitDeferred
	// CommitExternal never commits or rolls back; the caller owns the
	// transaction.
	CommitExternal
)

func (m CommitMode) String() string {
	switch m {
	case CommitAuto:
		return "auto"
	case CommitDeferred:
		return "deferred"
	case CommitExternal:
		return "external"
	default:
		return fmt.Sprintf("CommitMode(%d)", int(m))
	}
}

// ParseCommitMode accepts "auto", "deferred" and "external". Empty means auto.
func ParseCommitMode(s string) (CommitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return CommitAuto, nil
	case "deferred":
		return CommitDeferred, nil
	case "external":
		return CommitExternal, nil
	default:
		return CommitAuto, &core.ConfigError{Component: "sink", Field: "commit mode", Reason: fmt.Sprintf("unknown value %q", s)}
	}
}

// ResourceError reports a failure of the transactional resource itself, as
// opposed to a problem with the data.
type ResourceError struct {
	Op   string // open, flush, commit, rollback, close
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// ErrorCode implements core.Coder.
func (e *ResourceError) ErrorCode() string { return "resource." + e.Op + ".failed" }
