package jobdef

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/fileimport/internal/importer"
	"github.com/JonMunkholm/fileimport/internal/logging"
	"github.com/JonMunkholm/fileimport/internal/sink"
)

var (
	// ErrUnknownJob is returned by Runner.Run for a name that is not registered.
	ErrUnknownJob = errors.New("unknown job")

	// ErrDirOutsideJob is returned by Runner.Run when the directory override
	// is not the job's directory or one below it.
	ErrDirOutsideJob = errors.New("directory outside the job directory")
)

// FinishFunc ends a run-scoped resource once every file was imported.
// failed reports whether any file failed or the run was cancelled.
type FinishFunc func(ctx context.Context, failed bool) error

// ProviderFunc opens the statement provider of one run. finish may be nil.
type ProviderFunc func(ctx context.Context, job *Job) (provider sink.StatementProvider, finish FinishFunc, err error)

// Runner runs registered jobs over their directories, bounded by a limiter.
type Runner struct {
	Registry *Registry
	Provider ProviderFunc
	Limiter  *importer.RunLimiter

	// Options are the process-wide importer options.
	Options importer.Options

	// Timeout bounds one run. Zero means no limit.
	Timeout time.Duration
}

// Jobs returns the registered jobs sorted by name.
func (r *Runner) Jobs() []*Job {
	return r.Registry.All()
}

// Status returns the limiter state.
func (r *Runner) Status() importer.LimiterStatus {
	return r.Limiter.Status()
}

// Run imports the files of job name. dir, when not empty, selects a
// directory below the job's directory, given relative to it or absolute. Files that fail are reported in the result, not as an error;
// the error is reserved for runs that could not start.
func (r *Runner) Run(ctx context.Context, name, dir string) (*importer.Result, error) {
	job, ok := r.Registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	dir, err := job.ResolveDir(dir)
	if err != nil {
		return nil, err
	}

	if err := r.Limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer r.Limiter.Release()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	runID := uuid.New()
	base := logging.WithFields(ctx, "run_id", runID)
	logger := base.With("job", job.Name)

	pattern, err := job.FilePattern()
	if err != nil {
		return nil, err
	}

	provider, finish, err := r.Provider(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("open provider for job %s: %w", job.Name, err)
	}

	opts := r.Options
	opts.Logger = base
	im, err := job.Importer(provider, opts)
	if err != nil {
		if finish != nil {
			_ = finish(context.WithoutCancel(ctx), true)
		}
		return nil, err
	}

	logger.Info("run started", "dir", dir)
	start := time.Now()
	result := im.ImportDir(ctx, dir, pattern)

	if finish != nil {
		// a timed out run still has to release its transaction
		if err := finish(context.WithoutCancel(ctx), !result.Successful); err != nil {
			logger.Error("finishing run failed", "error", err)
			result.Successful = false
			result.Message = fmt.Sprintf("%s; finishing run failed: %v", result.Message, err)
		}
	}

	logger.Log(ctx, levelFor(result), "run completed",
		"dir", dir,
		"files", len(result.Files),
		"failed", len(result.Failed()),
		"message", result.Message,
		"duration", time.Since(start),
	)
	return result, nil
}

// ResolveDir returns the directory a run of the job reads. An empty dir is
// the job's directory; anything else must resolve inside it.
func (j *Job) ResolveDir(dir string) (string, error) {
	if dir == "" {
		return j.Directory, nil
	}
	root := filepath.Clean(j.Directory)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrDirOutsideJob, dir)
	}
	return dir, nil
}

func levelFor(result *importer.Result) slog.Level {
	if result.Successful {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}
