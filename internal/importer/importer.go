// Package importer drives a row processor chain over data files.
//
// An Importer owns one chain and feeds it the lines of one file at a time:
// BeforeFile, one ProcessRow per line, then AfterFile. When anything fails
// after BeforeFile succeeded (a row, a read error, cancellation) the chain
// gets AbortFile instead of AfterFile so stages can release what they hold.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/fileimport/internal/core"
	"github.com/JonMunkholm/fileimport/internal/linesource"
)

// DefaultContextCheckInterval is how many rows are processed between two
// checks for context cancellation.
const DefaultContextCheckInterval = 100

// Options configures an Importer.
type Options struct {
	// Source configures how files are read (charset, maximum line size).
	Source linesource.Options

	// SkipBlankLines drops empty lines before they reach the chain. Skipped
	// lines still advance the row number.
	SkipBlankLines bool

	// ContextCheckInterval overrides DefaultContextCheckInterval.
	ContextCheckInterval int

	Logger *slog.Logger
}

// Importer runs files through a chain, one file at a time.
type Importer struct {
	chain  core.Processor[string]
	opts   Options
	logger *slog.Logger

	// serializes whole files on the chain
	mu sync.Mutex
}

// New returns an importer feeding chain.
func New(chain core.Processor[string], opts Options) (*Importer, error) {
	if chain == nil {
		return nil, &core.ConfigError{Component: "importer", Field: "chain", Reason: "is required"}
	}
	if opts.ContextCheckInterval <= 0 {
		opts.ContextCheckInterval = DefaultContextCheckInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{chain: chain, opts: opts, logger: logger}, nil
}

// FileResult is the outcome of importing one file.
type FileResult struct {
	Path       string        `json:"path"`
	RunID      uuid.UUID     `json:"run_id"`
	HeaderRows int           `json:"header_rows"`
	DataRows   int           `json:"data_rows"`
	FooterRows int           `json:"footer_rows"`
	BytesRead  int64         `json:"bytes_read"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// Failed reports whether the file was not imported completely.
func (r FileResult) Failed() bool { return r.Err != nil }

// ImportFile imports the file at path. Counts are the ones accumulated up to
// the failing row when Err is set.
func (im *Importer) ImportFile(ctx context.Context, path string) FileResult {
	im.mu.Lock()
	defer im.mu.Unlock()

	start := time.Now()
	fc := core.NewFileContext(path)
	read, err := im.importFile(ctx, fc)

	result := FileResult{
		Path:       fc.Path,
		RunID:      fc.RunID,
		HeaderRows: fc.HeaderRows,
		DataRows:   fc.DataRows,
		FooterRows: fc.FooterRows,
		BytesRead:  read,
		Duration:   time.Since(start),
		Err:        err,
	}

	if err != nil {
		im.logger.Error("file import failed",
			"path", path,
			"run_id", fc.RunID,
			"error", err,
			"code", core.ErrorCode(err),
		)
		return result
	}
	im.logger.Info("file imported",
		"path", path,
		"run_id", fc.RunID,
		"header_rows", fc.HeaderRows,
		"data_rows", fc.DataRows,
		"footer_rows", fc.FooterRows,
		"bytes", read,
		"duration", result.Duration,
	)
	return result
}

// importFile returns the raw bytes consumed from the file with the error.
func (im *Importer) importFile(ctx context.Context, fc *core.FileContext) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := linesource.Open(fc.Path, im.opts.Source)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", fc.Path, err)
	}
	defer src.Close()

	if err := im.chain.BeforeFile(ctx, fc); err != nil {
		return 0, err
	}

	if err := im.feed(ctx, fc, src); err != nil {
		im.chain.AbortFile(ctx, fc, err)
		return src.BytesRead(), err
	}

	return src.BytesRead(), im.chain.AfterFile(ctx, fc)
}

func (im *Importer) feed(ctx context.Context, fc *core.FileContext, src *linesource.Source) error {
	for src.Scan() {
		number := src.Line()

		// Check for cancellation periodically
		if number%im.opts.ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("cancelled at row %d: %w", number, err)
			}
			im.logger.Debug("import progress",
				"path", fc.Path,
				"row", number,
				"bytes", src.BytesRead(),
				"percent", src.Progress(),
			)
		}

		line := src.Text()
		if im.opts.SkipBlankLines && strings.TrimSpace(line) == "" {
			continue
		}

		if _, err := im.chain.ProcessRow(ctx, core.NewRowContext(fc, number, line)); err != nil {
			return err
		}
	}
	return src.Err()
}

// Result is the outcome of importing a directory.
type Result struct {
	Dir        string       `json:"dir"`
	Successful bool         `json:"successful"`
	Message    string       `json:"message"`
	Files      []FileResult `json:"files"`
}

// Failed returns the results of the files that were not imported.
func (r *Result) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Failed() {
			failed = append(failed, f)
		}
	}
	return failed
}

// ImportDir imports every regular file directly in dir whose name matches
// pattern, in name order. The pattern may match anywhere in the name; a nil
// pattern matches every file. A failing file is recorded and the next one is
// still imported.
func (im *Importer) ImportDir(ctx context.Context, dir string, pattern *regexp.Regexp) *Result {
	result := &Result{Dir: dir}

	paths, err := ListFiles(dir, pattern)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	if len(paths) == 0 {
		result.Successful = true
		result.Message = "No file need to be imported"
		return result
	}

	im.logger.Debug("importing directory", "dir", dir, "files", len(paths))

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		result.Files = append(result.Files, im.ImportFile(ctx, path))
	}

	failed := len(result.Failed())
	switch {
	case ctx.Err() != nil:
		result.Message = fmt.Sprintf("cancelled after %d of %d file(s): %v", len(result.Files), len(paths), ctx.Err())
	case failed > 0:
		result.Message = fmt.Sprintf("%d file(s) imported, %d failed", len(result.Files)-failed, failed)
	default:
		result.Successful = true
		result.Message = fmt.Sprintf("%d file(s) imported", len(result.Files))
	}
	return result
}

// ErrNotDirectory is returned by ListFiles when dir is missing or not a
// directory.
var ErrNotDirectory = errors.New("not a directory")

// ListFiles returns the sorted paths of the regular files in dir whose name
// matches pattern.
func ListFiles(dir string, pattern *regexp.Regexp) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s is %w", dir, ErrNotDirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if pattern != nil && !pattern.MatchString(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
