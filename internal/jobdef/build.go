package jobdef

import (
	"log/slog"

	"github.com/JonMunkholm/fileimport/internal/core"
	"github.com/JonMunkholm/fileimport/internal/importer"
	"github.com/JonMunkholm/fileimport/internal/sink"
)

// Chain builds the row chain of the job:
//
//	row type setter -> row type filter -> column splitter -> sink
//
// Rows are classified with a fixed header count, filtered with the allow
// set, split into columns and written through provider.
func (j *Job) Chain(provider sink.StatementProvider, logger *slog.Logger) (core.Processor[string], error) {
	return j.chain(provider, j.logger(logger))
}

func (j *Job) logger(base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("job", j.Name)
}

func (j *Job) chain(provider sink.StatementProvider, logger *slog.Logger) (core.Processor[string], error) {
	cols, err := j.CodecColumns()
	if err != nil {
		return nil, err
	}
	mode, err := sink.ParseCommitMode(j.CommitMode)
	if err != nil {
		return nil, err
	}
	splitter, err := j.Splitter()
	if err != nil {
		return nil, err
	}
	allow, err := j.AllowSet()
	if err != nil {
		return nil, err
	}

	out, err := sink.New(sink.Config{
		Columns:           cols,
		Provider:          provider,
		BatchSize:         j.BatchSize,
		Mode:              mode,
		RequireAllColumns: !j.AllowFewerColumns,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	toColumns, err := core.NewCSVToColumns(splitter, out)
	if err != nil {
		return nil, err
	}
	filter, err := core.NewRowTypeFilter[string](allow, toColumns)
	if err != nil {
		return nil, err
	}
	return core.NewRowTypeSetter[string](core.FixedHeaderCount[string]{HeaderRows: j.HeaderRows}, filter)
}

// Importer returns an importer running the job's chain. base supplies the
// process-wide options; the job sets the charset and blank line handling.
func (j *Job) Importer(provider sink.StatementProvider, base importer.Options) (*importer.Importer, error) {
	logger := j.logger(base.Logger)
	chain, err := j.chain(provider, logger)
	if err != nil {
		return nil, err
	}
	opts := base
	opts.Logger = logger
	opts.Source.Charset = j.Charset
	opts.SkipBlankLines = j.SkipBlankLines
	return importer.New(chain, opts)
}
