package core

import (
	"context"
	"fmt"
)

// RowTypeSetter classifies every row, stamps the type onto the context,
// counts it on the file context and forwards it.
//
// The type returned for the previous row of the same file is kept as per-file
// state, created by BeforeFile and dropped by AfterFile/AbortFile.
type RowTypeSetter[R any] struct {
	Forward
	classifier Classifier[R]
	next       Processor[R]
	last       *StateKey[RowType]
}

// NewRowTypeSetter returns a setter forwarding to next.
func NewRowTypeSetter[R any](classifier Classifier[R], next Processor[R]) (*RowTypeSetter[R], error) {
	if classifier == nil {
		return nil, &ConfigError{Component: "row type setter", Field: "classifier", Reason: "is required"}
	}
	if next == nil {
		return nil, &ConfigError{Component: "row type setter", Field: "next", Reason: "is required"}
	}
	return &RowTypeSetter[R]{
		Forward:    Forward{Next: next},
		classifier: classifier,
		next:       next,
		last:       NewStateKey[RowType]("previous row type"),
	}, nil
}

func (s *RowTypeSetter[R]) BeforeFile(ctx context.Context, fc *FileContext) error {
	unknown := RowUnknown
	s.last.Set(fc, &unknown)
	return s.Forward.BeforeFile(ctx, fc)
}

func (s *RowTypeSetter[R]) ProcessRow(ctx context.Context, rc RowContext[R]) (RowContext[R], error) {
	last, ok := s.last.Get(rc.File)
	if !ok {
		unknown := RowUnknown
		last = &unknown
		s.last.Set(rc.File, last)
	}

	rc.Type = s.classifier.Classify(rc.Number, rc.Row, *last)
	*last = rc.Type
	rc.File.Count(rc.Type)

	return s.next.ProcessRow(ctx, rc)
}

func (s *RowTypeSetter[R]) AfterFile(ctx context.Context, fc *FileContext) error {
	s.last.Take(fc)
	return s.Forward.AfterFile(ctx, fc)
}

func (s *RowTypeSetter[R]) AbortFile(ctx context.Context, fc *FileContext, cause error) {
	s.last.Take(fc)
	s.Forward.AbortFile(ctx, fc, cause)
}

// RowTypeFilter forwards only rows whose type is in the allow-set. Dropped
// rows are returned to the caller untouched.
type RowTypeFilter[R any] struct {
	Forward
	allow RowTypeSet
	next  Processor[R]
}

// NewRowTypeFilter returns a filter forwarding to next. A nil allow-set lets
// every row through.
func NewRowTypeFilter[R any](allow RowTypeSet, next Processor[R]) (*RowTypeFilter[R], error) {
	if next == nil {
		return nil, &ConfigError{Component: "row type filter", Field: "next", Reason: "is required"}
	}
	return &RowTypeFilter[R]{Forward: Forward{Next: next}, allow: allow, next: next}, nil
}

func (f *RowTypeFilter[R]) ProcessRow(ctx context.Context, rc RowContext[R]) (RowContext[R], error) {
	if !f.allow.Allows(rc.Type) {
		return rc, nil
	}
	return f.next.ProcessRow(ctx, rc)
}

// CSVToColumns splits the raw line of each row and forwards the columns.
type CSVToColumns struct {
	Forward
	splitter Splitter
	next     Processor[[]string]
}

// NewCSVToColumns returns a stage splitting with splitter, or with the
// quote-aware CSVSplitter when splitter is nil.
func NewCSVToColumns(splitter Splitter, next Processor[[]string]) (*CSVToColumns, error) {
	if next == nil {
		return nil, &ConfigError{Component: "line splitter", Field: "next", Reason: "is required"}
	}
	if splitter == nil {
		splitter = CSVSplitter{}
	}
	return &CSVToColumns{Forward: Forward{Next: next}, splitter: splitter, next: next}, nil
}

func (s *CSVToColumns) ProcessRow(ctx context.Context, rc RowContext[string]) (RowContext[string], error) {
	columns, err := s.splitter.Split(rc.Row)
	if err != nil {
		return rc, &RowError{Path: rc.File.Path, Row: rc.Number, Err: err}
	}
	if _, err := s.next.ProcessRow(ctx, WithRow(rc, columns)); err != nil {
		return rc, err
	}
	return rc, nil
}

// FieldMapping binds one column index (0-based) to a setter on a record.
// Set receives the raw column text and reports conversion failures.
type FieldMapping[T any] struct {
	Index int
	Name  string
	Set   func(rec *T, raw string) error
}

// MaxColumns returns the number of columns needed to satisfy every mapping.
func MaxColumns[T any](fields []FieldMapping[T]) int {
	n := 0
	for _, f := range fields {
		if f.Index+1 > n {
			n = f.Index + 1
		}
	}
	return n
}

// ColumnsToRecord converts each columns payload into a freshly constructed
// record and forwards it. Columns without a mapping are ignored; mappings
// beyond the end of a short row leave their field at its zero value.
type ColumnsToRecord[T any] struct {
	Forward
	fields    []FieldMapping[T]
	newRecord func() T
	next      Processor[T]
}

// NewColumnsToRecord returns a converter forwarding to next. newRecord may be
// nil, in which case records start as the zero T.
func NewColumnsToRecord[T any](fields []FieldMapping[T], newRecord func() T, next Processor[T]) (*ColumnsToRecord[T], error) {
	if len(fields) == 0 {
		return nil, &ConfigError{Component: "record mapper", Field: "fields", Reason: "must not be empty"}
	}
	if next == nil {
		return nil, &ConfigError{Component: "record mapper", Field: "next", Reason: "is required"}
	}
	for i, f := range fields {
		if f.Index < 0 || f.Set == nil {
			return nil, &ConfigError{
				Component: "record mapper",
				Field:     fmt.Sprintf("fields[%d]", i),
				Reason:    "needs a non-negative index and a setter",
			}
		}
	}
	return &ColumnsToRecord[T]{
		Forward:   Forward{Next: next},
		fields:    fields,
		newRecord: newRecord,
		next:      next,
	}, nil
}

func (c *ColumnsToRecord[T]) ProcessRow(ctx context.Context, rc RowContext[[]string]) (RowContext[[]string], error) {
	var rec T
	if c.newRecord != nil {
		rec = c.newRecord()
	}

	for _, f := range c.fields {
		if f.Index >= len(rc.Row) {
			continue
		}
		if err := f.Set(&rec, rc.Row[f.Index]); err != nil {
			return rc, &RowError{Path: rc.File.Path, Row: rc.Number, Column: f.Index + 1, Err: err}
		}
	}

	if _, err := c.next.ProcessRow(ctx, WithRow(rc, rec)); err != nil {
		return rc, err
	}
	return rc, nil
}
