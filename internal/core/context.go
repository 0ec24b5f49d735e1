package core

import (
	"fmt"

	"github.com/google/uuid"
)

// FileContext is the state of one file being imported. It is created when
// the file is opened and discarded once AfterFile (or AbortFile) returns.
//
// Row counters only ever grow. Attachment is free for stages to pass derived
// state between rows of the same file. Stage-private state (a sink's open
// statement, the classifier's previous row type) is kept under StateKeys so
// that one chain instance never mixes the state of two files.
type FileContext struct {
	Path  string
	RunID uuid.UUID

	HeaderRows int
	DataRows   int
	FooterRows int

	Attachment any

	state map[any]any
}

// NewFileContext creates the context for the file at path with a fresh run id.
func NewFileContext(path string) *FileContext {
	return &FileContext{
		Path:  path,
		RunID: uuid.New(),
	}
}

// Count increments the counter matching t. RowUnknown is not counted.
func (fc *FileContext) Count(t RowType) {
	switch t {
	case RowHeader:
		fc.HeaderRows++
	case RowData:
		fc.DataRows++
	case RowFooter:
		fc.FooterRows++
	}
}

// TotalRows returns the number of classified rows seen so far.
func (fc *FileContext) TotalRows() int {
	return fc.HeaderRows + fc.DataRows + fc.FooterRows
}

func (fc *FileContext) String() string {
	return fmt.Sprintf("FileContext{path=%q, run=%s, header=%d, data=%d, footer=%d}",
		fc.Path, fc.RunID, fc.HeaderRows, fc.DataRows, fc.FooterRows)
}

// StateKey names a slot of per-file state owned by one stage. Keys compare by
// identity, so two stages of the same kind never share state.
type StateKey[T any] struct {
	name string
}

// NewStateKey returns a new unique key. name is only used for debugging.
func NewStateKey[T any](name string) *StateKey[T] {
	return &StateKey[T]{name: name}
}

// Get returns the value stored for fc, if any.
func (k *StateKey[T]) Get(fc *FileContext) (*T, bool) {
	v, ok := fc.state[k]
	if !ok {
		return nil, false
	}
	return v.(*T), true
}

// Set stores v for fc.
func (k *StateKey[T]) Set(fc *FileContext, v *T) {
	if fc.state == nil {
		fc.state = make(map[any]any)
	}
	fc.state[k] = v
}

// Take removes and returns the value stored for fc.
func (k *StateKey[T]) Take(fc *FileContext) (*T, bool) {
	v, ok := k.Get(fc)
	if ok {
		delete(fc.state, k)
	}
	return v, ok
}

func (k *StateKey[T]) String() string {
	return "state:" + k.name
}

// RowContext carries one row through the chain. Number is 1-based and strictly
// increasing within a file. A stage that changes the payload type derives a
// new context with WithRow; file, number and type are preserved.
type RowContext[R any] struct {
	File   *FileContext
	Number int
	Row    R
	Type   RowType
}

// NewRowContext creates an unclassified row context.
func NewRowContext[R any](fc *FileContext, number int, row R) RowContext[R] {
	return RowContext[R]{File: fc, Number: number, Row: row, Type: RowUnknown}
}

// WithRow derives a context carrying a new payload of a possibly different type.
func WithRow[R, T any](rc RowContext[R], row T) RowContext[T] {
	return RowContext[T]{File: rc.File, Number: rc.Number, Row: row, Type: rc.Type}
}
