package core

import (
	"fmt"
	"strings"
)

// RowType classifies a row of a data file.
type RowType int

const (
	// RowUnknown is the placeholder before classification. It is also the
	// "previous row type" handed to a Classifier for the first row of a file.
	RowUnknown RowType = iota
	RowHeader
	RowData
	RowFooter
)

func (t RowType) String() string {
	switch t {
	case RowHeader:
		return "HEADER"
	case RowData:
		return "DATA"
	case RowFooter:
		return "FOOTER"
	default:
		return "UNKNOWN"
	}
}

// ParseRowType converts a case-insensitive name ("header", "DATA", ...) to a RowType.
func ParseRowType(s string) (RowType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HEADER":
		return RowHeader, nil
	case "DATA":
		return RowData, nil
	case "FOOTER":
		return RowFooter, nil
	case "UNKNOWN":
		return RowUnknown, nil
	default:
		return RowUnknown, fmt.Errorf("unknown row type %q", s)
	}
}

// RowTypeSet is an allow-set of row types. The nil set allows every type.
type RowTypeSet map[RowType]struct{}

// NewRowTypeSet builds a set from the given types.
func NewRowTypeSet(types ...RowType) RowTypeSet {
	set := make(RowTypeSet, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

// Allows reports whether rows of type t pass the set.
func (s RowTypeSet) Allows(t RowType) bool {
	if s == nil {
		return true
	}
	_, ok := s[t]
	return ok
}

// Classifier decides the type of a row from its 1-based number, its payload
// and the type returned for the previous row of the same file (RowUnknown for
// the first row).
//
// Implementations must be pure functions of their inputs: the same Classifier
// serves every file a chain processes, and the per-file "previous type" is
// tracked by the caller.
type Classifier[R any] interface {
	Classify(rowNumber int, row R, previous RowType) RowType
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc[R any] func(rowNumber int, row R, previous RowType) RowType

// Classify calls f.
func (f ClassifierFunc[R]) Classify(rowNumber int, row R, previous RowType) RowType {
	return f(rowNumber, row, previous)
}

// FixedHeaderCount classifies rows 1..HeaderRows as RowHeader and every later
// row as RowData, regardless of content. It never produces RowFooter.
type FixedHeaderCount[R any] struct {
	HeaderRows int
}

// Classify implements Classifier.
func (c FixedHeaderCount[R]) Classify(rowNumber int, _ R, _ RowType) RowType {
	if rowNumber <= c.HeaderRows {
		return RowHeader
	}
	return RowData
}
