package core

// errors.go defines the error taxonomy of the row pipeline.
//
//   - MalformedRowError: the splitter could not parse a line (file-fatal)
//   - RowError: wraps any row-level failure with its row and column position
//   - ConfigError: a component is missing a required setting; raised before
//     any row is processed
//
// Validation errors live in the codec package and resource errors in the
// sink package. Every error that carries a stable, machine-matchable code
// implements Coder; use ErrorCode to extract it from a wrapped chain.

import (
	"errors"
	"fmt"
)

// Malformed-row codes.
const (
	CodeUnterminatedQuote = "row.malformed.unterminatedQuote"
	CodeUnexpectedChar    = "row.malformed.unexpectedChar"
)

// CodeConfig is the code carried by every ConfigError.
const CodeConfig = "config.invalid"

// Coder is implemented by errors carrying a stable code such as
// "decimal.tooBig.precision".
type Coder interface {
	ErrorCode() string
}

// ErrorCode returns the first stable code found in err's chain, or "" if none.
func ErrorCode(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// MalformedRowError reports a line the quote-aware splitter cannot parse.
type MalformedRowError struct {
	Code  string
	Index int  // byte offset in the line
	Char  byte // offending character, for CodeUnexpectedChar
	Line  string
}

func (e *MalformedRowError) Error() string {
	switch e.Code {
	case CodeUnterminatedQuote:
		return fmt.Sprintf("%s: the opening quote at index %d has no closing quote", e.Code, e.Index)
	case CodeUnexpectedChar:
		return fmt.Sprintf("%s: expected a separator at index %d but found %q", e.Code, e.Index, e.Char)
	default:
		return fmt.Sprintf("%s at index %d", e.Code, e.Index)
	}
}

// ErrorCode implements Coder.
func (e *MalformedRowError) ErrorCode() string { return e.Code }

// RowError locates a row-level failure. Column is 1-based, 0 when the failure
// is not tied to one column.
type RowError struct {
	Path   string
	Row    int
	Column int
	Err    error
}

func (e *RowError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("%s: row %d, column %d: %v", e.Path, e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: row %d: %v", e.Path, e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ConfigError reports a missing or invalid setting of a pipeline component.
type ConfigError struct {
	Component string
	Field     string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Component, e.Field, e.Reason)
}

// ErrorCode implements Coder.
func (e *ConfigError) ErrorCode() string { return CodeConfig }

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
