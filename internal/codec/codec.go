// Package codec converts raw column text into typed values and binds them as
// statement parameters.
//
// Every column type follows the same null policy: an absent value, or (for
// all types except VarChar and Text) a value that is blank after trimming,
// is NULL. A NULL in a NotNull column fails with the code
// "<type>.invalid.notNull". Apart from that blank check, input is never
// trimmed, so " 42" is not a valid int32.
//
// Values returned by Column.Value are ready to be handed to pgx.
package codec

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/fileimport/internal/core"
)

// Stable validation codes shared by several types. The full code is
// "<type name>.<suffix>", e.g. "int32.invalid.notNull".
const (
	suffixNotNull = "invalid.notNull"
	suffixFormat  = "invalid.format"
)

// Type-specific validation codes.
const (
	CodeFloatNaN         = "float.invalid.nan"
	CodeFloatInfinity    = "float.invalid.infinity"
	CodeDecimalScale     = "decimal.tooBig.scale"
	CodeDecimalPrecision = "decimal.tooBig.precision"
	CodeVarCharTooLong   = "varchar.tooLong.length"
)

// NotNullCode returns the code raised when typeName receives a NULL.
func NotNullCode(typeName string) string { return typeName + "." + suffixNotNull }

// FormatCode returns the code raised when typeName cannot parse its input.
func FormatCode(typeName string) string { return typeName + "." + suffixFormat }

// ValidationError reports a raw value a column type rejected.
type ValidationError struct {
	Code   string
	Value  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %q: %s", e.Code, e.Value, e.Detail)
	}
	return fmt.Sprintf("%s: %q", e.Code, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrorCode implements core.Coder.
func (e *ValidationError) ErrorCode() string { return e.Code }

// Column is the untyped view of a column type, used where columns of mixed
// types are handled together (the sink binds a row this way).
type Column interface {
	// Name is the type name used as the prefix of validation codes.
	Name() string

	// Nullable reports whether NULL is an acceptable value.
	Nullable() bool

	// Value converts raw to a value that can be bound as a statement
	// parameter. It returns nil for NULL. present is false when the row had
	// no column at this position.
	Value(raw string, present bool) (any, error)
}

// Type is a Column that also exposes its Go value type. ok is false when the
// value is NULL.
type Type[V any] interface {
	Column
	Decode(raw string, present bool) (v V, ok bool, err error)
}

// ParamSetter receives bound statement parameters. index is 0-based.
type ParamSetter interface {
	SetParam(index int, value any)
}

// Bind converts raw with col and stores the result at index.
func Bind(p ParamSetter, index int, col Column, raw string, present bool) error {
	v, err := col.Value(raw, present)
	if err != nil {
		return err
	}
	p.SetParam(index, v)
	return nil
}

// Validate checks the descriptors of cols, returning a *core.ConfigError for
// the first invalid one.
func Validate(cols ...Column) error {
	for i, col := range cols {
		if col == nil {
			return &core.ConfigError{Component: "codec", Field: fmt.Sprintf("columns[%d]", i), Reason: "is nil"}
		}
		v, ok := col.(interface{ Validate() error })
		if !ok {
			continue
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("columns[%d]: %w", i, err)
		}
	}
	return nil
}

// Field maps column index to a record field through col. set is only called
// for non-NULL values, so a NULL leaves the field at whatever the record
// started with.
func Field[T, V any](index int, name string, col Type[V], set func(rec *T, v V)) core.FieldMapping[T] {
	return core.FieldMapping[T]{
		Index: index,
		Name:  name,
		Set: func(rec *T, raw string) error {
			v, ok, err := col.Decode(raw, true)
			if err != nil {
				return err
			}
			if ok {
				set(rec, v)
			}
			return nil
		},
	}
}

// nullCheck applies the shared null policy. It returns ok=false for NULL and
// an error when NULL is not allowed.
func nullCheck(name string, notNull bool, raw string, present, blankIsNull bool) (ok bool, err error) {
	isNull := !present || (blankIsNull && isBlank(raw))
	if !isNull {
		return true, nil
	}
	if notNull {
		return false, &ValidationError{Code: NotNullCode(name), Value: raw}
	}
	return false, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func formatError(name, raw string, err error) error {
	return &ValidationError{Code: FormatCode(name), Value: raw, Err: err}
}

// value converts a Decode result into the Column.Value shape.
func value[V any](v V, ok bool, err error) (any, error) {
	if err != nil || !ok {
		return nil, err
	}
	return v, nil
}
