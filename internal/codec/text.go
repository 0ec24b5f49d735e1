package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/fileimport/internal/core"
)

// VarChar is a bounded string column. The value is stored exactly as read:
// an empty string is a value, not NULL. Length counts characters.
type VarChar struct {
	NotNull bool
	Length  int
}

func (t VarChar) Name() string   { return "varchar" }
func (t VarChar) Nullable() bool { return !t.NotNull }

func (t VarChar) Validate() error {
	if t.Length <= 0 {
		return &core.ConfigError{Component: "varchar column", Field: "length", Reason: fmt.Sprintf("must be positive, got %d", t.Length)}
	}
	return nil
}

func (t VarChar) Decode(raw string, present bool) (string, bool, error) {
	ok, err := nullCheck(t.Name(), t.NotNull, raw, present, false)
	if !ok {
		return "", false, err
	}
	if n := utf8.RuneCountInString(raw); n > t.Length {
		return "", false, &ValidationError{
			Code:   CodeVarCharTooLong,
			Value:  raw,
			Detail: fmt.Sprintf("%d > %d", n, t.Length),
		}
	}
	return raw, true, nil
}

func (t VarChar) Value(raw string, present bool) (any, error) {
	return value[string](t.Decode(raw, present))
}

// Text is an unbounded string column with the VarChar null policy.
type Text struct {
	NotNull bool
}

func (t Text) Name() string   { return "text" }
func (t Text) Nullable() bool { return !t.NotNull }

func (t Text) Decode(raw string, present bool) (string, bool, error) {
	ok, err := nullCheck(t.Name(), t.NotNull, raw, present, false)
	if !ok {
		return "", false, err
	}
	return raw, true, nil
}

func (t Text) Value(raw string, present bool) (any, error) {
	return value[string](t.Decode(raw, present))
}

// Bool accepts true/false, t/f, yes/no, y/n and 1/0, case-insensitively.
type Bool struct {
	NotNull bool
}

func (t Bool) Name() string   { return "bool" }
func (t Bool) Nullable() bool { return !t.NotNull }

func (t Bool) Decode(raw string, present bool) (bool, bool, error) {
	ok, err := nullCheck(t.Name(), t.NotNull, raw, present, true)
	if !ok {
		return false, false, err
	}
	switch strings.ToLower(raw) {
	case "true", "t", "yes", "y", "1":
		return true, true, nil
	case "false", "f", "no", "n", "0":
		return false, true, nil
	default:
		return false, false, formatError(t.Name(), raw, nil)
	}
}

func (t Bool) Value(raw string, present bool) (any, error) {
	return value[bool](t.Decode(raw, present))
}

// UUID accepts the textual forms understood by uuid.Parse.
type UUID struct {
	NotNull bool
}

func (t UUID) Name() string   { return "uuid" }
func (t UUID) Nullable() bool { return !t.NotNull }

func (t UUID) Decode(raw string, present bool) (uuid.UUID, bool, error) {
	ok, err := nullCheck(t.Name(), t.NotNull, raw, present, true)
	if !ok {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, formatError(t.Name(), raw, err)
	}
	return id, true, nil
}

func (t UUID) Value(raw string, present bool) (any, error) {
	id, ok, err := t.Decode(raw, present)
	if err != nil || !ok {
		return nil, err
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}
