package codec

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/fileimport/internal/core"
)

// Default layouts, used when Layout is empty.
const (
	DefaultDateLayout      = time.DateOnly
	DefaultTimeLayout      = time.TimeOnly
	DefaultTimestampLayout = time.DateTime
)

// Date is a calendar date column parsed with a Go reference layout.
type Date struct {
	NotNull bool
	Layout  string
}

func (t Date) Name() string   { return "date" }
func (t Date) Nullable() bool { return !t.NotNull }

func (t Date) Decode(raw string, present bool) (time.Time, bool, error) {
	return parseTime(t.Name(), t.NotNull, raw, present, layoutOr(t.Layout, DefaultDateLayout), time.UTC)
}

func (t Date) Value(raw string, present bool) (any, error) {
	v, ok, err := t.Decode(raw, present)
	if err != nil || !ok {
		return nil, err
	}
	return pgtype.Date{Time: v, Valid: true}, nil
}

// Time is a time-of-day column.
type Time struct {
	NotNull bool
	Layout  string
}

func (t Time) Name() string   { return "time" }
func (t Time) Nullable() bool { return !t.NotNull }

func (t Time) Decode(raw string, present bool) (pgtype.Time, bool, error) {
	v, ok, err := parseTime(t.Name(), t.NotNull, raw, present, layoutOr(t.Layout, DefaultTimeLayout), time.UTC)
	if err != nil || !ok {
		return pgtype.Time{}, false, err
	}
	midnight := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, v.Location())
	return pgtype.Time{Microseconds: v.Sub(midnight).Microseconds(), Valid: true}, true, nil
}

func (t Time) Value(raw string, present bool) (any, error) {
	return value[pgtype.Time](t.Decode(raw, present))
}

// Timestamp is a date and time column. Values without a zone in the layout
// are read in Location (UTC when nil).
type Timestamp struct {
	NotNull  bool
	Layout   string
	Location *time.Location
}

func (t Timestamp) Name() string   { return "timestamp" }
func (t Timestamp) Nullable() bool { return !t.NotNull }

func (t Timestamp) Decode(raw string, present bool) (time.Time, bool, error) {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	return parseTime(t.Name(), t.NotNull, raw, present, layoutOr(t.Layout, DefaultTimestampLayout), loc)
}

func (t Timestamp) Value(raw string, present bool) (any, error) {
	v, ok, err := t.Decode(raw, present)
	if err != nil || !ok {
		return nil, err
	}
	return pgtype.Timestamp{Time: v, Valid: true}, nil
}

// LoadLocation resolves a zone name for Timestamp. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &core.ConfigError{Component: "timestamp column", Field: "location", Reason: err.Error()}
	}
	return loc, nil
}

func parseTime(name string, notNull bool, raw string, present bool, layout string, loc *time.Location) (time.Time, bool, error) {
	ok, err := nullCheck(name, notNull, raw, present, true)
	if !ok {
		return time.Time{}, false, err
	}
	v, err := time.ParseInLocation(layout, raw, loc)
	if err != nil {
		return time.Time{}, false, formatError(name, raw, err)
	}
	return v, true, nil
}

func layoutOr(layout, fallback string) string {
	if layout == "" {
		return fallback
	}
	return layout
}
