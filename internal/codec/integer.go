package codec

import "strconv"

// Int16 is a signed 16-bit integer column (smallint).
type Int16 struct {
	NotNull bool
}

func (t Int16) Name() string   { return "int16" }
func (t Int16) Nullable() bool { return !t.NotNull }

func (t Int16) Decode(raw string, present bool) (int16, bool, error) {
	n, ok, err := parseInt(t.Name(), t.NotNull, raw, present, 16)
	return int16(n), ok, err
}

func (t Int16) Value(raw string, present bool) (any, error) {
	return value[int16](t.Decode(raw, present))
}

// Int32 is a signed 32-bit integer column (integer).
type Int32 struct {
	NotNull bool
}

func (t Int32) Name() string   { return "int32" }
func (t Int32) Nullable() bool { return !t.NotNull }

func (t Int32) Decode(raw string, present bool) (int32, bool, error) {
	n, ok, err := parseInt(t.Name(), t.NotNull, raw, present, 32)
	return int32(n), ok, err
}

func (t Int32) Value(raw string, present bool) (any, error) {
	return value[int32](t.Decode(raw, present))
}

// Int64 is a signed 64-bit integer column (bigint).
type Int64 struct {
	NotNull bool
}

func (t Int64) Name() string   { return "int64" }
func (t Int64) Nullable() bool { return !t.NotNull }

func (t Int64) Decode(raw string, present bool) (int64, bool, error) {
	return parseInt(t.Name(), t.NotNull, raw, present, 64)
}

func (t Int64) Value(raw string, present bool) (any, error) {
	return value[int64](t.Decode(raw, present))
}

// parseInt is a strict base-10 parse: an optional sign and digits only.
func parseInt(name string, notNull bool, raw string, present bool, bits int) (int64, bool, error) {
	ok, err := nullCheck(name, notNull, raw, present, true)
	if !ok {
		return 0, false, err
	}
	n, err := strconv.ParseInt(raw, 10, bits)
	if err != nil {
		return 0, false, formatError(name, raw, err)
	}
	return n, true, nil
}
