package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a terminal stage logging every call it sees.
type recorder[R any] struct {
	name  string
	calls *[]string
	rows  []RowContext[R]
	fail  error
}

func (r *recorder[R]) BeforeFile(_ context.Context, fc *FileContext) error {
	*r.calls = append(*r.calls, r.name+".before")
	return nil
}

func (r *recorder[R]) AfterFile(_ context.Context, fc *FileContext) error {
	*r.calls = append(*r.calls, r.name+".after")
	return nil
}

func (r *recorder[R]) AbortFile(_ context.Context, fc *FileContext, cause error) {
	*r.calls = append(*r.calls, r.name+".abort")
}

func (r *recorder[R]) ProcessRow(_ context.Context, rc RowContext[R]) (RowContext[R], error) {
	r.rows = append(r.rows, rc)
	return rc, r.fail
}

// tracing wraps a stage and logs lifecycle calls before delegating.
type tracing[R any] struct {
	Processor[R]
	name  string
	calls *[]string
}

func (t tracing[R]) BeforeFile(ctx context.Context, fc *FileContext) error {
	*t.calls = append(*t.calls, t.name+".before")
	return t.Processor.BeforeFile(ctx, fc)
}

func (t tracing[R]) AfterFile(ctx context.Context, fc *FileContext) error {
	*t.calls = append(*t.calls, t.name+".after")
	return t.Processor.AfterFile(ctx, fc)
}

func TestFixedHeaderCount(t *testing.T) {
	for n := 0; n <= 5; n++ {
		t.Run(fmt.Sprintf("headers=%d", n), func(t *testing.T) {
			c := FixedHeaderCount[string]{HeaderRows: n}
			previous := RowUnknown
			for row := 1; row <= n+5; row++ {
				got := c.Classify(row, "any content", previous)
				if row <= n {
					assert.Equal(t, RowHeader, got, "row %d", row)
				} else {
					assert.Equal(t, RowData, got, "row %d", row)
				}
				assert.NotEqual(t, RowFooter, got)
				previous = got
			}
		})
	}
}

func TestParseRowType(t *testing.T) {
	for _, rt := range []RowType{RowHeader, RowData, RowFooter, RowUnknown} {
		got, err := ParseRowType(rt.String())
		require.NoError(t, err)
		assert.Equal(t, rt, got)
	}

	got, err := ParseRowType(" data ")
	require.NoError(t, err)
	assert.Equal(t, RowData, got)

	_, err = ParseRowType("trailer")
	assert.Error(t, err)
}

func TestRowTypeSet(t *testing.T) {
	var all RowTypeSet
	assert.True(t, all.Allows(RowFooter))

	data := NewRowTypeSet(RowData)
	assert.True(t, data.Allows(RowData))
	assert.False(t, data.Allows(RowHeader))
	assert.False(t, data.Allows(RowUnknown))
}

func TestRowTypeSetter_StampsAndCounts(t *testing.T) {
	ctx := context.Background()
	var calls []string
	sink := &recorder[string]{name: "sink", calls: &calls}

	var previous []RowType
	classifier := ClassifierFunc[string](func(n int, row string, prev RowType) RowType {
		previous = append(previous, prev)
		if row == "TRAILER" {
			return RowFooter
		}
		return FixedHeaderCount[string]{HeaderRows: 1}.Classify(n, row, prev)
	})

	setter, err := NewRowTypeSetter[string](classifier, sink)
	require.NoError(t, err)

	fc := NewFileContext("a.csv")
	require.NoError(t, setter.BeforeFile(ctx, fc))
	for i, line := range []string{"h", "d1", "d2", "TRAILER"} {
		rc, err := setter.ProcessRow(ctx, NewRowContext(fc, i+1, line))
		require.NoError(t, err)
		assert.NotEqual(t, RowUnknown, rc.Type)
	}
	require.NoError(t, setter.AfterFile(ctx, fc))

	assert.Equal(t, []RowType{RowUnknown, RowHeader, RowData, RowData}, previous)
	assert.Equal(t, 1, fc.HeaderRows)
	assert.Equal(t, 2, fc.DataRows)
	assert.Equal(t, 1, fc.FooterRows)
	assert.Equal(t, 4, fc.TotalRows())

	_, ok := setter.last.Get(fc)
	assert.False(t, ok, "per-file state must be dropped after the file")
}

func TestRowTypeSetter_SeparateFilesDoNotShareState(t *testing.T) {
	ctx := context.Background()
	var calls []string
	sink := &recorder[string]{name: "sink", calls: &calls}

	var seen []RowType
	classifier := ClassifierFunc[string](func(n int, row string, prev RowType) RowType {
		seen = append(seen, prev)
		return RowData
	})
	setter, err := NewRowTypeSetter[string](classifier, sink)
	require.NoError(t, err)

	a, b := NewFileContext("a.csv"), NewFileContext("b.csv")
	require.NoError(t, setter.BeforeFile(ctx, a))
	_, err = setter.ProcessRow(ctx, NewRowContext(a, 1, "x"))
	require.NoError(t, err)

	require.NoError(t, setter.BeforeFile(ctx, b))
	_, err = setter.ProcessRow(ctx, NewRowContext(b, 1, "y"))
	require.NoError(t, err)

	assert.Equal(t, []RowType{RowUnknown, RowUnknown}, seen)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRowTypeFilter(t *testing.T) {
	ctx := context.Background()
	var calls []string
	sink := &recorder[string]{name: "sink", calls: &calls}

	filter, err := NewRowTypeFilter[string](NewRowTypeSet(RowData), sink)
	require.NoError(t, err)

	fc := NewFileContext("f.csv")
	header := RowContext[string]{File: fc, Number: 1, Row: "h", Type: RowHeader}
	data := RowContext[string]{File: fc, Number: 2, Row: "d", Type: RowData}

	got, err := filter.ProcessRow(ctx, header)
	require.NoError(t, err)
	assert.Equal(t, header, got, "dropped rows are still returned")

	_, err = filter.ProcessRow(ctx, data)
	require.NoError(t, err)

	require.Len(t, sink.rows, 1)
	assert.Equal(t, "d", sink.rows[0].Row)
}

func TestRowTypeFilter_NilAllowsAll(t *testing.T) {
	ctx := context.Background()
	var calls []string
	sink := &recorder[string]{name: "sink", calls: &calls}

	filter, err := NewRowTypeFilter[string](nil, sink)
	require.NoError(t, err)

	fc := NewFileContext("f.csv")
	for i, rt := range []RowType{RowHeader, RowData, RowFooter} {
		_, err := filter.ProcessRow(ctx, RowContext[string]{File: fc, Number: i + 1, Row: "x", Type: rt})
		require.NoError(t, err)
	}
	assert.Len(t, sink.rows, 3)
}

func TestCSVToColumns_ReturnsOriginalContext(t *testing.T) {
	ctx := context.Background()
	var calls []string
	sink := &recorder[[]string]{name: "sink", calls: &calls}

	stage, err := NewCSVToColumns(nil, sink)
	require.NoError(t, err)

	fc := NewFileContext("f.csv")
	in := RowContext[string]{File: fc, Number: 7, Row: `a,"b,c"`, Type: RowData}
	out, err := stage.ProcessRow(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.Len(t, sink.rows, 1)
	forwarded := sink.rows[0]
	assert.Equal(t, []string{"a", "b,c"}, forwarded.Row)
	assert.Equal(t, 7, forwarded.Number)
	assert.Equal(t, RowData, forwarded.Type)
	assert.Same(t, fc, forwarded.File)
}

func TestCSVToColumns_MalformedRow(t *testing.T) {
	ctx := context.Background()
	var calls []string
	sink := &recorder[[]string]{name: "sink", calls: &calls}

	stage, err := NewCSVToColumns(CSVSplitter{}, sink)
	require.NoError(t, err)

	fc := NewFileContext("f.csv")
	_, err = stage.ProcessRow(ctx, NewRowContext(fc, 3, `"open`))
	require.Error(t, err)

	var re *RowError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 3, re.Row)
	assert.Equal(t, CodeUnterminatedQuote, ErrorCode(err))
	assert.Empty(t, sink.rows)
}

type person struct {
	ID   string
	Name string
	Tags []string
}

func TestColumnsToRecord(t *testing.T) {
	ctx := context.Background()
	var calls []string
	sink := &recorder[person]{name: "sink", calls: &calls}

	fields := []FieldMapping[person]{
		{Index: 0, Name: "id", Set: func(p *person, raw string) error { p.ID = raw; return nil }},
		{Index: 2, Name: "name", Set: func(p *person, raw string) error { p.Name = raw; return nil }},
	}
	assert.Equal(t, 3, MaxColumns(fields))

	stage, err := NewColumnsToRecord(fields, func() person { return person{Tags: []string{"new"}} }, sink)
	require.NoError(t, err)

	fc := NewFileContext("p.csv")
	_, err = stage.ProcessRow(ctx, NewRowContext(fc, 1, []string{"1", "skipped", "Ann", "extra"}))
	require.NoError(t, err)
	_, err = stage.ProcessRow(ctx, NewRowContext(fc, 2, []string{"2"}))
	require.NoError(t, err)

	require.Len(t, sink.rows, 2)
	assert.Equal(t, person{ID: "1", Name: "Ann", Tags: []string{"new"}}, sink.rows[0].Row)
	assert.Equal(t, person{ID: "2", Tags: []string{"new"}}, sink.rows[1].Row)
}

func TestColumnsToRecord_SetterError(t *testing.T) {
	ctx := context.Background()
	var calls []string
	sink := &recorder[person]{name: "sink", calls: &calls}
	boom := errors.New("boom")

	stage, err := NewColumnsToRecord([]FieldMapping[person]{
		{Index: 1, Set: func(*person, string) error { return boom }},
	}, nil, sink)
	require.NoError(t, err)

	_, err = stage.ProcessRow(ctx, NewRowContext(NewFileContext("p.csv"), 4, []string{"a", "b"}))
	require.ErrorIs(t, err, boom)

	var re *RowError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 4, re.Row)
	assert.Equal(t, 2, re.Column)
}

func TestConstructors_RejectMissingConfig(t *testing.T) {
	var calls []string
	sink := &recorder[string]{name: "sink", calls: &calls}

	_, err := NewRowTypeSetter[string](nil, sink)
	assert.True(t, IsConfigError(err))

	_, err = NewRowTypeFilter[string](nil, nil)
	assert.True(t, IsConfigError(err))

	_, err = NewCSVToColumns(nil, nil)
	assert.True(t, IsConfigError(err))

	_, err = NewColumnsToRecord[person](nil, nil, &recorder[person]{calls: &calls})
	assert.True(t, IsConfigError(err))
	assert.Equal(t, CodeConfig, ErrorCode(err))
}

func TestLifecycle_ChainOrder(t *testing.T) {
	ctx := context.Background()
	var calls []string

	sink := &recorder[[]string]{name: "sink", calls: &calls}
	split, err := NewCSVToColumns(nil, sink)
	require.NoError(t, err)
	filter, err := NewRowTypeFilter[string](nil, tracing[string]{Processor: split, name: "split", calls: &calls})
	require.NoError(t, err)
	setter, err := NewRowTypeSetter[string](FixedHeaderCount[string]{}, tracing[string]{Processor: filter, name: "filter", calls: &calls})
	require.NoError(t, err)
	head := tracing[string]{Processor: setter, name: "setter", calls: &calls}

	fc := NewFileContext("f.csv")
	require.NoError(t, head.BeforeFile(ctx, fc))
	require.NoError(t, head.AfterFile(ctx, fc))

	assert.Equal(t, []string{
		"setter.before", "filter.before", "split.before", "sink.before",
		"setter.after", "filter.after", "split.after", "sink.after",
	}, calls)
}

func TestLifecycle_AbortReachesTerminal(t *testing.T) {
	ctx := context.Background()
	var calls []string

	sink := &recorder[[]string]{name: "sink", calls: &calls, fail: errors.New("insert failed")}
	split, err := NewCSVToColumns(nil, sink)
	require.NoError(t, err)
	setter, err := NewRowTypeSetter[string](FixedHeaderCount[string]{}, split)
	require.NoError(t, err)

	fc := NewFileContext("f.csv")
	require.NoError(t, setter.BeforeFile(ctx, fc))
	_, err = setter.ProcessRow(ctx, NewRowContext(fc, 1, "a,b"))
	require.Error(t, err)

	setter.AbortFile(ctx, fc, err)
	assert.Equal(t, []string{"sink.before", "sink.abort"}, calls)

	_, ok := setter.last.Get(fc)
	assert.False(t, ok)
}

func TestStateKey(t *testing.T) {
	fc := NewFileContext("f.csv")
	k1 := NewStateKey[int]("counter")
	k2 := NewStateKey[int]("counter")

	_, ok := k1.Get(fc)
	assert.False(t, ok)

	v := 5
	k1.Set(fc, &v)
	_, ok = k2.Get(fc)
	assert.False(t, ok, "keys compare by identity, not by name")

	got, ok := k1.Take(fc)
	require.True(t, ok)
	assert.Equal(t, 5, *got)

	_, ok = k1.Take(fc)
	assert.False(t, ok)
}

// previousRow stores each row in the file's Attachment for the next row.
type previousRow struct {
	Forward
	next Processor[string]
	seen []string
}

func (p *previousRow) ProcessRow(ctx context.Context, rc RowContext[string]) (RowContext[string], error) {
	prev, _ := rc.File.Attachment.(string)
	p.seen = append(p.seen, prev)
	rc.File.Attachment = rc.Row
	if _, err := p.next.ProcessRow(ctx, rc); err != nil {
		return rc, err
	}
	return rc, nil
}

func TestAttachment_CarriesStateBetweenRows(t *testing.T) {
	out := &Collector[string]{}
	stage := &previousRow{Forward: Forward{Next: out}, next: out}
	ctx := context.Background()

	first := NewFileContext("a.csv")
	require.NoError(t, stage.BeforeFile(ctx, first))
	for i, row := range []string{"x", "y", "z"} {
		_, err := stage.ProcessRow(ctx, NewRowContext(first, i+1, row))
		require.NoError(t, err)
	}
	require.NoError(t, stage.AfterFile(ctx, first))
	assert.Equal(t, "z", first.Attachment)

	// a new file starts without the previous file's attachment
	second := NewFileContext("b.csv")
	_, err := stage.ProcessRow(ctx, NewRowContext(second, 1, "q"))
	require.NoError(t, err)

	assert.Equal(t, []string{"", "x", "y", ""}, stage.seen)
	assert.Equal(t, []string{"x", "y", "z", "q"}, out.Payloads())
}

func TestCollector(t *testing.T) {
	c := &Collector[string]{}
	fc := NewFileContext("f.csv")
	for i, s := range []string{"a", "b"} {
		_, err := c.ProcessRow(context.Background(), NewRowContext(fc, i+1, s))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b"}, c.Payloads())
}

func TestRowFunc(t *testing.T) {
	boom := errors.New("boom")
	f := RowFunc[int](func(_ context.Context, rc RowContext[int]) error {
		if rc.Row < 0 {
			return boom
		}
		return nil
	})

	fc := NewFileContext("f.csv")
	_, err := f.ProcessRow(context.Background(), NewRowContext(fc, 1, 1))
	assert.NoError(t, err)
	_, err = f.ProcessRow(context.Background(), NewRowContext(fc, 2, -1))
	assert.ErrorIs(t, err, boom)
}
