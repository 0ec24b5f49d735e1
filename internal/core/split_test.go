package core

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeparatorSplitter(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		line    string
		want    []string
	}{
		{"default comma", "", "a,b,c", []string{"a", "b", "c"}},
		{"keeps trailing empty fields", "", "a,b,,", []string{"a", "b", "", ""}},
		{"keeps leading empty field", "", ",a", []string{"", "a"}},
		{"no separator", "", "abc", []string{"abc"}},
		{"quotes are literal", "", `"a,b"`, []string{`"a`, `b"`}},
		{"regexp pattern", `\s*\|\s*`, "a | b|c", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSeparatorSplitter(tt.pattern)
			require.NoError(t, err)

			got, err := s.Split(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeparatorSplitter_InvalidPattern(t *testing.T) {
	_, err := NewSeparatorSplitter("(")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestSeparatorSplitter_ZeroValue(t *testing.T) {
	got, err := (&SeparatorSplitter{}).Split("x,y")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	custom := &SeparatorSplitter{Pattern: regexp.MustCompile(";")}
	got, err = custom.Split("x;y;")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", ""}, got)
}

func TestCSVSplitter(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "a,b,c", []string{"a", "b", "c"}},
		{"empty line", "", []string{}},
		{"single separator", ",", []string{"", ""}},
		{"trailing separator", "a,b,", []string{"a", "b", ""}},
		{"quoted with comma", `a,"b,c",d`, []string{"a", "b,c", "d"}},
		{"escaped quotes", `"say ""hi""",x`, []string{`say "hi"`, "x"}},
		{"empty quoted field", `"",x`, []string{"", "x"}},
		{"quoted last field", `x,"y"`, []string{"x", "y"}},
		{"quoted then trailing separator", `"y",`, []string{"y", ""}},
		// only a leading quote starts a quoted field
		{"inner quote is literal", `ab"c,d`, []string{`ab"c`, "d"}},
		{"spaces are kept", ` a , b `, []string{" a ", " b "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CSVSplitter{}.Split(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSVSplitter_NineColumnRow(t *testing.T) {
	line := `1,"Smith, John",2024-01-31,true,42,abc,x,"He said ""no""",9.5`

	got, err := CSVSplitter{}.Split(line)
	require.NoError(t, err)
	require.Len(t, got, 9)
	assert.Equal(t, "Smith, John", got[1])
	assert.Equal(t, `He said "no"`, got[7])
	assert.Equal(t, "9.5", got[8])
}

func TestCSVSplitter_MaxColumnsStopsEarly(t *testing.T) {
	// the unterminated quote in column 4 is never looked at
	line := `1,"a,b",c,"broken`

	got, err := CSVSplitter{MaxColumns: 3}.Split(line)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "a,b", "c"}, got)

	_, err = CSVSplitter{}.Split(line)
	require.Error(t, err)
}

func TestCSVSplitter_UnterminatedQuote(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		index int
	}{
		{"first field", `"abc,def`, 0},
		{"later field", `x,"abc,def`, 2},
		{"escaped quote only", `x,"a""`, 2},
		{"lone quote", `"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CSVSplitter{}.Split(tt.line)
			require.Error(t, err)

			var mre *MalformedRowError
			require.True(t, errors.As(err, &mre))
			assert.Equal(t, CodeUnterminatedQuote, mre.Code)
			assert.Equal(t, tt.index, mre.Index)
			assert.Equal(t, CodeUnterminatedQuote, ErrorCode(err))
		})
	}
}

func TestCSVSplitter_UnexpectedCharAfterQuote(t *testing.T) {
	_, err := CSVSplitter{}.Split(`"abc"x,def`)

	var mre *MalformedRowError
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, CodeUnexpectedChar, mre.Code)
	assert.Equal(t, 5, mre.Index)
	assert.Equal(t, byte('x'), mre.Char)
}

func TestCSVSplitter_CustomSeparator(t *testing.T) {
	got, err := CSVSplitter{Separator: ';'}.Split(`a;"b;c";d,e`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b;c", "d,e"}, got)
}

func TestCSVSplitter_RoundTrip(t *testing.T) {
	values := []string{
		"",
		"plain",
		"a,b",
		`"`,
		`""`,
		`quote " inside`,
		`"leading`,
		`trailing"`,
		`,",",`,
		`mixed, "quoted" and ""double""`,
		",,,",
	}

	for _, v := range values {
		t.Run(v, func(t *testing.T) {
			escaped := `"` + escapeQuotes(v) + `"`
			got, err := CSVSplitter{}.Split(escaped)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, v, got[0])

			// EscapeCSV leaves simple values bare; both forms must survive
			line := EscapeCSV(v) + ",tail"
			got, err = CSVSplitter{}.Split(line)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, v, got[0])
			assert.Equal(t, "tail", got[1])
		})
	}
}

func escapeQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, s[i])
	}
	return string(out)
}
