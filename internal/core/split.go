package core

// split.go turns one raw line into columns.
//
// SeparatorSplitter splits on a regular expression and keeps trailing empty
// fields. CSVSplitter understands quoted fields with a deliberately small
// state machine:
//
//   - only a field whose first character is a quote is treated as quoted;
//     a quote appearing later in an unquoted field is literal
//   - inside a quoted field "" stands for one literal quote
//   - after the closing quote the next character must be the separator or
//     the end of the line
//
// This is not full RFC 4180. Consumers rely on these exact rules, so keep them.

import (
	"regexp"
	"strings"
)

// Splitter parses one raw line into an ordered list of columns.
type Splitter interface {
	Split(line string) ([]string, error)
}

// DefaultSeparator is the default field separator pattern.
const DefaultSeparator = ","

var defaultSeparatorPattern = regexp.MustCompile(DefaultSeparator)

// SeparatorSplitter splits on every match of Pattern (default: a single comma).
// Empty fields, trailing ones included, are preserved.
type SeparatorSplitter struct {
	Pattern *regexp.Regexp
}

// NewSeparatorSplitter compiles pattern. An empty pattern selects the default.
func NewSeparatorSplitter(pattern string) (*SeparatorSplitter, error) {
	if pattern == "" {
		return &SeparatorSplitter{Pattern: defaultSeparatorPattern}, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &ConfigError{Component: "separator splitter", Field: "pattern", Reason: err.Error()}
	}
	return &SeparatorSplitter{Pattern: re}, nil
}

// Split implements Splitter. It never fails.
func (s *SeparatorSplitter) Split(line string) ([]string, error) {
	re := s.Pattern
	if re == nil {
		re = defaultSeparatorPattern
	}
	return re.Split(line, -1), nil
}

type csvState int

const (
	fieldStart csvState = iota
	inQuote
	fieldEnd
)

// CSVSplitter is the quote-aware splitter. Separator defaults to ',' and
// Quote to '"'.
//
// MaxColumns bounds the work done per line: once that many columns have been
// emitted, the rest of the line is discarded without being validated. Zero
// means no limit.
type CSVSplitter struct {
	Separator  byte
	Quote      byte
	MaxColumns int
}

// Split implements Splitter. It fails with a *MalformedRowError when a quoted
// field is never closed or is followed by something other than the separator.
func (s CSVSplitter) Split(line string) ([]string, error) {
	sep, quote := s.Separator, s.Quote
	if sep == 0 {
		sep = ','
	}
	if quote == 0 {
		quote = '"'
	}

	columns := make([]string, 0, s.capacity())
	full := func() bool {
		return s.MaxColumns > 0 && len(columns) >= s.MaxColumns
	}

	state := fieldStart
	i := 0
	for i < len(line) {
		switch state {
		case fieldStart:
			if full() {
				return columns, nil
			}
			if line[i] == quote {
				i++
				state = inQuote
				continue
			}
			next := strings.IndexByte(line[i:], sep)
			if next < 0 {
				return append(columns, line[i:]), nil
			}
			columns = append(columns, line[i:i+next])
			i += next + 1
			if i == len(line) && !full() {
				// the line ends with a separator: one more, empty, column
				columns = append(columns, "")
			}

		case inQuote:
			open := i - 1
			end, escaped := closingQuote(line, i, quote)
			if end < 0 {
				return nil, &MalformedRowError{Code: CodeUnterminatedQuote, Index: open, Line: line}
			}
			value := line[i:end]
			if escaped {
				q := string(quote)
				value = strings.ReplaceAll(value, q+q, q)
			}
			columns = append(columns, value)
			i = end + 1
			state = fieldEnd

		case fieldEnd:
			if line[i] != sep {
				return nil, &MalformedRowError{Code: CodeUnexpectedChar, Index: i, Char: line[i], Line: line}
			}
			i++
			state = fieldStart
			if i == len(line) && !full() {
				columns = append(columns, "")
			}
		}
	}

	if state == inQuote {
		// the line ended right after an opening quote
		return nil, &MalformedRowError{Code: CodeUnterminatedQuote, Index: len(line) - 1, Line: line}
	}
	return columns, nil
}

// closingQuote finds the quote closing a field whose content starts at from.
// A doubled quote is an escaped literal. It returns -1 if there is none.
func closingQuote(line string, from int, quote byte) (end int, escaped bool) {
	for start := from; ; {
		next := strings.IndexByte(line[start:], quote)
		if next < 0 {
			return -1, escaped
		}
		pos := start + next
		if pos+1 < len(line) && line[pos+1] == quote {
			escaped = true
			start = pos + 2
			continue
		}
		return pos, escaped
	}
}

func (s CSVSplitter) capacity() int {
	if s.MaxColumns > 0 && s.MaxColumns < 64 {
		return s.MaxColumns
	}
	return 8
}

// EscapeCSV quotes value for CSVSplitter when it contains the separator or
// starts with a quote, doubling every embedded quote.
func EscapeCSV(value string) string {
	if !strings.Contains(value, ",") && !strings.HasPrefix(value, `"`) {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
