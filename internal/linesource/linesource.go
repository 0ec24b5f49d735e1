// Package linesource reads a data file as a lazy sequence of text lines.
//
// The byte stream is decoded from its charset to UTF-8 on the fly, a leading
// byte order mark is dropped and ill-formed UTF-8 is replaced with U+FFFD, so
// the row pipeline only ever sees valid UTF-8 without line terminators.
// Memory use is bounded by the longest line, not by the file size.
package linesource

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/JonMunkholm/fileimport/internal/core"
)

// DefaultMaxLineSize bounds a single line. Longer lines fail with
// bufio.ErrTooLong.
const DefaultMaxLineSize = 1024 * 1024

// Options configures a Source.
type Options struct {
	// Charset is an IANA character set name such as "UTF-8", "ISO-8859-1",
	// "windows-1252" or "Shift_JIS". Empty means UTF-8.
	Charset string

	// MaxLineSize overrides DefaultMaxLineSize.
	MaxLineSize int
}

// Source is a single-pass line iterator over one file. It is not safe for
// concurrent use.
type Source struct {
	closer  io.Closer
	counter *countingReader
	scanner *bufio.Scanner
	line    int
}

// Open opens the file at path.
func Open(path string, opts Options) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	src, err := New(f, size, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.closer = f
	return src, nil
}

// New reads lines from r. size is the total byte size if known, 0 otherwise;
// it is only used by Progress.
func New(r io.Reader, size int64, opts Options) (*Source, error) {
	decoder, err := Decoder(opts.Charset)
	if err != nil {
		return nil, err
	}

	counter := &countingReader{reader: r, total: size}
	scanner := bufio.NewScanner(transform.NewReader(counter, decoder))

	maxLine := opts.MaxLineSize
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)

	return &Source{counter: counter, scanner: scanner}, nil
}

// Scan advances to the next line. It returns false at the end of the input
// or on a read error; check Err afterwards.
func (s *Source) Scan() bool {
	if !s.scanner.Scan() {
		return false
	}
	s.line++
	return true
}

// Text returns the current line without its terminator.
func (s *Source) Text() string { return s.scanner.Text() }

// Line returns the 1-based number of the current line.
func (s *Source) Line() int { return s.line }

// Err returns the first read error, nil at a clean end of input.
func (s *Source) Err() error {
	if err := s.scanner.Err(); err != nil {
		return fmt.Errorf("read line %d: %w", s.line+1, err)
	}
	return nil
}

// BytesRead returns the number of raw (undecoded) bytes consumed so far.
func (s *Source) BytesRead() int64 { return s.counter.read }

// Progress returns the read progress as a percentage (0-100), or 0 when the
// size is unknown.
func (s *Source) Progress() int { return s.counter.progress() }

// Close releases the underlying file, if Open created one.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// Decoder returns the transformer decoding charset to valid UTF-8.
//
// For UTF-8 a byte order mark is removed. A UTF-16 BOM switches decoding to
// UTF-16 regardless of charset.
func Decoder(charset string) (transform.Transformer, error) {
	enc, err := lookup(charset)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 {
		return unicode.BOMOverride(runes.ReplaceIllFormed()), nil
	}
	return transform.Chain(enc.NewDecoder(), runes.ReplaceIllFormed()), nil
}

func lookup(charset string) (encoding.Encoding, error) {
	name := strings.TrimSpace(charset)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, &core.ConfigError{Component: "line source", Field: "charset", Reason: fmt.Sprintf("unsupported charset %q", charset)}
	}
	return enc, nil
}

// countingReader tracks the raw bytes handed to the decoder.
type countingReader struct {
	reader io.Reader
	read   int64
	total  int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read += int64(n)
	return n, err
}

func (r *countingReader) progress() int {
	if r.total <= 0 {
		return 0
	}
	return int(r.read * 100 / r.total)
}
