package linesource

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"

	"github.com/JonMunkholm/fileimport/internal/core"
)

func readAll(t *testing.T, src *Source) []string {
	t.Helper()
	var lines []string
	for src.Scan() {
		lines = append(lines, src.Text())
		assert.Equal(t, len(lines), src.Line())
	}
	require.NoError(t, src.Err())
	return lines
}

func TestSource_Lines(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []string
	}{
		{"unix endings", []byte("a,b\nc,d\n"), []string{"a,b", "c,d"}},
		{"windows endings", []byte("a,b\r\nc,d\r\n"), []string{"a,b", "c,d"}},
		{"no final newline", []byte("a\nb"), []string{"a", "b"}},
		{"blank line kept", []byte("a\n\nb\n"), []string{"a", "", "b"}},
		{"empty input", []byte{}, nil},
		{"utf-8 bom", append([]byte{0xEF, 0xBB, 0xBF}, "id,name\n1,x\n"...), []string{"id,name", "1,x"}},
		{"only bom", []byte{0xEF, 0xBB, 0xBF}, nil},
		{"invalid byte replaced", []byte{'h', 'e', 0x80, 'l', 'o'}, []string{"he�lo"}},
		{"multibyte", []byte("grüße,日本\n"), []string{"grüße,日本"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(bytes.NewReader(tt.input), int64(len(tt.input)), Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, readAll(t, src))
			assert.Equal(t, int64(len(tt.input)), src.BytesRead())
			require.NoError(t, src.Close())
		})
	}
}

func TestSource_Charsets(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String("café,Zürich\n")
	require.NoError(t, err)
	sjis, err := japanese.ShiftJIS.NewEncoder().String("東京,大阪\n")
	require.NoError(t, err)

	tests := []struct {
		charset string
		input   string
		want    string
	}{
		{"ISO-8859-1", latin1, "café,Zürich"},
		{"Shift_JIS", sjis, "東京,大阪"},
		{"UTF-8", "café\n", "café"},
		{"", "café\n", "café"},
	}

	for _, tt := range tests {
		t.Run(tt.charset, func(t *testing.T) {
			src, err := New(strings.NewReader(tt.input), 0, Options{Charset: tt.charset})
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, readAll(t, src))
		})
	}
}

func TestSource_UTF16WithBOM(t *testing.T) {
	// "a,b\n" in UTF-16LE with a BOM
	input := []byte{0xFF, 0xFE, 'a', 0, ',', 0, 'b', 0, '\n', 0}
	src, err := New(bytes.NewReader(input), 0, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a,b"}, readAll(t, src))
}

func TestSource_UnknownCharset(t *testing.T) {
	_, err := New(strings.NewReader("x"), 0, Options{Charset: "klingon-8"})
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
}

func TestSource_LineTooLong(t *testing.T) {
	input := strings.Repeat("x", 100) + "\n"
	src, err := New(strings.NewReader(input), 0, Options{MaxLineSize: 16})
	require.NoError(t, err)

	assert.False(t, src.Scan())
	err = src.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, bufio.ErrTooLong))
}

func TestSource_Progress(t *testing.T) {
	input := strings.Repeat("0123456789\n", 100)
	src, err := New(strings.NewReader(input), int64(len(input)), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, src.Progress())
	lines := readAll(t, src)
	assert.Len(t, lines, 100)
	assert.Equal(t, 100, src.Progress())

	unknown, err := New(strings.NewReader(input), 0, Options{})
	require.NoError(t, err)
	readAll(t, unknown)
	assert.Equal(t, 0, unknown.Progress())
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("h\n1\n2\n"), 0o600))

	src, err := Open(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"h", "1", "2"}, readAll(t, src))
	assert.Equal(t, 100, src.Progress())
	require.NoError(t, src.Close())
	require.NoError(t, src.Close(), "second close is a no-op")

	_, err = Open(filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
