// Package jobdef reads import job definitions and builds their row chains.
//
// A job file (YAML, TOML or JSON) describes where the files are, how lines
// are split and classified, the typed columns and the INSERT statement the
// rows are written with:
//
//	name: orders
//	directory: /data/incoming
//	pattern: '^orders_\d{8}\.csv$'
//	charset: ISO-8859-1
//	header_rows: 1
//	batch_size: 500
//	commit_mode: deferred
//	insert_sql: INSERT INTO orders (id, placed, amount) VALUES ($1, $2, $3)
//	columns:
//	  - {type: int64, not_null: true}
//	  - {type: date, layout: "02.01.2006"}
//	  - {type: decimal, precision: 12, scale: 2, rounding: half_up}
package jobdef

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"

	"github.com/JonMunkholm/fileimport/internal/codec"
	"github.com/JonMunkholm/fileimport/internal/core"
	"github.com/JonMunkholm/fileimport/internal/sink"
)

// Split formats.
const (
	FormatCSV       = "csv"
	FormatSeparated = "separated"
)

// Column is one typed column of a job.
type Column struct {
	Type    string `mapstructure:"type"`
	Name    string `mapstructure:"name"`
	NotNull bool   `mapstructure:"not_null"`

	// varchar
	Length int `mapstructure:"length"`

	// decimal and float
	Precision    int    `mapstructure:"precision"`
	Scale        int    `mapstructure:"scale"`
	Rounding     string `mapstructure:"rounding"`
	Grouping     string `mapstructure:"grouping"`
	DecimalPoint string `mapstructure:"decimal_point"`

	// date, time and timestamp
	Layout   string `mapstructure:"layout"`
	Location string `mapstructure:"location"`
}

// Job is one import job definition.
type Job struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`

	Directory      string `mapstructure:"directory"`
	Pattern        string `mapstructure:"pattern"`
	Charset        string `mapstructure:"charset"`
	SkipBlankLines bool   `mapstructure:"skip_blank_lines"`

	Format     string   `mapstructure:"format"`
	Separator  string   `mapstructure:"separator"`
	Quote      string   `mapstructure:"quote"`
	HeaderRows int      `mapstructure:"header_rows"`
	Allow      []string `mapstructure:"allow"`

	InsertSQL         string   `mapstructure:"insert_sql"`
	BatchSize         int      `mapstructure:"batch_size"`
	CommitMode        string   `mapstructure:"commit_mode"`
	AllowFewerColumns bool     `mapstructure:"allow_fewer_columns"`
	Columns           []Column `mapstructure:"columns"`

	// Path is the file the job was loaded from.
	Path string `mapstructure:"-"`
}

// Defaults are the process-wide values a job file may leave out.
type Defaults struct {
	BatchSize  int
	CommitMode string
	Charset    string
}

// Load reads the job file at path. The file type is taken from its
// extension. A job without a name is named after its file.
func Load(path string, defaults Defaults) (*Job, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("format", FormatCSV)
	v.SetDefault("allow", []string{core.RowData.String()})
	v.SetDefault("allow_fewer_columns", true)
	v.SetDefault("batch_size", defaults.BatchSize)
	v.SetDefault("commit_mode", defaults.CommitMode)
	v.SetDefault("charset", defaults.Charset)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read job %s: %w", path, err)
	}

	var job Job
	if err := v.Unmarshal(&job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", path, err)
	}
	job.Path = path
	if job.Name == "" {
		base := filepath.Base(path)
		job.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}
	return &job, nil
}

// Validate checks every setting that can be checked without a database.
func (j *Job) Validate() error {
	if j.InsertSQL == "" {
		return j.configError("insert_sql", "is required")
	}
	if _, err := j.FilePattern(); err != nil {
		return err
	}
	if _, err := j.Splitter(); err != nil {
		return err
	}
	if _, err := j.AllowSet(); err != nil {
		return err
	}
	if j.HeaderRows < 0 {
		return j.configError("header_rows", "must not be negative")
	}
	if j.BatchSize < 0 {
		return j.configError("batch_size", "must not be negative")
	}
	if _, err := sink.ParseCommitMode(j.CommitMode); err != nil {
		return err
	}
	cols, err := j.CodecColumns()
	if err != nil {
		return err
	}
	return codec.Validate(cols...)
}

// FilePattern compiles Pattern. An empty pattern matches every file.
func (j *Job) FilePattern() (*regexp.Regexp, error) {
	if j.Pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(j.Pattern)
	if err != nil {
		return nil, j.configError("pattern", err.Error())
	}
	return re, nil
}

// Splitter returns the line splitter. A CSV splitter stops after the last
// typed column.
func (j *Job) Splitter() (core.Splitter, error) {
	switch strings.ToLower(j.Format) {
	case FormatCSV, "":
		sep, err := j.singleByte("separator", j.Separator)
		if err != nil {
			return nil, err
		}
		quote, err := j.singleByte("quote", j.Quote)
		if err != nil {
			return nil, err
		}
		return core.CSVSplitter{Separator: sep, Quote: quote, MaxColumns: len(j.Columns)}, nil
	case FormatSeparated:
		return core.NewSeparatorSplitter(j.Separator)
	default:
		return nil, j.configError("format", fmt.Sprintf("unknown format %q", j.Format))
	}
}

func (j *Job) singleByte(field, s string) (byte, error) {
	switch len(s) {
	case 0:
		return 0, nil
	case 1:
		return s[0], nil
	default:
		return 0, j.configError(field, fmt.Sprintf("must be a single ASCII character, got %q", s))
	}
}

// AllowSet returns the row types that reach the sink.
func (j *Job) AllowSet() (core.RowTypeSet, error) {
	types := make([]core.RowType, 0, len(j.Allow))
	for _, name := range j.Allow {
		t, err := core.ParseRowType(name)
		if err != nil {
			return nil, j.configError("allow", err.Error())
		}
		types = append(types, t)
	}
	return core.NewRowTypeSet(types...), nil
}

// CodecColumns returns the typed columns in statement parameter order.
func (j *Job) CodecColumns() ([]codec.Column, error) {
	if len(j.Columns) == 0 {
		return nil, j.configError("columns", "must not be empty")
	}
	cols := make([]codec.Column, len(j.Columns))
	for i, c := range j.Columns {
		col, err := c.codec()
		if err != nil {
			return nil, j.configError(fmt.Sprintf("columns[%d]", i), err.Error())
		}
		cols[i] = col
	}
	return cols, nil
}

func (j *Job) configError(field, reason string) error {
	return &core.ConfigError{Component: "job " + j.Name, Field: field, Reason: reason}
}

func (c Column) codec() (codec.Column, error) {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "int16", "smallint":
		return codec.Int16{NotNull: c.NotNull}, nil
	case "int32", "int", "integer":
		return codec.Int32{NotNull: c.NotNull}, nil
	case "int64", "bigint":
		return codec.Int64{NotNull: c.NotNull}, nil
	case "float", "double":
		format, err := c.numberFormat()
		if err != nil {
			return nil, err
		}
		return codec.Float{NotNull: c.NotNull, Format: format}, nil
	case "decimal", "numeric":
		format, err := c.numberFormat()
		if err != nil {
			return nil, err
		}
		rounding, err := codec.ParseRoundingMode(c.Rounding)
		if err != nil {
			return nil, err
		}
		return codec.Decimal{NotNull: c.NotNull, Precision: c.Precision, Scale: c.Scale, Rounding: rounding, Format: format}, nil
	case "bool", "boolean":
		return codec.Bool{NotNull: c.NotNull}, nil
	case "date":
		return codec.Date{NotNull: c.NotNull, Layout: c.Layout}, nil
	case "time":
		return codec.Time{NotNull: c.NotNull, Layout: c.Layout}, nil
	case "timestamp", "datetime":
		loc, err := codec.LoadLocation(c.Location)
		if err != nil {
			return nil, err
		}
		return codec.Timestamp{NotNull: c.NotNull, Layout: c.Layout, Location: loc}, nil
	case "varchar":
		return codec.VarChar{NotNull: c.NotNull, Length: c.Length}, nil
	case "text":
		return codec.Text{NotNull: c.NotNull}, nil
	case "uuid":
		return codec.UUID{NotNull: c.NotNull}, nil
	default:
		return nil, fmt.Errorf("unknown column type %q", c.Type)
	}
}

func (c Column) numberFormat() (codec.NumberFormat, error) {
	grouping, err := singleRune("grouping", c.Grouping)
	if err != nil {
		return codec.NumberFormat{}, err
	}
	decimal, err := singleRune("decimal_point", c.DecimalPoint)
	if err != nil {
		return codec.NumberFormat{}, err
	}
	return codec.NumberFormat{Grouping: grouping, Decimal: decimal}, nil
}

func singleRune(field, s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return 0, fmt.Errorf("%s must be a single character, got %q", field, s)
	}
	return r, nil
}
