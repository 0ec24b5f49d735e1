package codec

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/fileimport/internal/core"
)

// NumberFormat describes how numbers are written in a file. The zero value
// accepts plain numbers such as "-1234.5".
type NumberFormat struct {
	// Grouping is the thousands separator, removed before parsing. Zero
	// means numbers carry no grouping.
	Grouping rune
	// Decimal is the decimal point. Zero means '.'.
	Decimal rune
}

// normalize rewrites s into the plain "-1234.5" form.
func (f NumberFormat) normalize(s string) string {
	if f.Grouping != 0 {
		s = strings.ReplaceAll(s, string(f.Grouping), "")
	}
	if f.Decimal != 0 && f.Decimal != '.' {
		s = strings.ReplaceAll(s, string(f.Decimal), ".")
	}
	return s
}

func (f NumberFormat) validate(component string) error {
	if f.Grouping != 0 && f.Grouping == f.Decimal {
		return &core.ConfigError{Component: component, Field: "format", Reason: "grouping and decimal separator must differ"}
	}
	if f.Grouping == '.' && f.Decimal == 0 {
		return &core.ConfigError{Component: component, Field: "format", Reason: "grouping '.' needs an explicit decimal separator"}
	}
	return nil
}

// Float is a double precision column. NaN and infinities are rejected.
type Float struct {
	NotNull bool
	Format  NumberFormat
}

func (t Float) Name() string   { return "float" }
func (t Float) Nullable() bool { return !t.NotNull }

func (t Float) Validate() error { return t.Format.validate("float column") }

func (t Float) Decode(raw string, present bool) (float64, bool, error) {
	ok, err := nullCheck(t.Name(), t.NotNull, raw, present, true)
	if !ok {
		return 0, false, err
	}

	f, err := strconv.ParseFloat(t.Format.normalize(raw), 64)
	switch {
	case err != nil && !isRangeError(err):
		return 0, false, formatError(t.Name(), raw, err)
	case math.IsNaN(f):
		return 0, false, &ValidationError{Code: CodeFloatNaN, Value: raw}
	case math.IsInf(f, 0):
		return 0, false, &ValidationError{Code: CodeFloatInfinity, Value: raw}
	}
	return f, true, nil
}

func (t Float) Value(raw string, present bool) (any, error) {
	return value[float64](t.Decode(raw, present))
}

func isRangeError(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// RoundingMode selects how Decimal drops excess fractional digits.
type RoundingMode int

const (
	// RoundNone rejects values with more fractional digits than the scale.
	RoundNone RoundingMode = iota
	RoundHalfUp
	RoundHalfDown
	RoundHalfEven
	RoundUp // away from zero
	RoundDown
	RoundCeiling
	RoundFloor
)

var roundingNames = map[string]RoundingMode{
	"":          RoundNone,
	"none":      RoundNone,
	"half_up":   RoundHalfUp,
	"half_down": RoundHalfDown,
	"half_even": RoundHalfEven,
	"up":        RoundUp,
	"down":      RoundDown,
	"ceiling":   RoundCeiling,
	"floor":     RoundFloor,
}

// ParseRoundingMode accepts the names half_up, half_down, half_even, up,
// down, ceiling, floor and none (case-insensitive, '-' allowed for '_').
func ParseRoundingMode(s string) (RoundingMode, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	m, ok := roundingNames[key]
	if !ok {
		return RoundNone, fmt.Errorf("unknown rounding mode %q", s)
	}
	return m, nil
}

// decimalRegex matches a normalized decimal literal with an optional exponent.
var decimalRegex = regexp.MustCompile(`^([+-]?)(\d*)(?:\.(\d*))?(?:[eE]([+-]?\d+))?$`)

// Decimal is an exact numeric(Precision, Scale) column.
//
// Values with fewer fractional digits than Scale are padded. Values with
// more are rounded with Rounding, or rejected when Rounding is RoundNone.
// The precision check runs on the final value.
type Decimal struct {
	NotNull   bool
	Precision int
	Scale     int
	Rounding  RoundingMode
	Format    NumberFormat
}

func (t Decimal) Name() string   { return "decimal" }
func (t Decimal) Nullable() bool { return !t.NotNull }

func (t Decimal) Validate() error {
	if t.Precision <= 0 {
		return &core.ConfigError{Component: "decimal column", Field: "precision", Reason: fmt.Sprintf("must be positive, got %d", t.Precision)}
	}
	if t.Scale < 0 || t.Scale > t.Precision {
		return &core.ConfigError{Component: "decimal column", Field: "scale", Reason: fmt.Sprintf("must be within [0, %d], got %d", t.Precision, t.Scale)}
	}
	if t.Rounding < RoundNone || t.Rounding > RoundFloor {
		return &core.ConfigError{Component: "decimal column", Field: "rounding", Reason: fmt.Sprintf("unknown mode %d", t.Rounding)}
	}
	return t.Format.validate("decimal column")
}

func (t Decimal) Decode(raw string, present bool) (pgtype.Numeric, bool, error) {
	ok, err := nullCheck(t.Name(), t.NotNull, raw, present, true)
	if !ok {
		return pgtype.Numeric{}, false, err
	}

	d, err := parseDecimal(t.Format.normalize(raw))
	if err != nil {
		return pgtype.Numeric{}, false, formatError(t.Name(), raw, err)
	}

	if d.scale > int64(t.Scale) && t.Rounding == RoundNone {
		return pgtype.Numeric{}, false, &ValidationError{
			Code:   CodeDecimalScale,
			Value:  raw,
			Detail: fmt.Sprintf("scale %d > %d", d.scale, t.Scale),
		}
	}
	if d.digits == "" {
		return pgtype.Numeric{Int: new(big.Int), Exp: int32(-t.Scale), Valid: true}, true, nil
	}

	// integer digits are known before any scaling, so the exponent never
	// reaches pow10 unchecked
	if intDigits := int64(len(d.digits)) - d.scale; intDigits > int64(t.Precision-t.Scale) {
		return pgtype.Numeric{}, false, &ValidationError{
			Code:   CodeDecimalPrecision,
			Value:  raw,
			Detail: fmt.Sprintf("precision %d > %d", intDigits+int64(t.Scale), t.Precision),
		}
	}

	unscaled, _ := new(big.Int).SetString(d.digits, 10)
	if d.negative {
		unscaled.Neg(unscaled)
	}

	if d.scale <= int64(t.Scale) {
		unscaled.Mul(unscaled, pow10(int(int64(t.Scale)-d.scale)))
	} else {
		drop := d.scale - int64(t.Scale)
		if drop > int64(len(d.digits)) {
			// below a tenth of the last unit: only the sign matters
			unscaled.SetInt64(int64(unscaled.Sign()))
			drop = 2
		}
		unscaled = roundDown(unscaled, int(drop), t.Rounding)
	}

	if p := digits(unscaled); p > t.Precision {
		return pgtype.Numeric{}, false, &ValidationError{
			Code:   CodeDecimalPrecision,
			Value:  raw,
			Detail: fmt.Sprintf("precision %d > %d", p, t.Precision),
		}
	}

	return pgtype.Numeric{Int: unscaled, Exp: int32(-t.Scale), Valid: true}, true, nil
}

func (t Decimal) Value(raw string, present bool) (any, error) {
	return value[pgtype.Numeric](t.Decode(raw, present))
}

// maxExponent clamps exponents that do not fit an int64. Anything that large
// fails the precision check or rounds to the last unit anyway.
const maxExponent = 1 << 40

// parsedDecimal is digits * 10^-scale. digits has no leading zeros and is
// empty for zero.
type parsedDecimal struct {
	negative bool
	digits   string
	scale    int64
}

func parseDecimal(s string) (parsedDecimal, error) {
	m := decimalRegex.FindStringSubmatch(s)
	if m == nil || (m[2] == "" && m[3] == "") {
		return parsedDecimal{}, fmt.Errorf("not a decimal number")
	}
	sign, intPart, fracPart, expPart := m[1], m[2], m[3], m[4]

	d := parsedDecimal{
		negative: sign == "-",
		digits:   strings.TrimLeft(intPart+fracPart, "0"),
		scale:    int64(len(fracPart)),
	}
	if expPart != "" {
		exp, err := strconv.ParseInt(expPart, 10, 64)
		switch {
		case isRangeError(err):
			exp = maxExponent
			if strings.HasPrefix(expPart, "-") {
				exp = -maxExponent
			}
		case err != nil:
			return parsedDecimal{}, err
		}
		exp = max(-maxExponent, min(exp, maxExponent))
		d.scale -= exp
	}
	return d, nil
}

// roundDown removes drop trailing digits from n, rounding with mode.
func roundDown(n *big.Int, drop int, mode RoundingMode) *big.Int {
	divisor := pow10(drop)
	q, r := new(big.Int).QuoRem(n, divisor, new(big.Int))
	if r.Sign() == 0 {
		return q
	}

	sign := n.Sign()
	// compare 2*|r| with the divisor to find which side of the half r is on
	half := new(big.Int).Abs(r)
	half.Lsh(half, 1)
	cmp := half.Cmp(divisor)

	var away bool
	switch mode {
	case RoundUp:
		away = true
	case RoundDown:
		away = false
	case RoundCeiling:
		away = sign > 0
	case RoundFloor:
		away = sign < 0
	case RoundHalfUp:
		away = cmp >= 0
	case RoundHalfDown:
		away = cmp > 0
	case RoundHalfEven:
		away = cmp > 0 || (cmp == 0 && q.Bit(0) == 1)
	}

	if away {
		q.Add(q, big.NewInt(int64(sign)))
	}
	return q
}

// digits is the number of decimal digits of |n|, 1 for zero.
func digits(n *big.Int) int {
	if n.Sign() == 0 {
		return 1
	}
	return len(new(big.Int).Abs(n).String())
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
