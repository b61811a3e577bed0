// Package validate provides pure, stateless field validators for weighbot
// flows. Each validator parses a raw operator answer into a typed value or
// returns a reason suitable for a re-prompt. None perform I/O.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Identity number length bounds.
const (
	MinIdentityLen = 6
	MaxIdentityLen = 12
)

// Lot code length bounds.
const (
	MinLotCodeLen = 3
	MaxLotCodeLen = 30
)

// Error variables shared by validators.
var (
	ErrIdentityNotDigits = errors.New("identity must contain only digits")
	ErrIdentityLength    = errors.New("identity length must be between 6 and 12 digits")
	ErrPlateFormat       = errors.New("plate must be 3 letters followed by 3 digits")
	ErrWeightFormat      = errors.New("weight must be digits with an optional decimal part")
	ErrWeightZero        = errors.New("weight must be greater than zero")
	ErrWeightCeiling     = errors.New("weight exceeds the allowed maximum")
	ErrCountFormat       = errors.New("count must be a whole number")
	ErrCountRange        = errors.New("count is out of range")
	ErrRangeFormat       = errors.New("range must be two numbers separated by a hyphen")
	ErrRangeOrder        = errors.New("range start must not exceed range end")
	ErrRangeStart        = errors.New("range start must be at least 1")
	ErrRangeSpan         = errors.New("range covers too many entries")
	ErrLotCodeFormat     = errors.New("lot code must be 3-30 letters, digits, hyphens or underscores")
	ErrIndexFormat       = errors.New("index must be a number")
	ErrIndexUnknown      = errors.New("index is not one of the allowed values")
)

var (
	plateRe   = regexp.MustCompile(`^[A-Za-z]{3}[0-9]{3}$`)
	weightRe  = regexp.MustCompile(`^[0-9]+([.,][0-9]+)?$`)
	lotCodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	rangeRe   = regexp.MustCompile(`^([0-9]+)-([0-9]+)$`)
)

// Identity validates an identity number: all digits, length in [6,12].
func Identity(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", ErrIdentityNotDigits
		}
	}
	if len(raw) < MinIdentityLen || len(raw) > MaxIdentityLen {
		return "", ErrIdentityLength
	}
	return raw, nil
}

// Plate validates a vehicle plate: exactly 3 ASCII letters followed by
// exactly 3 digits, case-insensitive, normalized to uppercase.
func Plate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !plateRe.MatchString(raw) {
		return "", ErrPlateFormat
	}
	return strings.ToUpper(raw), nil
}

// WeightRule parameterizes decimal weight validation. Ceiling is the
// field-specific maximum; AllowZero permits a zero value.
type WeightRule struct {
	Ceiling   float64
	AllowZero bool
}

// Parse validates a decimal weight: digits with an optional fractional part
// separated by either '.' or ',', normalized to a dot-separated decimal.
func (r WeightRule) Parse(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if !weightRe.MatchString(raw) {
		return 0, ErrWeightFormat
	}
	normalized := strings.ReplaceAll(raw, ",", ".")
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, ErrWeightFormat
	}
	if value == 0 && !r.AllowZero {
		return 0, ErrWeightZero
	}
	if r.Ceiling > 0 && value > r.Ceiling {
		return 0, fmt.Errorf("%w (max %v)", ErrWeightCeiling, r.Ceiling)
	}
	return value, nil
}

// CountRule parameterizes integer count validation against [Min,Max].
type CountRule struct {
	Min int64
	Max int64
}

// Parse validates an integer count within the rule's bounds.
func (r CountRule) Parse(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrCountFormat
	}
	if value < r.Min || value > r.Max {
		return 0, fmt.Errorf("%w (%d-%d)", ErrCountRange, r.Min, r.Max)
	}
	return value, nil
}

// Range is a validated inclusive "A-B" span.
type Range struct {
	Start int
	End   int
}

// Span returns the number of entries the range covers.
func (r Range) Span() int { return r.End - r.Start + 1 }

// RangeRule parameterizes "A-B" range validation. ForbidZero requires
// A >= 1; MaxSpan, when positive, caps B-A+1.
type RangeRule struct {
	ForbidZero bool
	MaxSpan    int
}

// Parse validates a range of two non-negative integers separated by a
// hyphen, requiring A <= B.
func (r RangeRule) Parse(raw string) (Range, error) {
	m := rangeRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Range{}, ErrRangeFormat
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return Range{}, ErrRangeFormat
	}
	end, err := strconv.Atoi(m[2])
	if err != nil {
		return Range{}, ErrRangeFormat
	}
	if start > end {
		return Range{}, ErrRangeOrder
	}
	if r.ForbidZero && start < 1 {
		return Range{}, ErrRangeStart
	}
	rng := Range{Start: start, End: end}
	if r.MaxSpan > 0 && rng.Span() > r.MaxSpan {
		return Range{}, fmt.Errorf("%w (max %d)", ErrRangeSpan, r.MaxSpan)
	}
	return rng, nil
}

// LotCode validates an alphanumeric lot code allowing hyphen and underscore,
// length in [3,30], no embedded whitespace.
func LotCode(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < MinLotCodeLen || len(raw) > MaxLotCodeLen {
		return "", ErrLotCodeFormat
	}
	if !lotCodeRe.MatchString(raw) {
		return "", ErrLotCodeFormat
	}
	return raw, nil
}

// IndexRule validates an integer index against a finite allowed set, such
// as the numbered silos on site.
type IndexRule struct {
	Allowed []int
}

// Parse validates that raw is one of the allowed indices.
func (r IndexRule) Parse(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, ErrIndexFormat
	}
	for _, allowed := range r.Allowed {
		if value == allowed {
			return value, nil
		}
	}
	return 0, ErrIndexUnknown
}
