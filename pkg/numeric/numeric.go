// Package numeric normalizes caller supplied numbers into decimal.Decimal
// and renders them back to the text form embedded in requests.
package numeric

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hibachi/pkg/errs"
)

var decimalText = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Parse converts text, integers, floats or decimals into a decimal.
// Text must match ^\d+(\.\d+)?$; negative, NaN and infinite values are
// rejected with errs.ErrInvalidNumericInput.
func Parse(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case string:
		return parseText(n)
	case decimal.Decimal:
		return checkSign(n)
	case *decimal.Decimal:
		if n == nil {
			return decimal.Decimal{}, fmt.Errorf("%w: nil", errs.ErrInvalidNumericInput)
		}
		return checkSign(*n)
	case int:
		return checkSign(decimal.NewFromInt(int64(n)))
	case int32:
		return checkSign(decimal.NewFromInt32(n))
	case int64:
		return checkSign(decimal.NewFromInt(n))
	case uint:
		return parseText(strconv.FormatUint(uint64(n), 10))
	case uint32:
		return parseText(strconv.FormatUint(uint64(n), 10))
	case uint64:
		return parseText(strconv.FormatUint(n, 10))
	case float32:
		return parseFloat(float64(n), 32)
	case float64:
		return parseFloat(n, 64)
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unsupported type %T", errs.ErrInvalidNumericInput, v)
	}
}

// ParseOptional is Parse with absence preserved: nil and nil pointers yield
// a nil result, never zero.
func ParseOptional(v any) (*decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case *decimal.Decimal:
		if n == nil {
			return nil, nil
		}
	case *string:
		if n == nil {
			return nil, nil
		}
		v = *n
	case *float64:
		if n == nil {
			return nil, nil
		}
		v = *n
	}
	d, err := Parse(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MustParse panics on invalid input. Intended for literals.
func MustParse(v any) decimal.Decimal {
	d, err := Parse(v)
	if err != nil {
		panic(err)
	}
	return d
}

// Ptr parses v and returns a pointer, for filling optional fields.
func Ptr(v any) *decimal.Decimal {
	d := MustParse(v)
	return &d
}

// Format renders d in plain notation keeping its own scale, so "1.500"
// stays "1.500" and 1e-5 becomes "0.00001".
func Format(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.StringFixed(0)
}

// FormatOptional returns "" for an absent value.
func FormatOptional(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return Format(*d)
}

func parseText(s string) (decimal.Decimal, error) {
	if !decimalText.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", errs.ErrInvalidNumericInput, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q: %v", errs.ErrInvalidNumericInput, s, err)
	}
	return d, nil
}

func parseFloat(f float64, bits int) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", errs.ErrInvalidNumericInput, f)
	}
	// The shortest round-trip text keeps 0.1 as 0.1 rather than its binary expansion.
	return parseText(strconv.FormatFloat(f, 'f', -1, bits))
}

func checkSign(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative value %s", errs.ErrInvalidNumericInput, d.String())
	}
	return d, nil
}
