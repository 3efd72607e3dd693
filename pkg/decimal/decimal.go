// Package decimal implements exact fixed-scale decimal arithmetic for
// tenor runtime values (spec §3 Runtime Value, §4.5 Phase A comparisons).
//
// Floating point never enters value space (spec §1 Non-goals). Values
// are held as an exact big.Rat internally and rendered to a decimal
// string at a declared scale only on demand, following the same
// big.Rat-based scaling and rounding approach the teacher repo uses for
// its CSNF decimal profile.
package decimal

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Rounding selects how NormalizeTo resolves a remainder.
type Rounding string

const (
	RoundDown     Rounding = "DOWN"
	RoundHalfUp   Rounding = "HALF_UP"
	RoundHalfEven Rounding = "HALF_EVEN"
)

var decimalPattern = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// Decimal is an exact rational number, normally constrained to a
// declared (precision, scale) pair by the type system in pkg/interchange.
type Decimal struct {
	rat *big.Rat
}

// Parse parses a decimal literal string (the lexer's decimal token text).
func Parse(s string) (Decimal, error) {
	if !decimalPattern.MatchString(s) {
		return Decimal{}, fmt.Errorf("decimal: invalid literal %q", s)
	}
	r := new(big.Rat)
	if _, ok := r.SetString(s); !ok {
		return Decimal{}, fmt.Errorf("decimal: could not parse %q", s)
	}
	return Decimal{rat: r}, nil
}

// FromInt64 constructs an exact decimal from an integer.
func FromInt64(n int64) Decimal {
	return Decimal{rat: new(big.Rat).SetInt64(n)}
}

// MustParse panics on invalid input; for use with literal constants.
func MustParse(s string) Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsZero reports whether the value is exactly zero.
func (d Decimal) IsZero() bool { return d.rat == nil || d.rat.Sign() == 0 }

// Cmp compares d to other: -1, 0, 1.
func (d Decimal) Cmp(other Decimal) int { return d.ratOrZero().Cmp(other.ratOrZero()) }

func (d Decimal) ratOrZero() *big.Rat {
	if d.rat == nil {
		return new(big.Rat)
	}
	return d.rat
}

// Add, Sub, Mul return exact results; scale is applied only at rendering
// time via NormalizeTo, matching the spec's "exact decimal, declared
// precision/scale" value model.
func (d Decimal) Add(other Decimal) Decimal {
	return Decimal{rat: new(big.Rat).Add(d.ratOrZero(), other.ratOrZero())}
}

func (d Decimal) Sub(other Decimal) Decimal {
	return Decimal{rat: new(big.Rat).Sub(d.ratOrZero(), other.ratOrZero())}
}

func (d Decimal) Mul(other Decimal) Decimal {
	return Decimal{rat: new(big.Rat).Mul(d.ratOrZero(), other.ratOrZero())}
}

// NormalizeTo renders d to exactly `scale` fractional digits using the
// given rounding mode, matching spec §4.4's "trailing zeros are
// preserved" wire format requirement.
func (d Decimal) NormalizeTo(scale int, rounding Rounding) string {
	return formatScaled(d.ratOrZero(), scale, rounding)
}

// String renders the exact value in big.Rat's RatString form (an
// integer such as "3", or a reduced fraction such as "3/2"), used for
// debugging only — wire serialization always goes through NormalizeTo
// with a declared scale.
func (d Decimal) String() string {
	if d.rat == nil {
		return "0"
	}
	return d.rat.RatString()
}

func formatScaled(rat *big.Rat, scale int, rounding Rounding) string {
	scaleFactor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scaleFactor))

	intPart := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	remainder := new(big.Int).Rem(scaled.Num(), scaled.Denom())

	if remainder.Sign() != 0 {
		// Compare 2*|remainder| against the denominator so an odd
		// denominator does not turn "below half" into "exactly half".
		twiceRemainder := new(big.Int).Lsh(new(big.Int).Abs(remainder), 1)
		cmp := twiceRemainder.Cmp(scaled.Denom())
		switch rounding {
		case RoundDown:
			// truncate toward zero; nothing to do
		case RoundHalfUp:
			if cmp >= 0 {
				intPart = bumpAwayFromZero(intPart, scaled.Sign())
			}
		case RoundHalfEven:
			if cmp > 0 || (cmp == 0 && new(big.Int).And(intPart, big.NewInt(1)).Sign() != 0) {
				intPart = bumpAwayFromZero(intPart, scaled.Sign())
			}
		}
	}

	sign := ""
	if intPart.Sign() < 0 {
		sign = "-"
		intPart.Abs(intPart)
	}
	intStr := intPart.String()
	if scale == 0 {
		if sign == "-" && intStr == "0" {
			return "0"
		}
		return sign + intStr
	}
	for len(intStr) <= scale {
		intStr = "0" + intStr
	}
	insertAt := len(intStr) - scale
	result := sign + intStr[:insertAt] + "." + intStr[insertAt:]
	if sign == "-" && isAllZeroDigits(intStr) {
		result = intStr[:insertAt] + "." + intStr[insertAt:]
	}
	return result
}

func bumpAwayFromZero(n *big.Int, sign int) *big.Int {
	if sign < 0 {
		return new(big.Int).Sub(n, big.NewInt(1))
	}
	return new(big.Int).Add(n, big.NewInt(1))
}

func isAllZeroDigits(s string) bool {
	return strings.Trim(s, "0") == ""
}
