package decimal_test

import (
	"testing"

	"github.com/riverline-labs/tenor/pkg/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PreservesExactValue(t *testing.T) {
	d, err := decimal.Parse("19.990")
	require.NoError(t, err)
	assert.Equal(t, "19.9900", d.NormalizeTo(4, decimal.RoundDown))
}

func TestNormalizeTo_HalfUp(t *testing.T) {
	d := decimal.MustParse("1.005")
	assert.Equal(t, "1.01", d.NormalizeTo(2, decimal.RoundHalfUp))
	assert.Equal(t, "1.00", d.NormalizeTo(2, decimal.RoundDown))
}

func TestNormalizeTo_HalfEven(t *testing.T) {
	assert.Equal(t, "2.00", decimal.MustParse("1.995").NormalizeTo(2, decimal.RoundHalfEven))
	assert.Equal(t, "2.00", decimal.MustParse("2.005").NormalizeTo(2, decimal.RoundHalfEven))
}

func TestArithmeticIsExact(t *testing.T) {
	a := decimal.MustParse("0.1")
	b := decimal.MustParse("0.2")
	sum := a.Add(b)
	assert.Equal(t, "0.30", sum.NormalizeTo(2, decimal.RoundDown))
}

func TestCmp(t *testing.T) {
	assert.Equal(t, -1, decimal.MustParse("1.0").Cmp(decimal.MustParse("2.0")))
	assert.Equal(t, 0, decimal.MustParse("1.50").Cmp(decimal.MustParse("1.5")))
}

func TestIntRange_MulLiteral(t *testing.T) {
	r := decimal.IntRange{Min: 0, Max: 10}
	got := r.MulLiteral(3)
	assert.Equal(t, decimal.IntRange{Min: 0, Max: 30}, got)
}

func TestIntRange_MulNegative(t *testing.T) {
	r := decimal.IntRange{Min: -5, Max: 10}
	got := r.MulLiteral(-2)
	assert.Equal(t, decimal.IntRange{Min: -20, Max: 10}, got)
}

func TestIntRange_Within(t *testing.T) {
	r := decimal.IntRange{Min: 0, Max: 30}
	assert.True(t, r.Within(decimal.IntRange{Min: 0, Max: 100}))
	assert.False(t, r.Within(decimal.IntRange{Min: 0, Max: 20}))
}
