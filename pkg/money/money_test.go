package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetBreakdown(t *testing.T) {
	net := Net(MustParse("10000.00"), MustParse("500.00"), MustParse("100.00"), MustParse("90.00"), MustParse("-10.00"))
	assert.True(t, net.Equal(MustParse("9300.00")), net.String())
}

func TestHasAtMostTwoDecimals(t *testing.T) {
	assert.True(t, HasAtMostTwoDecimals(MustParse("12.34")))
	assert.True(t, HasAtMostTwoDecimals(MustParse("12")))
	assert.False(t, HasAtMostTwoDecimals(MustParse("12.345")))
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(MustParse("100.00"), MustParse("100.01")))
	assert.True(t, WithinTolerance(MustParse("100.01"), MustParse("100.00")))
	assert.False(t, WithinTolerance(MustParse("100.00"), MustParse("100.02")))
}

func TestMinorUnits(t *testing.T) {
	units, err := ToMinorUnits(MustParse("9310.50"), "INR")
	require.NoError(t, err)
	assert.Equal(t, int64(931050), units)

	units, err = ToMinorUnits(MustParse("500"), "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(500), units)

	_, err = ToMinorUnits(MustParse("1.005"), "USD")
	assert.Error(t, err)

	assert.True(t, FromMinorUnits(931050, "INR").Equal(MustParse("9310.50")))
	assert.True(t, FromMinorUnits(1234, "kwd").Equal(decimal.RequireFromString("1.234")))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("12,00")
	assert.Error(t, err)
}
