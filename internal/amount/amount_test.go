package amount

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals int
		expected string
	}{
		{"truncates without rounding", "12.3456789", 6, "12.345678"},
		{"collapses extra points", "1.2.3", 6, "1.23"},
		{"drops non-digits", "1a2b.3c", 18, "12.3"},
		{"drops thousands separator", "1,000.5", 6, "1000.5"},
		{"leading point", ".5", 6, "0.5"},
		{"trailing point kept while typing", "7.", 6, "7."},
		{"integer", "42", 6, "42"},
		{"zero decimals drops fraction", "3.99", 0, "3"},
		{"empty", "", 6, ""},
		{"garbage", "abc", 6, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseAmount(tt.input, tt.decimals))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		value       string
		maxDecimals int
		expected    string
	}{
		{"0.0000001", 6, "<0.000001"},
		{"0", 6, "0"},
		{"0.000001", 6, "0.000001"},
		{"1234.56789", 2, "1234.56"},
		{"1.500000", 6, "1.5"},
		{"200", 6, "200"},
		{"not a number", 6, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatNumber(tt.value, tt.maxDecimals))
		})
	}
}

func TestToUnits(t *testing.T) {
	got, err := ToUnits("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", got.String())

	got, err = ToUnits("12.3456789", 6)
	require.NoError(t, err)
	assert.Equal(t, "12345678", got.String(), "digits beyond precision are truncated")

	got, err = ToUnits("", 18)
	require.NoError(t, err)
	assert.Zero(t, got.Sign())

	_, err = ToUnits("-1", 18)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ToUnits("1.2.3", 18)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormatUnits(t *testing.T) {
	raw, _ := new(big.Int).SetString("200000000000000000000", 10)
	assert.Equal(t, "200", FormatUnits(raw, 18))
	assert.Equal(t, "1.5", FormatUnits(big.NewInt(1_500_000), 6))
	assert.Equal(t, "0", FormatUnits(nil, 18))

	assert.Equal(t, "<0.000001", FormatBalance(big.NewInt(1), 18, 6))
}

func TestApplySlippage(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		bps      BPS
		expected int64
	}{
		{"0.5% of 10000", 10_000, 50, 9_950},
		{"zero tolerance", 10_000, 0, 10_000},
		{"truncates", 999, 50, 994},
		{"full tolerance", 10_000, 10_000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplySlippage(big.NewInt(tt.amount), tt.bps)
			assert.Equal(t, tt.expected, got.Int64())
		})
	}
}

func TestPercentOf(t *testing.T) {
	lp := big.NewInt(1001)
	assert.Equal(t, int64(250), PercentOf(lp, 25).Int64())
	assert.Equal(t, int64(500), PercentOf(lp, 50).Int64())
	assert.Equal(t, int64(750), PercentOf(lp, 75).Int64())
	assert.Equal(t, int64(1001), PercentOf(lp, 100).Int64())
}

func TestBPSFormatting(t *testing.T) {
	b := NewBPSFromInt(50)
	assert.Equal(t, "0.50%", b.Percent())
	assert.Equal(t, "50 bps", b.String())
	assert.Equal(t, "$12.50", FormatUSD(decimal.RequireFromString("12.5")))
}

func TestMaxUint256(t *testing.T) {
	assert.Equal(t, 256, MaxUint256.BitLen())
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", MaxUint256.String())
}
