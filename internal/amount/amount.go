// Package amount normalizes user-entered token amounts and converts between
// human-readable decimal strings and smallest-unit integers.
//
// Conversions never round: fractional digits beyond a token's precision are
// truncated, matching how the contracts interpret amounts.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// BPSScale is 100% expressed in basis points.
const BPSScale int64 = 10_000

var (
	// MaxUint256 is the largest allowance an ERC-20 approval can request.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// ErrInvalidAmount is returned for input that is not a non-negative decimal.
	ErrInvalidAmount = errors.New("invalid amount")
)

// BPS represents basis points (1 bps = 0.01%).
type BPS int64

// NewBPSFromInt creates BPS directly from basis points.
func NewBPSFromInt(bps int64) BPS {
	return BPS(bps)
}

// Percent returns as percentage string (e.g., "0.50%").
func (b BPS) Percent() string {
	return fmt.Sprintf("%.2f%%", float64(b)/100.0)
}

// String returns basis points as string (e.g., "50 bps").
func (b BPS) String() string {
	return fmt.Sprintf("%d bps", int64(b))
}

// ApplySlippage returns the minimum acceptable amount for a tolerance of b:
// amount * (10000 - b) / 10000, truncated.
func ApplySlippage(amount *big.Int, b BPS) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	if b <= 0 {
		return new(big.Int).Set(amount)
	}
	if int64(b) >= BPSScale {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(BPSScale-int64(b)))
	return out.Quo(out, big.NewInt(BPSScale))
}

// PercentOf returns amount * pct / 100, truncated.
func PercentOf(amount *big.Int, pct int64) *big.Int {
	if amount == nil || pct <= 0 {
		return new(big.Int)
	}
	if pct >= 100 {
		return new(big.Int).Set(amount)
	}
	out := new(big.Int).Mul(amount, big.NewInt(pct))
	return out.Quo(out, big.NewInt(100))
}

// ParseAmount normalizes free-text numeric input. Non-digit characters are
// dropped, only the first decimal point survives, and the fraction is
// truncated to decimals digits.
//
//	ParseAmount("12.3456789", 6) == "12.345678"
//	ParseAmount("1.2.3", 6)      == "1.23"
func ParseAmount(input string, decimals int) string {
	var intPart, fracPart strings.Builder
	seenDot := false

	for _, r := range input {
		switch {
		case r >= '0' && r <= '9':
			if seenDot {
				fracPart.WriteRune(r)
			} else {
				intPart.WriteRune(r)
			}
		case r == '.':
			seenDot = true
		}
	}

	whole := intPart.String()
	if !seenDot {
		return whole
	}
	if whole == "" {
		whole = "0"
	}
	if decimals <= 0 {
		return whole
	}

	frac := fracPart.String()
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	return whole + "." + frac
}

// FormatNumber renders a decimal string for display with at most maxDecimals
// fractional digits, truncating. Non-zero values too small to show are
// rendered as "<0.000…1".
func FormatNumber(value string, maxDecimals int) string {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || d.IsZero() {
		return "0"
	}
	if maxDecimals < 0 {
		maxDecimals = 0
	}

	smallest := decimal.New(1, -int32(maxDecimals))
	if d.Abs().LessThan(smallest) {
		if d.IsNegative() {
			return ">-" + smallest.String()
		}
		return "<" + smallest.String()
	}

	return d.Truncate(int32(maxDecimals)).String()
}

// ToUnits converts a decimal amount to the token's smallest unit. Digits
// beyond decimals are truncated.
func ToUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "." {
		return new(big.Int), nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, value)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// FormatUnits converts a smallest-unit integer to an exact decimal string.
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// FormatBalance converts raw to a display string with at most display
// fractional digits.
func FormatBalance(raw *big.Int, decimals uint8, display int) string {
	return FormatNumber(FormatUnits(raw, decimals), display)
}

// FormatUSD renders a dollar value like "$1234.56".
func FormatUSD(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-$" + v.Abs().StringFixed(2)
	}
	return "$" + v.StringFixed(2)
}
