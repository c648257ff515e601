package txflow

import (
	"math/big"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/amount"
)

// Decision is the outcome of comparing a spend with its live allowance
type Decision struct {
	Token            string   `json:"token"`
	Native           bool     `json:"native"`
	Amount           *big.Int `json:"amount"`
	Allowance        *big.Int `json:"allowance"` // nil while unknown
	ApprovalRequired bool     `json:"approvalRequired"`
	ActionEnabled    bool     `json:"actionEnabled"`
}

// Decide applies the allowance rule to spend. An unknown allowance neither
// requires approval nor enables the action; only a definitive read that
// covers the amount does.
func Decide(spend Spend, allowance *big.Int) Decision {
	d := Decision{
		Token:     spend.Token.Symbol,
		Native:    spend.Token.IsNative(),
		Amount:    spend.Amount,
		Allowance: allowance,
	}
	switch {
	case d.Native:
		d.ActionEnabled = true
	case allowance == nil:
	case allowance.Cmp(amountOrZero(spend.Amount)) < 0:
		d.ApprovalRequired = true
	default:
		d.ActionEnabled = true
	}
	return d
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// IsUnlimited reports whether allowance is the maximum an approval requests
func IsUnlimited(allowance *big.Int) bool {
	return allowance != nil && allowance.Cmp(amount.MaxUint256) == 0
}
