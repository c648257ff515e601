// Package quote produces display-only swap estimates from mock reference
// rates. Nothing here feeds an on-chain amount.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/amount"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

var (
	ErrNoRoute     = errors.New("no route")
	ErrSameToken   = errors.New("input and output token are the same")
	ErrUnknownRate = errors.New("no reference rate")
)

// DefaultRates are the mock USD reference rates by symbol
var DefaultRates = map[string]decimal.Decimal{
	"ETH":  decimal.NewFromInt(3000),
	"WETH": decimal.NewFromInt(3000),
	"USDC": decimal.NewFromInt(1),
	"LINK": decimal.NewFromInt(15),
	"UNI":  decimal.NewFromInt(8),
}

// Quote is an advisory estimate for a swap
type Quote struct {
	From            string   `json:"from"`
	To              string   `json:"to"`
	InputAmount     string   `json:"inputAmount"`
	OutputAmount    string   `json:"outputAmount"`
	MinimumReceived string   `json:"minimumReceived"`
	FeePct          string   `json:"feePct"`
	PriceImpactPct  string   `json:"priceImpactPct"`
	Route           []string `json:"route"`
}

// EstimatorConfig holds estimator configuration
type EstimatorConfig struct {
	Registry    *config.TokenRegistry
	Paths       *PathFinder
	Rates       map[string]decimal.Decimal // defaults to DefaultRates
	FeeBps      int64
	SlippageBps int64
	DepthUSD    float64
	Debounce    time.Duration
	Metrics     *observability.Metrics
}

// Estimator computes mock quotes
type Estimator struct {
	registry *config.TokenRegistry
	paths    *PathFinder
	rates    map[string]decimal.Decimal
	fee      decimal.Decimal
	slippage amount.BPS
	depth    decimal.Decimal
	debounce time.Duration
	metrics  *observability.Metrics
}

// NewEstimator creates an Estimator
func NewEstimator(cfg EstimatorConfig) (*Estimator, error) {
	if cfg.Registry == nil || cfg.Paths == nil {
		return nil, fmt.Errorf("registry and path finder are required")
	}
	if cfg.Rates == nil {
		cfg.Rates = DefaultRates
	}
	if cfg.FeeBps == 0 {
		cfg.FeeBps = 30
	}
	if cfg.DepthUSD <= 0 {
		cfg.DepthUSD = 1_000_000
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	rates := make(map[string]decimal.Decimal, len(cfg.Rates))
	for symbol, rate := range cfg.Rates {
		rates[strings.ToUpper(symbol)] = rate
	}

	return &Estimator{
		registry: cfg.Registry,
		paths:    cfg.Paths,
		rates:    rates,
		fee:      decimal.NewFromInt(cfg.FeeBps).Div(decimal.NewFromInt(amount.BPSScale)),
		slippage: amount.NewBPSFromInt(cfg.SlippageBps),
		depth:    decimal.NewFromFloat(cfg.DepthUSD),
		debounce: cfg.Debounce,
		metrics:  cfg.Metrics,
	}, nil
}

// Estimate quotes swapping amountIn of from into to. amountIn is normalized
// like a form field before use.
func (e *Estimator) Estimate(from, to, amountIn string) (Quote, error) {
	fromToken, ok := e.registry.BySymbol(from)
	if !ok {
		return Quote{}, fmt.Errorf("unknown token %q", from)
	}
	toToken, ok := e.registry.BySymbol(to)
	if !ok {
		return Quote{}, fmt.Errorf("unknown token %q", to)
	}

	route, err := e.paths.Route(fromToken.Symbol, toToken.Symbol)
	if err != nil {
		return Quote{}, err
	}
	fromRate, ok := e.rates[fromToken.Symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w for %s", ErrUnknownRate, fromToken.Symbol)
	}
	toRate, ok := e.rates[toToken.Symbol]
	if !ok || toRate.IsZero() {
		return Quote{}, fmt.Errorf("%w for %s", ErrUnknownRate, toToken.Symbol)
	}

	normalized := amount.ParseAmount(amountIn, int(fromToken.Decimals))
	in := decimal.Zero
	if normalized != "" && normalized != "." {
		in, err = decimal.NewFromString(strings.TrimSuffix(normalized, "."))
		if err != nil {
			return Quote{}, fmt.Errorf("%w: %q", amount.ErrInvalidAmount, amountIn)
		}
	}

	inUSD := in.Mul(fromRate)
	impact := decimal.Zero
	if inUSD.IsPositive() {
		impact = inUSD.Div(inUSD.Add(e.depth))
	}
	one := decimal.NewFromInt(1)
	out := inUSD.Div(toRate).
		Mul(one.Sub(e.fee)).
		Mul(one.Sub(impact)).
		Truncate(int32(toToken.Decimals))

	minimum := decimal.NewFromBigInt(
		amount.ApplySlippage(out.Shift(int32(toToken.Decimals)).BigInt(), e.slippage),
		-int32(toToken.Decimals),
	)

	e.metrics.RecordQuote(context.Background(), fromToken.Symbol+"-"+toToken.Symbol)
	return Quote{
		From:            fromToken.Symbol,
		To:              toToken.Symbol,
		InputAmount:     amount.FormatNumber(in.String(), int(fromToken.Decimals)),
		OutputAmount:    amount.FormatNumber(out.String(), 6),
		MinimumReceived: amount.FormatNumber(minimum.String(), 6),
		FeePct:          e.fee.Mul(decimal.NewFromInt(100)).StringFixed(2),
		PriceImpactPct:  impact.Mul(decimal.NewFromInt(100)).StringFixed(2),
		Route:           route,
	}, nil
}

// Schedule recomputes a quote after the input has been quiet for the
// configured delay, superseding any earlier request on d
func (e *Estimator) Schedule(d *Debouncer, from, to, amountIn string, deliver func(Quote, error)) {
	d.Trigger(func() {
		deliver(e.Estimate(from, to, amountIn))
	})
}

// NewDebouncer returns a debouncer with the estimator's delay, one per input
// session
func (e *Estimator) NewDebouncer() *Debouncer {
	return NewDebouncer(e.debounce)
}
