package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/contracts"
)

var (
	// ErrNoPair is returned when the factory has no pair for two tokens
	ErrNoPair = errors.New("pair does not exist")

	// ErrEmptyPool is returned when a pool has no reserves to price against
	ErrEmptyPool = errors.New("pool has no reserves")
)

// OptimalPairedAmount returns the amount of token B matching amountA at the
// pool ratio: amountA * reserveB / reserveA, truncated.
func OptimalPairedAmount(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if reserveA == nil || reserveB == nil || reserveA.Sign() == 0 || reserveB.Sign() == 0 {
		return nil, ErrEmptyPool
	}
	out := new(big.Int).Mul(amountA, reserveB)
	return out.Quo(out, reserveA), nil
}

// ShareOf returns the underlying reserve redeemed by burning liquidity out of
// totalSupply LP tokens, truncated
func ShareOf(liquidity, reserve, totalSupply *big.Int) *big.Int {
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(liquidity, reserve)
	return out.Quo(out, totalSupply)
}

// Pool is a pair with its reserves ordered as the caller's (A, B)
type Pool struct {
	Pair        *contracts.Pair
	ReserveA    *big.Int
	ReserveB    *big.Int
	TotalSupply *big.Int
}

// Exists reports whether the factory returned a pair
func (p *Pool) Exists() bool { return p.Pair != nil }

// loadPool looks up the pair of (a, b) and reads its reserves in (a, b)
// order. A missing pair yields an empty Pool and no error.
func (s *Service) loadPool(ctx context.Context, a, b common.Address) (*Pool, error) {
	pairAddr, err := s.factory.GetPair(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to look up pair: %w", err)
	}
	if pairAddr == (common.Address{}) {
		return &Pool{ReserveA: new(big.Int), ReserveB: new(big.Int), TotalSupply: new(big.Int)}, nil
	}

	pair := contracts.NewPair(pairAddr, s.cfg.Backend)
	reserves, err := pair.GetReserves(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read reserves: %w", err)
	}
	token0, err := pair.Token0(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read token0: %w", err)
	}
	supply, err := pair.TotalSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read LP supply: %w", err)
	}

	pool := &Pool{Pair: pair, ReserveA: reserves.Reserve0, ReserveB: reserves.Reserve1, TotalSupply: supply}
	if token0 != a {
		pool.ReserveA, pool.ReserveB = reserves.Reserve1, reserves.Reserve0
	}
	return pool, nil
}
