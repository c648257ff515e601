package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/amount"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/contracts"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/txflow"
)

// lpDecimals is the precision of Uniswap V2 style LP tokens
const lpDecimals = 18

func (s *Service) slippage() amount.BPS { return amount.NewBPSFromInt(s.cfg.SlippageBps) }

func (s *Service) token(ref string) (config.Token, error) {
	t, ok := s.cfg.Registry.Lookup(ref)
	if !ok {
		return config.Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, ref)
	}
	return t, nil
}

func (s *Service) tokenPair(refA, refB string) (config.Token, config.Token, error) {
	a, err := s.token(refA)
	if err != nil {
		return config.Token{}, config.Token{}, err
	}
	b, err := s.token(refB)
	if err != nil {
		return config.Token{}, config.Token{}, err
	}
	if a.Address == b.Address {
		return config.Token{}, config.Token{}, ErrSameToken
	}
	return a, b, nil
}

// parseUnits normalizes free-text input and converts it to smallest units.
// Zero is rejected.
func parseUnits(input string, decimals uint8) (*big.Int, error) {
	v, err := amount.ToUnits(amount.ParseAmount(input, int(decimals)), decimals)
	if err != nil {
		return nil, err
	}
	if v.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	return v, nil
}

// resolveAmount picks an exact amount or a percentage of available and checks
// it against available
func resolveAmount(input string, percent int64, available *big.Int, decimals uint8) (*big.Int, error) {
	var v *big.Int
	switch {
	case percent != 0:
		if percent < 0 || percent > 100 {
			return nil, ErrInvalidPercent
		}
		v = amount.PercentOf(available, percent)
		if v.Sign() == 0 {
			return nil, ErrZeroAmount
		}
	default:
		var err error
		if v, err = parseUnits(input, decimals); err != nil {
			return nil, err
		}
	}
	if v.Cmp(available) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrExceedsBalance,
			amount.FormatUnits(v, decimals), amount.FormatUnits(available, decimals))
	}
	return v, nil
}

func (s *Service) requireRouter() error {
	if s.router == nil {
		return fmt.Errorf("%w: router", ErrNotConfigured)
	}
	return nil
}

func (s *Service) requireFactory() error {
	if s.factory == nil {
		return fmt.Errorf("%w: factory", ErrNotConfigured)
	}
	return nil
}

// swapPath routes from -> to over the pair graph and maps symbols to router
// addresses, collapsing the native/WETH hop
func (s *Service) swapPath(ctx context.Context, from, to config.Token) ([]common.Address, []string, error) {
	symbols := []string{from.Symbol, to.Symbol}
	if s.cfg.Paths != nil {
		route, err := s.cfg.Paths.Route(from.Symbol, to.Symbol)
		if err != nil {
			return nil, nil, err
		}
		symbols = route
	}

	var path []common.Address
	for _, sym := range symbols {
		t, err := s.token(sym)
		if err != nil {
			return nil, nil, err
		}
		addr, err := s.wrapped(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		if n := len(path); n > 0 && path[n-1] == addr {
			continue
		}
		path = append(path, addr)
	}
	if len(path) < 2 {
		return nil, nil, fmt.Errorf("%w: %s and %s wrap to the same token", ErrSameToken, from.Symbol, to.Symbol)
	}
	return path, symbols, nil
}

func (s *Service) buildSwap(ctx context.Context, owner common.Address, req Request) (txflow.Operation, map[string]string, error) {
	if err := s.requireRouter(); err != nil {
		return txflow.Operation{}, nil, err
	}
	from, to, err := s.tokenPair(req.From, req.To)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	amountIn, err := parseUnits(req.Amount, from.Decimals)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	path, route, err := s.swapPath(ctx, from, to)
	if err != nil {
		return txflow.Operation{}, nil, err
	}

	amounts, err := s.router.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return txflow.Operation{}, nil, fmt.Errorf("failed to quote swap: %w", err)
	}
	if len(amounts) == 0 {
		return txflow.Operation{}, nil, fmt.Errorf("router returned no amounts")
	}
	expectedOut := amounts[len(amounts)-1]
	minOut := amount.ApplySlippage(expectedOut, s.slippage())

	router := s.router
	var action txflow.SendFunc
	switch {
	case from.IsNative():
		action = s.transact(amountIn, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return router.SwapExactETHForTokens(opts, minOut, path, owner, s.deadline())
		})
	case to.IsNative():
		action = s.transact(nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return router.SwapExactTokensForETH(opts, amountIn, minOut, path, owner, s.deadline())
		})
	default:
		action = s.transact(nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return router.SwapExactTokensForTokens(opts, amountIn, minOut, path, owner, s.deadline())
		})
	}

	op := txflow.Operation{
		Kind:            KindSwap,
		Title:           fmt.Sprintf("Swap %s for %s", from.Symbol, to.Symbol),
		Spends:          []txflow.Spend{{Token: from, Spender: router.Address, Amount: amountIn}},
		Action:          action,
		ChangesBalances: true,
	}
	details := map[string]string{
		"amountIn":    amount.FormatUnits(amountIn, from.Decimals),
		"expectedOut": amount.FormatUnits(expectedOut, to.Decimals),
		"minimumOut":  amount.FormatUnits(minOut, to.Decimals),
		"slippage":    s.slippage().Percent(),
		"route":       strings.Join(route, " > "),
	}
	return op, details, nil
}

func (s *Service) buildAddLiquidity(ctx context.Context, owner common.Address, req Request) (txflow.Operation, map[string]string, error) {
	if err := s.requireRouter(); err != nil {
		return txflow.Operation{}, nil, err
	}
	if err := s.requireFactory(); err != nil {
		return txflow.Operation{}, nil, err
	}
	a, b, err := s.tokenPair(req.TokenA, req.TokenB)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	if a.IsNative() && b.IsNative() {
		return txflow.Operation{}, nil, ErrSameToken
	}
	amountA, err := parseUnits(req.Amount, a.Decimals)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	addrA, err := s.wrapped(ctx, a)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	addrB, err := s.wrapped(ctx, b)
	if err != nil {
		return txflow.Operation{}, nil, err
	}

	pool, err := s.loadPool(ctx, addrA, addrB)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	amountB, err := OptimalPairedAmount(amountA, pool.ReserveA, pool.ReserveB)
	switch {
	case err == nil:
	case req.AmountB != "":
		// first deposit sets the price
		if amountB, err = parseUnits(req.AmountB, b.Decimals); err != nil {
			return txflow.Operation{}, nil, err
		}
	default:
		return txflow.Operation{}, nil, fmt.Errorf("%w: amountB is required for the first deposit", err)
	}
	if amountB.Sign() == 0 {
		return txflow.Operation{}, nil, fmt.Errorf("%w: paired amount rounds to zero", ErrZeroAmount)
	}
	minA := amount.ApplySlippage(amountA, s.slippage())
	minB := amount.ApplySlippage(amountB, s.slippage())

	router := s.router
	var action txflow.SendFunc
	switch {
	case a.IsNative():
		action = s.transact(amountA, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return router.AddLiquidityETH(opts, addrB, amountB, minB, minA, owner, s.deadline())
		})
	case b.IsNative():
		action = s.transact(amountB, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return router.AddLiquidityETH(opts, addrA, amountA, minA, minB, owner, s.deadline())
		})
	default:
		action = s.transact(nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return router.AddLiquidity(opts, addrA, addrB, amountA, amountB, minA, minB, owner, s.deadline())
		})
	}

	op := txflow.Operation{
		Kind:  KindAddLiquidity,
		Title: fmt.Sprintf("Add %s/%s liquidity", a.Symbol, b.Symbol),
		Spends: []txflow.Spend{
			{Token: a, Spender: router.Address, Amount: amountA},
			{Token: b, Spender: router.Address, Amount: amountB},
		},
		Action:          action,
		ChangesBalances: true,
	}
	details := map[string]string{
		"amountA":  amount.FormatUnits(amountA, a.Decimals),
		"amountB":  amount.FormatUnits(amountB, b.Decimals),
		"minimumA": amount.FormatUnits(minA, a.Decimals),
		"minimumB": amount.FormatUnits(minB, b.Decimals),
		"reserveA": amount.FormatUnits(pool.ReserveA, a.Decimals),
		"reserveB": amount.FormatUnits(pool.ReserveB, b.Decimals),
		"slippage": s.slippage().Percent(),
	}
	return op, details, nil
}

func lpToken(pair common.Address, a, b config.Token) config.Token {
	return config.Token{
		Symbol:   a.Symbol + "-" + b.Symbol + " LP",
		Name:     a.Symbol + "/" + b.Symbol + " liquidity",
		Address:  pair,
		Decimals: lpDecimals,
	}
}

func (s *Service) buildRemoveLiquidity(ctx context.Context, owner common.Address, req Request) (txflow.Operation, map[string]string, error) {
	if err := s.requireRouter(); err != nil {
		return txflow.Operation{}, nil, err
	}
	if err := s.requireFactory(); err != nil {
		return txflow.Operation{}, nil, err
	}
	a, b, err := s.tokenPair(req.TokenA, req.TokenB)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	addrA, err := s.wrapped(ctx, a)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	addrB, err := s.wrapped(ctx, b)
	if err != nil {
		return txflow.Operation{}, nil, err
	}

	pool, err := s.loadPool(ctx, addrA, addrB)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	if !pool.Exists() {
		return txflow.Operation{}, nil, fmt.Errorf("%w: %s/%s", ErrNoPair, a.Symbol, b.Symbol)
	}
	held, err := pool.Pair.BalanceOf(ctx, owner)
	if err != nil {
		return txflow.Operation{}, nil, fmt.Errorf("failed to read LP balance: %w", err)
	}
	liquidity, err := resolveAmount(req.Amount, req.Percent, held, lpDecimals)
	if err != nil {
		return txflow.Operation{}, nil, err
	}

	outA := ShareOf(liquidity, pool.ReserveA, pool.TotalSupply)
	outB := ShareOf(liquidity, pool.ReserveB, pool.TotalSupply)
	minA := amount.ApplySlippage(outA, s.slippage())
	minB := amount.ApplySlippage(outB, s.slippage())

	router := s.router
	var action txflow.SendFunc
	switch {
	case a.IsNative():
		action = s.transact(nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return router.RemoveLiquidityETH(opts, addrB, liquidity, minB, minA, owner, s.deadline())
		})
	case b.IsNative():
		action = s.transact(nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return router.RemoveLiquidityETH(opts, addrA, liquidity, minA, minB, owner, s.deadline())
		})
	default:
		action = s.transact(nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return router.RemoveLiquidity(opts, addrA, addrB, liquidity, minA, minB, owner, s.deadline())
		})
	}

	lp := lpToken(pool.Pair.Address, a, b)
	op := txflow.Operation{
		Kind:            KindRemoveLiquidity,
		Title:           fmt.Sprintf("Remove %s/%s liquidity", a.Symbol, b.Symbol),
		Spends:          []txflow.Spend{{Token: lp, Spender: router.Address, Amount: liquidity}},
		Action:          action,
		ChangesBalances: true,
	}
	details := map[string]string{
		"liquidity": amount.FormatUnits(liquidity, lpDecimals),
		"lpBalance": amount.FormatUnits(held, lpDecimals),
		"amountA":   amount.FormatUnits(outA, a.Decimals),
		"amountB":   amount.FormatUnits(outB, b.Decimals),
		"minimumA":  amount.FormatUnits(minA, a.Decimals),
		"minimumB":  amount.FormatUnits(minB, b.Decimals),
	}
	return op, details, nil
}

func (s *Service) farm(name string) (config.FarmConfig, *contracts.Farm, error) {
	for _, f := range s.cfg.Contracts.Farms {
		if strings.EqualFold(f.Name, name) || strings.EqualFold(f.Address, name) {
			return f, contracts.NewFarm(common.HexToAddress(f.Address), s.cfg.Backend), nil
		}
	}
	return config.FarmConfig{}, nil, fmt.Errorf("%w: %q", ErrUnknownFarm, name)
}

func farmLPToken(f config.FarmConfig) config.Token {
	return config.Token{
		Symbol:   f.Name + " LP",
		Name:     f.Name + " staking token",
		Address:  common.HexToAddress(f.StakingToken),
		Decimals: lpDecimals,
	}
}

func (s *Service) buildStake(ctx context.Context, owner common.Address, req Request) (txflow.Operation, map[string]string, error) {
	cfg, farm, err := s.farm(req.Farm)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	lp := farmLPToken(cfg)
	held, err := s.gateway.BalanceOf(ctx, lp.Address, owner)
	if err != nil {
		return txflow.Operation{}, nil, fmt.Errorf("failed to read LP balance: %w", err)
	}
	amt, err := resolveAmount(req.Amount, req.Percent, held, lpDecimals)
	if err != nil {
		return txflow.Operation{}, nil, err
	}

	op := txflow.Operation{
		Kind:   KindStake,
		Title:  "Stake in " + cfg.Name,
		Spends: []txflow.Spend{{Token: lp, Spender: farm.Address, Amount: amt}},
		Action: s.transact(nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return farm.Stake(opts, amt)
		}),
		ChangesBalances: true,
	}
	details := map[string]string{
		"amount":    amount.FormatUnits(amt, lpDecimals),
		"lpBalance": amount.FormatUnits(held, lpDecimals),
	}
	return op, details, nil
}

func (s *Service) buildUnstake(ctx context.Context, owner common.Address, req Request) (txflow.Operation, map[string]string, error) {
	cfg, farm, err := s.farm(req.Farm)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	staked, err := farm.BalanceOf(ctx, owner)
	if err != nil {
		return txflow.Operation{}, nil, fmt.Errorf("failed to read staked balance: %w", err)
	}
	amt, err := resolveAmount(req.Amount, req.Percent, staked, lpDecimals)
	if err != nil {
		return txflow.Operation{}, nil, err
	}

	op := txflow.Operation{
		Kind:  KindUnstake,
		Title: "Unstake from " + cfg.Name,
		Action: s.transact(nil, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return farm.Withdraw(opts, amt)
		}),
		ChangesBalances: true,
	}
	details := map[string]string{
		"amount": amount.FormatUnits(amt, lpDecimals),
		"staked": amount.FormatUnits(staked, lpDecimals),
	}
	return op, details, nil
}

func (s *Service) buildClaim(ctx context.Context, owner common.Address, req Request) (txflow.Operation, map[string]string, error) {
	cfg, farm, err := s.farm(req.Farm)
	if err != nil {
		return txflow.Operation{}, nil, err
	}
	earned, err := farm.Earned(ctx, owner)
	if err != nil {
		return txflow.Operation{}, nil, fmt.Errorf("failed to read rewards: %w", err)
	}
	if earned.Sign() == 0 {
		return txflow.Operation{}, nil, fmt.Errorf("%w: no rewards to claim", ErrZeroAmount)
	}

	rewardDecimals := uint8(18)
	if t, ok := s.cfg.Registry.BySymbol(cfg.RewardSymbol); ok {
		rewardDecimals = t.Decimals
	}
	op := txflow.Operation{
		Kind:            KindClaim,
		Title:           "Claim " + cfg.Name + " rewards",
		Action:          s.transact(nil, farm.GetReward),
		ChangesBalances: true,
	}
	details := map[string]string{
		"earned": amount.FormatUnits(earned, rewardDecimals),
		"reward": cfg.RewardSymbol,
	}
	return op, details, nil
}

func (s *Service) buildMint(ctx context.Context, _ common.Address, req Request) (txflow.Operation, map[string]string, error) {
	addr, ok := parseAddress(s.cfg.Contracts.NFT)
	if !ok {
		return txflow.Operation{}, nil, fmt.Errorf("%w: nft", ErrNotConfigured)
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return txflow.Operation{}, nil, ErrZeroAmount
	}
	qty := big.NewInt(quantity)

	nft := contracts.NewNFT(addr, s.cfg.Backend)
	price, err := nft.MintPrice(ctx)
	if err != nil {
		return txflow.Operation{}, nil, fmt.Errorf("failed to read mint price: %w", err)
	}
	minted, err := nft.TotalSupply(ctx)
	if err != nil {
		return txflow.Operation{}, nil, fmt.Errorf("failed to read supply: %w", err)
	}
	maxSupply, err := nft.MaxSupply(ctx)
	if err != nil {
		return txflow.Operation{}, nil, fmt.Errorf("failed to read max supply: %w", err)
	}
	if maxSupply.Sign() > 0 && new(big.Int).Add(minted, qty).Cmp(maxSupply) > 0 {
		return txflow.Operation{}, nil, fmt.Errorf("%w: %s of %s minted", ErrSoldOut, minted, maxSupply)
	}

	value := new(big.Int).Mul(price, qty)
	native, ok := s.cfg.Registry.Native()
	if !ok {
		native = config.Token{Symbol: "ETH", Address: config.NativeAddress, Decimals: 18}
	}

	op := txflow.Operation{
		Kind:   KindMint,
		Title:  fmt.Sprintf("Mint %d NFT", quantity),
		Spends: []txflow.Spend{{Token: native, Spender: addr, Amount: value}},
		Action: s.transact(value, func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return nft.Mint(opts, qty)
		}),
		ChangesBalances: true,
	}
	details := map[string]string{
		"quantity": qty.String(),
		"price":    amount.FormatUnits(price, native.Decimals),
		"total":    amount.FormatUnits(value, native.Decimals),
		"minted":   minted.String(),
		"supply":   maxSupply.String(),
	}
	return op, details, nil
}
