package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// call invokes a single-output view method and converts the result to T
func call[T any](ctx context.Context, c *bind.BoundContract, method string, args ...any) (T, error) {
	var zero T
	var out []any
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return zero, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return zero, fmt.Errorf("%s: empty result", method)
	}
	return *abi.ConvertType(out[0], new(T)).(*T), nil
}

// ERC20 is a bound ERC-20 token
type ERC20 struct {
	Address common.Address
	c       *bind.BoundContract
}

// NewERC20 binds the token at addr
func NewERC20(addr common.Address, backend bind.ContractBackend) *ERC20 {
	return &ERC20{Address: addr, c: bind.NewBoundContract(addr, ERC20ABI, backend, backend, backend)}
}

// BalanceOf reads the token balance of owner
func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return call[*big.Int](ctx, t.c, "balanceOf", owner)
}

// Allowance reads how much spender may transfer on owner's behalf
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return call[*big.Int](ctx, t.c, "allowance", owner, spender)
}

// Approve sets spender's allowance to amount
func (t *ERC20) Approve(opts *bind.TransactOpts, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.c.Transact(opts, "approve", spender, amount)
}

// Router is the V2-style router
type Router struct {
	Address common.Address
	c       *bind.BoundContract
}

// NewRouter binds the router at addr
func NewRouter(addr common.Address, backend bind.ContractBackend) *Router {
	return &Router{Address: addr, c: bind.NewBoundContract(addr, RouterABI, backend, backend, backend)}
}

// WETH returns the wrapped native token the router pairs against
func (r *Router) WETH(ctx context.Context) (common.Address, error) {
	return call[common.Address](ctx, r.c, "WETH")
}

// GetAmountsOut returns the output amount at every hop of path
func (r *Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	return call[[]*big.Int](ctx, r.c, "getAmountsOut", amountIn, path)
}

// SwapExactTokensForTokens swaps an exact ERC-20 input along path
func (r *Router) SwapExactTokensForTokens(opts *bind.TransactOpts, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	return r.c.Transact(opts, "swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
}

// SwapExactETHForTokens swaps opts.Value of the native asset along path
func (r *Router) SwapExactETHForTokens(opts *bind.TransactOpts, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	return r.c.Transact(opts, "swapExactETHForTokens", amountOutMin, path, to, deadline)
}

// SwapExactTokensForETH swaps an exact ERC-20 input for the native asset
func (r *Router) SwapExactTokensForETH(opts *bind.TransactOpts, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	return r.c.Transact(opts, "swapExactTokensForETH", amountIn, amountOutMin, path, to, deadline)
}

// AddLiquidity deposits two ERC-20 tokens
func (r *Router) AddLiquidity(opts *bind.TransactOpts, tokenA, tokenB common.Address, amountADesired, amountBDesired, amountAMin, amountBMin *big.Int, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	return r.c.Transact(opts, "addLiquidity", tokenA, tokenB, amountADesired, amountBDesired, amountAMin, amountBMin, to, deadline)
}

// AddLiquidityETH deposits token plus opts.Value of the native asset
func (r *Router) AddLiquidityETH(opts *bind.TransactOpts, token common.Address, amountTokenDesired, amountTokenMin, amountETHMin *big.Int, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	return r.c.Transact(opts, "addLiquidityETH", token, amountTokenDesired, amountTokenMin, amountETHMin, to, deadline)
}

// RemoveLiquidity burns LP tokens for both ERC-20 tokens
func (r *Router) RemoveLiquidity(opts *bind.TransactOpts, tokenA, tokenB common.Address, liquidity, amountAMin, amountBMin *big.Int, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	return r.c.Transact(opts, "removeLiquidity", tokenA, tokenB, liquidity, amountAMin, amountBMin, to, deadline)
}

// RemoveLiquidityETH burns LP tokens for token plus the native asset
func (r *Router) RemoveLiquidityETH(opts *bind.TransactOpts, token common.Address, liquidity, amountTokenMin, amountETHMin *big.Int, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	return r.c.Transact(opts, "removeLiquidityETH", token, liquidity, amountTokenMin, amountETHMin, to, deadline)
}

// Factory is the pair factory
type Factory struct {
	Address common.Address
	c       *bind.BoundContract
}

// NewFactory binds the factory at addr
func NewFactory(addr common.Address, backend bind.ContractBackend) *Factory {
	return &Factory{Address: addr, c: bind.NewBoundContract(addr, FactoryABI, backend, backend, backend)}
}

// GetPair returns the pair for tokenA/tokenB, or the zero address if none exists
func (f *Factory) GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	return call[common.Address](ctx, f.c, "getPair", tokenA, tokenB)
}

// Reserves are a pair's pooled balances
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Pair is an AMM pair (also the LP token)
type Pair struct {
	Address common.Address
	c       *bind.BoundContract
}

// NewPair binds the pair at addr
func NewPair(addr common.Address, backend bind.ContractBackend) *Pair {
	return &Pair{Address: addr, c: bind.NewBoundContract(addr, PairABI, backend, backend, backend)}
}

// GetReserves reads the pooled reserves
func (p *Pair) GetReserves(ctx context.Context) (Reserves, error) {
	var out []any
	if err := p.c.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves"); err != nil {
		return Reserves{}, fmt.Errorf("getReserves: %w", err)
	}
	if len(out) != 3 {
		return Reserves{}, fmt.Errorf("getReserves: expected 3 outputs, got %d", len(out))
	}
	return Reserves{
		Reserve0:           *abi.ConvertType(out[0], new(*big.Int)).(**big.Int),
		Reserve1:           *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		BlockTimestampLast: *abi.ConvertType(out[2], new(uint32)).(*uint32),
	}, nil
}

// Token0 returns the pair's first token
func (p *Pair) Token0(ctx context.Context) (common.Address, error) {
	return call[common.Address](ctx, p.c, "token0")
}

// TotalSupply returns the LP token supply
func (p *Pair) TotalSupply(ctx context.Context) (*big.Int, error) {
	return call[*big.Int](ctx, p.c, "totalSupply")
}

// BalanceOf returns the LP balance of owner
func (p *Pair) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return call[*big.Int](ctx, p.c, "balanceOf", owner)
}

// Farm is a StakingRewards farm
type Farm struct {
	Address common.Address
	c       *bind.BoundContract
}

// NewFarm binds the farm at addr
func NewFarm(addr common.Address, backend bind.ContractBackend) *Farm {
	return &Farm{Address: addr, c: bind.NewBoundContract(addr, FarmABI, backend, backend, backend)}
}

// Stake deposits amount of the staking token
func (f *Farm) Stake(opts *bind.TransactOpts, amount *big.Int) (*types.Transaction, error) {
	return f.c.Transact(opts, "stake", amount)
}

// Withdraw unstakes amount
func (f *Farm) Withdraw(opts *bind.TransactOpts, amount *big.Int) (*types.Transaction, error) {
	return f.c.Transact(opts, "withdraw", amount)
}

// GetReward claims accrued rewards
func (f *Farm) GetReward(opts *bind.TransactOpts) (*types.Transaction, error) {
	return f.c.Transact(opts, "getReward")
}

// Earned returns the unclaimed rewards of account
func (f *Farm) Earned(ctx context.Context, account common.Address) (*big.Int, error) {
	return call[*big.Int](ctx, f.c, "earned", account)
}

// BalanceOf returns the staked amount of account
func (f *Farm) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return call[*big.Int](ctx, f.c, "balanceOf", account)
}

// NFT is the mintable collection
type NFT struct {
	Address common.Address
	c       *bind.BoundContract
}

// NewNFT binds the collection at addr
func NewNFT(addr common.Address, backend bind.ContractBackend) *NFT {
	return &NFT{Address: addr, c: bind.NewBoundContract(addr, NFTABI, backend, backend, backend)}
}

// Mint mints quantity tokens; opts.Value must cover quantity * MintPrice
func (n *NFT) Mint(opts *bind.TransactOpts, quantity *big.Int) (*types.Transaction, error) {
	return n.c.Transact(opts, "mint", quantity)
}

// MintPrice returns the price per token in wei
func (n *NFT) MintPrice(ctx context.Context) (*big.Int, error) {
	return call[*big.Int](ctx, n.c, "mintPrice")
}

// TotalSupply returns the number minted so far
func (n *NFT) TotalSupply(ctx context.Context) (*big.Int, error) {
	return call[*big.Int](ctx, n.c, "totalSupply")
}

// MaxSupply returns the collection cap
func (n *NFT) MaxSupply(ctx context.Context) (*big.Int, error) {
	return call[*big.Int](ctx, n.c, "maxSupply")
}
