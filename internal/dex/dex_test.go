package dex

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/amount"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/chain"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/contracts"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/quote"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/txflow"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	owner       = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	routerAddr  = common.HexToAddress("0x1000")
	factoryAddr = common.HexToAddress("0x2000")
	pairAddr    = common.HexToAddress("0x3000")
	farmAddr    = common.HexToAddress("0x4000")
	nftAddr     = common.HexToAddress("0x5000")

	tokens   = config.DefaultTokens("ETH")
	registry = config.MustTokenRegistry(tokens)
	weth     = tokens[1]
	usdc     = tokens[2]
	link     = tokens[3]
	uni      = tokens[4]
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type handler func(args []any) []any

// fakeChain answers contract reads by (address, method) and records sent
// transactions. Approvals it sees are applied to its allowance table.
// Unimplemented backend methods panic through the embedded nil interface.
type fakeChain struct {
	bind.ContractBackend

	mu         sync.Mutex
	handlers   map[common.Address]map[string]handler
	allowances map[common.Address]*big.Int
	sent       []*types.Transaction
}

var allABIs = []abi.ABI{
	contracts.ERC20ABI, contracts.RouterABI, contracts.FactoryABI,
	contracts.PairABI, contracts.FarmABI, contracts.NFTABI,
}

func methodByID(id []byte) (*abi.Method, error) {
	for _, a := range allABIs {
		if m, err := a.MethodById(id); err == nil {
			return m, nil
		}
	}
	return nil, errors.New("unknown selector")
}

func newFakeChain() *fakeChain {
	c := &fakeChain{
		handlers:   make(map[common.Address]map[string]handler),
		allowances: make(map[common.Address]*big.Int),
	}

	c.on(routerAddr, "getAmountsOut", func(args []any) []any {
		path := args[1].([]common.Address)
		out := make([]*big.Int, len(path))
		out[0] = args[0].(*big.Int)
		for i := 1; i < len(out); i++ {
			out[i] = big.NewInt(1_000_000_000) // 1000 USDC-sized units
		}
		return []any{out}
	})
	c.on(factoryAddr, "getPair", func(args []any) []any {
		a, b := args[0].(common.Address), args[1].(common.Address)
		if (a == link.Address && b == uni.Address) || (a == uni.Address && b == link.Address) {
			return []any{pairAddr}
		}
		return []any{common.Address{}}
	})
	// token0 is UNI so reserves come back in (UNI, LINK) order
	c.on(pairAddr, "getReserves", func([]any) []any {
		return []any{ether(2000), ether(1000), uint32(1)}
	})
	c.on(pairAddr, "token0", func([]any) []any { return []any{uni.Address} })
	c.on(pairAddr, "totalSupply", func([]any) []any { return []any{ether(100)} })
	c.on(pairAddr, "balanceOf", func([]any) []any { return []any{ether(10)} })
	c.on(farmAddr, "balanceOf", func([]any) []any { return []any{ether(4)} })
	c.on(farmAddr, "earned", func([]any) []any { return []any{big.NewInt(0)} })
	c.on(nftAddr, "mintPrice", func([]any) []any { return []any{big.NewInt(1e16)} })
	c.on(nftAddr, "totalSupply", func([]any) []any { return []any{big.NewInt(98)} })
	c.on(nftAddr, "maxSupply", func([]any) []any { return []any{big.NewInt(100)} })
	return c
}

func (c *fakeChain) on(addr common.Address, method string, h handler) {
	if c.handlers[addr] == nil {
		c.handlers[addr] = make(map[string]handler)
	}
	c.handlers[addr][method] = h
}

func (c *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := methodByID(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if method.Name == "allowance" {
		allowance, ok := c.allowances[*msg.To]
		if !ok {
			allowance = new(big.Int)
		}
		return method.Outputs.Pack(allowance)
	}
	h, ok := c.handlers[*msg.To][method.Name]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return method.Outputs.Pack(h(args)...)
}

func (c *fakeChain) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (c *fakeChain) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (c *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (c *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 200_000, nil
}

func (c *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.sent)), nil
}

func (c *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, tx)

	method, err := methodByID(tx.Data()[:4])
	if err == nil && method.Name == "approve" {
		args, err := method.Inputs.Unpack(tx.Data()[4:])
		if err == nil {
			c.allowances[*tx.To()] = args[1].(*big.Int)
		}
	}
	return nil
}

func (c *fakeChain) lastSent(t *testing.T) (*types.Transaction, string, []any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	tx := c.sent[len(c.sent)-1]
	method, err := methodByID(tx.Data()[:4])
	require.NoError(t, err)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	return tx, method.Name, args
}

type instantReceipts struct{}

func (instantReceipts) WaitReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil
}

var fixedNow = time.Unix(1_700_000_000, 0)

func newTestService(t *testing.T, backend *fakeChain, mutate func(*Config)) *Service {
	t.Helper()
	wallet, err := chain.NewWallet(config.WalletConfig{Type: config.WalletPrivateKey, PrivateKey: testKey}, 31337)
	require.NoError(t, err)
	require.Equal(t, owner, *wallet.Address())

	cfg := Config{
		Registry: registry,
		Backend:  backend,
		Wallet:   wallet,
		Contracts: config.ContractsConfig{
			Router:  routerAddr.Hex(),
			Factory: factoryAddr.Hex(),
			WETH:    weth.Address.Hex(),
			NFT:     nftAddr.Hex(),
			Farms: []config.FarmConfig{{
				Name:         "LINK-UNI",
				Address:      farmAddr.Hex(),
				StakingToken: pairAddr.Hex(),
				RewardSymbol: "UNI",
			}},
		},
		SlippageBps: 50,
		Deadline:    20 * time.Minute,
		Flow:        txflow.Config{Receipts: instantReceipts{}},
		Now:         func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}

func waitFlow(t *testing.T, svc *Service, id string) {
	t.Helper()
	flow, err := svc.Flow(id)
	require.NoError(t, err)
	flow.Wait()
}

func TestOptimalPairedAmount(t *testing.T) {
	got, err := OptimalPairedAmount(big.NewInt(100), big.NewInt(1000), big.NewInt(2000))
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.Int64())

	// truncates
	got, err = OptimalPairedAmount(big.NewInt(1), big.NewInt(3), big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Int64())

	_, err = OptimalPairedAmount(big.NewInt(1), big.NewInt(0), big.NewInt(10))
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestShareOf(t *testing.T) {
	assert.Equal(t, ether(50), ShareOf(ether(5), ether(1000), ether(100)))
	assert.Equal(t, int64(0), ShareOf(ether(5), ether(1000), big.NewInt(0)).Int64())
}

func TestSwapApproveThenExecute(t *testing.T) {
	backend := newFakeChain()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	view, err := svc.Create(ctx, Request{Kind: KindSwap, From: "USDC", To: "LINK", Amount: "25.5"})
	require.NoError(t, err)
	require.Len(t, view.Spends, 1)
	assert.True(t, view.Spends[0].ApprovalRequired)
	assert.False(t, view.CanExecute)
	assert.Equal(t, "25.5", view.Details["amountIn"])
	assert.Equal(t, "0.50%", view.Details["slippage"])
	assert.Equal(t, "USDC > LINK", view.Details["route"])

	_, err = svc.Execute(ctx, view.ID)
	require.ErrorIs(t, err, txflow.ErrApprovalRequired)

	_, err = svc.Approve(ctx, view.ID, "usdc")
	require.NoError(t, err)
	waitFlow(t, svc, view.ID)

	tx, method, args := backend.lastSent(t)
	assert.Equal(t, "approve", method)
	assert.Equal(t, usdc.Address, *tx.To())
	assert.Equal(t, routerAddr, args[0])
	assert.Equal(t, amount.MaxUint256, args[1])

	view, err = svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, view.CanExecute)

	_, err = svc.Execute(ctx, view.ID)
	require.NoError(t, err)
	waitFlow(t, svc, view.ID)

	tx, method, args = backend.lastSent(t)
	assert.Equal(t, "swapExactTokensForTokens", method)
	assert.Equal(t, routerAddr, *tx.To())
	assert.Equal(t, big.NewInt(25_500_000), args[0])
	assert.Equal(t, big.NewInt(995_000_000), args[1]) // 1000 USDC-sized units less 0.5%
	assert.Equal(t, []common.Address{usdc.Address, link.Address}, args[2])
	assert.Equal(t, owner, args[3])
	assert.Equal(t, big.NewInt(fixedNow.Add(20*time.Minute).Unix()), args[4])

	view, err = svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, view.Cleared)
	_, err = svc.Execute(ctx, view.ID)
	assert.ErrorIs(t, err, txflow.ErrOperationCompleted)
}

func TestSwapNativeUsesRouteAndValue(t *testing.T) {
	backend := newFakeChain()
	paths, err := quote.NewPathFinder([]string{"ETH-WETH", "WETH-USDC"}, "WETH")
	require.NoError(t, err)
	svc := newTestService(t, backend, func(cfg *Config) { cfg.Paths = paths })
	ctx := context.Background()

	view, err := svc.Create(ctx, Request{Kind: KindSwap, From: "ETH", To: "USDC", Amount: "1.5"})
	require.NoError(t, err)
	assert.True(t, view.CanExecute, "native spends need no approval")
	assert.Equal(t, "ETH > WETH > USDC", view.Details["route"])

	_, err = svc.Execute(ctx, view.ID)
	require.NoError(t, err)
	waitFlow(t, svc, view.ID)

	tx, method, args := backend.lastSent(t)
	assert.Equal(t, "swapExactETHForTokens", method)
	assert.Equal(t, new(big.Int).Div(ether(3), big.NewInt(2)), tx.Value())
	assert.Equal(t, []common.Address{weth.Address, usdc.Address}, args[1])
}

func TestSwapRejectsWrap(t *testing.T) {
	svc := newTestService(t, newFakeChain(), nil)
	_, err := svc.Create(context.Background(), Request{Kind: KindSwap, From: "ETH", To: "WETH", Amount: "1"})
	assert.ErrorIs(t, err, ErrSameToken)
}

func TestAddLiquidityPairedAmount(t *testing.T) {
	svc := newTestService(t, newFakeChain(), nil)

	view, err := svc.Create(context.Background(), Request{Kind: KindAddLiquidity, TokenA: "LINK", TokenB: "UNI", Amount: "100"})
	require.NoError(t, err)
	assert.Equal(t, "100", view.Details["amountA"])
	assert.Equal(t, "200", view.Details["amountB"])
	assert.Equal(t, "1000", view.Details["reserveA"])
	assert.Equal(t, "2000", view.Details["reserveB"])
	assert.Equal(t, "199", view.Details["minimumB"])

	require.Len(t, view.Spends, 2)
	for _, spend := range view.Spends {
		assert.True(t, spend.ApprovalRequired, spend.Token)
		require.NotNil(t, spend.Approval)
	}
	assert.False(t, view.CanExecute)
}

func TestAddLiquidityEmptyPool(t *testing.T) {
	svc := newTestService(t, newFakeChain(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, Request{Kind: KindAddLiquidity, TokenA: "LINK", TokenB: "USDC", Amount: "1"})
	require.ErrorIs(t, err, ErrEmptyPool)

	view, err := svc.Create(ctx, Request{Kind: KindAddLiquidity, TokenA: "LINK", TokenB: "USDC", Amount: "1", AmountB: "15"})
	require.NoError(t, err)
	assert.Equal(t, "15", view.Details["amountB"])
}

func TestRemoveLiquidity(t *testing.T) {
	svc := newTestService(t, newFakeChain(), nil)
	ctx := context.Background()

	view, err := svc.Create(ctx, Request{Kind: KindRemoveLiquidity, TokenA: "LINK", TokenB: "UNI", Percent: 50})
	require.NoError(t, err)
	assert.Equal(t, "5", view.Details["liquidity"])
	assert.Equal(t, "50", view.Details["amountA"])
	assert.Equal(t, "100", view.Details["amountB"])
	require.Len(t, view.Spends, 1)
	assert.Equal(t, "LINK-UNI LP", view.Spends[0].Token)

	_, err = svc.Create(ctx, Request{Kind: KindRemoveLiquidity, TokenA: "LINK", TokenB: "UNI", Amount: "11"})
	assert.ErrorIs(t, err, ErrExceedsBalance)

	_, err = svc.Create(ctx, Request{Kind: KindRemoveLiquidity, TokenA: "LINK", TokenB: "UNI", Percent: 150})
	assert.ErrorIs(t, err, ErrInvalidPercent)

	_, err = svc.Create(ctx, Request{Kind: KindRemoveLiquidity, TokenA: "LINK", TokenB: "USDC", Percent: 25})
	assert.ErrorIs(t, err, ErrNoPair)
}

func TestFarmOperations(t *testing.T) {
	backend := newFakeChain()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	view, err := svc.Create(ctx, Request{Kind: KindStake, Farm: "link-uni", Percent: 100})
	require.NoError(t, err)
	assert.Equal(t, "10", view.Details["amount"])
	require.Len(t, view.Spends, 1)
	assert.True(t, view.Spends[0].ApprovalRequired)

	_, err = svc.Create(ctx, Request{Kind: KindUnstake, Farm: "LINK-UNI", Amount: "5"})
	assert.ErrorIs(t, err, ErrExceedsBalance)

	view, err = svc.Create(ctx, Request{Kind: KindUnstake, Farm: "LINK-UNI", Amount: "4"})
	require.NoError(t, err)
	assert.True(t, view.CanExecute)
	_, err = svc.Execute(ctx, view.ID)
	require.NoError(t, err)
	waitFlow(t, svc, view.ID)
	_, method, args := backend.lastSent(t)
	assert.Equal(t, "withdraw", method)
	assert.Equal(t, ether(4), args[0])

	_, err = svc.Create(ctx, Request{Kind: KindClaim, Farm: "LINK-UNI"})
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = svc.Create(ctx, Request{Kind: KindStake, Farm: "nope", Amount: "1"})
	assert.ErrorIs(t, err, ErrUnknownFarm)
}

func TestMint(t *testing.T) {
	backend := newFakeChain()
	svc := newTestService(t, backend, nil)
	ctx := context.Background()

	view, err := svc.Create(ctx, Request{Kind: KindMint, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "0.02", view.Details["total"])
	assert.True(t, view.CanExecute)

	_, err = svc.Execute(ctx, view.ID)
	require.NoError(t, err)
	waitFlow(t, svc, view.ID)
	tx, method, args := backend.lastSent(t)
	assert.Equal(t, "mint", method)
	assert.Equal(t, big.NewInt(2e16), tx.Value())
	assert.Equal(t, big.NewInt(2), args[0])

	_, err = svc.Create(ctx, Request{Kind: KindMint, Quantity: 3})
	assert.ErrorIs(t, err, ErrSoldOut)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newFakeChain(), nil)

	_, err := svc.Create(ctx, Request{Kind: "bridge"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = svc.Create(ctx, Request{Kind: KindSwap, From: "DOGE", To: "USDC", Amount: "1"})
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = svc.Create(ctx, Request{Kind: KindSwap, From: "USDC", To: "LINK", Amount: "0.0000001"})
	assert.ErrorIs(t, err, ErrZeroAmount)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrOperationNotFound)

	watch, err := chain.NewWallet(config.WalletConfig{Type: config.WalletWatch}, 31337)
	require.NoError(t, err)
	disconnected := newTestService(t, newFakeChain(), func(cfg *Config) { cfg.Wallet = watch })
	_, err = disconnected.Create(ctx, Request{Kind: KindMint})
	assert.ErrorIs(t, err, chain.ErrNotConnected)
}

func TestApproveUnknownSpend(t *testing.T) {
	svc := newTestService(t, newFakeChain(), nil)
	view, err := svc.Create(context.Background(), Request{Kind: KindSwap, From: "USDC", To: "LINK", Amount: "1"})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), view.ID, "UNI")
	assert.ErrorIs(t, err, ErrUnknownSpend)
}
