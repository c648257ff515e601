package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var _ bind.ContractBackend = (*Backend)(nil)

// Backend is a bind.ContractBackend that routes every call through the pool,
// so contract bindings fail over between endpoints
type Backend struct {
	pool *ClientPool
}

// NewBackend creates a Backend over pool
func NewBackend(pool *ClientPool) *Backend {
	return &Backend{pool: pool}
}

func through[T any](ctx context.Context, pool *ClientPool, fn func(*ethclient.Client) (T, error)) (T, error) {
	conn, err := pool.GetClient()
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(conn.Eth)
	if err != nil {
		pool.ReportError(ctx, conn.URL, err)
	}
	return v, err
}

func (b *Backend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) ([]byte, error) {
		return c.CodeAt(ctx, contract, blockNumber)
	})
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) ([]byte, error) {
		return c.CallContract(ctx, call, blockNumber)
	})
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

func (b *Backend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) ([]byte, error) {
		return c.PendingCodeAt(ctx, account)
	})
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) (uint64, error) {
		return c.PendingNonceAt(ctx, account)
	})
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasPrice(ctx)
	})
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasTipCap(ctx)
	})
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) (uint64, error) {
		return c.EstimateGas(ctx, call)
	})
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := through(ctx, b.pool, func(c *ethclient.Client) (struct{}, error) {
		return struct{}{}, c.SendTransaction(ctx, tx)
	})
	return err
}

func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) ([]types.Log, error) {
		return c.FilterLogs(ctx, q)
	})
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) (ethereum.Subscription, error) {
		return c.SubscribeFilterLogs(ctx, q, ch)
	})
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ethereum.NotFound while it is pending
func (b *Backend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) (*types.Receipt, error) {
		return c.TransactionReceipt(ctx, hash)
	})
}

// BalanceAt returns the native balance of account at the latest block
func (b *Backend) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) (*big.Int, error) {
		return c.BalanceAt(ctx, account, nil)
	})
}

// BlockNumber returns the latest block number
func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	return through(ctx, b.pool, func(c *ethclient.Client) (uint64, error) {
		return c.BlockNumber(ctx)
	})
}
