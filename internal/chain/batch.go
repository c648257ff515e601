package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/contracts"
)

// BalanceResult is one element of a batched balance read
type BalanceResult struct {
	Balance *big.Int
	Err     error
}

// BatchReader reads balances through JSON-RPC batches
type BatchReader struct {
	pool *ClientPool
}

// NewBatchReader creates a BatchReader over pool
func NewBatchReader(pool *ClientPool) *BatchReader {
	return &BatchReader{pool: pool}
}

// NativeBalance reads the native balance of owner
func (r *BatchReader) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	conn, err := r.pool.GetClient()
	if err != nil {
		return nil, err
	}
	var result hexutil.Big
	if err := conn.RPC.CallContext(ctx, &result, "eth_getBalance", owner, "latest"); err != nil {
		r.pool.ReportError(ctx, conn.URL, err)
		return nil, fmt.Errorf("eth_getBalance: %w", err)
	}
	return result.ToInt(), nil
}

// TokenBalances reads balanceOf(owner) for every token in one batch. The
// returned slice matches tokens by index; a failed element carries its own
// error. A transport failure fails the whole batch.
func (r *BatchReader) TokenBalances(ctx context.Context, owner common.Address, tokens []common.Address) ([]BalanceResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	data, err := contracts.ERC20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	outputs := make([]hexutil.Bytes, len(tokens))
	batch := make([]rpc.BatchElem, len(tokens))
	for i, token := range tokens {
		batch[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []any{
				map[string]any{"to": token, "data": hexutil.Bytes(data)},
				"latest",
			},
			Result: &outputs[i],
		}
	}

	conn, err := r.pool.GetClient()
	if err != nil {
		return nil, err
	}
	if err := conn.RPC.BatchCallContext(ctx, batch); err != nil {
		r.pool.ReportError(ctx, conn.URL, err)
		return nil, fmt.Errorf("balance batch: %w", err)
	}

	results := make([]BalanceResult, len(tokens))
	for i, elem := range batch {
		if elem.Error != nil {
			results[i].Err = fmt.Errorf("balanceOf %s: %w", tokens[i].Hex(), elem.Error)
			continue
		}
		results[i].Balance, results[i].Err = decodeBalance(outputs[i])
		if results[i].Err != nil {
			results[i].Err = fmt.Errorf("balanceOf %s: %w", tokens[i].Hex(), results[i].Err)
		}
	}
	return results, nil
}

func decodeBalance(raw []byte) (*big.Int, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	out, err := contracts.ERC20ABI.Unpack("balanceOf", raw)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", out[0])
	}
	return balance, nil
}
