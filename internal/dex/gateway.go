package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/chain"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/contracts"
)

// ChainGateway reads allowances and submits approvals through the bound
// wallet. It satisfies txflow.AllowanceReader and txflow.Approver.
type ChainGateway struct {
	backend bind.ContractBackend
	wallet  *chain.Wallet
}

// NewChainGateway creates a gateway over backend signing with wallet
func NewChainGateway(backend bind.ContractBackend, wallet *chain.Wallet) *ChainGateway {
	return &ChainGateway{backend: backend, wallet: wallet}
}

// Allowance reads allowance(owner, spender) on token
func (g *ChainGateway) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return contracts.NewERC20(token, g.backend).Allowance(ctx, owner, spender)
}

// Approve submits approve(spender, amount) on token
func (g *ChainGateway) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	opts, err := g.wallet.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	return contracts.NewERC20(token, g.backend).Approve(opts, spender, amount)
}

// BalanceOf reads an ERC-20 balance, including LP tokens
func (g *ChainGateway) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return contracts.NewERC20(token, g.backend).BalanceOf(ctx, owner)
}
