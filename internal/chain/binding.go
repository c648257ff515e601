package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

// Binding is the process-wide connection to the active network. It is built
// once at startup and never rebound.
type Binding struct {
	Network  config.NetworkConfig
	Pool     *ClientPool
	Backend  *Backend
	Reader   *BatchReader
	Receipts *ReceiptPoller
	Wallet   *Wallet
	Registry *config.TokenRegistry
}

// Bind connects to the active network of cfg
func Bind(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*Binding, error) {
	network, err := cfg.ActiveNetwork()
	if err != nil {
		return nil, err
	}

	wallet, err := NewWallet(cfg.Wallet, network.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	pool, err := NewClientPool(ctx, ClientPoolConfig{
		Endpoints: network.RPCEndpoints,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client pool: %w", err)
	}

	backend := NewBackend(pool)
	b := &Binding{
		Network:  network,
		Pool:     pool,
		Backend:  backend,
		Reader:   NewBatchReader(pool),
		Wallet:   wallet,
		Registry: cfg.Registry(),
		Receipts: NewReceiptPoller(ReceiptPollerConfig{
			Source:   backend,
			Logger:   logger,
			Interval: cfg.Trade.ReceiptPollInterval,
			Timeout:  cfg.Trade.ReceiptTimeout,
		}),
	}

	logger.LogInfo(ctx, "bound to network",
		"network", network.Name,
		"chain_id", network.ChainID,
		"wallet", b.WalletAddressHex(),
		"connector", wallet.Connector(),
	)
	return b, nil
}

// VerifyChainID checks that the RPC endpoint serves the configured chain
func (b *Binding) VerifyChainID(ctx context.Context) error {
	conn, err := b.Pool.GetClient()
	if err != nil {
		return err
	}
	id, err := conn.Eth.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if id.Int64() != b.Network.ChainID {
		return fmt.Errorf("unsupported network: endpoint reports chain %s, expected %d", id, b.Network.ChainID)
	}
	return nil
}

// ExplorerTxURL links a transaction on the network's block explorer
func (b *Binding) ExplorerTxURL(hash common.Hash) string {
	if b.Network.ExplorerURL == "" {
		return ""
	}
	return b.Network.ExplorerURL + "/tx/" + hash.Hex()
}

// WalletAddressHex returns the connected address or an empty string
func (b *Binding) WalletAddressHex() string {
	if addr := b.Wallet.Address(); addr != nil {
		return addr.Hex()
	}
	return ""
}

// Close releases the RPC connections
func (b *Binding) Close() {
	b.Pool.Close()
}
