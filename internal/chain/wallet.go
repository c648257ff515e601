package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
)

var (
	// ErrReadOnlyWallet is returned when a watch-only wallet is asked to sign
	ErrReadOnlyWallet = errors.New("wallet is read-only")
	// ErrNotConnected is returned when no wallet address is configured
	ErrNotConnected = errors.New("wallet not connected")
)

// Wallet is the connected account. A watch wallet has an address and no key;
// a watch wallet without an address is disconnected.
type Wallet struct {
	address   *common.Address
	key       *ecdsa.PrivateKey
	chainID   *big.Int
	connector string
}

// NewWallet builds the wallet selected by cfg for chainID
func NewWallet(cfg config.WalletConfig, chainID int64) (*Wallet, error) {
	w := &Wallet{chainID: big.NewInt(chainID), connector: cfg.Type}

	switch cfg.Type {
	case config.WalletPrivateKey:
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		w.key = key
	case config.WalletKeystore:
		data, err := os.ReadFile(cfg.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read keystore: %w", err)
		}
		key, err := keystore.DecryptKey(data, cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
		}
		w.key = key.PrivateKey
	case config.WalletWatch:
		if cfg.Address != "" {
			addr := common.HexToAddress(cfg.Address)
			w.address = &addr
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown connector type %q", cfg.Type)
	}

	addr := crypto.PubkeyToAddress(w.key.PublicKey)
	if cfg.Address != "" && common.HexToAddress(cfg.Address) != addr {
		return nil, fmt.Errorf("configured address %s does not match key address %s", cfg.Address, addr.Hex())
	}
	w.address = &addr
	return w, nil
}

// Address returns the connected address, or nil when disconnected
func (w *Wallet) Address() *common.Address {
	if w == nil || w.address == nil {
		return nil
	}
	addr := *w.address
	return &addr
}

// Connected reports whether an address is bound
func (w *Wallet) Connected() bool { return w.Address() != nil }

// ReadOnly reports whether the wallet cannot sign
func (w *Wallet) ReadOnly() bool { return w == nil || w.key == nil }

// Connector returns the configured connector type
func (w *Wallet) Connector() string { return w.connector }

// ChainID returns the chain the wallet signs for
func (w *Wallet) ChainID() *big.Int { return new(big.Int).Set(w.chainID) }

// TransactOpts returns signing options bound to ctx
func (w *Wallet) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if !w.Connected() {
		return nil, ErrNotConnected
	}
	if w.ReadOnly() {
		return nil, ErrReadOnlyWallet
	}
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}
