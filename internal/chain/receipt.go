package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

// ErrReceiptTimeout is returned when a transaction is not mined in time
var ErrReceiptTimeout = errors.New("timed out waiting for receipt")

// ReceiptSource fetches transaction receipts
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// ReceiptPollerConfig holds receipt polling configuration
type ReceiptPollerConfig struct {
	Source       ReceiptSource
	Logger       *observability.Logger
	Interval     time.Duration
	Timeout      time.Duration
	MaxRPCErrors int // consecutive non-NotFound errors before giving up
}

// ReceiptPoller waits for transactions by polling for their receipts
type ReceiptPoller struct {
	source       ReceiptSource
	logger       *observability.Logger
	interval     time.Duration
	timeout      time.Duration
	maxRPCErrors int
}

// NewReceiptPoller creates a ReceiptPoller
func NewReceiptPoller(cfg ReceiptPollerConfig) *ReceiptPoller {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.MaxRPCErrors == 0 {
		cfg.MaxRPCErrors = 3
	}
	return &ReceiptPoller{
		source:       cfg.Source,
		logger:       cfg.Logger,
		interval:     cfg.Interval,
		timeout:      cfg.Timeout,
		maxRPCErrors: cfg.MaxRPCErrors,
	}
}

// WaitReceipt blocks until hash is mined and returns its receipt. Losing the
// RPC connection or hitting the timeout is reported as an error.
func (p *ReceiptPoller) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failures := 0
	for {
		receipt, err := p.source.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			failures = 0
		case ctx.Err() != nil:
		default:
			failures++
			p.logger.LogWarn(ctx, "receipt lookup failed", "tx_hash", hash.Hex(), "attempt", failures, "error", err.Error())
			if failures >= p.maxRPCErrors {
				return nil, fmt.Errorf("receipt lookup for %s: %w", hash.Hex(), err)
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash.Hex())
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
