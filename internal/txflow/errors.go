package txflow

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/chain"
)

// MaxErrorMessageLen bounds the message of an unrecognized error
const MaxErrorMessageLen = 120

var (
	// ErrSlotBusy is returned when a slot already has a transaction outstanding
	ErrSlotBusy = errors.New("a transaction is already in progress")
	// ErrApprovalRequired is returned when executing with an insufficient or unknown allowance
	ErrApprovalRequired = errors.New("approval required")
	// ErrNoApprovalNeeded is returned when approving a token the operation does not spend
	ErrNoApprovalNeeded = errors.New("no approval needed for this token")
	// ErrOperationCompleted is returned when executing an operation that already confirmed
	ErrOperationCompleted = errors.New("operation already completed")
	// ErrReverted marks a transaction that was mined with a failed status
	ErrReverted = errors.New("transaction reverted")
)

// Category classifies a wallet or provider error
type Category string

const (
	CategoryUserRejected      Category = "user_rejected"
	CategoryInsufficientFunds Category = "insufficient_funds"
	CategoryReverted          Category = "reverted"
	CategoryNonce             Category = "nonce"
	CategoryNetwork           Category = "network"
	CategoryUnknown           Category = "unknown"
)

var categoryMessages = map[Category]string{
	CategoryUserRejected:      "Transaction was rejected in the wallet",
	CategoryInsufficientFunds: "Insufficient funds for gas or value",
	CategoryReverted:          "Transaction reverted on-chain",
	CategoryNonce:             "Nonce is stale or the replacement fee is too low",
	CategoryNetwork:           "Network error: the RPC endpoint could not be reached",
}

// TxError is a classified transaction error with a user-facing message
type TxError struct {
	Category Category
	Message  string
	Err      error
}

func (e *TxError) Error() string { return e.Message }

func (e *TxError) Unwrap() error { return e.Err }

// EIP-1193 provider code for a user-declined request
const codeUserRejected = 4001

// Classify maps err to one of the fixed categories. An error that is already
// a *TxError is returned as is.
func Classify(err error) *TxError {
	if err == nil {
		return nil
	}
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr
	}

	category := categorize(err)
	msg, ok := categoryMessages[category]
	if !ok {
		msg = truncate(err.Error(), MaxErrorMessageLen)
	}
	return &TxError{Category: category, Message: msg, Err: err}
}

func categorize(err error) Category {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
		return CategoryUserRejected
	}
	if errors.Is(err, chain.ErrReadOnlyWallet) {
		return CategoryUserRejected
	}
	if errors.Is(err, core.ErrInsufficientFunds) {
		return CategoryInsufficientFunds
	}
	if errors.Is(err, core.ErrNonceTooLow) || errors.Is(err, core.ErrNonceTooHigh) {
		return CategoryNonce
	}
	if errors.Is(err, ErrReverted) {
		return CategoryReverted
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "user rejected", "user denied", "rejected by user"):
		return CategoryUserRejected
	case containsAny(msg, "insufficient funds"):
		return CategoryInsufficientFunds
	case containsAny(msg, "nonce too low", "nonce too high", "replacement transaction underpriced",
		"transaction underpriced", "already known"):
		return CategoryNonce
	case containsAny(msg, "execution reverted", "reverted"):
		return CategoryReverted
	}

	if errors.Is(err, chain.ErrNoHealthyEndpoint) || errors.Is(err, chain.ErrReceiptTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return CategoryNetwork
	}
	if containsAny(msg, "connection refused", "connection reset", "no such host", "unexpected eof", "timeout") {
		return CategoryNetwork
	}
	return CategoryUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
