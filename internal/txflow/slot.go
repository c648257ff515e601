// Package txflow drives the approve-then-act transaction lifecycle shared by
// every form: allowance decisions, single-occupancy transaction slots and
// confirmation watching.
package txflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/notification"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

// Status is the lifecycle state of a slot
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusPending
	StatusConfirmed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSubmitting:
		return "submitting"
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Kind distinguishes approval slots from the primary action slot
type Kind string

const (
	KindApproval Kind = "approval"
	KindPrimary  Kind = "primary"
)

// SendFunc signs and broadcasts one transaction
type SendFunc func(ctx context.Context) (*types.Transaction, error)

// Outcome is the terminal result of the last transaction in a slot
type Outcome struct {
	TxHash   common.Hash `json:"txHash"`
	Success  bool        `json:"success"`
	Category Category    `json:"category,omitempty"`
	Message  string      `json:"message,omitempty"`
	At       time.Time   `json:"at"`
}

// SlotConfig configures a Slot
type SlotConfig struct {
	Name        string // e.g. "primary" or "approval:USDC"
	Kind        Kind
	Label       string // user-facing action, e.g. "Approve USDC"
	Operation   string // operation kind, e.g. "swap"
	Wallet      string
	Notifier    notification.Notifier
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	ExplorerURL func(common.Hash) string
	OnConfirmed func(ctx context.Context, hash common.Hash)
}

// Slot holds at most one outstanding transaction. It moves
// Idle → Submitting → Pending → Confirmed|Failed → Idle.
type Slot struct {
	mu          sync.Mutex
	status      Status
	hash        *common.Hash
	submittedAt time.Time
	last        *Outcome

	cfg SlotConfig
	now func() time.Time
}

// NewSlot creates an idle slot
func NewSlot(cfg SlotConfig) *Slot {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Label == "" {
		cfg.Label = cfg.Name
	}
	return &Slot{cfg: cfg, now: time.Now}
}

// Status returns the current state
func (s *Slot) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// TxHash returns the outstanding transaction, if any
func (s *Slot) TxHash() (common.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hash == nil {
		return common.Hash{}, false
	}
	return *s.hash, true
}

// LastOutcome returns the result of the most recent terminal transaction
func (s *Slot) LastOutcome() *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	out := *s.last
	return &out
}

// Submit sends a transaction through send. It fails with ErrSlotBusy unless
// the slot is idle. A send error returns the slot to idle and is reported
// once as a classified *TxError.
func (s *Slot) Submit(ctx context.Context, send SendFunc) (common.Hash, error) {
	s.mu.Lock()
	if s.status != StatusIdle {
		s.mu.Unlock()
		return common.Hash{}, ErrSlotBusy
	}
	s.status = StatusSubmitting
	s.mu.Unlock()

	tx, err := send(ctx)
	if err == nil && tx == nil {
		err = fmt.Errorf("no transaction returned")
	}
	if err != nil {
		txErr := Classify(err)
		s.mu.Lock()
		s.status = StatusIdle
		s.mu.Unlock()

		s.cfg.Metrics.RecordSubmissionError(ctx, s.cfg.Operation, string(s.cfg.Kind), string(txErr.Category))
		s.cfg.Logger.LogWarn(ctx, "transaction submission failed",
			"slot", s.cfg.Name,
			"operation", s.cfg.Operation,
			"category", txErr.Category,
			"error", err.Error(),
		)
		s.notify(ctx, notification.LevelError, s.cfg.Label+" failed", txErr.Message, common.Hash{})
		return common.Hash{}, txErr
	}

	hash := tx.Hash()
	s.mu.Lock()
	s.hash = &hash
	s.submittedAt = s.now()
	s.status = StatusPending
	s.mu.Unlock()

	s.cfg.Metrics.RecordTxSubmitted(ctx, s.cfg.Operation, string(s.cfg.Kind))
	s.cfg.Logger.LogInfo(ctx, "transaction submitted", "slot", s.cfg.Name, "operation", s.cfg.Operation, "tx_hash", hash.Hex())
	s.notify(ctx, notification.LevelInfo, s.cfg.Label+" submitted", "Waiting for confirmation", hash)
	return hash, nil
}

// Resolve records the terminal receipt of hash. Only the first observation
// of a hash has any effect; it reports whether this call resolved the slot.
func (s *Slot) Resolve(ctx context.Context, hash common.Hash, receipt *types.Receipt) bool {
	if receipt == nil {
		return s.Fail(ctx, hash, fmt.Errorf("missing receipt"))
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return s.finish(ctx, hash, nil)
	}
	return s.finish(ctx, hash, fmt.Errorf("%w in block %s", ErrReverted, receipt.BlockNumber))
}

// Fail treats a watcher-side error for hash as a terminal failure, with the
// same idempotency as Resolve
func (s *Slot) Fail(ctx context.Context, hash common.Hash, err error) bool {
	if err == nil {
		err = fmt.Errorf("unknown failure")
	}
	return s.finish(ctx, hash, err)
}

func (s *Slot) finish(ctx context.Context, hash common.Hash, cause error) bool {
	s.mu.Lock()
	if s.hash == nil || *s.hash != hash {
		s.mu.Unlock()
		return false
	}
	s.hash = nil
	success := cause == nil
	if success {
		s.status = StatusConfirmed
	} else {
		s.status = StatusFailed
	}
	latency := s.now().Sub(s.submittedAt)
	s.mu.Unlock()

	outcome := &Outcome{TxHash: hash, Success: success, At: s.now()}
	s.cfg.Metrics.RecordTxOutcome(ctx, s.cfg.Operation, string(s.cfg.Kind), success, latency)

	if success {
		s.cfg.Logger.LogInfo(ctx, "transaction confirmed", "slot", s.cfg.Name, "tx_hash", hash.Hex(), "latency", latency)
		if s.cfg.OnConfirmed != nil {
			s.cfg.OnConfirmed(ctx, hash)
		}
		s.notify(ctx, notification.LevelSuccess, s.cfg.Label+" confirmed", "Transaction confirmed", hash)
	} else {
		txErr := Classify(cause)
		outcome.Category, outcome.Message = txErr.Category, txErr.Message
		s.cfg.Logger.LogWarn(ctx, "transaction failed", "slot", s.cfg.Name, "tx_hash", hash.Hex(), "error", cause.Error())
		s.notify(ctx, notification.LevelError, s.cfg.Label+" failed", txErr.Message, hash)
	}

	s.mu.Lock()
	s.status = StatusIdle
	s.last = outcome
	s.mu.Unlock()
	return true
}

func (s *Slot) notify(ctx context.Context, level notification.Level, title, message string, hash common.Hash) {
	if s.cfg.Notifier == nil {
		return
	}
	n := notification.New(level, title, message)
	n.Operation = s.cfg.Operation
	n.Slot = s.cfg.Name
	n.Wallet = s.cfg.Wallet
	if hash != (common.Hash{}) {
		n.TxHash = hash.Hex()
		if s.cfg.ExplorerURL != nil {
			n.Explorer = s.cfg.ExplorerURL(hash)
		}
	}
	if err := s.cfg.Notifier.Notify(ctx, n); err != nil {
		s.cfg.Logger.LogError(ctx, "failed to deliver notification", err, "notification_id", n.ID)
	}
}
