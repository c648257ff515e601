package txflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/amount"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/notification"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

// AllowanceReader reads ERC-20 allowances
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// Approver submits ERC-20 approvals
type Approver interface {
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Transaction, error)
}

// ReceiptWaiter blocks until a transaction reaches a terminal state
type ReceiptWaiter interface {
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// BalanceRefresher re-reads the wallet balances
type BalanceRefresher interface {
	Refresh(ctx context.Context, owner *common.Address) error
}

// Spend is one token the primary action transfers on the owner's behalf
type Spend struct {
	Token   config.Token
	Spender common.Address
	Amount  *big.Int
}

// Operation is a primary action together with the spends it needs approved
type Operation struct {
	ID              string
	Kind            string // swap, add-liquidity, ...
	Title           string // user-facing label, e.g. "Swap"
	Owner           common.Address
	Spends          []Spend
	Action          SendFunc
	ChangesBalances bool
}

// Config holds the collaborators of a Flow
type Config struct {
	Allowances  AllowanceReader
	Approver    Approver
	Receipts    ReceiptWaiter
	Balances    BalanceRefresher // optional
	Notifier    notification.Notifier
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	ExplorerURL func(common.Hash) string

	// BaseContext bounds confirmation watchers; they outlive the request
	// that submitted the transaction
	BaseContext context.Context

	// OnCleared runs once after the primary action confirms
	OnCleared func(ctx context.Context)
}

// Flow is the approval/transaction state machine of one operation. It holds
// one approval slot per spent ERC-20 token and one primary slot.
type Flow struct {
	op        Operation
	cfg       Config
	approvals map[common.Address]*Slot
	primary   *Slot

	mu         sync.RWMutex
	allowances map[common.Address]*big.Int // nil value: unknown
	readGen    map[common.Address]uint64    // last allowance read started
	storedGen  map[common.Address]uint64    // read whose result is stored
	cleared    bool

	watchers sync.WaitGroup
}

// New creates a Flow for op. Allowances start unknown until RefreshAllowances.
func New(op Operation, cfg Config) (*Flow, error) {
	if op.Action == nil {
		return nil, fmt.Errorf("operation %s has no action", op.Kind)
	}
	if cfg.Allowances == nil || cfg.Approver == nil || cfg.Receipts == nil {
		return nil, fmt.Errorf("allowance reader, approver and receipt waiter are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if op.Title == "" {
		op.Title = op.Kind
	}

	f := &Flow{
		op:         op,
		cfg:        cfg,
		approvals:  make(map[common.Address]*Slot),
		allowances: make(map[common.Address]*big.Int),
		readGen:    make(map[common.Address]uint64),
		storedGen:  make(map[common.Address]uint64),
	}

	wallet := op.Owner.Hex()
	for _, spend := range op.Spends {
		if spend.Token.IsNative() {
			continue
		}
		if _, dup := f.approvals[spend.Token.Address]; dup {
			return nil, fmt.Errorf("token %s is spent twice", spend.Token.Symbol)
		}
		token := spend.Token.Address
		f.approvals[token] = NewSlot(SlotConfig{
			Name:        "approval:" + spend.Token.Symbol,
			Kind:        KindApproval,
			Label:       "Approve " + spend.Token.Symbol,
			Operation:   op.Kind,
			Wallet:      wallet,
			Notifier:    cfg.Notifier,
			Logger:      cfg.Logger,
			Metrics:     cfg.Metrics,
			ExplorerURL: cfg.ExplorerURL,
			OnConfirmed: func(ctx context.Context, _ common.Hash) {
				f.refreshAllowance(ctx, token)
			},
		})
	}

	f.primary = NewSlot(SlotConfig{
		Name:        "primary",
		Kind:        KindPrimary,
		Label:       op.Title,
		Operation:   op.Kind,
		Wallet:      wallet,
		Notifier:    cfg.Notifier,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
		ExplorerURL: cfg.ExplorerURL,
		OnConfirmed: f.onPrimaryConfirmed,
	})
	return f, nil
}

// ID returns the operation id
func (f *Flow) ID() string { return f.op.ID }

// Operation returns the operation the flow drives
func (f *Flow) Operation() Operation { return f.op }

// RefreshAllowances re-reads every ERC-20 allowance concurrently. A failed
// read leaves that allowance unknown.
func (f *Flow) RefreshAllowances(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, spend := range f.op.Spends {
		if spend.Token.IsNative() {
			continue
		}
		token := spend.Token.Address
		g.Go(func() error {
			f.refreshAllowance(gctx, token)
			return nil
		})
	}
	_ = g.Wait()
}

func (f *Flow) refreshAllowance(ctx context.Context, token common.Address) {
	spend, ok := f.spend(token)
	if !ok {
		return
	}
	f.mu.Lock()
	f.readGen[token]++
	gen := f.readGen[token]
	f.mu.Unlock()

	allowance, err := f.cfg.Allowances.Allowance(ctx, token, f.op.Owner, spend.Spender)
	if err != nil {
		f.cfg.Logger.LogWarn(ctx, "allowance read failed",
			"operation_id", f.op.ID,
			"token", spend.Token.Symbol,
			"error", err.Error(),
		)
		allowance = nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// a read that started earlier must not overwrite a newer result
	if gen < f.storedGen[token] {
		return
	}
	f.storedGen[token] = gen
	f.allowances[token] = allowance
}

func (f *Flow) spend(token common.Address) (Spend, bool) {
	for _, s := range f.op.Spends {
		if s.Token.Address == token {
			return s, true
		}
	}
	return Spend{}, false
}

// Decisions returns the allowance decision of every spend, in spend order
func (f *Flow) Decisions() []Decision {
	f.mu.RLock()
	defer f.mu.RUnlock()

	decisions := make([]Decision, len(f.op.Spends))
	for i, spend := range f.op.Spends {
		decisions[i] = Decide(spend, f.allowances[spend.Token.Address])
	}
	return decisions
}

// Approve submits a maximum allowance approval for token and watches it.
// The allowance is re-read first and the approval is refused when it already
// covers the spend. Approvals of different tokens may be pending at the same
// time.
func (f *Flow) Approve(ctx context.Context, token common.Address) (common.Hash, error) {
	slot, ok := f.approvals[token]
	if !ok {
		return common.Hash{}, ErrNoApprovalNeeded
	}
	if slot.Status() != StatusIdle {
		return common.Hash{}, ErrSlotBusy
	}
	spend, _ := f.spend(token)

	f.refreshAllowance(ctx, token)
	f.mu.RLock()
	d := Decide(spend, f.allowances[token])
	f.mu.RUnlock()
	if !d.ApprovalRequired {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrNoApprovalNeeded, spend.Token.Symbol)
	}

	hash, err := slot.Submit(ctx, func(ctx context.Context) (*types.Transaction, error) {
		return f.cfg.Approver.Approve(ctx, token, spend.Spender, amount.MaxUint256)
	})
	if err != nil {
		return common.Hash{}, err
	}
	f.watch(slot, hash)
	return hash, nil
}

// Execute submits the primary action. Allowances are re-read first and the
// action is refused unless every spend is covered.
func (f *Flow) Execute(ctx context.Context) (common.Hash, error) {
	if f.Cleared() {
		return common.Hash{}, ErrOperationCompleted
	}
	if f.primary.Status() != StatusIdle {
		return common.Hash{}, ErrSlotBusy
	}

	f.RefreshAllowances(ctx)
	for _, d := range f.Decisions() {
		if !d.ActionEnabled {
			return common.Hash{}, fmt.Errorf("%w: %s", ErrApprovalRequired, d.Token)
		}
	}

	hash, err := f.primary.Submit(ctx, f.op.Action)
	if err != nil {
		return common.Hash{}, err
	}
	f.watch(f.primary, hash)
	return hash, nil
}

func (f *Flow) watch(slot *Slot, hash common.Hash) {
	f.watchers.Add(1)
	go func() {
		defer f.watchers.Done()
		ctx := f.cfg.BaseContext
		receipt, err := f.cfg.Receipts.WaitReceipt(ctx, hash)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// shutting down: the transaction's fate is unknown, not failed
			f.cfg.Logger.LogInfo(context.Background(), "stopped watching transaction",
				"operation_id", f.op.ID,
				"tx_hash", hash.Hex(),
			)
			return
		}
		if err != nil {
			slot.Fail(ctx, hash, err)
			return
		}
		slot.Resolve(ctx, hash, receipt)
	}()
}

func (f *Flow) onPrimaryConfirmed(ctx context.Context, _ common.Hash) {
	f.RefreshAllowances(ctx)

	if f.op.ChangesBalances && f.cfg.Balances != nil {
		owner := f.op.Owner
		if err := f.cfg.Balances.Refresh(ctx, &owner); err != nil {
			f.cfg.Logger.LogError(ctx, "balance refresh after confirmation failed", err, "operation_id", f.op.ID)
		}
	}

	f.mu.Lock()
	f.cleared = true
	f.mu.Unlock()
	if f.cfg.OnCleared != nil {
		f.cfg.OnCleared(ctx)
	}
}

// Cleared reports whether the primary action has confirmed and the
// operation's amounts were cleared
func (f *Flow) Cleared() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cleared
}

// Wait blocks until every confirmation watcher has finished
func (f *Flow) Wait() {
	f.watchers.Wait()
}

// Busy reports whether any slot has a transaction outstanding
func (f *Flow) Busy() bool {
	if f.primary.Status() != StatusIdle {
		return true
	}
	for _, slot := range f.approvals {
		if slot.Status() != StatusIdle {
			return true
		}
	}
	return false
}
