package txflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/amount"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/chain"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/notification"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	router = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	usdc   = config.Token{Symbol: "USDC", Address: common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"), Decimals: 6}
	link   = config.Token{Symbol: "LINK", Address: common.HexToAddress("0x779877A7B0D9E8603169DdbD7836e478b4624789"), Decimals: 18}
	eth    = config.Token{Symbol: "ETH", Address: config.NativeAddress, Decimals: 18}
)

type fakeAllowances struct {
	mu     sync.Mutex
	values map[common.Address]*big.Int
	errs   map[common.Address]error
	reads  map[common.Address]int
}

func newFakeAllowances() *fakeAllowances {
	return &fakeAllowances{
		values: map[common.Address]*big.Int{},
		errs:   map[common.Address]error{},
		reads:  map[common.Address]int{},
	}
}

func (f *fakeAllowances) Allowance(_ context.Context, token, _, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[token]++
	if err := f.errs[token]; err != nil {
		return nil, err
	}
	if v, ok := f.values[token]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *fakeAllowances) set(token common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[token] = v
}

func (f *fakeAllowances) readCount(token common.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[token]
}

// gatedAllowances holds the first read until the test releases it
type gatedAllowances struct {
	*fakeAllowances
	held    atomic.Bool
	started chan struct{}
	release chan *big.Int
}

func newGatedAllowances(inner *fakeAllowances) *gatedAllowances {
	return &gatedAllowances{
		fakeAllowances: inner,
		started:        make(chan struct{}),
		release:        make(chan *big.Int),
	}
}

func (g *gatedAllowances) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	if g.held.CompareAndSwap(false, true) {
		close(g.started)
		return <-g.release, nil
	}
	return g.fakeAllowances.Allowance(ctx, token, owner, spender)
}

var nonce atomic.Uint64

func newTx() *types.Transaction {
	return types.NewTx(&types.LegacyTx{Nonce: nonce.Add(1), Gas: 21000, GasPrice: big.NewInt(1)})
}

type fakeApprover struct {
	mu      sync.Mutex
	amounts []*big.Int
	err     error
}

func (f *fakeApprover) Approve(_ context.Context, _, _ common.Address, amt *big.Int) (*types.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts = append(f.amounts, amt)
	if f.err != nil {
		return nil, f.err
	}
	return newTx(), nil
}

type receiptResult struct {
	receipt *types.Receipt
	err     error
}

// manualReceipts lets a test decide when and how each transaction resolves
type manualReceipts struct {
	mu      sync.Mutex
	waiters map[common.Hash]chan receiptResult
}

func newManualReceipts() *manualReceipts {
	return &manualReceipts{waiters: map[common.Hash]chan receiptResult{}}
}

func (m *manualReceipts) channel(hash common.Hash) chan receiptResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.waiters[hash]
	if !ok {
		ch = make(chan receiptResult, 1)
		m.waiters[hash] = ch
	}
	return ch
}

func (m *manualReceipts) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	select {
	case r := <-m.channel(hash):
		return r.receipt, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *manualReceipts) confirm(hash common.Hash) {
	m.channel(hash) <- receiptResult{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}}
}

func (m *manualReceipts) revert(hash common.Hash) {
	m.channel(hash) <- receiptResult{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: hash, BlockNumber: big.NewInt(7)}}
}

func (m *manualReceipts) lose(hash common.Hash, err error) {
	m.channel(hash) <- receiptResult{err: err}
}

type countingBalances struct{ calls atomic.Int32 }

func (c *countingBalances) Refresh(context.Context, *common.Address) error {
	c.calls.Add(1)
	return nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notification.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.got))
	for i, n := range r.got {
		out[i] = n.Title
	}
	return out
}

type harness struct {
	allowances *fakeAllowances
	approver   *fakeApprover
	receipts   *manualReceipts
	balances   *countingBalances
	notifier   *recordingNotifier
	actions    atomic.Int32
	actionErr  error
	cleared    atomic.Int32

	reader AllowanceReader  // overrides allowances when set
	base   context.Context // watcher context, background when nil
}

func newHarness() *harness {
	return &harness{
		allowances: newFakeAllowances(),
		approver:   &fakeApprover{},
		receipts:   newManualReceipts(),
		balances:   &countingBalances{},
		notifier:   &recordingNotifier{},
	}
}

func (h *harness) flow(t *testing.T, changesBalances bool, spends ...Spend) *Flow {
	t.Helper()
	var reader AllowanceReader = h.allowances
	if h.reader != nil {
		reader = h.reader
	}
	f, err := New(Operation{
		ID:     "op-1",
		Kind:   "swap",
		Title:  "Swap",
		Owner:  owner,
		Spends: spends,
		Action: func(context.Context) (*types.Transaction, error) {
			h.actions.Add(1)
			if h.actionErr != nil {
				return nil, h.actionErr
			}
			return newTx(), nil
		},
		ChangesBalances: changesBalances,
	}, Config{
		Allowances:  reader,
		Approver:    h.approver,
		Receipts:    h.receipts,
		Balances:    h.balances,
		Notifier:    h.notifier,
		BaseContext: h.base,
		OnCleared:   func(context.Context) { h.cleared.Add(1) },
	})
	require.NoError(t, err)
	return f
}

func spendOf(token config.Token, units int64) Spend {
	return Spend{Token: token, Spender: router, Amount: big.NewInt(units)}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name             string
		spend            Spend
		allowance        *big.Int
		approvalRequired bool
		actionEnabled    bool
	}{
		{"native asset never needs approval", spendOf(eth, 100), nil, false, true},
		{"unknown allowance disables action", spendOf(usdc, 100), nil, false, false},
		{"insufficient allowance", spendOf(usdc, 100), big.NewInt(99), true, false},
		{"exact allowance", spendOf(usdc, 100), big.NewInt(100), false, true},
		{"unlimited allowance", spendOf(usdc, 100), amount.MaxUint256, false, true},
		{"zero allowance", spendOf(usdc, 1), big.NewInt(0), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.spend, tt.allowance)
			assert.Equal(t, tt.approvalRequired, d.ApprovalRequired)
			assert.Equal(t, tt.actionEnabled, d.ActionEnabled)
		})
	}
	assert.True(t, IsUnlimited(amount.MaxUint256))
	assert.False(t, IsUnlimited(nil))
}

func TestFlow_ApproveRequestsMaxAllowance(t *testing.T) {
	h := newHarness()
	f := h.flow(t, true, spendOf(usdc, 5_000_000))

	hash, err := f.Approve(context.Background(), usdc.Address)
	require.NoError(t, err)
	h.receipts.confirm(hash)
	f.Wait()

	require.Len(t, h.approver.amounts, 1)
	assert.Equal(t, 0, amount.MaxUint256.Cmp(h.approver.amounts[0]))
}

func TestFlow_ApproveRefusedWhenAllowanceCovers(t *testing.T) {
	h := newHarness()
	h.allowances.set(usdc.Address, amount.MaxUint256)
	f := h.flow(t, true, spendOf(usdc, 10))

	_, err := f.Approve(context.Background(), usdc.Address)
	assert.ErrorIs(t, err, ErrNoApprovalNeeded)
	assert.Empty(t, h.approver.amounts)
	assert.Empty(t, h.notifier.titles())
	assert.Equal(t, StatusIdle, f.State().Spends[0].Approval.Status)
}

func TestFlow_ApproveRefusedWhenAllowanceUnknown(t *testing.T) {
	h := newHarness()
	h.allowances.errs[usdc.Address] = errors.New("rpc down")
	f := h.flow(t, true, spendOf(usdc, 10))

	_, err := f.Approve(context.Background(), usdc.Address)
	assert.ErrorIs(t, err, ErrNoApprovalNeeded)
	assert.Empty(t, h.approver.amounts)
}

func TestFlow_StaleAllowanceReadIsDropped(t *testing.T) {
	h := newHarness()
	gated := newGatedAllowances(h.allowances)
	h.reader = gated
	f := h.flow(t, true, spendOf(usdc, 100))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.RefreshAllowances(ctx)
	}()
	<-gated.started

	h.allowances.set(usdc.Address, amount.MaxUint256)
	f.RefreshAllowances(ctx)
	require.True(t, f.State().CanExecute)

	gated.release <- big.NewInt(0)
	<-done

	st := f.State()
	assert.True(t, st.CanExecute, "older read must not overwrite the newer allowance")
	assert.False(t, st.Spends[0].ApprovalRequired)
}

func TestFlow_ApproveUnknownToken(t *testing.T) {
	h := newHarness()
	f := h.flow(t, true, spendOf(eth, 1))

	_, err := f.Approve(context.Background(), eth.Address)
	assert.ErrorIs(t, err, ErrNoApprovalNeeded)
}

func TestFlow_ExecuteRefusedWithoutAllowance(t *testing.T) {
	t.Run("insufficient", func(t *testing.T) {
		h := newHarness()
		h.allowances.set(usdc.Address, big.NewInt(10))
		f := h.flow(t, true, spendOf(usdc, 100))

		_, err := f.Execute(context.Background())
		assert.ErrorIs(t, err, ErrApprovalRequired)
		assert.Zero(t, h.actions.Load())
		assert.Empty(t, h.notifier.titles())
	})

	t.Run("unknown after read failure", func(t *testing.T) {
		h := newHarness()
		h.allowances.errs[usdc.Address] = errors.New("rpc down")
		f := h.flow(t, true, spendOf(usdc, 100))

		_, err := f.Execute(context.Background())
		assert.ErrorIs(t, err, ErrApprovalRequired)
		assert.Zero(t, h.actions.Load())

		st := f.State()
		require.Len(t, st.Spends, 1)
		assert.Nil(t, st.Spends[0].Allowance)
		assert.False(t, st.Spends[0].ApprovalRequired)
		assert.False(t, st.CanExecute)
	})
}

func TestFlow_ApproveThenExecute(t *testing.T) {
	h := newHarness()
	f := h.flow(t, true, spendOf(usdc, 100))
	ctx := context.Background()

	f.RefreshAllowances(ctx)
	st := f.State()
	assert.True(t, st.Spends[0].ApprovalRequired)
	assert.False(t, st.CanExecute)

	approveHash, err := f.Approve(ctx, usdc.Address)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, f.State().Spends[0].Approval.Status)

	h.allowances.set(usdc.Address, amount.MaxUint256)
	readsBefore := h.allowances.readCount(usdc.Address)
	h.receipts.confirm(approveHash)
	f.Wait()

	assert.Equal(t, readsBefore+1, h.allowances.readCount(usdc.Address), "approval confirmation re-reads that allowance")
	assert.Zero(t, h.balances.calls.Load(), "approval confirmation does not refresh balances")
	assert.True(t, f.State().CanExecute)

	execHash, err := f.Execute(ctx)
	require.NoError(t, err)
	assert.False(t, f.State().CanExecute)

	h.receipts.confirm(execHash)
	f.Wait()

	assert.Equal(t, int32(1), h.actions.Load())
	assert.Equal(t, int32(1), h.balances.calls.Load())
	assert.Equal(t, int32(1), h.cleared.Load())
	assert.True(t, f.Cleared())
	assert.Equal(t, []string{
		"Approve USDC submitted",
		"Approve USDC confirmed",
		"Swap submitted",
		"Swap confirmed",
	}, h.notifier.titles())

	_, err = f.Execute(ctx)
	assert.ErrorIs(t, err, ErrOperationCompleted)
}

func TestFlow_BalancesUntouchedWhenActionDoesNotChangeThem(t *testing.T) {
	h := newHarness()
	f := h.flow(t, false, spendOf(eth, 1))

	hash, err := f.Execute(context.Background())
	require.NoError(t, err)
	h.receipts.confirm(hash)
	f.Wait()

	assert.Zero(t, h.balances.calls.Load())
	assert.Equal(t, int32(1), h.cleared.Load())
}

func TestFlow_ConcurrentApprovals(t *testing.T) {
	h := newHarness()
	f := h.flow(t, true, spendOf(usdc, 100), spendOf(link, 100))
	ctx := context.Background()

	a, err := f.Approve(ctx, usdc.Address)
	require.NoError(t, err)
	b, err := f.Approve(ctx, link.Address)
	require.NoError(t, err)
	assert.True(t, f.Busy())

	_, err = f.Approve(ctx, usdc.Address)
	assert.ErrorIs(t, err, ErrSlotBusy)

	h.receipts.confirm(b)
	h.receipts.confirm(a)
	f.Wait()
	assert.False(t, f.Busy())
}

func TestFlow_RevertMutatesNothing(t *testing.T) {
	h := newHarness()
	h.allowances.set(usdc.Address, amount.MaxUint256)
	f := h.flow(t, true, spendOf(usdc, 100))

	hash, err := f.Execute(context.Background())
	require.NoError(t, err)
	reads := h.allowances.readCount(usdc.Address)

	h.receipts.revert(hash)
	f.Wait()

	assert.Equal(t, reads, h.allowances.readCount(usdc.Address))
	assert.Zero(t, h.balances.calls.Load())
	assert.Zero(t, h.cleared.Load())
	assert.False(t, f.Cleared())

	st := f.State()
	assert.Equal(t, StatusIdle, st.Primary.Status)
	require.NotNil(t, st.Primary.Last)
	assert.False(t, st.Primary.Last.Success)
	assert.Equal(t, CategoryReverted, st.Primary.Last.Category)
	assert.Equal(t, []string{"Swap submitted", "Swap failed"}, h.notifier.titles())

	// the user may resubmit
	_, err = f.Execute(context.Background())
	assert.NoError(t, err)
}

func TestFlow_WatcherFailureIsTerminal(t *testing.T) {
	h := newHarness()
	f := h.flow(t, true, spendOf(eth, 1))

	hash, err := f.Execute(context.Background())
	require.NoError(t, err)
	h.receipts.lose(hash, fmt.Errorf("receipt lookup: %w", chain.ErrNoHealthyEndpoint))
	f.Wait()

	st := f.State()
	assert.Equal(t, StatusIdle, st.Primary.Status)
	assert.Equal(t, CategoryNetwork, st.Primary.Last.Category)
	assert.Zero(t, h.balances.calls.Load())
}

func TestFlow_ShutdownDoesNotFailPendingTransaction(t *testing.T) {
	h := newHarness()
	base, cancel := context.WithCancel(context.Background())
	h.base = base
	f := h.flow(t, true, spendOf(eth, 1))

	_, err := f.Execute(context.Background())
	require.NoError(t, err)
	cancel()
	f.Wait()

	st := f.State()
	assert.Equal(t, StatusPending, st.Primary.Status)
	assert.Nil(t, st.Primary.Last)
	assert.Equal(t, []string{"Swap submitted"}, h.notifier.titles())
	assert.Zero(t, h.balances.calls.Load())
	assert.False(t, f.Cleared())
}

func TestFlow_SubmissionError(t *testing.T) {
	h := newHarness()
	h.actionErr = errors.New("MetaMask Tx Signature: User denied transaction signature.")
	f := h.flow(t, true, spendOf(eth, 1))

	_, err := f.Execute(context.Background())
	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, CategoryUserRejected, txErr.Category)
	assert.Equal(t, StatusIdle, f.State().Primary.Status)
	assert.Equal(t, []string{"Swap failed"}, h.notifier.titles())
}

func TestSlot_ResolveIsIdempotent(t *testing.T) {
	notifier := &recordingNotifier{}
	confirmations := 0
	slot := NewSlot(SlotConfig{
		Name:        "primary",
		Kind:        KindPrimary,
		Label:       "Stake",
		Notifier:    notifier,
		OnConfirmed: func(context.Context, common.Hash) { confirmations++ },
	})
	ctx := context.Background()

	hash, err := slot.Submit(ctx, func(context.Context) (*types.Transaction, error) { return newTx(), nil })
	require.NoError(t, err)

	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful}
	assert.True(t, slot.Resolve(ctx, hash, receipt))
	assert.False(t, slot.Resolve(ctx, hash, receipt))
	assert.False(t, slot.Fail(ctx, hash, errors.New("late watcher error")))

	assert.Equal(t, 1, confirmations)
	assert.Equal(t, []string{"Stake submitted", "Stake confirmed"}, notifier.titles())
	assert.Equal(t, StatusIdle, slot.Status())
	_, pending := slot.TxHash()
	assert.False(t, pending)
}

func TestSlot_BusyWhileSubmitting(t *testing.T) {
	slot := NewSlot(SlotConfig{Name: "primary", Kind: KindPrimary})
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = slot.Submit(context.Background(), func(context.Context) (*types.Transaction, error) {
			close(started)
			<-release
			return newTx(), nil
		})
	}()
	<-started

	assert.Equal(t, StatusSubmitting, slot.Status())
	_, err := slot.Submit(context.Background(), func(context.Context) (*types.Transaction, error) { return newTx(), nil })
	assert.ErrorIs(t, err, ErrSlotBusy)
	close(release)

	require.Eventually(t, func() bool { return slot.Status() == StatusPending }, time.Second, time.Millisecond)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
	}{
		{"read-only wallet", chain.ErrReadOnlyWallet, CategoryUserRejected},
		{"user rejected text", errors.New("user rejected transaction"), CategoryUserRejected},
		{"insufficient funds", fmt.Errorf("send: %w", core.ErrInsufficientFunds), CategoryInsufficientFunds},
		{"insufficient funds text", errors.New("insufficient funds for gas * price + value"), CategoryInsufficientFunds},
		{"nonce too low", errors.New("nonce too low: next nonce 5, tx nonce 4"), CategoryNonce},
		{"underpriced replacement", errors.New("replacement transaction underpriced"), CategoryNonce},
		{"reverted", errors.New("execution reverted: UniswapV2Router: EXPIRED"), CategoryReverted},
		{"mined revert", fmt.Errorf("%w in block 7", ErrReverted), CategoryReverted},
		{"no endpoint", chain.ErrNoHealthyEndpoint, CategoryNetwork},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), CategoryNetwork},
		{"unknown", errors.New("something odd"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txErr := Classify(tt.err)
			assert.Equal(t, tt.category, txErr.Category)
			assert.ErrorIs(t, txErr, tt.err)
			assert.NotEmpty(t, txErr.Message)
		})
	}

	assert.Nil(t, Classify(nil))
	assert.Equal(t, "something odd", Classify(errors.New("something odd")).Message)

	long := Classify(errors.New(strings.Repeat("x", 500)))
	assert.Equal(t, MaxErrorMessageLen, len([]rune(long.Message)))

	wrapped := Classify(Classify(errors.New("user denied")))
	assert.Equal(t, CategoryUserRejected, wrapped.Category)
}
