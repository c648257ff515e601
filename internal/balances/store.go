// Package balances owns the process-wide wallet balance snapshot. Refresh is
// the only writer; readers see whole snapshots only.
package balances

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/amount"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/chain"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

// DisplayDecimals is the number of fractional digits in formatted balances
const DisplayDecimals = 6

var errMissingResult = errors.New("missing batch result")

// Reader performs the batched on-chain reads
type Reader interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenBalances(ctx context.Context, owner common.Address, tokens []common.Address) ([]chain.BalanceResult, error)
}

// Entry is the balance of one registered token
type Entry struct {
	Token     config.Token `json:"token"`
	Raw       *big.Int     `json:"raw"`
	Formatted string       `json:"formatted"`
	Failed    bool         `json:"failed,omitempty"` // read failed; shown as zero
}

// Snapshot is an immutable set of balances in registry order
type Snapshot struct {
	Owner     *common.Address `json:"owner"`
	Entries   []Entry         `json:"entries"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Get returns the entry for symbol
func (s *Snapshot) Get(symbol string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	for _, e := range s.Entries {
		if e.Token.Symbol == symbol {
			return e, true
		}
	}
	return Entry{}, false
}

// Config holds store configuration
type Config struct {
	Reader   Reader
	Registry *config.TokenRegistry
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// Store holds the latest snapshot and notifies subscribers of replacements
type Store struct {
	reader   Reader
	registry *config.TokenRegistry
	logger   *observability.Logger
	metrics  *observability.Metrics

	writer   sync.Mutex
	snapshot atomic.Pointer[Snapshot]

	subMu       sync.Mutex
	subscribers map[chan *Snapshot]struct{}
}

// NewStore creates a store with an empty snapshot
func NewStore(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	s := &Store{
		reader:      cfg.Reader,
		registry:    cfg.Registry,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		subscribers: make(map[chan *Snapshot]struct{}),
	}
	s.snapshot.Store(&Snapshot{})
	return s
}

// Snapshot returns the current snapshot. It must not be modified.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Refresh re-reads every registered token for owner and replaces the
// snapshot. A nil owner clears it. Individual read failures become zero
// entries; only a context error aborts the refresh.
func (s *Store) Refresh(ctx context.Context, owner *common.Address) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	if owner == nil {
		s.publish(&Snapshot{UpdatedAt: time.Now().UTC()})
		return nil
	}

	start := time.Now()
	tokens := s.registry.All()
	erc20 := s.registry.ERC20()
	addresses := make([]common.Address, len(erc20))
	for i, t := range erc20 {
		addresses[i] = t.Address
	}

	var (
		native    *big.Int
		nativeErr error
		results   []chain.BalanceResult
		batchErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		native, nativeErr = s.reader.NativeBalance(gctx, *owner)
		return nil
	})
	g.Go(func() error {
		results, batchErr = s.reader.TokenBalances(gctx, *owner, addresses)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	byAddress := make(map[common.Address]chain.BalanceResult, len(erc20))
	for i, addr := range addresses {
		switch {
		case batchErr != nil:
			byAddress[addr] = chain.BalanceResult{Err: batchErr}
		case i < len(results):
			byAddress[addr] = results[i]
		default:
			byAddress[addr] = chain.BalanceResult{Err: errMissingResult}
		}
	}

	failures := 0
	entries := make([]Entry, 0, len(tokens))
	for _, t := range tokens {
		var (
			raw *big.Int
			err error
		)
		if t.IsNative() {
			raw, err = native, nativeErr
		} else {
			r := byAddress[t.Address]
			raw, err = r.Balance, r.Err
		}

		entry := Entry{Token: t, Raw: raw}
		if err != nil || raw == nil {
			failures++
			entry.Raw = new(big.Int)
			entry.Failed = true
			s.logger.LogWarn(ctx, "balance read failed", "token", t.Symbol, "error", errString(err))
		}
		entry.Formatted = amount.FormatBalance(entry.Raw, t.Decimals, DisplayDecimals)
		entries = append(entries, entry)
	}

	addr := *owner
	s.publish(&Snapshot{Owner: &addr, Entries: entries, UpdatedAt: time.Now().UTC()})
	s.metrics.RecordBalanceRefresh(ctx, len(entries), failures, time.Since(start))
	s.logger.LogDebug(ctx, "balances refreshed", "owner", addr.Hex(), "tokens", len(entries), "failures", failures)
	return nil
}

func (s *Store) publish(snap *Snapshot) {
	s.snapshot.Store(snap)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		// keep only the newest snapshot for a slow subscriber
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Subscribe returns a channel that receives every new snapshot. A slow
// subscriber only sees the latest one. Cancel unregisters and closes it.
func (s *Store) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func errString(err error) string {
	if err == nil {
		return "no value"
	}
	return err.Error()
}
