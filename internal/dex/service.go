// Package dex turns form requests (swap, liquidity, farm, mint) into
// approval/transaction flows and keeps the live flows addressable by id.
package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/chain"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/contracts"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/quote"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/txflow"
)

// Operation kinds accepted by Create
const (
	KindSwap            = "swap"
	KindAddLiquidity    = "add-liquidity"
	KindRemoveLiquidity = "remove-liquidity"
	KindStake           = "stake"
	KindUnstake         = "unstake"
	KindClaim           = "claim"
	KindMint            = "mint"
)

var (
	ErrUnknownKind       = errors.New("unknown operation kind")
	ErrUnknownToken      = errors.New("unknown token")
	ErrUnknownFarm       = errors.New("unknown farm")
	ErrSameToken         = errors.New("tokens must differ")
	ErrZeroAmount        = errors.New("amount must be greater than zero")
	ErrExceedsBalance    = errors.New("amount exceeds balance")
	ErrInvalidPercent    = errors.New("percent must be between 1 and 100")
	ErrSoldOut           = errors.New("mint quantity exceeds remaining supply")
	ErrOperationNotFound = errors.New("operation not found")
	ErrNotConfigured     = errors.New("contract address not configured")
	ErrUnknownSpend      = errors.New("operation does not spend this token")
)

// Request is a form submission. Which fields apply depends on Kind.
type Request struct {
	Kind     string `json:"kind"`
	From     string `json:"from,omitempty"`    // swap input token
	To       string `json:"to,omitempty"`      // swap output token
	TokenA   string `json:"tokenA,omitempty"`  // liquidity pair
	TokenB   string `json:"tokenB,omitempty"`  // liquidity pair
	Amount   string `json:"amount,omitempty"`  // free-text amount
	AmountB  string `json:"amountB,omitempty"` // only for a pool without reserves
	Percent  int64  `json:"percent,omitempty"` // share of the available balance
	Farm     string `json:"farm,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
}

// View is an operation's flow state plus the computed form values
type View struct {
	txflow.State
	Title   string            `json:"title"`
	Details map[string]string `json:"details"`
}

// Config holds Service configuration
type Config struct {
	Registry    *config.TokenRegistry
	Backend     bind.ContractBackend
	Wallet      *chain.Wallet
	Contracts   config.ContractsConfig
	Paths       *quote.PathFinder // optional, direct pair when nil
	SlippageBps int64
	Deadline    time.Duration
	MaxFlows    int

	// Flow carries the shared flow collaborators. Allowances and Approver
	// default to a ChainGateway over Backend.
	Flow txflow.Config

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

type entry struct {
	flow    *txflow.Flow
	details map[string]string
}

// Service builds and tracks operations
type Service struct {
	cfg     Config
	gateway *ChainGateway
	router  *contracts.Router
	factory *contracts.Factory
	flows   *lru.Cache[string, entry]

	wethMu sync.Mutex
	weth   common.Address
}

// NewService creates a Service
func NewService(cfg Config) (*Service, error) {
	if cfg.Registry == nil || cfg.Backend == nil || cfg.Wallet == nil {
		return nil, fmt.Errorf("registry, backend and wallet are required")
	}
	if cfg.Flow.Receipts == nil {
		return nil, fmt.Errorf("receipt waiter is required")
	}
	if cfg.SlippageBps < 0 || cfg.SlippageBps >= 10_000 {
		return nil, fmt.Errorf("slippage_bps must be in [0, 10000), got %d", cfg.SlippageBps)
	}
	if cfg.Deadline == 0 {
		cfg.Deadline = 20 * time.Minute
	}
	if cfg.MaxFlows == 0 {
		cfg.MaxFlows = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	gateway := NewChainGateway(cfg.Backend, cfg.Wallet)
	if cfg.Flow.Allowances == nil {
		cfg.Flow.Allowances = gateway
	}
	if cfg.Flow.Approver == nil {
		cfg.Flow.Approver = gateway
	}
	if cfg.Flow.Logger == nil {
		cfg.Flow.Logger = cfg.Logger
	}
	if cfg.Flow.Metrics == nil {
		cfg.Flow.Metrics = cfg.Metrics
	}

	flows, err := lru.New[string, entry](cfg.MaxFlows)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow cache: %w", err)
	}

	s := &Service{cfg: cfg, gateway: gateway, flows: flows}
	if addr, ok := parseAddress(cfg.Contracts.Router); ok {
		s.router = contracts.NewRouter(addr, cfg.Backend)
	}
	if addr, ok := parseAddress(cfg.Contracts.Factory); ok {
		s.factory = contracts.NewFactory(addr, cfg.Backend)
	}
	if addr, ok := parseAddress(cfg.Contracts.WETH); ok {
		s.weth = addr
	}
	return s, nil
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(s)
	return addr, addr != (common.Address{})
}

// Create builds the operation described by req, reads its allowances and
// registers its flow
func (s *Service) Create(ctx context.Context, req Request) (View, error) {
	owner := s.cfg.Wallet.Address()
	if owner == nil {
		return View{}, chain.ErrNotConnected
	}

	var (
		op      txflow.Operation
		details map[string]string
		err     error
	)
	switch strings.ToLower(req.Kind) {
	case KindSwap:
		op, details, err = s.buildSwap(ctx, *owner, req)
	case KindAddLiquidity:
		op, details, err = s.buildAddLiquidity(ctx, *owner, req)
	case KindRemoveLiquidity:
		op, details, err = s.buildRemoveLiquidity(ctx, *owner, req)
	case KindStake:
		op, details, err = s.buildStake(ctx, *owner, req)
	case KindUnstake:
		op, details, err = s.buildUnstake(ctx, *owner, req)
	case KindClaim:
		op, details, err = s.buildClaim(ctx, *owner, req)
	case KindMint:
		op, details, err = s.buildMint(ctx, *owner, req)
	default:
		return View{}, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}
	if err != nil {
		return View{}, err
	}

	op.ID = uuid.NewString()
	op.Owner = *owner
	flow, err := txflow.New(op, s.cfg.Flow)
	if err != nil {
		return View{}, err
	}
	flow.RefreshAllowances(ctx)

	s.flows.Add(op.ID, entry{flow: flow, details: details})
	s.cfg.Logger.LogInfo(ctx, "operation created",
		"id", op.ID,
		"kind", op.Kind,
		"wallet", op.Owner.Hex(),
	)
	return s.view(entry{flow: flow, details: details}), nil
}

func (s *Service) lookup(id string) (entry, error) {
	e, ok := s.flows.Get(id)
	if !ok {
		return entry{}, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return e, nil
}

func (s *Service) view(e entry) View {
	return View{State: e.flow.State(), Title: e.flow.Operation().Title, Details: e.details}
}

// Get re-reads the operation's allowances and returns its view
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	e, err := s.lookup(id)
	if err != nil {
		return View{}, err
	}
	if !e.flow.Busy() && !e.flow.Cleared() {
		e.flow.RefreshAllowances(ctx)
	}
	return s.view(e), nil
}

// Approve submits the approval for one spent token, given by symbol or address
func (s *Service) Approve(ctx context.Context, id, tokenRef string) (common.Hash, error) {
	e, err := s.lookup(id)
	if err != nil {
		return common.Hash{}, err
	}
	for _, spend := range e.flow.Operation().Spends {
		if strings.EqualFold(spend.Token.Symbol, tokenRef) || strings.EqualFold(spend.Token.Address.Hex(), tokenRef) {
			return e.flow.Approve(ctx, spend.Token.Address)
		}
	}
	return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownSpend, tokenRef)
}

// Execute submits the operation's primary action
func (s *Service) Execute(ctx context.Context, id string) (common.Hash, error) {
	e, err := s.lookup(id)
	if err != nil {
		return common.Hash{}, err
	}
	return e.flow.Execute(ctx)
}

// Flow returns the live flow of an operation
func (s *Service) Flow(id string) (*txflow.Flow, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.flow, nil
}

// Farms returns the configured farms
func (s *Service) Farms() []config.FarmConfig {
	return append([]config.FarmConfig(nil), s.cfg.Contracts.Farms...)
}

// wrapped maps the native asset to WETH for router paths and pair lookups
func (s *Service) wrapped(ctx context.Context, t config.Token) (common.Address, error) {
	if !t.IsNative() {
		return t.Address, nil
	}

	s.wethMu.Lock()
	defer s.wethMu.Unlock()
	if s.weth != (common.Address{}) {
		return s.weth, nil
	}
	if s.router == nil {
		return common.Address{}, fmt.Errorf("%w: router", ErrNotConfigured)
	}
	weth, err := s.router.WETH(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read WETH address: %w", err)
	}
	s.weth = weth
	return weth, nil
}

func (s *Service) deadline() *big.Int {
	return big.NewInt(s.cfg.Now().Add(s.cfg.Deadline).Unix())
}

// transact wraps a contract write into a SendFunc signed by the wallet,
// attaching value when it is non-nil
func (s *Service) transact(value *big.Int, fn func(opts *bind.TransactOpts) (*types.Transaction, error)) txflow.SendFunc {
	return func(ctx context.Context) (*types.Transaction, error) {
		opts, err := s.cfg.Wallet.TransactOpts(ctx)
		if err != nil {
			return nil, err
		}
		if value != nil {
			opts.Value = new(big.Int).Set(value)
		}
		return fn(opts)
	}
}
