// Package api exposes the swap front-end operations over HTTP and WebSocket.
package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/balances"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/chain"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/dex"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/launchpad"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/notification"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/aws"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/pricing"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/quote"
)

// BalanceStore is the shared wallet balance cache
type BalanceStore interface {
	Snapshot() *balances.Snapshot
	Refresh(ctx context.Context, owner *common.Address) error
}

// PriceSource looks up USD prices
type PriceSource interface {
	Prices(ctx context.Context, tokens []config.Token) (map[string]decimal.Decimal, error)
	Health() pricing.ProviderHealth
}

// Operations builds and drives approval/transaction flows
type Operations interface {
	Create(ctx context.Context, req dex.Request) (dex.View, error)
	Get(ctx context.Context, id string) (dex.View, error)
	Approve(ctx context.Context, id, token string) (common.Hash, error)
	Execute(ctx context.Context, id string) (common.Hash, error)
}

// ActivitySource reads the persisted notification history
type ActivitySource interface {
	Recent(ctx context.Context, wallet string, limit int32) ([]aws.ActivityRecord, error)
}

// Check is a named readiness probe
type Check func(ctx context.Context) error

// Config holds the server's collaborators. Prices and Activity are optional.
type Config struct {
	Registry       *config.TokenRegistry
	Wallet         *chain.Wallet
	Balances       BalanceStore
	Estimator      *quote.Estimator
	Prices         PriceSource
	Operations     Operations
	Launchpad      *launchpad.Catalog
	Hub            *notification.Hub
	Activity       ActivitySource
	Checks         map[string]Check
	AllowedOrigins []string
	ExplorerTxURL  func(common.Hash) string
	Logger         *observability.Logger
	Metrics        *observability.Metrics

	// WebSocket keepalive
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// Server routes the API
type Server struct {
	cfg      Config
	router   *mux.Router
	upgrader websocket.Upgrader
	handler  http.Handler
}

// NewServer creates a Server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil || cfg.Wallet == nil || cfg.Balances == nil || cfg.Estimator == nil ||
		cfg.Operations == nil || cfg.Launchpad == nil || cfg.Hub == nil {
		return nil, fmt.Errorf("registry, wallet, balances, estimator, operations, launchpad and hub are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = 10 * time.Second
	}

	s := &Server{cfg: cfg, router: mux.NewRouter()}
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins["*"] || origins[origin]
		},
	}

	s.routes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tokens", s.listTokens).Methods(http.MethodGet)
	api.HandleFunc("/wallet", s.walletInfo).Methods(http.MethodGet)
	api.HandleFunc("/balances", s.getBalances).Methods(http.MethodGet)
	api.HandleFunc("/balances/refresh", s.refreshBalances).Methods(http.MethodPost)
	api.HandleFunc("/quote", s.getQuote).Methods(http.MethodGet)
	api.HandleFunc("/quote/stream", s.quoteStream).Methods(http.MethodGet)
	api.HandleFunc("/prices", s.getPrices).Methods(http.MethodGet)
	api.HandleFunc("/operations", s.createOperation).Methods(http.MethodPost)
	api.HandleFunc("/operations/{id}", s.getOperation).Methods(http.MethodGet)
	api.HandleFunc("/operations/{id}/approve", s.approveOperation).Methods(http.MethodPost)
	api.HandleFunc("/operations/{id}/execute", s.executeOperation).Methods(http.MethodPost)
	api.HandleFunc("/launchpad", s.listProjects).Methods(http.MethodGet)
	api.HandleFunc("/launchpad/{id}", s.getProject).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.recentNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/ws", s.notificationStream).Methods(http.MethodGet)
	api.HandleFunc("/activity", s.getActivity).Methods(http.MethodGet)
}

// Handler returns the CORS-wrapped router
func (s *Server) Handler() http.Handler {
	return s.handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over the connection
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.cfg.Logger.LogDebug(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
