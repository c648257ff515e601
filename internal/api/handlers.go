package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/amount"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/balances"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/dex"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/launchpad"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.cfg.Checks)+1)
	status := http.StatusOK
	for name, check := range s.cfg.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	// the price API degrades quotes in USD only, it does not gate readiness
	if s.cfg.Prices != nil {
		h := s.cfg.Prices.Health()
		checks["prices"] = "ok"
		if !h.Healthy() {
			checks["prices"] = "circuit " + h.CircuitState
		}
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

func (s *Server) listTokens(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Registry.All())
}

type walletResponse struct {
	Address   string `json:"address,omitempty"`
	Connected bool   `json:"connected"`
	ReadOnly  bool   `json:"readOnly"`
	Connector string `json:"connector"`
	ChainID   int64  `json:"chainId"`
}

func (s *Server) walletInfo(w http.ResponseWriter, _ *http.Request) {
	wallet := s.cfg.Wallet
	resp := walletResponse{
		Connected: wallet.Connected(),
		ReadOnly:  wallet.ReadOnly(),
		Connector: wallet.Connector(),
		ChainID:   wallet.ChainID().Int64(),
	}
	if addr := wallet.Address(); addr != nil {
		resp.Address = addr.Hex()
	}
	writeJSON(w, http.StatusOK, resp)
}

func snapshotOrEmpty(snap *balances.Snapshot) *balances.Snapshot {
	if snap == nil {
		return &balances.Snapshot{Entries: []balances.Entry{}}
	}
	return snap
}

func (s *Server) getBalances(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, snapshotOrEmpty(s.cfg.Balances.Snapshot()))
}

func (s *Server) refreshBalances(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Balances.Refresh(r.Context(), s.cfg.Wallet.Address()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotOrEmpty(s.cfg.Balances.Snapshot()))
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	est, err := s.cfg.Estimator.Estimate(q.Get("from"), q.Get("to"), q.Get("amount"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, est)
}

type priceEntry struct {
	USD       string `json:"usd"`
	Formatted string `json:"formatted"`
}

type pricesResponse struct {
	Prices map[string]priceEntry `json:"prices"`
	Error  string                `json:"error,omitempty"`
}

func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prices == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "price lookup is disabled"})
		return
	}
	prices, err := s.cfg.Prices.Prices(r.Context(), s.cfg.Registry.All())
	resp := pricesResponse{Prices: make(map[string]priceEntry, len(prices))}
	for sym, p := range prices {
		resp.Prices[sym] = priceEntry{USD: p.String(), Formatted: amount.FormatUSD(p)}
	}
	if err != nil {
		if len(prices) == 0 {
			s.cfg.Logger.LogError(r.Context(), "price lookup failed", err)
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "price lookup failed"})
			return
		}
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createOperation(w http.ResponseWriter, r *http.Request) {
	var req dex.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	view, err := s.cfg.Operations.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) getOperation(w http.ResponseWriter, r *http.Request) {
	view, err := s.cfg.Operations.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type txResponse struct {
	TxHash   string `json:"txHash"`
	Explorer string `json:"explorerUrl,omitempty"`
}

func (s *Server) txResponse(hash common.Hash) txResponse {
	resp := txResponse{TxHash: hash.Hex()}
	if s.cfg.ExplorerTxURL != nil {
		resp.Explorer = s.cfg.ExplorerTxURL(hash)
	}
	return resp
}

func (s *Server) approveOperation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "token is required"})
		return
	}
	hash, err := s.cfg.Operations.Approve(r.Context(), mux.Vars(r)["id"], body.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.txResponse(hash))
}

func (s *Server) executeOperation(w http.ResponseWriter, r *http.Request) {
	hash, err := s.cfg.Operations.Execute(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.txResponse(hash))
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	status := launchpad.Status(r.URL.Query().Get("status"))
	switch status {
	case "", launchpad.StatusUpcoming, launchpad.StatusLive, launchpad.StatusEnded:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status " + strconv.Quote(string(status))})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Launchpad.List(status))
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.cfg.Launchpad.Get(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "project not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func queryLimit(r *http.Request, def, maxLimit int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}

func (s *Server) recentNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Hub.Recent(queryLimit(r, 20, 100)))
}

func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Activity == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "activity history is disabled"})
		return
	}
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		if addr := s.cfg.Wallet.Address(); addr != nil {
			wallet = addr.Hex()
		}
	}
	if wallet == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no wallet given and none connected"})
		return
	}
	if !common.IsHexAddress(wallet) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid wallet address"})
		return
	}

	records, err := s.cfg.Activity.Recent(r.Context(), common.HexToAddress(wallet).Hex(), int32(queryLimit(r, 20, 100)))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
