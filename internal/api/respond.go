package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/amount"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/chain"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/dex"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/txflow"
)

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var badRequest = []error{
	dex.ErrUnknownKind,
	dex.ErrUnknownToken,
	dex.ErrUnknownFarm,
	dex.ErrUnknownSpend,
	dex.ErrSameToken,
	dex.ErrZeroAmount,
	dex.ErrExceedsBalance,
	dex.ErrInvalidPercent,
	dex.ErrSoldOut,
	dex.ErrNoPair,
	dex.ErrEmptyPool,
	amount.ErrInvalidAmount,
	txflow.ErrNoApprovalNeeded,
}

var conflict = []error{
	txflow.ErrSlotBusy,
	txflow.ErrApprovalRequired,
	txflow.ErrOperationCompleted,
	chain.ErrNotConnected,
}

func statusFor(err error) int {
	var txErr *txflow.TxError
	switch {
	case errors.Is(err, dex.ErrOperationNotFound):
		return http.StatusNotFound
	case errors.Is(err, dex.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.As(err, &txErr):
		return http.StatusUnprocessableEntity
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	for _, target := range conflict {
		if errors.Is(err, target) {
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status. Submission failures carry their category
// and short user-facing message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var txErr *txflow.TxError
	if errors.As(err, &txErr) {
		resp = errorResponse{Error: txErr.Message, Category: string(txErr.Category)}
	}
	if status == http.StatusInternalServerError {
		s.cfg.Logger.LogError(r.Context(), "request failed", err, "path", r.URL.Path)
		s.cfg.Metrics.RecordError(r.Context(), "api")
	}
	writeJSON(w, status, resp)
}
