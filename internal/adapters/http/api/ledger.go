package api

import (
	"context"
	"net/http"

	"github.com/okian/stakingtier/internal/domain/types"
)

// LedgerDependencies exposes the tier table and pool totals.
type LedgerDependencies interface {
	Tiers(ctx context.Context) []types.TierView
	SetTiers(ctx context.Context, views []types.TierView) ([]types.TierView, error)
	Pool(ctx context.Context) types.PoolView
	SetPool(ctx context.Context, v types.PoolView) (types.PoolView, error)
}

// LedgerHandler reads and overrides ledger-wide state.
type LedgerHandler struct {
	deps LedgerDependencies
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(deps LedgerDependencies) *LedgerHandler {
	return &LedgerHandler{deps: deps}
}

// HandleGetTiers handles GET /tiers.
func (h *LedgerHandler) HandleGetTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Tiers(r.Context()))
}

// HandlePutTiers handles PUT /tiers with a full replacement table.
func (h *LedgerHandler) HandlePutTiers(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_tiers"
	var views []types.TierView
	if err := decodeJSON(w, r, &views); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	out, err := h.deps.SetTiers(r.Context(), views)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetPool handles GET /pool.
func (h *LedgerHandler) HandleGetPool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Pool(r.Context()))
}

// HandlePutPool handles PUT /pool.
func (h *LedgerHandler) HandlePutPool(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_pool"
	var v types.PoolView
	if err := decodeJSON(w, r, &v); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	out, err := h.deps.SetPool(r.Context(), v)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}
