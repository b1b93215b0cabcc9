package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/okian/stakingtier/internal/domain/types"
)

// ProgressDependencies defines the tier evaluation operations.
type ProgressDependencies interface {
	TierProgress(ctx context.Context, owner string) (types.TierProgress, error)
	Calculate(ctx context.Context, req types.CalculateRequest) (types.TierProgress, error)
}

// ProgressHandler serves tier progress snapshots.
type ProgressHandler struct {
	deps ProgressDependencies
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(deps ProgressDependencies) *ProgressHandler {
	return &ProgressHandler{deps: deps}
}

// HandleGetProgress handles GET /progress/{owner}.
func (h *ProgressHandler) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_progress"
	owner := strings.TrimSpace(chi.URLParam(r, "owner"))
	if owner == "" {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	p, err := h.deps.TierProgress(r.Context(), owner)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleCalculate handles POST /calculate.
func (h *ProgressHandler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	const op = "api.calculate"
	var req types.CalculateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := h.deps.Calculate(r.Context(), req)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}
