package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/stakingtier/internal/domain/types"
)

var errLimitExceeded = errors.New("limit exceeds maximum")

// StakersDependencies defines the ranking read operation.
type StakersDependencies interface {
	TopStakers(ctx context.Context, n int) ([]types.StakerEntry, error)
}

// StakersHandler serves the staker ranking.
type StakersHandler struct {
	deps     StakersDependencies
	maxLimit int
}

// NewStakersHandler creates a new stakers handler.
func NewStakersHandler(deps StakersDependencies, maxLimit int) *StakersHandler {
	return &StakersHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetStakers handles GET /stakers?limit=N.
func (h *StakersHandler) HandleGetStakers(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_stakers"
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		writeError(w, NewKind(op, ErrBadRequest))
		return
	}
	if n > h.maxLimit {
		writeError(w, WrapKind(op, ErrBadRequest, errLimitExceeded))
		return
	}
	entries, err := h.deps.TopStakers(r.Context(), n)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
