package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/okian/stakingtier/internal/domain/dedupe"
	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/types"
	"github.com/okian/stakingtier/pkg/metrics"
)

// EventDependencies defines the interface for event ingestion.
type EventDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, e model.LedgerEvent) error
}

// EventsHandler handles ledger event submissions.
type EventsHandler struct {
	deps EventDependencies
	now  func() time.Time
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps, now: time.Now}
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostEvent handles POST /events. Events without an id get a
// generated one, which makes them non-idempotent.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req types.EventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}
	ev, err := req.Event(h.now().UTC())
	if err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	if h.deps.SeenAndRecord(r.Context(), ev.EventID) {
		metrics.RecordLedgerEvent(string(ev.Kind), metrics.EventDuplicate)
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: ev.EventID, Duplicate: true})
		return
	}
	if err := h.deps.Enqueue(r.Context(), ev); err != nil {
		// Forget the id so the client can retry.
		h.deps.Unrecord(r.Context(), ev.EventID)
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: ev.EventID})
}
