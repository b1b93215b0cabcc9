// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/okian/stakingtier/internal/domain/dedupe"
	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/types"
)

const (
	defaultMaxLimit = 100
	maxBodyBytes    = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes a ledger event for async processing.
	Enqueue(ctx context.Context, e model.LedgerEvent) error

	TierProgress(ctx context.Context, owner string) (types.TierProgress, error)
	Calculate(ctx context.Context, req types.CalculateRequest) (types.TierProgress, error)

	TopStakers(ctx context.Context, n int) ([]types.StakerEntry, error)
	Rank(ctx context.Context, owner string) (types.StakerEntry, error)

	Tiers(ctx context.Context) []types.TierView
	SetTiers(ctx context.Context, views []types.TierView) ([]types.TierView, error)
	Pool(ctx context.Context) types.PoolView
	SetPool(ctx context.Context, v types.PoolView) (types.PoolView, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	eventsHandler    *EventsHandler
	progressHandler  *ProgressHandler
	stakersHandler   *StakersHandler
	rankHandler      *RankHandler
	ledgerHandler    *LedgerHandler
	dashboardHandler *dashboardHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps
// GET /stakers; values below one use the default.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	if maxLimit < 1 {
		maxLimit = defaultMaxLimit
	}
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		eventsHandler:    NewEventsHandler(deps),
		progressHandler:  NewProgressHandler(deps),
		stakersHandler:   NewStakersHandler(deps, maxLimit),
		rankHandler:      NewRankHandler(deps),
		ledgerHandler:    NewLedgerHandler(deps),
		dashboardHandler: newDashboardHandler(),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	r.Get("/dashboard", s.dashboardHandler.HandleDashboard)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Post("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))

	r.Get("/progress/{owner}", MetricsMiddleware(s.progressHandler.HandleGetProgress, "progress"))
	r.Post("/calculate", MetricsMiddleware(s.progressHandler.HandleCalculate, "calculate"))

	r.Get("/stakers", MetricsMiddleware(s.stakersHandler.HandleGetStakers, "stakers"))
	r.Get("/rank/{owner}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))

	r.Get("/tiers", MetricsMiddleware(s.ledgerHandler.HandleGetTiers, "tiers"))
	r.Put("/tiers", MetricsMiddleware(s.ledgerHandler.HandlePutTiers, "tiers"))
	r.Get("/pool", MetricsMiddleware(s.ledgerHandler.HandleGetPool, "pool"))
	r.Put("/pool", MetricsMiddleware(s.ledgerHandler.HandlePutPool, "pool"))
}

// NewRouter returns a chi router with every API route registered.
func (s *Server) NewRouter(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, NewKind("api.route", ErrNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: "method_not_allowed", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code, name := status(err)
	msg := http.StatusText(code)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, code, errorResponse{Code: name, Message: msg})
}

// decodeJSON reads a size-limited JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
