package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pacificclimate/impacts/internal/activation"
	"github.com/pacificclimate/impacts/internal/domain"
	"github.com/pacificclimate/impacts/internal/impacts"
	"github.com/pacificclimate/impacts/internal/observability"
	"github.com/pacificclimate/impacts/internal/rulebase"
	"github.com/pacificclimate/impacts/internal/rules"
)

const maxBodyBytes = 1 << 20

// Dependencies are the services the handlers read from. Replicator,
// Repository, Cache, Bus and Metrics may be nil.
type Dependencies struct {
	Store      *rulebase.Store
	Engine     *rules.Engine
	Activation activation.Fetcher
	Sessions   *activation.Sessions
	Replicator *rulebase.Replicator
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Metrics    *observability.Metrics
}

// Handler holds dependencies for API handlers.
type Handler struct {
	store      *rulebase.Store
	engine     *rules.Engine
	activation activation.Fetcher
	sessions   *activation.Sessions
	replicator *rulebase.Replicator
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	metrics    *observability.Metrics
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies, version string) *Handler {
	return &Handler{
		store:      deps.Store,
		engine:     deps.Engine,
		activation: deps.Activation,
		sessions:   deps.Sessions,
		replicator: deps.Replicator,
		repo:       deps.Repository,
		cache:      deps.Cache,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		version:    version,
	}
}

// ViewResponse wraps an aggregate with the activation it was computed from.
type ViewResponse struct {
	View      impacts.View     `json:"view"`
	Selection domain.Selection `json:"selection"`
	Seq       uint64           `json:"seq,omitempty"`
	FetchedAt time.Time        `json:"fetchedAt"`
	Stale     bool             `json:"stale,omitempty"`
	Rulebase  string           `json:"rulebase,omitempty"` // checksum
	Data      any              `json:"data"`
}

// EvaluateRequest is the request body for POST /evaluate.
type EvaluateRequest struct {
	Variables map[string]any `json:"variables"`
}

// EvaluateResponse is the response for POST /evaluate.
type EvaluateResponse struct {
	Activation domain.Activation      `json:"activation"`
	Errors     []rules.ConditionError `json:"errors"`
	Heatmap    domain.Heatmap         `json:"heatmap"`
	Metadata   struct {
		TraceID   string `json:"traceId"`
		ProcessMs int64  `json:"processMs"`
		TotalMs   int64  `json:"totalMs"`
		Version   string `json:"version"`
	} `json:"metadata"`
}

// SelectionResponse is the response for GET /sessions/{id}/selection.
type SelectionResponse struct {
	*activation.State
	LatestSeq uint64 `json:"latestSeq"`
	Pending   bool   `json:"pending"`
}

// ReadyResponse is the response for GET /ready.
type ReadyResponse struct {
	Ready    bool                   `json:"ready"`
	Error    string                 `json:"error,omitempty"`
	Rulebase string                 `json:"rulebase,omitempty"` // checksum
	Rules    int                    `json:"rules"`
	Skipped  []rules.ConditionError `json:"skipped,omitempty"`
}

// ReloadResponse is the response for POST /rulebase/reload.
type ReloadResponse struct {
	Version *domain.RulebaseVersion `json:"version"`
	Skipped []rules.ConditionError  `json:"skipped"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			slog.Warn("repository ping failed", "error", err)
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			slog.Warn("cache ping failed", "error", err)
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			slog.Warn("event bus ping failed", "error", err)
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether a rulebase is loaded, along with the conditions
// the local engine could not compile.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	rb, err := h.store.Current()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Error: err.Error()})
		return
	}

	resp := ReadyResponse{Ready: true, Rulebase: h.checksum(), Rules: rb.Len()}
	if h.engine != nil {
		resp.Skipped = h.engine.Skipped()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRules returns the active rulebase in file order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rb, err := h.store.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":   rb.Rules(),
		"count":   rb.Len(),
		"version": h.store.Version(),
	})
}

// GetRule returns one rule. The id may carry the rule_ prefix.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rb, err := h.store.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	rule, ok := rb.Rule(id)
	if !ok {
		h.writeError(w, fmt.Errorf("%w: rule %q", domain.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// ReloadRulebase re-reads the rulebase file and recompiles its conditions.
// A rejected file leaves the active rulebase untouched.
func (h *Handler) ReloadRulebase(w http.ResponseWriter, r *http.Request) {
	version, err := h.store.Reload(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	skipped := []rules.ConditionError{}
	if h.engine != nil {
		rb, err := h.store.Current()
		if err != nil {
			h.writeError(w, err)
			return
		}
		skipped = h.engine.Load(rb.Rules())
	}

	slog.Info("rulebase reloaded",
		"rules_count", version.RuleCount,
		"checksum", version.Checksum,
		"skipped_conditions", len(skipped),
	)

	// Peers that miss the announcement keep serving their current rulebase
	// until their own reload.
	if h.replicator != nil {
		if err := h.replicator.Announce(r.Context(), version); err != nil {
			slog.Warn("failed to announce rulebase reload", "checksum", version.Checksum, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, ReloadResponse{Version: version, Skipped: skipped})
}

// Impacts returns a handler for one aggregate view over the activation of
// the region and period named in the query.
func (h *Handler) Impacts(view impacts.View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		q := r.URL.Query()

		sel := domain.Selection{
			Region:   strings.TrimSpace(q.Get("region")),
			Climate:  strings.TrimSpace(q.Get("climate")),
			Ensemble: strings.TrimSpace(q.Get("ensemble")),
		}
		if !sel.Valid() {
			h.writeError(w, fmt.Errorf("%w: region and climate are required", domain.ErrInvalidInput))
			return
		}

		rb, err := h.store.Current()
		if err != nil {
			h.writeError(w, err)
			return
		}

		snap, err := h.activation.Fetch(ctx, sel)
		if err != nil {
			h.writeError(w, err)
			return
		}

		data, err := h.buildView(ctx, view, q, rb.Rules(), snap.Values)
		if err != nil {
			h.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ViewResponse{
			View:      view,
			Selection: snap.Selection,
			FetchedAt: snap.FetchedAt,
			Stale:     snap.Stale,
			Rulebase:  h.checksum(),
			Data:      data,
		})
	}
}

// Evaluate handles POST /evaluate: the loaded conditions are evaluated
// against the supplied variables and summarized as a heatmap.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req EvaluateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid JSON request body", domain.ErrInvalidInput))
		return
	}
	if req.Variables == nil {
		h.writeError(w, fmt.Errorf("%w: variables is required", domain.ErrInvalidInput))
		return
	}

	rb, err := h.store.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.engine.Evaluate(ctx, req.Variables)
	if err != nil {
		h.writeError(w, err)
		return
	}

	heatmap, err := h.buildView(ctx, impacts.ViewHeatmap, nil, rb.Rules(), result.Activation)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := EvaluateResponse{
		Activation: result.Activation,
		Errors:     result.Errors,
		Heatmap:    heatmap.(domain.Heatmap),
	}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.ProcessMs = result.ProcessMs
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// SelectRegion handles PUT /sessions/{id}/selection. If a newer selection
// for the same session arrives before this one's activation, this request
// fails with 409 and the newer one wins.
func (h *Handler) SelectRegion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var sel domain.Selection
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sel); err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid JSON request body", domain.ErrInvalidInput))
		return
	}
	if !sel.Valid() {
		h.writeError(w, fmt.Errorf("%w: region and climate are required", domain.ErrInvalidInput))
		return
	}

	state, err := h.sessions.Get(id).Select(r.Context(), sel)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetSelection returns the session's applied selection and activation.
// Pending is set while a newer selection is still being fetched.
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	state, sel, err := h.sessionState(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	latest := sel.Seq()
	writeJSON(w, http.StatusOK, SelectionResponse{
		State:     state,
		LatestSeq: latest,
		Pending:   latest != state.Seq,
	})
}

// SessionImpacts returns an aggregate view over the session's applied
// activation. The view is chosen by ?view= and defaults to the heatmap.
func (h *Handler) SessionImpacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	view, err := impacts.ParseView(q.Get("view"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	state, _, err := h.sessionState(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	rb, err := h.store.Current()
	if err != nil {
		h.writeError(w, err)
		return
	}

	data, err := h.buildView(ctx, view, q, rb.Rules(), state.Snapshot.Values)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ViewResponse{
		View:      view,
		Selection: state.Snapshot.Selection,
		Seq:       state.Seq,
		FetchedAt: state.Snapshot.FetchedAt,
		Stale:     state.Snapshot.Stale,
		Rulebase:  h.checksum(),
		Data:      data,
	})
}

func (h *Handler) sessionState(id string) (*activation.State, *activation.Selector, error) {
	sel, ok := h.sessions.Lookup(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: session %q", domain.ErrNotFound, id)
	}
	state, ok := sel.Current()
	if !ok {
		return nil, nil, fmt.Errorf("%w: session %q has no applied selection", domain.ErrNotFound, id)
	}
	return state, sel, nil
}

// buildView computes one aggregate. Grouped reads ?group=category|sector;
// detail reads ?category= and ?sector=.
func (h *Handler) buildView(ctx context.Context, view impacts.View, q url.Values, ruleset []domain.RuleRecord, act domain.Activation) (any, error) {
	_, span := tracer.Start(ctx, "aggregate "+string(view))
	defer span.End()

	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.AggregationDuration.WithLabelValues(string(view)).Observe(time.Since(start).Seconds())
		}
	}()

	query := impacts.Query{
		Group:    impacts.Category,
		Category: q.Get("category"),
		Sector:   q.Get("sector"),
	}
	if s := q.Get("group"); s != "" {
		axis, err := impacts.ParseAxis(s)
		if err != nil {
			return nil, err
		}
		query.Group = axis
	}
	return impacts.Build(view, ruleset, act, query)
}

func (h *Handler) checksum() string {
	if v := h.store.Version(); v != nil {
		return v.Checksum
	}
	return ""
}

// writeError maps service errors onto status codes. Unexpected errors are
// logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, activation.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, rulebase.ErrMalformedRecord):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, rulebase.ErrNotLoaded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
