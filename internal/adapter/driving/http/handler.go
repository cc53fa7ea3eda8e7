package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/parthraninga/DORA-Metrics/internal/application"
	"github.com/parthraninga/DORA-Metrics/internal/domain/model"
	"github.com/parthraninga/DORA-Metrics/internal/domain/port/driven"
)

// defaultWindowDays is the metrics window used when from_date is omitted.
const defaultWindowDays = 30

const defaultStatusLimit = 50

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	metrics    *application.MetricsService
	ingest     *application.IngestService
	repoStore  driven.RepoStore
	tokenStore driven.TokenStore
	listers    map[model.Provider]driven.BranchLister
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler creates a Handler with all required dependencies. listers may
// be nil when no provider supports branch listing.
func NewHandler(
	metrics *application.MetricsService,
	ingest *application.IngestService,
	repoStore driven.RepoStore,
	tokenStore driven.TokenStore,
	listers map[model.Provider]driven.BranchLister,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		metrics:    metrics,
		ingest:     ingest,
		repoStore:  repoStore,
		tokenStore: tokenStore,
		listers:    listers,
		logger:     logger,
		now:        time.Now,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request id, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/teams/{id}/dora-metrics", h.GetDORAMetrics)
	mux.HandleFunc("GET /api/v1/teams/{id}/incidents", h.ListIncidents)
	mux.HandleFunc("POST /api/v1/teams/{id}/fetch", h.FetchTeam)
	mux.HandleFunc("GET /api/v1/teams/{id}/fetch-status", h.FetchStatus)
	mux.HandleFunc("POST /api/v1/repos/{id}/fetch", h.FetchRepo)
	mux.HandleFunc("POST /api/v1/repos/{id}/reparse", h.ReparseRepo)
	mux.HandleFunc("GET /api/v1/repos/{id}/branches", h.ListBranches)
	mux.HandleFunc("PUT /api/v1/repos/{id}/branches", h.SetBranches)
	mux.HandleFunc("GET /api/v1/batches/{id}", h.GetBatch)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   h.now().UTC().Format(time.RFC3339),
	})
}

// GetDORAMetrics computes the four indicators for a team over the requested
// window and the window before it.
func (h *Handler) GetDORAMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics := h.metrics.Compute(r.Context(), q)
	if r.URL.Query().Get("dense") == "true" {
		metrics.Trends.Current = metrics.Trends.Current.Dense(metrics.Window)
		metrics.Trends.Previous = metrics.Trends.Previous.Dense(metrics.PreviousWindow)
	}

	writeJSON(w, http.StatusOK, NewDORAMetricsResponse(metrics))
}

// ListIncidents returns a team's incidents created inside the window.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	incidents := h.metrics.Incidents(r.Context(), q)
	resp := make([]IncidentResponse, 0, len(incidents))
	for _, inc := range incidents {
		resp = append(resp, toIncidentResponse(inc))
	}

	writeJSON(w, http.StatusOK, resp)
}

// FetchTeam queues a fetch for every repository of a team that has a token.
func (h *Handler) FetchTeam(w http.ResponseWriter, r *http.Request) {
	req, err := decodeFetchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	teamID := r.PathValue("id")
	ids, err := h.ingest.FetchTeam(r.Context(), teamID, req.DaysPrior)
	if err != nil && (len(ids) == 0 || errors.Is(err, driven.ErrTeamNotFound)) {
		h.writeServiceError(w, err, "failed to fetch team", "team_id", teamID)
		return
	}

	resp := FetchTeamResponse{BatchIDs: ids}
	if resp.BatchIDs == nil {
		resp.BatchIDs = []string{}
	}
	if err != nil {
		h.logger.Warn("team fetch partially queued", "team_id", teamID, "error", err)
		resp.Error = err.Error()
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// FetchStatus lists the most recent batches of a team's repositories.
func (h *Handler) FetchStatus(w http.ResponseWriter, r *http.Request) {
	limit := defaultStatusLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	teamID := r.PathValue("id")
	batches, err := h.ingest.TeamBatches(r.Context(), teamID, limit)
	if err != nil {
		h.writeServiceError(w, err, "failed to list batches", "team_id", teamID)
		return
	}

	resp := make([]BatchResponse, 0, len(batches))
	for _, b := range batches {
		resp = append(resp, toBatchResponse(b))
	}

	writeJSON(w, http.StatusOK, resp)
}

// FetchRepo queues a fetch for one repository and returns its batch id.
func (h *Handler) FetchRepo(w http.ResponseWriter, r *http.Request) {
	req, err := decodeFetchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	repoID := r.PathValue("id")
	id, err := h.ingest.StartFetch(r.Context(), repoID, req.DaysPrior)
	if err != nil {
		h.writeServiceError(w, err, "failed to start fetch", "repo_id", repoID)
		return
	}

	writeJSON(w, http.StatusAccepted, FetchRepoResponse{BatchID: id})
}

// ReparseRepo rebuilds a repository's rows from its latest successful batch.
func (h *Handler) ReparseRepo(w http.ResponseWriter, r *http.Request) {
	repoID := r.PathValue("id")
	id, result, err := h.ingest.Reparse(r.Context(), repoID)
	if err != nil {
		h.writeServiceError(w, err, "failed to reparse", "repo_id", repoID)
		return
	}

	writeJSON(w, http.StatusOK, toReparseResponse(id, result))
}

// GetBatch returns one batch, including its raw response, for polling.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	batch, err := h.ingest.Batch(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get batch", "batch_id", id)
		return
	}

	resp := toBatchResponse(*batch)
	resp.RawResponse = rawJSON(batch.RawResponse)
	writeJSON(w, http.StatusOK, resp)
}

// parseQuery reads the team id, window and branch policy of a metrics request.
// from_date and to_date accept YYYY-MM-DD or RFC 3339; to_date defaults to
// today and from_date to defaultWindowDays before to_date.
func (h *Handler) parseQuery(r *http.Request) (application.MetricsQuery, error) {
	params := r.URL.Query()

	to := h.now().UTC()
	if s := params.Get("to_date"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return application.MetricsQuery{}, fmt.Errorf("invalid to_date: %w", err)
		}
		to = t
	}

	from := to.AddDate(0, 0, -(defaultWindowDays - 1))
	if s := params.Get("from_date"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return application.MetricsQuery{}, fmt.Errorf("invalid from_date: %w", err)
		}
		from = t
	}

	if from.After(to) {
		return application.MetricsQuery{}, errors.New("from_date is after to_date")
	}

	mode, err := application.ParseBranchMode(params.Get("branch_mode"))
	if err != nil {
		return application.MetricsQuery{}, err
	}

	return application.MetricsQuery{
		TeamID:         r.PathValue("id"),
		Window:         model.NewWindow(from, to),
		BranchMode:     mode,
		CustomBranches: splitBranches(params.Get("branches")),
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(model.DayKeyLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// splitBranches parses a comma-separated branch list, dropping blanks.
func splitBranches(s string) []string {
	var out []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// decodeFetchRequest reads an optional JSON body. An empty body is valid.
func decodeFetchRequest(r *http.Request) (FetchRequest, error) {
	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, errors.New("invalid request body")
	}
	if req.DaysPrior < 0 {
		return req, errors.New("days_prior must not be negative")
	}
	return req, nil
}

// writeServiceError maps a service error to its status code. Server errors
// are logged with the given message and attributes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, args ...any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error(msg, append(args, "error", err)...)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, driven.ErrRepoNotFound),
		errors.Is(err, driven.ErrTeamNotFound),
		errors.Is(err, driven.ErrBatchNotFound),
		errors.Is(err, driven.ErrNoSuccessfulBatch),
		errors.Is(err, driven.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrInvalidBranchMode),
		errors.Is(err, application.ErrNoToken),
		errors.Is(err, application.ErrTokenEmailRequired),
		errors.Is(err, application.ErrNoFetcher):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
