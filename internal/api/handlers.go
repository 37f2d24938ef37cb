// Package api exposes HTTP handlers for the analytics service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/analytics"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/backfill"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/domain"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/persistence"
)

// Handler coordinates HTTP requests with the analytics service.
type Handler struct {
	service  *analytics.Service
	backfill *backfill.Runner
}

// NewHandler builds a Handler. The backfill runner may be nil when the
// batch endpoint is not exposed.
func NewHandler(service *analytics.Service, runner *backfill.Runner) *Handler {
	return &Handler{service: service, backfill: runner}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities/chart", h.chart)
	mux.HandleFunc("/v1/activities/chart/segments", h.chartSegments)
	mux.HandleFunc("/v1/activities/fingerprint", h.fingerprint)
	mux.HandleFunc("/v1/scores/compute", h.computeScore)
	mux.HandleFunc("/v1/scores/backfill", h.backfillScores)
	mux.HandleFunc("/v1/scores", h.listScores)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ActivityRequest identifies one activity of one user at one provider.
type ActivityRequest struct {
	UserID     string `json:"user_id"`
	ActivityID string `json:"activity_id"`
	Source     string `json:"source"`
	Force      bool   `json:"force,omitempty"`
}

// Validate ensures request correctness.
func (r ActivityRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.ActivityID) == "" {
		return errors.New("activity_id is required")
	}
	if !domain.Source(r.Source).Valid() {
		return errors.New("source must be one of garmin, polar, strava, gpx, zepp_gpx")
	}
	return nil
}

func (h *Handler) chart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.buildChart(w, r)
	case http.MethodGet:
		h.getChart(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) buildChart(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	cache, err := h.service.BuildChartCache(r.Context(), req.UserID, req.ActivityID, domain.Source(req.Source))
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cache)
}

func (h *Handler) getChart(w http.ResponseWriter, r *http.Request) {
	userID, activityID, source, ok := activityQuery(w, r)
	if !ok {
		return
	}

	cache, err := h.service.GetChartCache(r.Context(), userID, source, activityID)
	if err != nil {
		if errors.Is(err, domain.ErrChartNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "chart not built for activity")
			return
		}
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cache)
}

func (h *Handler) chartSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	userID, activityID, source, ok := activityQuery(w, r)
	if !ok {
		return
	}

	segments, err := h.service.SegmentChart(r.Context(), userID, activityID, source)
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"segments": segments})
}

func (h *Handler) fingerprint(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.computeFingerprint(w, r)
	case http.MethodGet:
		h.getFingerprint(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) computeFingerprint(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	fp, err := h.service.ComputeFingerprint(r.Context(), req.UserID, req.ActivityID, domain.Source(req.Source), req.Force)
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

func (h *Handler) getFingerprint(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	activityID := r.URL.Query().Get("activity_id")
	if userID == "" || activityID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id and activity_id are required")
		return
	}

	fp, err := h.service.GetFingerprint(r.Context(), userID, activityID)
	if err != nil {
		if errors.Is(err, domain.ErrFingerprintNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "fingerprint not computed for activity")
			return
		}
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// ComputeScoreRequest is the payload for POST /v1/scores/compute.
type ComputeScoreRequest struct {
	UserID     string `json:"user_id"`
	TargetDate string `json:"target_date,omitempty"`
}

func (h *Handler) computeScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req ComputeScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id is required")
		return
	}
	if req.TargetDate != "" {
		if _, err := time.Parse("2006-01-02", req.TargetDate); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "target_date must be YYYY-MM-DD")
			return
		}
	}

	record, err := h.service.ComputeFitnessScore(r.Context(), req.UserID, req.TargetDate)
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListScoresResponse packages score history results.
type ListScoresResponse struct {
	Items      []domain.FitnessScoreRecord `json:"items"`
	NextCursor string                      `json:"next_cursor,omitempty"`
}

func (h *Handler) listScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	items, next, err := h.service.ListScores(r.Context(), userID, cursor, limit)
	if err != nil {
		writeComputeError(w, err)
		return
	}

	resp := ListScoresResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

// BackfillRequest is the payload for POST /v1/scores/backfill.
type BackfillRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	BatchSize int    `json:"batch_size,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

func (h *Handler) backfillScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if h.backfill == nil {
		writeError(w, http.StatusNotImplemented, "not_enabled", "backfill is not enabled on this instance")
		return
	}

	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	for _, date := range []string{req.StartDate, req.EndDate} {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "start_date and end_date must be YYYY-MM-DD")
			return
		}
	}

	report, err := h.backfill.Run(r.Context(), backfill.Params{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		BatchSize: req.BatchSize,
		Offset:    req.Offset,
	})
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// activityQuery extracts and validates the activity coordinates from query
// parameters, writing the error response itself on failure.
func activityQuery(w http.ResponseWriter, r *http.Request) (userID, activityID string, source domain.Source, ok bool) {
	userID = r.URL.Query().Get("user_id")
	activityID = r.URL.Query().Get("activity_id")
	source = domain.Source(r.URL.Query().Get("source"))
	if userID == "" || activityID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "user_id and activity_id are required")
		return "", "", "", false
	}
	if !source.Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", "source must be one of garmin, polar, strava, gpx, zepp_gpx")
		return "", "", "", false
	}
	return userID, activityID, source, true
}

// writeComputeError maps pipeline errors onto HTTP statuses.
func writeComputeError(w http.ResponseWriter, err error) {
	var fetchErr *domain.FetchError
	switch {
	case errors.Is(err, domain.ErrUnknownSource):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNoSamples):
		writeError(w, http.StatusUnprocessableEntity, "no_samples", err.Error())
	case errors.As(err, &fetchErr):
		writeError(w, http.StatusBadGateway, "fetch_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
