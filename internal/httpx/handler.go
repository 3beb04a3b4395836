package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"
	"github.com/careops/staff-provisioning/internal/httpx/middlewares"
	"github.com/careops/staff-provisioning/internal/pkg/cache"
	"github.com/careops/staff-provisioning/internal/trigger"
)

// statisticsTTL keeps dashboard refreshes off the database without letting
// counts go meaningfully stale.
const statisticsTTL = 30 * time.Second

// Handler serves the staff-created ingest endpoint and the tenant-scoped
// run query surface.
type Handler struct {
	store   setuplog.Store
	trigger *trigger.Trigger
	cache   cache.Cache // nil-safe: statistics caching skipped if nil
}

// NewHandler builds the handler. c may be nil, disabling statistics caching.
func NewHandler(store setuplog.Store, trig *trigger.Trigger, c cache.Cache) *Handler {
	return &Handler{store: store, trigger: trig, cache: c}
}

// StaffCreated accepts a staff-created event and enqueues a provisioning
// run. Redelivered events are accepted too; the idempotency guard collapses
// them downstream.
func (h *Handler) StaffCreated(w http.ResponseWriter, r *http.Request) {
	var req StaffCreatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.StaffID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "staffId is required")
		return
	}

	tenantID := middlewares.TenantFromContext(r.Context())
	evt := trigger.StaffCreated{
		TenantID:    tenantID,
		StaffID:     req.StaffID,
		TriggeredBy: req.TriggeredBy,
	}

	if err := h.trigger.Enqueue(r.Context(), evt); err != nil {
		writeError(w, http.StatusServiceUnavailable, "trigger_unavailable", err.Error())
		return
	}

	slog.InfoContext(r.Context(), "staff created event accepted",
		"tenant_id", tenantID, "staff_id", req.StaffID, "triggered_by", req.TriggeredBy)

	writeJSON(w, http.StatusAccepted, EventAcceptedResponse{Accepted: true, StaffID: req.StaffID})
}

// GetSetup returns one run by id within the caller's tenant.
func (h *Handler) GetSetup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tenantID := middlewares.TenantFromContext(r.Context())

	run, err := h.store.FindByID(r.Context(), tenantID, id)
	if errors.Is(err, setuplog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "setup_not_found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, mapRunToResponse(run))
}

// ListSetups returns a filtered, paginated page of the tenant's runs.
func (h *Handler) ListSetups(w http.ResponseWriter, r *http.Request) {
	tenantID := middlewares.TenantFromContext(r.Context())

	filter := setuplog.ListFilter{
		Status:      setuplog.Status(r.URL.Query().Get("status")),
		TriggeredBy: r.URL.Query().Get("triggeredBy"),
		Page:        queryInt(r, "page", 1),
		PerPage:     queryInt(r, "perPage", 20),
	}

	runs, total, err := h.store.List(r.Context(), tenantID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RunListResponse{
		Runs:    mapRuns(runs),
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	})
}

// ListPendingSetups returns the tenant's non-terminal runs.
func (h *Handler) ListPendingSetups(w http.ResponseWriter, r *http.Request) {
	h.listWith(w, r, h.store.FindPendingSetups)
}

// ListFailedSetups returns the tenant's FAILED and PARTIAL runs, i.e. the
// manual remediation queue.
func (h *Handler) ListFailedSetups(w http.ResponseWriter, r *http.Request) {
	h.listWith(w, r, h.store.FindFailedSetups)
}

func (h *Handler) listWith(w http.ResponseWriter, r *http.Request, find func(ctx context.Context, tenantID string) ([]*setuplog.SetupRun, error)) {
	tenantID := middlewares.TenantFromContext(r.Context())

	runs, err := find(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, mapRuns(runs))
}

// GetStatistics returns per-status run counts for the tenant, served from
// cache when fresh.
func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	tenantID := middlewares.TenantFromContext(r.Context())

	var cacheKey string
	if h.cache != nil {
		cacheKey = h.cache.GenerateKey("statistics", tenantID)
		var cached setuplog.Statistics
		found, err := h.cache.GetJSON(r.Context(), cacheKey, &cached)
		if err != nil {
			slog.WarnContext(r.Context(), "statistics cache read failed", "error", err)
		}
		if found {
			writeJSON(w, http.StatusOK, &cached)
			return
		}
	}

	stats, err := h.store.GetStatistics(r.Context(), tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	if h.cache != nil {
		if err := h.cache.SetJSON(r.Context(), cacheKey, stats, statisticsTTL); err != nil {
			slog.WarnContext(r.Context(), "statistics cache write failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
