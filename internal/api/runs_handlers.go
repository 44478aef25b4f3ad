package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/image-publisher/internal/state"
)

// RunStore reads the run ledger
type RunStore interface {
	ListRuns(ctx context.Context, filter state.ListFilter) ([]state.Run, error)
	GetRun(ctx context.Context, id string) (*state.Run, error)
	CountRunsByStatus(ctx context.Context) (map[string]int64, error)
}

// RunHandler serves run history
type RunHandler struct {
	store RunStore
}

// NewRunHandler creates a new run handler
func NewRunHandler(store RunStore) *RunHandler {
	return &RunHandler{store: store}
}

// ListRuns handles GET /api/v1/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 20
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	offset := 0
	if raw := query.Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	runs, err := h.store.ListRuns(r.Context(), state.ListFilter{
		Repository: query.Get("repository"),
		Status:     query.Get("status"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		writeError(w, r, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, toRunResponse(&runs[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRun handles GET /api/v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, state.ErrRunNotFound) {
			writeError(w, r, http.StatusNotFound, "Run not found")
			return
		}
		log.Error().Err(err).Str("runID", id).Msg("Failed to get run")
		writeError(w, r, http.StatusInternalServerError, "Failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(run))
}
