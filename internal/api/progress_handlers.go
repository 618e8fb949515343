package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/stage"
	"github.com/JakeFAU/scqc/internal/store"
)

const (
	defaultCycleLimit = 50
	maxCycleLimit     = 500
	progressTimeout   = 3 * time.Second
)

// ProgressHandler exposes read-only cycle history endpoints.
type ProgressHandler struct {
	repo    store.ProgressRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewProgressHandler wires the repository and logger.
func NewProgressHandler(repo store.ProgressRepository, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		repo:    repo,
		timeout: progressTimeout,
		logger:  logger,
	}
}

// ListCycles handles GET /v1/cycles?stage=&status=&limit=&offset=. It returns
// {"cycles": [...]} on success, 400 for invalid filters, 503 when the repo is
// unavailable, or 500 if the repository call fails.
func (h *ProgressHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCycleLimit, maxCycleLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cycles, err := h.repo.ListCycles(ctx, filter, limit, offset)
	if err != nil {
		h.logger.Error("list cycles failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycles": toCycleDTOs(cycles),
	})
}

// GetCycle handles GET /v1/cycles/{cycle_id}. It returns {"cycle": {...}},
// 400 for malformed IDs, 404 when the repository reports store.ErrNotFound,
// 503 if the repo is not initialized, or 500 otherwise.
func (h *ProgressHandler) GetCycle(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	id, err := parseCycleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cycle, err := h.repo.GetCycle(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cycle not found")
			return
		}
		h.logger.Error("get cycle failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load cycle")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycle": toCycleDTO(cycle)})
}

func parseCycleID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "cycle_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("cycle_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid cycle_id")
	}
	return id, nil
}

func parseFilter(r *http.Request) (store.CycleFilter, error) {
	q := r.URL.Query()
	var filter store.CycleFilter
	if name := strings.TrimSpace(q.Get("stage")); name != "" {
		kind, err := stage.ParseKind(name)
		if err != nil {
			return store.CycleFilter{}, errors.New("invalid stage")
		}
		filter.Stage = kind.String()
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := parseStatus(raw)
		if err != nil {
			return store.CycleFilter{}, err
		}
		filter.Status = &status
	}
	return filter, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.CycleStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return store.CycleRunning, nil
	case "success":
		return store.CycleSuccess, nil
	case "error", "failed", "failure":
		return store.CycleError, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toCycleDTOs(in []store.CycleRun) []cycleDTO {
	out := make([]cycleDTO, 0, len(in))
	for _, c := range in {
		out = append(out, toCycleDTO(c))
	}
	return out
}

func toCycleDTO(c store.CycleRun) cycleDTO {
	return cycleDTO{
		ID:         c.ID.String(),
		Stage:      c.Stage,
		Cycle:      c.Cycle,
		StartedAt:  c.StartedAt,
		FinishedAt: c.FinishedAt,
		Status:     string(c.Status),
		WorkSet:    c.WorkSet,
		Batches:    c.Batches,
		Attempted:  c.Attempted,
		Succeeded:  c.Succeeded,
		Error:      c.ErrorMessage,
	}
}

type cycleDTO struct {
	ID         string     `json:"id"`
	Stage      string     `json:"stage"`
	Cycle      int        `json:"cycle"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	WorkSet    int64      `json:"work_set"`
	Batches    int64      `json:"batches"`
	Attempted  int64      `json:"attempted"`
	Succeeded  int64      `json:"succeeded"`
	Error      *string    `json:"error,omitempty"`
}
