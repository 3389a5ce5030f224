// Package handlers contains the HTTP handler implementations for the
// treasury control surface.
//
// This file implements the scheduler handler. It covers:
//   - Runner status (GET /v1/schedulers, GET /v1/schedulers/{name})
//   - Lifecycle (POST /v1/schedulers/{name}/start, /stop)
//   - Manual runs (POST /v1/schedulers/{name}/run)
//   - History and derived metrics (GET /v1/schedulers/{name}/history, /metrics)
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"treasury/internal/core"
	"treasury/internal/scheduler"
	"treasury/internal/types"
)

// SchedulerController is the subset of *scheduler.Runner the handler drives.
type SchedulerController interface {
	Name() string
	Start(ctx context.Context) bool
	Stop() bool
	RunOnce(ctx context.Context, source types.RunSource) (*types.RunRecord, error)
	Status() types.SchedulerStatus
	History(limit int) []*types.RunRecord
	Metrics() types.RunMetrics
}

// SchedulerLookup resolves controllers by cycle name. Lookup returns an error
// wrapping scheduler.ErrUnknownCycle for unregistered names.
type SchedulerLookup interface {
	Lookup(name string) (SchedulerController, error)
	Controllers() []SchedulerController
}

// RegistryLookup adapts a *scheduler.Registry to SchedulerLookup.
func RegistryLookup(reg *scheduler.Registry) SchedulerLookup {
	return registryLookup{reg: reg}
}

type registryLookup struct {
	reg *scheduler.Registry
}

func (l registryLookup) Lookup(name string) (SchedulerController, error) {
	r, err := l.reg.Get(name)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (l registryLookup) Controllers() []SchedulerController {
	runners := l.reg.All()
	out := make([]SchedulerController, len(runners))
	for i, r := range runners {
		out[i] = r
	}
	return out
}

// historyQuery bounds the history limit to the retained window.
type historyQuery struct {
	Limit int `validate:"min=1,max=20"`
}

// SchedulerHandler maps HTTP requests onto runners.
type SchedulerHandler struct {
	lookup    SchedulerLookup
	validator *core.Validator
	logger    *slog.Logger
}

// NewSchedulerHandler creates a SchedulerHandler with the provided dependencies.
func NewSchedulerHandler(lookup SchedulerLookup, val *core.Validator, logger *slog.Logger) *SchedulerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchedulerHandler{
		lookup:    lookup,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the scheduler endpoints onto the router.
func (h *SchedulerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Route("/{name}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/start", h.HandleStart)
		r.Post("/stop", h.HandleStop)
		r.Post("/run", h.HandleRun)
		r.Get("/history", h.HandleHistory)
		r.Get("/metrics", h.HandleMetrics)
	})
}

// HandleList handles GET /v1/schedulers.
func (h *SchedulerHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	controllers := h.lookup.Controllers()
	statuses := make([]types.SchedulerStatus, 0, len(controllers))
	for _, c := range controllers {
		statuses = append(statuses, c.Status())
	}
	core.JSON(w, r, http.StatusOK, types.ListResponse[types.SchedulerStatus]{
		Data:     statuses,
		PageInfo: types.PageInfo{Limit: len(statuses), TotalItems: len(statuses)},
	})
}

// HandleGet handles GET /v1/schedulers/{name}.
func (h *SchedulerHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, c.Status())
}

// HandleStart handles POST /v1/schedulers/{name}/start.
func (h *SchedulerHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	started := c.Start(r.Context())
	h.logger.InfoContext(r.Context(), "scheduler start requested", "cycle", c.Name(), "started", started)
	core.JSON(w, r, http.StatusOK, map[string]bool{"started": started})
}

// HandleStop handles POST /v1/schedulers/{name}/stop.
func (h *SchedulerHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	stopped := c.Stop()
	h.logger.InfoContext(r.Context(), "scheduler stop requested", "cycle", c.Name(), "stopped", stopped)
	core.JSON(w, r, http.StatusOK, map[string]bool{"stopped": stopped})
}

// HandleRun handles POST /v1/schedulers/{name}/run. The cycle runs on a
// context that survives client disconnect so a half-processed account list
// is never abandoned.
func (h *SchedulerHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}

	record, err := c.RunOnce(context.WithoutCancel(r.Context()), types.RunSourceManual)
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictCycleRunning,
			"a "+c.Name()+" cycle is already running",
			err,
		))
		return
	case errors.Is(err, scheduler.ErrLockHeld):
		core.Error(w, r, types.NewAppError(
			types.ErrCodeConflictCycleRunning,
			"a "+c.Name()+" cycle is running on another worker",
			err,
		))
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "manual run failed", "cycle", c.Name(), "error", err)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, record)
}

// HandleHistory handles GET /v1/schedulers/{name}/history?limit=N.
func (h *SchedulerHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}

	q := historyQuery{Limit: scheduler.HistoryLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidLimit,
				"limit must be an integer",
				err,
			))
			return
		}
		q.Limit = n
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}

	records := c.History(q.Limit)
	core.JSON(w, r, http.StatusOK, types.ListResponse[*types.RunRecord]{
		Data:     records,
		PageInfo: types.PageInfo{Limit: q.Limit, TotalItems: len(records)},
	})
}

// HandleMetrics handles GET /v1/schedulers/{name}/metrics.
func (h *SchedulerHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolve(w, r)
	if !ok {
		return
	}
	core.JSON(w, r, http.StatusOK, c.Metrics())
}

func (h *SchedulerHandler) resolve(w http.ResponseWriter, r *http.Request) (SchedulerController, bool) {
	name := chi.URLParam(r, "name")
	c, err := h.lookup.Lookup(name)
	if err != nil {
		if errors.Is(err, scheduler.ErrUnknownCycle) {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeNotFoundCycle,
				"unknown cycle",
				err,
				map[string]any{"name": name},
			))
			return nil, false
		}
		core.Error(w, r, err)
		return nil, false
	}
	return c, true
}
