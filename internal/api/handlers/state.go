package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"treasury/internal/core"
	"treasury/internal/types"
)

// StateReader is the read side of the state cache.
type StateReader interface {
	Get(topic types.Topic, key string) (types.CacheEntry, bool)
	List(topic types.Topic) []types.CacheEntry
}

type stateListQuery struct {
	Topic string `validate:"required,topic"`
}

type stateGetQuery struct {
	Topic string `validate:"required,topic"`
	Key   string `validate:"required,address"`
}

// StateHandler serves point-in-time reads of the state cache.
type StateHandler struct {
	state     StateReader
	validator *core.Validator
	logger    *slog.Logger
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(state StateReader, val *core.Validator, logger *slog.Logger) *StateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateHandler{state: state, validator: val, logger: logger}
}

// RegisterRoutes mounts the state endpoints onto the router.
func (h *StateHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{topic}", h.HandleList)
	r.Get("/{topic}/{key}", h.HandleGet)
}

// HandleList handles GET /v1/state/{topic}.
func (h *StateHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := stateListQuery{Topic: chi.URLParam(r, "topic")}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}

	entries := h.state.List(types.Topic(q.Topic))
	if entries == nil {
		entries = []types.CacheEntry{}
	}
	core.JSON(w, r, http.StatusOK, types.ListResponse[types.CacheEntry]{
		Data:     entries,
		PageInfo: types.PageInfo{Limit: len(entries), TotalItems: len(entries)},
	})
}

// HandleGet handles GET /v1/state/{topic}/{key}. Keys are normalized by the
// cache, so checksummed and lowercase addresses resolve to the same entry.
func (h *StateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := stateGetQuery{
		Topic: chi.URLParam(r, "topic"),
		Key:   chi.URLParam(r, "key"),
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}

	entry, ok := h.state.Get(types.Topic(q.Topic), q.Key)
	if !ok {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeNotFoundState,
			"no cached value for key",
			nil,
			map[string]any{"topic": q.Topic, "key": types.NormalizeAddress(q.Key)},
		))
		return
	}
	core.JSON(w, r, http.StatusOK, entry)
}
