package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"treasury/internal/core"
	"treasury/internal/statecache"
	"treasury/internal/types"
)

func makeStateRouter(cache *statecache.Cache) http.Handler {
	h := NewStateHandler(cache, core.NewValidator(), nil)
	r := chi.NewRouter()
	r.Route("/v1/state", h.RegisterRoutes)
	return r
}

func TestStateList(t *testing.T) {
	cache := statecache.New(statecache.NewBus())
	cache.Set(types.TopicRisk, "0xAAA", map[string]any{"risk_score": 0.2})
	cache.Set(types.TopicRisk, "0xbbb", map[string]any{"risk_score": 0.9})
	router := makeStateRouter(cache)

	rr := doRequest(t, router, http.MethodGet, "/v1/state/risk")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp types.ListResponse[types.CacheEntry]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 || resp.PageInfo.TotalItems != 2 {
		t.Fatalf("expected 2 entries, got %+v", resp)
	}
}

func TestStateList_EmptyTopicIsEmptyArray(t *testing.T) {
	router := makeStateRouter(statecache.New(statecache.NewBus()))

	rr := doRequest(t, router, http.MethodGet, "/v1/state/projection")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw["data"]) != "[]" {
		t.Errorf("expected empty array, got %s", raw["data"])
	}
}

func TestStateList_InvalidTopic(t *testing.T) {
	router := makeStateRouter(statecache.New(statecache.NewBus()))

	rr := doRequest(t, router, http.MethodGet, "/v1/state/weather")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if got := decodeError(t, rr).Code; got != string(types.ErrCodeValidationInvalidTopic) {
		t.Errorf("expected code %s, got %s", types.ErrCodeValidationInvalidTopic, got)
	}
}

func TestStateGet_NormalizesKey(t *testing.T) {
	cache := statecache.New(statecache.NewBus())
	cache.Set(types.TopicSnapshot, "0xabc", map[string]any{"total_usd": 1200.5})
	router := makeStateRouter(cache)

	rr := doRequest(t, router, http.MethodGet, "/v1/state/snapshot/0xABC")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var entry types.CacheEntry
	if err := json.NewDecoder(rr.Body).Decode(&entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Key != "0xabc" {
		t.Errorf("expected key 0xabc, got %s", entry.Key)
	}
}

func TestStateGet_Missing(t *testing.T) {
	router := makeStateRouter(statecache.New(statecache.NewBus()))

	rr := doRequest(t, router, http.MethodGet, "/v1/state/snapshot/0xdead")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if got := decodeError(t, rr).Code; got != string(types.ErrCodeNotFoundState) {
		t.Errorf("expected code %s, got %s", types.ErrCodeNotFoundState, got)
	}
}

func TestStateGet_InvalidTopic(t *testing.T) {
	router := makeStateRouter(statecache.New(statecache.NewBus()))

	rr := doRequest(t, router, http.MethodGet, "/v1/state/nope/0xabc")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
