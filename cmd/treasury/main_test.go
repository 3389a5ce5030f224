package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"treasury/internal/config"
	"treasury/internal/core"
	"treasury/internal/scheduler"
	"treasury/internal/statecache"
	"treasury/internal/stream"
	"treasury/internal/types"
)

func buildTestServer(t *testing.T) (*core.Server, *statecache.Cache) {
	t.Helper()

	cfg := &config.Config{
		Environment: "local",
		Server: config.ServerConfig{
			Port:            "0",
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: time.Second,
		},
	}
	logger := slog.New(slog.DiscardHandler)
	cache := statecache.New(statecache.NewBus())
	registry := scheduler.NewRegistry(
		scheduler.NewRunner(scheduler.Config{Name: "monitoring", Interval: time.Minute}),
		scheduler.NewRunner(scheduler.Config{Name: "execution", Interval: 5 * time.Minute}),
	)

	srv, err := buildServer(cfg, logger, serverDeps{
		Registry: registry,
		Cache:    cache,
		Gateway:  stream.NewGateway(stream.Config{Cache: cache}),
	})
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	return srv, cache
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := buildTestServer(t)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
}

func TestSchedulerRoutesMounted(t *testing.T) {
	srv, _ := buildTestServer(t)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schedulers", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp types.ListResponse[types.SchedulerStatus]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 || resp.Data[0].Name != "execution" {
		t.Errorf("unexpected statuses: %+v", resp.Data)
	}

	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header from middleware chain")
	}
}

func TestStateRoutesMounted(t *testing.T) {
	srv, cache := buildTestServer(t)
	cache.Set(types.TopicRisk, "0xABC", map[string]any{"risk_score": 0.4})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/state/risk/0xabc", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestStreamRouteRejectsBadAccount(t *testing.T) {
	srv, _ := buildTestServer(t)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/stream?account=a%20b", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range tests {
		logger := newLogger(tc.level)
		if !logger.Enabled(context.Background(), tc.want) {
			t.Errorf("level %q: expected %v enabled", tc.level, tc.want)
		}
		if tc.want > slog.LevelDebug && logger.Enabled(context.Background(), tc.want-4) {
			t.Errorf("level %q: expected %v disabled", tc.level, tc.want-4)
		}
	}
}
