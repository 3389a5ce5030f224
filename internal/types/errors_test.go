package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeConflictCycleRunning,
		Message: "monitoring cycle is already running",
	}

	expected := "conflict_cycle_running: monitoring cycle is already running"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("database connection failed")
	appErr := NewAppError(ErrCodeInternalDB, "failed to list delegations", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the underlying error")
	}

	wrapped := fmt.Errorf("listing accounts: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeInternalDB {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeInternalDB)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidLimit, http.StatusBadRequest},
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeNotFoundCycle, http.StatusNotFound},
		{ErrCodeNotFoundState, http.StatusNotFound},
		{ErrCodeConflictCycleRunning, http.StatusConflict},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamPortfolio, http.StatusBadGateway},
		{ErrCodeUnavailableShuttingDown, http.StatusServiceUnavailable},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorWithDetailsDoesNotMutate(t *testing.T) {
	orig := NewAppErrorWithDetails(ErrCodeValidationInvalidLimit, "bad limit", nil, map[string]any{"max": 20})
	withMore := orig.WithDetails(map[string]any{"got": 50})

	if _, ok := orig.Details["got"]; ok {
		t.Error("WithDetails mutated the original error")
	}
	if withMore.Details["max"] != 20 || withMore.Details["got"] != 50 {
		t.Errorf("merged details = %v", withMore.Details)
	}
}
