// Package main is the entrypoint for the cycle-runner Lambda function.
//
// An EventBridge schedule invokes it with {"cycle":"monitoring"} or
// {"cycle":"execution"}. Each invocation runs exactly one manual cycle under
// the distributed cycle lock, so it can share a database with a long-running
// server without double-processing accounts.
//
// This file handles dependency wiring (Cold Start) and delegates all cycle
// logic to the scheduler runners built by internal/app.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"treasury/internal/app"
	"treasury/internal/config"
	"treasury/internal/scheduler"
	"treasury/internal/types"
)

// Input is the Lambda event payload.
type Input struct {
	Cycle string `json:"cycle"`
}

// Output summarizes one invocation. Skipped is set when another worker held
// the cycle.
type Output struct {
	RunID             string `json:"run_id,omitempty"`
	Cycle             string `json:"cycle"`
	Skipped           bool   `json:"skipped,omitempty"`
	DurationMs        int64  `json:"duration_ms"`
	ProcessedAccounts int    `json:"processed_accounts"`
	SuccessCount      int    `json:"success_count"`
	ErrorCount        int    `json:"error_count"`
	Error             string `json:"error,omitempty"`
}

// cycleRunner is the slice of *scheduler.Runner the handler needs.
type cycleRunner interface {
	RunOnce(ctx context.Context, source types.RunSource) (*types.RunRecord, error)
}

// runnerLookup resolves a cycle name to its runner.
type runnerLookup func(name string) (cycleRunner, error)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("cycle-runner Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewFileProvider())
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	comps, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to wire components", "error", err)
		os.Exit(1)
	}

	lookup := func(name string) (cycleRunner, error) {
		r, err := comps.Registry.Get(name)
		if err != nil {
			return nil, err
		}
		return r, nil
	}

	logger.Info("cycle-runner Lambda initialized", "cycles", comps.Registry.Names())
	lambda.Start(newHandler(lookup, logger))
}

// newHandler creates the Lambda handler. An unknown cycle fails the
// invocation; a cycle held by another worker returns a skipped Output so the
// schedule does not retry it.
func newHandler(lookup runnerLookup, logger *slog.Logger) func(ctx context.Context, input Input) (*Output, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, input Input) (*Output, error) {
		logger.InfoContext(ctx, "cycle-runner invoked", "cycle", input.Cycle)

		runner, err := lookup(input.Cycle)
		if err != nil {
			logger.ErrorContext(ctx, "unknown cycle", "cycle", input.Cycle, "error", err)
			return nil, fmt.Errorf("cycle-runner: %w", err)
		}

		record, err := runner.RunOnce(ctx, types.RunSourceManual)
		switch {
		case errors.Is(err, scheduler.ErrLockHeld), errors.Is(err, scheduler.ErrAlreadyRunning):
			logger.InfoContext(ctx, "cycle already running elsewhere, skipping", "cycle", input.Cycle)
			return &Output{Cycle: input.Cycle, Skipped: true}, nil
		case err != nil:
			logger.ErrorContext(ctx, "cycle failed to run", "cycle", input.Cycle, "error", err)
			return nil, fmt.Errorf("cycle-runner: %s: %w", input.Cycle, err)
		}

		out := &Output{
			RunID:             record.ID,
			Cycle:             record.Cycle,
			DurationMs:        record.DurationMs,
			ProcessedAccounts: record.ProcessedAccounts,
			SuccessCount:      record.SuccessCount,
			ErrorCount:        record.ErrorCount,
			Error:             record.Error,
		}
		logger.InfoContext(ctx, "cycle complete",
			"cycle", out.Cycle,
			"run_id", out.RunID,
			"processed", out.ProcessedAccounts,
			"errors", out.ErrorCount,
		)
		return out, nil
	}
}
