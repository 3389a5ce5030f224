// Package alerts decides when a risk or execution result warrants a
// notification and delivers it, at most once per subject per cooldown.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasury/internal/types"
)

// Thresholds at or above which an alert fires.
type Thresholds struct {
	RiskScore   float64
	Utilization float64
}

// Signal is one computed result offered to the dispatcher.
type Signal struct {
	Kind        types.AlertKind
	Account     string
	RiskScore   float64
	Utilization float64
	Violations  []string
	Warnings    []string
}

// Subject is the rate-limit key: one per account and alert kind.
func (s Signal) Subject() string {
	return string(s.Kind) + ":" + types.NormalizeAddress(s.Account)
}

// Reasons lists why the signal breaches, empty when it does not.
func (s Signal) Reasons(t Thresholds) []string {
	var reasons []string
	if s.RiskScore >= t.RiskScore {
		reasons = append(reasons, fmt.Sprintf("risk score %.2f >= %.2f", s.RiskScore, t.RiskScore))
	}
	if s.Utilization >= t.Utilization {
		reasons = append(reasons, fmt.Sprintf("utilization %.2f >= %.2f", s.Utilization, t.Utilization))
	}
	if len(s.Violations) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d guardrail violation(s)", len(s.Violations)))
	}
	if len(s.Warnings) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d guardrail warning(s)", len(s.Warnings)))
	}
	return reasons
}

// Recorder is notified of each delivery attempt.
type Recorder interface {
	RecordAlert(ctx context.Context, kind types.AlertKind, sent bool)
}

// Config holds the configuration for creating a Dispatcher.
type Config struct {
	Thresholds Thresholds
	Cooldown   time.Duration
	Sender     types.AlertSender
	Clock      types.Clock
	Logger     *slog.Logger
	Recorder   Recorder
}

// Dispatcher evaluates signals and sends alerts. It is safe for concurrent
// use by both runners.
type Dispatcher struct {
	thresholds Thresholds
	cooldown   time.Duration
	sender     types.AlertSender
	clock      types.Clock
	logger     *slog.Logger
	recorder   Recorder

	mu       sync.Mutex
	lastSent map[string]time.Time
	inflight map[string]bool
}

// NewDispatcher creates a Dispatcher. A nil Sender makes Evaluate report
// breaches without delivering anything.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		thresholds: cfg.Thresholds,
		cooldown:   cfg.Cooldown,
		sender:     cfg.Sender,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		recorder:   cfg.Recorder,
		lastSent:   make(map[string]time.Time),
		inflight:   make(map[string]bool),
	}
}

// Evaluate sends an alert for sig if it breaches and its subject is outside
// the cooldown window. It reports whether an alert was delivered. Delivery
// errors are logged and never returned.
func (d *Dispatcher) Evaluate(ctx context.Context, sig Signal) bool {
	reasons := sig.Reasons(d.thresholds)
	if len(reasons) == 0 || d.sender == nil {
		return false
	}

	subject := sig.Subject()
	now := d.clock.Now()
	if !d.claim(subject, now) {
		d.logger.DebugContext(ctx, "alert suppressed by cooldown", "subject", subject)
		return false
	}

	payload := types.AlertPayload{
		ID:          uuid.NewString(),
		Kind:        sig.Kind,
		Subject:     subject,
		Account:     types.NormalizeAddress(sig.Account),
		RiskScore:   sig.RiskScore,
		Utilization: sig.Utilization,
		Violations:  sig.Violations,
		Warnings:    sig.Warnings,
		Reasons:     reasons,
		TriggeredAt: now,
	}

	err := d.sender.Send(ctx, payload)
	d.settle(subject, now, err == nil)
	if d.recorder != nil {
		d.recorder.RecordAlert(ctx, sig.Kind, err == nil)
	}
	if err != nil {
		d.logger.WarnContext(ctx, "alert delivery failed",
			"subject", subject,
			"alert_id", payload.ID,
			"error", err,
		)
		return false
	}

	d.logger.InfoContext(ctx, "alert sent", "subject", subject, "alert_id", payload.ID, "reasons", reasons)
	return true
}

// claim reserves subject for sending. It fails while the subject is in
// cooldown or another send for it is in flight.
func (d *Dispatcher) claim(subject string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[subject] {
		return false
	}
	if last, ok := d.lastSent[subject]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.inflight[subject] = true
	return true
}

// settle releases the claim. The cooldown only starts on a successful send
// so a failed delivery is retried on the next breach.
func (d *Dispatcher) settle(subject string, sentAt time.Time, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, subject)
	if ok {
		d.lastSent[subject] = sentAt
	}
}
