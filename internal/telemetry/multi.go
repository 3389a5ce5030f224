package telemetry

import (
	"context"

	"treasury/internal/types"
)

// Recorder is the union of the scheduler and alert metric hooks.
type Recorder interface {
	RecordCycle(ctx context.Context, record *types.RunRecord)
	RecordSkipped(ctx context.Context, cycle string)
	RecordAlert(ctx context.Context, kind types.AlertKind, sent bool)
}

var (
	_ Recorder = (*OTelRecorder)(nil)
	_ Recorder = (*CloudWatchRecorder)(nil)
	_ Recorder = MultiRecorder(nil)
)

// MultiRecorder forwards every call to each recorder in order.
type MultiRecorder []Recorder

// RecordCycle implements scheduler.MetricsRecorder.
func (m MultiRecorder) RecordCycle(ctx context.Context, record *types.RunRecord) {
	for _, r := range m {
		r.RecordCycle(ctx, record)
	}
}

// RecordSkipped implements scheduler.MetricsRecorder.
func (m MultiRecorder) RecordSkipped(ctx context.Context, cycle string) {
	for _, r := range m {
		r.RecordSkipped(ctx, cycle)
	}
}

// RecordAlert implements alerts.Recorder.
func (m MultiRecorder) RecordAlert(ctx context.Context, kind types.AlertKind, sent bool) {
	for _, r := range m {
		r.RecordAlert(ctx, kind, sent)
	}
}
