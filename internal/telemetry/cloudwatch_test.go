package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"treasury/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func assertDimension(t *testing.T, dims []cwtypes.Dimension, name, value string) {
	t.Helper()
	for _, d := range dims {
		if *d.Name == name {
			if *d.Value != value {
				t.Errorf("dimension %s = %q, want %q", name, *d.Value, value)
			}
			return
		}
	}
	t.Errorf("dimension %s not found", name)
}

func TestCloudWatchRecorder_RecordCycle(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "", nil)

	rec.RecordCycle(context.Background(), &types.RunRecord{
		Cycle:             "execution",
		Source:            types.RunSourceManual,
		DurationMs:        250,
		ProcessedAccounts: 4,
		ErrorCount:        1,
	})

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.calls))
	}
	input := cw.calls[0]
	if *input.Namespace != types.MetricNamespace {
		t.Errorf("namespace = %q, want %q", *input.Namespace, types.MetricNamespace)
	}
	if len(input.MetricData) != 3 {
		t.Fatalf("expected 3 metric data, got %d", len(input.MetricData))
	}

	byName := make(map[string]cwtypes.MetricDatum)
	for _, d := range input.MetricData {
		byName[*d.MetricName] = d
	}

	dur := byName[types.MetricCycleDuration]
	if *dur.Value != 250 || dur.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("CycleDuration = %v %s", *dur.Value, dur.Unit)
	}
	assertDimension(t, dur.Dimensions, types.DimCycle, "execution")
	assertDimension(t, dur.Dimensions, types.DimSource, "manual")

	if v := *byName[types.MetricCycleAccounts].Value; v != 4 {
		t.Errorf("CycleAccounts = %v, want 4", v)
	}
	if v := *byName[types.MetricCycleErrors].Value; v != 1 {
		t.Errorf("CycleErrors = %v, want 1", v)
	}
}

func TestCloudWatchRecorder_RecordSkipped(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "Custom", nil)

	rec.RecordSkipped(context.Background(), "monitoring")

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.calls))
	}
	if *cw.calls[0].Namespace != "Custom" {
		t.Errorf("namespace = %q, want Custom", *cw.calls[0].Namespace)
	}
	datum := cw.calls[0].MetricData[0]
	if *datum.MetricName != types.MetricSkippedRuns {
		t.Errorf("metric = %q", *datum.MetricName)
	}
	assertDimension(t, datum.Dimensions, types.DimCycle, "monitoring")
}

func TestCloudWatchRecorder_RecordAlert(t *testing.T) {
	tests := []struct {
		sent bool
		want string
	}{
		{sent: true, want: types.MetricAlertSent},
		{sent: false, want: types.MetricAlertFailed},
	}

	for _, tt := range tests {
		cw := &mockCloudWatchClient{}
		NewCloudWatchRecorder(cw, "", nil).RecordAlert(context.Background(), types.AlertKindExecution, tt.sent)

		datum := cw.calls[0].MetricData[0]
		if *datum.MetricName != tt.want {
			t.Errorf("sent=%v: metric = %q, want %q", tt.sent, *datum.MetricName, tt.want)
		}
		assertDimension(t, datum.Dimensions, types.DimKind, "execution")
	}
}

func TestCloudWatchRecorder_ErrorIsSwallowed(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	rec := NewCloudWatchRecorder(cw, "", nil)

	// Must not panic or block.
	rec.RecordSkipped(context.Background(), "monitoring")

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.calls))
	}
}

type countingRecorder struct {
	cycles, skipped, alerts int
}

func (c *countingRecorder) RecordCycle(context.Context, *types.RunRecord)      { c.cycles++ }
func (c *countingRecorder) RecordSkipped(context.Context, string)              { c.skipped++ }
func (c *countingRecorder) RecordAlert(context.Context, types.AlertKind, bool) { c.alerts++ }

func TestMultiRecorder(t *testing.T) {
	a, b := &countingRecorder{}, &countingRecorder{}
	m := MultiRecorder{a, b}
	ctx := context.Background()

	m.RecordCycle(ctx, &types.RunRecord{})
	m.RecordSkipped(ctx, "x")
	m.RecordAlert(ctx, types.AlertKindRisk, true)

	for i, c := range []*countingRecorder{a, b} {
		if c.cycles != 1 || c.skipped != 1 || c.alerts != 1 {
			t.Errorf("recorder %d = %+v, want one of each", i, *c)
		}
	}
}
