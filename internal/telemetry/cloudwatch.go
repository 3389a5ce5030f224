package telemetry

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"treasury/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder publishes cycle and alert metrics to CloudWatch.
//
// Metrics emitted:
//   - CycleDuration, CycleAccounts, CycleErrors: Dims {Cycle, Source}
//   - SkippedRuns: Dims {Cycle}
//   - AlertSent / AlertFailed: Dims {Kind}
//
// Publishing failures are logged and otherwise ignored.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a recorder for namespace. An empty namespace
// uses types.MetricNamespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordCycle implements scheduler.MetricsRecorder.
func (m *CloudWatchRecorder) RecordCycle(ctx context.Context, record *types.RunRecord) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimCycle), Value: aws.String(record.Cycle)},
		{Name: aws.String(types.DimSource), Value: aws.String(string(record.Source))},
	}
	m.put(ctx, "cycle", []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricCycleDuration),
			Value:      aws.Float64(float64(record.DurationMs)),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(types.MetricCycleAccounts),
			Value:      aws.Float64(float64(record.ProcessedAccounts)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(types.MetricCycleErrors),
			Value:      aws.Float64(float64(record.ErrorCount)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	})
}

// RecordSkipped implements scheduler.MetricsRecorder.
func (m *CloudWatchRecorder) RecordSkipped(ctx context.Context, cycle string) {
	m.put(ctx, "skipped", []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricSkippedRuns),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimCycle), Value: aws.String(cycle)},
		},
	}})
}

// RecordAlert implements alerts.Recorder.
func (m *CloudWatchRecorder) RecordAlert(ctx context.Context, kind types.AlertKind, sent bool) {
	name := types.MetricAlertSent
	if !sent {
		name = types.MetricAlertFailed
	}
	m.put(ctx, "alert", []cwtypes.MetricDatum{{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimKind), Value: aws.String(string(kind))},
		},
	}})
}

func (m *CloudWatchRecorder) put(ctx context.Context, what string, data []cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish metric",
			"metric", what,
			"error", err.Error(),
		)
	}
}
