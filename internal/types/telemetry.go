package types

// Metric names and dimensions shared by the CloudWatch and OpenTelemetry
// recorders.
const (
	MetricCycleDuration = "CycleDuration"
	MetricCycleErrors   = "CycleErrors"
	MetricCycleAccounts = "CycleAccounts"
	MetricSkippedRuns   = "SkippedRuns"
	MetricAlertSent     = "AlertSent"
	MetricAlertFailed   = "AlertFailed"

	DimCycle  = "Cycle"
	DimSource = "Source"
	DimKind   = "Kind"

	MetricNamespace = "Treasury"
)
