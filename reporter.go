package rerun

import (
	"github.com/ethereum-optimism/infra/op-rerun/metrics"
	"github.com/ethereum-optimism/infra/op-rerun/runner"
)

// MetricsReporter is responsible for reporting metrics from run results.
type MetricsReporter interface {
	ReportResults(result *runner.Result)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults records the verdict and tallies of a run.
func (r *DefaultMetricsReporter) ReportResults(result *runner.Result) {
	metrics.RecordSession(result.RunID, result.Status(), result.Stats, result.Duration)
}
