package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "rerun"
)

var (
	Debug                bool = true
	validResults              = []types.Status{types.StatusPass, types.StatusFail, types.StatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "group_attempts_total",
		Help:      "Count of group attempts by attempt number and result",
	}, []string{
		"group",
		"attempt",
		"result",
	})

	rerunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "group_reruns_total",
		Help:      "Count of group reruns",
	}, []string{
		"group",
	})

	groupResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "group_result",
		Help:      "Final result of a group; 1 for the recorded result",
	}, []string{
		"group",
		"result",
	})

	groupAttemptsUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "group_attempts_used",
		Help:      "Number of attempts a group needed",
	}, []string{
		"group",
	})

	snapshotAliasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "snapshot_aliased_fields_total",
		Help:      "Count of shared-context fields that could not be copied and were restored by reference",
	}, []string{
		"group",
	})

	teardownWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "teardown_warnings_total",
		Help:      "Count of group teardowns that raised an error",
	}, []string{
		"group",
	})

	sessionResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_results",
		Help:      "Result of a rerun session",
	}, []string{
		"run_id",
		"result",
	})

	sessionChecks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_checks",
		Help:      "Number of published check outcomes in a session by outcome",
	}, []string{
		"run_id",
		"outcome",
	})

	sessionDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_duration_seconds",
		Help:      "Duration of a rerun session",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordAttempt counts one finished attempt of a group.
func RecordAttempt(group string, attempt int, passed bool) {
	result := types.StatusFail
	if passed {
		result = types.StatusPass
	}
	if Debug {
		log.Debug("metric inc",
			"m", "group_attempts_total",
			"group", group,
			"attempt", attempt,
			"result", result)
	}
	attemptsTotal.WithLabelValues(group, strconv.Itoa(attempt), string(result)).Inc()
}

func RecordRerun(group string) {
	rerunsTotal.WithLabelValues(group).Inc()
}

// RecordGroupResult records how a group ended and how many attempts it took.
func RecordGroupResult(group string, passed bool, attempts int) {
	pass, fail := 0.0, 1.0
	if passed {
		pass, fail = 1.0, 0.0
	}
	groupResults.WithLabelValues(group, string(types.StatusPass)).Set(pass)
	groupResults.WithLabelValues(group, string(types.StatusFail)).Set(fail)
	groupAttemptsUsed.WithLabelValues(group).Set(float64(attempts))
}

func RecordSnapshotAliased(group string, fields int) {
	if fields <= 0 {
		return
	}
	snapshotAliasedTotal.WithLabelValues(group).Add(float64(fields))
}

func RecordTeardownWarning(group string) {
	teardownWarningsTotal.WithLabelValues(group).Inc()
}

// RecordSession records the outcome tallies and verdict of a finished session.
func RecordSession(runID string, result types.Status, stats types.Stats, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordSession - invalid result", "result", result)
		return
	}
	sessionResults.WithLabelValues(runID, string(result)).Set(1)
	sessionChecks.WithLabelValues(runID, "passed").Set(float64(stats.Passed))
	sessionChecks.WithLabelValues(runID, "failed").Set(float64(stats.Failed))
	sessionChecks.WithLabelValues(runID, "error").Set(float64(stats.Errors))
	sessionChecks.WithLabelValues(runID, "skipped").Set(float64(stats.Skipped))
	sessionChecks.WithLabelValues(runID, "xfailed").Set(float64(stats.XFailed))
	sessionChecks.WithLabelValues(runID, "rerun").Set(float64(stats.Reruns))
	sessionDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.Status) bool {
	return slices.Contains(validResults, result)
}
