package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
		{
			name: "error with multiple underscores",
			err:  errors.New("test__error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
}

func TestRecordErrorDetails(t *testing.T) {
	RecordErrorDetails("test", nil)
	RecordErrorDetails("test", errors.New("sample error"))
	assert.Equal(t, 1.0, testutil.ToFloat64(errorsTotal.WithLabelValues("test.sample_error")))
}

func TestRecordAttempt(t *testing.T) {
	RecordAttempt("mod::TestAttempt", 0, false)
	RecordAttempt("mod::TestAttempt", 1, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(attemptsTotal.WithLabelValues("mod::TestAttempt", "0", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(attemptsTotal.WithLabelValues("mod::TestAttempt", "1", "pass")))
}

func TestRecordGroupResult(t *testing.T) {
	RecordRerun("mod::TestGroup")
	RecordRerun("mod::TestGroup")
	RecordGroupResult("mod::TestGroup", true, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(rerunsTotal.WithLabelValues("mod::TestGroup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(groupResults.WithLabelValues("mod::TestGroup", "pass")))
	assert.Equal(t, 0.0, testutil.ToFloat64(groupResults.WithLabelValues("mod::TestGroup", "fail")))
	assert.Equal(t, 3.0, testutil.ToFloat64(groupAttemptsUsed.WithLabelValues("mod::TestGroup")))
}

func TestRecordSnapshotAliased(t *testing.T) {
	RecordSnapshotAliased("mod::TestAliased", 0)
	RecordSnapshotAliased("mod::TestAliased", 2)
	RecordTeardownWarning("mod::TestAliased")

	assert.Equal(t, 2.0, testutil.ToFloat64(snapshotAliasedTotal.WithLabelValues("mod::TestAliased")))
	assert.Equal(t, 1.0, testutil.ToFloat64(teardownWarningsTotal.WithLabelValues("mod::TestAliased")))
}

func TestRecordSession(t *testing.T) {
	stats := types.Stats{Passed: 3, Failed: 1, Reruns: 2}
	RecordSession("run1", types.StatusFail, stats, 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(sessionResults.WithLabelValues("run1", "fail")))
	assert.Equal(t, 3.0, testutil.ToFloat64(sessionChecks.WithLabelValues("run1", "passed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(sessionChecks.WithLabelValues("run1", "rerun")))
	assert.Equal(t, 2.0, testutil.ToFloat64(sessionDuration.WithLabelValues("run1")))

	// invalid results are dropped
	RecordSession("run2", types.Status("bogus"), stats, time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(sessionResults.WithLabelValues("run2", "bogus")))
}
