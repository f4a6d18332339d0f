package runner

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonStream renders test2json events the way go test -json prints them.
func jsonStream(t *testing.T, events ...TestEvent) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range events {
		line, err := json.Marshal(ev)
		require.NoError(t, err)
		b.Write(line)
		b.WriteString("\n")
	}
	return b.String()
}

func TestParseTestOutput(t *testing.T) {
	const pkg = "example.com/pkg"
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		events   []TestEvent
		raw      string
		outcome  types.Outcome
		finished bool
		build    bool
		detail   string
		duration time.Duration
	}{
		{
			name: "pass",
			events: []TestEvent{
				{Time: start, Action: ActionRun, Package: pkg, Test: "TestA"},
				{Action: ActionOutput, Package: pkg, Test: "TestA", Output: "=== RUN   TestA\n"},
				{Action: ActionOutput, Package: pkg, Test: "TestA", Output: "    a_test.go:10: some log\n"},
				{Action: ActionOutput, Package: pkg, Test: "TestA", Output: "--- PASS: TestA (1.50s)\n"},
				{Time: start.Add(2 * time.Second), Action: ActionPass, Package: pkg, Test: "TestA", Elapsed: 1.5},
			},
			outcome:  types.OutcomePassed,
			finished: true,
			duration: 1500 * time.Millisecond,
		},
		{
			name: "fail keeps assertion output",
			events: []TestEvent{
				{Time: start, Action: ActionRun, Package: pkg, Test: "TestA"},
				{Action: ActionOutput, Package: pkg, Test: "TestA", Output: "=== RUN   TestA\n"},
				{Action: ActionOutput, Package: pkg, Test: "TestA", Output: "    a_test.go:12: \x1b[31mexpected 1, got 2\x1b[0m\n"},
				{Action: ActionOutput, Package: pkg, Test: "TestA", Output: "--- FAIL: TestA (0.00s)\n"},
				{Time: start.Add(time.Second), Action: ActionFail, Package: pkg, Test: "TestA"},
				{Action: ActionOutput, Package: pkg, Output: "FAIL\n"},
			},
			outcome:  types.OutcomeFailed,
			finished: true,
			detail:   "a_test.go:12: expected 1, got 2\n--- FAIL: TestA (0.00s)",
			duration: time.Second,
		},
		{
			name: "subtest output belongs to the parent",
			events: []TestEvent{
				{Action: ActionRun, Package: pkg, Test: "TestA"},
				{Action: ActionRun, Package: pkg, Test: "TestA/case_1"},
				{Action: ActionOutput, Package: pkg, Test: "TestA/case_1", Output: "    a_test.go:20: case 1 broke\n"},
				{Action: ActionFail, Package: pkg, Test: "TestA/case_1"},
				{Action: ActionFail, Package: pkg, Test: "TestA"},
				{Action: ActionOutput, Package: pkg, Test: "TestAB", Output: "unrelated\n"},
			},
			outcome:  types.OutcomeFailed,
			finished: true,
			detail:   "a_test.go:20: case 1 broke",
		},
		{
			name: "skip",
			events: []TestEvent{
				{Action: ActionRun, Package: pkg, Test: "TestA"},
				{Action: ActionOutput, Package: pkg, Test: "TestA", Output: "    a_test.go:8: needs docker\n"},
				{Action: ActionSkip, Package: pkg, Test: "TestA"},
			},
			outcome:  types.OutcomeSkipped,
			finished: true,
			detail:   "a_test.go:8: needs docker",
		},
		{
			name: "build failure",
			events: []TestEvent{
				{Action: ActionOutput, Package: pkg, Output: "# example.com/pkg\n"},
				{Action: ActionOutput, Package: pkg, Output: "./a_test.go:3:2: undefined: foo\n"},
				{Action: ActionOutput, Package: pkg, Output: "FAIL\texample.com/pkg [build failed]\n"},
				{Action: ActionFail, Package: pkg},
			},
			outcome: types.OutcomeFailed,
			build:   true,
			detail:  "# example.com/pkg\n./a_test.go:3:2: undefined: foo\nFAIL\texample.com/pkg [build failed]",
		},
		{
			name:    "build-fail action",
			events:  []TestEvent{{Action: "build-fail", Package: pkg}},
			outcome: types.OutcomeFailed,
			build:   true,
			detail:  "no result for TestA in test output",
		},
		{
			name:    "no result",
			raw:     "not json\n",
			outcome: types.OutcomeFailed,
			detail:  "no result for TestA in test output",
		},
		{
			name: "panic without a result",
			events: []TestEvent{
				{Action: ActionRun, Package: pkg, Test: "TestA"},
				{Action: ActionOutput, Package: pkg, Test: "TestA", Output: "panic: runtime error: index out of range\n"},
			},
			outcome: types.OutcomeFailed,
			detail:  "panic: runtime error: index out of range",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.raw
			if input == "" {
				input = jsonStream(t, tt.events...)
			}
			got := parseTestOutput(strings.NewReader(input), "TestA")
			assert.Equal(t, tt.outcome, got.outcome)
			assert.Equal(t, tt.finished, got.finished)
			assert.Equal(t, tt.build, got.buildFailed)
			assert.Equal(t, tt.detail, got.detail)
			if tt.duration > 0 {
				assert.Equal(t, tt.duration, got.duration)
			}
		})
	}
}

func TestTestDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 250*time.Millisecond, testDuration(start, TestEvent{Elapsed: 0.25}))
	assert.Equal(t, 3*time.Second, testDuration(start, TestEvent{Time: start.Add(3 * time.Second)}))
	assert.Zero(t, testDuration(time.Time{}, TestEvent{Time: start}))
	assert.Zero(t, testDuration(start, TestEvent{Time: start.Add(-time.Second)}))
}
