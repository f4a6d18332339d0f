package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess stands in for the go binary when run as a child of the
// engine tests. It prints HELPER_STDOUT, HELPER_STDERR and exits with
// HELPER_EXIT after sleeping HELPER_SLEEP.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if path := os.Getenv("HELPER_ARGS_FILE"); path != "" {
		args := os.Args
		for i, a := range args {
			if a == "--" {
				args = args[i+1:]
				break
			}
		}
		env := fmt.Sprintf("%s=%s %s=%s", EnvCheckID, os.Getenv(EnvCheckID), EnvGroupID, os.Getenv(EnvGroupID))
		_ = os.WriteFile(path, []byte(strings.Join(args, " ")+"\n"+env), 0644)
	}
	if d, err := time.ParseDuration(os.Getenv("HELPER_SLEEP")); err == nil {
		time.Sleep(d)
	}
	fmt.Fprint(os.Stdout, os.Getenv("HELPER_STDOUT"))
	fmt.Fprint(os.Stderr, os.Getenv("HELPER_STDERR"))
	code, _ := strconv.Atoi(os.Getenv("HELPER_EXIT"))
	os.Exit(code)
}

func helperCommand(ctx context.Context, _ string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=^TestHelperProcess$", "--"}, args...)
	return exec.CommandContext(ctx, os.Args[0], cs...)
}

type mockJSONStore struct {
	mock.Mock
}

func (m *mockJSONStore) Store(checkID string, rawJSON []byte) error {
	return m.Called(checkID, rawJSON).Error(0)
}

func (m *mockJSONStore) StoreFromFile(checkID, path string) error {
	return m.Called(checkID, path).Error(0)
}

func newHelperEngine(t *testing.T, store JSONStore) *GoTestEngine {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	engine, err := NewGoTestEngine(GoTestEngineConfig{
		WorkDir:   t.TempDir(),
		JSONStore: store,
		Log:       log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)
	engine.cmdBuilder = helperCommand
	return engine
}

func stageOutcomes(events []types.OutcomeEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = fmt.Sprintf("%s:%s", ev.Stage, ev.Outcome)
	}
	return out
}

func TestGoTestEngineRun(t *testing.T) {
	const pkg = "./pkg"
	tests := []struct {
		name   string
		stdout []TestEvent
		stderr string
		exit   int
		want   []string
		detail string
	}{
		{
			name: "pass",
			stdout: []TestEvent{
				{Action: ActionRun, Package: pkg, Test: "TestA"},
				{Action: ActionPass, Package: pkg, Test: "TestA", Elapsed: 0.01},
			},
			want: []string{"setup:passed", "call:passed", "teardown:passed"},
		},
		{
			name: "test failure",
			stdout: []TestEvent{
				{Action: ActionRun, Package: pkg, Test: "TestA"},
				{Action: ActionOutput, Package: pkg, Test: "TestA", Output: "    a_test.go:9: bad value\n"},
				{Action: ActionFail, Package: pkg, Test: "TestA"},
			},
			exit:   1,
			want:   []string{"setup:passed", "call:failed", "teardown:passed"},
			detail: "a_test.go:9: bad value",
		},
		{
			name: "compilation failure",
			stdout: []TestEvent{
				{Action: ActionOutput, Package: pkg, Output: "FAIL\t./pkg [build failed]\n"},
			},
			stderr: "undefined: foo\n",
			exit:   1,
			want:   []string{"setup:failed", "teardown:passed"},
			detail: "test compilation failed: FAIL\t./pkg [build failed]\nundefined: foo",
		},
		{
			name:   "crash before any result",
			stderr: "signal: segmentation fault\n",
			exit:   3,
			want:   []string{"setup:passed", "call:failed", "teardown:passed"},
			detail: "test execution failed: exit status 3\nno result for TestA in test output\nsignal: segmentation fault",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newHelperEngine(t, nil)
			t.Setenv("HELPER_STDOUT", jsonStream(t, tt.stdout...))
			t.Setenv("HELPER_STDERR", tt.stderr)
			t.Setenv("HELPER_EXIT", strconv.Itoa(tt.exit))

			check := &types.Check{ID: "pkg::TestA", Package: pkg, Name: "TestA"}
			events, err := engine.Run(context.Background(), check, types.Successor{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, stageOutcomes(events))
			for _, ev := range events {
				assert.Equal(t, check.ID, ev.CheckID)
				if ev.Outcome == types.OutcomeFailed {
					assert.Equal(t, tt.detail, ev.Detail)
				}
			}
		})
	}
}

func TestGoTestEngineCommand(t *testing.T) {
	store := &mockJSONStore{}
	store.On("StoreFromFile", "mod::G::TestA", mock.AnythingOfType("string")).Return(nil).Once()
	engine := newHelperEngine(t, store)
	argsFile := t.TempDir() + "/args"
	t.Setenv("HELPER_ARGS_FILE", argsFile)
	t.Setenv("HELPER_STDOUT", jsonStream(t, TestEvent{Action: ActionPass, Test: "TestA"}))

	group := types.NewGroup("mod", "G")
	check := &types.Check{ID: "mod::G::TestA", Package: "./mod", Name: "TestA", Timeout: time.Minute}
	group.AddMember(check)

	events, err := engine.Run(context.Background(), check, types.Successor{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	store.AssertExpectations(t)

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(string(recorded), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "test -json -v -count 1 -timeout 1m0s ./mod -run ^TestA$", lines[0])
	assert.Equal(t, "OP_RERUN_CHECK=mod::G::TestA OP_RERUN_GROUP=mod::G", lines[1])
}

func TestGoTestEngineTimeout(t *testing.T) {
	engine := newHelperEngine(t, nil)
	t.Setenv("HELPER_SLEEP", "10s")

	check := &types.Check{ID: "pkg::TestSlow", Package: "./pkg", Name: "TestSlow", Timeout: 50 * time.Millisecond}
	start := time.Now()
	events, err := engine.Run(context.Background(), check, types.Successor{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"setup:passed", "call:failed", "teardown:passed"}, stageOutcomes(events))
	assert.True(t, strings.HasPrefix(events[1].Detail, "check timed out after 50ms"), events[1].Detail)
}

func TestGoTestEngineValidation(t *testing.T) {
	_, err := NewGoTestEngine(GoTestEngineConfig{})
	assert.Error(t, err)

	engine, err := NewGoTestEngine(GoTestEngineConfig{WorkDir: ".", Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, err)
	assert.Equal(t, DefaultGoBinary, engine.goBinary)

	_, err = engine.Run(context.Background(), &types.Check{ID: "x"}, types.Successor{})
	assert.ErrorContains(t, err, "no package or test name")
}

func TestBuildTestArgs(t *testing.T) {
	engine := &GoTestEngine{}
	check := &types.Check{Package: "./a/...", Name: "TestX"}
	assert.Equal(t,
		[]string{"test", "-json", "-v", "-count", "1", "./a/...", "-run", "^TestX$"},
		engine.buildTestArgs(check, 0))
	assert.Equal(t,
		[]string{"test", "-json", "-v", "-count", "1", "-timeout", "2s", "./a/...", "-run", "^TestX$"},
		engine.buildTestArgs(check, 2*time.Second))
}
