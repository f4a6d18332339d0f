package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Environment handed to every test process, so a check can tell which group
// and check it is running as.
const (
	EnvCheckID = "OP_RERUN_CHECK"
	EnvGroupID = "OP_RERUN_GROUP"
)

// JSONStore handles storing raw JSON output
type JSONStore interface {
	Store(checkID string, rawJSON []byte) error
	StoreFromFile(checkID, path string) error
}

// GoTestEngineConfig holds configuration for creating a go test engine
type GoTestEngineConfig struct {
	WorkDir        string
	GoBinary       string
	DefaultTimeout time.Duration
	JSONStore      JSONStore
	Log            log.Logger
}

// GoTestEngine runs each check as a single test function through
// `go test -json -run ^Name$`. A test binary keeps no state between runs, so
// the engine has no group scope to tear down.
type GoTestEngine struct {
	workDir        string
	goBinary       string
	defaultTimeout time.Duration
	jsonStore      JSONStore
	log            log.Logger
	tracer         trace.Tracer
	cmdBuilder     func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewGoTestEngine creates a new go test engine
func NewGoTestEngine(cfg GoTestEngineConfig) (*GoTestEngine, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = DefaultGoBinary
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &GoTestEngine{
		workDir:        cfg.WorkDir,
		goBinary:       cfg.GoBinary,
		defaultTimeout: cfg.DefaultTimeout,
		jsonStore:      cfg.JSONStore,
		log:            cfg.Log,
		tracer:         otel.Tracer("go test engine"),
		cmdBuilder:     exec.CommandContext,
	}, nil
}

// Run executes the test function of check.
func (e *GoTestEngine) Run(ctx context.Context, check *types.Check, _ types.Successor) ([]types.OutcomeEvent, error) {
	if check.Package == "" || check.Name == "" {
		return nil, fmt.Errorf("check %s has no package or test name", check.ID)
	}
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("test %s", check.Name))
	defer span.End()

	timeout := check.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}
	if timeout > 0 {
		var cancel func()
		// The parent timeout is a backstop; give the child process 200ms to
		// trigger its own timeout first.
		ctx, cancel = context.WithTimeout(ctx, timeout+200*time.Millisecond)
		defer cancel()
	}

	cmd := e.cmdBuilder(ctx, e.goBinary, e.buildTestArgs(check, timeout)...)
	cmd.Dir = e.workDir
	env := append(os.Environ(), fmt.Sprintf("%s=%s", EnvCheckID, check.ID))
	if check.Group != nil {
		env = append(env, fmt.Sprintf("%s=%s", EnvGroupID, check.Group.ID))
	}
	cmd.Env = telemetry.InstrumentEnvironment(ctx, env)

	stdoutFile, err := os.CreateTemp("", "op-rerun-exec-stdout-*.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout temp file: %w", err)
	}
	stdoutPath := stdoutFile.Name()
	defer func() {
		_ = stdoutFile.Close()
		_ = os.Remove(stdoutPath)
	}()

	stdoutCount := &byteCounter{}
	var stderrBuf bytes.Buffer
	cmd.Stdout = io.MultiWriter(stdoutFile, stdoutCount)
	cmd.Stderr = &stderrBuf

	e.log.Info("Running check", "check", check.ID, "test", check.Name)
	e.log.Debug("Running test command", "dir", cmd.Dir, "package", check.Package, "command", cmd.String(), "timeout", timeout)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)
	_ = stdoutFile.Sync()
	_ = stdoutFile.Close()

	if e.jsonStore != nil && stdoutCount.TotalBytes() > 0 {
		if err := e.jsonStore.StoreFromFile(check.ID, stdoutPath); err != nil {
			e.log.Error("Failed to store raw JSON", "check", check.ID, "err", err)
		}
	}

	stdoutReader, err := os.Open(stdoutPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdout: %w", err)
	}
	parsed := parseTestOutput(stdoutReader, check.Name)
	_ = stdoutReader.Close()
	if parsed.duration == 0 {
		parsed.duration = duration
	}

	setup := types.OutcomeEvent{CheckID: check.ID, Stage: types.StageSetup, Outcome: types.OutcomePassed}
	teardown := types.OutcomeEvent{CheckID: check.ID, Stage: types.StageTeardown, Outcome: types.OutcomePassed}
	call := types.OutcomeEvent{
		CheckID:      check.ID,
		Stage:        types.StageCall,
		Outcome:      parsed.outcome,
		Detail:       parsed.detail,
		Duration:     parsed.duration,
		ExpectedFail: check.XFail,
	}

	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	if timedOut {
		call.Outcome = types.OutcomeFailed
		call.Detail = strings.TrimSpace(fmt.Sprintf("check timed out after %v\n%s", timeout, parsed.detail))
	}

	if runErr != nil {
		exitErr := &exec.ExitError{}
		switch {
		case errors.As(runErr, &exitErr) && exitErr.ExitCode() == 1 && parsed.finished:
			// Expected test failure
		case parsed.buildFailed || (errors.As(runErr, &exitErr) && exitErr.ExitCode() == 2):
			setup.Outcome = types.OutcomeFailed
			setup.Detail = strings.TrimSpace(fmt.Sprintf("test compilation failed: %s\n%s", parsed.detail, stderrBuf.String()))
			return []types.OutcomeEvent{setup, teardown}, nil
		case timedOut:
		case !parsed.finished:
			call.Outcome = types.OutcomeFailed
			call.Detail = strings.TrimSpace(fmt.Sprintf("test execution failed: %v\n%s\n%s", runErr, parsed.detail, stderrBuf.String()))
		}
	}

	return []types.OutcomeEvent{setup, call, teardown}, nil
}

func (e *GoTestEngine) buildTestArgs(check *types.Check, timeout time.Duration) []string {
	args := []string{TestCommand, JSONFlag, VerboseFlag, CountFlag, DisableCacheCount}
	if timeout > 0 {
		args = append(args, TimeoutFlag, timeout.String())
	}
	return append(args, check.Package, RunFlag, fmt.Sprintf("^%s$", check.Name))
}

var _ ExecutionEngine = (*GoTestEngine)(nil)
