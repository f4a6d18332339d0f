package rerun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-rerun/logging"
	"github.com/ethereum-optimism/infra/op-rerun/registry"
	"github.com/ethereum-optimism/infra/op-rerun/reporting"
	"github.com/ethereum-optimism/infra/op-rerun/runner"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// PlanExecutor runs the plan once per call.
type PlanExecutor interface {
	Execute(ctx context.Context, runID string) (*runner.Result, error)
}

// planRunner is satisfied by runner.Session and runner.Coordinator.
type planRunner interface {
	Run(ctx context.Context, plan []*types.Check) (*runner.Result, error)
}

// DefaultPlanExecutor loads the plan afresh for every run, so group state
// never leaks from one run into the next, and runs it through go test.
type DefaultPlanExecutor struct {
	config *Config
	out    io.Writer
	logger log.Logger
}

// NewDefaultPlanExecutor creates a new DefaultPlanExecutor. Progress lines are
// written to out, or stdout when out is nil.
func NewDefaultPlanExecutor(config *Config, out io.Writer) *DefaultPlanExecutor {
	if out == nil {
		out = os.Stdout
	}
	return &DefaultPlanExecutor{config: config, out: out, logger: config.Log}
}

// Execute loads the plan and runs it.
func (e *DefaultPlanExecutor) Execute(ctx context.Context, runID string) (result *runner.Result, err error) {
	plan, err := registry.LoadPlan(registry.PlanConfig{
		Log:            e.logger,
		PlanFile:       e.config.PlanFile,
		WorkDir:        e.config.TestDir,
		DefaultTimeout: e.config.DefaultTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("loading plan: %w", err)
	}

	fileLogger, err := logging.NewFileLogger(e.config.LogDir, runID, e.config.HideRerunSummary)
	if err != nil {
		return nil, fmt.Errorf("creating file logger: %w", err)
	}
	defer func() {
		if closeErr := fileLogger.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing file logger: %w", closeErr))
		}
	}()

	htmlTemplate, err := logging.GetHTMLTemplate(logging.ResultsTemplateName)
	if err != nil {
		return nil, err
	}
	htmlSink, err := reporting.NewHTMLSink(fileLogger.GetBaseDir(), runID, htmlTemplate, types.GroupLabels(plan))
	if err != nil {
		return nil, err
	}

	sink := reporting.NewMultiSink(
		reporting.NewTextSink(e.out, reporting.TextSinkOptions{
			Total:            len(plan),
			HideRerunSummary: e.config.HideRerunSummary,
		}),
		fileLogger,
		htmlSink,
	)
	jsonStore := runner.NewJSONStore(fileLogger)

	e.logger.Info("Running plan", "run_id", runID, "checks", len(plan), "workers", e.config.Workers,
		"maxAttempts", e.config.Rerun.MaxAttempts, "logDir", fileLogger.GetBaseDir())
	r, err := e.newRunner(runID, sink, jsonStore)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, plan)
}

func (e *DefaultPlanExecutor) newRunner(runID string, sink runner.ReportingSink, store runner.JSONStore) (planRunner, error) {
	newEngine := func(logger log.Logger) (*runner.GoTestEngine, error) {
		return runner.NewGoTestEngine(runner.GoTestEngineConfig{
			WorkDir:        e.config.TestDir,
			GoBinary:       e.config.GoBinary,
			DefaultTimeout: e.config.DefaultTimeout,
			JSONStore:      store,
			Log:            logger,
		})
	}

	if e.config.Workers <= 1 {
		engine, err := newEngine(e.logger)
		if err != nil {
			return nil, err
		}
		return runner.NewSession(runner.SessionConfig{
			Config: e.config.Rerun,
			Engine: engine,
			Sink:   sink,
			Log:    e.logger,
			RunID:  runID,
		})
	}

	return runner.NewCoordinator(runner.CoordinatorConfig{
		Config:  e.config.Rerun,
		Workers: e.config.Workers,
		NewWorker: func(w int) (runner.ExecutionEngine, runner.FixtureCacheController, error) {
			engine, err := newEngine(e.logger.New("worker", w))
			return engine, nil, err
		},
		Sink:  sink,
		Log:   e.logger,
		RunID: runID,
	})
}
