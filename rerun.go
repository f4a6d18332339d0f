package rerun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-rerun/runner"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

var _ cliapp.Lifecycle = (*Service)(nil)

// Service runs the plan on the configured schedule and reports every run.
type Service struct {
	config  *Config
	version string

	executor  PlanExecutor
	scheduler RunScheduler
	formatter ResultFormatter
	reporter  MetricsReporter

	lastResult atomic.Pointer[runner.Result]

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates the service with its default components.
func New(config *Config, version string, shutdownCallback func(error)) (*Service, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating op-rerun with config",
		"plan", config.PlanFile,
		"testDir", config.TestDir,
		"maxAttempts", config.Rerun.MaxAttempts,
		"delay", config.Rerun.InterAttemptDelay,
		"onlyLast", config.Rerun.OnlyLast,
		"workers", config.Workers,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	return &Service{
		config:           config,
		version:          version,
		executor:         NewDefaultPlanExecutor(config, os.Stdout),
		scheduler:        NewDefaultRunScheduler(config.RunInterval, config.RunOnce, config.Log),
		formatter:        NewConsoleResultFormatter(config.Log, nil, config.ShowMembers),
		reporter:         NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start implements the cliapp.Lifecycle interface. The first run completes
// before Start returns; in run-once mode its verdict becomes the error.
func (s *Service) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.config.Log.Error("Runtime error occurred", "err", r)
			err = NewRuntimeError(fmt.Errorf("panic: %v", r))
		}
	}()

	s.config.Log.Info("Starting op-rerun", "version", s.version)
	s.scheduler.RegisterCallback(s.runPlan)
	if err := s.scheduler.Start(ctx); err != nil {
		s.config.Log.Error("Runtime error running plan", "err", err)
		if IsRuntimeError(err) {
			return err
		}
		return NewRuntimeError(err)
	}

	if !s.config.RunOnce {
		s.config.Log.Debug("op-rerun started successfully")
		return nil
	}

	s.config.Log.Info("Plan completed, exiting (run-once mode)")
	if result := s.lastResult.Load(); result != nil && result.Status() == types.StatusFail {
		s.config.Log.Warn("Run-once plan completed with failures, returning exit code 1")
		return NewCheckFailureError(result.RunID, result.Stats)
	}

	go s.shutdownCallback(nil)
	return nil
}

// runPlan performs one run of the plan and reports it.
func (s *Service) runPlan(ctx context.Context) error {
	runID := uuid.New().String()
	s.config.Log.Info("Running plan...", "run_id", runID)

	result, err := s.executor.Execute(ctx, runID)
	if err != nil {
		return NewRuntimeError(err)
	}
	s.lastResult.Store(result)

	if err := s.formatter.FormatResults(result); err != nil {
		s.config.Log.Error("Error formatting results", "err", err)
	}
	s.reporter.ReportResults(result)

	s.config.Log.Info("Plan run completed", "run_id", result.RunID, "status", result.Status(),
		"stats", result.Stats.String(), "duration", result.Duration)
	return nil
}

// LastResult returns the result of the most recent completed run, if any.
func (s *Service) LastResult() *runner.Result {
	return s.lastResult.Load()
}

// Stop implements the cliapp.Lifecycle interface.
func (s *Service) Stop(ctx context.Context) error {
	s.config.Log.Info("Stopping op-rerun")
	if err := s.scheduler.Stop(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	s.config.Log.Info("op-rerun stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (s *Service) Stopped() bool {
	return s.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
func (s *Service) WaitForShutdown(ctx context.Context) error {
	return s.scheduler.WaitForShutdown(ctx)
}
