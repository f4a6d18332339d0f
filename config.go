package rerun

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-rerun/flags"
	"github.com/ethereum-optimism/infra/op-rerun/runner"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	PlanFile         string
	TestDir          string
	GoBinary         string
	Rerun            runner.Config // group rerun settings
	HideRerunSummary bool          // Suppress the rerun summary section of the text report
	Workers          int           // Number of workers; groups never span workers
	DefaultTimeout   time.Duration // Timeout of a check execution the plan sets none for
	LogDir           string        // Directory to store per-run event logs
	RunInterval      time.Duration // Interval between plan runs
	RunOnce          bool          // Indicates if the service should exit after one run
	ShowMembers      bool          // List group members in the results table
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	planFile := ctx.String(flags.Plan.Name)
	if planFile == "" {
		return nil, errors.New("plan file is required")
	}
	testDir := ctx.String(flags.TestDir.Name)
	if testDir == "" {
		testDir = "."
	}
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}

	absPlanFile, err := filepath.Abs(planFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan file '%s': %w", planFile, err)
	}
	absTestDir, err := filepath.Abs(testDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
	}
	absLogDir, err := filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	rerunCfg := runner.Config{
		MaxAttempts:       ctx.Int(flags.RerunClassMax.Name),
		InterAttemptDelay: flags.DelayDuration(ctx.Float64(flags.RerunDelay.Name)),
		OnlyLast:          ctx.Bool(flags.RerunShowOnlyLast.Name),
	}
	if err := rerunCfg.Validate(); err != nil {
		return nil, err
	}

	workers := ctx.Int(flags.Workers.Name)
	if workers < 1 {
		workers = 1
	}
	if workers > runner.MaxReasonableConcurrency {
		log.Warn("Capping workers", "requested", workers, "max", runner.MaxReasonableConcurrency)
		workers = runner.MaxReasonableConcurrency
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	return &Config{
		PlanFile:         absPlanFile,
		TestDir:          absTestDir,
		GoBinary:         ctx.String(flags.GoBinary.Name),
		Rerun:            rerunCfg,
		HideRerunSummary: ctx.Bool(flags.HideRerunSummary.Name),
		Workers:          workers,
		DefaultTimeout:   ctx.Duration(flags.DefaultTimeout.Name),
		LogDir:           absLogDir,
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		ShowMembers:      ctx.Bool(flags.ShowMembers.Name),
		Log:              log,
	}, nil
}
