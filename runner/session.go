package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/reporting"
	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

// Result captures the outcome of a session
type Result struct {
	RunID string
	// Checks holds the published report of every check, in publication order.
	Checks   []types.CheckReport
	Reruns   []types.OutcomeEvent
	Stats    types.Stats
	Duration time.Duration
}

// Status derives the overall verdict from the published events.
func (r *Result) Status() types.Status {
	return r.Stats.Status()
}

// SessionConfig holds configuration for creating a session
type SessionConfig struct {
	Config
	Engine ExecutionEngine
	Cache  FixtureCacheController
	// Sink is optional; results are always recorded for the returned Result.
	Sink  ReportingSink
	Log   log.Logger
	RunID string
	// SkipSummary leaves emitting the rerun summary to the caller.
	SkipSummary bool
}

// Session hosts one execution of a check plan: it hands every check to the
// orchestrator in plan order and collects what was published.
type Session struct {
	orch        *Orchestrator
	recorder    *reporting.RecordingSink
	sink        ReportingSink
	log         log.Logger
	runID       string
	skipSummary bool
}

// NewSession creates a new session instance
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}

	recorder := reporting.NewRecordingSink()
	var sink ReportingSink = recorder
	if cfg.Sink != nil {
		sink = reporting.NewMultiSink(recorder, cfg.Sink)
	}

	orch, err := NewOrchestrator(OrchestratorConfig{
		Config: cfg.Config,
		Engine: cfg.Engine,
		Sink:   sink,
		Cache:  cfg.Cache,
		Log:    cfg.Log,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		orch:        orch,
		recorder:    recorder,
		sink:        sink,
		log:         cfg.Log,
		runID:       cfg.RunID,
		skipSummary: cfg.SkipSummary,
	}, nil
}

// RunID returns the identifier of this session
func (s *Session) RunID() string {
	return s.runID
}

// Run executes plan. Checks are handled strictly in order; a cancelled
// context stops the session before the next check.
func (s *Session) Run(ctx context.Context, plan []*types.Check) (*Result, error) {
	start := time.Now()
	s.log.Debug("Running session", "run_id", s.runID, "checks", len(plan))

	for _, check := range plan {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("session interrupted before %s: %w", check.ID, err)
		}
		if _, err := s.orch.Handle(ctx, check, plan); err != nil {
			return nil, fmt.Errorf("handling check %s: %w", check.ID, err)
		}
	}

	if !s.skipSummary {
		if err := s.orch.Summary().Emit(s.sink); err != nil {
			return nil, fmt.Errorf("emitting rerun summary: %w", err)
		}
	}

	result := buildResult(s.runID, plan, s.recorder.Reports(), s.orch.Summary().Reruns())
	result.Duration = time.Since(start)
	s.log.Info("Session finished", "run_id", s.runID, "status", result.Status(), "summary", result.Stats.String(), "duration", result.Duration)
	return result, nil
}

// buildResult tallies reports and labels each with its group.
func buildResult(runID string, plan []*types.Check, reports []types.CheckReport, reruns []types.OutcomeEvent) *Result {
	groups := types.GroupLabels(plan)
	result := &Result{RunID: runID, Reruns: reruns}
	for _, r := range reports {
		r.Group = groups[r.CheckID]
		for _, ev := range r.Events {
			result.Stats.Add(ev)
		}
		result.Checks = append(result.Checks, r)
	}
	return result
}
