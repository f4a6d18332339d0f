package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/metrics"
	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// WorkerFactory builds the engine, and optionally the fixture cache, used by
// one worker. Engines are never shared between workers.
type WorkerFactory func(worker int) (ExecutionEngine, FixtureCacheController, error)

// CoordinatorConfig holds configuration for creating a coordinator
type CoordinatorConfig struct {
	Config
	Workers   int
	NewWorker WorkerFactory
	Sink      ReportingSink
	Log       log.Logger
	RunID     string
}

// Coordinator distributes a plan over several workers. Every group is kept
// whole on one worker, so its shared context and history never cross worker
// boundaries; each worker runs its own session with its own registry. Once all
// workers finish, reports are published to the sink in plan order.
type Coordinator struct {
	cfg CoordinatorConfig
	log log.Logger
}

// NewCoordinator creates a new coordinator instance
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.NewWorker == nil {
		return nil, errors.New("worker factory is required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rerun config: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	return &Coordinator{cfg: cfg, log: cfg.Log}, nil
}

// Run executes plan across the configured workers.
func (c *Coordinator) Run(ctx context.Context, plan []*types.Check) (*Result, error) {
	start := time.Now()
	partitions := Partition(plan, c.cfg.Workers)
	results := make([]*Result, len(partitions))

	// Every worker is built before any starts, so a failing factory leaves
	// nothing running.
	sessions := make([]*Session, len(partitions))
	for w, part := range partitions {
		if len(part) == 0 {
			continue
		}
		engine, cache, err := c.cfg.NewWorker(w)
		if err != nil {
			return nil, fmt.Errorf("creating worker %d: %w", w, err)
		}
		sessions[w], err = NewSession(SessionConfig{
			Config:      c.cfg.Config,
			Engine:      engine,
			Cache:       cache,
			Log:         c.log.New("worker", w),
			RunID:       c.cfg.RunID,
			SkipSummary: true,
		})
		if err != nil {
			return nil, fmt.Errorf("creating worker %d session: %w", w, err)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for w, session := range sessions {
		if session == nil {
			continue
		}
		c.log.Debug("Starting worker", "worker", w, "checks", len(partitions[w]))
		eg.Go(func() error {
			res, err := session.Run(egCtx, partitions[w])
			if err != nil {
				return fmt.Errorf("worker %d: %w", w, err)
			}
			results[w] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		metrics.RecordErrorDetails("coordinator", err)
		return nil, err
	}

	merged, err := c.publish(plan, results)
	if err != nil {
		return nil, err
	}
	merged.Duration = time.Since(start)
	c.log.Info("Coordinated session finished", "run_id", merged.RunID, "workers", len(partitions),
		"status", merged.Status(), "summary", merged.Stats.String(), "duration", merged.Duration)
	return merged, nil
}

// publish replays the worker reports to the sink in plan order and merges
// them into one result.
func (c *Coordinator) publish(plan []*types.Check, results []*Result) (*Result, error) {
	byID := make(map[string]types.CheckReport, len(plan))
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, r := range res.Checks {
			byID[r.CheckID] = r
		}
	}

	merged := &Result{RunID: c.cfg.RunID}
	for _, check := range plan {
		report, ok := byID[check.ID]
		if !ok {
			return nil, fmt.Errorf("no report for check %s", check.ID)
		}
		merged.Checks = append(merged.Checks, report)
		for _, ev := range report.Events {
			merged.Stats.Add(ev)
			if ev.Outcome == types.OutcomeRerun {
				merged.Reruns = append(merged.Reruns, ev)
			}
		}
		if c.cfg.Sink == nil {
			continue
		}
		if err := c.cfg.Sink.Start(check.ID); err != nil {
			return nil, err
		}
		for _, ev := range report.Events {
			if err := c.cfg.Sink.Report(ev); err != nil {
				return nil, err
			}
		}
		if err := c.cfg.Sink.Finish(check.ID); err != nil {
			return nil, err
		}
	}
	if c.cfg.Sink != nil {
		if err := c.cfg.Sink.Summary(merged.Reruns); err != nil {
			return nil, fmt.Errorf("emitting rerun summary: %w", err)
		}
	}
	return merged, nil
}

// Partition splits plan into at most workers slices. Each group, and each
// ungrouped check, is a scope assigned whole to the least loaded worker in
// order of first appearance. Every slice keeps plan order.
func Partition(plan []*types.Check, workers int) [][]*types.Check {
	if workers < 1 {
		workers = 1
	}
	parts := make([][]*types.Check, workers)
	assigned := make(map[string]int)
	for _, check := range plan {
		key := scopeKey(check)
		w, ok := assigned[key]
		if !ok {
			w = leastLoaded(parts)
			assigned[key] = w
		}
		parts[w] = append(parts[w], check)
	}
	return parts
}

func scopeKey(check *types.Check) string {
	if check.Group == nil {
		return "check:" + check.ID
	}
	return "group:" + check.Group.ID.String()
}

func leastLoaded(parts [][]*types.Check) int {
	best := 0
	for i := range parts {
		if len(parts[i]) < len(parts[best]) {
			best = i
		}
	}
	return best
}
