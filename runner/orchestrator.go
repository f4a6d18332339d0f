package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/metrics"
	"github.com/ethereum-optimism/infra/op-rerun/registry"
	"github.com/ethereum-optimism/infra/op-rerun/snapshot"
	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OrchestratorConfig holds configuration for creating an orchestrator
type OrchestratorConfig struct {
	Config
	Engine ExecutionEngine
	Sink   ReportingSink
	// Cache is optional; without it no cached setup results are invalidated.
	Cache FixtureCacheController
	// Registry is optional; a fresh session registry is created when nil.
	Registry *registry.Registry
	Log      log.Logger
}

// Orchestrator intercepts the execution of each check. Ungrouped checks run
// once and are published as they are. The first check of a group drives the
// whole group through up to MaxAttempts+1 fail-fast attempts, then publishes
// its own assembled events; every later member replays what was assembled for
// it without executing again.
type Orchestrator struct {
	cfg       Config
	engine    ExecutionEngine
	scope     ScopeController
	sink      ReportingSink
	cache     FixtureCacheController
	registry  *registry.Registry
	collector *CohortCollector
	assembler *ReportAssembler
	summary   *SummaryEmitter
	log       log.Logger
	tracer    trace.Tracer
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates a new orchestrator instance
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Engine == nil {
		return nil, errors.New("execution engine is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("reporting sink is required")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rerun config: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.New(cfg.Log)
	}

	// Engines that keep group scopes alive expose them for teardown between attempts.
	scope, _ := cfg.Engine.(ScopeController)

	return &Orchestrator{
		cfg:       cfg.Config,
		engine:    cfg.Engine,
		scope:     scope,
		sink:      cfg.Sink,
		cache:     cfg.Cache,
		registry:  cfg.Registry,
		collector: NewCohortCollector(),
		assembler: NewReportAssembler(cfg.OnlyLast),
		summary:   NewSummaryEmitter(),
		log:       cfg.Log,
		tracer:    otel.Tracer("rerun orchestrator"),
		sleep:     sleepContext,
	}, nil
}

// Summary returns the emitter collecting every published rerun event.
func (o *Orchestrator) Summary() *SummaryEmitter {
	return o.summary
}

// Registry returns the session registry.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Handle processes check, the current position of plan. It reports true when
// the check was handled as part of a rerun group and false when it was run as
// a plain check. In both cases its events have been published when Handle
// returns without error.
func (o *Orchestrator) Handle(ctx context.Context, check *types.Check, plan []*types.Check) (bool, error) {
	if check.Group == nil || !o.cfg.Enabled() {
		events := o.execute(ctx, check, planSuccessor(plan, check))
		return false, o.publish(check.ID, events)
	}

	group, first := o.registry.GetOrCreate(check.Group)
	if !first {
		return true, o.replay(group.ID, check)
	}
	return true, o.runGroup(ctx, group, check, plan)
}

// replay publishes the events assembled for a later member of a group. A
// member the group history does not know gets the aborted-skip event.
func (o *Orchestrator) replay(id types.GroupID, check *types.Check) error {
	var events []types.OutcomeEvent
	if assembled, ok := o.registry.Assembled(id); ok {
		events = assembled[check.ID]
	}
	if len(events) == 0 {
		o.log.Debug("No assembled events for check, reporting skip", "group", id, "check", check.ID)
		events = []types.OutcomeEvent{types.NewAbortedSkip(check.ID)}
	}
	return o.publish(check.ID, events)
}

func (o *Orchestrator) runGroup(ctx context.Context, group *types.Group, check *types.Check, plan []*types.Check) error {
	groupName := group.ID.String()
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("group %s", groupName))
	defer span.End()

	cohort := o.collector.Collect(check, plan)
	o.log.Debug("Running group", "group", groupName, "members", len(cohort.Members), "maxAttempts", o.cfg.MaxAttempts)

	data := snapshot.Capture(group.State, o.log)
	if aliased := data.Aliased(); len(aliased) > 0 {
		o.log.Debug("Group snapshot holds shared references", "group", groupName, "fields", aliased)
		metrics.RecordSnapshotAliased(groupName, len(aliased))
	}

	defer o.teardownScope(ctx, group)

	total := o.cfg.totalAttempts()
	passed := false
	ran := 0
	for attempt := 0; attempt < total; attempt++ {
		if attempt > 0 {
			if err := o.prepareRerun(ctx, group, cohort, data, attempt); err != nil {
				o.log.Warn("Abandoning group reruns", "group", groupName, "attempt", attempt, "err", err)
				break
			}
		}
		var err error
		passed, err = o.runAttempt(ctx, group, cohort, attempt, total)
		if err != nil {
			return err
		}
		ran = attempt + 1
		if passed {
			break
		}
	}
	span.SetAttributes(attribute.Int("attempts", ran), attribute.Bool("passed", passed))
	metrics.RecordGroupResult(groupName, passed, ran)

	history, err := o.registry.HistoryFor(group.ID)
	if err != nil {
		return err
	}
	assembled := o.assembler.Assemble(history)
	if err := o.registry.SetAssembled(group.ID, assembled); err != nil {
		return err
	}

	events := assembled[check.ID]
	if len(events) == 0 {
		events = []types.OutcomeEvent{types.NewAbortedSkip(check.ID)}
	}
	return o.publish(check.ID, events)
}

// runAttempt executes the cohort once in order and stops at the first member
// whose events block a pass.
func (o *Orchestrator) runAttempt(ctx context.Context, group *types.Group, cohort Cohort, attempt, total int) (bool, error) {
	groupName := group.ID.String()
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("attempt %d", attempt))
	defer span.End()

	for i, member := range cohort.Members {
		events := o.execute(ctx, member, cohort.Successor(i))
		if err := o.registry.Begin(group.ID, member.ID, attempt); err != nil {
			return false, err
		}
		failed := false
		for _, ev := range events {
			if err := o.registry.Record(group.ID, member.ID, attempt, ev); err != nil {
				return false, err
			}
			if ev.BlocksPass() {
				failed = true
			}
		}
		if failed {
			group.PreviousFailed = true
			o.backfillSetupFailure(group.ID, member.ID, attempt, total, events)
			metrics.RecordAttempt(groupName, attempt, false)
			o.log.Info("Group attempt failed", "group", groupName, "attempt", attempt, "check", member.ID)
			return false, nil
		}
	}
	metrics.RecordAttempt(groupName, attempt, true)
	o.log.Debug("Group attempt passed", "group", groupName, "attempt", attempt)
	return true, nil
}

// backfillSetupFailure covers a member that fails setup on the final attempt
// after earlier attempts never reached it. Its preceding padded attempt is
// filled with the same setup failure so the report shows the failure as
// rerun before the final one.
func (o *Orchestrator) backfillSetupFailure(id types.GroupID, checkID string, attempt, total int, events []types.OutcomeEvent) {
	if attempt == 0 || attempt != total-1 {
		return
	}
	var setup []types.OutcomeEvent
	for _, ev := range events {
		if ev.Stage == types.StageSetup && ev.BlocksPass() {
			setup = append(setup, ev)
		}
	}
	if len(setup) == 0 {
		return
	}
	history, err := o.registry.HistoryFor(id)
	if err != nil {
		return
	}
	for _, rec := range history.Records(checkID)[:attempt] {
		if len(rec.Events) > 0 {
			return
		}
	}
	if ok, err := o.registry.Backfill(id, checkID, attempt-1, setup); err != nil {
		o.log.Error("Failed to backfill setup failure", "group", id, "check", checkID, "err", err)
	} else if ok {
		o.log.Debug("Backfilled setup failure", "group", id, "check", checkID, "attempt", attempt-1)
	}
}

// prepareRerun resets the group between attempts: failed cached setup
// results are dropped, the group scope is torn down, the shared context is
// restored from the snapshot and the scope is set up again.
func (o *Orchestrator) prepareRerun(ctx context.Context, group *types.Group, cohort Cohort, data *snapshot.Data, attempt int) error {
	groupName := group.ID.String()
	if o.cache != nil {
		for _, member := range cohort.Members {
			o.cache.InvalidateFailed(member)
		}
	}

	o.teardownScope(ctx, group)

	group.PreviousFailed = false
	snapshot.Restore(group.State, data, o.log)
	for _, member := range cohort.Members {
		member.Group = group
	}

	if o.scope != nil {
		if err := o.scope.SetupScope(ctx, group); err != nil {
			// The failure resurfaces as a setup event of the first member.
			o.log.Warn("Group setup failed before rerun", "group", groupName, "err", err)
		}
	}

	metrics.RecordRerun(groupName)
	o.log.Info("Rerunning group", "group", groupName, "attempt", attempt, "of", o.cfg.MaxAttempts, "delay", o.cfg.InterAttemptDelay)
	return o.sleep(ctx, o.cfg.InterAttemptDelay)
}

// teardownScope finalizes the group scope. Errors are logged and never fail
// the group.
func (o *Orchestrator) teardownScope(ctx context.Context, group *types.Group) {
	if o.scope == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return o.scope.TeardownScope(ctx, group)
	}()
	if err != nil {
		o.log.Warn("Exception during teardown", "group", group.ID, "type", fmt.Sprintf("%T", err), "err", err)
		metrics.RecordTeardownWarning(group.ID.String())
	}
}

// execute runs one check through the engine. Engine errors and panics are
// turned into a failed call event rather than aborting the session.
func (o *Orchestrator) execute(ctx context.Context, check *types.Check, next types.Successor) (events []types.OutcomeEvent) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Engine panicked", "check", check.ID, "panic", r)
			events = append(events, types.OutcomeEvent{
				CheckID: check.ID,
				Stage:   types.StageCall,
				Outcome: types.OutcomeFailed,
				Detail:  fmt.Sprintf("engine panic: %v", r),
			})
		}
		for i := range events {
			if events[i].CheckID == "" {
				events[i].CheckID = check.ID
			}
		}
		check.LastOutcomes = events
	}()

	events, err := o.engine.Run(ctx, check, next)
	if err != nil {
		o.log.Error("Engine failed to run check", "check", check.ID, "err", err)
		metrics.RecordErrorDetails("engine", err)
		events = append(events, types.OutcomeEvent{
			CheckID: check.ID,
			Stage:   types.StageCall,
			Outcome: types.OutcomeFailed,
			Detail:  err.Error(),
		})
	}
	return events
}

func (o *Orchestrator) publish(checkID string, events []types.OutcomeEvent) error {
	if err := o.sink.Start(checkID); err != nil {
		return fmt.Errorf("starting report for %s: %w", checkID, err)
	}
	for _, ev := range events {
		if err := o.sink.Report(ev); err != nil {
			return fmt.Errorf("reporting %s %s: %w", checkID, ev.Stage, err)
		}
		o.summary.Observe(ev)
	}
	if err := o.sink.Finish(checkID); err != nil {
		return fmt.Errorf("finishing report for %s: %w", checkID, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
