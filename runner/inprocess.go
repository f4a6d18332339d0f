package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/snapshot"
	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
)

// ErrSkip marks a stage that decided not to run.
var ErrSkip = errors.New("skipped")

type skipError struct {
	reason string
}

func (e *skipError) Error() string { return e.reason }
func (e *skipError) Unwrap() error { return ErrSkip }

// Skip returns an error that reports the stage as skipped with reason.
func Skip(reason string) error {
	return &skipError{reason: reason}
}

// CheckContext is handed to the stages of an in-process check.
type CheckContext struct {
	Check *types.Check
	// State is the shared context of the check's group; nil for ungrouped checks.
	State    *snapshot.State
	fixtures *FixtureCache
}

// Fixture resolves a cached setup result.
func (c *CheckContext) Fixture(ctx context.Context, name string) (any, error) {
	if c.fixtures == nil {
		return nil, fmt.Errorf("fixture %q: no fixture cache", name)
	}
	return c.fixtures.Resolve(ctx, name)
}

// StageFunc is one stage of an in-process check.
type StageFunc func(ctx context.Context, c *CheckContext) error

// CheckDef holds the stages of an in-process check. Only Call is required.
type CheckDef struct {
	Setup    StageFunc
	Call     StageFunc
	Teardown StageFunc
}

// GroupHooks set up and tear down the scope a group's members share.
type GroupHooks struct {
	Setup    func(ctx context.Context, group *types.Group) error
	Teardown func(ctx context.Context, group *types.Group) error
}

type groupScope struct {
	setupErr error
}

// InProcessEngine runs checks registered as Go functions. Group scopes are set
// up lazily by the first member that needs them and finalized after the last
// member, unless the successor wraps around for a rerun.
//
// An InProcessEngine belongs to one worker and is not safe for concurrent use.
type InProcessEngine struct {
	checks   map[string]CheckDef
	hooks    map[types.GroupID]GroupHooks
	active   map[types.GroupID]*groupScope
	fixtures *FixtureCache
	log      log.Logger
}

// NewInProcessEngine creates an engine. fixtures may be nil when no check
// declares fixtures.
func NewInProcessEngine(logger log.Logger, fixtures *FixtureCache) *InProcessEngine {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &InProcessEngine{
		checks:   make(map[string]CheckDef),
		hooks:    make(map[types.GroupID]GroupHooks),
		active:   make(map[types.GroupID]*groupScope),
		fixtures: fixtures,
		log:      logger,
	}
}

// Register defines the stages of a check.
func (e *InProcessEngine) Register(checkID string, def CheckDef) {
	e.checks[checkID] = def
}

// RegisterGroup defines the scope hooks of a group.
func (e *InProcessEngine) RegisterGroup(id types.GroupID, hooks GroupHooks) {
	e.hooks[id] = hooks
}

// Run executes the setup, call and teardown stages of check.
func (e *InProcessEngine) Run(ctx context.Context, check *types.Check, next types.Successor) ([]types.OutcomeEvent, error) {
	def, ok := e.checks[check.ID]
	if !ok || def.Call == nil {
		return nil, fmt.Errorf("no in-process check registered for %s", check.ID)
	}
	cc := &CheckContext{Check: check, fixtures: e.fixtures}
	if check.Group != nil {
		cc.State = check.Group.State
	}

	var events []types.OutcomeEvent

	setup := e.stage(types.StageSetup, check, func() error {
		if check.Group != nil {
			if err := e.SetupScope(ctx, check.Group); err != nil {
				return fmt.Errorf("group setup failed: %w", err)
			}
		}
		for _, name := range check.Fixtures {
			if _, err := cc.Fixture(ctx, name); err != nil {
				return err
			}
		}
		if def.Setup != nil {
			return def.Setup(ctx, cc)
		}
		return nil
	})
	events = append(events, setup)

	if setup.Outcome == types.OutcomePassed {
		callCtx := ctx
		if check.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, check.Timeout)
			defer cancel()
		}
		call := e.stage(types.StageCall, check, func() error {
			return def.Call(callCtx, cc)
		})
		if callCtx.Err() == context.DeadlineExceeded && call.Outcome == types.OutcomePassed {
			call.Outcome = types.OutcomeFailed
			call.Detail = fmt.Sprintf("check timed out after %v", check.Timeout)
		}
		call.ExpectedFail = check.XFail
		events = append(events, call)
	}

	teardown := e.stage(types.StageTeardown, check, func() error {
		var errs []error
		if def.Teardown != nil && setup.Outcome == types.OutcomePassed {
			errs = append(errs, def.Teardown(ctx, cc))
		}
		if check.Group != nil && next.FinalizesGroup(check) {
			if err := e.TeardownScope(ctx, check.Group); err != nil {
				errs = append(errs, fmt.Errorf("group teardown failed: %w", err))
			}
		}
		return errors.Join(errs...)
	})
	events = append(events, teardown)
	return events, nil
}

// SetupScope sets up the group scope unless it is already active. A failed
// setup is remembered and reported by every member until the scope is torn down.
func (e *InProcessEngine) SetupScope(ctx context.Context, group *types.Group) error {
	if scope, ok := e.active[group.ID]; ok {
		return scope.setupErr
	}
	scope := &groupScope{}
	if hooks := e.hooks[group.ID]; hooks.Setup != nil {
		scope.setupErr = invoke(func() error { return hooks.Setup(ctx, group) })
	}
	e.active[group.ID] = scope
	e.log.Debug("Group scope set up", "group", group.ID, "err", scope.setupErr)
	return scope.setupErr
}

// TeardownScope finalizes the group scope if it is active.
func (e *InProcessEngine) TeardownScope(ctx context.Context, group *types.Group) error {
	scope, ok := e.active[group.ID]
	if !ok {
		return nil
	}
	delete(e.active, group.ID)
	hooks := e.hooks[group.ID]
	if hooks.Teardown == nil || scope.setupErr != nil {
		return nil
	}
	e.log.Debug("Tearing down group scope", "group", group.ID)
	return invoke(func() error { return hooks.Teardown(ctx, group) })
}

// ScopeActive reports whether the scope of a group is currently set up.
func (e *InProcessEngine) ScopeActive(id types.GroupID) bool {
	_, ok := e.active[id]
	return ok
}

func (e *InProcessEngine) stage(stage types.Stage, check *types.Check, fn func() error) types.OutcomeEvent {
	start := time.Now()
	err := invoke(fn)
	ev := types.OutcomeEvent{
		CheckID:  check.ID,
		Stage:    stage,
		Outcome:  types.OutcomePassed,
		Duration: time.Since(start),
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrSkip):
		ev.Outcome = types.OutcomeSkipped
		ev.Detail = err.Error()
	default:
		ev.Outcome = types.OutcomeFailed
		ev.Detail = err.Error()
	}
	return ev
}

// invoke runs fn, turning a panic into an error.
func invoke(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %s", strings.TrimSpace(fmt.Sprint(r)))
		}
	}()
	return fn()
}

var (
	_ ExecutionEngine = (*InProcessEngine)(nil)
	_ ScopeController = (*InProcessEngine)(nil)
)
