package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// ExecutionEngine runs one check and reports its stage events in order.
// next names the check that notionally follows, so the engine can decide
// whether scopes shared with it must be finalized; see types.Successor.
type ExecutionEngine interface {
	Run(ctx context.Context, check *types.Check, next types.Successor) ([]types.OutcomeEvent, error)
}

// ScopeController is implemented by engines that keep group scopes alive
// between checks. The orchestrator tears a group scope down between attempts
// and sets it up again before the next one.
type ScopeController interface {
	TeardownScope(ctx context.Context, group *types.Group) error
	SetupScope(ctx context.Context, group *types.Group) error
}

// ReportingSink publishes the final event sequence of every check: Start,
// Report for each event, Finish, once per check. Summary is called once at the
// end of a session with every event that was relabelled as a rerun.
type ReportingSink interface {
	Start(checkID string) error
	Report(ev types.OutcomeEvent) error
	Finish(checkID string) error
	Summary(reruns []types.OutcomeEvent) error
}

// FixtureCacheController drops cached setup results that ended in failure,
// so that a rerun executes them again.
type FixtureCacheController interface {
	InvalidateFailed(check *types.Check)
}

// Config holds the rerun settings consumed by the orchestrator.
type Config struct {
	// MaxAttempts is the number of reruns allowed after the initial run.
	// Zero disables rerunning entirely.
	MaxAttempts int
	// InterAttemptDelay is slept between attempts.
	InterAttemptDelay time.Duration
	// OnlyLast publishes only the final attempt of each check.
	OnlyLast bool
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative: %d", c.MaxAttempts)
	}
	if c.InterAttemptDelay < 0 {
		return fmt.Errorf("inter-attempt delay cannot be negative: %s", c.InterAttemptDelay)
	}
	return nil
}

// Enabled reports whether groups are rerun at all.
func (c Config) Enabled() bool {
	return c.MaxAttempts > 0
}

// totalAttempts counts the initial run as attempt 0.
func (c Config) totalAttempts() int {
	return c.MaxAttempts + 1
}
