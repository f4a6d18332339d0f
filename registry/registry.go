// Package registry keeps the per-session bookkeeping of rerun groups and loads check plans.
package registry

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
)

// ErrUnknownGroup is returned when recording against a group that was never
// registered. It indicates a programming error in the caller.
var ErrUnknownGroup = errors.New("unknown group")

// Registry tracks, for one execution session, which groups have begun their
// rerun cycle and the per-member, per-attempt history of each.
//
// A Registry is owned by a single worker and is not safe for concurrent use:
// every call happens on the goroutine driving that worker's slice of the plan.
type Registry struct {
	log    log.Logger
	groups map[types.GroupID]*entry
	order  []types.GroupID
}

type entry struct {
	group     *types.Group
	history   *types.GroupHistory
	assembled map[string][]types.OutcomeEvent
}

// New creates an empty, session-scoped registry.
func New(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &Registry{
		log:    logger,
		groups: make(map[types.GroupID]*entry),
	}
}

// GetOrCreate registers group on first encounter. It marks the group as seen
// and creates its history in one step, and reports whether this call did so.
// Later calls for the same identity return the registered group and false.
func (r *Registry) GetOrCreate(group *types.Group) (*types.Group, bool) {
	if e, ok := r.groups[group.ID]; ok {
		return e.group, false
	}
	group.Seen = true
	r.groups[group.ID] = &entry{
		group:   group,
		history: types.NewGroupHistory(group.Members),
	}
	r.order = append(r.order, group.ID)
	r.log.Debug("Registered group", "group", group.ID, "members", len(group.Members))
	return group, true
}

// Lookup returns a registered group.
func (r *Registry) Lookup(id types.GroupID) (*types.Group, bool) {
	e, ok := r.groups[id]
	if !ok {
		return nil, false
	}
	return e.group, true
}

// Begin opens the record of checkID for attempt, padding any attempts the
// check missed.
func (r *Registry) Begin(id types.GroupID, checkID string, attempt int) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.history.Ensure(checkID, attempt)
	return nil
}

// Record appends an event to the record of checkID for attempt.
func (r *Registry) Record(id types.GroupID, checkID string, attempt int, ev types.OutcomeEvent) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	if e.assembled != nil {
		return fmt.Errorf("group %s: history already assembled", id)
	}
	e.history.Append(checkID, attempt, ev)
	return nil
}

// Backfill fills the record of checkID at attempt when it is still empty
// padding. It reports whether anything was written.
func (r *Registry) Backfill(id types.GroupID, checkID string, attempt int, events []types.OutcomeEvent) (bool, error) {
	e, err := r.entry(id)
	if err != nil {
		return false, err
	}
	records := e.history.Records(checkID)
	if attempt < 0 || attempt >= len(records) || len(records[attempt].Events) > 0 {
		return false, nil
	}
	for _, ev := range events {
		e.history.Append(checkID, attempt, ev)
	}
	return true, nil
}

// HistoryFor returns the history of a group.
func (r *Registry) HistoryFor(id types.GroupID) (*types.GroupHistory, error) {
	e, err := r.entry(id)
	if err != nil {
		return nil, err
	}
	return e.history, nil
}

// SetAssembled stores the final per-check events of a group. After this the
// history is frozen and later members only replay these events.
func (r *Registry) SetAssembled(id types.GroupID, assembled map[string][]types.OutcomeEvent) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.assembled = assembled
	return nil
}

// Assembled returns the stored final events of a group, if assembled.
func (r *Registry) Assembled(id types.GroupID) (map[string][]types.OutcomeEvent, bool) {
	e, ok := r.groups[id]
	if !ok || e.assembled == nil {
		return nil, false
	}
	return e.assembled, true
}

// Groups returns registered group identities in registration order.
func (r *Registry) Groups() []types.GroupID {
	out := make([]types.GroupID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) entry(id types.GroupID) (*entry, error) {
	e, ok := r.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, id)
	}
	return e, nil
}
