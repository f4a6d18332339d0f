// Package types contains shared types used across the op-rerun framework
package types

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/snapshot"
)

// GroupID identifies a group of checks. Names are not unique on their own:
// the same group name in two modules, or declared twice in one module, yields
// distinct groups. Index tells same-named groups of one module apart.
type GroupID struct {
	Module string
	Name   string
	Index  int
}

// String implements the Stringer interface for GroupID
func (g GroupID) String() string {
	if g.Index > 0 {
		return fmt.Sprintf("%s::%s[%d]", g.Module, g.Name, g.Index)
	}
	return fmt.Sprintf("%s::%s", g.Module, g.Name)
}

// Group is a cohort of checks that share one mutable context and are rerun as a unit.
type Group struct {
	ID GroupID
	// Members holds check IDs in discovery order.
	Members []string
	// State is the shared context every member reads and mutates.
	State *snapshot.State
	// Seen is set once rerun processing for the group has started in this session.
	Seen bool
	// PreviousFailed records that the last attempt failed. It is cleared only
	// when the group is about to be rerun.
	PreviousFailed bool
}

// NewGroup creates a group with an empty shared state.
func NewGroup(module, name string) *Group {
	return &Group{
		ID:    GroupID{Module: module, Name: name},
		State: snapshot.NewState(),
	}
}

// AddMember appends a check to the group and points the check at it.
func (g *Group) AddMember(c *Check) {
	g.Members = append(g.Members, c.ID)
	c.Group = g
}

// Check is one runnable unit of the plan.
type Check struct {
	ID       string
	Position int
	// Group is nil for ungrouped checks; those are never rerun.
	Group *Group

	// Package and Name address the check for engines that run real test binaries.
	Package string
	Name    string
	// XFail marks the check as expected to fail; its failures never trigger a rerun.
	XFail bool
	// Fixtures lists the cached setup results the check depends on.
	Fixtures []string
	// Timeout bounds a single execution; zero leaves it to the engine.
	Timeout time.Duration

	// LastOutcomes holds the events of the most recent execution.
	LastOutcomes []OutcomeEvent
}

// SameGroup reports whether two checks belong to the same group identity.
// Ungrouped checks share no group, not even with each other.
func SameGroup(a, b *Check) bool {
	if a == nil || b == nil || a.Group == nil || b.Group == nil {
		return false
	}
	return a.Group.ID == b.Group.ID
}

// GroupLabels maps the id of every grouped check in plan to its group label.
func GroupLabels(plan []*Check) map[string]string {
	groups := make(map[string]string, len(plan))
	for _, c := range plan {
		if c.Group != nil {
			groups[c.ID] = c.Group.ID.String()
		}
	}
	return groups
}

// Successor tells an engine which check notionally runs next, so it can decide
// whether to finalize scopes after the current one. A zero Successor means the
// plan ends here. Wrap means the successor is the first member of the cohort
// being retried: the group scope must stay alive.
type Successor struct {
	Check *Check
	Wrap  bool
}

// FinalizesGroup reports whether the group scope of current should be torn
// down once current finishes.
func (s Successor) FinalizesGroup(current *Check) bool {
	if s.Wrap {
		return false
	}
	return !SameGroup(current, s.Check)
}
