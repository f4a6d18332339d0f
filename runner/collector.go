package runner

import "github.com/ethereum-optimism/infra/op-rerun/types"

// Cohort is the contiguous run of plan checks belonging to one group, in plan
// order, starting at the check that opened it.
type Cohort struct {
	Members []*types.Check
}

// Successor returns what follows the i-th member during a rerun lap. After the
// last member the lap wraps to the first one, telling the engine to keep the
// group scope alive.
func (c Cohort) Successor(i int) types.Successor {
	if i+1 < len(c.Members) {
		return types.Successor{Check: c.Members[i+1]}
	}
	return types.Successor{Check: c.Members[0], Wrap: true}
}

// IDs returns the member check IDs.
func (c Cohort) IDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}

// CohortCollector computes cohorts from a check plan.
type CohortCollector struct{}

// NewCohortCollector creates a cohort collector
func NewCohortCollector() *CohortCollector {
	return &CohortCollector{}
}

// Collect scans plan forward from check and gathers it together with every
// following check of the same group, stopping at the first check of a
// different (or no) group. Groups are expected to be contiguous in the plan.
// A check missing from the plan forms a cohort of its own.
func (c *CohortCollector) Collect(check *types.Check, plan []*types.Check) Cohort {
	cohort := Cohort{Members: []*types.Check{check}}
	start := indexOf(plan, check)
	if start < 0 {
		return cohort
	}
	for _, next := range plan[start+1:] {
		if !types.SameGroup(check, next) {
			break
		}
		cohort.Members = append(cohort.Members, next)
	}
	return cohort
}

// indexOf locates check in plan by identity, falling back to its ID.
func indexOf(plan []*types.Check, check *types.Check) int {
	for i, c := range plan {
		if c == check {
			return i
		}
	}
	for i, c := range plan {
		if c.ID == check.ID {
			return i
		}
	}
	return -1
}

// planSuccessor returns the check following check in plan, or the zero
// Successor at the end of the plan.
func planSuccessor(plan []*types.Check, check *types.Check) types.Successor {
	i := indexOf(plan, check)
	if i < 0 || i+1 >= len(plan) {
		return types.Successor{}
	}
	return types.Successor{Check: plan[i+1]}
}
