package types

import "time"

// PlanConfig is the on-disk description of a check plan.
type PlanConfig struct {
	Groups []GroupConfig `yaml:"groups,omitempty"`
	Checks []CheckConfig `yaml:"checks,omitempty"`
}

// GroupConfig describes a cohort of checks sharing one context. When Checks is
// empty and Package is set, every Test function of the package becomes a member.
type GroupConfig struct {
	Module  string         `yaml:"module"`
	Name    string         `yaml:"name"`
	Package string         `yaml:"package,omitempty"`
	// State seeds the group's shared context. Only in-process engines read
	// it; go test subprocesses never see it.
	State   map[string]any `yaml:"state,omitempty"`
	Checks  []CheckConfig  `yaml:"checks,omitempty"`
}

// CheckConfig describes a single check.
type CheckConfig struct {
	Name     string         `yaml:"name"`
	Package  string         `yaml:"package,omitempty"`
	XFail    bool           `yaml:"xfail,omitempty"`
	Fixtures []string       `yaml:"fixtures,omitempty"`
	Timeout  *time.Duration `yaml:"timeout,omitempty"`
}
