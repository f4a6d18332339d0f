package registry

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/testlist"
	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// PlanConfig contains plan loading configuration
type PlanConfig struct {
	Log            log.Logger
	PlanFile       string
	WorkDir        string        // module root used to expand package-only groups
	DefaultTimeout time.Duration // applied to checks without their own timeout
}

// discoverTests is swapped in tests.
var discoverTests = testlist.Discover

// LoadPlan reads a plan file and builds the ordered check plan it describes.
func LoadPlan(cfg PlanConfig) ([]*types.Check, error) {
	if cfg.PlanFile == "" {
		return nil, fmt.Errorf("plan file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	cfg.Log.Debug("Reading plan file", "path", cfg.PlanFile)

	data, err := os.ReadFile(cfg.PlanFile)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var planCfg types.PlanConfig
	if err := yaml.Unmarshal(data, &planCfg); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}

	plan, err := BuildPlan(&planCfg, cfg)
	if err != nil {
		return nil, err
	}
	cfg.Log.Debug("Plan loaded", "len(checks)", len(plan))
	return plan, nil
}

// BuildPlan turns a plan description into checks ordered as declared: every
// group's members contiguously, followed by the ungrouped checks.
func BuildPlan(planCfg *types.PlanConfig, cfg PlanConfig) ([]*types.Check, error) {
	var plan []*types.Check
	seenIDs := make(map[string]bool)
	declared := make(map[types.GroupID]int)

	add := func(c *types.Check) error {
		if seenIDs[c.ID] {
			return fmt.Errorf("duplicate check id %q", c.ID)
		}
		seenIDs[c.ID] = true
		c.Position = len(plan)
		plan = append(plan, c)
		return nil
	}

	for _, gc := range planCfg.Groups {
		if gc.Name == "" {
			return nil, fmt.Errorf("group in module %q has no name", gc.Module)
		}
		group := types.NewGroup(gc.Module, gc.Name)
		// Same-named groups in one module stay distinct.
		key := group.ID
		group.ID.Index = declared[key]
		declared[key]++
		for k, v := range gc.State {
			group.State.Set(k, v)
		}

		checks, err := groupChecks(gc, cfg)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", group.ID, err)
		}
		if len(checks) == 0 {
			return nil, fmt.Errorf("group %s has no checks", group.ID)
		}
		for _, cc := range checks {
			c := newCheck(cc, group.ID.String(), cfg.DefaultTimeout)
			if c.Package == "" {
				c.Package = gc.Package
			}
			group.AddMember(c)
			if err := add(c); err != nil {
				return nil, err
			}
		}
	}

	for _, cc := range planCfg.Checks {
		if cc.Name == "" {
			return nil, fmt.Errorf("ungrouped check in package %q has no name", cc.Package)
		}
		if err := add(newCheck(cc, cc.Package, cfg.DefaultTimeout)); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func groupChecks(gc types.GroupConfig, cfg PlanConfig) ([]types.CheckConfig, error) {
	if len(gc.Checks) > 0 || gc.Package == "" {
		return gc.Checks, nil
	}
	names, err := discoverTests(gc.Package, cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("discovering tests in %s: %w", gc.Package, err)
	}
	checks := make([]types.CheckConfig, 0, len(names))
	for _, name := range names {
		checks = append(checks, types.CheckConfig{Name: name, Package: gc.Package})
	}
	return checks, nil
}

func newCheck(cc types.CheckConfig, scope string, defaultTimeout time.Duration) *types.Check {
	timeout := defaultTimeout
	if cc.Timeout != nil {
		timeout = *cc.Timeout
	}
	id := cc.Name
	if scope != "" {
		id = scope + "::" + cc.Name
	}
	return &types.Check{
		ID:       id,
		Package:  cc.Package,
		Name:     cc.Name,
		XFail:    cc.XFail,
		Fixtures: cc.Fixtures,
		Timeout:  timeout,
	}
}
