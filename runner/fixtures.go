package runner

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
)

// FixtureFunc produces the value of a cached setup result.
type FixtureFunc func(ctx context.Context) (any, error)

type fixtureDef struct {
	fn   FixtureFunc
	deps []string
}

type fixtureResult struct {
	value any
	err   error
}

// FixtureCache memoizes setup results shared by checks. Failures are cached
// too, so every check depending on a broken fixture fails the same way
// without running it again, until InvalidateFailed drops them for a rerun.
//
// A FixtureCache belongs to one worker and is not safe for concurrent use.
type FixtureCache struct {
	defs      map[string]fixtureDef
	results   map[string]*fixtureResult
	resolving map[string]bool
	log       log.Logger
}

// NewFixtureCache creates an empty fixture cache
func NewFixtureCache(logger log.Logger) *FixtureCache {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	return &FixtureCache{
		defs:      make(map[string]fixtureDef),
		results:   make(map[string]*fixtureResult),
		resolving: make(map[string]bool),
		log:       logger,
	}
}

// Register defines a fixture and the fixtures it needs resolved first.
func (f *FixtureCache) Register(name string, fn FixtureFunc, deps ...string) {
	f.defs[name] = fixtureDef{fn: fn, deps: deps}
	delete(f.results, name)
}

// Resolve returns the cached result of name, computing it and its
// dependencies on first use.
func (f *FixtureCache) Resolve(ctx context.Context, name string) (any, error) {
	if res, ok := f.results[name]; ok {
		return res.value, res.err
	}
	def, ok := f.defs[name]
	if !ok {
		return nil, fmt.Errorf("fixture %q not found", name)
	}
	if f.resolving[name] {
		return nil, fmt.Errorf("fixture %q depends on itself", name)
	}
	f.resolving[name] = true
	defer delete(f.resolving, name)

	res := &fixtureResult{}
	for _, dep := range def.deps {
		if _, err := f.Resolve(ctx, dep); err != nil {
			res.err = fmt.Errorf("fixture %q: dependency %q: %w", name, dep, err)
			break
		}
	}
	if res.err == nil {
		res.value, res.err = callFixture(ctx, name, def.fn)
	}
	f.results[name] = res
	if res.err != nil {
		f.log.Debug("Fixture failed", "fixture", name, "err", res.err)
	}
	return res.value, res.err
}

func callFixture(ctx context.Context, name string, fn FixtureFunc) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fixture %q panicked: %v", name, r)
		}
	}()
	return fn(ctx)
}

// InvalidateFailed drops every failed cached result reachable from the
// fixtures check depends on. Successful results stay cached.
func (f *FixtureCache) InvalidateFailed(check *types.Check) {
	seen := make(map[string]bool)
	var dropped []string
	var walk func(name string)
	walk = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if res, ok := f.results[name]; ok && res.err != nil {
			delete(f.results, name)
			dropped = append(dropped, name)
		}
		for _, dep := range f.defs[name].deps {
			walk(dep)
		}
	}
	for _, name := range check.Fixtures {
		walk(name)
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		f.log.Debug("Invalidated failed fixtures", "check", check.ID, "fixtures", dropped)
	}
}

// Cached reports whether name has a cached result, and whether it failed.
func (f *FixtureCache) Cached(name string) (cached bool, failed bool) {
	res, ok := f.results[name]
	if !ok {
		return false, false
	}
	return true, res.err != nil
}

var _ FixtureCacheController = (*FixtureCache)(nil)
