package runner

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"

	"github.com/ethereum-optimism/infra/op-rerun/reporting"
	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func ids(checks []*types.Check) []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.ID
	}
	return out
}

func mixedPlan() ([]*types.Check, []*types.Check, []*types.Check, []*types.Check) {
	_, a := newGroupPlan("mod_a", "Suite", 2)
	_, b := newGroupPlan("mod_b", "Suite", 2)
	loose := []*types.Check{{ID: "pkg::TestOne"}, {ID: "pkg::TestTwo"}}
	plan := append(append(append([]*types.Check{}, a...), b...), loose...)
	return plan, a, b, loose
}

func TestPartition(t *testing.T) {
	plan, a, b, loose := mixedPlan()

	tests := []struct {
		name    string
		workers int
		want    [][]string
	}{
		{
			name:    "single worker keeps plan order",
			workers: 1,
			want:    [][]string{ids(plan)},
		},
		{
			name:    "groups stay whole",
			workers: 2,
			want: [][]string{
				{a[0].ID, a[1].ID, loose[0].ID},
				{b[0].ID, b[1].ID, loose[1].ID},
			},
		},
		{
			name:    "more workers than scopes",
			workers: 6,
			want: [][]string{
				{a[0].ID, a[1].ID},
				{b[0].ID, b[1].ID},
				{loose[0].ID},
				{loose[1].ID},
				{},
				{},
			},
		},
		{
			name:    "non-positive worker count",
			workers: 0,
			want:    [][]string{ids(plan)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := Partition(plan, tt.workers)
			require.Len(t, parts, len(tt.want))
			for i := range parts {
				assert.Equal(t, tt.want[i], ids(parts[i]), "worker %d", i)
			}
		})
	}
}

func TestCoordinatorRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	plan, a, b, loose := mixedPlan()
	script := map[string][]string{
		a[1].ID:     {"fail"},
		b[0].ID:     {"fail", "fail"},
		loose[1].ID: {"fail"},
	}
	var mu sync.Mutex
	workers := make(map[int]*scriptedEngine)
	sink := reporting.NewRecordingSink()

	coord, err := NewCoordinator(CoordinatorConfig{
		Config:  Config{MaxAttempts: 1},
		Workers: 2,
		NewWorker: func(w int) (ExecutionEngine, FixtureCacheController, error) {
			engine := newScriptedEngine(maps.Clone(script))
			mu.Lock()
			workers[w] = engine
			mu.Unlock()
			return engine, nil, nil
		},
		Sink:  sink,
		Log:   log.NewLogger(log.DiscardHandler()),
		RunID: "coordinated",
	})
	require.NoError(t, err)

	result, err := coord.Run(context.Background(), plan)
	require.NoError(t, err)

	require.Len(t, workers, 2)
	assert.Equal(t, []string{a[0].ID, a[1].ID, a[0].ID, a[1].ID, loose[0].ID}, workers[0].calls)
	assert.Equal(t, []string{b[0].ID, b[0].ID, loose[1].ID}, workers[1].calls)

	// Reports come back in plan order whatever the worker interleaving.
	var published []string
	for _, r := range sink.Reports() {
		published = append(published, r.CheckID)
	}
	assert.Equal(t, ids(plan), published)
	assert.Equal(t, published, checkIDs(result.Checks))

	assert.Equal(t, "coordinated", result.RunID)
	assert.Equal(t, types.StatusFail, result.Status())
	assert.Equal(t, 2, result.Stats.Reruns)
	assert.Equal(t, 2, result.Stats.Failed)
	assert.Equal(t, []string{a[1].ID, b[0].ID}, eventIDs(sink.Reruns()))
	assert.Equal(t, []types.Outcome{skipped}, typesOf(mustReport(t, sink, b[1].ID).Events))
}

func TestCoordinatorWorkerFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	plan, _, _, _ := mixedPlan()
	_, err := NewCoordinator(CoordinatorConfig{Workers: 2})
	require.Error(t, err)

	coord, err := NewCoordinator(CoordinatorConfig{
		Workers: 2,
		NewWorker: func(w int) (ExecutionEngine, FixtureCacheController, error) {
			if w == 1 {
				return nil, nil, errors.New("no capacity")
			}
			return newScriptedEngine(nil), nil, nil
		},
		Log: log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)

	_, err = coord.Run(context.Background(), plan)
	assert.ErrorContains(t, err, "creating worker 1: no capacity")
}

func TestCoordinatorCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	plan, _, _, _ := mixedPlan()
	coord, err := NewCoordinator(CoordinatorConfig{
		Workers: 3,
		NewWorker: func(int) (ExecutionEngine, FixtureCacheController, error) {
			return newScriptedEngine(nil), nil, nil
		},
		Log: log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = coord.Run(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)
}

func checkIDs(reports []types.CheckReport) []string {
	out := make([]string, len(reports))
	for i, r := range reports {
		out[i] = r.CheckID
	}
	return out
}

func eventIDs(events []types.OutcomeEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.CheckID
	}
	return out
}
