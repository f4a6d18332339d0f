package registry

import (
	"testing"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return New(log.NewLogger(log.DiscardHandler()))
}

func newGroup(module, name string, members ...string) *types.Group {
	g := types.NewGroup(module, name)
	for _, m := range members {
		g.AddMember(&types.Check{ID: m})
	}
	return g
}

func TestGetOrCreateMarksSeenOnce(t *testing.T) {
	r := newTestRegistry()
	g := newGroup("mod", "Suite", "a", "b")
	require.False(t, g.Seen)

	got, isNew := r.GetOrCreate(g)
	assert.True(t, isNew)
	assert.Same(t, g, got)
	assert.True(t, g.Seen)

	history, err := r.HistoryFor(g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, history.Order)

	again, isNew := r.GetOrCreate(newGroup("mod", "Suite", "a", "b"))
	assert.False(t, isNew)
	assert.Same(t, g, again, "identity decides, not the pointer passed in")
}

func TestGroupsWithSameNameAreIndependent(t *testing.T) {
	r := newTestRegistry()
	g1 := newGroup("mod1", "Suite", "mod1::a")
	g2 := newGroup("mod2", "Suite", "mod2::a")
	r.GetOrCreate(g1)
	r.GetOrCreate(g2)

	require.NoError(t, r.Record(g1.ID, "mod1::a", 0, types.OutcomeEvent{Outcome: types.OutcomeFailed}))
	require.NoError(t, r.Record(g1.ID, "mod1::a", 1, types.OutcomeEvent{Outcome: types.OutcomePassed}))
	require.NoError(t, r.Record(g2.ID, "mod2::a", 0, types.OutcomeEvent{Outcome: types.OutcomePassed}))

	h1, _ := r.HistoryFor(g1.ID)
	h2, _ := r.HistoryFor(g2.ID)
	assert.Equal(t, 2, h1.Attempts())
	assert.Equal(t, 1, h2.Attempts())
	assert.Equal(t, []types.GroupID{g1.ID, g2.ID}, r.Groups())
}

func TestRecordUnknownGroup(t *testing.T) {
	r := newTestRegistry()
	err := r.Record(types.GroupID{Module: "m", Name: "missing"}, "x", 0, types.OutcomeEvent{})
	require.ErrorIs(t, err, ErrUnknownGroup)

	_, err = r.HistoryFor(types.GroupID{Module: "m", Name: "missing"})
	require.ErrorIs(t, err, ErrUnknownGroup)
	require.ErrorIs(t, r.Begin(types.GroupID{}, "x", 0), ErrUnknownGroup)
}

func TestBeginPadsAndBackfillOnlyFillsPadding(t *testing.T) {
	r := newTestRegistry()
	g := newGroup("mod", "Suite", "a")
	r.GetOrCreate(g)

	require.NoError(t, r.Begin(g.ID, "a", 2))
	history, _ := r.HistoryFor(g.ID)
	require.Len(t, history.Records("a"), 3)

	ev := types.OutcomeEvent{CheckID: "a", Stage: types.StageSetup, Outcome: types.OutcomeFailed}
	written, err := r.Backfill(g.ID, "a", 1, []types.OutcomeEvent{ev})
	require.NoError(t, err)
	assert.True(t, written)

	written, err = r.Backfill(g.ID, "a", 1, []types.OutcomeEvent{ev})
	require.NoError(t, err)
	assert.False(t, written, "a filled record is never overwritten")

	written, err = r.Backfill(g.ID, "a", 5, []types.OutcomeEvent{ev})
	require.NoError(t, err)
	assert.False(t, written)
}

func TestAssembledFreezesHistory(t *testing.T) {
	r := newTestRegistry()
	g := newGroup("mod", "Suite", "a")
	r.GetOrCreate(g)

	_, ok := r.Assembled(g.ID)
	assert.False(t, ok)

	assembled := map[string][]types.OutcomeEvent{"a": {{CheckID: "a", Outcome: types.OutcomePassed}}}
	require.NoError(t, r.SetAssembled(g.ID, assembled))

	got, ok := r.Assembled(g.ID)
	require.True(t, ok)
	assert.Equal(t, assembled, got)
	assert.Error(t, r.Record(g.ID, "a", 0, types.OutcomeEvent{}))
}
