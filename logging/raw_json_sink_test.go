package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawEvents(t *testing.T, action string) []byte {
	t.Helper()
	var out []byte
	for _, ev := range []GoTestEvent{
		{Time: time.Now(), Action: "start", Package: "example.com/pkg", Test: "TestA"},
		{Time: time.Now(), Action: action, Package: "example.com/pkg", Test: "TestA", Elapsed: 0.1},
	} {
		line, err := json.Marshal(ev)
		require.NoError(t, err)
		out = append(out, append(line, '\n')...)
	}
	return out
}

func TestRawJSONSinkKeepsEveryExecution(t *testing.T) {
	logger, err := NewFileLogger(t.TempDir(), "raw", false)
	require.NoError(t, err)
	sink := logger.RawJSON()

	first, second := rawEvents(t, "fail"), rawEvents(t, "pass")
	require.NoError(t, sink.StoreRawJSON("pkg::TestA", first))
	require.NoError(t, sink.StoreRawJSON("pkg::TestA", second))
	require.NoError(t, sink.StoreRawJSON("pkg::TestA", nil))

	stored, ok := sink.GetRawJSON("pkg::TestA")
	require.True(t, ok)
	assert.Equal(t, append(append([]byte{}, first...), second...), stored)

	publishCheck(t, logger, "pkg::TestA", types.OutcomeEvent{Stage: types.StageCall, Outcome: types.OutcomePassed})
	_, ok = sink.GetRawJSON("pkg::TestA")
	assert.False(t, ok, "flushed output is released")

	require.NoError(t, logger.Close())
	content, err := os.ReadFile(sink.GetRawEventsFile())
	require.NoError(t, err)
	assert.Equal(t, string(first)+string(second), string(content))
}

func TestRawJSONSinkStoreFromFile(t *testing.T) {
	logger, err := NewFileLogger(t.TempDir(), "raw", false)
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()
	sink := logger.RawJSON()

	src := filepath.Join(t.TempDir(), "stdout.log")
	require.NoError(t, os.WriteFile(src, rawEvents(t, "pass"), 0644))
	require.NoError(t, sink.StoreRawJSONFromFile("pkg::TestA", src))

	stored, ok := sink.GetRawJSON("pkg::TestA")
	require.True(t, ok)
	assert.Equal(t, rawEvents(t, "pass")[:10], stored[:10])

	assert.Error(t, sink.StoreRawJSONFromFile("pkg::TestB", filepath.Join(t.TempDir(), "missing")))

	sink.DeleteRawJSON("pkg::TestA")
	_, ok = sink.GetRawJSON("pkg::TestA")
	assert.False(t, ok)
}
