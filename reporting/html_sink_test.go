package reporting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-rerun/types"
)

const testTemplate = `{{.RunID}} {{getStatusText .Status}} [{{.Stats}}]
{{range .Groups}}group={{.Name}} status={{getStatusClass .Status}}
{{range .Reports}}{{range .Events}}  {{.CheckID}} {{getOutcomeClass .}} {{formatDuration .Duration}}
{{end}}{{end}}{{end}}`

func publishReports(t *testing.T, s Sink, reports []types.CheckReport) {
	t.Helper()
	for _, r := range reports {
		require.NoError(t, s.Start(r.CheckID))
		for _, ev := range r.Events {
			require.NoError(t, s.Report(ev))
		}
		require.NoError(t, s.Finish(r.CheckID))
	}
}

func TestHTMLSinkRender(t *testing.T) {
	groups := map[string]string{"mod::G::TestA": "mod::G", "mod::G::TestB": "mod::G"}
	sink, err := NewHTMLSink(t.TempDir(), "run-1", testTemplate, groups)
	require.NoError(t, err)
	publishReports(t, sink, sampleReports())

	out, err := sink.Render()
	require.NoError(t, err)

	expected := `run-1 FAIL [1 failed, 2 passed, 1 rerun]
group=mod::G status=pass
  mod::G::TestA passed 100ms
  mod::G::TestB rerun 0ms
  mod::G::TestB passed 100ms
group= status=fail
  pkg::TestLoose failed 0ms
`
	assert.Equal(t, expected, string(out))
}

func TestHTMLSinkSummaryWritesPage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rerun-run-2")
	sink, err := NewHTMLSink(dir, "run-2", testTemplate, nil)
	require.NoError(t, err)
	sink.now = func() time.Time { return time.Unix(0, 0) }

	publishReports(t, sink, sampleReports())
	require.NoError(t, sink.Summary(nil))

	content, err := os.ReadFile(filepath.Join(dir, HTMLFilename))
	require.NoError(t, err)
	assert.Contains(t, string(content), "pkg::TestLoose failed")
}

func TestHTMLSinkEscapesDetail(t *testing.T) {
	sink, err := NewHTMLSink(t.TempDir(), "run-3", `{{range .Groups}}{{range .Reports}}{{range .Events}}{{.Detail}}{{end}}{{end}}{{end}}`, nil)
	require.NoError(t, err)
	publishReports(t, sink, []types.CheckReport{{CheckID: "c", Events: []types.OutcomeEvent{
		{CheckID: "c", Stage: types.StageCall, Outcome: types.OutcomeFailed, Detail: "<script>alert(1)</script>"},
	}}})

	out, err := sink.Render()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>")
	assert.Contains(t, string(out), "&lt;script&gt;")
}

func TestHTMLSinkProtocolErrors(t *testing.T) {
	sink, err := NewHTMLSink(t.TempDir(), "run-4", testTemplate, nil)
	require.NoError(t, err)

	require.Error(t, sink.Report(types.OutcomeEvent{CheckID: "a"}))
	require.Error(t, sink.Finish("a"))
	require.NoError(t, sink.Start("a"))
	require.Error(t, sink.Start("b"))
	require.Error(t, sink.Finish("b"))
}

func TestHTMLSinkBadTemplate(t *testing.T) {
	_, err := NewHTMLSink(t.TempDir(), "run-5", "{{.Missing", nil)
	require.Error(t, err)
}
