package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/templates"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// HTMLFilename is the page written into the run directory.
const HTMLFilename = "results.html"

// htmlPage is the data handed to the results template.
type htmlPage struct {
	RunID     string
	Generated time.Time
	Status    types.Status
	Stats     types.Stats
	Duration  time.Duration
	Groups    []htmlGroup
}

type htmlGroup struct {
	Name    string
	Status  types.Status
	Reports []types.CheckReport
}

// HTMLSink collects every published check and renders a results page when the
// session summary arrives.
type HTMLSink struct {
	tmpl    *template.Template
	dir     string
	runID   string
	groups  map[string]string
	current *types.CheckReport
	reports []types.CheckReport
	now     func() time.Time
}

// NewHTMLSink parses templateContent and creates a sink writing
// dir/results.html. groups maps check ids to their group label; sinks only
// ever see check ids.
func NewHTMLSink(dir, runID, templateContent string, groups map[string]string) (*HTMLSink, error) {
	tmpl, err := template.New("results").Funcs(templates.GetTemplateFunc()).Parse(templateContent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return &HTMLSink{tmpl: tmpl, dir: dir, runID: runID, groups: groups, now: time.Now}, nil
}

func (s *HTMLSink) Start(checkID string) error {
	if s.current != nil {
		return fmt.Errorf("check %s started while %s is still open", checkID, s.current.CheckID)
	}
	s.current = &types.CheckReport{CheckID: checkID}
	return nil
}

func (s *HTMLSink) Report(ev types.OutcomeEvent) error {
	if s.current == nil {
		return fmt.Errorf("event for %s reported outside a check", ev.CheckID)
	}
	s.current.Events = append(s.current.Events, ev)
	return nil
}

func (s *HTMLSink) Finish(checkID string) error {
	if s.current == nil || s.current.CheckID != checkID {
		return fmt.Errorf("finishing %s but it is not open", checkID)
	}
	s.current.Group = s.groups[checkID]
	s.reports = append(s.reports, *s.current)
	s.current = nil
	return nil
}

// Summary renders the page.
func (s *HTMLSink) Summary([]types.OutcomeEvent) error {
	content, err := s.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", s.dir, err)
	}
	path := filepath.Join(s.dir, HTMLFilename)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// Render executes the template over the checks collected so far.
func (s *HTMLSink) Render() ([]byte, error) {
	page := htmlPage{RunID: s.runID, Generated: s.now()}
	for _, g := range groupReports(s.reports) {
		page.Stats.Duration += g.stats.Duration
		page.Stats.Passed += g.stats.Passed
		page.Stats.Failed += g.stats.Failed
		page.Stats.Errors += g.stats.Errors
		page.Stats.Skipped += g.stats.Skipped
		page.Stats.XFailed += g.stats.XFailed
		page.Stats.Reruns += g.stats.Reruns
		page.Groups = append(page.Groups, htmlGroup{Name: g.name, Status: g.stats.Status(), Reports: g.reports})
	}
	page.Status = page.Stats.Status()
	page.Duration = page.Stats.Duration

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("failed to format HTML: %w", err)
	}
	return buf.Bytes(), nil
}
