package reporting

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum-optimism/infra/op-rerun/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ReportWriter defines the interface for writing reports to various destinations
type ReportWriter interface {
	Write(content string) error
}

// FileWriter writes reports to a file
type FileWriter struct {
	path string
}

// NewFileWriter creates a new file writer
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Write writes the content to the file
func (fw *FileWriter) Write(content string) error {
	return os.WriteFile(fw.path, []byte(content), 0644)
}

// StdoutWriter writes reports to stdout
type StdoutWriter struct{}

// NewStdoutWriter creates a new stdout writer
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{}
}

// Write writes the content to stdout
func (sw *StdoutWriter) Write(content string) error {
	_, err := fmt.Print(content)
	return err
}

// TableFormatter renders check reports as an ASCII table, one row per group
// followed by its members, and one row per ungrouped check.
type TableFormatter struct {
	title       string
	showMembers bool
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(title string, showMembers bool) *TableFormatter {
	return &TableFormatter{
		title:       title,
		showMembers: showMembers,
	}
}

type tableGroup struct {
	name    string
	reports []types.CheckReport
	stats   types.Stats
}

// Format formats the reports as an ASCII table
func (tf *TableFormatter) Format(reports []types.CheckReport) (string, error) {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(tf.title)

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Checks", "Passed", "Failed", "Skipped", "Reruns", "Status",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 200, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Checks", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Reruns", Align: text.AlignRight},
	})

	var total types.Stats
	for _, g := range groupReports(reports) {
		for _, r := range g.reports {
			for _, ev := range r.Events {
				total.Add(ev)
			}
		}
		if g.name == "" {
			r := g.reports[0]
			t.AppendRow(checkRow("Check", r.CheckID, r))
			continue
		}

		t.AppendRow(table.Row{
			"Group",
			g.name,
			formatDuration(g.stats.Duration),
			len(g.reports),
			g.stats.Passed,
			g.stats.Failed + g.stats.Errors,
			g.stats.Skipped,
			g.stats.Reruns,
			strings.ToUpper(string(g.stats.Status())),
		})
		if tf.showMembers {
			for i, r := range g.reports {
				prefix := "├──"
				if i == len(g.reports)-1 {
					prefix = "└──"
				}
				t.AppendRow(checkRow("", fmt.Sprintf("%s %s", prefix, r.CheckID), r))
			}
		}
		t.AppendSeparator()
	}

	switch total.Status() {
	case types.StatusFail:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case types.StatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(total.Duration),
		len(reports),
		total.Passed,
		total.Failed + total.Errors,
		total.Skipped,
		total.Reruns,
		strings.ToUpper(string(total.Status())),
	})

	t.Render()
	return buf.String(), nil
}

func checkRow(kind, label string, r types.CheckReport) table.Row {
	var s types.Stats
	for _, ev := range r.Events {
		s.Add(ev)
	}
	status := "UNKNOWN"
	if final, ok := r.Final(); ok {
		status = outcomeWord(final)
	}
	return table.Row{
		kind,
		label,
		formatDuration(r.Duration()),
		1,
		boolToInt(s.Passed > 0 && s.Failed+s.Errors == 0),
		boolToInt(s.Failed+s.Errors > 0),
		boolToInt(s.Skipped > 0 && s.Passed+s.Failed+s.Errors == 0),
		r.Reruns(),
		status,
	}
}

// groupReports keeps reports in order, merging consecutive reports of the
// same group. Ungrouped reports each form an unnamed entry.
func groupReports(reports []types.CheckReport) []*tableGroup {
	var out []*tableGroup
	for _, r := range reports {
		if r.Group != "" && len(out) > 0 && out[len(out)-1].name == r.Group {
			g := out[len(out)-1]
			g.reports = append(g.reports, r)
			for _, ev := range r.Events {
				g.stats.Add(ev)
			}
			continue
		}
		g := &tableGroup{name: r.Group, reports: []types.CheckReport{r}}
		for _, ev := range r.Events {
			g.stats.Add(ev)
		}
		out = append(out, g)
	}
	return out
}

// boolToInt converts a boolean to int for table display
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// TableReporter formats check reports as a table and writes them out
type TableReporter struct {
	formatter *TableFormatter
	writer    ReportWriter
}

// NewTableReporter creates a new table reporter writing to w, or stdout when w is nil
func NewTableReporter(title string, showMembers bool, w ReportWriter) *TableReporter {
	if w == nil {
		w = NewStdoutWriter()
	}
	return &TableReporter{
		formatter: NewTableFormatter(title, showMembers),
		writer:    w,
	}
}

// Generate returns the table for reports
func (tr *TableReporter) Generate(reports []types.CheckReport) (string, error) {
	return tr.formatter.Format(reports)
}

// Print formats reports and writes them to the reporter's writer
func (tr *TableReporter) Print(reports []types.CheckReport) error {
	content, err := tr.Generate(reports)
	if err != nil {
		return err
	}
	return tr.writer.Write(content)
}
