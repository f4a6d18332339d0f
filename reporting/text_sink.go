package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
)

const summaryWidth = 80

// TextSinkOptions configures the terminal output.
type TextSinkOptions struct {
	// Total is the number of checks in the plan; when set, progress is shown.
	Total int
	// HideRerunSummary suppresses the rerun section of the summary.
	HideRerunSummary bool
}

// TextSink writes a line per reported outcome while checks are published,
// and a rerun section plus a stats line at the end of the session.
type TextSink struct {
	w        io.Writer
	opts     TextSinkOptions
	finished int
	stats    types.Stats
}

// NewTextSink creates a text sink writing to w
func NewTextSink(w io.Writer, opts TextSinkOptions) *TextSink {
	return &TextSink{w: w, opts: opts}
}

func (s *TextSink) Start(string) error {
	return nil
}

func (s *TextSink) Report(ev types.OutcomeEvent) error {
	s.stats.Add(ev)
	// Passing setup or teardown stages carry no news.
	if ev.Stage != types.StageCall && ev.Outcome == types.OutcomePassed {
		return nil
	}
	line := fmt.Sprintf("%s %s", ev.CheckID, outcomeWord(ev))
	if ev.Stage != types.StageCall {
		line += fmt.Sprintf(" (%s)", ev.Stage)
	}
	if s.opts.Total > 0 {
		line += fmt.Sprintf(" [%3d%%]", (s.finished+1)*100/s.opts.Total)
	}
	_, err := fmt.Fprintln(s.w, line)
	return err
}

func (s *TextSink) Finish(string) error {
	s.finished++
	return nil
}

// Summary writes the rerun section, one "RERUN <check>" line followed by the
// failure detail of each rerun event, and the final stats line.
func (s *TextSink) Summary(reruns []types.OutcomeEvent) error {
	var b strings.Builder
	if !s.opts.HideRerunSummary && len(reruns) > 0 {
		b.WriteString(banner("rerun test summary info", "="))
		for _, ev := range reruns {
			fmt.Fprintf(&b, "RERUN %s\n", ev.CheckID)
			detail := strings.TrimRight(ev.Detail, "\n")
			if detail == "" {
				continue
			}
			for _, line := range strings.Split(detail, "\n") {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}
	b.WriteString(banner(fmt.Sprintf("%s in %s", s.stats, formatDuration(s.stats.Duration)), "="))
	_, err := io.WriteString(s.w, b.String())
	return err
}

// Stats returns the tallies of everything reported so far.
func (s *TextSink) Stats() types.Stats {
	return s.stats
}

// outcomeWord maps an event to the word shown for it.
func outcomeWord(ev types.OutcomeEvent) string {
	switch ev.Outcome {
	case types.OutcomePassed:
		if ev.ExpectedFail {
			return "XPASS"
		}
		return "PASSED"
	case types.OutcomeFailed:
		if ev.ExpectedFail {
			return "XFAIL"
		}
		if ev.Stage != types.StageCall {
			return "ERROR"
		}
		return "FAILED"
	case types.OutcomeSkipped:
		return "SKIPPED"
	case types.OutcomeRerun:
		return "RERUN"
	default:
		return strings.ToUpper(string(ev.Outcome))
	}
}

func banner(title, fill string) string {
	title = " " + title + " "
	pad := summaryWidth - len(title)
	if pad < 2 {
		return strings.TrimSpace(title) + "\n"
	}
	left := pad / 2
	return strings.Repeat(fill, left) + title + strings.Repeat(fill, pad-left) + "\n"
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
