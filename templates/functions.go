package templates

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// GetTemplateFunc returns the template functions shared by the HTML reports
func GetTemplateFunc() template.FuncMap {
	return template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			if d < time.Second {
				return fmt.Sprintf("%dms", d.Milliseconds())
			}
			return d.Truncate(time.Millisecond).String()
		},
		"getStatusClass": func(status types.Status) string {
			return getStatusString(status)
		},
		"getStatusText": func(status types.Status) string {
			return strings.ToUpper(getStatusString(status))
		},
		"getOutcomeClass": func(ev types.OutcomeEvent) string {
			return getOutcomeClass(ev)
		},
		"hasReruns": func(r types.CheckReport) bool {
			return r.Reruns() > 0
		},
	}
}

// getStatusString returns a consistent lowercase status string
func getStatusString(status types.Status) string {
	switch status {
	case types.StatusPass:
		return "pass"
	case types.StatusFail:
		return "fail"
	case types.StatusSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// getOutcomeClass maps an event to the css class of its row. Expected
// failures and failed setup or teardown stages get their own classes.
func getOutcomeClass(ev types.OutcomeEvent) string {
	switch {
	case ev.ExpectedFail:
		return "xfail"
	case ev.Outcome == types.OutcomeFailed && ev.Stage != types.StageCall:
		return "error"
	default:
		return string(ev.Outcome)
	}
}
