package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// Go test2json (TestEvent) action constants for JSON test output
// See https://cs.opensource.google/go/go/+/master:src/cmd/test2json/main.go;l=34-60
const (
	ActionStart  = "start"
	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// TestEvent represents a test event from go test -json output
type TestEvent struct {
	Time    time.Time
	Action  string
	Package string
	Test    string
	Elapsed float64
	Output  string
}

// parsedTest is what the go test -json stream says about one test function.
type parsedTest struct {
	outcome  types.Outcome
	detail   string
	duration time.Duration
	// finished is set once the test reported pass, fail or skip.
	finished bool
	// buildFailed is set when the package never ran.
	buildFailed bool
}

// parseTestOutput reads a go test -json stream and extracts the result of
// funcName. Output of the function and its subtests becomes the detail, with
// ANSI escapes stripped and go test's own framing lines removed.
func parseTestOutput(r io.Reader, funcName string) parsedTest {
	res := parsedTest{outcome: types.OutcomeFailed}
	var output, pkgOutput strings.Builder
	var start time.Time

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var event TestEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}

		switch {
		case event.Test == funcName:
			switch event.Action {
			case ActionRun, ActionStart:
				start = event.Time
			case ActionPass, ActionFail, ActionSkip:
				res.finished = true
				res.outcome = actionOutcome(event.Action)
				res.duration = testDuration(start, event)
			case ActionOutput:
				appendOutput(&output, event.Output)
			}
		case strings.HasPrefix(event.Test, funcName+"/"):
			if event.Action == ActionOutput {
				appendOutput(&output, event.Output)
			}
		case event.Test == "":
			switch event.Action {
			case ActionOutput:
				appendOutput(&pkgOutput, event.Output)
			case "build-fail":
				res.buildFailed = true
			}
		}
	}

	switch {
	case res.finished:
		res.detail = strings.TrimSpace(output.String())
	case strings.Contains(pkgOutput.String(), "[build failed]") || strings.Contains(pkgOutput.String(), "[setup failed]"):
		res.buildFailed = true
		res.detail = strings.TrimSpace(pkgOutput.String())
	default:
		res.detail = strings.TrimSpace(output.String() + pkgOutput.String())
		if res.detail == "" {
			res.detail = fmt.Sprintf("no result for %s in test output", funcName)
		}
	}
	if res.outcome == types.OutcomePassed {
		res.detail = ""
	}
	return res
}

func actionOutcome(action string) types.Outcome {
	switch action {
	case ActionPass:
		return types.OutcomePassed
	case ActionSkip:
		return types.OutcomeSkipped
	default:
		return types.OutcomeFailed
	}
}

// appendOutput keeps the lines a reader needs: assertion messages, logs and
// panics, without "=== RUN" style framing.
func appendOutput(b *strings.Builder, line string) {
	line = stripansi.Strip(line)
	trimmed := strings.TrimSpace(line)
	if trimmed == "" ||
		strings.HasPrefix(trimmed, "=== ") ||
		strings.HasPrefix(trimmed, "--- PASS") ||
		trimmed == "PASS" || trimmed == "FAIL" ||
		strings.HasPrefix(trimmed, "ok  ") {
		return
	}
	b.WriteString(strings.TrimRight(line, "\n"))
	b.WriteString("\n")
}

func testDuration(start time.Time, end TestEvent) time.Duration {
	if end.Elapsed > 0 {
		return time.Duration(end.Elapsed * float64(time.Second))
	}
	if start.IsZero() || end.Time.IsZero() || end.Time.Before(start) {
		return 0
	}
	return end.Time.Sub(start)
}
