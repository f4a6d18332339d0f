package types

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the overall verdict of a run
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// CheckReport is the final, published event sequence of one check.
type CheckReport struct {
	CheckID string
	Group   string
	Events  []OutcomeEvent
}

// Final returns the call-stage event that decides the check's verdict, falling
// back to the last event when no call stage ran.
func (r CheckReport) Final() (OutcomeEvent, bool) {
	if len(r.Events) == 0 {
		return OutcomeEvent{}, false
	}
	for i := len(r.Events) - 1; i >= 0; i-- {
		ev := r.Events[i]
		if ev.Outcome == OutcomeRerun {
			break
		}
		if ev.Stage == StageCall || ev.Failed() {
			return ev, true
		}
	}
	return r.Events[len(r.Events)-1], true
}

// Reruns counts the events relabelled as rerun.
func (r CheckReport) Reruns() int {
	n := 0
	for _, ev := range r.Events {
		if ev.Outcome == OutcomeRerun {
			n++
		}
	}
	return n
}

// Duration sums the durations of all events.
func (r CheckReport) Duration() time.Duration {
	var d time.Duration
	for _, ev := range r.Events {
		d += ev.Duration
	}
	return d
}

// Stats tallies published events the way a terminal reporter counts them:
// failing setup or teardown stages are errors, a failing call is a failure.
type Stats struct {
	Passed   int
	Failed   int
	Errors   int
	Skipped  int
	XFailed  int
	Reruns   int
	Duration time.Duration
}

// Add counts one event.
func (s *Stats) Add(ev OutcomeEvent) {
	s.Duration += ev.Duration
	switch ev.Outcome {
	case OutcomeRerun:
		s.Reruns++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		switch {
		case ev.ExpectedFail:
			s.XFailed++
		case ev.Stage == StageCall:
			s.Failed++
		default:
			s.Errors++
		}
	case OutcomePassed:
		if ev.Stage == StageCall {
			s.Passed++
		}
	}
}

// Status derives the run verdict: any failure or error fails the run.
func (s Stats) Status() Status {
	if s.Failed > 0 || s.Errors > 0 {
		return StatusFail
	}
	if s.Passed == 0 && s.XFailed == 0 && s.Skipped > 0 {
		return StatusSkip
	}
	return StatusPass
}

// String renders a summary such as "1 failed, 1 passed, 1 skipped, 2 rerun".
func (s Stats) String() string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.Failed, "failed")
	add(s.Passed, "passed")
	add(s.Skipped, "skipped")
	add(s.XFailed, "xfailed")
	add(s.Errors, "error")
	add(s.Reruns, "rerun")
	if len(parts) == 0 {
		return "no checks ran"
	}
	return strings.Join(parts, ", ")
}
