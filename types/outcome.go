package types

import "time"

// Stage is the phase of a check an event describes.
type Stage string

const (
	StageSetup    Stage = "setup"
	StageCall     Stage = "call"
	StageTeardown Stage = "teardown"
)

// Outcome is the classification of an event.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	// OutcomeRerun marks a failure that was superseded by a later attempt.
	OutcomeRerun Outcome = "rerun"
)

// SkipAbortedMessage explains synthesized events for checks a fail-fast abort never reached.
const SkipAbortedMessage = "Skipping test due to class execution was aborted during rerun"

// OutcomeEvent is the result of one stage of one check execution. Only the
// outcome classification may be rewritten after it is produced; see WithOutcome.
type OutcomeEvent struct {
	CheckID  string
	Stage    Stage
	Outcome  Outcome
	Detail   string
	Duration time.Duration
	// ExpectedFail is set when the check is marked as expected to fail.
	ExpectedFail bool
}

// Failed reports whether the event records a failure.
func (e OutcomeEvent) Failed() bool {
	return e.Outcome == OutcomeFailed
}

// BlocksPass reports whether the event fails an attempt: a failure that was not expected.
func (e OutcomeEvent) BlocksPass() bool {
	return e.Failed() && !e.ExpectedFail
}

// WithOutcome returns a copy of the event with a different classification.
func (e OutcomeEvent) WithOutcome(o Outcome) OutcomeEvent {
	e.Outcome = o
	return e
}

// NewAbortedSkip builds the event reported for a check that a fail-fast abort never reached.
func NewAbortedSkip(checkID string) OutcomeEvent {
	return OutcomeEvent{
		CheckID: checkID,
		Stage:   StageCall,
		Outcome: OutcomeSkipped,
		Detail:  SkipAbortedMessage,
	}
}
