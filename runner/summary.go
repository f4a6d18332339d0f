package runner

import "github.com/ethereum-optimism/infra/op-rerun/types"

// SummaryEmitter gathers the rerun events published during a session and
// hands them to the sink once the session ends.
type SummaryEmitter struct {
	reruns []types.OutcomeEvent
}

// NewSummaryEmitter creates an empty summary emitter
func NewSummaryEmitter() *SummaryEmitter {
	return &SummaryEmitter{}
}

// Observe keeps ev if it was relabelled as a rerun.
func (e *SummaryEmitter) Observe(ev types.OutcomeEvent) {
	if ev.Outcome == types.OutcomeRerun {
		e.reruns = append(e.reruns, ev)
	}
}

// Reruns returns the observed rerun events in publication order.
func (e *SummaryEmitter) Reruns() []types.OutcomeEvent {
	out := make([]types.OutcomeEvent, len(e.reruns))
	copy(out, e.reruns)
	return out
}

// Emit passes the rerun events to sink. Sinks decide how, and whether, to render them.
func (e *SummaryEmitter) Emit(sink ReportingSink) error {
	return sink.Summary(e.Reruns())
}
