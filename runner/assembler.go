package runner

import "github.com/ethereum-optimism/infra/op-rerun/types"

// ReportAssembler turns a finished group history into the event sequence each
// check publishes.
type ReportAssembler struct {
	onlyLast bool
}

// NewReportAssembler creates an assembler. With onlyLast set, checks that ran
// more than once publish their final attempt only.
func NewReportAssembler(onlyLast bool) *ReportAssembler {
	return &ReportAssembler{onlyLast: onlyLast}
}

// Assemble builds the published events for every member of history. Failures
// of non-final attempts that block a pass are relabelled as reruns; expected
// failures keep their outcome. Stage, detail and timing are kept. Attempts a member never reached, and members with no record at all,
// become a single skipped event. The history itself is never modified, so
// assembling twice yields the same result.
func (a *ReportAssembler) Assemble(history *types.GroupHistory) map[string][]types.OutcomeEvent {
	out := make(map[string][]types.OutcomeEvent, len(history.Order))
	for _, id := range history.Order {
		out[id] = a.assembleCheck(id, history.Records(id))
	}
	return out
}

func (a *ReportAssembler) assembleCheck(id string, records []types.AttemptRecord) []types.OutcomeEvent {
	if len(records) == 0 {
		return []types.OutcomeEvent{types.NewAbortedSkip(id)}
	}
	if len(records) == 1 || a.onlyLast {
		return eventsOrSkip(id, records[len(records)-1].Events)
	}

	var events []types.OutcomeEvent
	for _, rec := range records[:len(records)-1] {
		if len(rec.Events) == 0 {
			events = append(events, types.NewAbortedSkip(id))
			continue
		}
		for _, ev := range rec.Events {
			if ev.BlocksPass() {
				ev = ev.WithOutcome(types.OutcomeRerun)
			}
			events = append(events, ev)
		}
	}
	return append(events, eventsOrSkip(id, records[len(records)-1].Events)...)
}

func eventsOrSkip(id string, events []types.OutcomeEvent) []types.OutcomeEvent {
	if len(events) == 0 {
		return []types.OutcomeEvent{types.NewAbortedSkip(id)}
	}
	out := make([]types.OutcomeEvent, len(events))
	copy(out, events)
	return out
}
