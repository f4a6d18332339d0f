package reporting

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-rerun/types"
)

// RecordingSink keeps every published check report in memory, in
// publication order. Coordinated workers record into one of these before
// their results are replayed to the real sinks.
type RecordingSink struct {
	reports []types.CheckReport
	index   map[string]int
	current string
	reruns  []types.OutcomeEvent
}

// NewRecordingSink creates an empty recording sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{index: make(map[string]int)}
}

func (s *RecordingSink) Start(checkID string) error {
	if s.current != "" {
		return fmt.Errorf("check %s started while %s is still open", checkID, s.current)
	}
	if _, ok := s.index[checkID]; ok {
		return fmt.Errorf("check %s reported twice", checkID)
	}
	s.current = checkID
	s.index[checkID] = len(s.reports)
	s.reports = append(s.reports, types.CheckReport{CheckID: checkID})
	return nil
}

func (s *RecordingSink) Report(ev types.OutcomeEvent) error {
	if s.current == "" {
		return errors.New("event reported outside of a check")
	}
	i := s.index[s.current]
	s.reports[i].Events = append(s.reports[i].Events, ev)
	return nil
}

func (s *RecordingSink) Finish(checkID string) error {
	if s.current != checkID {
		return fmt.Errorf("finishing %s but %q is open", checkID, s.current)
	}
	s.current = ""
	return nil
}

func (s *RecordingSink) Summary(reruns []types.OutcomeEvent) error {
	s.reruns = append(s.reruns, reruns...)
	return nil
}

// Reports returns the recorded reports in publication order.
func (s *RecordingSink) Reports() []types.CheckReport {
	out := make([]types.CheckReport, len(s.reports))
	copy(out, s.reports)
	return out
}

// ReportFor returns the recorded report of one check.
func (s *RecordingSink) ReportFor(checkID string) (types.CheckReport, bool) {
	i, ok := s.index[checkID]
	if !ok {
		return types.CheckReport{}, false
	}
	return s.reports[i], true
}

// Reruns returns the rerun events passed to Summary.
func (s *RecordingSink) Reruns() []types.OutcomeEvent {
	out := make([]types.OutcomeEvent, len(s.reruns))
	copy(out, s.reruns)
	return out
}

// Sink is the publishing contract shared by every sink in this package.
type Sink interface {
	Start(checkID string) error
	Report(ev types.OutcomeEvent) error
	Finish(checkID string) error
	Summary(reruns []types.OutcomeEvent) error
}

// MultiSink fans every call out to several sinks. The first error aborts the
// fan-out of that call.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink forwarding to all non-nil sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Start(checkID string) error {
	for _, s := range m.sinks {
		if err := s.Start(checkID); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) Report(ev types.OutcomeEvent) error {
	for _, s := range m.sinks {
		if err := s.Report(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) Finish(checkID string) error {
	for _, s := range m.sinks {
		if err := s.Finish(checkID); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) Summary(reruns []types.OutcomeEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Summary(reruns); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
