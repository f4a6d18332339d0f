package types

// AttemptRecord holds the events one check produced during one attempt.
// A record with no events is padding for an attempt the check never reached.
type AttemptRecord struct {
	Attempt int
	Events  []OutcomeEvent
}

// GroupHistory maps every member of a group to its attempt records.
type GroupHistory struct {
	// Order lists member IDs in cohort order.
	Order    []string
	attempts map[string][]AttemptRecord
}

// NewGroupHistory creates an empty history for the given members.
func NewGroupHistory(members []string) *GroupHistory {
	order := make([]string, len(members))
	copy(order, members)
	return &GroupHistory{
		Order:    order,
		attempts: make(map[string][]AttemptRecord),
	}
}

// Ensure makes sure checkID has records for every attempt up to and including
// attempt, padding skipped attempts with empty records, and returns the record
// for attempt.
func (h *GroupHistory) Ensure(checkID string, attempt int) *AttemptRecord {
	if !h.has(checkID) {
		h.Order = append(h.Order, checkID)
	}
	records := h.attempts[checkID]
	for len(records) <= attempt {
		records = append(records, AttemptRecord{Attempt: len(records)})
	}
	h.attempts[checkID] = records
	return &h.attempts[checkID][attempt]
}

// Append adds an event to the record of checkID at attempt.
func (h *GroupHistory) Append(checkID string, attempt int, ev OutcomeEvent) {
	rec := h.Ensure(checkID, attempt)
	rec.Events = append(rec.Events, ev)
}

// Records returns the attempt records of a check in attempt order.
func (h *GroupHistory) Records(checkID string) []AttemptRecord {
	return h.attempts[checkID]
}

// Attempts returns the highest number of records held by any member.
func (h *GroupHistory) Attempts() int {
	n := 0
	for _, records := range h.attempts {
		if len(records) > n {
			n = len(records)
		}
	}
	return n
}

func (h *GroupHistory) has(checkID string) bool {
	for _, id := range h.Order {
		if id == checkID {
			return true
		}
	}
	return false
}
