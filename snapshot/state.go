// Package snapshot captures and restores the shared mutable state of a group
// of checks so that every rerun attempt starts from the state the first attempt saw.
package snapshot

import (
	"reflect"
	"sort"
	"strings"
)

// ReservedPrefix marks field names owned by the framework. They are never captured.
const ReservedPrefix = "rerun."

// State is the shared context object of a group. Checks read and mutate its
// fields during an attempt; the orchestrator snapshots it before the first
// attempt and restores it before every rerun.
//
// State is not safe for concurrent use. A group is only ever driven by the
// worker that owns it.
type State struct {
	fields map[string]any
}

// NewState returns an empty State.
func NewState() *State {
	return &State{fields: make(map[string]any)}
}

// NewStateFrom returns a State holding the given fields.
func NewStateFrom(fields map[string]any) *State {
	s := NewState()
	for k, v := range fields {
		s.fields[k] = v
	}
	return s
}

// Get returns the value of a field.
func (s *State) Get(name string) (any, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// Set assigns a field, adding it when missing.
func (s *State) Set(name string, value any) {
	s.fields[name] = value
}

// Delete removes a field.
func (s *State) Delete(name string) {
	delete(s.fields, name)
}

// Len returns the number of fields, including reserved and callable ones.
func (s *State) Len() int {
	return len(s.fields)
}

// Names returns every field name in lexical order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// snapshotNames returns the names Capture considers: no callables, no dunder
// names, nothing under ReservedPrefix.
func (s *State) snapshotNames() []string {
	var names []string
	for _, name := range s.Names() {
		if strings.HasPrefix(name, "__") || strings.HasPrefix(name, ReservedPrefix) {
			continue
		}
		if isCallable(s.fields[name]) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func isCallable(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Kind() == reflect.Func
}
