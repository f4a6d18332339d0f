package snapshot

import (
	"sort"

	"github.com/ethereum/go-ethereum/log"
)

// Data is the state captured before the first attempt of a group. It is never
// updated afterwards: every restore writes the same values back.
type Data struct {
	values  map[string]any
	aliased map[string]bool
}

// Names returns the captured field names in lexical order.
func (d *Data) Names() []string {
	names := make([]string, 0, len(d.values))
	for name := range d.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value returns the captured value of a field.
func (d *Data) Value(name string) (any, bool) {
	v, ok := d.values[name]
	return v, ok
}

// Aliased returns the fields that could not be copied and are held by reference.
// Mutations made to them during an attempt survive a restore.
func (d *Data) Aliased() []string {
	var names []string
	for name := range d.aliased {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capture copies every non-callable, non-reserved field of state. A field that
// cannot be deep-copied is kept by reference and logged at debug level.
func Capture(state *State, logger log.Logger) *Data {
	d := &Data{
		values:  make(map[string]any),
		aliased: make(map[string]bool),
	}
	if state == nil {
		return d
	}
	for _, name := range state.snapshotNames() {
		value := state.fields[name]
		copied, err := DeepCopy(value)
		if err != nil {
			logger.Debug("While saving group state: can't deep copy field", "field", name, "err", err)
			d.values[name] = value
			d.aliased[name] = true
			continue
		}
		d.values[name] = copied
	}
	return d
}

// Restore writes every captured field back onto state, copying again so the
// snapshot itself stays pristine for later restores. Fields added to state
// after Capture are left in place: they were produced by setup code that does
// not run again, and removing them would leave the state inconsistent.
func Restore(state *State, data *Data, logger log.Logger) {
	if state == nil || data == nil {
		return
	}
	for _, name := range data.Names() {
		value := data.values[name]
		if data.aliased[name] {
			state.fields[name] = value
			continue
		}
		copied, err := DeepCopy(value)
		if err != nil {
			logger.Debug("While loading group state: can't deep copy field", "field", name, "err", err)
			state.fields[name] = value
			continue
		}
		state.fields[name] = copied
	}
}
