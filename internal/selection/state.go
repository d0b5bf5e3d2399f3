// Package selection holds the per-session selection bookkeeping as an
// immutable value. Every transition returns a new State and leaves the
// receiver untouched.
package selection

import "sort"

type idSet map[string]struct{}

func (s idSet) clone() idSet {
	out := make(idSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// State is one snapshot of a session's selection. The zero value is an empty
// selection with no CSV filter.
//
// Invariant: temp and committed are disjoint.
type State struct {
	temp      idSet
	committed idSet
	csvIDs    idSet
	csvActive bool
	overrides map[string]string
}

// New returns an empty selection.
func New() State {
	return State{}
}

func (s State) clone() State {
	next := State{
		temp:      s.temp.clone(),
		committed: s.committed.clone(),
		csvIDs:    s.csvIDs.clone(),
		csvActive: s.csvActive,
		overrides: make(map[string]string, len(s.overrides)),
	}
	for k, v := range s.overrides {
		next.overrides[k] = v
	}
	return next
}

// ToggleTemp adds id to the temporary picks or removes it when already there.
// Committed ids are left alone.
func (s State) ToggleTemp(id string) State {
	if _, ok := s.committed[id]; ok {
		return s
	}
	next := s.clone()
	if _, ok := next.temp[id]; ok {
		delete(next.temp, id)
	} else {
		next.temp[id] = struct{}{}
	}
	return next
}

// Commit moves id into the committed set.
func (s State) Commit(id string) State {
	next := s.clone()
	next.committed[id] = struct{}{}
	delete(next.temp, id)
	return next
}

// CommitAll commits every temporary pick and empties the temporary set.
func (s State) CommitAll() State {
	next := s.clone()
	for id := range next.temp {
		next.committed[id] = struct{}{}
	}
	next.temp = idSet{}
	return next
}

// Remove drops id from the committed set together with its expiration override.
func (s State) Remove(id string) State {
	next := s.clone()
	delete(next.committed, id)
	delete(next.overrides, id)
	return next
}

// Clear deselects every committed id and drops all overrides.
func (s State) Clear() State {
	next := s.clone()
	next.committed = idSet{}
	next.overrides = map[string]string{}
	return next
}

// SelectAllVisible replaces the temporary picks with the given ids.
func (s State) SelectAllVisible(ids []string) State {
	next := s.clone()
	next.temp = make(idSet, len(ids))
	for _, id := range ids {
		if _, committed := next.committed[id]; !committed {
			next.temp[id] = struct{}{}
		}
	}
	return next
}

// SetOverride records a custom expiration date for a committed id. An empty
// date removes the override.
func (s State) SetOverride(id, date string) State {
	next := s.clone()
	if date == "" {
		delete(next.overrides, id)
	} else {
		next.overrides[id] = date
	}
	return next
}

// SetCSVFilter activates the CSV allow-list (matched against idNumber).
func (s State) SetCSVFilter(idNumbers []string) State {
	next := s.clone()
	next.csvIDs = make(idSet, len(idNumbers))
	for _, n := range idNumbers {
		next.csvIDs[n] = struct{}{}
	}
	next.csvActive = true
	return next
}

// ClearCSVFilter deactivates the CSV allow-list.
func (s State) ClearCSVFilter() State {
	next := s.clone()
	next.csvIDs = idSet{}
	next.csvActive = false
	return next
}

// IsTemp reports whether id is a temporary pick.
func (s State) IsTemp(id string) bool {
	_, ok := s.temp[id]
	return ok
}

// IsCommitted reports whether id is committed.
func (s State) IsCommitted(id string) bool {
	_, ok := s.committed[id]
	return ok
}

// TempIDs returns the temporary picks, sorted.
func (s State) TempIDs() []string { return s.temp.sorted() }

// CommittedIDs returns the committed ids, sorted.
func (s State) CommittedIDs() []string { return s.committed.sorted() }

// CommittedCount returns the size of the committed set.
func (s State) CommittedCount() int { return len(s.committed) }

// CSVFilter returns the allow-list and whether it is active.
func (s State) CSVFilter() ([]string, bool) { return s.csvIDs.sorted(), s.csvActive }

// Override returns the custom expiration date for id, if any.
func (s State) Override(id string) (string, bool) {
	v, ok := s.overrides[id]
	return v, ok
}

// Overrides returns a copy of all expiration overrides.
func (s State) Overrides() map[string]string {
	out := make(map[string]string, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}
