// Package novelty decides which transient identifiers have not been handled
// yet.
//
// Filter is a pure set difference between the identifiers read from the
// source list and the identifiers already present in the processed-state
// store. Source order is preserved and repeated identifiers collapse to their
// first occurrence.
package novelty

// Set is a read-only view of previously recorded identifiers.
type Set interface {
	Contains(id string) bool
}

// IDSet is a Set backed by a map.
type IDSet map[string]struct{}

// NewIDSet builds an IDSet from ids.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is in the set. A nil set contains nothing.
func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of identifiers in the set.
func (s IDSet) Len() int {
	return len(s)
}

// Union returns a new set holding the identifiers of s and ids.
func (s IDSet) Union(ids ...string) IDSet {
	out := make(IDSet, len(s)+len(ids))
	for id := range s {
		out[id] = struct{}{}
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// Filter returns the identifiers of source that seen does not contain, in
// order of first occurrence. Identifiers are compared as opaque,
// case-sensitive strings. Neither input is modified.
func Filter(source []string, seen Set) []string {
	if len(source) == 0 {
		return nil
	}
	emitted := make(map[string]struct{}, len(source))
	out := make([]string, 0, len(source))
	for _, id := range source {
		if _, dup := emitted[id]; dup {
			continue
		}
		emitted[id] = struct{}{}
		if seen != nil && seen.Contains(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
