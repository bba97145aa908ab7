package domains

import "sort"

// Set is an unordered collection of unique domain names.
type Set map[string]struct{}

// NewSet builds a Set from the given names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s Set) Add(name string) {
	s[name] = struct{}{}
}

func (s Set) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Union returns a new Set with the members of s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for d := range s {
		out[d] = struct{}{}
	}
	for d := range other {
		out[d] = struct{}{}
	}
	return out
}

// Diff returns the members of s that are not in other.
func (s Set) Diff(other Set) Set {
	out := Set{}
	for d := range s {
		if _, ok := other[d]; !ok {
			out[d] = struct{}{}
		}
	}
	return out
}

// Intersect returns the members present in both s and other.
func (s Set) Intersect(other Set) Set {
	out := Set{}
	for d := range s {
		if _, ok := other[d]; ok {
			out[d] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members as a sorted slice.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
