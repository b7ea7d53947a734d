package engine

// Visited is the per-pass set of record ids already yielded by a
// hierarchical stream. It is never shared across passes.
type Visited struct {
	ids map[string]struct{}
}

// NewVisited returns an empty set.
func NewVisited() *Visited {
	return &Visited{ids: make(map[string]struct{})}
}

// Mark adds id and reports whether it was new.
func (v *Visited) Mark(id string) bool {
	if _, ok := v.ids[id]; ok {
		return false
	}
	v.ids[id] = struct{}{}
	return true
}

// Len returns the number of marked ids.
func (v *Visited) Len() int {
	return len(v.ids)
}
