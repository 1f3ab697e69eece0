package registry

// dedupWindow is a fixed-capacity set of recently seen envelope ids. When
// full, marking a new id evicts the oldest one. Bounded capacity keeps memory
// flat under sustained traffic.
type dedupWindow struct {
	seen map[string]struct{}
	ring []string
	next int
}

func newDedupWindow(capacity int) *dedupWindow {
	return &dedupWindow{
		seen: make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

// mark records an id and reports whether it was new. Empty ids are treated as
// new but never recorded; the envelope codec rejects them upstream.
func (w *dedupWindow) mark(id string) bool {
	if id == "" {
		return true
	}
	if _, dup := w.seen[id]; dup {
		return false
	}

	if evicted := w.ring[w.next]; evicted != "" {
		delete(w.seen, evicted)
	}
	w.ring[w.next] = id
	w.seen[id] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
	return true
}
