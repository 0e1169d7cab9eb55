package dedup

import "sync"

// Filter is the set of item identifiers the pipeline has already processed.
// It is shared by every source adapter and grows for the lifetime of the
// process.
type Filter struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewFilter creates a filter seeded with identifiers loaded from storage
func NewFilter(seed map[string]struct{}) *Filter {
	seen := make(map[string]struct{}, len(seed))
	for id := range seed {
		seen[id] = struct{}{}
	}
	return &Filter{seen: seen}
}

// Seen reports whether id has been marked
func (f *Filter) Seen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.seen[id]
	return ok
}

// MarkSeen records id. Marking an id twice is a no-op.
func (f *Filter) MarkSeen(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seen[id] = struct{}{}
}

// CheckAndMark marks id and reports whether this call was the first to do so
func (f *Filter) CheckAndMark(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[id]; ok {
		return false
	}
	f.seen[id] = struct{}{}
	return true
}

// Len returns the number of identifiers tracked
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.seen)
}

// Forget removes id so a later sighting is treated as new. The pipeline calls
// it when an item was marked but could not be handed on.
func (f *Filter) Forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.seen, id)
}
