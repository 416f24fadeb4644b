package dedup

import (
	"sync"
)

// BoundedSet is a FIFO-evicting set of identifiers. Once the set holds cap
// entries, adding a new one evicts the oldest. It is safe for concurrent use.
type BoundedSet struct {
	mu    sync.Mutex
	cap   int
	order []string
	index map[string]struct{}
}

// NewBoundedSet creates a set holding at most capacity identifiers
func NewBoundedSet(capacity int) *BoundedSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &BoundedSet{
		cap:   capacity,
		order: make([]string, 0, capacity),
		index: make(map[string]struct{}, capacity),
	}
}

// Contains reports whether id is present
func (s *BoundedSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Add inserts id and reports whether it was newly added
func (s *BoundedSet) Add(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(id)
}

func (s *BoundedSet) add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	if len(s.order) >= s.cap {
		oldest := s.order[0]
		delete(s.index, oldest)
		// copy down to keep the backing array bounded
		copy(s.order, s.order[1:])
		s.order = s.order[:len(s.order)-1]
	}
	s.order = append(s.order, id)
	s.index[id] = struct{}{}
	return true
}

// Len returns the number of identifiers held
func (s *BoundedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Items returns the identifiers oldest first
func (s *BoundedSet) Items() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Load replaces the contents with ids, keeping the most recent cap entries
func (s *BoundedSet) Load(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = s.order[:0]
	s.index = make(map[string]struct{}, s.cap)
	for _, id := range ids {
		if id != "" {
			s.add(id)
		}
	}
}
