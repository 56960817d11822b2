package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// SeenSet is a bounded set of event IDs used to drop at-least-once
// duplicates. When full, the oldest entries are evicted first.
type SeenSet struct {
	mu       sync.Mutex
	capacity int
	present  map[uuid.UUID]struct{}
	order    []uuid.UUID
	head     int
}

// NewSeenSet builds a seen-set holding up to capacity IDs.
func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = 256
	}
	return &SeenSet{
		capacity: capacity,
		present:  make(map[uuid.UUID]struct{}, capacity),
		order:    make([]uuid.UUID, capacity),
	}
}

// Observe records the ID and reports whether it was already present.
func (s *SeenSet) Observe(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.present[id]; seen {
		return true
	}

	evicted := s.order[s.head]
	if evicted != uuid.Nil {
		delete(s.present, evicted)
	}
	s.order[s.head] = id
	s.head = (s.head + 1) % s.capacity
	s.present[id] = struct{}{}
	return false
}

// Len reports the number of IDs currently tracked.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.present)
}
