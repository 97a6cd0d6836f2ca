package server

import (
	"sync"
	"time"

	"github.com/poromet/poromet/internal/analysis"
)

// StoredResult is one retained analysis, kept so its artifact bundle can be
// downloaded after the analyze response was sent.
type StoredResult struct {
	ID            string
	CreatedAt     time.Time
	Magnification int
	Width, Height int
	Result        *analysis.Result
}

// ResultStore retains completed analyses in memory, bounded by capacity.
//
// When full, inserting evicts the oldest entry by insertion order, which
// keeps worst-case memory proportional to capacity times artifact size. Safe
// for concurrent use.
type ResultStore struct {
	mu       sync.RWMutex
	capacity int
	results  map[string]*StoredResult
	order    []string
}

// NewResultStore creates an empty store holding at most capacity results.
func NewResultStore(capacity int) *ResultStore {
	if capacity < 1 {
		capacity = 1
	}
	return &ResultStore{
		capacity: capacity,
		results:  make(map[string]*StoredResult, capacity),
	}
}

// Put inserts a result, evicting the oldest entry when the store is full.
func (s *ResultStore) Put(r *StoredResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[r.ID]; !exists {
		for len(s.order) >= s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.results, oldest)
		}
		s.order = append(s.order, r.ID)
	}
	s.results[r.ID] = r
}

// Get retrieves a retained result by id.
func (s *ResultStore) Get(id string) (*StoredResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	return r, ok
}

// Len returns the number of retained results.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
