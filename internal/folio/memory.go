package folio

import (
	"context"
	"sync"
)

// MemoryStore keeps counters in process memory with one lock per template.
// It serves local development and tests; counters are lost on restart.
type MemoryStore struct {
	counters sync.Map // uint -> *memoryCounter
}

type memoryCounter struct {
	mu   sync.Mutex
	last int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed sets the last issued folio of a template.
func (m *MemoryStore) Seed(templateID uint, last int64) {
	c := m.counter(templateID)
	c.mu.Lock()
	c.last = last
	c.mu.Unlock()
}

func (m *MemoryStore) counter(templateID uint) *memoryCounter {
	c, _ := m.counters.LoadOrStore(templateID, &memoryCounter{})
	return c.(*memoryCounter)
}

func (m *MemoryStore) Increment(ctx context.Context, templateID uint) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c := m.counter(templateID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last, nil
}

func (m *MemoryStore) Backend() string { return "memory" }
