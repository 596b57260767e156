// -----------------------------------------------------------------------
// Observation buffer - append from the CDP event goroutine, drain from the runner
// -----------------------------------------------------------------------

package observe

import (
	"sync"

	"github.com/ternarybob/vigil/internal/models"
)

// Buffer is an append-only queue of observations with a consuming Drain.
// Append and Drain may be called from different goroutines; no entry is lost or returned twice.
type Buffer struct {
	mu    sync.Mutex
	items []models.Observation
}

// NewBuffer creates an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{items: make([]models.Observation, 0, 64)}
}

// Append adds an observation at the tail
func (b *Buffer) Append(obs models.Observation) {
	b.mu.Lock()
	b.items = append(b.items, obs)
	b.mu.Unlock()
}

// Drain returns all buffered observations in append order and empties the buffer
func (b *Buffer) Drain() []models.Observation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	out := b.items
	b.items = make([]models.Observation, 0, cap(out))
	return out
}
