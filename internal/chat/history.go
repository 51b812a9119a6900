package chat

import (
	"fmt"
	"sync"
)

// History keeps every displayed record, newest first.
// It never evicts: only a screenful is rendered at a time.
type History struct {
	records []fmt.Stringer
	mu      sync.RWMutex
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{}
}

// Prepend inserts r as the newest record.
func (h *History) Prepend(r fmt.Stringer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, nil)
	copy(h.records[1:], h.records)
	h.records[0] = r
}

// Snapshot returns a copy of the records, newest first.
func (h *History) Snapshot() []fmt.Stringer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]fmt.Stringer, len(h.records))
	copy(out, h.records)
	return out
}

// Len returns number of records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}
