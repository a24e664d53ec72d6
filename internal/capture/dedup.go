package capture

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Deduplicator tracks exchange IDs already ingested by the live feed, using
// a Bloom filter fronting an exact set.
type Deduplicator struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	count  int
}

// NewDeduplicator creates a deduplicator sized for the estimated number of
// exchanges in a capture run.
func NewDeduplicator(estimatedItems int) *Deduplicator {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &Deduplicator{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// Add records an exchange ID.
func (d *Deduplicator) Add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.exact[id]; !exists {
		d.filter.AddString(id)
		d.exact[id] = struct{}{}
		d.count++
	}
}

// HasSeen reports whether an exchange ID was already ingested.
func (d *Deduplicator) HasSeen(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// Bloom miss is definitive; a hit still needs the exact check.
	if !d.filter.TestString(id) {
		return false
	}
	_, exists := d.exact[id]
	return exists
}

// Count returns the number of unique IDs seen.
func (d *Deduplicator) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}

// Reset clears the deduplicator.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.filter.ClearAll()
	d.exact = make(map[string]struct{})
	d.count = 0
}
