package nn

import (
	"github.com/google/uuid"

	"github.com/LiorZ/BoltzDesign1/tensor"
)

// Cache is the score model's inference cache for one sampling run. The
// sampler creates it empty, passes it to every evaluation of the run and
// drops it when the run returns; it is never shared between runs.
//
// A nil *Cache is valid and behaves as a disabled, always-empty cache.
type Cache struct {
	RunID   uuid.UUID
	entries map[string]*tensor.Tensor
}

// NewCache returns an empty cache tagged with a fresh run id.
func NewCache() *Cache {
	return &Cache{
		RunID:   uuid.New(),
		entries: make(map[string]*tensor.Tensor),
	}
}

// Get returns the entry stored under key.
func (c *Cache) Get(key string) (*tensor.Tensor, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.entries[key]
	return v, ok
}

// Set stores v under key. It is a no-op on a nil cache.
func (c *Cache) Set(key string, v *tensor.Tensor) {
	if c == nil {
		return
	}
	c.entries[key] = v
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Empty reports whether the model still has to populate the cache.
func (c *Cache) Empty() bool {
	return c.Len() == 0
}
