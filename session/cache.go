package session

import (
	"slices"
	"sync"

	"github.com/parleyhq/parley/types"
)

// MemoryCache is a process-local Cache. Good enough for single-process
// clients and tests; anything else can bring its own implementation.
type MemoryCache struct {
	mu        sync.RWMutex
	snapshots map[string][]types.Message
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		snapshots: make(map[string][]types.Message),
	}
}

func (c *MemoryCache) Load(conversationID string) ([]types.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs, ok := c.snapshots[conversationID]
	if !ok {
		return nil, false
	}

	return slices.Clone(msgs), true
}

func (c *MemoryCache) Store(conversationID string, msgs []types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots[conversationID] = slices.Clone(msgs)
}
