package tinyterrain

import (
	"container/list"
	"sync"

	"github.com/oriumgames/tinyterrain/format"
)

// cacheEntry pairs a decoded chunk with its coordinate so evictees can be
// written back to their own record.
type cacheEntry struct {
	pos   format.ChunkCoord
	chunk *format.Chunk
}

// chunkCache is a fixed-capacity LRU of decoded chunks. The most recently
// used entry sits at the front of the order list; inserting beyond capacity
// evicts the tail and hands it back to the caller for write-back.
type chunkCache struct {
	// mu guards both the map and the order list. Get takes the writer side
	// too: a hit moves the entry to the front, and that reorder would race
	// under a shared read lock.
	mu       sync.RWMutex
	capacity int
	order    *list.List
	index    map[format.ChunkCoord]*list.Element
}

// newChunkCache creates an empty cache holding at most capacity chunks.
func newChunkCache(capacity int) *chunkCache {
	return &chunkCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[format.ChunkCoord]*list.Element, capacity),
	}
}

// Get returns the cached chunk at pos, marking it most recently used.
func (c *chunkCache) Get(pos format.ChunkCoord) (*format.Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[pos]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(cacheEntry).chunk, true
}

// Put inserts or replaces the chunk at pos, marking it most recently used.
// If the insertion pushed the cache past capacity, the least recently used
// entry is removed and returned for write-back.
func (c *chunkCache) Put(pos format.ChunkCoord, chunk *format.Chunk) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[pos]; ok {
		el.Value = cacheEntry{pos: pos, chunk: chunk}
		c.order.MoveToFront(el)
		return cacheEntry{}, false
	}

	c.index[pos] = c.order.PushFront(cacheEntry{pos: pos, chunk: chunk})
	if c.order.Len() <= c.capacity {
		return cacheEntry{}, false
	}

	tail := c.order.Back()
	c.order.Remove(tail)
	evicted := tail.Value.(cacheEntry)
	delete(c.index, evicted.pos)
	return evicted, true
}

// Entries returns a snapshot of the cache contents in MRU-to-LRU order.
// Used on shutdown to flush every resident chunk.
func (c *chunkCache) Entries() []cacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]cacheEntry, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		entries = append(entries, el.Value.(cacheEntry))
	}
	return entries
}

// Len returns the number of cached chunks.
func (c *chunkCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
