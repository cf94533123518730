// Package slicecache is a bounded, process-local LRU of encoded slice payloads.
package slicecache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/xtxerr/seiscube/internal/payload"
)

// Key identifies a slice of one cube.
type Key struct {
	CubeID string
	Axis   string
	Index  int
}

// String returns "axis_index", the form used in durable keys.
func (k Key) String() string {
	return fmt.Sprintf("%s_%d", k.Axis, k.Index)
}

// Entry is a cached slice. JSON and Gzip are the pre-encoded payload; Doc is
// the decoded document, kept for callers that need the values.
type Entry struct {
	Key  Key
	JSON []byte
	Gzip []byte
	Doc  *payload.SliceDoc
}

// Size returns the bytes held by the encoded payloads.
func (e *Entry) Size() int {
	return len(e.JSON) + len(e.Gzip)
}

// Stats holds cache counters.
type Stats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Bytes     int64  `json:"bytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Purged    uint64 `json:"purged"`
}

// Cache is a mutex-guarded LRU keyed by Key. The most recently used entry is
// at the front of the list.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[Key]*list.Element
	order    *list.List
	bytes    int64

	hits      uint64
	misses    uint64
	evictions uint64
	purged    uint64
}

// New creates a cache holding at most capacity entries. A capacity below 1
// is treated as 1.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[Key]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the entry for key and marks it most recently used.
func (c *Cache) Get(key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return elem.Value.(*Entry), true
}

// Set inserts or replaces the entry for key, marks it most recently used and
// evicts least recently used entries while over capacity.
func (c *Cache) Set(key Key, entry *Entry) {
	entry.Key = key

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		old := elem.Value.(*Entry)
		c.bytes += int64(entry.Size() - old.Size())
		elem.Value = entry
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(entry)
	c.bytes += int64(entry.Size())

	for c.order.Len() > c.capacity {
		c.removeElement(c.order.Back())
		c.evictions++
	}
}

// Contains reports whether key is cached without touching recency.
func (c *Cache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Remove drops one entry.
func (c *Cache) Remove(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// PurgeCube drops every entry of one cube and returns how many were removed.
func (c *Cache) PurgeCube(cubeID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if elem.Value.(*Entry).Key.CubeID == cubeID {
			c.removeElement(elem)
			n++
		}
		elem = next
	}
	c.purged += uint64(n)
	return n
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purged += uint64(c.order.Len())
	c.items = make(map[Key]*list.Element, c.capacity)
	c.order.Init()
	c.bytes = 0
}

// Keys returns the cached keys from most to least recently used.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*Entry).Key)
	}
	return keys
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Capacity returns the configured capacity.
func (c *Cache) Capacity() int { return c.capacity }

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.order.Len(),
		Capacity:  c.capacity,
		Bytes:     c.bytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Purged:    c.purged,
	}
}

// removeElement must be called with mu held.
func (c *Cache) removeElement(elem *list.Element) {
	entry := elem.Value.(*Entry)
	c.order.Remove(elem)
	delete(c.items, entry.Key)
	c.bytes -= int64(entry.Size())
}
