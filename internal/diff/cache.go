package diff

import (
	"container/list"
	"strings"
	"sync"

	"github.com/randalmurphal/wtsync/internal/model"
)

// Cache is an LRU cache of diff summaries keyed by resolved commit pairs.
// Entries never go stale because commits are immutable; eviction is purely
// by capacity.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key   string
	value model.DiffSummary
}

// NewCache creates a new LRU cache with the given capacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get retrieves an item from the cache.
func (c *Cache) Get(key string) (model.DiffSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return copySummary(el.Value.(*cacheEntry).value), true
	}
	return model.DiffSummary{}, false
}

// Set adds an item to the cache.
// If the key already exists, the value is updated and moved to front.
func (c *Cache) Set(key string, value model.DiffSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	valueCopy := copySummary(value)

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).value = valueCopy
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}

	c.items[key] = c.order.PushFront(&cacheEntry{key: key, value: valueCopy})
}

// Invalidate removes all entries whose key starts with prefix.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(el)
			delete(c.items, key)
		}
	}
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order = list.New()
}

// Len returns the number of items in the cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func copySummary(s model.DiffSummary) model.DiffSummary {
	s.Files = append([]model.FileDiff(nil), s.Files...)
	if s.Files == nil {
		s.Files = []model.FileDiff{}
	}
	return s
}
