package perks

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	"github.com/dwellcare/billing/pkg/subscription"
)

const defaultCacheSize = 1024

type cacheEntry struct {
	key   uuid.UUID
	usage *subscription.PerkUsage
}

// usageCache is a small LRU in front of the perk usage store. It is never
// the source of truth: every write path invalidates the subscriber's entry
// before returning.
type usageCache struct {
	capacity int
	items    map[uuid.UUID]*list.Element
	eviction *list.List
	mu       sync.Mutex
}

func newUsageCache(capacity int) *usageCache {
	if capacity <= 0 {
		capacity = defaultCacheSize
	}
	return &usageCache{
		capacity: capacity,
		items:    make(map[uuid.UUID]*list.Element),
		eviction: list.New(),
	}
}

func (c *usageCache) get(key uuid.UUID) (*subscription.PerkUsage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.eviction.MoveToFront(elem)
	return elem.Value.(*cacheEntry).usage, true
}

func (c *usageCache) put(key uuid.UUID, usage *subscription.PerkUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		elem.Value.(*cacheEntry).usage = usage
		return
	}

	elem := c.eviction.PushFront(&cacheEntry{key: key, usage: usage})
	c.items[key] = elem

	if c.eviction.Len() > c.capacity {
		oldest := c.eviction.Back()
		if oldest != nil {
			c.eviction.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *usageCache) invalidate(key uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.eviction.Remove(elem)
		delete(c.items, key)
	}
}
