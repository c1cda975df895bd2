package bufmgr

import (
	"container/list"
	"sync"

	"pageengine/storage/page"
)

// pageCache is a least-recently-used cache of page images keyed by block
// location, specialized to the buffer manager's one key/value pair since
// nothing else in this module needs a generic cache.
type pageCache struct {
	mu       sync.Mutex
	capacity int
	items    map[page.BlockLocation]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key   page.BlockLocation
	value *page.Page
}

func newPageCache(capacity int) *pageCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &pageCache{
		capacity: capacity,
		items:    make(map[page.BlockLocation]*list.Element),
		order:    list.New(),
	}
}

func (c *pageCache) get(key page.BlockLocation) (*page.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *pageCache) put(key page.BlockLocation, value *page.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.capacity {
		back := c.order.Back()
		if back != nil {
			evicted := back.Value.(*cacheEntry)
			delete(c.items, evicted.key)
			c.order.Remove(back)
		}
	}

	el := c.order.PushFront(&cacheEntry{key: key, value: value})
	c.items[key] = el
}

func (c *pageCache) remove(key page.BlockLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}
