package pipeline

import "sync"

// ResultCache is a thread-safe LRU of completed run results.
type ResultCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[RunKey]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   RunKey
	value Result
	prev  *entry
	next  *entry
}

// NewResultCache creates a cache holding at most maxEntries results.
func NewResultCache(maxEntries int) *ResultCache {
	return &ResultCache{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[RunKey]*entry),
	}
}

// Get returns a copy of the cached result for key and marks it recently used.
func (c *ResultCache) Get(key RunKey) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	c.moveToFront(e)
	return e.value.Clone(), true
}

// Put stores a copy of value, evicting the least recently used result when full.
func (c *ResultCache) Put(key RunKey, value Result) {
	value = value.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// Len returns the number of cached results.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *ResultCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *ResultCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *ResultCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
