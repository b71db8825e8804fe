package cache

import (
	"sync"
	"time"
)

// Item represents a cached item with expiration
type Item struct {
	Value      interface{}
	Expiration int64
	Inserted   int64
}

func (i Item) expired(now int64) bool {
	return i.Expiration > 0 && now > i.Expiration
}

// Cache is an in-memory TTL cache with a size cap and a janitor goroutine
type Cache struct {
	items           map[string]Item
	mu              sync.RWMutex
	maxSize         int
	cleanupInterval time.Duration
	stopJanitor     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// New creates a new cache with the given configuration
func New(config Config) *Cache {
	cache := &Cache{
		items:           make(map[string]Item),
		maxSize:         config.MaxCacheSize,
		cleanupInterval: config.CleanupInterval,
		stopJanitor:     make(chan struct{}),
		now:             time.Now,
	}

	go cache.janitor()

	return cache
}

// Set adds an item to the cache with the given expiration duration.
// A non-positive duration never expires.
func (c *Cache) Set(key string, value interface{}, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	var expiration int64
	if duration > 0 {
		expiration = now + int64(duration)
	}

	c.items[key] = Item{
		Value:      value,
		Expiration: expiration,
		Inserted:   now,
	}

	if c.maxSize > 0 && len(c.items) > c.maxSize {
		c.evict(now)
	}
}

// evict drops expired items first, then the earliest inserted one
func (c *Cache) evict(now int64) {
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
	if len(c.items) <= c.maxSize {
		return
	}

	var oldestKey string
	var oldest int64
	for key, item := range c.items {
		if oldestKey == "" || item.Inserted < oldest {
			oldestKey = key
			oldest = item.Inserted
		}
	}
	delete(c.items, oldestKey)
}

// Get retrieves an item from the cache
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.expired(c.now().UnixNano()) {
		return nil, false
	}
	return item.Value, true
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Len returns the number of stored items, expired ones included
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]Item)
}

func (c *Cache) janitor() {
	interval := c.cleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopJanitor:
			return
		}
	}
}

// Stop stops the janitor goroutine. It is safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopJanitor)
	})
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
}
