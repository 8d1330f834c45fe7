// Package cache provides the in-memory response cache.
//
// Completed responses are stored by request fingerprint with a TTL and a
// capacity bound. Expiry is enforced lazily on Get and actively by a
// periodic sweep; eviction is least-recently-used. The cache performs no
// deduplication of outstanding upstream calls — that is the dispatcher's
// job — it only persists completed results.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/textflow/types"
)

// Entry is a completed response stored in the cache.
type Entry struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Config configures the response cache.
type Config struct {
	// MaxSize is the entry capacity; the least-recently-used entry is
	// evicted when it is exceeded.
	MaxSize int
	// TTL is the time-to-live applied on Put.
	TTL time.Duration
	// SweepInterval is the period of the active expiry sweep.
	// Zero disables the sweep; lazy expiry on Get still applies.
	SweepInterval time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:       1000,
		TTL:           time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

// ResponseCache is a fingerprint-keyed LRU cache with TTL expiry.
// All operations are safe for concurrent use.
type ResponseCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[types.Fingerprint]*lruNode
	head     *lruNode // most recently used
	tail     *lruNode // least recently used

	hits   atomic.Int64
	misses atomic.Int64

	logger *zap.Logger
	stopCh chan struct{}
	closed atomic.Bool
}

type lruNode struct {
	key   types.Fingerprint
	entry Entry
	prev  *lruNode
	next  *lruNode
}

// New creates a response cache and starts the expiry sweep if configured.
func New(cfg Config, logger *zap.Logger) *ResponseCache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}

	c := &ResponseCache{
		capacity: cfg.MaxSize,
		ttl:      cfg.TTL,
		items:    make(map[types.Fingerprint]*lruNode),
		logger:   logger.With(zap.String("component", "cache")),
		stopCh:   make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop(cfg.SweepInterval)
	}

	return c
}

// Get returns the cached text for a fingerprint. An expired entry is
// never served, even if the sweep has not removed it yet.
func (c *ResponseCache) Get(fp types.Fingerprint) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[fp]
	if !ok {
		c.misses.Add(1)
		return "", false
	}

	if time.Now().After(node.entry.ExpiresAt) {
		c.removeNode(node)
		delete(c.items, fp)
		c.misses.Add(1)
		return "", false
	}

	c.moveToHead(node)
	c.hits.Add(1)
	return node.entry.Text, true
}

// Put stores a completed response with expiresAt = now + TTL, evicting
// the least-recently-used entry if capacity is exceeded.
func (c *ResponseCache) Put(fp types.Fingerprint, text string) {
	now := time.Now()
	entry := Entry{
		Text:      text,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[fp]; ok {
		node.entry = entry
		c.moveToHead(node)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &lruNode{key: fp, entry: entry}
	c.items[fp] = node
	c.addToHead(node)
}

// Delete removes an entry.
func (c *ResponseCache) Delete(fp types.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[fp]; ok {
		c.removeNode(node)
		delete(c.items, fp)
	}
}

// Clear removes all entries.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[types.Fingerprint]*lruNode)
	c.head = nil
	c.tail = nil
}

// Len returns the current entry count.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns hit/miss counters and the current size.
func (c *ResponseCache) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	size = len(c.items)
	c.mu.Unlock()
	return c.hits.Load(), c.misses.Load(), size
}

// Close stops the expiry sweep.
func (c *ResponseCache) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.stopCh)
}

func (c *ResponseCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// sweep removes all expired entries. The sweep is a performance tunable
// only; correctness is carried by the expiry check in Get.
func (c *ResponseCache) sweep() {
	c.mu.Lock()
	now := time.Now()
	expired := 0
	for key, node := range c.items {
		if now.After(node.entry.ExpiresAt) {
			c.removeNode(node)
			delete(c.items, key)
			expired++
		}
	}
	remaining := len(c.items)
	c.mu.Unlock()

	if expired > 0 {
		c.logger.Debug("swept expired cache entries",
			zap.Int("expired", expired),
			zap.Int("remaining", remaining))
	}
}

// addToHead adds a node at the head. O(1).
func (c *ResponseCache) addToHead(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

// removeNode unlinks a node. O(1).
func (c *ResponseCache) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

// moveToHead marks a node as most recently used. O(1).
func (c *ResponseCache) moveToHead(node *lruNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

// evictTail drops the least-recently-used node. O(1).
func (c *ResponseCache) evictTail() {
	if c.tail == nil {
		return
	}
	c.logger.Debug("evicting least-recently-used entry",
		zap.String("fingerprint", string(c.tail.key)))
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
}
