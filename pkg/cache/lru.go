package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultLRUSize is used when LRUOptions.Max is not positive.
const DefaultLRUSize = 500

// LRUOptions configures an LRU.
type LRUOptions struct {
	// Max is the maximum number of entries. Inserting beyond it evicts the
	// least recently used entry.
	Max int

	// TTL, when positive, expires an entry that long after its last Set.
	// Expiry is lazy: an expired entry is removed when Get or Has touches it.
	TTL time.Duration
}

// LRU is a bounded key/value cache with least-recently-used eviction.
//
// A map indexes the elements of a doubly linked list ordered from most to
// least recently used, so Get, Set and eviction are O(1). LRU is safe for
// concurrent use.
type LRU[K comparable, V any] struct {
	mu    sync.Mutex
	max   int
	ttl   time.Duration
	ll    *list.List
	items map[K]*list.Element
	now   func() time.Time
}

type lruEntry[K comparable, V any] struct {
	key     K
	value   V
	written time.Time
}

// NewLRU creates an empty LRU.
func NewLRU[K comparable, V any](opts LRUOptions) *LRU[K, V] {
	if opts.Max <= 0 {
		opts.Max = DefaultLRUSize
	}
	return &LRU[K, V]{
		max:   opts.Max,
		ttl:   opts.TTL,
		ll:    list.New(),
		items: make(map[K]*list.Element),
		now:   time.Now,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.live(key)
	if !ok {
		var zero V
		return zero, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).value, true
}

// Has reports whether key is present and not expired. It does not change
// the recency order.
func (c *LRU[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.live(key)
	return ok
}

// Set stores value under key, marks it most recently used and resets its TTL.
// If the cache is full, the least recently used entry is evicted.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*lruEntry[K, V])
		e.value = value
		e.written = c.now()
		c.ll.MoveToFront(el)
		return
	}

	c.items[key] = c.ll.PushFront(&lruEntry[K, V]{key: key, value: value, written: c.now()})
	for c.ll.Len() > c.max {
		c.removeElement(c.ll.Back())
	}
}

// Delete removes key and reports whether it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok {
		c.removeElement(el)
	}
	return ok
}

// Len returns the number of stored entries, including expired entries that
// have not been touched since they expired.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Clear removes all entries.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

// Values returns live values ordered from most to least recently used.
// Expired entries found along the way are removed.
func (c *LRU[K, V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]V, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*lruEntry[K, V])
		if c.expired(e) {
			c.removeElement(el)
		} else {
			out = append(out, e.value)
		}
		el = next
	}
	return out
}

// Keys returns live keys ordered from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]K, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		if e := el.Value.(*lruEntry[K, V]); !c.expired(e) {
			out = append(out, e.key)
		}
	}
	return out
}

func (c *LRU[K, V]) live(key K) (*list.Element, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.expired(el.Value.(*lruEntry[K, V])) {
		c.removeElement(el)
		return nil, false
	}
	return el, true
}

func (c *LRU[K, V]) expired(e *lruEntry[K, V]) bool {
	return c.ttl > 0 && c.now().Sub(e.written) > c.ttl
}

func (c *LRU[K, V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruEntry[K, V]).key)
}
