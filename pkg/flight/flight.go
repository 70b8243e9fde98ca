// Package flight memoizes expensive keyed work and coalesces concurrent
// requests for the same key into a single call.
package flight

import (
	"sync"
	"time"
	"weak"
)

// Cache holds results strongly for the ttl and weakly afterwards, so an
// expired value is reused until the garbage collector reclaims it.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	finished map[K]*entry[V]
	pending  map[K]*call[V]
	work     func(K) (V, error)
	ttl      time.Duration
	now      func() time.Time
}

type entry[V any] struct {
	weak     weak.Pointer[V]
	strong   *V
	deadline time.Time
}

type call[V any] struct {
	val  V
	err  error
	done chan struct{}
}

// New returns a cache computing misses with work. A ttl <= 0 keeps results
// until they are forgotten.
func New[K comparable, V any](ttl time.Duration, work func(K) (V, error)) *Cache[K, V] {
	return &Cache[K, V]{
		finished: make(map[K]*entry[V]),
		pending:  make(map[K]*call[V]),
		work:     work,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the cached value for k or computes it. Callers asking for a
// key already in flight wait for that call. Errors are not cached.
func (c *Cache[K, V]) Get(k K) (V, error) {
	c.mu.Lock()
	if v, ok := c.lookup(k); ok {
		c.mu.Unlock()
		return v, nil
	}
	if p, ok := c.pending[k]; ok {
		c.mu.Unlock()
		<-p.done
		return p.val, p.err
	}
	p := &call[V]{done: make(chan struct{})}
	c.pending[k] = p
	c.mu.Unlock()

	p.val, p.err = c.work(k)

	c.mu.Lock()
	// A Forget during the call drops the pending marker; the result is then
	// returned but not stored.
	if c.pending[k] == p {
		delete(c.pending, k)
		if p.err == nil {
			c.store(k, p.val)
		}
	}
	c.mu.Unlock()
	close(p.done)
	return p.val, p.err
}

// Forget drops every key matching fn, including calls still in flight.
func (c *Cache[K, V]) Forget(fn func(K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.finished {
		if fn(k) {
			delete(c.finished, k)
		}
	}
	for k := range c.pending {
		if fn(k) {
			delete(c.pending, k)
		}
	}
}

// Len counts stored entries, including weak ones not yet collected.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.finished)
}

func (c *Cache[K, V]) lookup(k K) (V, bool) {
	var zero V
	e, ok := c.finished[k]
	if !ok {
		return zero, false
	}
	if e.strong != nil && !e.deadline.IsZero() && c.now().After(e.deadline) {
		e.strong = nil
	}
	vp := e.weak.Value()
	if vp == nil {
		delete(c.finished, k)
		return zero, false
	}
	return *vp, true
}

func (c *Cache[K, V]) store(k K, val V) {
	v := new(V)
	*v = val
	e := &entry[V]{weak: weak.Make(v), strong: v}
	if c.ttl > 0 {
		e.deadline = c.now().Add(c.ttl)
	}
	c.finished[k] = e
}
