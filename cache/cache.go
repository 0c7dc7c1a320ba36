// Package cache provides a small generic LRU wrapper instrumented with
// Prometheus hit/miss counters, in the style prysm's beacon-chain cache
// package wires hashicorp/golang-lru against promauto.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// hitsVec and missVec are registered once at package load and labeled by
// cache name, rather than created per instance: constructing several
// Sized caches (including same-named ones across tests) never triggers a
// duplicate-registration panic.
var (
	hitsVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_cache_hit_total",
		Help: "Number of cache hits, labeled by cache name.",
	}, []string{"cache"})
	missVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_cache_miss_total",
		Help: "Number of cache misses, labeled by cache name.",
	}, []string{"cache"})
)

// Sized is a fixed-capacity LRU cache reporting hit/miss counts under a
// caller-supplied name label.
type Sized[K comparable, V any] struct {
	inner *lru.Cache[K, V]
	hits  prometheus.Counter
	miss  prometheus.Counter
}

// NewSized creates a Sized cache holding at most size entries. name labels
// the exported hit/miss metrics; constructing multiple Sized caches under
// the same name shares one pair of counters for that label, which is the
// expected behavior rather than an error.
func NewSized[K comparable, V any](name string, size int) (*Sized[K, V], error) {
	return NewSizedWithRegisterer[K, V](name, size, prometheus.DefaultRegisterer)
}

// NewSizedWithRegisterer is like NewSized but registers the hit/miss
// counter vectors against reg instead of the global default registerer,
// letting callers (tests, mainly) use an isolated prometheus.NewRegistry()
// to avoid polluting process-wide metrics.
func NewSizedWithRegisterer[K comparable, V any](name string, size int, reg prometheus.Registerer) (*Sized[K, V], error) {
	inner, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}

	hits, miss := hitsVec, missVec
	if reg != prometheus.DefaultRegisterer {
		factory := promauto.With(reg)
		hits = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_cache_hit_total",
			Help: "Number of cache hits, labeled by cache name.",
		}, []string{"cache"})
		miss = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_cache_miss_total",
			Help: "Number of cache misses, labeled by cache name.",
		}, []string{"cache"})
	}

	return &Sized[K, V]{
		inner: inner,
		hits:  hits.WithLabelValues(name),
		miss:  miss.WithLabelValues(name),
	}, nil
}

// Get returns the cached value for key, recording a hit or miss.
func (c *Sized[K, V]) Get(key K) (V, bool) {
	v, ok := c.inner.Get(key)
	if ok {
		c.hits.Inc()
	} else {
		c.miss.Inc()
	}
	return v, ok
}

// Peek is like Get but does not count towards the hit/miss metrics or
// affect recency.
func (c *Sized[K, V]) Peek(key K) (V, bool) {
	return c.inner.Peek(key)
}

// Add inserts or updates key's value, evicting the least recently used
// entry if the cache is at capacity. It reports whether an eviction
// occurred.
func (c *Sized[K, V]) Add(key K, value V) bool {
	return c.inner.Add(key, value)
}

// Remove deletes key from the cache, if present.
func (c *Sized[K, V]) Remove(key K) {
	c.inner.Remove(key)
}

// Contains reports whether key is present without affecting recency or
// hit/miss metrics.
func (c *Sized[K, V]) Contains(key K) bool {
	return c.inner.Contains(key)
}

// Len returns the number of entries currently cached.
func (c *Sized[K, V]) Len() int {
	return c.inner.Len()
}

// Purge removes all entries.
func (c *Sized[K, V]) Purge() {
	c.inner.Purge()
}
