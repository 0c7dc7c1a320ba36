package routing

import (
	"container/list"
	"time"

	"github.com/overlaymesh/routingcore/clock"
	"github.com/overlaymesh/routingcore/peerid"
)

// routeBackEntry pairs a request fingerprint with the peer that forwarded
// it to us and the time we recorded it.
type routeBackEntry struct {
	hash       [32]byte
	peer       peerid.ID
	insertedAt time.Time
}

// routeBackCache is a bounded, time-evicting map from request hash to the
// peer that forwarded the request, so a later reply can be sent back the
// way it came. Eviction runs in batches, driven off insertion order
// (oldest entries are always at the front of the list), rather than a
// background sweep goroutine.
type routeBackCache struct {
	clock       clock.Clock
	capacity    int
	evictAfter  time.Duration
	removeBatch int

	order  *list.List
	byHash map[[32]byte]*list.Element
}

func newRouteBackCache(c clock.Clock, capacity int, evictAfter time.Duration, removeBatch int) *routeBackCache {
	return &routeBackCache{
		clock:       c,
		capacity:    capacity,
		evictAfter:  evictAfter,
		removeBatch: removeBatch,
		order:       list.New(),
		byHash:      make(map[[32]byte]*list.Element),
	}
}

// insert records that hash arrived via peer, evicting stale entries (and,
// if still over capacity, the oldest entries) first.
func (c *routeBackCache) insert(hash [32]byte, peer peerid.ID) {
	now := c.clock.Now()
	c.evictStale(now)

	if existing, ok := c.byHash[hash]; ok {
		c.order.Remove(existing)
	}

	entry := &routeBackEntry{hash: hash, peer: peer, insertedAt: now}
	elem := c.order.PushBack(entry)
	c.byHash[hash] = elem

	c.evictOverCapacity()
}

// evictStale removes entries older than evictAfter, in batches capped to
// removeBatch. Because order is insertion-ordered, the oldest entries are
// always at the front.
func (c *routeBackCache) evictStale(now time.Time) {
	removed := 0
	for removed < c.removeBatch {
		front := c.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(*routeBackEntry)
		if now.Sub(entry.insertedAt) < c.evictAfter {
			return
		}
		c.order.Remove(front)
		delete(c.byHash, entry.hash)
		removed++
	}
}

// evictOverCapacity removes the oldest entries until size <= capacity.
func (c *routeBackCache) evictOverCapacity() {
	for c.order.Len() > c.capacity {
		front := c.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(*routeBackEntry)
		c.order.Remove(front)
		delete(c.byHash, entry.hash)
	}
}

// get performs a non-destructive lookup.
func (c *routeBackCache) get(hash [32]byte) (peerid.ID, bool) {
	elem, ok := c.byHash[hash]
	if !ok {
		return "", false
	}
	return elem.Value.(*routeBackEntry).peer, true
}

// remove looks up and deletes hash's entry in one step.
func (c *routeBackCache) remove(hash [32]byte) (peerid.ID, bool) {
	elem, ok := c.byHash[hash]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*routeBackEntry)
	c.order.Remove(elem)
	delete(c.byHash, hash)
	return entry.peer, true
}

func (c *routeBackCache) len() int {
	return c.order.Len()
}
