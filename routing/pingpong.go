package routing

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/overlaymesh/routingcore/clock"
	"github.com/overlaymesh/routingcore/peerid"
)

// Ping is a liveness/RTT probe sent to a peer.
type Ping struct {
	Source peerid.ID
	Nonce  uint64
}

// Pong is the reply to a Ping, echoing its source and nonce.
type Pong struct {
	Source peerid.ID
	Nonce  uint64
}

const perTargetPingCacheSize = 10

// tally counts how many times a given nonce value has been observed,
// alongside the most recently seen record of type T (Ping or Pong).
type tally[T any] struct {
	count int
	last  T
}

// PingPong tracks outstanding pings (for RTT measurement) and tallies of
// observed ping/pong nonces. All four of its per-peer/per-nonce
// structures are bounded LRUs sized off DefaultPingPongCacheSize, so a
// node that hears from unboundedly many peers over its lifetime can't
// grow this tracker without bound.
type PingPong struct {
	clock clock.Clock

	waitingPong *lru.Cache[peerid.ID, *lru.Cache[uint64, time.Time]]

	pingNonceTally *lru.Cache[uint64, tally[Ping]]
	pongNonceTally *lru.Cache[uint64, tally[Pong]]

	nextNonce *lru.Cache[peerid.ID, uint64]
}

// NewPingPong builds an empty PingPong tracker driven by c.
func NewPingPong(c clock.Clock) (*PingPong, error) {
	waitingPong, err := lru.New[peerid.ID, *lru.Cache[uint64, time.Time]](DefaultPingPongCacheSize)
	if err != nil {
		return nil, err
	}
	pingTally, err := lru.New[uint64, tally[Ping]](DefaultPingPongCacheSize)
	if err != nil {
		return nil, err
	}
	pongTally, err := lru.New[uint64, tally[Pong]](DefaultPingPongCacheSize)
	if err != nil {
		return nil, err
	}
	nextNonce, err := lru.New[peerid.ID, uint64](DefaultPingPongCacheSize)
	if err != nil {
		return nil, err
	}
	return &PingPong{
		clock:          c,
		waitingPong:    waitingPong,
		pingNonceTally: pingTally,
		pongNonceTally: pongTally,
		nextNonce:      nextNonce,
	}, nil
}

func (p *PingPong) targetCache(target peerid.ID) *lru.Cache[uint64, time.Time] {
	c, ok := p.waitingPong.Get(target)
	if !ok {
		c, _ = lru.New[uint64, time.Time](perTargetPingCacheSize)
		p.waitingPong.Add(target, c)
	}
	return c
}

// RecordSentPing stamps the current time for a ping sent to target under
// nonce, in a small per-target cache.
func (p *PingPong) RecordSentPing(target peerid.ID, nonce uint64) {
	p.targetCache(target).Add(nonce, p.clock.Now())
}

// RecordPong resolves pong against the matching outstanding ping, if any,
// and returns the elapsed round-trip time. It also tallies pong.Nonce
// regardless of whether a matching ping was found.
func (p *PingPong) RecordPong(pong Pong) (time.Duration, bool) {
	tallyNonce(p.pongNonceTally, pong.Nonce, pong)

	c, ok := p.waitingPong.Get(pong.Source)
	if !ok {
		return 0, false
	}
	sentAt, ok := c.Get(pong.Nonce)
	if !ok {
		return 0, false
	}
	c.Remove(pong.Nonce)
	return p.clock.Now().Sub(sentAt), true
}

// RecordPing tallies an observed inbound ping's nonce.
func (p *PingPong) RecordPing(ping Ping) {
	tallyNonce(p.pingNonceTally, ping.Nonce, ping)
}

func tallyNonce[T any](c *lru.Cache[uint64, tally[T]], nonce uint64, record T) {
	t, _ := c.Get(nonce)
	t.count++
	t.last = record
	c.Add(nonce, t)
}

// NextPingNonce returns the next nonce to use for a ping to peer,
// starting at 0 and incrementing on every call.
func (p *PingPong) NextPingNonce(peer peerid.ID) uint64 {
	n, _ := p.nextNonce.Get(peer)
	p.nextNonce.Add(peer, n+1)
	return n
}
