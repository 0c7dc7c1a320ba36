// Package routing implements the routing table: forwarding table
// maintenance over a Graph, round-robin next-hop selection, route-back
// correlation, account announcements, and edge-log compaction, all owned
// by a single-threaded actor (Engine).
package routing

import (
	"crypto/sha256"
	"sort"
	"time"

	"github.com/overlaymesh/routingcore/cache"
	"github.com/overlaymesh/routingcore/clock"
	"github.com/overlaymesh/routingcore/edge"
	"github.com/overlaymesh/routingcore/graph"
	"github.com/overlaymesh/routingcore/peerid"
)

// Config tunes an Engine's bounded caches and timers. A zero-valued field
// falls back to the package's Default* constant.
type Config struct {
	RouteBackCacheSize                  int
	RouteBackEvictTimeout               time.Duration
	RouteBackRemoveBatch                int
	RoundRobinNonceCacheSize            int
	RoundRobinMaxNonceDifferenceAllowed uint64
	AnnounceAccountCacheSize            int
	SavePeersMaxTime                    time.Duration
}

func (c Config) withDefaults() Config {
	if c.RouteBackCacheSize == 0 {
		c.RouteBackCacheSize = DefaultRouteBackCacheSize
	}
	if c.RouteBackEvictTimeout == 0 {
		c.RouteBackEvictTimeout = DefaultRouteBackEvictTimeout
	}
	if c.RouteBackRemoveBatch == 0 {
		c.RouteBackRemoveBatch = DefaultRouteBackRemoveBatch
	}
	if c.RoundRobinNonceCacheSize == 0 {
		c.RoundRobinNonceCacheSize = DefaultRoundRobinNonceCacheSize
	}
	if c.RoundRobinMaxNonceDifferenceAllowed == 0 {
		c.RoundRobinMaxNonceDifferenceAllowed = DefaultRoundRobinMaxNonceDifferenceAllowed
	}
	if c.AnnounceAccountCacheSize == 0 {
		c.AnnounceAccountCacheSize = DefaultAnnounceAccountCacheSize
	}
	if c.SavePeersMaxTime == 0 {
		c.SavePeersMaxTime = DefaultSavePeersMaxTime
	}
	return c
}

// Engine owns the Graph, EdgeLog, Compactor, and forwarding table, and
// serializes every mutation through a single goroutine draining an inbox
// of closures submitted by its public methods. This is the standard
// single-owner-goroutine actor shape: callers never touch engine state
// directly, so none of it needs its own lock.
type Engine struct {
	source peerid.ID
	clock  clock.Clock

	graph     *graph.Graph
	edgeLog   *edgeLog
	compactor *Compactor
	routeBack *routeBackCache
	routeNonce *cache.Sized[peerid.ID, uint64]

	forwarding map[peerid.ID][]peerid.ID

	roundRobinMaxGap uint64

	inbox   chan func()
	stopped chan struct{}
}

// NewEngine constructs an Engine for source, driven by c, persisting
// compaction state through store.
func NewEngine(source peerid.ID, c clock.Clock, store ComponentStore, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	routeNonce, err := cache.NewSized[peerid.ID, uint64]("route_nonce", cfg.RoundRobinNonceCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		source:     source,
		clock:      c,
		graph:      graph.New(source),
		edgeLog:    newEdgeLog(),
		routeBack:  newRouteBackCache(c, cfg.RouteBackCacheSize, cfg.RouteBackEvictTimeout, cfg.RouteBackRemoveBatch),
		routeNonce: routeNonce,
		forwarding: make(map[peerid.ID][]peerid.ID),
		roundRobinMaxGap: cfg.RoundRobinMaxNonceDifferenceAllowed,
		inbox:      make(chan func(), 256),
		stopped:    make(chan struct{}),
	}

	e.compactor = NewCompactor(source, c, store, cfg.SavePeersMaxTime, e.removeIncidentEdges, e.ingestEdgeLocked)
	go e.run()
	return e, nil
}

func (e *Engine) run() {
	for {
		select {
		case job := <-e.inbox:
			job()
		case <-e.stopped:
			return
		}
	}
}

// submit runs fn on the engine's owning goroutine and waits for it to
// complete, returning ErrEngineStopped if the engine has already been
// stopped.
func (e *Engine) submit(fn func()) error {
	select {
	case <-e.stopped:
		return ErrEngineStopped
	default:
	}
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case e.inbox <- wrapped:
	case <-e.stopped:
		return ErrEngineStopped
	}
	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	}
}

// Stop terminates the engine's actor loop. Messages submitted after Stop
// returns fail with ErrEngineStopped. inbox is deliberately never closed:
// submit sends on it concurrently with Stop closing stopped, and sending
// on a closed channel panics, so only stopped is closed and run selects
// on both.
func (e *Engine) Stop() {
	select {
	case <-e.stopped:
		return
	default:
	}
	close(e.stopped)
}

// removeIncidentEdges is the Compactor's removeEdges callback: it removes
// every EdgeLog entry touching a stale peer, reflecting the same removal
// in the Graph, and returns the removed edges.
func (e *Engine) removeIncidentEdges(stale map[peerid.ID]struct{}) []edge.Edge {
	removed := e.edgeLog.removeIncident(stale)
	for _, ed := range removed {
		if ed.IsAdded() {
			e.graph.RemoveEdge(ed.Peer0, ed.Peer1)
		}
	}
	return removed
}

// ingestEdgeLocked is the Compactor's ingestEdge callback: it applies a
// rehydrated edge through the same dominance-checked path AddVerifiedEdges
// uses, without re-touching (rehydration is already inside a touch call).
func (e *Engine) ingestEdgeLocked(ed edge.Edge) {
	if !e.edgeLog.dominates(ed) {
		return
	}
	e.applyToGraph(ed)
	e.edgeLog.put(ed)
}

func (e *Engine) applyToGraph(ed edge.Edge) {
	if ed.IsAdded() {
		e.graph.AddEdge(ed.Peer0, ed.Peer1)
	} else {
		e.graph.RemoveEdge(ed.Peer0, ed.Peer1)
	}
}

// AddVerifiedEdges ingests a batch of already-verified edges: each edge
// touches both endpoints, is checked against the EdgeLog's
// nonce-dominance rule, and if it wins is applied to the Graph and
// stored.
func (e *Engine) AddVerifiedEdges(edges []edge.Edge) (AddVerifiedEdgesResult, error) {
	var result AddVerifiedEdgesResult
	err := e.submit(func() {
		for _, ed := range edges {
			e.compactor.Touch(ed.Peer0)
			e.compactor.Touch(ed.Peer1)

			if !e.edgeLog.dominates(ed) {
				continue
			}
			e.applyToGraph(ed)
			e.edgeLog.put(ed)
			result.AddedEdges = append(result.AddedEdges, ed)
		}
		result.NewEdge = len(result.AddedEdges) > 0
	})
	return result, err
}

// RequestRoutingTable returns every edge currently held in the EdgeLog.
func (e *Engine) RequestRoutingTable() (RequestRoutingTableResult, error) {
	var result RequestRoutingTableResult
	err := e.submit(func() {
		result.EdgesInfo = e.edgeLog.all()
	})
	return result, err
}

// RoutingTableUpdate recomputes the forwarding table from the current
// Graph and, if req.CanSave, attempts a compaction prune pass.
func (e *Engine) RoutingTableUpdate(req RoutingTableUpdateRequest) (RoutingTableUpdateResult, error) {
	var result RoutingTableUpdateResult
	err := e.submit(func() {
		e.forwarding = e.graph.CalculateDistance()

		reachable := make([]peerid.ID, 0, len(e.forwarding))
		for p := range e.forwarding {
			reachable = append(reachable, p)
		}

		result.PeerForwarding = e.forwarding
		result.EdgesToRemove = e.compactor.Update(reachable, req.CanSave, req.Prune, req.Timeout)
	})
	return result, err
}

// FindRoute resolves key to a next-hop peer: a hash resolves through the
// route-back cache (consuming the entry), a peer resolves through the
// forwarding table via round-robin next-hop selection.
func (e *Engine) FindRoute(key RouteKey) (peerid.ID, error) {
	var (
		result peerid.ID
		opErr  error
	)
	err := e.submit(func() {
		if key.isHash {
			p, ok := e.routeBack.remove(key.hash)
			if !ok {
				opErr = ErrRouteBackNotFound
				return
			}
			result = p
			return
		}

		candidates, ok := e.forwarding[key.peer]
		if !ok {
			opErr = ErrPeerNotFound
			return
		}
		if len(candidates) == 0 {
			opErr = ErrDisconnected
			return
		}

		result = e.selectRoundRobin(candidates)
	})
	if err != nil {
		return "", err
	}
	return result, opErr
}

// selectRoundRobin picks the next hop by the (nonce, peer-id-bytes)
// tie-break rule: the candidate with the smallest (nonce, peer-id-bytes)
// pair is chosen, its
// nonce incremented, and (if the spread to the busiest candidate has
// grown too wide) rebalanced first so a long-silent candidate is not
// hammered on return.
func (e *Engine) selectRoundRobin(candidates []peerid.ID) peerid.ID {
	sorted := append([]peerid.ID(nil), candidates...)
	nonceOf := func(p peerid.ID) uint64 {
		n, _ := e.routeNonce.Peek(p)
		return n
	}
	sort.Slice(sorted, func(i, j int) bool {
		ni, nj := nonceOf(sorted[i]), nonceOf(sorted[j])
		if ni != nj {
			return ni < nj
		}
		return sorted[i] < sorted[j]
	})

	min := sorted[0]
	max := sorted[len(sorted)-1]
	nMin, nMax := nonceOf(min), nonceOf(max)

	if nMax-nMin > e.roundRobinMaxGap {
		nMin = nMax - e.roundRobinMaxGap
		e.routeNonce.Add(min, nMin)
	}

	e.routeNonce.Add(min, nMin+1)
	return min
}

// RecordRouteBack registers that a request fingerprinted by hash arrived
// via prevHop, so a later reply addressed to hash can be routed back.
func (e *Engine) RecordRouteBack(hash [32]byte, prevHop peerid.ID) error {
	return e.submit(func() {
		e.routeBack.insert(hash, prevHop)
	})
}

// HashRequest is a convenience for callers building a RouteKey/route-back
// entry from arbitrary request bytes, hashing them with the same SHA-256
// primitive the edge package uses.
func HashRequest(b []byte) [32]byte {
	return sha256.Sum256(b)
}
