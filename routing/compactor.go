package routing

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/routingcore/clock"
	"github.com/overlaymesh/routingcore/edge"
	"github.com/overlaymesh/routingcore/peerid"
)

// ComponentStore is the persistence collaborator for compaction: the
// LastComponentNonce, PeerComponent, and ComponentEdges columns.
type ComponentStore interface {
	// LoadComponentNonce returns the next component nonce to allocate (0
	// if none has ever been allocated).
	LoadComponentNonce() (uint64, error)

	// GetPeerComponent returns the component nonce peer belongs to, if any.
	GetPeerComponent(peer peerid.ID) (uint64, bool, error)

	// GetComponentEdges returns the edges archived under nonce.
	GetComponentEdges(nonce uint64) ([]edge.Edge, error)

	// DeleteComponentAndPeer atomically removes ComponentEdges[nonce] and
	// PeerComponent[peer].
	DeleteComponentAndPeer(nonce uint64, peer peerid.ID) error

	// DeletePeerComponent removes a single PeerComponent entry.
	DeletePeerComponent(peer peerid.ID) error

	// SaveComponent atomically advances LastComponentNonce to nonce+1,
	// records PeerComponent[p] = nonce for every p in peers, and writes
	// ComponentEdges[nonce] = edges.
	SaveComponent(nonce uint64, peers []peerid.ID, edges []edge.Edge) error
}

// Compactor banishes edges touching long-unreachable peers to on-disk
// components, and rehydrates them when such a peer is touched again. It
// mutates its owner's EdgeLog/Graph only through the
// removeEdges/ingestEdge callbacks, keeping those structures as the sole
// property of whatever single-threaded owner constructs it (the
// RoutingEngine).
type Compactor struct {
	clock  clock.Clock
	store  ComponentStore
	source peerid.ID

	savePeersMaxTime time.Duration

	lastReachable map[peerid.ID]time.Time

	// removeEdges extracts and deletes, from the owner's EdgeLog (and
	// Graph), every edge with an endpoint in stale, returning them.
	removeEdges func(stale map[peerid.ID]struct{}) []edge.Edge
	// ingestEdge re-applies e through the owner's normal dominance-checked
	// ingestion path.
	ingestEdge func(e edge.Edge)
}

// NewCompactor builds a Compactor for source, driven by c, persisting
// through store. removeEdges and ingestEdge bind the compactor to its
// owner's EdgeLog and Graph.
func NewCompactor(
	source peerid.ID,
	c clock.Clock,
	store ComponentStore,
	savePeersMaxTime time.Duration,
	removeEdges func(stale map[peerid.ID]struct{}) []edge.Edge,
	ingestEdge func(e edge.Edge),
) *Compactor {
	if savePeersMaxTime <= 0 {
		savePeersMaxTime = DefaultSavePeersMaxTime
	}
	return &Compactor{
		clock:            c,
		store:            store,
		source:           source,
		savePeersMaxTime: savePeersMaxTime,
		lastReachable:    make(map[peerid.ID]time.Time),
		removeEdges:      removeEdges,
		ingestEdge:       ingestEdge,
	}
}

// Touch marks peer as currently reachable, rehydrating its archived
// component first if it was previously banished there. Must be called
// before ingesting any edge incident to peer.
func (c *Compactor) Touch(peer peerid.ID) {
	if peer == c.source {
		return
	}
	if _, tracked := c.lastReachable[peer]; tracked {
		return
	}

	nonce, ok, err := c.store.GetPeerComponent(peer)
	if err != nil {
		logrus.WithError(err).WithField("peer", peer).
			Warn("routing: failed to look up peer component, assuming none")
		c.lastReachable[peer] = c.clock.Now()
		return
	}
	if !ok {
		c.lastReachable[peer] = c.clock.Now()
		return
	}

	c.rehydrate(peer, nonce)
}

func (c *Compactor) rehydrate(peer peerid.ID, nonce uint64) {
	edges, err := c.store.GetComponentEdges(nonce)
	if err != nil {
		logrus.WithError(err).WithField("component_nonce", nonce).
			Warn("routing: failed to load archived component edges")
		edges = nil
	}

	if err := c.store.DeleteComponentAndPeer(nonce, peer); err != nil {
		logrus.WithError(err).WithField("peer", peer).
			Warn("routing: failed to delete rehydrated component from store")
	}

	now := c.clock.Now()
	c.lastReachable[peer] = now

	for _, e := range edges {
		for _, other := range [2]peerid.ID{e.Peer0, e.Peer1} {
			if other == peer || other == c.source {
				continue
			}
			if _, tracked := c.lastReachable[other]; tracked {
				continue
			}
			otherNonce, ok, err := c.store.GetPeerComponent(other)
			if err != nil || !ok || otherNonce != nonce {
				continue
			}
			c.lastReachable[other] = now.Add(-c.savePeersMaxTime)
			if err := c.store.DeletePeerComponent(other); err != nil {
				logrus.WithError(err).WithField("peer", other).
					Warn("routing: failed to delete peer component during rehydration")
			}
		}
	}

	for _, e := range edges {
		c.ingestEdge(e)
	}
}

// Update refreshes the last-reachable timestamp of every peer currently
// in the forwarding table (reachable), and, if canSave, attempts a
// prune pass. It returns any edges that were pruned.
func (c *Compactor) Update(reachable []peerid.ID, canSave, force bool, timeout time.Duration) []edge.Edge {
	now := c.clock.Now()
	for _, p := range reachable {
		c.lastReachable[p] = now
	}

	if !canSave {
		return nil
	}
	return c.TryPrune(force, timeout)
}

// TryPrune archives every peer not seen reachable within timeout to a new
// on-disk component, unless the network has not been quiet for at least
// SavePeersMaxTime and force is false.
func (c *Compactor) TryPrune(force bool, timeout time.Duration) []edge.Edge {
	if len(c.lastReachable) == 0 {
		return nil
	}

	now := c.clock.Now()
	stale := make(map[peerid.ID]struct{})
	var oldest time.Time
	for p, t := range c.lastReachable {
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
		if now.Sub(t) >= timeout {
			stale[p] = struct{}{}
		}
	}

	if !force && now.Sub(oldest) < c.savePeersMaxTime {
		return nil
	}
	if len(stale) == 0 {
		return nil
	}

	nonce, err := c.store.LoadComponentNonce()
	if err != nil {
		logrus.WithError(err).Warn("routing: failed to load component nonce, aborting prune")
		return nil
	}

	removed := c.removeEdges(stale)
	peers := make([]peerid.ID, 0, len(stale))
	for p := range stale {
		peers = append(peers, p)
		delete(c.lastReachable, p)
	}

	// Open question 1 (see SPEC_FULL.md §12.1): the in-memory state above
	// is treated as authoritative even if this write fails; a failed
	// write here can leave an unrecoverable gap in the archived history,
	// but re-ingestion elsewhere stays safe via nonce dominance.
	if err := c.store.SaveComponent(nonce, peers, removed); err != nil {
		logrus.WithError(err).WithField("component_nonce", nonce).
			Warn("routing: failed to persist pruned component")
	}

	return removed
}
