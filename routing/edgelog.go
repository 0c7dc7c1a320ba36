package routing

import (
	"github.com/overlaymesh/routingcore/edge"
	"github.com/overlaymesh/routingcore/peerid"
)

// edgeKey is the canonical (peer0, peer1) pair an EdgeLog entry is keyed
// by, with peer0 < peer1 always holding.
type edgeKey struct {
	peer0, peer1 peerid.ID
}

func keyFor(a, b peerid.ID) edgeKey {
	lo, hi, _ := peerid.Canonicalize(a, b)
	return edgeKey{peer0: lo, peer1: hi}
}

// edgeLog is the map of currently active edges keyed by unordered
// endpoint pair, enforcing the nonce-dominance rule: an incoming edge
// only replaces the stored one if its nonce is strictly greater.
type edgeLog struct {
	edges map[edgeKey]edge.Edge
}

func newEdgeLog() *edgeLog {
	return &edgeLog{edges: make(map[edgeKey]edge.Edge)}
}

// get returns the currently stored edge for (a, b), if any.
func (l *edgeLog) get(a, b peerid.ID) (edge.Edge, bool) {
	e, ok := l.edges[keyFor(a, b)]
	return e, ok
}

// dominates reports whether e's nonce is strictly greater than the
// currently stored edge for its key (or no edge is stored at all).
func (l *edgeLog) dominates(e edge.Edge) bool {
	stored, ok := l.edges[edgeKey{peer0: e.Peer0, peer1: e.Peer1}]
	return !ok || e.Nonce > stored.Nonce
}

// put unconditionally stores e, overwriting whatever was there. Callers
// must have already checked dominates.
func (l *edgeLog) put(e edge.Edge) {
	l.edges[edgeKey{peer0: e.Peer0, peer1: e.Peer1}] = e
}

// delete removes the entry for (a, b), if present.
func (l *edgeLog) delete(a, b peerid.ID) {
	delete(l.edges, keyFor(a, b))
}

// all returns every currently stored edge, in no particular order.
func (l *edgeLog) all() []edge.Edge {
	out := make([]edge.Edge, 0, len(l.edges))
	for _, e := range l.edges {
		out = append(out, e)
	}
	return out
}

// removeIncident removes and returns every edge with either endpoint in
// stale.
func (l *edgeLog) removeIncident(stale map[peerid.ID]struct{}) []edge.Edge {
	var removed []edge.Edge
	for k, e := range l.edges {
		if _, ok := stale[e.Peer0]; ok {
			removed = append(removed, e)
			delete(l.edges, k)
			continue
		}
		if _, ok := stale[e.Peer1]; ok {
			removed = append(removed, e)
			delete(l.edges, k)
		}
	}
	return removed
}
