package routing

import (
	"time"

	"github.com/overlaymesh/routingcore/edge"
	"github.com/overlaymesh/routingcore/peerid"
)

// AddVerifiedEdgesResult is the response to AddVerifiedEdges.
type AddVerifiedEdgesResult struct {
	NewEdge    bool
	AddedEdges []edge.Edge
}

// RequestRoutingTableResult is the response to RequestRoutingTable.
type RequestRoutingTableResult struct {
	EdgesInfo []edge.Edge
}

// RoutingTableUpdateResult is the response to RoutingTableUpdate.
type RoutingTableUpdateResult struct {
	EdgesToRemove  []edge.Edge
	PeerForwarding map[peerid.ID][]peerid.ID
}

// RoutingTableUpdateRequest carries the parameters of a RoutingTableUpdate
// message: whether the forwarding recomputation is allowed to trigger a
// prune pass, whether that prune should be forced past the quiet-period
// guard, and the staleness timeout to prune against.
type RoutingTableUpdateRequest struct {
	CanSave bool
	Prune   bool
	Timeout time.Duration
}

// RouteKey is the argument to FindRoute: either a destination peer or a
// request fingerprint to resolve via the route-back cache.
type RouteKey struct {
	peer   peerid.ID
	hash   [32]byte
	isHash bool
}

// RouteToPeer builds a RouteKey that resolves via the forwarding table.
func RouteToPeer(p peerid.ID) RouteKey {
	return RouteKey{peer: p}
}

// RouteToHash builds a RouteKey that resolves via the route-back cache.
func RouteToHash(h [32]byte) RouteKey {
	return RouteKey{hash: h, isHash: true}
}
