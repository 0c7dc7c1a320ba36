package routing_test

import (
	"testing"

	libp2pcrypto "github.com/libp2p/go-libp2p-core/crypto"
	"github.com/stretchr/testify/require"

	"github.com/overlaymesh/routingcore/clock"
	"github.com/overlaymesh/routingcore/edge"
	"github.com/overlaymesh/routingcore/peerid"
	"github.com/overlaymesh/routingcore/routing"
)

type engineParty struct {
	id   peerid.ID
	priv libp2pcrypto.PrivKey
}

func newEngineParty(t *testing.T) engineParty {
	t.Helper()
	priv, pub, err := libp2pcrypto.GenerateEd25519Key(nil)
	require.NoError(t, err)
	id, err := peerid.NewFromPublicKey(pub)
	require.NoError(t, err)
	return engineParty{id: id, priv: priv}
}

func mustAddedEdge(t *testing.T, p, q engineParty, nonce uint64) edge.Edge {
	t.Helper()
	infoP, err := edge.SignHalf(p.id, q.id, nonce, p.priv)
	require.NoError(t, err)
	infoQ, err := edge.SignHalf(p.id, q.id, nonce, q.priv)
	require.NoError(t, err)
	return edge.Assemble(p.id, q.id, nonce, infoP.Signature, infoQ.Signature)
}

func newTestEngine(t *testing.T, source peerid.ID, c clock.Clock) *routing.Engine {
	t.Helper()
	store := newFakeComponentStore()
	e, err := routing.NewEngine(source, c, store, routing.Config{})
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

// TestHubGraphForwardingTable mirrors spec Scenario B end-to-end through
// the engine: source-A, source-B, A-C, B-C edges yield {A:[A], B:[B],
// C:[A,B]}.
func TestHubGraphForwardingTable(t *testing.T) {
	src := newEngineParty(t)
	a := newEngineParty(t)
	b := newEngineParty(t)
	c := newEngineParty(t)

	e := newTestEngine(t, src.id, clock.Real{})

	_, err := e.AddVerifiedEdges([]edge.Edge{
		mustAddedEdge(t, src, a, 1),
		mustAddedEdge(t, src, b, 1),
		mustAddedEdge(t, a, c, 1),
		mustAddedEdge(t, b, c, 1),
	})
	require.NoError(t, err)

	result, err := e.RoutingTableUpdate(routing.RoutingTableUpdateRequest{})
	require.NoError(t, err)

	require.ElementsMatch(t, []peerid.ID{a.id}, result.PeerForwarding[a.id])
	require.ElementsMatch(t, []peerid.ID{b.id}, result.PeerForwarding[b.id])
	require.ElementsMatch(t, []peerid.ID{a.id, b.id}, result.PeerForwarding[c.id])
}

func TestFindRouteUnknownPeer(t *testing.T) {
	src := newEngineParty(t)
	dest := newEngineParty(t)
	e := newTestEngine(t, src.id, clock.Real{})

	_, err := e.FindRoute(routing.RouteToPeer(dest.id))
	require.ErrorIs(t, err, routing.ErrPeerNotFound)
}

// TestRoundRobinAlternatesCandidates mirrors spec Scenario D: forwarding
// D -> [P1, P2] with initial nonces 0,0 alternates P1, P2, P1, P2, ...
// tie-broken by peer-id order.
func TestRoundRobinAlternatesCandidates(t *testing.T) {
	src := newEngineParty(t)
	p1 := newEngineParty(t)
	p2 := newEngineParty(t)
	dest := newEngineParty(t)

	first, second := p1, p2
	if p2.id < p1.id {
		first, second = p2, p1
	}

	e := newTestEngine(t, src.id, clock.Real{})
	_, err := e.AddVerifiedEdges([]edge.Edge{
		mustAddedEdge(t, src, first, 1),
		mustAddedEdge(t, src, second, 1),
		mustAddedEdge(t, first, dest, 1),
		mustAddedEdge(t, second, dest, 1),
	})
	require.NoError(t, err)
	_, err = e.RoutingTableUpdate(routing.RoutingTableUpdateRequest{})
	require.NoError(t, err)

	var got []peerid.ID
	for i := 0; i < 4; i++ {
		p, err := e.FindRoute(routing.RouteToPeer(dest.id))
		require.NoError(t, err)
		got = append(got, p)
	}
	require.Equal(t, []peerid.ID{first.id, second.id, first.id, second.id}, got)
}

// TestRouteBackRoundTrip mirrors spec Scenario F: inserting (H, P) then
// immediately finding route by hash returns P once, and a second lookup
// fails with ErrRouteBackNotFound.
func TestRouteBackRoundTrip(t *testing.T) {
	src := newEngineParty(t)
	prevHop := newEngineParty(t)
	e := newTestEngine(t, src.id, clock.Real{})

	hash := routing.HashRequest([]byte("some request"))
	require.NoError(t, e.RecordRouteBack(hash, prevHop.id))

	p, err := e.FindRoute(routing.RouteToHash(hash))
	require.NoError(t, err)
	require.Equal(t, prevHop.id, p)

	_, err = e.FindRoute(routing.RouteToHash(hash))
	require.ErrorIs(t, err, routing.ErrRouteBackNotFound)
}

// TestRemovedEdgeDropsPeerFromForwardingTable checks that once the sole
// edge connecting a peer to the graph is removed, a subsequent
// RoutingTableUpdate drops it from the forwarding table entirely (its
// graph slot becomes isolated and is freed), so FindRoute reports
// ErrPeerNotFound rather than ErrDisconnected.
func TestRemovedEdgeDropsPeerFromForwardingTable(t *testing.T) {
	src := newEngineParty(t)
	a := newEngineParty(t)

	e := newTestEngine(t, src.id, clock.Real{})
	_, err := e.AddVerifiedEdges([]edge.Edge{mustAddedEdge(t, src, a, 1)})
	require.NoError(t, err)
	_, err = e.AddVerifiedEdges([]edge.Edge{mustAddedEdge(t, src, a, 2)})
	require.NoError(t, err)

	_, err = e.RoutingTableUpdate(routing.RoutingTableUpdateRequest{})
	require.NoError(t, err)

	_, err = e.FindRoute(routing.RouteToPeer(a.id))
	require.ErrorIs(t, err, routing.ErrPeerNotFound)
}

func TestStopRejectsFurtherMessages(t *testing.T) {
	src := newEngineParty(t)
	store := newFakeComponentStore()
	e, err := routing.NewEngine(src.id, clock.Real{}, store, routing.Config{})
	require.NoError(t, err)

	e.Stop()

	_, err = e.RequestRoutingTable()
	require.ErrorIs(t, err, routing.ErrEngineStopped)
}

func TestNonceDominanceAppliesRegardlessOfDeliveryOrder(t *testing.T) {
	src := newEngineParty(t)
	a := newEngineParty(t)

	e1 := newTestEngine(t, src.id, clock.Real{})
	_, err := e1.AddVerifiedEdges([]edge.Edge{mustAddedEdge(t, src, a, 1)})
	require.NoError(t, err)
	_, err = e1.AddVerifiedEdges([]edge.Edge{mustAddedEdge(t, src, a, 3)})
	require.NoError(t, err)

	e2 := newTestEngine(t, src.id, clock.Real{})
	_, err = e2.AddVerifiedEdges([]edge.Edge{mustAddedEdge(t, src, a, 3)})
	require.NoError(t, err)
	_, err = e2.AddVerifiedEdges([]edge.Edge{mustAddedEdge(t, src, a, 1)})
	require.NoError(t, err)

	r1, err := e1.RequestRoutingTable()
	require.NoError(t, err)
	r2, err := e2.RequestRoutingTable()
	require.NoError(t, err)

	require.Len(t, r1.EdgesInfo, 1)
	require.Len(t, r2.EdgesInfo, 1)
	require.Equal(t, uint64(3), r1.EdgesInfo[0].Nonce)
	require.Equal(t, r1.EdgesInfo[0].Nonce, r2.EdgesInfo[0].Nonce)
}
