// Package graph maintains the node's current view of the overlay as a
// compact, integer-indexed adjacency list and computes, via a
// multi-parent bitset BFS, the set of direct neighbors lying on some
// shortest path to every reachable peer.
package graph

import (
	"math/bits"

	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/routingcore/peerid"
)

// MaxNumPeers bounds the number of direct source neighbors the BFS route
// bitset can track. Neighbors beyond this index are silently ignored by
// route aggregation (see CalculateDistance).
const MaxNumPeers = 128

// unreachableWarnThreshold is the number of used-but-unreachable slots
// above which CalculateDistance logs a warning; it is an observability
// signal, not an error.
const unreachableWarnThreshold = 1000

var log = logrus.WithField("component", "graph")

// routeBits is a fixed-width bitset wide enough to track MaxNumPeers
// source-neighbor indices without a general-purpose bitset dependency.
type routeBits [2]uint64

func (b *routeBits) set(i int) {
	if i < 64 {
		b[0] |= 1 << uint(i)
	} else {
		b[1] |= 1 << uint(i-64)
	}
}

func (b *routeBits) orWith(o routeBits) {
	b[0] |= o[0]
	b[1] |= o[1]
}

func (b routeBits) isZero() bool {
	return b[0] == 0 && b[1] == 0
}

func (b routeBits) has(i int) bool {
	if i < 64 {
		return b[0]&(1<<uint(i)) != 0
	}
	return b[1]&(1<<uint(i-64)) != 0
}

func (b routeBits) popcount() int {
	return bits.OnesCount64(b[0]) + bits.OnesCount64(b[1])
}

// Graph is the undirected simple graph of this node's currently known
// Added edges. Nodes are referenced by a compact uint32 slot; slot 0 is
// always this node (source) and is never freed. It is not safe for
// concurrent use: callers (the routing engine) are expected to serialize
// access.
type Graph struct {
	Source   peerid.ID
	sourceID uint32

	p2id   map[peerid.ID]uint32
	id2p   []peerid.ID
	used   []bool
	unused []uint32

	adjacency [][]uint32

	TotalActiveEdges uint64
}

// New creates a Graph whose only node is source, at slot 0.
func New(source peerid.ID) *Graph {
	g := &Graph{
		Source:    source,
		sourceID:  0,
		p2id:      make(map[peerid.ID]uint32),
		id2p:      []peerid.ID{source},
		used:      []bool{true},
		adjacency: [][]uint32{{}},
	}
	g.p2id[source] = g.sourceID
	return g
}

func (g *Graph) containsEdge(a, b peerid.ID) bool {
	id0, ok0 := g.p2id[a]
	if !ok0 {
		return false
	}
	id1, ok1 := g.p2id[b]
	if !ok1 {
		return false
	}
	for _, n := range g.adjacency[id0] {
		if n == id1 {
			return true
		}
	}
	return false
}

// getOrCreateID returns the slot for peer, allocating one (reusing a freed
// slot if available) if peer is not yet known.
func (g *Graph) getOrCreateID(peer peerid.ID) uint32 {
	if id, ok := g.p2id[peer]; ok {
		return id
	}

	if n := len(g.unused); n > 0 {
		id := g.unused[n-1]
		g.unused = g.unused[:n-1]
		g.id2p[id] = peer
		g.used[id] = true
		g.p2id[peer] = id
		return id
	}

	id := uint32(len(g.id2p))
	g.id2p = append(g.id2p, peer)
	g.used = append(g.used, true)
	g.adjacency = append(g.adjacency, nil)
	g.p2id[peer] = id
	return id
}

// removeIfUnused frees id's slot if it has no remaining adjacency and is
// not the source.
func (g *Graph) removeIfUnused(id uint32) {
	if id == g.sourceID || len(g.adjacency[id]) > 0 {
		return
	}
	g.used[id] = false
	g.unused = append(g.unused, id)
	delete(g.p2id, g.id2p[id])
}

// AddEdge adds an undirected edge between a and b. Idempotent: adding an
// already-present edge is a no-op. a and b must differ.
func (g *Graph) AddEdge(a, b peerid.ID) {
	if a == b {
		panic("graph: cannot add a self-edge")
	}
	if g.containsEdge(a, b) {
		return
	}

	id0 := g.getOrCreateID(a)
	id1 := g.getOrCreateID(b)

	g.adjacency[id0] = append(g.adjacency[id0], id1)
	g.adjacency[id1] = append(g.adjacency[id1], id0)
	g.TotalActiveEdges++
}

// RemoveEdge removes the undirected edge between a and b, if present,
// freeing either endpoint's slot if it becomes isolated and is not the
// source.
func (g *Graph) RemoveEdge(a, b peerid.ID) {
	if a == b {
		panic("graph: cannot remove a self-edge")
	}
	if !g.containsEdge(a, b) {
		return
	}

	id0 := g.p2id[a]
	id1 := g.p2id[b]

	g.adjacency[id0] = removeValue(g.adjacency[id0], id1)
	g.adjacency[id1] = removeValue(g.adjacency[id1], id0)

	g.removeIfUnused(id0)
	g.removeIfUnused(id1)
	g.TotalActiveEdges--
}

func removeValue(s []uint32, v uint32) []uint32 {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// CalculateDistance runs a multi-parent BFS from Source and returns, for
// every peer reachable from Source (other than Source itself), the set of
// Source's direct neighbors lying on some shortest path to it. Peers not
// reachable from Source are absent from the result.
func (g *Graph) CalculateDistance() map[peerid.ID][]peerid.ID {
	n := len(g.id2p)
	distance := make([]int32, n)
	routes := make([]routeBits, n)
	for i := range distance {
		distance[i] = -1
	}
	distance[g.sourceID] = 0

	queue := make([]uint32, 0, n)
	sourceNeighbors := g.adjacency[g.sourceID]
	for i, neighbor := range sourceNeighbors {
		if i >= MaxNumPeers {
			break
		}
		distance[neighbor] = 1
		routes[neighbor].set(i)
		queue = append(queue, neighbor)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		curDist := distance[cur]

		for _, neighbor := range g.adjacency[cur] {
			if distance[neighbor] == -1 {
				distance[neighbor] = curDist + 1
				queue = append(queue, neighbor)
			}
			if distance[neighbor] == curDist+1 {
				routes[neighbor].orWith(routes[cur])
			}
		}
	}

	return g.computeResult(routes, distance)
}

func (g *Graph) computeResult(routes []routeBits, distance []int32) map[peerid.ID][]peerid.ID {
	res := make(map[peerid.ID][]peerid.ID, len(routes))
	sourceNeighbors := g.adjacency[g.sourceID]

	unreachable := 0
	for slot, route := range routes {
		id := uint32(slot)
		if distance[slot] == -1 && g.used[slot] {
			unreachable++
		}
		if id == g.sourceID || distance[slot] == -1 || route.isZero() || !g.used[slot] {
			continue
		}

		peers := make([]peerid.ID, 0, route.popcount())
		for i, neighbor := range sourceNeighbors {
			if i >= MaxNumPeers {
				break
			}
			if route.has(i) {
				peers = append(peers, g.id2p[neighbor])
			}
		}
		res[g.id2p[slot]] = peers
	}

	if unreachable > unreachableWarnThreshold {
		log.WithField("unreachable_peers", unreachable).Warn("graph has more than 1000 unreachable-but-tracked peers")
	}
	return res
}
