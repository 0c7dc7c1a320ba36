// Package edge implements the signed, bidirectional link record that is
// the unit of gossip in the overlay's routing protocol: a nonce-ordered
// add/remove log entry for one pair of peers, verified against both
// endpoints' signatures.
package edge

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	libp2pcrypto "github.com/libp2p/go-libp2p-core/crypto"

	"github.com/overlaymesh/routingcore/peerid"
)

// RemovalInfo is present iff an Edge is in the Removed state. Side false
// means peer0 issued the removal, true means peer1.
type RemovalInfo struct {
	Side      bool
	Signature []byte
}

// Edge is the canonical, bidirectional link record between two peers.
// peer0 < peer1 always holds; callers should use Assemble rather than
// constructing an Edge directly to get that invariant for free.
type Edge struct {
	Peer0, Peer1 peerid.ID
	Nonce        uint64
	Signature0   []byte
	Signature1   []byte
	Removal      *RemovalInfo
}

// EdgeInfo is one party's proposed half of a new or re-added edge: the
// nonce they propose and their signature over it.
type EdgeInfo struct {
	Nonce     uint64
	Signature []byte
}

// CanonicalHash computes SHA256(peer0 || peer1 || nonce_LE), the bit-exact
// hash every signature in this package is taken over. peer0 and peer1 must
// already be in canonical (peer0 < peer1) order.
func CanonicalHash(peer0, peer1 peerid.ID, nonce uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte(peer0))
	h.Write([]byte(peer1))
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], nonce)
	h.Write(nonceBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// IsAdded reports whether nonce encodes an Added state (odd).
func IsAdded(nonce uint64) bool {
	return nonce%2 == 1
}

// IsRemoved reports whether nonce encodes a Removed state (even, nonzero).
func IsRemoved(nonce uint64) bool {
	return nonce != 0 && nonce%2 == 0
}

// NextNonce returns the next legal addition nonce following n.
func NextNonce(n uint64) uint64 {
	if n%2 == 0 {
		return n + 1
	}
	return n + 2
}

// SignHalf produces one party's signature over the canonical hash for a
// proposed (peer0, peer1, nonce) edge. peer0/peer1 need not be ordered;
// the hash is always computed over the canonical pair.
func SignHalf(peer0, peer1 peerid.ID, nonce uint64, sk libp2pcrypto.PrivKey) (EdgeInfo, error) {
	lo, hi, _ := peerid.Canonicalize(peer0, peer1)
	h := CanonicalHash(lo, hi, nonce)
	sig, err := sk.Sign(h[:])
	if err != nil {
		return EdgeInfo{}, err
	}
	return EdgeInfo{Nonce: nonce, Signature: sig}, nil
}

// Assemble builds an Added edge from the two parties' signatures,
// canonicalizing (peer0, peer1) and swapping signatures in lockstep if
// needed so the invariant peer0 < peer1 always holds.
func Assemble(peer0, peer1 peerid.ID, nonce uint64, sig0, sig1 []byte) Edge {
	if peer0 < peer1 {
		return Edge{Peer0: peer0, Peer1: peer1, Nonce: nonce, Signature0: sig0, Signature1: sig1}
	}
	return Edge{Peer0: peer1, Peer1: peer0, Nonce: nonce, Signature0: sig1, Signature1: sig0}
}

// Key returns the canonical (peer0, peer1) pair this edge is keyed by.
func (e Edge) Key() (peerid.ID, peerid.ID) {
	return e.Peer0, e.Peer1
}

// Contains reports whether p is one of this edge's endpoints.
func (e Edge) Contains(p peerid.ID) bool {
	return e.Peer0 == p || e.Peer1 == p
}

// Other returns the endpoint of e that is not me, if any.
func (e Edge) Other(me peerid.ID) (peerid.ID, bool) {
	switch me {
	case e.Peer0:
		return e.Peer1, true
	case e.Peer1:
		return e.Peer0, true
	default:
		return "", false
	}
}

// IsAdded reports whether this edge is currently in the Added state.
func (e Edge) IsAdded() bool {
	return IsAdded(e.Nonce)
}

// IsRemoved reports whether this edge is currently in the Removed state.
func (e Edge) IsRemoved() bool {
	return IsRemoved(e.Nonce)
}

func (e Edge) hash() [32]byte {
	return CanonicalHash(e.Peer0, e.Peer1, e.Nonce)
}

func (e Edge) prevHash() [32]byte {
	return CanonicalHash(e.Peer0, e.Peer1, e.Nonce-1)
}

// MakeRemoval produces the removal edge for an Added e, signed by me.
// Preconditions: e.IsAdded() must hold.
func (e Edge) MakeRemoval(me peerid.ID, sk libp2pcrypto.PrivKey) (Edge, error) {
	if !e.IsAdded() {
		return Edge{}, fmt.Errorf("edge: cannot remove an edge that is not currently added (nonce=%d)", e.Nonce)
	}
	if !e.Contains(me) {
		return Edge{}, fmt.Errorf("edge: %s is not an endpoint of this edge", me)
	}

	next := e
	next.Nonce = e.Nonce + 1
	side := me == e.Peer1
	h := next.hash()
	sig, err := sk.Sign(h[:])
	if err != nil {
		return Edge{}, err
	}
	next.Removal = &RemovalInfo{Side: side, Signature: sig}
	return next, nil
}

// Verify checks canonical ordering, nonce parity vs. Removal presence,
// and both endpoints' signatures against the appropriate hash. Any
// failure simply yields false.
func (e Edge) Verify() bool {
	if !(e.Peer0 < e.Peer1) {
		return false
	}

	if e.IsAdded() {
		if e.Removal != nil {
			return false
		}
		h := e.hash()
		return peerid.Verify(e.Peer0, h[:], e.Signature0) &&
			peerid.Verify(e.Peer1, h[:], e.Signature1)
	}

	// Removed: nonce must be even and nonzero.
	if e.Nonce == 0 {
		return false
	}
	addHash := e.prevHash()
	if !peerid.Verify(e.Peer0, addHash[:], e.Signature0) ||
		!peerid.Verify(e.Peer1, addHash[:], e.Signature1) {
		return false
	}
	if e.Removal == nil {
		return false
	}
	remover := e.Peer0
	if e.Removal.Side {
		remover = e.Peer1
	}
	delHash := e.hash()
	return peerid.Verify(remover, delHash[:], e.Removal.Signature)
}
