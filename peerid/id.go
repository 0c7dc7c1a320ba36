// Package peerid defines the node identity used throughout the routing
// core. A peer's identity is its public key; peers are constructed from an
// identity-hash-encoded libp2p peer ID so that the ID bytes embed the key
// itself, giving us the total byte-order comparability the routing model
// relies on for canonical edge ordering.
package peerid

import (
	libp2pcrypto "github.com/libp2p/go-libp2p-core/crypto"
	libp2ppeer "github.com/libp2p/go-libp2p-core/peer"
)

// ID identifies a peer. It is a string under the hood, so Go's built-in
// ordering operators already give us byte-order comparison.
type ID = libp2ppeer.ID

// Less reports whether a sorts before b in canonical edge order.
func Less(a, b ID) bool {
	return a < b
}

// Canonicalize returns (lo, hi) such that lo < hi, reporting whether the
// inputs had to be swapped to achieve that.
func Canonicalize(a, b ID) (lo, hi ID, swapped bool) {
	if a < b {
		return a, b, false
	}
	return b, a, true
}

// PublicKey extracts the public key embedded in id. This only succeeds for
// identity-hash peer IDs, which is how NewFromPublicKey constructs them.
func PublicKey(id ID) (libp2pcrypto.PubKey, error) {
	return id.ExtractPublicKey()
}

// NewFromPublicKey derives the canonical peer ID for a public key.
func NewFromPublicKey(pub libp2pcrypto.PubKey) (ID, error) {
	return libp2ppeer.IDFromPublicKey(pub)
}

// Verify checks sig over data using the public key embedded in id. A
// malformed or non-identity-hash id yields false rather than an error, in
// keeping with Edge.Verify's "any failure is just false" contract.
func Verify(id ID, data, sig []byte) bool {
	pub, err := PublicKey(id)
	if err != nil {
		return false
	}
	ok, err := pub.Verify(data, sig)
	return err == nil && ok
}
