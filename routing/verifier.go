package routing

import (
	"sync"

	"github.com/overlaymesh/routingcore/edge"
)

// VerifierPool performs signature verification off the routing engine's
// actor goroutine: a queue of candidate edges in, a queue of
// verified-and-deduped edges out, and a shared mutex-guarded
// max-known-nonce map so workers can skip elliptic-curve work for edges
// that are already known to be dominated. Both queues are channels
// buffered to 1024 edges; they are bounded, and Submit blocks while the
// input queue is full.
type VerifierPool struct {
	in  chan edge.Edge
	out chan edge.Edge

	mu            sync.Mutex
	maxKnownNonce map[edgeKey]uint64

	wg sync.WaitGroup
}

// NewVerifierPool starts workers goroutines draining candidate edges
// submitted via Submit and publishing accepted ones on Verified().
func NewVerifierPool(workers int) *VerifierPool {
	if workers < 1 {
		workers = 1
	}
	p := &VerifierPool{
		in:            make(chan edge.Edge, 1024),
		out:           make(chan edge.Edge, 1024),
		maxKnownNonce: make(map[edgeKey]uint64),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *VerifierPool) worker() {
	defer p.wg.Done()
	for e := range p.in {
		if !e.Verify() {
			continue
		}
		if !p.markKnown(e) {
			continue
		}
		p.out <- e
	}
}

// markKnown reports whether e's nonce is new information given the
// max-known-nonce map, recording it if so. Edges at or below the
// previously recorded nonce for their key are redundant gossip and are
// dropped here rather than doing wasted downstream work; the engine's
// EdgeLog re-derives the same dominance decision independently, so a
// race between two verifier goroutines on the same key is harmless.
func (p *VerifierPool) markKnown(e edge.Edge) bool {
	key := edgeKey{peer0: e.Peer0, peer1: e.Peer1}

	p.mu.Lock()
	defer p.mu.Unlock()

	known, ok := p.maxKnownNonce[key]
	if ok && e.Nonce <= known {
		return false
	}
	p.maxKnownNonce[key] = e.Nonce
	return true
}

// Submit enqueues a candidate edge for verification.
func (p *VerifierPool) Submit(e edge.Edge) {
	p.in <- e
}

// Verified returns the channel of accepted, deduped edges.
func (p *VerifierPool) Verified() <-chan edge.Edge {
	return p.out
}

// Stop closes the input queue and waits for workers to drain it, then
// closes the output queue.
func (p *VerifierPool) Stop() {
	close(p.in)
	p.wg.Wait()
	close(p.out)
}
