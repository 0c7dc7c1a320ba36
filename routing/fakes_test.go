package routing_test

import (
	"sync"

	"github.com/overlaymesh/routingcore/edge"
	"github.com/overlaymesh/routingcore/peerid"
	"github.com/overlaymesh/routingcore/routing"
)

// fakeAnnouncementStore is an in-memory stand-in for the bbolt-backed
// AnnouncementStore, for tests that only need routing's own behavior.
type fakeAnnouncementStore struct {
	mu   sync.Mutex
	data map[string]routing.Announcement

	failGet bool
	failPut bool
}

func newFakeAnnouncementStore() *fakeAnnouncementStore {
	return &fakeAnnouncementStore{data: make(map[string]routing.Announcement)}
}

func (s *fakeAnnouncementStore) GetAnnouncement(accountID string) (routing.Announcement, bool, error) {
	if s.failGet {
		return routing.Announcement{}, false, errFake
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data[accountID]
	return a, ok, nil
}

func (s *fakeAnnouncementStore) PutAnnouncement(a routing.Announcement) error {
	if s.failPut {
		return errFake
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[a.AccountID] = a
	return nil
}

// fakeComponentStore is an in-memory stand-in for the bbolt-backed
// ComponentStore.
type fakeComponentStore struct {
	mu sync.Mutex

	nextNonce     uint64
	peerComponent map[peerid.ID]uint64
	componentEdges map[uint64][]edge.Edge
}

func newFakeComponentStore() *fakeComponentStore {
	return &fakeComponentStore{
		peerComponent:  make(map[peerid.ID]uint64),
		componentEdges: make(map[uint64][]edge.Edge),
	}
}

func (s *fakeComponentStore) LoadComponentNonce() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextNonce, nil
}

func (s *fakeComponentStore) GetPeerComponent(peer peerid.ID) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.peerComponent[peer]
	return n, ok, nil
}

func (s *fakeComponentStore) GetComponentEdges(nonce uint64) ([]edge.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]edge.Edge(nil), s.componentEdges[nonce]...), nil
}

func (s *fakeComponentStore) DeleteComponentAndPeer(nonce uint64, peer peerid.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.componentEdges, nonce)
	delete(s.peerComponent, peer)
	return nil
}

func (s *fakeComponentStore) DeletePeerComponent(peer peerid.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peerComponent, peer)
	return nil
}

func (s *fakeComponentStore) SaveComponent(nonce uint64, peers []peerid.ID, edges []edge.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNonce = nonce + 1
	for _, p := range peers {
		s.peerComponent[p] = nonce
	}
	s.componentEdges[nonce] = append([]edge.Edge(nil), edges...)
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFake = fakeErr("fake store failure")
