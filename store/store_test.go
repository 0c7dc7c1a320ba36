package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/overlaymesh/routingcore/edge"
	"github.com/overlaymesh/routingcore/peerid"
	"github.com/overlaymesh/routingcore/routing"
)

// setupDB instantiates and returns a Store backed by a temp directory.
func setupDB(t testing.TB) *Store {
	t.Helper()
	s, err := New(context.Background(), t.TempDir())
	require.NoError(t, err, "failed to instantiate store")
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestAnnouncementRoundTrip(t *testing.T) {
	s := setupDB(t)

	a := routing.Announcement{AccountID: "acct-1", PeerID: peerid.ID("peer-1"), EpochID: 7}
	require.NoError(t, s.PutAnnouncement(a))

	got, found, err := s.GetAnnouncement("acct-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, a, got)
}

func TestGetAnnouncementMissingIsAbsentNotError(t *testing.T) {
	s := setupDB(t)

	_, found, err := s.GetAnnouncement("no-such-account")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetAnnouncementCorruptRecordReturnsErrCorrupt(t *testing.T) {
	s := setupDB(t)

	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(accountAnnouncementsBucket).Put([]byte("acct-1"), []byte("not a gob record"))
	}))

	_, found, err := s.GetAnnouncement("acct-1")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorrupt))
	require.False(t, found)
}

func TestComponentNonceStartsAtZero(t *testing.T) {
	s := setupDB(t)

	nonce, err := s.LoadComponentNonce()
	require.NoError(t, err)
	require.Equal(t, uint64(0), nonce)
}

func TestSaveComponentAdvancesNonceAndPersistsEdgesAndPeers(t *testing.T) {
	s := setupDB(t)

	a, b := peerid.ID("a"), peerid.ID("b")
	edges := []edge.Edge{{Peer0: a, Peer1: b, Nonce: 3}}
	require.NoError(t, s.SaveComponent(0, []peerid.ID{a, b}, edges))

	nonce, err := s.LoadComponentNonce()
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce, "SaveComponent must advance LastComponentNonce to nonce+1")

	gotNonce, ok, err := s.GetPeerComponent(a)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), gotNonce)

	gotEdges, err := s.GetComponentEdges(0)
	require.NoError(t, err)
	require.Equal(t, edges, gotEdges)
}

func TestDeleteComponentAndPeerRemovesBoth(t *testing.T) {
	s := setupDB(t)

	a, b := peerid.ID("a"), peerid.ID("b")
	edges := []edge.Edge{{Peer0: a, Peer1: b, Nonce: 3}}
	require.NoError(t, s.SaveComponent(0, []peerid.ID{a, b}, edges))

	require.NoError(t, s.DeleteComponentAndPeer(0, a))

	_, ok, err := s.GetPeerComponent(a)
	require.NoError(t, err)
	require.False(t, ok)

	gotEdges, err := s.GetComponentEdges(0)
	require.NoError(t, err)
	require.Empty(t, gotEdges)

	// b's own PeerComponent entry is untouched by deleting a's.
	_, ok, err = s.GetPeerComponent(b)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDeletePeerComponentOnlyRemovesThatPeer(t *testing.T) {
	s := setupDB(t)

	a, b := peerid.ID("a"), peerid.ID("b")
	require.NoError(t, s.SaveComponent(0, []peerid.ID{a, b}, nil))

	require.NoError(t, s.DeletePeerComponent(a))

	_, ok, err := s.GetPeerComponent(a)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.GetPeerComponent(b)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGetComponentEdgesMissingNonceReturnsEmpty(t *testing.T) {
	s := setupDB(t)

	edges, err := s.GetComponentEdges(42)
	require.NoError(t, err)
	require.Empty(t, edges)
}

func TestGetComponentEdgesCorruptRecordReturnsErrCorrupt(t *testing.T) {
	s := setupDB(t)

	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(componentEdgesBucket).Put(nonceKey(7), []byte("not a gob record"))
	}))

	edges, err := s.GetComponentEdges(7)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorrupt))
	require.Empty(t, edges)
}

func TestWrappedSentinelError(t *testing.T) {
	e := ErrCorrupt
	require.True(t, errors.Is(e, ErrCorrupt))

	outer := errors.New("wrapped error")
	e2 := DBError{Wraps: ErrCorrupt, Outer: outer}
	require.True(t, errors.Is(e2, ErrCorrupt), "errors.Is should see through DBError to its Wraps sentinel")
}
