// Package store persists routing state to disk with bbolt: account
// announcements and the three compaction columns (last component nonce,
// peer-to-component pointers, archived component edges). It implements
// routing.AnnouncementStore and routing.ComponentStore.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/overlaymesh/routingcore/edge"
	"github.com/overlaymesh/routingcore/peerid"
	"github.com/overlaymesh/routingcore/routing"
)

const databaseFileName = "routingcore.db"

var (
	accountAnnouncementsBucket = []byte("account-announcements")
	componentMetaBucket        = []byte("component-meta")
	peerComponentBucket        = []byte("peer-component")
	componentEdgesBucket       = []byte("component-edges")

	lastComponentNonceKey = []byte("last-component-nonce")
)

var log = logrus.WithField("component", "store")

// Store is a bbolt-backed implementation of routing.AnnouncementStore and
// routing.ComponentStore.
type Store struct {
	db *bolt.DB
}

// New opens (creating if necessary) a bbolt database under dir and
// ensures all buckets this package uses exist.
func New(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "store: creating database directory")
	}

	datafile := filepath.Join(dir, databaseFileName)
	db, err := bolt.Open(datafile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "store: opening bbolt database")
	}

	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{
			accountAnnouncementsBucket,
			componentMetaBucket,
			peerComponentBucket,
			componentEdgesBucket,
		} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "store: initializing buckets")
	}

	prometheus.MustRegister(prombbolt.New(db))

	select {
	case <-ctx.Done():
		_ = db.Close()
		return nil, ctx.Err()
	default:
	}

	return s, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// gobAnnouncement mirrors routing.Announcement field-for-field; routing
// intentionally has no encoding awareness of its own, so the store owns
// the wire shape of what it persists.
type gobAnnouncement struct {
	AccountID string
	PeerID    string
	EpochID   uint64
}

// GetAnnouncement satisfies routing.AnnouncementStore.
func (s *Store) GetAnnouncement(accountID string) (routing.Announcement, bool, error) {
	var (
		found   bool
		a       routing.Announcement
		corrupt error
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(accountAnnouncementsBucket).Get([]byte(accountID))
		if raw == nil {
			return nil
		}
		var g gobAnnouncement
		if err := gobDecode(raw, &g); err != nil {
			log.WithError(err).WithField("account_id", accountID).
				Warn("store: corrupt announcement record, treating as absent")
			corrupt = DBError{Wraps: ErrCorrupt, Outer: err}
			return nil
		}
		found = true
		a = routing.Announcement{AccountID: g.AccountID, PeerID: peerid.ID(g.PeerID), EpochID: g.EpochID}
		return nil
	})
	if err != nil {
		return routing.Announcement{}, false, err
	}
	if corrupt != nil {
		return routing.Announcement{}, false, corrupt
	}
	return a, found, nil
}

// PutAnnouncement satisfies routing.AnnouncementStore.
func (s *Store) PutAnnouncement(a routing.Announcement) error {
	raw, err := gobEncode(gobAnnouncement{AccountID: a.AccountID, PeerID: string(a.PeerID), EpochID: a.EpochID})
	if err != nil {
		return errors.Wrap(err, "store: encoding announcement")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(accountAnnouncementsBucket).Put([]byte(a.AccountID), raw)
	})
}

// LoadComponentNonce satisfies routing.ComponentStore.
func (s *Store) LoadComponentNonce() (uint64, error) {
	var nonce uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(componentMetaBucket).Get(lastComponentNonceKey)
		if raw == nil {
			nonce = 0
			return nil
		}
		nonce = binary.LittleEndian.Uint64(raw)
		return nil
	})
	return nonce, err
}

// GetPeerComponent satisfies routing.ComponentStore.
func (s *Store) GetPeerComponent(peer peerid.ID) (uint64, bool, error) {
	var (
		found bool
		nonce uint64
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(peerComponentBucket).Get([]byte(peer))
		if raw == nil {
			return nil
		}
		nonce = binary.LittleEndian.Uint64(raw)
		found = true
		return nil
	})
	return nonce, found, err
}

// GetComponentEdges satisfies routing.ComponentStore.
func (s *Store) GetComponentEdges(nonce uint64) ([]edge.Edge, error) {
	var (
		edges   []edge.Edge
		corrupt error
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(componentEdgesBucket).Get(nonceKey(nonce))
		if raw == nil {
			return nil
		}
		if err := gobDecode(raw, &edges); err != nil {
			log.WithError(err).WithField("component_nonce", nonce).
				Warn("store: corrupt component edges record, treating as empty")
			corrupt = DBError{Wraps: ErrCorrupt, Outer: err}
			edges = nil
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "store: reading component edges")
	}
	if corrupt != nil {
		return nil, corrupt
	}
	return edges, nil
}

// DeleteComponentAndPeer satisfies routing.ComponentStore: it atomically
// removes ComponentEdges[nonce] and PeerComponent[peer].
func (s *Store) DeleteComponentAndPeer(nonce uint64, peer peerid.ID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(componentEdgesBucket).Delete(nonceKey(nonce)); err != nil {
			return err
		}
		return tx.Bucket(peerComponentBucket).Delete([]byte(peer))
	})
}

// DeletePeerComponent satisfies routing.ComponentStore.
func (s *Store) DeletePeerComponent(peer peerid.ID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(peerComponentBucket).Delete([]byte(peer))
	})
}

// SaveComponent satisfies routing.ComponentStore: it atomically advances
// LastComponentNonce to nonce+1, records PeerComponent[p] = nonce for
// every p in peers, and writes ComponentEdges[nonce] = edges.
func (s *Store) SaveComponent(nonce uint64, peers []peerid.ID, edges []edge.Edge) error {
	encodedEdges, err := gobEncode(edges)
	if err != nil {
		return errors.Wrap(err, "store: encoding component edges")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		var nextNonce [8]byte
		binary.LittleEndian.PutUint64(nextNonce[:], nonce+1)
		if err := tx.Bucket(componentMetaBucket).Put(lastComponentNonceKey, nextNonce[:]); err != nil {
			return err
		}

		peerBucket := tx.Bucket(peerComponentBucket)
		var nonceBuf [8]byte
		binary.LittleEndian.PutUint64(nonceBuf[:], nonce)
		for _, p := range peers {
			if err := peerBucket.Put([]byte(p), nonceBuf[:]); err != nil {
				return err
			}
		}

		return tx.Bucket(componentEdgesBucket).Put(nonceKey(nonce), encodedEdges)
	})
}

func nonceKey(nonce uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return buf[:]
}
