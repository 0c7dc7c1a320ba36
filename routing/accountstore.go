package routing

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/overlaymesh/routingcore/cache"
	"github.com/overlaymesh/routingcore/peerid"
)

// Announcement binds an account identifier to the peer currently
// claiming to own it, for a given epoch. At most one announcement is
// kept per account.
type Announcement struct {
	AccountID string
	PeerID    peerid.ID
	EpochID   uint64
}

// AnnouncementStore is the persistence collaborator for account
// announcements; store.Store satisfies it against a bbolt column.
type AnnouncementStore interface {
	GetAnnouncement(accountID string) (Announcement, bool, error)
	PutAnnouncement(a Announcement) error
}

// AccountStore caches account -> peer announcements in front of an
// AnnouncementStore: cache hits avoid the backing store entirely, misses
// populate the cache on success, and store write failures are logged but
// never propagated, since the cache alone is authoritative for the life
// of the process.
type AccountStore struct {
	cache *cache.Sized[string, Announcement]
	store AnnouncementStore
}

// NewAccountStore builds an AccountStore with a cache of the given size,
// backed by store.
func NewAccountStore(store AnnouncementStore, cacheSize int) (*AccountStore, error) {
	c, err := cache.NewSized[string, Announcement]("announcement", cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "routing: creating announcement cache")
	}
	return &AccountStore{cache: c, store: store}, nil
}

// AddAnnouncement caches a and writes it through to the backing store.
// A store write failure is logged, not returned: the in-memory cache
// remains authoritative.
func (s *AccountStore) AddAnnouncement(a Announcement) {
	s.cache.Add(a.AccountID, a)
	if err := s.store.PutAnnouncement(a); err != nil {
		logrus.WithError(err).WithField("account_id", a.AccountID).
			Warn("routing: failed to persist account announcement")
	}
}

// GetAnnouncement returns the current announcement for accountID. A
// cache hit is returned directly; a miss falls through to the backing
// store and, if found there, repopulates the cache.
func (s *AccountStore) GetAnnouncement(accountID string) (Announcement, bool) {
	if a, ok := s.cache.Get(accountID); ok {
		return a, true
	}

	a, ok, err := s.store.GetAnnouncement(accountID)
	if err != nil {
		logrus.WithError(err).WithField("account_id", accountID).
			Warn("routing: failed to read account announcement")
		return Announcement{}, false
	}
	if !ok {
		return Announcement{}, false
	}

	s.cache.Add(accountID, a)
	return a, true
}

// Contains reports whether an announcement exists for a.AccountID whose
// epoch matches a.EpochID exactly.
func (s *AccountStore) Contains(a Announcement) bool {
	existing, ok := s.GetAnnouncement(a.AccountID)
	return ok && existing.EpochID == a.EpochID
}

// AccountOwner returns the peer currently claiming accountID.
func (s *AccountStore) AccountOwner(accountID string) (peerid.ID, error) {
	a, ok := s.GetAnnouncement(accountID)
	if !ok {
		return "", ErrAccountNotFound
	}
	return a.PeerID, nil
}
