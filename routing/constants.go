package routing

import "time"

// Tunable defaults for the engine's bounded caches and timers. Most are
// exposed as Config fields (see engine.go) so callers can override them;
// these are the values used when a Config field is left at its zero
// value. DefaultPingPongCacheSize has no Config field and is used by
// NewPingPong directly; DefaultSavePeersAfterTime has no Config field and
// is not used by the engine.
const (
	DefaultAnnounceAccountCacheSize = 10_000
	DefaultRouteBackCacheSize       = 100_000
	DefaultRouteBackRemoveBatch     = 100
	DefaultPingPongCacheSize        = 1_000
	DefaultRoundRobinNonceCacheSize = 10_000

	DefaultRoundRobinMaxNonceDifferenceAllowed = 10

	DefaultSavePeersAfterTime = 3600 * time.Second
)

// DefaultRouteBackEvictTimeout is the age at which a route-back entry
// becomes eligible for eviction.
const DefaultRouteBackEvictTimeout = 120 * time.Second

// DefaultSavePeersMaxTime is the minimum quiet period required before a
// prune pass is allowed to run unforced.
const DefaultSavePeersMaxTime = 7200 * time.Second
