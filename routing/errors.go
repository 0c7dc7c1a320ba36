package routing

import "errors"

// Errors returned from routing queries. Each is a sentinel so callers can
// compare with errors.Is.
var (
	// ErrDisconnected means the destination is known but currently has no
	// live next hop.
	ErrDisconnected = errors.New("routing: destination disconnected")

	// ErrPeerNotFound means the destination does not appear in the
	// forwarding table at all.
	ErrPeerNotFound = errors.New("routing: peer not found in forwarding table")

	// ErrAccountNotFound means no announcement exists for the queried
	// account.
	ErrAccountNotFound = errors.New("routing: account not found")

	// ErrRouteBackNotFound means the request hash has expired from the
	// route-back cache or was never inserted.
	ErrRouteBackNotFound = errors.New("routing: route-back entry not found")

	// ErrEngineStopped is returned to callers awaiting a response from an
	// engine that has already been stopped by Stop.
	ErrEngineStopped = errors.New("routing: engine stopped")
)
