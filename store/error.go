package store

import "errors"

// ErrCorrupt marks a record that failed to decode. Returned wrapped in a
// DBError so callers can errors.Is against it; routing's own callers
// (AccountStore, Compactor) log a warning and degrade to treating the
// read as absent rather than propagating it further.
var ErrCorrupt = errors.New("store: corrupt record")

// DBError wraps an outer error (typically returned from a bbolt
// transaction or a gob codec) alongside one of this package's sentinels.
// errors.Is sees through a DBError to the sentinel in Wraps; Outer is
// carried for its message only and is not unwrapped.
type DBError struct {
	Wraps error
	Outer error
}

func (e DBError) Error() string {
	if e.Outer != nil {
		return e.Wraps.Error() + ": " + e.Outer.Error()
	}
	return e.Wraps.Error()
}

// Unwrap exposes Wraps, so errors.Is(e, ErrCorrupt) succeeds for any
// DBError built from it.
func (e DBError) Unwrap() error {
	return e.Wraps
}
