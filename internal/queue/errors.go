package queue

import "errors"

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a compare-and-set transition lost: the
	// record was not in the expected state.
	ErrConflict = errors.New("state conflict")
	// ErrInvalidTransition is returned when the lifecycle table forbids a move.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrOpenSession is returned when an asset already has an open session.
	ErrOpenSession = errors.New("asset already has an open session")
	// ErrPermanent marks an offline item failure that retrying will not fix.
	// Drain counts these against the item and parks it once the limit is hit.
	ErrPermanent = errors.New("permanent failure")
)
