package activitypub

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode wraps input that is not a decodable activity.
	ErrDecode = errors.New("undecodable activity")

	// ErrNotFound and ErrGone report a remote resource that does not exist.
	ErrNotFound = errors.New("remote object not found")
	ErrGone     = errors.New("remote object gone")

	// ErrTransient covers every other fetch failure: timeouts, 5xx, bad bodies.
	ErrTransient = errors.New("remote fetch failed")
)

// ValidationError reports an activity missing a field its type requires.
type ValidationError struct {
	Type  string
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s activity missing required field %q", e.Type, e.Field)
}

// FetchError carries the URI and HTTP status of a failed remote fetch. It
// unwraps to ErrNotFound, ErrGone or ErrTransient.
type FetchError struct {
	URI    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URI, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URI, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// isGone reports whether err proves the remote resource no longer exists.
func isGone(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrGone)
}
