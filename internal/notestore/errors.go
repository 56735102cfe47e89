package notestore

import "errors"

var (
	// ErrNotFound is returned for an ID the store does not hold, or one the
	// server no longer knows.
	ErrNotFound = errors.New("notestore: note not found")
	// ErrNotAuthenticated is returned when no session is signed in. No request
	// is sent.
	ErrNotAuthenticated = errors.New("notestore: not authenticated")
	// ErrDiscarded is returned when the session or the store was reset while
	// the request was in flight. The response was not applied.
	ErrDiscarded = errors.New("notestore: result discarded")
)
