package store

import "errors"

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict indicates the attempted create collided with an existing document id.
	ErrConflict = errors.New("document conflict")
	// ErrUnavailable indicates a transient backend failure. Callers decide
	// whether to retry, degrade to cached data, or propagate.
	ErrUnavailable = errors.New("store unavailable")
)
