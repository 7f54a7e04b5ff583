package store

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/contribsplit/revshare"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = fmt.Errorf("%w: store record", revshare.ErrNotFound)

	// ErrDuplicate indicates a write would violate a unique index.
	ErrDuplicate = fmt.Errorf("%w: store: unique constraint violated", revshare.ErrStateConflict)

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("store: required parameter is nil")

	// ErrMissingID indicates a record without an ID was written.
	ErrMissingID = errors.New("store: record has no ID")

	// ErrReadOnly indicates a write was attempted inside View.
	ErrReadOnly = errors.New("store: write in read-only transaction")

	// ErrUnknownBackend indicates an unsupported store backend name.
	ErrUnknownBackend = errors.New("store: unknown backend")
)

// IsNotFound reports whether err is a missing-record error from this package.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
