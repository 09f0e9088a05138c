package contentstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no blob exists under a locator.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidLocator is returned for a string that is not a locator.
	ErrInvalidLocator = errors.New("invalid locator")

	// ErrContentMismatch is returned when fetched bytes do not hash to the
	// requested locator.
	ErrContentMismatch = errors.New("blob does not match locator")
)

// Store is a content-addressable blob store. Implementations are safe for
// concurrent use.
type Store interface {
	// Put stores data and returns its locator. Storing the same bytes twice
	// returns the same locator.
	Put(ctx context.Context, data []byte) (string, error)

	// Get returns the blob stored under locator or ErrNotFound.
	Get(ctx context.Context, locator string) ([]byte, error)
}
