// Package kvstore provides the always-available, non-hardware-backed string
// store the vault uses for metadata, fallback credentials, and legacy slots.
package kvstore

import "errors"

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a persistent string key-value store.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	// Remove deletes a key. Removing a missing key is not an error.
	Remove(key string) error
	Close() error
}
