// Package cache provides the key/value store backends backing the
// projection read model. The interface is deliberately tiny so deployments
// can swap the embedded default for whatever shared store they already run.
package cache

import "errors"

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("cache: key not found")

// Store is a flat key/value store. Implementations must be safe for
// concurrent use; per-key last-write-wins is sufficient, no cross-key
// transactions are needed.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
