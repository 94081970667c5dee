// ABOUTME: Key/value persistence interface for device credentials
// ABOUTME: Defines the KV contract and well-known credential keys

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// Well-known keys written by bootstrap
const (
	KeyTenant   = "tenant"
	KeyUsername = "username"
	KeyPassword = "password"
)

// KV is an opaque string key/value store
type KV interface {
	// Get returns the value for key, or ErrNotFound
	Get(ctx context.Context, key string) (string, error)
	// Set creates or replaces the value for key
	Set(ctx context.Context, key, value string) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	Close() error
}
