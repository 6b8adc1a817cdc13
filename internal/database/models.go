// Package database provides the local role-lookup cache: a SQLite-backed
// fallback so a transient outage of the configured role_backend Elasticsearch
// nodes doesn't deny every in-flight request.
package database

import (
	"context"
	"time"
)

// CacheEntry is one row of the role cache: the serialized roles a
// (username, groups) key resolved to, and when that resolution expires.
type CacheEntry struct {
	Key       string    `json:"key"`
	RolesJSON string    `json:"roles_json"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the role cache's data access operations. A cache miss is
// reported by returning (nil, nil), never an error - the caller always
// falls through to the role backend on a miss.
type Store interface {
	// GetCacheEntry returns the cached entry for key, or nil if there is no
	// row, or the row has already expired (expired rows are treated as a
	// miss, not surfaced with their stale content).
	GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error)

	// PutCacheEntry publishes a cache entry. Publication is a single
	// INSERT ... ON CONFLICT(key) DO UPDATE statement - there is no
	// partial-write state a concurrent reader could observe.
	PutCacheEntry(ctx context.Context, entry *CacheEntry) error

	// EvictExpired removes every row whose TTL has passed and reports how
	// many were removed. The server does not call it; expired rows stay on
	// disk until it is called, and GetCacheEntry treats them as a miss.
	EvictExpired(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
}
