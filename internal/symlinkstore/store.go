// Package symlinkstore persists the symlink table described in spec §3/§6:
// "a separate indexed store holds symlinks in a single table with schema
// { path: string primary-key, target: string }". Two implementations are
// provided: a bbolt-backed one for real embedders and an in-memory one for
// tests and for embedders that don't need durability across process
// restarts.
package symlinkstore

import "github.com/tjfontaine/wasihost/internal/pathutil"

// Store is the persistence boundary for the symlink namespace (component A).
// Implementations need not be safe for concurrent writers; the symlink
// namespace funnels all mutation through a single-writer API (spec §3
// "Ownership").
type Store interface {
	// LoadAll returns every persisted entry, for the namespace's startup
	// bulk-load into its in-memory cache (spec §4.A).
	LoadAll() (map[pathutil.Canonical]string, error)

	// Put persists a single symlink entry.
	Put(path pathutil.Canonical, target string) error

	// Delete removes a single entry. Deleting an entry that doesn't exist is
	// not an error.
	Delete(path pathutil.Canonical) error

	// DeletePrefix removes every entry whose path is a strict descendant of
	// prefix, for directory-removal cascades (spec §4.A).
	DeletePrefix(prefix pathutil.Canonical) error

	// Close releases any underlying resources (e.g. the bbolt file handle).
	Close() error
}
