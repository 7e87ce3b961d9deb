// Package symlink implements the stable symlink namespace (component A,
// spec §4.A): canonicalizing paths, resolving symlinks with loop detection,
// and persisting the symlink table out-of-band from file content via a
// symlinkstore.Store.
package symlink

import (
	"sync"

	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/pathutil"
	"github.com/tjfontaine/wasihost/internal/symlinkstore"
)

// symloopMax is POSIX's SYMLOOP_MAX: resolution fails with errs.Loop after
// this many substitutions (spec §4.A).
const symloopMax = 40

// Table is the in-memory cache of the symlink namespace, backed by a
// symlinkstore.Store for persistence. All writes are funneled through Put
// and Remove/RemoveTree (spec §3 "Ownership": "writes are funneled through
// a single-writer API").
type Table struct {
	store symlinkstore.Store

	mu      sync.RWMutex
	entries map[pathutil.Canonical]string
}

// New loads the full table from store into memory (spec §4.A "at startup
// the table is loaded in bulk into an in-memory cache").
func New(store symlinkstore.Store) (*Table, error) {
	loaded, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	return &Table{store: store, entries: loaded}, nil
}

// Put creates or replaces the symlink at path, updating both the in-memory
// cache and the backing store.
//
// Errors: errs.Invalid if path is root (spec §3 "no entry with empty
// path").
func (t *Table) Put(path pathutil.Canonical, target string) errs.Errno {
	if path == pathutil.Root {
		return errs.Invalid
	}
	t.mu.Lock()
	t.entries[path] = target
	t.mu.Unlock()
	if err := t.store.Put(path, target); err != nil {
		return errs.IO
	}
	return errs.Success
}

// Lookup returns the symlink target at path, if any exists exactly at that
// path (no resolution of prefixes).
func (t *Table) Lookup(path pathutil.Canonical) (target string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	target, ok = t.entries[path]
	return
}

// Remove deletes the symlink entry at path, if any.
func (t *Table) Remove(path pathutil.Canonical) errs.Errno {
	t.mu.Lock()
	delete(t.entries, path)
	t.mu.Unlock()
	if err := t.store.Delete(path); err != nil {
		return errs.IO
	}
	return errs.Success
}

// RemoveTree deletes every symlink entry whose path is nested under dir,
// for use when a directory itself is removed (spec §4.A "directory removal
// batch-deletes all entries whose path has the directory as a strict
// prefix").
func (t *Table) RemoveTree(dir pathutil.Canonical) errs.Errno {
	t.mu.Lock()
	for k := range t.entries {
		if pathutil.IsStrictDescendant(k, dir) {
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()
	if err := t.store.DeletePrefix(dir); err != nil {
		return errs.IO
	}
	return errs.Success
}

// ResolveOpts controls whether the final path component is itself
// resolved if it is a symlink.
type ResolveOpts struct {
	// FollowFinal resolves a symlink at the final component too. When
	// false (O_NOFOLLOW semantics, spec §4.E), only interior components
	// are resolved and the final component is returned as-is even if it
	// names a symlink.
	FollowFinal bool
}

// Resolve walks path component by component, substituting any symlinked
// prefix with its target and restarting resolution from component zero
// with the remainder appended, exactly as spec §4.A describes. It returns
// the fully resolved canonical path.
//
// Errors: errs.Loop after symloopMax substitutions (spec §4.A, tested by
// the "Symlink termination" property in spec §8).
func (t *Table) Resolve(path pathutil.Canonical, opts ResolveOpts) (pathutil.Canonical, errs.Errno) {
	components := pathutil.Components(path)
	substitutions := 0

	for i := 0; i < len(components); i++ {
		isFinal := i == len(components)-1
		if isFinal && !opts.FollowFinal {
			continue
		}
		prefix := pathutil.FromComponents(components[:i+1])
		target, ok := t.Lookup(prefix)
		if !ok {
			continue
		}

		substitutions++
		if substitutions > symloopMax {
			return pathutil.Root, errs.Loop
		}

		remainder := components[i+1:]
		replaced, errno := replacePrefix(prefix, target, remainder)
		if errno != errs.Success {
			return pathutil.Root, errno
		}
		components = pathutil.Components(replaced)
		i = -1 // restart resolution from component 0 (spec §4.A)
	}

	return pathutil.FromComponents(components), errs.Success
}

// replacePrefix substitutes the walked prefix with an absolute or
// parent-relative symlink target, then appends the unwalked remainder.
func replacePrefix(prefix pathutil.Canonical, target string, remainder []string) (pathutil.Canonical, errs.Errno) {
	var base pathutil.Canonical
	if len(target) > 0 && target[0] == '/' {
		resolved, errno := pathutil.Canonicalize(target)
		if errno != errs.Success {
			return pathutil.Root, errno
		}
		base = resolved
	} else {
		parent, _, ok := pathutil.Split(prefix)
		if !ok {
			parent = pathutil.Root
		}
		joined, errno := pathutil.Join(parent, target)
		if errno != errs.Success {
			return pathutil.Root, errno
		}
		base = joined
	}
	return pathutil.FromComponents(append(pathutil.Components(base), remainder...)), errs.Success
}
