// Package pathutil canonicalizes guest-supplied paths. The canonical form is
// a slash-joined sequence of non-empty, non-"." components with no leading
// or trailing slash; the root is the empty string (spec §3).
//
// This generalizes wazero's FSContext.StripPrefixesAndTrailingSlash, which
// only strips a single leading prefix before handing the remainder to the
// guest's own relative-path resolution. Here canonicalization is the whole
// story: there is no guest libc walking the rest of the path afterward, so
// every component must be normalized, including a rejection of ".." that
// would escape root.
package pathutil

import (
	"strings"

	"github.com/tjfontaine/wasihost/internal/errs"
)

// Canonical is a normalized path as described above. The zero value is root.
type Canonical string

// Root is the canonical form of the filesystem root.
const Root Canonical = ""

// Canonicalize normalizes an arbitrary guest-supplied path. It never fails
// on its own; a "path escapes root" condition returns errs.Invalid per
// spec §4.A ("rejects ".." traversal above root").
func Canonicalize(p string) (Canonical, errs.Errno) {
	if p == "" || p == "." || p == "/" {
		return Root, errs.Success
	}
	raw := strings.Split(p, "/")
	components := make([]string, 0, len(raw))
	for _, c := range raw {
		switch c {
		case "", ".":
			continue
		case "..":
			if len(components) == 0 {
				return Root, errs.Invalid
			}
			components = components[:len(components)-1]
		default:
			components = append(components, c)
		}
	}
	return Canonical(strings.Join(components, "/")), errs.Success
}

// MustCanonicalize is Canonicalize for call sites that already validated the
// input (e.g. paths read back out of a store that only ever held canonical
// forms). It panics on an invalid path, which should be unreachable.
func MustCanonicalize(p string) Canonical {
	c, errno := Canonicalize(p)
	if errno != errs.Success {
		panic("pathutil: invalid path " + p)
	}
	return c
}

// Join appends a child name to a canonical parent, returning a canonical
// result. child must be a single path (it is itself canonicalized first, so
// "a/b" is accepted as a multi-component child).
func Join(parent Canonical, child string) (Canonical, errs.Errno) {
	c, errno := Canonicalize(child)
	if errno != errs.Success {
		return Root, errno
	}
	if c == Root {
		return parent, errs.Success
	}
	if parent == Root {
		return c, errs.Success
	}
	return Canonical(string(parent) + "/" + string(c)), errs.Success
}

// Split returns the canonical parent directory and base name of p. The root
// has no parent and Split returns (Root, "", false).
func Split(p Canonical) (parent Canonical, base string, ok bool) {
	if p == Root {
		return Root, "", false
	}
	s := string(p)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return Canonical(s[:i]), s[i+1:], true
	}
	return Root, s, true
}

// Components splits a canonical path into its ordered components. Root
// yields an empty slice.
func Components(p Canonical) []string {
	if p == Root {
		return nil
	}
	return strings.Split(string(p), "/")
}

// FromComponents is the inverse of Components.
func FromComponents(parts []string) Canonical {
	return Canonical(strings.Join(parts, "/"))
}

// HasPrefix reports whether p is child equal to or nested under prefix,
// i.e. p == prefix or p starts with prefix + "/". Used by directory-removal
// cascades (spec §4.A "directory removal batch-deletes all entries whose
// path has the directory as a strict prefix") and handle-cache eviction
// (spec §4.D).
func HasPrefix(p, prefix Canonical) bool {
	if prefix == Root {
		return true
	}
	if p == prefix {
		return true
	}
	return strings.HasPrefix(string(p), string(prefix)+"/")
}

// IsStrictDescendant reports whether p is strictly nested under prefix
// (excludes p == prefix).
func IsStrictDescendant(p, prefix Canonical) bool {
	return p != prefix && HasPrefix(p, prefix)
}
