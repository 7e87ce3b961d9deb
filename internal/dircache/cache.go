// Package dircache is the in-memory mirror of directory structure with
// lazy scan-on-access (component D, spec §3, §4.D): the first access to a
// directory triggers one scan through the sync bridge, after which it is
// authoritative because nothing outside this process can mutate the
// backing store concurrently (spec §9 open question 3: single guest per
// store is assumed).
package dircache

import (
	"sync"

	"github.com/tjfontaine/wasihost/internal/bridge"
	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
)

// NodeKind discriminates the three node shapes from spec §3.
type NodeKind uint8

const (
	NodeDir NodeKind = iota
	NodeFile
	NodeSymlink
)

// Node is the discriminated directory-tree node from spec §3. Only Kind ==
// NodeDir nodes have Children; Scanned is meaningless otherwise.
type Node struct {
	Kind     NodeKind
	Children map[string]*Node // NodeDir only
	Scanned  bool             // NodeDir only

	Size    uint64 // NodeFile only
	MtimeMs uint64 // NodeFile only

	Target string // NodeSymlink only
}

func newDirNode() *Node { return &Node{Kind: NodeDir, Children: make(map[string]*Node)} }

// Cache is the directory cache itself, keyed from a single root node by
// canonical path. It also owns the exclusive-write-handle cache described
// in spec §4.D's second half.
type Cache struct {
	bridge bridge.Bridge

	mu   sync.Mutex
	root *Node

	// writeHandles caches exclusive native handles by canonical path, so a
	// second open of the same path for writing can be refused (spec §3
	// Descriptor invariant: "at most one write-capable descriptor per path
	// holds an exclusive native handle") without round-tripping the bridge.
	writeHandles map[pathutil.Canonical]struct{}
}

// New creates an empty, unscanned cache rooted at "/".
func New(b bridge.Bridge) *Cache {
	return &Cache{bridge: b, root: newDirNode(), writeHandles: make(map[pathutil.Canonical]struct{})}
}

// walk returns the node at path, scanning any unscanned directory along
// the way. It does not scan the final component's own children unless
// scanFinal is true.
func (c *Cache) walk(path pathutil.Canonical, scanFinal bool) (*Node, errs.Errno) {
	node := c.root
	components := pathutil.Components(path)
	var walked pathutil.Canonical

	for i, name := range components {
		if node.Kind != NodeDir {
			return nil, errs.NotDirectory
		}
		if !node.Scanned {
			if errno := c.scanLocked(walked, node); errno != errs.Success {
				return nil, errno
			}
		}
		child, ok := node.Children[name]
		if !ok {
			return nil, errs.NoEntry
		}
		node = child
		walked, _ = pathutil.Join(walked, name)
		_ = i
	}

	if node.Kind == NodeDir && scanFinal && !node.Scanned {
		if errno := c.scanLocked(path, node); errno != errs.Success {
			return nil, errno
		}
	}
	return node, errs.Success
}

// Lookup returns the cached node at path, scanning ancestor directories as
// needed but not the node itself if it is a directory. Use Readdir for a
// listing, which always ensures the target itself is scanned.
func (c *Cache) Lookup(path pathutil.Canonical) (*Node, errs.Errno) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if path == pathutil.Root {
		if !c.root.Scanned {
			if errno := c.scanLocked(pathutil.Root, c.root); errno != errs.Success {
				return nil, errno
			}
		}
		return c.root, errs.Success
	}
	return c.walk(path, false)
}

// Readdir returns the sorted-by-adapter-order child names of the
// directory at path, scanning it on first access (spec §8 scenario 1).
func (c *Cache) Readdir(path pathutil.Canonical) ([]objectstore.Entry, errs.Errno) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, errno := c.lookupScanned(path)
	if errno != errs.Success {
		return nil, errno
	}
	if node.Kind != NodeDir {
		return nil, errs.NotDirectory
	}
	entries := make([]objectstore.Entry, 0, len(node.Children))
	for name, child := range node.Children {
		e := objectstore.Entry{Name: name}
		switch child.Kind {
		case NodeDir:
			e.Kind = objectstore.KindDir
		case NodeSymlink:
			e.Kind = objectstore.KindSymlink
		default:
			e.Kind = objectstore.KindFile
			e.Size = child.Size
			e.MtimeMs = child.MtimeMs
		}
		entries = append(entries, e)
	}
	return entries, errs.Success
}

func (c *Cache) lookupScanned(path pathutil.Canonical) (*Node, errs.Errno) {
	if path == pathutil.Root {
		if !c.root.Scanned {
			if errno := c.scanLocked(pathutil.Root, c.root); errno != errs.Success {
				return nil, errno
			}
		}
		return c.root, errs.Success
	}
	return c.walk(path, true)
}

// scanLocked performs the one-time bridge.List call for dirNode at
// dirPath and marks it Scanned. Caller must hold c.mu.
func (c *Cache) scanLocked(dirPath pathutil.Canonical, dirNode *Node) errs.Errno {
	dh, errno := c.bridge.OpenDir(dirPath, false)
	if errno != errs.Success {
		return errno
	}
	entries, errno := c.bridge.List(dh)
	if errno != errs.Success {
		return errno
	}
	dirNode.Children = make(map[string]*Node, len(entries))
	for _, e := range entries {
		var child *Node
		switch e.Kind {
		case objectstore.KindDir:
			child = newDirNode()
		case objectstore.KindSymlink:
			child = &Node{Kind: NodeSymlink}
		default:
			child = &Node{Kind: NodeFile, Size: e.Size, MtimeMs: e.MtimeMs}
		}
		dirNode.Children[e.Name] = child
	}
	dirNode.Scanned = true
	return errs.Success
}

// InsertFile records a newly created or updated file without a bridge
// round-trip (spec §4.D: "mutations update the cache synchronously").
func (c *Cache) InsertFile(path pathutil.Canonical, size, mtimeMs uint64) errs.Errno {
	c.mu.Lock()
	defer c.mu.Unlock()
	parent, base, ok := pathutil.Split(path)
	if !ok {
		return errs.Invalid
	}
	dirNode, errno := c.ensureDirLocked(parent)
	if errno != errs.Success {
		return errno
	}
	dirNode.Children[base] = &Node{Kind: NodeFile, Size: size, MtimeMs: mtimeMs}
	return errs.Success
}

// InsertDir records a newly created directory.
func (c *Cache) InsertDir(path pathutil.Canonical) errs.Errno {
	c.mu.Lock()
	defer c.mu.Unlock()
	parent, base, ok := pathutil.Split(path)
	if !ok {
		return errs.Invalid
	}
	dirNode, errno := c.ensureDirLocked(parent)
	if errno != errs.Success {
		return errno
	}
	if _, exists := dirNode.Children[base]; !exists {
		// A directory created just now is empty, so the node is already
		// authoritative and needs no scan.
		node := newDirNode()
		node.Scanned = true
		dirNode.Children[base] = node
	}
	return errs.Success
}

// InsertSymlink records a newly created symlink entry in the tree (the
// target string itself lives in the symlink namespace, component A; this
// only needs to know a name is taken so directory listings include it).
func (c *Cache) InsertSymlink(path pathutil.Canonical) errs.Errno {
	c.mu.Lock()
	defer c.mu.Unlock()
	parent, base, ok := pathutil.Split(path)
	if !ok {
		return errs.Invalid
	}
	dirNode, errno := c.ensureDirLocked(parent)
	if errno != errs.Success {
		return errno
	}
	dirNode.Children[base] = &Node{Kind: NodeSymlink}
	return errs.Success
}

func (c *Cache) ensureDirLocked(path pathutil.Canonical) (*Node, errs.Errno) {
	if path == pathutil.Root {
		if !c.root.Scanned {
			if errno := c.scanLocked(pathutil.Root, c.root); errno != errs.Success {
				return nil, errno
			}
		}
		return c.root, errs.Success
	}
	node, errno := c.walk(path, false)
	if errno == errs.NoEntry {
		// Parent directories are created through the bridge before the
		// cache learns about them; if we got here the bridge call already
		// succeeded, so synthesize the node rather than fail.
		node = newDirNode()
		node.Scanned = true
		parent, base, ok := pathutil.Split(path)
		if !ok {
			return nil, errs.Invalid
		}
		parentNode, errno := c.ensureDirLocked(parent)
		if errno != errs.Success {
			return nil, errno
		}
		parentNode.Children[base] = node
		return node, errs.Success
	}
	if errno != errs.Success {
		return nil, errno
	}
	if node.Kind != NodeDir {
		return nil, errs.NotDirectory
	}
	return node, errs.Success
}

// SetMtime updates the cached mtime of an existing file node in place,
// leaving its size untouched. Used by fshost.SetTimes/SetTimesAt so a
// later Stat reflects the new mtime without a redundant bridge round-trip.
func (c *Cache) SetMtime(path pathutil.Canonical, mtimeMs uint64) errs.Errno {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, errno := c.walk(path, false)
	if errno != errs.Success {
		return errno
	}
	if node.Kind != NodeFile {
		return errs.Success
	}
	node.MtimeMs = mtimeMs
	return errs.Success
}

// Remove deletes the cache entry at path. If path names a directory, it
// must be empty in the cache or errs.NotEmpty is returned (spec §4.E
// "Remove-directory-at fails with not-empty if the cache ... lists any
// children").
func (c *Cache) Remove(path pathutil.Canonical) errs.Errno {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, errno := c.walk(path, true)
	if errno != errs.Success {
		return errno
	}
	if node.Kind == NodeDir && len(node.Children) > 0 {
		return errs.NotEmpty
	}
	parent, base, ok := pathutil.Split(path)
	if !ok {
		return errs.Invalid
	}
	parentNode, errno := c.walk(parent, false)
	if errno != errs.Success {
		return errno
	}
	delete(parentNode.Children, base)
	c.evictWriteHandlesLocked(path)
	return errs.Success
}

// Rename moves the subtree at oldPath to newPath in the cache (spec §4.E
// "rename-at of a directory renames the cache subtree").
func (c *Cache) Rename(oldPath, newPath pathutil.Canonical) errs.Errno {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldParent, oldBase, ok := pathutil.Split(oldPath)
	if !ok {
		return errs.Invalid
	}
	oldParentNode, errno := c.walk(oldParent, false)
	if errno != errs.Success {
		return errno
	}
	moved, ok := oldParentNode.Children[oldBase]
	if !ok {
		return errs.NoEntry
	}

	newParent, newBase, ok := pathutil.Split(newPath)
	if !ok {
		return errs.Invalid
	}
	newParentNode, errno := c.ensureDirLocked(newParent)
	if errno != errs.Success {
		return errno
	}

	delete(oldParentNode.Children, oldBase)
	newParentNode.Children[newBase] = moved

	for handle := range c.writeHandles {
		if pathutil.HasPrefix(handle, oldPath) {
			delete(c.writeHandles, handle)
			suffix := string(handle)[len(oldPath):]
			c.writeHandles[pathutil.Canonical(string(newPath)+suffix)] = struct{}{}
		}
	}
	return errs.Success
}

// TryAcquireWrite reserves the exclusive write handle for path. It returns
// false if one is already held, per spec §3's exclusivity invariant.
func (c *Cache) TryAcquireWrite(path pathutil.Canonical) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.writeHandles[path]; held {
		return false
	}
	c.writeHandles[path] = struct{}{}
	return true
}

// ReleaseWrite frees a previously acquired exclusive write handle.
func (c *Cache) ReleaseWrite(path pathutil.Canonical) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.writeHandles, path)
}

func (c *Cache) evictWriteHandlesLocked(prefix pathutil.Canonical) {
	for handle := range c.writeHandles {
		if pathutil.HasPrefix(handle, prefix) {
			delete(c.writeHandles, handle)
		}
	}
}
