// Package fshost implements the guest-facing filesystem import surface
// (component E, spec §4.E): open-at, read, write, pread, pwrite, seek,
// tell, sync, set-size, stat, stat-at, set-times, set-times-at, link-at,
// unlink-file-at, remove-directory-at, create-directory-at, rename-at,
// symlink-at, readlink-at, and read-directory-entries, layered over the
// symlink namespace (component A), the directory cache (component D),
// and the sync bridge (component C).
//
// Grounded on internal/sys/fs.go's FileEntry/FSContext/Dir triad: this
// package keeps that shape (a descriptor table, stat-on-demand, a
// buffered directory-entry cursor) but replaces wazero's os.File-backed
// entries with canonical-path-addressed, object-store-backed ones.
package fshost

import (
	"hash/fnv"
	"time"

	"github.com/tjfontaine/wasihost/internal/bridge"
	"github.com/tjfontaine/wasihost/internal/descriptor"
	"github.com/tjfontaine/wasihost/internal/dircache"
	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
	"github.com/tjfontaine/wasihost/internal/symlink"
)

// Stat is the guest-facing metadata record returned by Stat/StatAt.
type Stat struct {
	Kind      Kind
	Size      uint64
	MtimeSec  int64
	MtimeNsec int32
	Inode     uint64
	Mode      uint32
}

// TimeSetKind selects how SetTimes/SetTimesAt should treat mtime.
type TimeSetKind uint8

const (
	TimeNoChange TimeSetKind = iota
	TimeNow
	TimeExplicit
)

// TimeSpec is the set-times argument shape from spec §4.E. It carries
// mtime only: there is no atime field, so atime is neither accepted nor
// stored (see DESIGN.md's Open Questions section).
type TimeSpec struct {
	Mtime TimeSetKind
	Sec   int64
	Nsec  int32
}

// DirEntry is one entry returned by ReadDirectoryEntries.
type DirEntry struct {
	Name string
	Kind Kind
}

// Host wires the filesystem import surface together.
type Host struct {
	bridge   bridge.Bridge
	symlinks *symlink.Table
	cache    *dircache.Cache

	descriptors descriptor.Table[int32, *Descriptor]
}

// New builds a Host over an already-constructed bridge, symlink table,
// and directory cache.
func New(b bridge.Bridge, symlinks *symlink.Table, cache *dircache.Cache) *Host {
	return &Host{bridge: b, symlinks: symlinks, cache: cache}
}

// Preopen registers path (which must already exist as a directory) as a
// preopened descriptor and returns its fd, mirroring the FdPreopen
// convention internal/sys/fs.go documents for descriptor 3 and up.
func (h *Host) Preopen(path pathutil.Canonical) (int32, errs.Errno) {
	if _, errno := h.cache.Lookup(path); errno != errs.Success {
		return 0, errno
	}
	fd, ok := h.descriptors.Insert(newDirDescriptor(path, DescriptorRead|DescriptorMutateDirectory))
	if !ok {
		return 0, errs.IO
	}
	return fd, errs.Success
}

func (h *Host) resolve(base pathutil.Canonical, rel string, pflags PathFlags) (pathutil.Canonical, errs.Errno) {
	joined, errno := pathutil.Join(base, rel)
	if errno != errs.Success {
		return pathutil.Root, errno
	}
	return h.symlinks.Resolve(joined, symlink.ResolveOpts{FollowFinal: pflags.has(PathSymlinkFollow)})
}

func (h *Host) descriptorAt(fd int32) (*Descriptor, errs.Errno) {
	d, ok := h.descriptors.Lookup(fd)
	if !ok {
		return nil, errs.Invalid
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errs.Invalid
	}
	d.mu.Unlock()
	return d, errs.Success
}

// OpenAt resolves path relative to dirFd's canonical path and opens it
// per spec §4.E's Open-at policy.
func (h *Host) OpenAt(dirFd int32, path string, oflags OpenFlags, dflags DescriptorFlags, pflags PathFlags) (int32, errs.Errno) {
	dir, errno := h.descriptorAt(dirFd)
	if errno != errs.Success {
		return 0, errno
	}
	if dir.kind != KindDirectory {
		return 0, errs.NotDirectory
	}

	resolved, errno := h.resolve(dir.path, path, pflags)
	if errno != errs.Success {
		return 0, errno
	}

	node, lookupErrno := h.cache.Lookup(resolved)
	switch {
	case lookupErrno == errs.Success && node.Kind == dircache.NodeDir:
		if oflags.has(OpenExclusive) {
			return 0, errs.Exist
		}
		newFd, ok := h.descriptors.Insert(newDirDescriptor(resolved, dflags))
		if !ok {
			return 0, errs.IO
		}
		return newFd, errs.Success
	case lookupErrno == errs.Success && node.Kind == dircache.NodeSymlink:
		if !pflags.has(PathSymlinkFollow) {
			newFd, ok := h.descriptors.Insert(newSymlinkDescriptor(resolved, dflags))
			if !ok {
				return 0, errs.IO
			}
			return newFd, errs.Success
		}
		return 0, errs.Loop
	case lookupErrno == errs.Success:
		if oflags.has(OpenDirectory) {
			return 0, errs.NotDirectory
		}
		if oflags.has(OpenExclusive) && oflags.has(OpenCreate) {
			return 0, errs.Exist
		}
	case lookupErrno == errs.NoEntry:
		if oflags.has(OpenDirectory) {
			if _, errno := h.bridge.OpenDir(resolved, oflags.has(OpenCreate)); errno != errs.Success {
				return 0, errno
			}
			h.cache.InsertDir(resolved)
			newFd, ok := h.descriptors.Insert(newDirDescriptor(resolved, dflags))
			if !ok {
				return 0, errs.IO
			}
			return newFd, errs.Success
		}
		if !oflags.has(OpenCreate) {
			return 0, errs.NoEntry
		}
		if _, errno := h.bridge.OpenFile(resolved, true); errno != errs.Success {
			return 0, errno
		}
		h.cache.InsertFile(resolved, 0, uint64(time.Now().UnixMilli()))
	default:
		return 0, lookupErrno
	}

	effectiveFlags := dflags
	writeLocked := false
	if dflags.has(DescriptorWrite) {
		if h.cache.TryAcquireWrite(resolved) {
			writeLocked = true
		} else if dflags.has(DescriptorRead) {
			// Spec §5: "overlapping opens downgrade to read-only...
			// depending on flags" — a read-write request downgrades
			// rather than failing outright.
			effectiveFlags = dflags &^ DescriptorWrite
		} else {
			return 0, errs.Busy
		}
	}

	fd := newFileDescriptor(resolved, effectiveFlags)
	fd.append = oflags.has(OpenAppend)
	fd.writeLocked = writeLocked
	if oflags.has(OpenTruncate) {
		fd.loaded = true
		fd.buf = nil
		fd.dirty = true
	}
	newFd, ok := h.descriptors.Insert(fd)
	if !ok {
		if writeLocked {
			h.cache.ReleaseWrite(resolved)
		}
		return 0, errs.IO
	}
	return newFd, errs.Success
}

// Close flushes a dirty file descriptor and releases it.
func (h *Host) Close(fd int32) errs.Errno {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return errno
	}
	errno = h.flush(d)
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	h.descriptors.Delete(fd)
	if d.kind == KindFile && d.writeLocked {
		h.cache.ReleaseWrite(d.path)
	}
	return errno
}

func (h *Host) flush(d *Descriptor) errs.Errno {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.kind != KindFile || !d.dirty {
		return errs.Success
	}
	if errno := h.bridge.WriteAll(objectstore.FileHandle{Path: d.path}, d.buf); errno != errs.Success {
		return errno
	}
	d.dirty = false
	h.cache.InsertFile(d.path, uint64(len(d.buf)), uint64(time.Now().UnixMilli()))
	return errs.Success
}

// Sync flushes any buffered writes for fd to the object store.
func (h *Host) Sync(fd int32) errs.Errno {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return errno
	}
	return h.flush(d)
}

// Read consumes up to length bytes from fd's current position.
func (h *Host) Read(fd int32, length uint64) ([]byte, bool, errs.Errno) {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return nil, false, errno
	}
	if d.kind != KindFile {
		return nil, false, errs.IsDirectory
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if errno := h.ensureLoadedLocked(d); errno != errs.Success {
		return nil, false, errno
	}
	data, eof := readAt(d.buf, d.pos, length)
	d.pos += uint64(len(data))
	return data, eof, errs.Success
}

// PRead reads length bytes at offset without moving fd's position.
func (h *Host) PRead(fd int32, length, offset uint64) ([]byte, bool, errs.Errno) {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return nil, false, errno
	}
	if d.kind != KindFile {
		return nil, false, errs.IsDirectory
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if errno := h.ensureLoadedLocked(d); errno != errs.Success {
		return nil, false, errno
	}
	data, eof := readAt(d.buf, offset, length)
	return data, eof, errs.Success
}

// ensureLoadedLocked is ensureLoaded for a caller already holding d.mu.
func (h *Host) ensureLoadedLocked(d *Descriptor) errs.Errno {
	if d.loaded {
		return errs.Success
	}
	data, errno := h.bridge.ReadAll(objectstore.FileHandle{Path: d.path})
	if errno != errs.Success {
		return errno
	}
	d.buf = data
	d.loaded = true
	return errs.Success
}

func readAt(buf []byte, pos, length uint64) ([]byte, bool) {
	if pos >= uint64(len(buf)) {
		return []byte{}, true
	}
	end := pos + length
	if end > uint64(len(buf)) {
		end = uint64(len(buf))
	}
	out := make([]byte, end-pos)
	copy(out, buf[pos:end])
	return out, end >= uint64(len(buf))
}

// Write appends data at fd's current position, growing the file.
func (h *Host) Write(fd int32, data []byte) (uint64, errs.Errno) {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return 0, errno
	}
	return h.writeAt(d, data, -1)
}

// PWrite writes data at offset without moving fd's position.
func (h *Host) PWrite(fd int32, data []byte, offset uint64) (uint64, errs.Errno) {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return 0, errno
	}
	return h.writeAt(d, data, int64(offset))
}

// writeAt writes data into d's buffer at offset; offset < 0 means "at the
// descriptor's current position, and advance it" (spec §4.E "writes grow
// the file and update size and mtime_ms atomically").
func (h *Host) writeAt(d *Descriptor, data []byte, offset int64) (uint64, errs.Errno) {
	if d.kind != KindFile {
		return 0, errs.IsDirectory
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.flags.has(DescriptorWrite) {
		return 0, errs.Access
	}
	if errno := h.ensureLoadedLocked(d); errno != errs.Success {
		return 0, errno
	}
	pos := d.pos
	if offset >= 0 {
		pos = uint64(offset)
	}
	if d.append {
		// O_APPEND forces every write to end-of-file, overriding both
		// the descriptor's seek position and an explicit pwrite offset
		// (spec §3 Descriptor "append: bool"; scenario §8.2).
		pos = uint64(len(d.buf))
	}
	end := pos + uint64(len(data))
	if end > uint64(len(d.buf)) {
		grown := make([]byte, end)
		copy(grown, d.buf)
		d.buf = grown
	}
	copy(d.buf[pos:end], data)
	d.dirty = true
	if offset < 0 {
		d.pos = end
	}
	return uint64(len(data)), errs.Success
}

// Seek repositions fd's cursor to an absolute offset.
func (h *Host) Seek(fd int32, pos uint64) errs.Errno {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return errno
	}
	d.mu.Lock()
	d.pos = pos
	d.mu.Unlock()
	return errs.Success
}

// Tell returns fd's current cursor position.
func (h *Host) Tell(fd int32) (uint64, errs.Errno) {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return 0, errno
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos, errs.Success
}

// SetSize truncates or zero-extends fd's file to exactly size bytes.
func (h *Host) SetSize(fd int32, size uint64) errs.Errno {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return errno
	}
	if d.kind != KindFile {
		return errs.IsDirectory
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if errno := h.ensureLoadedLocked(d); errno != errs.Success {
		return errno
	}
	resized := make([]byte, size)
	copy(resized, d.buf)
	d.buf = resized
	d.dirty = true
	return errs.Success
}

func inodeOf(path pathutil.Canonical) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))
	return h.Sum64()
}

func modeOf(kind Kind) uint32 {
	if kind == KindDirectory {
		return 0o755
	}
	return 0o644
}

func statFromNode(path pathutil.Canonical, node *dircache.Node) Stat {
	s := Stat{Inode: inodeOf(path)}
	switch node.Kind {
	case dircache.NodeDir:
		s.Kind = KindDirectory
	case dircache.NodeSymlink:
		s.Kind = KindSymlink
	default:
		s.Kind = KindFile
		s.Size = node.Size
		s.MtimeSec = int64(node.MtimeMs) / 1000
		s.MtimeNsec = int32(node.MtimeMs%1000) * 1_000_000
	}
	s.Mode = modeOf(s.Kind)
	return s
}

// Stat returns metadata for an already-open descriptor. A dirty,
// not-yet-flushed file descriptor reports its in-memory size rather than
// the last-flushed cache entry.
func (h *Host) Stat(fd int32) (Stat, errs.Errno) {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return Stat{}, errno
	}
	d.mu.Lock()
	dirty, buf := d.dirty, d.buf
	d.mu.Unlock()

	node, errno := h.cache.Lookup(d.path)
	if errno != errs.Success {
		return Stat{}, errno
	}
	s := statFromNode(d.path, node)
	if dirty {
		s.Size = uint64(len(buf))
	}
	return s, errs.Success
}

// StatAt resolves path relative to dirFd and stats it without opening a
// descriptor.
func (h *Host) StatAt(dirFd int32, path string, pflags PathFlags) (Stat, errs.Errno) {
	dir, errno := h.descriptorAt(dirFd)
	if errno != errs.Success {
		return Stat{}, errno
	}
	resolved, errno := h.resolve(dir.path, path, pflags)
	if errno != errs.Success {
		return Stat{}, errno
	}
	node, errno := h.cache.Lookup(resolved)
	if errno != errs.Success {
		return Stat{}, errno
	}
	return statFromNode(resolved, node), errs.Success
}

func (h *Host) applyTimes(path pathutil.Canonical, spec TimeSpec) errs.Errno {
	if spec.Mtime == TimeNoChange {
		return errs.Success
	}
	mtime := time.Unix(spec.Sec, int64(spec.Nsec))
	if spec.Mtime == TimeNow {
		mtime = time.Now()
	}
	if errno := h.bridge.SetTimes(path, mtime); errno != errs.Success {
		return errno
	}
	return h.cache.SetMtime(path, uint64(mtime.UnixMilli()))
}

// SetTimes updates fd's mtime. TimeSpec has no atime field, so atime
// cannot be set (DESIGN.md Open Questions #1).
func (h *Host) SetTimes(fd int32, spec TimeSpec) errs.Errno {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return errno
	}
	return h.applyTimes(d.path, spec)
}

// SetTimesAt resolves path relative to dirFd and updates its mtime.
func (h *Host) SetTimesAt(dirFd int32, path string, pflags PathFlags, spec TimeSpec) errs.Errno {
	dir, errno := h.descriptorAt(dirFd)
	if errno != errs.Success {
		return errno
	}
	resolved, errno := h.resolve(dir.path, path, pflags)
	if errno != errs.Success {
		return errno
	}
	return h.applyTimes(resolved, spec)
}

// CreateDirectoryAt creates a directory relative to dirFd.
func (h *Host) CreateDirectoryAt(dirFd int32, path string) errs.Errno {
	dir, errno := h.descriptorAt(dirFd)
	if errno != errs.Success {
		return errno
	}
	resolved, errno := h.resolve(dir.path, path, PathSymlinkFollow)
	if errno != errs.Success {
		return errno
	}
	if _, errno := h.bridge.OpenDir(resolved, true); errno != errs.Success {
		return errno
	}
	return h.cache.InsertDir(resolved)
}

// RemoveDirectoryAt removes an empty directory relative to dirFd.
func (h *Host) RemoveDirectoryAt(dirFd int32, path string) errs.Errno {
	dir, errno := h.descriptorAt(dirFd)
	if errno != errs.Success {
		return errno
	}
	resolved, errno := h.resolve(dir.path, path, PathSymlinkFollow)
	if errno != errs.Success {
		return errno
	}
	node, errno := h.cache.Lookup(resolved)
	if errno != errs.Success {
		return errno
	}
	if node.Kind != dircache.NodeDir {
		return errs.NotDirectory
	}
	if errno := h.cache.Remove(resolved); errno != errs.Success {
		return errno
	}
	if errno := h.bridge.Remove(resolved); errno != errs.Success {
		return errno
	}
	return h.symlinks.RemoveTree(resolved)
}

// UnlinkFileAt removes a file relative to dirFd.
func (h *Host) UnlinkFileAt(dirFd int32, path string) errs.Errno {
	dir, errno := h.descriptorAt(dirFd)
	if errno != errs.Success {
		return errno
	}
	resolved, errno := h.resolve(dir.path, path, 0)
	if errno != errs.Success {
		return errno
	}
	node, errno := h.cache.Lookup(resolved)
	if errno != errs.Success {
		return errno
	}
	if node.Kind == dircache.NodeDir {
		return errs.IsDirectory
	}
	if node.Kind == dircache.NodeSymlink {
		if errno := h.cache.Remove(resolved); errno != errs.Success {
			return errno
		}
		return h.symlinks.Remove(resolved)
	}
	if errno := h.cache.Remove(resolved); errno != errs.Success {
		return errno
	}
	return h.bridge.Remove(resolved)
}

// RenameAt moves oldPath (relative to oldDirFd) to newPath (relative to
// newDirFd), renaming the cache subtree under it, per spec §4.E. The
// symlink table is not updated: symlink entries nested under oldPath keep
// their old paths.
func (h *Host) RenameAt(oldDirFd int32, oldPath string, newDirFd int32, newPath string) errs.Errno {
	oldDir, errno := h.descriptorAt(oldDirFd)
	if errno != errs.Success {
		return errno
	}
	newDir, errno := h.descriptorAt(newDirFd)
	if errno != errs.Success {
		return errno
	}
	resolvedOld, errno := h.resolve(oldDir.path, oldPath, 0)
	if errno != errs.Success {
		return errno
	}
	resolvedNew, errno := h.resolve(newDir.path, newPath, 0)
	if errno != errs.Success {
		return errno
	}
	if errno := h.bridge.Rename(resolvedOld, resolvedNew); errno != errs.Success {
		return errno
	}
	return h.cache.Rename(resolvedOld, resolvedNew)
}

// LinkAt materializes newPath as an independent copy of oldPath's current
// content. The object store has no native hard-link primitive (spec
// §4.B's adapter surface is open/read/write/remove/rename only), so this
// is implemented as read-then-write; the two paths share no further
// identity after the call, unlike a POSIX hard link.
func (h *Host) LinkAt(oldDirFd int32, oldPath string, newDirFd int32, newPath string, pflags PathFlags) errs.Errno {
	oldDir, errno := h.descriptorAt(oldDirFd)
	if errno != errs.Success {
		return errno
	}
	newDir, errno := h.descriptorAt(newDirFd)
	if errno != errs.Success {
		return errno
	}
	resolvedOld, errno := h.resolve(oldDir.path, oldPath, pflags)
	if errno != errs.Success {
		return errno
	}
	resolvedNew, errno := h.resolve(newDir.path, newPath, 0)
	if errno != errs.Success {
		return errno
	}
	data, errno := h.bridge.ReadAll(objectstore.FileHandle{Path: resolvedOld})
	if errno != errs.Success {
		return errno
	}
	if _, errno := h.bridge.OpenFile(resolvedNew, true); errno != errs.Success {
		return errno
	}
	if errno := h.bridge.WriteAll(objectstore.FileHandle{Path: resolvedNew}, data); errno != errs.Success {
		return errno
	}
	return h.cache.InsertFile(resolvedNew, uint64(len(data)), uint64(time.Now().UnixMilli()))
}

// SymlinkAt writes target into the symlink namespace at path (relative
// to dirFd).
func (h *Host) SymlinkAt(dirFd int32, path string, target string) errs.Errno {
	dir, errno := h.descriptorAt(dirFd)
	if errno != errs.Success {
		return errno
	}
	resolved, errno := h.resolve(dir.path, path, 0)
	if errno != errs.Success {
		return errno
	}
	if errno := h.symlinks.Put(resolved, target); errno != errs.Success {
		return errno
	}
	return h.cache.InsertSymlink(resolved)
}

// ReadlinkAt returns the literal target string of the symlink at path.
// Fails errs.Invalid on a non-symlink, per spec §4.E.
func (h *Host) ReadlinkAt(dirFd int32, path string) (string, errs.Errno) {
	dir, errno := h.descriptorAt(dirFd)
	if errno != errs.Success {
		return "", errno
	}
	resolved, errno := h.resolve(dir.path, path, 0)
	if errno != errs.Success {
		return "", errno
	}
	target, ok := h.symlinks.Lookup(resolved)
	if !ok {
		return "", errs.Invalid
	}
	return target, errs.Success
}

// ReadDirectoryEntries drains the remaining cached entries for an open
// directory descriptor, snapshotting the listing on first call the same
// way internal/sys/fs.go's Dir buffers one os.ReadDir call's worth of
// entries for a directory handle's lifetime.
func (h *Host) ReadDirectoryEntries(fd int32) ([]DirEntry, errs.Errno) {
	d, errno := h.descriptorAt(fd)
	if errno != errs.Success {
		return nil, errno
	}
	if d.kind != KindDirectory {
		return nil, errs.NotDirectory
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dirEntries == nil {
		entries, errno := h.cache.Readdir(d.path)
		if errno != errs.Success {
			return nil, errno
		}
		d.dirEntries = entries
	}
	out := make([]DirEntry, 0, len(d.dirEntries)-d.dirPos)
	for ; d.dirPos < len(d.dirEntries); d.dirPos++ {
		e := d.dirEntries[d.dirPos]
		de := DirEntry{Name: e.Name}
		switch e.Kind {
		case objectstore.KindDir:
			de.Kind = KindDirectory
		case objectstore.KindSymlink:
			de.Kind = KindSymlink
		default:
			de.Kind = KindFile
		}
		out = append(out, de)
	}
	return out, errs.Success
}
