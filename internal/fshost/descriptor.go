package fshost

import (
	"sync"

	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
)

// Kind is the descriptor's filesystem object kind, reported by Stat.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

// Descriptor is one open guest-facing handle. File content is buffered
// whole in memory on first read/write and flushed on Sync/Close — the
// object store adapter (component B) only exposes whole-file
// read_all/write_all/create_writable, the same way a origin-private-file-
// system SyncAccessHandle is typically buffered by embedders that don't
// need true sparse IO.
type Descriptor struct {
	mu sync.Mutex

	path  pathutil.Canonical
	kind  Kind
	flags DescriptorFlags

	// append is spec §3 Descriptor's "append: bool" (OpenFlags.OpenAppend
	// at open-at time): every write lands at end-of-file regardless of
	// pos or an explicit pwrite offset.
	append bool

	// writeLocked is true only when this descriptor actually holds the
	// path's exclusive write handle (dircache.Cache.TryAcquireWrite
	// succeeded for it) — a descriptor downgraded to read-only, or one
	// that never requested write access, must not release a lock it
	// never acquired.
	writeLocked bool

	loaded bool
	dirty  bool
	buf    []byte
	pos    uint64

	dirEntries []objectstore.Entry
	dirPos     int

	closed bool
}

func newFileDescriptor(path pathutil.Canonical, flags DescriptorFlags) *Descriptor {
	return &Descriptor{path: path, kind: KindFile, flags: flags}
}

func newDirDescriptor(path pathutil.Canonical, flags DescriptorFlags) *Descriptor {
	return &Descriptor{path: path, kind: KindDirectory, flags: flags}
}

func newSymlinkDescriptor(path pathutil.Canonical, flags DescriptorFlags) *Descriptor {
	return &Descriptor{path: path, kind: KindSymlink, flags: flags}
}
