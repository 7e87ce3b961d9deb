package fshost_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/wasihost/internal/bridge"
	"github.com/tjfontaine/wasihost/internal/dircache"
	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/fshost"
	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
	"github.com/tjfontaine/wasihost/internal/symlink"
	"github.com/tjfontaine/wasihost/internal/symlinkstore"
)

func newHost(t *testing.T) (*fshost.Host, int32) {
	t.Helper()
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(store.Close)

	b := bridge.New(bridge.ModeStackSwitch, store, bridge.Config{})
	symlinks, err := symlink.New(symlinkstore.NewMemory())
	require.NoError(t, err)
	cache := dircache.New(b)

	h := fshost.New(b, symlinks, cache)
	root, errno := h.Preopen(pathutil.Root)
	require.Equal(t, errs.Success, errno)
	return h, root
}

func TestHost_CreateWriteReadFile(t *testing.T) {
	h, root := newHost(t)

	fd, errno := h.OpenAt(root, "greeting.txt", fshost.OpenCreate, fshost.DescriptorRead|fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)

	n, errno := h.Write(fd, []byte("hello"))
	require.Equal(t, errs.Success, errno)
	require.Equal(t, uint64(5), n)

	require.Equal(t, errs.Success, h.Seek(fd, 0))
	data, eof, errno := h.Read(fd, 100)
	require.Equal(t, errs.Success, errno)
	require.True(t, eof)
	require.Equal(t, []byte("hello"), data)

	require.Equal(t, errs.Success, h.Close(fd))

	fd2, errno := h.OpenAt(root, "greeting.txt", 0, fshost.DescriptorRead, 0)
	require.Equal(t, errs.Success, errno)
	data, _, errno = h.Read(fd2, 100)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, []byte("hello"), data)
}

func TestHost_PReadPWrite(t *testing.T) {
	h, root := newHost(t)

	fd, errno := h.OpenAt(root, "f.bin", fshost.OpenCreate, fshost.DescriptorRead|fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)

	_, errno = h.PWrite(fd, []byte("XXXX"), 4)
	require.Equal(t, errs.Success, errno)

	data, _, errno := h.PRead(fd, 4, 4)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, []byte("XXXX"), data)

	data, _, errno = h.PRead(fd, 4, 0)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, []byte{0, 0, 0, 0}, data)
}

func TestHost_StatAndSetSize(t *testing.T) {
	h, root := newHost(t)

	fd, errno := h.OpenAt(root, "f.txt", fshost.OpenCreate, fshost.DescriptorRead|fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)
	_, errno = h.Write(fd, []byte("0123456789"))
	require.Equal(t, errs.Success, errno)

	require.Equal(t, errs.Success, h.SetSize(fd, 4))
	st, errno := h.Stat(fd)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, uint64(4), st.Size)
	require.Equal(t, fshost.KindFile, st.Kind)
	require.Equal(t, uint32(0o644), st.Mode)
}

func TestHost_DirectoryLifecycle(t *testing.T) {
	h, root := newHost(t)

	require.Equal(t, errs.Success, h.CreateDirectoryAt(root, "sub"))
	subFd, errno := h.OpenAt(root, "sub", fshost.OpenDirectory, fshost.DescriptorRead, fshost.PathSymlinkFollow)
	require.Equal(t, errs.Success, errno)

	fd, errno := h.OpenAt(subFd, "inner.txt", fshost.OpenCreate, fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)
	_, errno = h.Write(fd, []byte("x"))
	require.Equal(t, errs.Success, errno)
	require.Equal(t, errs.Success, h.Close(fd))

	entries, errno := h.ReadDirectoryEntries(subFd)
	require.Equal(t, errs.Success, errno)
	require.Len(t, entries, 1)
	require.Equal(t, "inner.txt", entries[0].Name)

	require.Equal(t, errs.NotEmpty, h.RemoveDirectoryAt(root, "sub"))
	require.Equal(t, errs.Success, h.UnlinkFileAt(subFd, "inner.txt"))
	require.Equal(t, errs.Success, h.RemoveDirectoryAt(root, "sub"))
}

func TestHost_RenameAt(t *testing.T) {
	h, root := newHost(t)

	fd, errno := h.OpenAt(root, "a.txt", fshost.OpenCreate, fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)
	_, errno = h.Write(fd, []byte("content"))
	require.Equal(t, errs.Success, errno)
	require.Equal(t, errs.Success, h.Close(fd))

	require.Equal(t, errs.Success, h.RenameAt(root, "a.txt", root, "b.txt"))

	_, errno = h.StatAt(root, "a.txt", fshost.PathSymlinkFollow)
	require.Equal(t, errs.NoEntry, errno)
	st, errno := h.StatAt(root, "b.txt", fshost.PathSymlinkFollow)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, uint64(7), st.Size)
}

func TestHost_OverlappingWriteOpensExclusive(t *testing.T) {
	h, root := newHost(t)

	fd1, errno := h.OpenAt(root, "w.txt", fshost.OpenCreate, fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)

	// A second write-only open of the same path has nothing to downgrade
	// to, so it fails with Busy rather than silently getting its own
	// independent buffer (spec §3/§5 exclusive-write-handle invariant).
	_, errno = h.OpenAt(root, "w.txt", 0, fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Busy, errno)

	// A read-write open of the same path downgrades to read-only instead
	// of failing outright (spec §5 "overlapping opens downgrade to
	// read-only... depending on flags").
	fd2, errno := h.OpenAt(root, "w.txt", 0, fshost.DescriptorRead|fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)
	_, errno = h.Write(fd2, []byte("nope"))
	require.Equal(t, errs.Access, errno)

	require.Equal(t, errs.Success, h.Close(fd2))
	require.Equal(t, errs.Success, h.Close(fd1))

	// Once both holders have closed, the write handle is free again.
	fd3, errno := h.OpenAt(root, "w.txt", 0, fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)
	_, errno = h.Write(fd3, []byte("ok"))
	require.Equal(t, errs.Success, errno)
	require.Equal(t, errs.Success, h.Close(fd3))
}

func TestHost_AppendIgnoresSeekPosition(t *testing.T) {
	h, root := newHost(t)

	fd, errno := h.OpenAt(root, "log.txt", fshost.OpenCreate, fshost.DescriptorRead|fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)
	_, errno = h.Write(fd, []byte("hello"))
	require.Equal(t, errs.Success, errno)
	require.Equal(t, errs.Success, h.Close(fd))

	fd2, errno := h.OpenAt(root, "log.txt", fshost.OpenAppend, fshost.DescriptorRead|fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)

	// Seeking to the start must not matter: an append-mode write always
	// lands at end-of-file (spec §3 Descriptor "append: bool").
	require.Equal(t, errs.Success, h.Seek(fd2, 0))
	_, errno = h.Write(fd2, []byte(" world"))
	require.Equal(t, errs.Success, errno)

	require.Equal(t, errs.Success, h.Seek(fd2, 0))
	data, eof, errno := h.Read(fd2, 100)
	require.Equal(t, errs.Success, errno)
	require.True(t, eof)
	require.Equal(t, []byte("hello world"), data)

	// An explicit pwrite offset is overridden the same way.
	_, errno = h.PWrite(fd2, []byte("!"), 0)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, errs.Success, h.Seek(fd2, 0))
	data, _, errno = h.Read(fd2, 100)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, []byte("hello world!"), data)

	require.Equal(t, errs.Success, h.Close(fd2))
}

func TestHost_SymlinkAtAndReadlinkAt(t *testing.T) {
	h, root := newHost(t)

	require.Equal(t, errs.Success, h.SymlinkAt(root, "link", "target.txt"))
	target, errno := h.ReadlinkAt(root, "link")
	require.Equal(t, errs.Success, errno)
	require.Equal(t, "target.txt", target)

	_, errno = h.ReadlinkAt(root, "link/nested")
	require.Equal(t, errs.Invalid, errno)
}

func TestHost_SetTimes(t *testing.T) {
	h, root := newHost(t)

	fd, errno := h.OpenAt(root, "f.txt", fshost.OpenCreate, fshost.DescriptorWrite, 0)
	require.Equal(t, errs.Success, errno)

	require.Equal(t, errs.Success, h.SetTimes(fd, fshost.TimeSpec{Mtime: fshost.TimeExplicit, Sec: 1_700_000_000}))
	st, errno := h.Stat(fd)
	require.Equal(t, errs.Success, errno)
	require.Equal(t, int64(1_700_000_000), st.MtimeSec)
}
