package objectstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
)

func await[T any](t *testing.T, f objectstore.Future[T]) (T, errs.Errno) {
	t.Helper()
	select {
	case r := <-f:
		return r.Value, r.Errno
	case <-time.After(5 * time.Second):
		t.Fatal("future did not resolve")
		var zero T
		return zero, errs.IO
	}
}

func TestLocal_FileLifecycle(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	fh, errno := await(t, store.OpenFile("a.txt", true))
	require.Equal(t, errs.Success, errno)

	_, errno = await(t, store.WriteAll(fh, []byte("hello")))
	require.Equal(t, errs.Success, errno)

	data, errno := await(t, store.ReadAll(fh))
	require.Equal(t, errs.Success, errno)
	require.Equal(t, []byte("hello"), data)

	_, errno = await(t, store.Remove("a.txt"))
	require.Equal(t, errs.Success, errno)

	_, errno = await(t, store.ReadAll(fh))
	require.Equal(t, errs.NoEntry, errno)
}

func TestLocal_OpenFile_NoCreate(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, errno := await(t, store.OpenFile("missing.txt", false))
	require.Equal(t, errs.NoEntry, errno)
}

func TestLocal_OpenFile_OnDirectory(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, errno := await(t, store.OpenDir("sub", true))
	require.Equal(t, errs.Success, errno)

	_, errno = await(t, store.OpenFile("sub", false))
	require.Equal(t, errs.IsDirectory, errno)
}

func TestLocal_ListAndRename(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	dh, errno := await(t, store.OpenDir(pathutil.Root, true))
	require.Equal(t, errs.Success, errno)

	fh, errno := await(t, store.OpenFile("x.txt", true))
	require.Equal(t, errs.Success, errno)
	_, errno = await(t, store.WriteAll(fh, []byte("data")))
	require.Equal(t, errs.Success, errno)

	entries, errno := await(t, store.List(dh))
	require.Equal(t, errs.Success, errno)
	require.Len(t, entries, 1)
	require.Equal(t, "x.txt", entries[0].Name)
	require.Equal(t, uint64(4), entries[0].Size)

	_, errno = await(t, store.Rename("x.txt", "y.txt"))
	require.Equal(t, errs.Success, errno)

	data, errno := await(t, store.ReadAll(objectstore.FileHandle{Path: "y.txt"}))
	require.Equal(t, errs.Success, errno)
	require.Equal(t, []byte("data"), data)
}

func TestLocal_CreateWritable(t *testing.T) {
	store, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	fh, errno := await(t, store.OpenFile("w.txt", true))
	require.Equal(t, errs.Success, errno)

	w, errno := await(t, store.CreateWritable(fh))
	require.Equal(t, errs.Success, errno)
	n, errno := w.Write([]byte("chunk"))
	require.Equal(t, errs.Success, errno)
	require.Equal(t, 5, n)
	require.Equal(t, errs.Success, w.Close())

	data, errno := await(t, store.ReadAll(fh))
	require.Equal(t, errs.Success, errno)
	require.Equal(t, []byte("chunk"), data)
}
