// Package objectstore is the lowest-level adapter over the host's async
// object store (component B, spec §4.B): open directory/file, list, read,
// write, delete, rename. In the source system this is a thin wrapper over
// the browser's origin-private file system; here it is modeled as a Go
// interface whose methods return a future (a buffered channel of exactly
// one Result), so that component C (the sync bridge) has a genuine
// asynchronous primitive to bridge rather than a call that happens to
// already block.
package objectstore

import (
	"time"

	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/pathutil"
)

// Kind distinguishes directory, file, and symlink entries as returned by
// List. Symlinks are resolved by component A before reaching the object
// store, so the store itself only ever needs to report file/dir, but a
// Symlink kind is kept so an adapter backed by a real filesystem (which may
// contain symlinks placed outside this module's control) can report one
// without crashing callers.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// Entry is one line of a directory listing.
type Entry struct {
	Name    string
	Kind    Kind
	Size    uint64 // valid when Kind == KindFile
	MtimeMs uint64 // valid when Kind == KindFile
}

// DirHandle and FileHandle are opaque capabilities returned by OpenDir and
// OpenFile. They carry the canonical path because, unlike a browser
// FileSystemHandle, nothing here needs an opaque native reference: the
// adapter re-derives whatever native resource it needs from the path on
// each call. Adapters with real native handles to cache (e.g. an open
// native fd) do so internally, keyed by the same canonical path.
type DirHandle struct{ Path pathutil.Canonical }

type FileHandle struct{ Path pathutil.Canonical }

// Writer is a streaming handle returned by CreateWritable, for large
// writes that should not be buffered wholesale in memory. Most filesystem
// host operations use WriteAll; Writer exists for parity with the object
// store's own `createWritable` primitive (spec §4.B). internal/fshost does
// not use it; within this module only internal/bridge forwards
// CreateWritable.
type Writer interface {
	Write(p []byte) (n int, errno errs.Errno)
	Close() errs.Errno
}

// Result carries either a payload or an error, delivered once over the
// channel a Future method returns.
type Result[T any] struct {
	Value T
	Errno errs.Errno
}

// Future is a one-shot result channel. Exactly one Result is ever sent,
// after which the channel is closed.
type Future[T any] <-chan Result[T]

// Store is the async object-store adapter. Every operation fails with one
// of exactly the kinds named in spec §4.B: NoEntry, IsDirectory,
// NotDirectory, Permission, or IO — no other Errno values are produced
// here (callers above this layer, e.g. the symlink namespace, may raise
// others such as Loop, but that is not this adapter's concern).
type Store interface {
	OpenDir(path pathutil.Canonical, create bool) Future[DirHandle]
	OpenFile(path pathutil.Canonical, create bool) Future[FileHandle]
	List(dir DirHandle) Future[[]Entry]
	ReadAll(file FileHandle) Future[[]byte]
	WriteAll(file FileHandle, data []byte) Future[struct{}]
	CreateWritable(file FileHandle) Future[Writer]
	Remove(path pathutil.Canonical) Future[struct{}]
	Rename(oldPath, newPath pathutil.Canonical) Future[struct{}]
	// SetTimes persists mtime for path. There is no atime parameter here
	// or in the layers above.
	SetTimes(path pathutil.Canonical, mtime time.Time) Future[struct{}]
}

// resolve builds a ready Future from a value computed synchronously,
// without a background goroutine. Nothing in this package calls it at
// present: every Local operation dispatches to the IO executor, see
// local.go.
func resolve[T any](v T, errno errs.Errno) Future[T] {
	ch := make(chan Result[T], 1)
	ch <- Result[T]{Value: v, Errno: errno}
	close(ch)
	return ch
}
