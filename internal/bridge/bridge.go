// Package bridge turns objectstore's asynchronous Future-returning
// operations into blocking calls the filesystem host can issue from a
// guest's synchronous import (component C, spec §4.C). Two strategies are
// provided, selected once per process from host capability probing and
// never mixed (spec §4.C, §9):
//
//   - StackSwitch: the "host runtime supports suspending a stack" tier.
//     Wrappers simply wait on the Future's channel and return; this is the
//     natural shape of a Go call that happens to block on another
//     goroutine's result.
//   - SharedMemory: the tier without stack-switching. A request is encoded
//     into a fixed-layout buffer, a helper goroutine processes it and
//     writes the response back, and the caller parks on a bounded-wait
//     rendezvous instead of a plain channel receive, exactly mirroring the
//     SharedArrayBuffer + Atomics.wait/notify handshake spec §4.C
//     describes for a browser worker.
//
// Both strategies must produce byte-identical results for identical
// inputs against the same Store (spec §8 "Bridge equivalence"); only
// latency and failure-on-timeout behavior differ.
package bridge

import (
	"time"

	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
)

// Bridge is the synchronous facade over objectstore.Store that
// internal/fshost and internal/dircache call into on a cache miss.
type Bridge interface {
	OpenDir(path pathutil.Canonical, create bool) (objectstore.DirHandle, errs.Errno)
	OpenFile(path pathutil.Canonical, create bool) (objectstore.FileHandle, errs.Errno)
	List(dir objectstore.DirHandle) ([]objectstore.Entry, errs.Errno)
	ReadAll(file objectstore.FileHandle) ([]byte, errs.Errno)
	WriteAll(file objectstore.FileHandle, data []byte) errs.Errno
	CreateWritable(file objectstore.FileHandle) (objectstore.Writer, errs.Errno)
	Remove(path pathutil.Canonical) errs.Errno
	Rename(oldPath, newPath pathutil.Canonical) errs.Errno
	SetTimes(path pathutil.Canonical, mtime time.Time) errs.Errno
}

// Mode names the two capability tiers from spec §4.C.
type Mode uint8

const (
	// ModeStackSwitch is selected when the host runtime can suspend a
	// calling stack across an async boundary.
	ModeStackSwitch Mode = iota
	// ModeSharedMemory is the fallback tier, using an explicit
	// request/response rendezvous instead of stack suspension.
	ModeSharedMemory
)

// New builds a Bridge in the given mode over store. cfg is only consulted
// in ModeSharedMemory (buffer size and timeout); pass a zero Config to get
// the spec §6 defaults (64 KiB buffer, 30s timeout).
func New(mode Mode, store objectstore.Store, cfg Config) Bridge {
	switch mode {
	case ModeSharedMemory:
		return newSharedMemory(store, cfg)
	default:
		return &stackSwitch{store: store}
	}
}
