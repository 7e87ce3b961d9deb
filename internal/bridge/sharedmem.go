package bridge

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tjfontaine/wasihost/internal/errs"
	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
)

// Config holds the shared-memory tier's tunables, named in spec §6.
type Config struct {
	// BufferSize is the total size of the data area. Zero means the
	// spec §6 default of 64 KiB.
	BufferSize int
	// Timeout is how long a caller parks on RESPONSE_READY before giving
	// up with errs.WouldBlock. Zero means the spec §6 default of 30s.
	Timeout time.Duration
}

const (
	defaultBufferSize = 64 * 1024
	defaultTimeout    = 30 * time.Second
)

func (c Config) normalized() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// controlBlock mirrors spec §4.C's "first 16 words are the control block
// at offsets {0:REQUEST_READY, 1:RESPONSE_READY, 2:DATA_LENGTH,
// 3:SHUTDOWN}". Atomic stores with notification (spec §5) are represented
// by atomic.Uint32 fields plus a buffered notify channel per pending call.
type controlBlock struct {
	requestReady  atomic.Uint32
	responseReady atomic.Uint32
	dataLength    atomic.Uint32
	shutdown      atomic.Uint32
}

// wireRequest is the JSON-encoded request spec §4.C describes writing into
// the shared buffer's data area. One struct covers every operation; unused
// fields are simply omitted by the zero value.
type wireRequest struct {
	Op      string `json:"op"`
	Path    string `json:"path"`
	Path2   string `json:"path2,omitempty"`
	Create  bool   `json:"create,omitempty"`
	Payload []byte `json:"payload,omitempty"`
	MtimeMs int64  `json:"mtime_ms,omitempty"`
}

type wireResponse struct {
	Errno   errs.Errno        `json:"errno"`
	Payload []byte            `json:"payload,omitempty"`
	Entries []objectstore.Entry `json:"entries,omitempty"`
}

// call is one in-flight request/response exchange. notify fires exactly
// once, after the helper has populated resp and flipped responseReady.
type call struct {
	req    wireRequest
	resp   wireResponse
	notify chan struct{}
}

// sharedMemory implements Bridge using an explicit request/response
// rendezvous instead of a direct channel await, modeling the tier that
// lacks stack-switching support.
type sharedMemory struct {
	store objectstore.Store
	cfg   Config

	cb controlBlock

	mu      sync.Mutex
	pending chan *call // the "shared buffer": one request in flight at a time
}

func newSharedMemory(store objectstore.Store, cfg Config) *sharedMemory {
	sm := &sharedMemory{store: store, cfg: cfg.normalized(), pending: make(chan *call)}
	go sm.helperLoop()
	return sm
}

// helperLoop is the "helper executor" from spec §4.C: it consumes one
// request at a time, runs it against the underlying Store (which may
// itself dispatch asynchronously), writes the response, and notifies the
// waiting caller.
func (sm *sharedMemory) helperLoop() {
	for c := range sm.pending {
		sm.cb.requestReady.Store(1)
		c.resp = sm.execute(c.req)
		encoded, _ := json.Marshal(c.resp)
		if len(encoded) > sm.cfg.BufferSize {
			c.resp = wireResponse{Errno: errs.IO}
			encoded, _ = json.Marshal(c.resp)
		}
		sm.cb.dataLength.Store(uint32(len(encoded)))
		sm.cb.requestReady.Store(0)
		sm.cb.responseReady.Store(1)
		close(c.notify)
	}
}

func (sm *sharedMemory) execute(req wireRequest) wireResponse {
	switch req.Op {
	case "open_dir":
		r := <-sm.store.OpenDir(pathutil.Canonical(req.Path), req.Create)
		return wireResponse{Errno: r.Errno}
	case "open_file":
		r := <-sm.store.OpenFile(pathutil.Canonical(req.Path), req.Create)
		return wireResponse{Errno: r.Errno}
	case "list":
		r := <-sm.store.List(objectstore.DirHandle{Path: pathutil.Canonical(req.Path)})
		return wireResponse{Errno: r.Errno, Entries: r.Value}
	case "read_all":
		r := <-sm.store.ReadAll(objectstore.FileHandle{Path: pathutil.Canonical(req.Path)})
		return wireResponse{Errno: r.Errno, Payload: r.Value}
	case "write_all":
		r := <-sm.store.WriteAll(objectstore.FileHandle{Path: pathutil.Canonical(req.Path)}, req.Payload)
		return wireResponse{Errno: r.Errno}
	case "remove":
		r := <-sm.store.Remove(pathutil.Canonical(req.Path))
		return wireResponse{Errno: r.Errno}
	case "rename":
		r := <-sm.store.Rename(pathutil.Canonical(req.Path), pathutil.Canonical(req.Path2))
		return wireResponse{Errno: r.Errno}
	case "set_times":
		r := <-sm.store.SetTimes(pathutil.Canonical(req.Path), time.UnixMilli(req.MtimeMs))
		return wireResponse{Errno: r.Errno}
	default:
		return wireResponse{Errno: errs.Invalid}
	}
}

// dispatch submits req and parks the caller until the helper responds or
// cfg.Timeout elapses, returning errs.WouldBlock on timeout per spec §4.C
// ("timeout as would-block").
func (sm *sharedMemory) dispatch(req wireRequest) wireResponse {
	if encoded, err := json.Marshal(req); err != nil || len(encoded) > sm.cfg.BufferSize {
		return wireResponse{Errno: errs.IO}
	}
	c := &call{req: req, notify: make(chan struct{})}
	timeout := time.After(sm.cfg.Timeout)
	select {
	case sm.pending <- c:
	case <-timeout:
		return wireResponse{Errno: errs.WouldBlock}
	}
	select {
	case <-c.notify:
		return c.resp
	case <-timeout:
		return wireResponse{Errno: errs.WouldBlock}
	}
}

func (sm *sharedMemory) OpenDir(path pathutil.Canonical, create bool) (objectstore.DirHandle, errs.Errno) {
	resp := sm.dispatch(wireRequest{Op: "open_dir", Path: string(path), Create: create})
	return objectstore.DirHandle{Path: path}, resp.Errno
}

func (sm *sharedMemory) OpenFile(path pathutil.Canonical, create bool) (objectstore.FileHandle, errs.Errno) {
	resp := sm.dispatch(wireRequest{Op: "open_file", Path: string(path), Create: create})
	return objectstore.FileHandle{Path: path}, resp.Errno
}

func (sm *sharedMemory) List(dir objectstore.DirHandle) ([]objectstore.Entry, errs.Errno) {
	resp := sm.dispatch(wireRequest{Op: "list", Path: string(dir.Path)})
	return resp.Entries, resp.Errno
}

func (sm *sharedMemory) ReadAll(file objectstore.FileHandle) ([]byte, errs.Errno) {
	resp := sm.dispatch(wireRequest{Op: "read_all", Path: string(file.Path)})
	return resp.Payload, resp.Errno
}

func (sm *sharedMemory) WriteAll(file objectstore.FileHandle, data []byte) errs.Errno {
	resp := sm.dispatch(wireRequest{Op: "write_all", Path: string(file.Path), Payload: data})
	return resp.Errno
}

// CreateWritable has no meaningful wire representation (a Writer is a live
// handle, not a value), so the shared-memory tier falls back to calling
// the store directly for this one operation, same as the stack-switch
// tier. This is the one asymmetry the two tiers are allowed: spec §4.C
// only requires post-conditions to match, not the plumbing.
func (sm *sharedMemory) CreateWritable(file objectstore.FileHandle) (objectstore.Writer, errs.Errno) {
	r := <-sm.store.CreateWritable(file)
	return r.Value, r.Errno
}

func (sm *sharedMemory) Remove(path pathutil.Canonical) errs.Errno {
	resp := sm.dispatch(wireRequest{Op: "remove", Path: string(path)})
	return resp.Errno
}

func (sm *sharedMemory) Rename(oldPath, newPath pathutil.Canonical) errs.Errno {
	resp := sm.dispatch(wireRequest{Op: "rename", Path: string(oldPath), Path2: string(newPath)})
	return resp.Errno
}

func (sm *sharedMemory) SetTimes(path pathutil.Canonical, mtime time.Time) errs.Errno {
	resp := sm.dispatch(wireRequest{Op: "set_times", Path: string(path), MtimeMs: mtime.UnixMilli()})
	return resp.Errno
}
