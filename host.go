// Package wasihost wires every component of the WASI Preview-2 host
// bridge (spec §2) into a single embedder-facing Host, the way wazero's
// own root package composes a Runtime from its internal engine/sys
// packages behind a small, builder-less Config struct (no functional
// options, no viper/cobra — matching wazero's RuntimeConfig/ModuleConfig
// style, per SPEC_FULL.md's ambient-stack configuration decision).
package wasihost

import (
	"time"

	"go.uber.org/zap"

	"github.com/tjfontaine/wasihost/internal/bridge"
	"github.com/tjfontaine/wasihost/internal/clockhost"
	"github.com/tjfontaine/wasihost/internal/dircache"
	"github.com/tjfontaine/wasihost/internal/fshost"
	"github.com/tjfontaine/wasihost/internal/httphost"
	"github.com/tjfontaine/wasihost/internal/modcache"
	"github.com/tjfontaine/wasihost/internal/objectstore"
	"github.com/tjfontaine/wasihost/internal/pathutil"
	"github.com/tjfontaine/wasihost/internal/process"
	"github.com/tjfontaine/wasihost/internal/symlink"
	"github.com/tjfontaine/wasihost/internal/symlinkstore"
)

// Config holds the embedder-facing tunables. It has no poll-interval
// field; no poll interval is configurable. The zero value is invalid for
// CORSProxy (there is none) but otherwise normalizes to the spec §6
// defaults via DefaultConfig.
type Config struct {
	// CORSProxy, if set, is a URL the HTTP host rewrites outbound
	// requests through when the target host forbids direct access
	// (spec §6 "CORS_PROXY").
	CORSProxy string

	// DefaultTerminal holds the default terminal size (spec §6 "cols=80
	// rows=24"). New does not pass it to the process manager, so a
	// spawned process starts with a zero TerminalSize unless one is given
	// at spawn.
	DefaultTerminal process.TerminalSize

	// SharedBufferSize and SyncBridgeTimeout tune the shared-memory sync
	// bridge tier (spec §6 "64 KiB" / "30 000 ms"); both are ignored in
	// ModeStackSwitch.
	SharedBufferSize  int
	SyncBridgeTimeout time.Duration

	// StdoutChunk and StderrChunk cap a single ReadStdout/ReadStderr
	// call on a LazyProcess (spec §6 "8192" / "1024").
	StdoutChunk int
	StderrChunk int

	// HTTPTimeout bounds a single outbound request. Zero disables the
	// timeout, matching net/http.Client's own zero-value semantics.
	HTTPTimeout time.Duration
}

// DefaultConfig returns the spec §6 defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTerminal:   process.TerminalSize{Cols: 80, Rows: 24},
		SharedBufferSize:  64 * 1024,
		SyncBridgeTimeout: 30 * time.Second,
		StdoutChunk:       8192,
		StderrChunk:       1024,
	}
}

// Host composes the guest-facing import surface spec §6 describes:
// filesystem, HTTP, clocks, and the lazy process manager. An embedder
// wires whichever fields it needs into its guest's import table; Host
// itself does not know about any particular wasm engine (spec §1
// excludes the engine as a collaborator).
type Host struct {
	Config Config

	FS      *fshost.Host
	HTTP    *httphost.Host
	Clock   *clockhost.Host
	Process *process.Manager

	logger *zap.Logger
}

// New builds a Host. store and symlinkStore back the filesystem; mode
// selects the sync-bridge tier (spec §4.C); loader resolves a module
// name to a runnable guest command (spec §4.H) — what it actually loads
// is outside this module's scope, see internal/modcache's doc comment;
// registry maps command names to module names, e.g. process.DefaultRegistry.
// A nil logger is replaced with a no-op one.
func New(cfg Config, store objectstore.Store, symlinkStore symlinkstore.Store, mode bridge.Mode, loader modcache.Loader, registry map[string]string, logger *zap.Logger) (*Host, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	symlinks, err := symlink.New(symlinkStore)
	if err != nil {
		return nil, err
	}

	br := bridge.New(mode, store, bridge.Config{
		BufferSize: cfg.SharedBufferSize,
		Timeout:    cfg.SyncBridgeTimeout,
	})
	cache := dircache.New(br)
	fs := fshost.New(br, symlinks, cache)

	httpOpts := []httphost.Option{httphost.WithLogger(logger)}
	if cfg.CORSProxy != "" {
		httpOpts = append(httpOpts, httphost.WithCORSProxy(cfg.CORSProxy))
	}
	h := httphost.New(cfg.HTTPTimeout, httpOpts...)

	clock := clockhost.New()

	mcache := modcache.New(loader)
	mgr := process.NewManager(registry, mcache, logger, cfg.StdoutChunk, cfg.StderrChunk)

	return &Host{
		Config:  cfg,
		FS:      fs,
		HTTP:    h,
		Clock:   clock,
		Process: mgr,
		logger:  logger,
	}, nil
}

// Preopen registers path as a preopened root directory descriptor,
// forwarding to the filesystem host.
func (h *Host) Preopen(path string) (int32, error) {
	canon, errno := pathutil.Canonicalize(path)
	if errno != 0 {
		return 0, errno
	}
	fd, errno := h.FS.Preopen(canon)
	if errno != 0 {
		return 0, errno
	}
	return fd, nil
}
