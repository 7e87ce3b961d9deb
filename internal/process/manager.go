package process

import (
	"go.uber.org/zap"

	"github.com/tjfontaine/wasihost/internal/modcache"
)

// DefaultRegistry is an illustrative command→module mapping matching the
// kinds of guest components spec §2's component table names for (H): "a
// transpiler command, a sqlite command, a git command, shell commands, a
// demo TUI". A real embedder supplies its own registry built from its
// guest manifest; this is a sensible zero-value default, not a
// hard-coded requirement.
var DefaultRegistry = map[string]string{
	"tsc":     "transpiler",
	"sqlite3": "sqlite",
	"git":     "git",
	"sh":      "shell",
	"bash":    "shell",
}

// Manager wires a command registry to a module cache and constructs
// LazyProcess handles on spawn, per spec §4.H.
type Manager struct {
	registry map[string]string
	cache    *modcache.Cache
	logger   *zap.Logger

	stdoutChunk int
	stderrChunk int
}

// NewManager builds a Manager. registry maps a command name (e.g. "git")
// to the module name that implements it; cache loads/caches modules by
// that name. stdoutChunk/stderrChunk override the spec §6 default poll
// chunk sizes (8192/1024) when positive.
func NewManager(registry map[string]string, cache *modcache.Cache, logger *zap.Logger, stdoutChunk, stderrChunk int) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry:    registry,
		cache:       cache,
		logger:      logger,
		stdoutChunk: stdoutChunk,
		stderrChunk: stderrChunk,
	}
}

// GetLazyModule resolves command to its module name, per spec §6
// "get-lazy-module(command) → optional<module>". It does not load the
// module — only Spawn (via the first CloseStdin/Execute) does that.
func (m *Manager) GetLazyModule(command string) (moduleName string, ok bool) {
	name, ok := m.registry[command]
	return name, ok
}

// Preload eagerly loads every module named in the registry, in parallel,
// per spec §4.H's no-stack-switch-tier eager-load requirement. Callers
// in the stack-switch tier should not call this; modules there load on
// first spawn instead.
func (m *Manager) Preload() map[string]error {
	seen := make(map[string]bool, len(m.registry))
	names := make([]string, 0, len(m.registry))
	for _, moduleName := range m.registry {
		if !seen[moduleName] {
			seen[moduleName] = true
			names = append(names, moduleName)
		}
	}
	return m.cache.Preload(names)
}

// Spawn resolves command to a module and returns a new LazyProcess, per
// spec §6 "spawn-lazy-command(module, command, args, env) → LazyProcess".
// If command is not in the registry, the returned process is already
// exited with code 127 — spec §4.H "exit_code = 127" for an unavailable
// module — and CloseStdin/Execute on it are no-ops.
func (m *Manager) Spawn(command string, args []string, env Env, opts SpawnOpts) *LazyProcess {
	moduleName, ok := m.registry[command]
	if !ok {
		m.logger.Debug("spawn: no module registered for command", zap.String("command", command))
		return moduleUnavailable(command)
	}
	return newLazyProcess(moduleName, command, args, env, m.cache, m.logger, m.stdoutChunk, m.stderrChunk, opts)
}
