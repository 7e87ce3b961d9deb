// Package modcache implements the lazy process manager's module cache
// (component H, spec §4.H): a static command→module mapping is not this
// package's concern (that lives in internal/process, which owns the
// registry); this package only caches loaded modules by name and
// deduplicates concurrent loads of the same name, so that `N` guest
// commands racing to spawn the same module trigger exactly one load.
//
// Grounded on golang.org/x/sync/singleflight as used by
// backend/netexplorer (rclone-rclone)'s listSF field: its
// `listSF.Do(key, fn)` pattern — one in-flight call per key, every
// concurrent caller for that key blocks on and receives the same result —
// is exactly spec §4.H's "if absent and not loading, starts loading and
// inserts the future; concurrent requests await the same future", so
// this package reuses the library rather than hand-rolling a
// loaded/loading map pair.
package modcache

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Module is a lazily loaded guest component (spec glossary). What a
// Module actually runs is outside this module's scope — spec §1 excludes
// "the specific external git/sqlite/language engines that ship as guest
// components" as a collaborator — so Module is a thin handle an embedder
// populates with its own Run entry point; internal/process only ever
// calls Module.Run, never inspects what's behind it.
type Module struct {
	Name string
	Run  RunFunc
}

// RunFunc is a module's `run` export, modeled on the CLI command-entry
// surface spec §6 names ("a command entry (run) invoked by the
// embedder"). ctx is cancelled when the process receives SIGTERM (spec
// §4.H "marks the process for termination on its next suspension
// point"); rc carries stdio, args, and env. internal/process constructs
// rc and supplies it on every spawn; the embedder's Loader supplies the
// RunFunc itself, typically by instantiating a real wasm component
// through whatever engine it wires in.
type RunFunc func(ctx context.Context, rc RunContext) int32

// RunContext is the argument a RunFunc receives. It is defined here
// (rather than in internal/process, which constructs it) so that
// embedder-supplied Loaders can depend on modcache alone without also
// importing internal/process.
type RunContext struct {
	Args   []string
	Env    map[string]string
	Cwd    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Loader loads a module by name, e.g. compiling and instantiating the
// wasm component a command maps to. A Loader failure (module missing,
// compile error) is reported as a plain error; internal/process turns
// that into the guest-visible exit code 127 (spec §4.H, §7 "Module-load
// failure yields exit code 127").
type Loader func(name string) (Module, error)

// Cache is the per-module loaded/loading cache from spec §4.H.
type Cache struct {
	loader Loader
	group  singleflight.Group

	mu     sync.RWMutex
	loaded map[string]Module
}

// New builds a Cache that calls loader on a cache miss.
func New(loader Loader) *Cache {
	return &Cache{loader: loader, loaded: make(map[string]Module)}
}

// Load returns the cached Module for name, loading it if this is the
// first request and deduplicating concurrent requests for the same name
// onto a single in-flight load.
func (c *Cache) Load(name string) (Module, error) {
	c.mu.RLock()
	if m, ok := c.loaded[name]; ok {
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(name, func() (any, error) {
		m, err := c.loader(name)
		if err != nil {
			return Module{}, err
		}
		c.mu.Lock()
		c.loaded[name] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return Module{}, err
	}
	return v.(Module), nil
}

// Preload eagerly loads every name in names in parallel and waits for all
// of them to finish, per spec §4.H "In the no-stack-switch tier, all
// modules are loaded eagerly at startup in parallel." Individual load
// errors are collected but do not stop other loads. Failures are not
// cached: a later spawn of a failed name retries the load and yields exit
// code 127 only if that load fails too.
func (c *Cache) Preload(names []string) map[string]error {
	errsByName := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Load(name); err != nil {
				mu.Lock()
				errsByName[name] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errsByName
}

// Loaded reports whether name has already been loaded (for tests and
// diagnostics; not part of the guest-facing contract).
func (c *Cache) Loaded(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.loaded[name]
	return ok
}
