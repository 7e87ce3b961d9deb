package symlinkstore

import (
	"sync"

	"github.com/tjfontaine/wasihost/internal/pathutil"
)

// Memory is a Store backed by a plain map, with no durability across
// process restarts. It is the default for embedders that accept rebuilding
// the symlink table from scratch (e.g. tests, or a store whose object
// store is itself ephemeral).
type Memory struct {
	mu      sync.Mutex
	entries map[pathutil.Canonical]string
}

// NewMemory returns an empty in-memory symlink store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[pathutil.Canonical]string)}
}

func (m *Memory) LoadAll() (map[pathutil.Canonical]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[pathutil.Canonical]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Put(path pathutil.Canonical, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[path] = target
	return nil
}

func (m *Memory) Delete(path pathutil.Canonical) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, path)
	return nil
}

func (m *Memory) DeletePrefix(prefix pathutil.Canonical) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if pathutil.IsStrictDescendant(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
