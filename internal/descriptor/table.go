// Package descriptor is a generic handle table mapping small integer
// descriptors to arbitrary values, the same role wazero's own
// internal/descriptor.Table plays for file descriptors (see
// internal/sys/fs.go's FileTable specialization). Component E
// specializes it over *fshost.Descriptor; no other package in this
// module uses it.
package descriptor

import "sync"

// Table maps a descriptor of type K to a value of type V. The zero value
// is an empty table ready to use. A Table is safe for concurrent use.
type Table[K ~int32, V any] struct {
	mu     sync.RWMutex
	nextID K
	m      map[K]V
}

func (t *Table[K, V]) init() {
	if t.m == nil {
		t.m = make(map[K]V)
	}
}

// Insert adds v at the lowest unused descriptor at or above the
// high-water mark and returns it. ok is false only if the table has
// wrapped K's range, which does not happen in practice for this module's
// int32 descriptors.
func (t *Table[K, V]) Insert(v V) (K, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	for {
		k := t.nextID
		t.nextID++
		if t.nextID < 0 { // wrapped
			return 0, false
		}
		if _, taken := t.m[k]; !taken {
			t.m[k] = v
			return k, true
		}
	}
}

// InsertAt inserts v at exactly descriptor k, failing if k is already in
// use (dup2-style placement). Nothing in this module calls it outside
// its tests.
func (t *Table[K, V]) InsertAt(v V, k K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.init()
	if _, taken := t.m[k]; taken {
		return false
	}
	t.m[k] = v
	if k >= t.nextID {
		t.nextID = k + 1
	}
	return true
}

// Lookup returns the value at descriptor k, if any.
func (t *Table[K, V]) Lookup(k K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.m[k]
	return v, ok
}

// Delete removes descriptor k, if present.
func (t *Table[K, V]) Delete(k K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, k)
}

// Range calls fn for every descriptor in the table in unspecified order,
// stopping early if fn returns false.
func (t *Table[K, V]) Range(fn func(k K, v V) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for k, v := range t.m {
		if !fn(k, v) {
			return
		}
	}
}

// Len reports the number of entries currently in the table.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}
