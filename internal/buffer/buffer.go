// Package buffer implements the bounded in-memory artifact store: a
// key->blob map with a byte-size budget and FIFO eviction, grounded on
// original_source/src/gis-map-server/storage.py's Storage class.
//
// The Buffer is mutated by POST handlers and read by GET handlers
// concurrently (spec.md §5), so every operation is guarded by a single
// mutex.
package buffer

import (
	"sync"

	"gis-map-server/internal/resp"
)

type entry struct {
	payload []byte
	format  string
}

// Buffer is a bounded id -> (payload, format) store. Eviction is FIFO by
// insertion order (spec.md §4.2 permits "any deterministic or FIFO
// policy"); order is a fixed-cost side channel, not derived from map
// iteration order, so behavior does not depend on Go's randomized map
// iteration.
type Buffer struct {
	mu          sync.Mutex
	entries     map[int64]entry
	order       []int64 // insertion order, oldest first
	currentSize int64
	maxSize     int64
}

func New(maxSize int64) *Buffer {
	return &Buffer{
		entries: make(map[int64]entry),
		maxSize: maxSize,
	}
}

// Push stores payload under id. It returns resp.StatusInvalidParam if id
// is already present, resp.StatusNoMem if payload alone exceeds the
// budget, or resp.StatusReady together with the list of ids evicted (in
// eviction order) to make room.
func (b *Buffer) Push(id int64, payload []byte, format string) (status int, evicted []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[id]; exists {
		return resp.StatusInvalidParam, nil
	}

	length := int64(len(payload))
	if length > b.maxSize {
		return resp.StatusNoMem, nil
	}

	for b.currentSize+length > b.maxSize && len(b.order) > 0 {
		victim := b.order[0]
		b.order = b.order[1:]
		v := b.entries[victim]
		delete(b.entries, victim)
		b.currentSize -= int64(len(v.payload))
		evicted = append(evicted, victim)
	}

	b.entries[id] = entry{payload: payload, format: format}
	b.order = append(b.order, id)
	b.currentSize += length
	return resp.StatusReady, evicted
}

// PopByID returns the artifact stored under id without removing it or
// decrementing current_size — a deliberate read-through per
// storage.py's pop_by_id and spec.md §9's "Buffer accounting asymmetry"
// (an artifact is only removed by eviction pressure on a later push, not
// by being read).
func (b *Buffer) PopByID(id int64) (payload []byte, format string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	return e.payload, e.format, ok
}

// CurrentSize and MaxSize expose the byte-budget accounting for tests and
// diagnostics.
func (b *Buffer) CurrentSize() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentSize
}

func (b *Buffer) MaxSize() int64 { return b.maxSize }

// Has reports whether id is currently stored (used only by tests; the
// front-end always goes through PopByID).
func (b *Buffer) Has(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[id]
	return ok
}
