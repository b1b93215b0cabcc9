// Package dedupe tracks ledger event ids so each ledger action is applied at
// most once.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 50_000

// Deduper records seen event IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was seen and records it if
	// not. It returns true for a duplicate.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so that a rejected event can be retried.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps ids in an LRU cache that is only ever written, so
// eviction drops the oldest recorded id first. With maxSize <= 0 it falls
// back to an unbounded set.
type inMemoryDeduper struct {
	maxSize int

	recent *lru.Cache[string, struct{}]

	mu  sync.Mutex
	all map[string]struct{}
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxSize > 0 {
		// lru.New only fails for a non-positive size.
		d.recent, _ = lru.New[string, struct{}](d.maxSize)
	} else {
		d.all = make(map[string]struct{})
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	if d.recent != nil {
		seen, _ := d.recent.ContainsOrAdd(id, struct{}{})
		return seen
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.all[id]; ok {
		return true
	}
	d.all[id] = struct{}{}
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	if d.recent != nil {
		d.recent.Remove(id)
		return
	}
	d.mu.Lock()
	delete(d.all, id)
	d.mu.Unlock()
}

func (d *inMemoryDeduper) Size() int64 {
	if d.recent != nil {
		return int64(d.recent.Len())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.all))
}
