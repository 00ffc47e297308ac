package vault

import (
	"context"
	"sync"

	"github.com/castmir/vaultmesh/internal/model"
)

// tombstoneSink persists tombstones. A nil sink keeps them in memory only.
type tombstoneSink interface {
	putTombstone(ctx context.Context, ts model.Tombstone) error
	clearTombstones(ctx context.Context) error
}

// Tombstones is the set of deletion markers. Entries are only ever added;
// the single removal path is a manual vault reset.
type Tombstones struct {
	mu    sync.RWMutex
	items map[string]model.Tombstone
	sink  tombstoneSink
}

func newTombstones(sink tombstoneSink) *Tombstones {
	return &Tombstones{items: make(map[string]model.Tombstone), sink: sink}
}

// Add records a tombstone. An id already tombstoned keeps its original
// entry; the earliest deletion wins.
func (t *Tombstones) Add(ctx context.Context, ts model.Tombstone) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.items[ts.Id]; ok {
		return nil
	}
	if t.sink != nil {
		if err := t.sink.putTombstone(ctx, ts); err != nil {
			return err
		}
	}
	t.items[ts.Id] = ts
	return nil
}

func (t *Tombstones) Has(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.items[id]
	return ok
}

// All returns a copy of every tombstone.
func (t *Tombstones) All() []model.Tombstone {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Tombstone, 0, len(t.items))
	for _, ts := range t.items {
		out = append(out, ts)
	}
	return out
}

// Set returns the tombstoned ids as a lookup set.
func (t *Tombstones) Set() map[string]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]struct{}, len(t.items))
	for id := range t.items {
		out[id] = struct{}{}
	}
	return out
}

func (t *Tombstones) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

func (t *Tombstones) replaceAll(items map[string]model.Tombstone) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = items
}

func (t *Tombstones) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[string]model.Tombstone)
}
