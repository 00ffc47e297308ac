package vault

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/castmir/vaultmesh/internal/logging"
	"github.com/castmir/vaultmesh/internal/model"
)

// recordSink receives write-through notifications for durable collections.
// A nil sink makes the collection memory-only.
type recordSink interface {
	putRecord(ctx context.Context, collection, id string, data []byte, updatedAt int64) error
	deleteRecord(ctx context.Context, collection, id string) error
}

// Collection is one logical map of records keyed by id, with local
// read-after-write consistency and synchronous change notification.
// All mutations are atomic from the caller's perspective.
type Collection[T model.Entity] struct {
	mu    sync.RWMutex
	name  string
	items map[string]T
	subs  []func(id string)
	sink  recordSink
	log   logging.Logger
}

func newCollection[T model.Entity](name string, sink recordSink, log logging.Logger) *Collection[T] {
	return &Collection[T]{
		name:  name,
		items: make(map[string]T),
		sink:  sink,
		log:   log,
	}
}

func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	return item, ok
}

func (c *Collection[T]) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[id]
	return ok
}

// Set stores item under its own id and notifies subscribers. With a sink
// attached the record is persisted before the in-memory map is updated.
func (c *Collection[T]) Set(ctx context.Context, item T, updatedAt int64) error {
	id := item.EntityID()

	c.mu.Lock()
	if c.sink != nil {
		data, err := json.Marshal(item)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		if err := c.sink.putRecord(ctx, c.name, id, data, updatedAt); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.items[id] = item
	subs := c.subs
	c.mu.Unlock()

	for _, fn := range subs {
		fn(id)
	}
	return nil
}

// Delete removes the record if present. It does not create a tombstone;
// Store.Remove is the deleting entry point that does.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, ok := c.items[id]; !ok {
		c.mu.Unlock()
		return nil
	}
	if c.sink != nil {
		if err := c.sink.deleteRecord(ctx, c.name, id); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	delete(c.items, id)
	subs := c.subs
	c.mu.Unlock()

	for _, fn := range subs {
		fn(id)
	}
	return nil
}

func (c *Collection[T]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for id := range c.items {
		keys = append(keys, id)
	}
	return keys
}

func (c *Collection[T]) Values() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values := make([]T, 0, len(c.items))
	for _, item := range c.items {
		values = append(values, item)
	}
	return values
}

// ForEach visits every record. Return false from the callback to stop.
// The iteration works on a point-in-time copy so callbacks may mutate the
// collection.
func (c *Collection[T]) ForEach(fn func(item T) bool) {
	for _, item := range c.Values() {
		if !fn(item) {
			return
		}
	}
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// OnChange registers a callback fired synchronously after every Set or
// Delete with the affected id. Callbacks run outside the collection lock.
func (c *Collection[T]) OnChange(fn func(id string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// replaceAll swaps the in-memory contents without touching the sink; used
// when replaying persisted state at open time.
func (c *Collection[T]) replaceAll(items map[string]T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
}

// clear drops everything from memory; the caller wipes the sink.
func (c *Collection[T]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]T)
}
