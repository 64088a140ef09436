// Package cache implements the per-connection delta cache: the memory
// of the last fully decoded record for each (packet_type, key_tuple),
// used by the delta decoder to reconstruct fields absent from a delta
// frame's payload.
package cache

import (
	"fmt"
	"strings"
	"sync"

	"github.com/unixfreak0037/freeciv-agent/schema"
)

// Cache is a per-connection store. The zero value is not usable; use
// New. A Cache is safe for concurrent use: the single-task connection
// driver never needs the lock, but a shared-resource policy of
// defending every exported method regardless of caller count requires
// one if a caller (e.g. a metrics collector) reads the cache from
// another goroutine.
type Cache struct {
	mu      sync.Mutex
	entries map[string]schema.DecodedRecord
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]schema.DecodedRecord)}
}

// Get returns the cached record for (packetType, keyTuple) and true,
// or (nil, false) if absent.
func (c *Cache) Get(packetType uint16, keyTuple []any) (schema.DecodedRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[cacheKey(packetType, keyTuple)]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Put stores an independent copy of record under (packetType, keyTuple).
// Callers must not observe later mutations to record through the
// cache, and the cache must not observe later mutations made by the
// caller to the slice it passed in — Put deep-copies via
// DecodedRecord.Clone.
func (c *Cache) Put(packetType uint16, keyTuple []any, record schema.DecodedRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(packetType, keyTuple)] = record.Clone()
}

// ClearAll drops every entry. Called by the connection driver on
// disconnect so no state from a prior connection is observable after
// reconnect.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]schema.DecodedRecord)
}

// Len reports the number of cached entries. Exposed for the optional
// prometheus metrics collector, not part of the core contract.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cacheKey flattens a packet type and key tuple into a single
// comparable string. The empty tuple (key-less packets) is allowed
// and simply produces a key with no tuple suffix.
func cacheKey(packetType uint16, keyTuple []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", packetType)
	for _, v := range keyTuple {
		fmt.Fprintf(&b, "|%v", v)
	}
	return b.String()
}
