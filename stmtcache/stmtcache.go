// Package stmtcache implements the per-connection LRU cache that maps query
// text to a named, server-side prepared statement.
package stmtcache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Column mirrors the subset of a RowDescription field a connection needs to
// decode DataRow payloads for a statement's result columns.
type Column struct {
	Name        string
	DataTypeOID uint32
}

// Statement is a prepared-statement descriptor: the server-side name plus
// everything needed to bind parameters and decode result rows without a
// further round trip. Callers share the pointer the cache hands back rather
// than copying it, so repeated executions of a hot query don't reallocate
// the column descriptors.
type Statement struct {
	Name      string
	Query     string
	ParamOIDs []uint32
	Columns   []Column // nil if the statement returns no rows (NoData)
}

// Cache is a per-connection, fixed-capacity LRU over query text. All
// operations are O(1). It is not safe for concurrent use: a connection and
// everything it owns, including its cache, belongs to exactly one goroutine
// at a time.
type Cache struct {
	lru       *lru.Cache[string, *Statement]
	counter   uint64
	lastEvict string
	didEvict  bool
}

// New creates a Cache with the given capacity (must be >= 1).
func New(capacity int) (*Cache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("stmtcache: capacity must be >= 1, got %d", capacity)
	}
	c := &Cache{}
	l, err := lru.NewWithEvict[string, *Statement](capacity, func(_ string, stmt *Statement) {
		c.didEvict = true
		c.lastEvict = stmt.Name
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// NextStatementName returns a fresh, strictly increasing statement name
// unique within this cache's lifetime, matching "__fk_<n>".
func (c *Cache) NextStatementName() string {
	n := atomic.AddUint64(&c.counter, 1)
	return fmt.Sprintf("__fk_%d", n)
}

// Peek returns the statement for query without updating its recency.
func (c *Cache) Peek(query string) (*Statement, bool) {
	return c.lru.Peek(query)
}

// GetAndTouch returns the statement for query, promoting it to
// most-recently-used.
func (c *Cache) GetAndTouch(query string) (*Statement, bool) {
	return c.lru.Get(query)
}

// Contains reports whether query is cached, without updating recency.
func (c *Cache) Contains(query string) bool {
	return c.lru.Contains(query)
}

// Insert adds stmt under query. If this insertion evicts an entry (the
// cache was at capacity and query was not already present), Insert returns
// the evicted entry's server-side name so the caller may optionally send a
// Close for it. The server forgets an un-closed statement only when the
// connection itself closes, which is the default, round-trip-saving policy.
func (c *Cache) Insert(query string, stmt *Statement) (evictedName string, evicted bool) {
	c.didEvict = false
	c.lastEvict = ""
	c.lru.Add(query, stmt)
	return c.lastEvict, c.didEvict
}

// Remove deletes query from the cache, if present. It does not report an
// evicted name: an explicit Remove is the caller's own choice to discard the
// entry, not an LRU-driven eviction.
func (c *Cache) Remove(query string) {
	c.lru.Remove(query)
}

// Names returns the cached query keys, in no particular order.
func (c *Cache) Names() []string {
	return c.lru.Keys()
}

// Clear empties the cache. Required on connection reset, since every cached
// statement name only has meaning on this specific server-side connection.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len returns the number of statements currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
