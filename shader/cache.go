// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shader

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of reflected programs a Cache keeps.
const DefaultCacheSize = 64

// Cache memoizes Reflect by source text. Reflected modules are immutable,
// so a cached module may be shared by any number of programs.
type Cache struct {
	entries *lru.Cache[string, *Module]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewCache returns a cache holding up to size modules. A size of zero or
// less selects DefaultCacheSize.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, *Module](size)
	if err != nil {
		return nil, fmt.Errorf("shader: create cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Reflect returns the cached reflection of source, reflecting it on a miss.
// The label of the first reflection is kept.
func (c *Cache) Reflect(label, source string) (*Module, error) {
	if m, ok := c.entries.Get(source); ok {
		c.hits.Add(1)
		return m, nil
	}
	c.misses.Add(1)
	m, err := Reflect(label, source)
	if err != nil {
		return nil, err
	}
	c.entries.Add(source, m)
	return m, nil
}

// Len returns the number of cached modules.
func (c *Cache) Len() int { return c.entries.Len() }

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) { return c.hits.Load(), c.misses.Load() }

// Purge drops every cached module.
func (c *Cache) Purge() { c.entries.Purge() }
