// Package varcache holds resolved variable sets and resolves them from
// queries or explicit name lists.
package varcache

import (
	"fmt"

	"github.com/c360/varmsg/directory"
	"github.com/c360/varmsg/errors"
)

// Sizing used by the resolver
const (
	QueryInitialSize = 50
	QueryGrowBy      = 50
	ListGrowBy       = 10

	// MaxEntries caps a single cache
	MaxEntries = 1 << 16
)

// Cache is an ordered set of resolved variables. Insertion order is the
// emission order. A Cache is built once and then only read; a rescan
// produces a new Cache.
type Cache struct {
	vars   []directory.Var
	index  map[string]int
	growBy int
}

// New creates an empty cache with the given initial capacity. When full it
// grows by growBy entries.
func New(capacity, growBy int) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	if growBy < 1 {
		growBy = 1
	}
	return &Cache{
		vars:   make([]directory.Var, 0, capacity),
		index:  make(map[string]int, capacity),
		growBy: growBy,
	}
}

// Empty returns a zero-capacity cache
func Empty() *Cache {
	return New(0, 1)
}

// Add appends v
func (c *Cache) Add(v directory.Var) error {
	if len(c.vars) >= MaxEntries {
		return fmt.Errorf("%w: cache holds %d entries", errors.ErrResourceExhausted, len(c.vars))
	}
	if len(c.vars) == cap(c.vars) {
		grown := make([]directory.Var, len(c.vars), cap(c.vars)+c.growBy)
		copy(grown, c.vars)
		c.vars = grown
	}
	c.index[v.Key()] = len(c.vars)
	c.vars = append(c.vars, v)
	return nil
}

// Len returns the number of entries
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.vars)
}

// Cap returns the current capacity
func (c *Cache) Cap() int {
	if c == nil {
		return 0
	}
	return cap(c.vars)
}

// At returns entry i
func (c *Cache) At(i int) directory.Var {
	return c.vars[i]
}

// Vars returns a copy of the entries in order
func (c *Cache) Vars() []directory.Var {
	if c == nil {
		return nil
	}
	out := make([]directory.Var, len(c.vars))
	copy(out, c.vars)
	return out
}

// Contains reports whether a variable with the given key is cached
func (c *Cache) Contains(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[key]
	return ok
}
