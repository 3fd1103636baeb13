// Package dispatch assigns type tags to concrete types that implement
// dispatch traits, lays out tagged structs, and builds the per-method
// dispatch tables indexed by tag.
package dispatch

import (
	"sync"

	"github.com/raymyers/ralph816/pkg/diag"
)

// InvalidTag is reserved and never assigned.
const InvalidTag = 0

// Context owns the tag table of one compilation run. Tag writes are
// serialized; reads are safe from concurrent lowering.
type Context struct {
	mu    sync.RWMutex
	max   int
	tags  map[string]int
	order []string
}

// NewContext returns an empty context allowing up to maxTags tagged types.
func NewContext(maxTags int) *Context {
	return &Context{max: maxTags, tags: make(map[string]int)}
}

// Assign returns the tag of typeName, assigning the next one on first use.
func (c *Context) Assign(typeName string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tag, ok := c.tags[typeName]; ok {
		return tag, nil
	}
	if len(c.order) >= c.max {
		err := diag.Errorf(diag.KindDispatch, diag.ErrTagOverflow, typeName,
			"more than %d types implement dispatch traits", c.max)
		err.Global = true
		return InvalidTag, err
	}
	c.order = append(c.order, typeName)
	tag := len(c.order)
	c.tags[typeName] = tag
	return tag, nil
}

// Tag returns the tag of typeName.
func (c *Context) Tag(typeName string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tag, ok := c.tags[typeName]
	return tag, ok
}

// Types returns the tagged types in tag order.
func (c *Context) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of assigned tags.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Reset clears the table for the next compilation run.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = make(map[string]int)
	c.order = nil
}
