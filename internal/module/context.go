package module

import "sort"

// Context is the shared mutable key/value store for one phase run. It is
// owned by the calling workflow and passed by reference into every module.
// Mutation is strictly sequential: the controller merges a module's updates
// before invoking the next module, so no locking is needed.
type Context struct {
	values map[string]any
}

// NewContext builds an empty execution context.
func NewContext() *Context {
	return &Context{values: map[string]any{}}
}

// NewContextFrom seeds a context with initial values.
func NewContextFrom(values map[string]any) *Context {
	ec := NewContext()
	ec.Merge(values)
	return ec
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	if c == nil || c.values == nil {
		return nil, false
	}
	value, ok := c.values[key]
	return value, ok
}

// Set stores a single value.
func (c *Context) Set(key string, value any) {
	if c == nil {
		return
	}
	if c.values == nil {
		c.values = map[string]any{}
	}
	c.values[key] = value
}

// Merge applies a module's returned updates. Later keys overwrite earlier
// ones, which is how downstream modules consume upstream outputs.
func (c *Context) Merge(updates map[string]any) {
	if c == nil || len(updates) == 0 {
		return
	}
	if c.values == nil {
		c.values = map[string]any{}
	}
	for key, value := range updates {
		c.values[key] = value
	}
}

// Keys returns the stored keys in sorted order.
func (c *Context) Keys() []string {
	if c == nil || len(c.values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.values))
	for key := range c.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len reports how many keys are stored.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// Snapshot returns a shallow copy of the stored values, suitable for
// reporting the final merged context after a phase run.
func (c *Context) Snapshot() map[string]any {
	if c == nil || len(c.values) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(c.values))
	for key, value := range c.values {
		out[key] = value
	}
	return out
}
