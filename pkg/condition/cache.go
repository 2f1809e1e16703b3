package condition

import "sync"

// Cache is a compile-once store for condition expressions, keyed by source
// text. Entries are immutable after insertion, so a single Cache is safe to
// share across concurrent conversations. Construct one per process (or per
// test) and inject it — there is no package-level instance.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Compiled
}

// NewCache returns an empty compile cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Compiled)}
}

// Get returns the compiled form of src, compiling on first use.
func (c *Cache) Get(src string) (*Compiled, error) {
	c.mu.RLock()
	compiled, ok := c.entries[src]
	c.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := Compile(src)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[src] = compiled
	c.mu.Unlock()
	return compiled, nil
}

// Eval evaluates src against binds through the cache.
func (c *Cache) Eval(src string, binds map[string]any) (bool, error) {
	compiled, err := c.Get(src)
	if err != nil {
		return false, err
	}
	return compiled.Eval(binds), nil
}

// Len reports the number of cached expressions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
