// Package cache provides an unbounded two-level memoization table keyed by
// namespace and item key. There is no TTL and no eviction: entries live until
// they are removed or the namespace is reset.
package cache

// Cache maps namespace -> key -> value.
//
// Cache performs no locking. Callers coordinate access the same way they
// coordinate mutations of the store that owns the cached data.
type Cache struct {
	bins map[string]map[string]any
}

func New() *Cache {
	return &Cache{bins: make(map[string]map[string]any)}
}

// Set stores value under (namespace, key), creating the namespace on first use.
func (c *Cache) Set(namespace, key string, value any) {
	bin, ok := c.bins[namespace]
	if !ok {
		bin = make(map[string]any)
		c.bins[namespace] = bin
	}
	bin[key] = value
}

// Get returns the value stored under (namespace, key), if any.
func (c *Cache) Get(namespace, key string) (any, bool) {
	bin, ok := c.bins[namespace]
	if !ok {
		return nil, false
	}
	v, ok := bin[key]
	return v, ok
}

// Remove deletes a single entry. Removing an absent entry is a no-op.
func (c *Cache) Remove(namespace, key string) {
	if bin, ok := c.bins[namespace]; ok {
		delete(bin, key)
	}
}

// CountItems reports the number of entries held in a namespace.
func (c *Cache) CountItems(namespace string) int {
	return len(c.bins[namespace])
}

// Reset clears a whole namespace.
func (c *Cache) Reset(namespace string) {
	delete(c.bins, namespace)
}
