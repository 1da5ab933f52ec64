// Package cache provides a small generic LRU cache for objects that own
// external resources, such as compiled GPU pipelines.
//
// Unlike a plain map, the cache has a fixed capacity and hands every entry
// it drops to an eviction callback, so the owner can release the resource:
//
//	c := cache.New[Config, *Pipeline](8, func(_ Config, p *Pipeline) { p.Close() })
//	p, err := c.GetOrCreate(cfg, func() (*Pipeline, error) { return build(cfg) })
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
// The create and evict callbacks run with the cache locked and must not
// call back into the cache.
package cache
