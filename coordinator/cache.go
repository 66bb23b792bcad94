package coordinator

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MetadataCache is the coordinator's bounded LRU over StorageKey -> file
// metadata (spec 3, 4.1.6). hashicorp/golang-lru's Cache is not safe for
// concurrent use on its own, so lookup-and-promote and insert-and-maybe-evict
// are both taken under one mutex, mirroring blockstore's cache wrapper.
type MetadataCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, FileMetadata]
}

// NewMetadataCache creates an LRU cache with the given capacity (default
// 1000 per spec if capacity <= 0).
func NewMetadataCache(capacity int) *MetadataCache {
	if capacity <= 0 {
		capacity = 1000
	}
	c, _ := lru.New[string, FileMetadata](capacity)
	return &MetadataCache{inner: c}
}

// Get returns the cached metadata for key, promoting it to most-recently-used.
func (c *MetadataCache) Get(key string) (FileMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

// Put inserts or updates key's metadata, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *MetadataCache) Put(key string, meta FileMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, meta)
}

// Remove evicts key if present.
func (c *MetadataCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

// Len returns the current number of cached entries.
func (c *MetadataCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
