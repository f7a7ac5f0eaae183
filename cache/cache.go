// Package cache is a small concurrency-safe map used to track in-flight
// pipeline jobs by video ID.
package cache

import (
	"sync"
)

type Cache[T any] struct {
	cache map[string]T
	mutex sync.RWMutex
}

func New[T any]() *Cache[T] {
	return &Cache[T]{
		cache: make(map[string]T),
	}
}

func (c *Cache[T]) Store(videoID string, value T) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache[videoID] = value
}

func (c *Cache[T]) Get(videoID string) T {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	info, ok := c.cache[videoID]
	if ok {
		return info
	}
	var zero T
	return zero
}

func (c *Cache[T]) Remove(videoID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.cache, videoID)
}

func (c *Cache[T]) GetKeys() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	keys := make([]string, 0, len(c.cache))
	for k := range c.cache {
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache[T]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cache)
}
