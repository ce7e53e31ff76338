// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"

	"github.com/luxfi/geth/common/lru"
)

// LRUCache bounds memory with LRU eviction and no expiration. It is meant
// for immutable data such as parsed contract ABIs, where staleness is not a
// concern.
type LRUCache[K comparable, V any] struct {
	cache *lru.Cache[K, V]
	lock  sync.RWMutex
}

// NewLRUCache creates an LRU cache holding at most size entries.
func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	return &LRUCache[K, V]{
		cache: lru.NewCache[K, V](size),
	}
}

// Get returns the cached value for key, otherwise fetches it with fetchFunc.
// If invalidate is true the entry is cleared before fetching.
func (c *LRUCache[K, V]) Get(key K, fetchFunc FetchFunc[K, V], invalidate bool) (V, error) {
	if invalidate {
		c.lock.Lock()
		c.cache.Remove(key)
		c.lock.Unlock()
	} else {
		c.lock.RLock()
		value, ok := c.cache.Get(key)
		c.lock.RUnlock()
		if ok {
			return value, nil
		}
	}

	value, err := fetchFunc(key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.lock.Lock()
	c.cache.Add(key, value)
	c.lock.Unlock()

	return value, nil
}
