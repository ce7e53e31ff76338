// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache provides the small generic caches the client uses for FHE
// public keys and decryption results.
package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc fetches the value for a key on a cache miss.
type FetchFunc[K comparable, V any] func(key K) (V, error)

type ttlItem[V any] struct {
	value     V
	timestamp time.Time
}

// TTLCache tracks a per-key TTL and deduplicates concurrent fetches for the
// same key.
type TTLCache[K comparable, V any] struct {
	data    map[K]ttlItem[V]
	ttl     time.Duration
	lock    sync.RWMutex
	sfGroup singleflight.Group
}

// NewTTLCache creates a TTL cache. Entries older than ttl are refetched.
func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]ttlItem[V]),
		ttl:  ttl,
	}
}

// Get returns the cached value for key if it is fresh, otherwise fetches it
// with fetchFunc. Concurrent fetches for the same key share one call. If
// invalidate is true the entry is cleared before fetching so other readers
// never observe the stale value.
func (c *TTLCache[K, V]) Get(key K, fetchFunc FetchFunc[K, V], invalidate bool) (V, error) {
	if invalidate {
		c.lock.Lock()
		delete(c.data, key)
		c.lock.Unlock()
	} else if value, ok := c.GetCached(key); ok {
		return value, nil
	}

	v, err, _ := c.sfGroup.Do(keyToString(key), func() (interface{}, error) {
		value, fetchErr := fetchFunc(key)
		if fetchErr != nil {
			return *new(V), fetchErr
		}
		c.Put(key, value)
		return value, nil
	})
	if err != nil {
		return *new(V), err
	}
	return v.(V), nil
}

// GetCached returns the cached value for key if present and fresh, without
// fetching.
func (c *TTLCache[K, V]) GetCached(key K) (V, bool) {
	c.lock.RLock()
	item, ok := c.data[key]
	c.lock.RUnlock()
	if !ok || time.Since(item.timestamp) >= c.ttl {
		return *new(V), false
	}
	return item.value, true
}

// Put inserts a value with a fresh timestamp.
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	c.data[key] = ttlItem[V]{value: value, timestamp: time.Now()}
	c.lock.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *TTLCache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.data)
}

// keyToString allows both fmt.Stringer and primitive key types.
func keyToString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
