package cache

import (
	"errors"
	"time"
)

// LayeredCache checks its layers fastest first and promotes hits upward
type LayeredCache struct {
	layers []Cache
}

// NewLayeredCache creates a cache over the given layers, fastest first
func NewLayeredCache(layers ...Cache) *LayeredCache {
	return &LayeredCache{layers: layers}
}

// Get returns the value from the first layer that has it
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	for i, layer := range c.layers {
		val, found := layer.Get(key)
		if !found {
			continue
		}
		for j := 0; j < i; j++ {
			// Default TTL of the faster layer
			_ = c.layers[j].Set(key, val, 0)
		}
		return val, true
	}
	return nil, false
}

// Set stores the value in every layer
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	var errs []error
	for _, layer := range c.layers {
		if err := layer.Set(key, value, ttl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delete removes the value from every layer
func (c *LayeredCache) Delete(key string) error {
	for _, layer := range c.layers {
		_ = layer.Delete(key)
	}
	return nil
}

// Clear empties every layer
func (c *LayeredCache) Clear() error {
	var errs []error
	for _, layer := range c.layers {
		if err := layer.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
