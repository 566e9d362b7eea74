package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// Cache stores serialized backend results
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a cache key from its parts. Parts are length-prefixed before
// hashing so ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte(':')
		b.WriteString(p)
	}
	hash := sha256.Sum256([]byte(b.String()))
	return "sourcecheck:v1:" + hex.EncodeToString(hash[:])
}

// GetJSON decodes a cached value into out, reporting whether it was found
func GetJSON(c Cache, key string, out any) bool {
	if c == nil {
		return false
	}
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetJSON encodes value and stores it
func SetJSON(c Cache, key string, value any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(key, data, ttl)
}

// New builds the cache described by cfg: nil when disabled, memory-only
// without a directory, memory over disk otherwise
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	memory := NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	if cfg.Dir == "" {
		return memory
	}
	return NewLayeredCache(memory, NewDiskCache(cfg.Dir, cfg.DiskTTL))
}
