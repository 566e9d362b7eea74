package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sourcecheck/internal/model"
)

func TestKeyIsLengthPrefixed(t *testing.T) {
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Equal(t, Key("sim", "x", "y"), Key("sim", "x", "y"))
	assert.Contains(t, Key("a"), "sourcecheck:v1:")
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	require.NoError(t, c.Set("k", []byte("v"), 0))
	val, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(val))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	require.NoError(t, c.Set("k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := Key("entail", "premise", "hypothesis")

	require.NoError(t, c.Set(key, []byte(`{"label":"entailment"}`), 0))

	reopened := NewDiskCache(dir, time.Hour)
	val, ok := reopened.Get(key)
	require.True(t, ok)
	assert.JSONEq(t, `{"label":"entailment"}`, string(val))

	require.NoError(t, c.Delete(key))
	require.NoError(t, c.Delete(key))
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestDiskCacheExpired(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	require.NoError(t, c.Set("k", []byte("v"), -time.Second))
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLayeredCachePromotes(t *testing.T) {
	memory := NewMemoryCache(time.Minute, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Hour)
	layered := NewLayeredCache(memory, disk)

	require.NoError(t, disk.Set("k", []byte("v"), 0))
	_, ok := memory.Get("k")
	require.False(t, ok)

	val, ok := layered.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(val))

	val, ok = memory.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(val))

	require.NoError(t, layered.Clear())
	_, ok = layered.Get("k")
	assert.False(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	type entry struct {
		Score float64 `json:"score"`
	}

	var out entry
	assert.False(t, GetJSON(nil, "k", &out))
	assert.NoError(t, SetJSON(nil, "k", entry{Score: 1}, 0))

	c := NewMemoryCache(time.Minute, time.Minute)
	require.NoError(t, SetJSON(c, "k", entry{Score: 0.75}, 0))
	require.True(t, GetJSON(c, "k", &out))
	assert.Equal(t, 0.75, out.Score)
}

func TestNew(t *testing.T) {
	assert.Nil(t, New(model.CacheConfig{Enabled: false}))

	_, isMemory := New(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute}).(*MemoryCache)
	assert.True(t, isMemory)

	_, isLayered := New(model.CacheConfig{Enabled: true, Dir: t.TempDir(), MemoryTTL: time.Minute, DiskTTL: time.Hour}).(*LayeredCache)
	assert.True(t, isLayered)
}
