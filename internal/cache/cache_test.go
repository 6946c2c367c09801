package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCache[string, int](func() time.Time { return now })

	c.Set("rules", 3, time.Minute)
	v, ok := c.Get("rules")
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("rules")
	assert.False(t, ok)
}

func TestTTLCacheWithoutExpiry(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("k", "v", 0)
	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.Set("a", "1", time.Hour)
	c.Purge()
	_, ok = c.Get("a")
	assert.False(t, ok)
}
