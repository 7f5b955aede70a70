package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelListCache_MissThenHit(t *testing.T) {
	c, err := NewModelListCache(context.Background(), time.Minute)
	require.NoError(t, err)

	_, ok := c.Get()
	assert.False(t, ok)

	body := []byte(`{"object":"list","data":[]}`)
	c.Set(body)

	got, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, body, got)
}

func TestModelListCache_Invalidate(t *testing.T) {
	c, err := NewModelListCache(context.Background(), time.Minute)
	require.NoError(t, err)

	c.Set([]byte(`{"object":"list","data":[]}`))
	c.Invalidate()

	_, ok := c.Get()
	assert.False(t, ok)
}

func TestModelListCache_ExpiresAfterTTL(t *testing.T) {
	c, err := NewModelListCache(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)

	c.Set([]byte(`{"object":"list","data":[]}`))
	time.Sleep(200 * time.Millisecond)

	_, ok := c.Get()
	assert.False(t, ok)
}
