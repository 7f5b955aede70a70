package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiserve/inference-gateway/internal/config"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, config.RedisConfig) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := config.RedisConfig{
		Enabled: true,
		Host:    mr.Host(),
		Port:    port,
	}
	return mr, cfg
}

func TestNewReplicaInvalidator_DisabledReturnsNil(t *testing.T) {
	inv, err := NewReplicaInvalidator(config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, inv)
	assert.NoError(t, inv.Close())
}

func TestReplicaInvalidator_PublishSubscribeRoundTrip(t *testing.T) {
	mr, cfg := setupMiniRedis(t)
	defer mr.Close()

	inv, err := NewReplicaInvalidator(cfg)
	require.NoError(t, err)
	defer inv.Close()

	sub, err := NewReplicaInvalidator(cfg)
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Subscribe(ctx, func(name string) {
		received <- name
	})

	// Give the subscription loop time to register with miniredis before
	// publishing, since Subscribe's channel setup is asynchronous.
	time.Sleep(100 * time.Millisecond)
	inv.Publish("acme/support-v3")

	select {
	case name := <-received:
		assert.Equal(t, "acme/support-v3", name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invalidation notice")
	}
}
