package metadata

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiserve/inference-gateway/internal/gatewayerr"
)

type fakeStore struct {
	calls   int32
	label   string
	err     error
}

func (f *fakeStore) ActiveVersionLabel(ctx context.Context, modelName string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.label, nil
}

func (f *fakeStore) Close() error { return nil }

func TestResolveVersion_BaseModelNeverQueriesStore(t *testing.T) {
	store := &fakeStore{label: "v3"}
	r := NewResolver(store, time.Minute)

	label, err := r.ResolveVersion(context.Background(), "meta-llama/Llama-3.1-8B")
	require.NoError(t, err)
	assert.Empty(t, label)
	assert.EqualValues(t, 0, store.calls)
}

func TestResolveVersion_CachesWithinTTL(t *testing.T) {
	store := &fakeStore{label: "v3"}
	r := NewResolver(store, time.Minute)

	for i := 0; i < 5; i++ {
		label, err := r.ResolveVersion(context.Background(), "assistant-v1")
		require.NoError(t, err)
		assert.Equal(t, "v3", label)
	}

	assert.EqualValues(t, 1, store.calls, "cache hits must not touch the metadata store")
}

func TestResolveVersion_TTLExpiryTriggersFreshQuery(t *testing.T) {
	store := &fakeStore{label: "v3"}
	r := NewResolver(store, time.Millisecond)

	_, err := r.ResolveVersion(context.Background(), "assistant-v1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = r.ResolveVersion(context.Background(), "assistant-v1")
	require.NoError(t, err)

	assert.EqualValues(t, 2, store.calls)
}

func TestInvalidate_ForcesFreshQuery(t *testing.T) {
	store := &fakeStore{label: "v3"}
	r := NewResolver(store, time.Hour)

	_, err := r.ResolveVersion(context.Background(), "assistant-v1")
	require.NoError(t, err)

	removed := r.Invalidate("assistant-v1")
	assert.True(t, removed)

	_, err = r.ResolveVersion(context.Background(), "assistant-v1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.calls)
}

func TestInvalidate_UnknownNameReturnsFalse(t *testing.T) {
	r := NewResolver(&fakeStore{}, time.Hour)
	assert.False(t, r.Invalidate("never-resolved"))
}

func TestClearAll_EquivalentToColdStart(t *testing.T) {
	store := &fakeStore{label: "v3"}
	r := NewResolver(store, time.Hour)

	_, _ = r.ResolveVersion(context.Background(), "a")
	_, _ = r.ResolveVersion(context.Background(), "b")

	n := r.ClearAll()
	assert.Equal(t, 2, n)

	_, err := r.ResolveVersion(context.Background(), "a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, store.calls)
}

func TestResolveVersion_UnresolvedErrorDoesNotPopulateCache(t *testing.T) {
	store := &fakeStore{err: gatewayerr.New(gatewayerr.VersionUnresolved, "model not found")}
	r := NewResolver(store, time.Hour)

	_, err := r.ResolveVersion(context.Background(), "missing-model")
	require.Error(t, err)
	assert.True(t, gatewayerr.Is(err, gatewayerr.VersionUnresolved))

	_, err = r.ResolveVersion(context.Background(), "missing-model")
	require.Error(t, err)
	assert.EqualValues(t, 2, store.calls, "failed resolutions must re-query, never cache")
}
