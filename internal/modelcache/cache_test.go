package modelcache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiserve/inference-gateway/internal/objectstore"
)

type fakeWeights struct{ closed int32 }

func (w *fakeWeights) Close() error {
	atomic.AddInt32(&w.closed, 1)
	return nil
}

type fakeAdapter struct{ closed int32 }

func (a *fakeAdapter) Close() error {
	atomic.AddInt32(&a.closed, 1)
	return nil
}

type fakeLoader struct {
	loadBaseCalls int32
	releaseCalls  int32
}

func (f *fakeLoader) LoadBase(ctx context.Context, root string, device Device, precision Precision) (Weights, error) {
	atomic.AddInt32(&f.loadBaseCalls, 1)
	return &fakeWeights{}, nil
}

func (f *fakeLoader) LoadAdapter(ctx context.Context, dir string, base Weights) (Adapter, error) {
	return &fakeAdapter{}, nil
}

func (f *fakeLoader) ReleaseDeviceCache() {
	atomic.AddInt32(&f.releaseCalls, 1)
}

type fakeResolver struct {
	label string
}

func (f *fakeResolver) ResolveVersion(ctx context.Context, name string) (string, error) {
	return f.label, nil
}

func (f *fakeResolver) Invalidate(name string) bool { return true }

type fakeStore struct {
	locateCalls int32
	trainingCfg *objectstore.TrainingConfig
	hasAdapter  bool
}

func (f *fakeStore) Locate(ctx context.Context, logicalPath string) (string, error) {
	atomic.AddInt32(&f.locateCalls, 1)
	return "/cache/" + logicalPath, nil
}

func (f *fakeStore) LocateAdapter(ctx context.Context, logicalPath string) (string, error) {
	return "/cache/" + logicalPath + "/adapter", nil
}

func (f *fakeStore) ReadTrainingConfig(ctx context.Context, logicalPath string) (*objectstore.TrainingConfig, bool, error) {
	return f.trainingCfg, f.hasAdapter, nil
}

func TestGetModel_BaseLoadsOnce(t *testing.T) {
	loader := &fakeLoader{}
	store := &fakeStore{}
	c := New(&fakeResolver{}, store, loader, 0.8, 2.0, true)

	h, err := c.GetModel(context.Background(), "meta-llama/Llama-3.1-8B")
	require.NoError(t, err)
	assert.False(t, h.IsAdapted)
	assert.EqualValues(t, 1, loader.loadBaseCalls)

	h2, err := c.GetModel(context.Background(), "meta-llama/Llama-3.1-8B")
	require.NoError(t, err)
	assert.Same(t, h.Base, h2.Base)
	assert.EqualValues(t, 1, loader.loadBaseCalls, "second call must hit residency, not reload")
}

func TestGetModel_FineTunedComposesBase(t *testing.T) {
	loader := &fakeLoader{}
	store := &fakeStore{
		trainingCfg: &objectstore.TrainingConfig{BaseModel: "meta-llama/Llama-3.1-8B"},
		hasAdapter:  true,
	}
	c := New(&fakeResolver{label: "v3"}, store, loader, 0.8, 2.0, true)

	h, err := c.GetModel(context.Background(), "assistant-v1")
	require.NoError(t, err)
	assert.True(t, h.IsAdapted)
	require.NotNil(t, h.Base)
	assert.Equal(t, "meta-llama/Llama-3.1-8B", h.Base.Name)
	assert.Equal(t, 1, h.Base.refcount())

	assert.Contains(t, c.List(), "assistant-v1")
	assert.Contains(t, c.List(), "meta-llama/Llama-3.1-8B")
}

func TestGetModel_SingleFlightJoinsConcurrentLoaders(t *testing.T) {
	loader := &fakeLoader{}
	store := &fakeStore{}
	c := New(&fakeResolver{}, store, loader, 0.8, 2.0, true)

	const n = 10
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := c.GetModel(context.Background(), "org/model-7b")
			assert.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	assert.EqualValues(t, 1, loader.loadBaseCalls)
	assert.EqualValues(t, 1, store.locateCalls)
}

func TestUnload_IsIdempotent(t *testing.T) {
	loader := &fakeLoader{}
	store := &fakeStore{}
	c := New(&fakeResolver{}, store, loader, 0.8, 2.0, true)

	_, err := c.GetModel(context.Background(), "org/model-7b")
	require.NoError(t, err)

	assert.True(t, c.Unload("org/model-7b"))
	assert.False(t, c.Unload("org/model-7b"))
	assert.NotContains(t, c.List(), "org/model-7b")
}

func TestUnload_ThenGetModelReinvokesLoader(t *testing.T) {
	loader := &fakeLoader{}
	store := &fakeStore{}
	c := New(&fakeResolver{}, store, loader, 0.8, 2.0, true)

	_, err := c.GetModel(context.Background(), "org/model-7b")
	require.NoError(t, err)
	c.Unload("org/model-7b")

	_, err = c.GetModel(context.Background(), "org/model-7b")
	require.NoError(t, err)
	assert.EqualValues(t, 2, loader.loadBaseCalls)
}

func TestEviction_RespectsBaseRefcount(t *testing.T) {
	loader := &fakeLoader{}
	store := &fakeStore{
		trainingCfg: &objectstore.TrainingConfig{BaseModel: "org/base-7b"},
		hasAdapter:  true,
	}
	c := New(&fakeResolver{label: "v1"}, store, loader, 0.8, 2.0, true)

	_, err := c.GetModel(context.Background(), "adapted-a")
	require.NoError(t, err)

	base := c.bases["org/base-7b"]
	require.NotNil(t, base)
	base.mu.Lock()
	base.lastAccess = time.Now().Add(-time.Hour)
	base.mu.Unlock()

	victim, isAdapted := c.pickEvictionVictim()
	assert.Equal(t, "adapted-a", victim)
	assert.True(t, isAdapted)

	c.evictLocked(victim, isAdapted)
	assert.NotContains(t, c.List(), "adapted-a")
	assert.Contains(t, c.List(), "org/base-7b", "base must survive eviction while referenced")
}

func TestEviction_BaseEvictableOnlyAtZeroRefcount(t *testing.T) {
	loader := &fakeLoader{}
	store := &fakeStore{}
	c := New(&fakeResolver{}, store, loader, 0.8, 2.0, true)

	_, err := c.GetModel(context.Background(), "org/model-7b")
	require.NoError(t, err)

	base := c.bases["org/model-7b"]
	base.incref()

	victim, _ := c.pickEvictionVictim()
	assert.Empty(t, victim, "referenced base must not be a candidate")

	base.decref()
	victim, _ = c.pickEvictionVictim()
	assert.Equal(t, "org/model-7b", victim)
}

func TestPrewarm_DryRunDoesNotLoad(t *testing.T) {
	loader := &fakeLoader{}
	store := &fakeStore{}
	c := New(&fakeResolver{}, store, loader, 0.8, 2.0, true)

	results := c.Prewarm(context.Background(), []string{"org/model-7b"}, false, true)
	assert.NoError(t, results["org/model-7b"])
	assert.EqualValues(t, 0, loader.loadBaseCalls)
	assert.Empty(t, c.List())
}

func TestInvalidateCache_UnloadsResidentModel(t *testing.T) {
	loader := &fakeLoader{}
	store := &fakeStore{}
	c := New(&fakeResolver{}, store, loader, 0.8, 2.0, true)

	_, err := c.GetModel(context.Background(), "org/model-7b")
	require.NoError(t, err)

	cacheDropped, unloaded := c.InvalidateCache("org/model-7b")
	assert.True(t, cacheDropped)
	assert.True(t, unloaded)
	assert.NotContains(t, c.List(), "org/model-7b")
}
