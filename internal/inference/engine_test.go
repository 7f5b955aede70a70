package inference

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiserve/inference-gateway/internal/gatewayerr"
	"github.com/aiserve/inference-gateway/internal/modelcache"
	"github.com/aiserve/inference-gateway/internal/tokenizer"
)

type fakeWeights struct{}

func (fakeWeights) Close() error { return nil }

type fakeProvider struct {
	handle       modelcache.Handle
	getErr       error
	unloadCalled int32
}

func (f *fakeProvider) GetModel(ctx context.Context, name string) (modelcache.Handle, error) {
	if f.getErr != nil {
		return modelcache.Handle{}, f.getErr
	}
	return f.handle, nil
}

func (f *fakeProvider) Unload(name string) bool {
	atomic.AddInt32(&f.unloadCalled, 1)
	return true
}

func testHandle(t *testing.T) modelcache.Handle {
	t.Helper()
	tok, err := tokenizer.Load("test-model")
	require.NoError(t, err)
	profile := tokenizer.BuildProfile(tok, tokenizer.ModelHints{Name: "test-model"})
	return modelcache.Handle{
		Name: "test-model",
		Base: &modelcache.CachedBase{
			Name:      "test-model",
			Tokenizer: tok,
			Profile:   profile,
			Weights:   fakeWeights{},
		},
	}
}

func TestChat_FailsFastWhenWeightsAreNotAnONNXSession(t *testing.T) {
	provider := &fakeProvider{handle: testHandle(t)}
	e := New(provider, 4)

	_, err := e.Chat(context.Background(), ChatRequest{Model: "test-model", Messages: []ChatMessage{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.True(t, gatewayerr.Is(err, gatewayerr.Internal))
}

func TestChat_PropagatesModelLookupFailure(t *testing.T) {
	provider := &fakeProvider{getErr: gatewayerr.New(gatewayerr.ArtifactNotFound, "nope")}
	e := New(provider, 4)

	_, err := e.Chat(context.Background(), ChatRequest{Model: "missing"})
	assert.True(t, gatewayerr.Is(err, gatewayerr.ArtifactNotFound))
}

func TestEngine_SemaphoreBoundsConcurrency(t *testing.T) {
	provider := &fakeProvider{handle: testHandle(t)}
	e := New(provider, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, e.acquire(context.Background()))
	require.NoError(t, e.acquire(context.Background()))

	err := e.acquire(ctx)
	assert.Error(t, err, "a third acquire must block past the 2-permit cap until the context deadline")

	e.release()
	e.release()
}

func TestEngine_DefaultsToAtLeastOnePermit(t *testing.T) {
	provider := &fakeProvider{}
	e := New(provider, 0)
	assert.Equal(t, 1, cap(e.sem))
}

func TestEffectiveStops_FallsBackToProfileDefaults(t *testing.T) {
	handle := testHandle(t)
	strs, m := effectiveStops(handle, nil)
	assert.False(t, m.Empty())
	assert.Equal(t, handle.Profile().StopSequences, strs)
}

func TestEffectiveStops_PrefersRequestStops(t *testing.T) {
	handle := testHandle(t)
	strs, m := effectiveStops(handle, []string{"CUSTOM_STOP"})
	assert.False(t, m.Empty())
	assert.Equal(t, []string{"CUSTOM_STOP"}, strs)
}
