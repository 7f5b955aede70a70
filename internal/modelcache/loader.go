package modelcache

import "context"

// Loader is the generation-backend seam the cache loads weights through.
// internal/genruntime implements it over ONNX Runtime; modelcache only
// needs to be able to ask for a load and to release device-wide caches
// after an eviction.
type Loader interface {
	LoadBase(ctx context.Context, artifactRoot string, device Device, precision Precision) (Weights, error)
	LoadAdapter(ctx context.Context, adapterDir string, base Weights) (Adapter, error)
	ReleaseDeviceCache()
}
