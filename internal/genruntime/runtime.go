// Package genruntime is the ONNX Runtime-backed generation backend: it
// implements modelcache.Loader (loading base weights and adapters as
// resident sessions) and runs the autoregressive decoding loop the
// inference engine drives.
package genruntime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	onnxruntime "github.com/yalue/onnxruntime_go"

	"github.com/aiserve/inference-gateway/internal/gatewayerr"
	"github.com/aiserve/inference-gateway/internal/modelcache"
)

// weightsFile is the conventional single-file ONNX export name a merged
// artifact directory carries; sharded/safetensors exports are not ONNX
// Runtime's domain and are out of scope here (the artifact validity
// check in internal/objectstore accepts them for HF-native artifacts;
// this backend only runs the ONNX-exported ones).
const weightsFile = "model.onnx"

var libOnce sync.Once
var libErr error

func ensureLibrary() error {
	libOnce.Do(func() {
		libErr = onnxruntime.InitializeEnvironment()
	})
	return libErr
}

// Session wraps a resident ONNX Runtime session, implementing
// modelcache.Weights.
type Session struct {
	mu        sync.Mutex
	session   *onnxruntime.DynamicAdvancedSession
	device    modelcache.Device
	vocabSize int64
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

// AdapterSession wraps a resident adapter. ONNX Runtime has no native
// LoRA-composition API; the adapter is carried as its own small session
// applied as an additive delta over the base session's output
// (see generate.go), matching the "distinct handle {base, adapter}"
// re-architecture from spec §9 rather than monkey-patching the base.
type AdapterSession struct {
	mu        sync.Mutex
	session   *onnxruntime.DynamicAdvancedSession
	vocabSize int64
}

func (a *AdapterSession) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	err := a.session.Destroy()
	a.session = nil
	return err
}

// Runtime implements modelcache.Loader over ONNX Runtime.
type Runtime struct {
	mu sync.Mutex
}

// New constructs a Runtime. The ONNX Runtime environment is initialized
// lazily, once per process, on the first base load and is never torn
// down; callers running multiple Runtimes in one process share it.
func New() *Runtime {
	return &Runtime{}
}

func (r *Runtime) LoadBase(ctx context.Context, artifactRoot string, device modelcache.Device, precision modelcache.Precision) (modelcache.Weights, error) {
	if err := ensureLibrary(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	path := filepath.Join(artifactRoot, weightsFile)
	if _, err := os.Stat(path); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.ArtifactInvalid, "no ONNX export found for artifact", err)
	}

	inputs, outputs, err := onnxruntime.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect ONNX model: %w", err)
	}

	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if device == modelcache.DeviceCUDA {
		cudaOptions, err := onnxruntime.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			_ = options.AppendExecutionProviderCUDA(cudaOptions)
		}
	}
	_ = options.SetGraphOptimizationLevel(99)

	session, err := onnxruntime.NewDynamicAdvancedSession(path, inputNames(inputs), outputNames(outputs), options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{session: session, device: device, vocabSize: lastDim(outputs)}, nil
}

// lastDim returns the trailing (vocabulary) dimension of a logits output,
// defaulting to a safe placeholder when the export reports a dynamic axis.
func lastDim(infos []onnxruntime.InputOutputInfo) int64 {
	if len(infos) == 0 {
		return 0
	}
	dims := infos[0].Dimensions
	if len(dims) == 0 {
		return 0
	}
	d := dims[len(dims)-1]
	if d <= 0 {
		return 0
	}
	return d
}

func (r *Runtime) LoadAdapter(ctx context.Context, adapterDir string, base modelcache.Weights) (modelcache.Adapter, error) {
	path := filepath.Join(adapterDir, weightsFile)
	if _, err := os.Stat(path); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.ArtifactNotFound, "no ONNX export found for adapter", err)
	}

	inputs, outputs, err := onnxruntime.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect adapter model: %w", err)
	}

	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := onnxruntime.NewDynamicAdvancedSession(path, inputNames(inputs), outputNames(outputs), options)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter session: %w", err)
	}

	return &AdapterSession{session: session, vocabSize: lastDim(outputs)}, nil
}

// ReleaseDeviceCache is invoked after every eviction step so device-wide
// allocator caches don't keep freed sessions' memory pinned.
func (r *Runtime) ReleaseDeviceCache() {
	// ONNX Runtime has no public "empty cache" call; destroying each
	// session (done by the caller before this runs) already releases
	// its device allocations. Kept as an explicit hook so the eviction
	// loop's call site doesn't need to know that.
}

func inputNames(infos []onnxruntime.InputOutputInfo) []string {
	names := make([]string, len(infos))
	for i, in := range infos {
		names[i] = in.Name
	}
	return names
}

func outputNames(infos []onnxruntime.InputOutputInfo) []string {
	names := make([]string, len(infos))
	for i, out := range infos {
		names[i] = out.Name
	}
	return names
}
