// Package modelcache implements the two-tier, memory-aware resident
// model cache of spec §4.3: a CacheState owning a base-model table and an
// adapted (fine-tuned) table, with single-flight loading and LRU/refcount
// eviction.
package modelcache

import (
	"sync"
	"time"

	"github.com/aiserve/inference-gateway/internal/tokenizer"
)

// Device identifies the accelerator (or lack of one) a model is placed on.
type Device string

const (
	DeviceCUDA  Device = "cuda"
	DeviceApple Device = "apple"
	DeviceCPU   Device = "cpu"
)

// Precision identifies the numeric format weights are loaded at.
type Precision string

const (
	PrecisionBF16 Precision = "bf16"
	PrecisionFP32 Precision = "fp32"
	PrecisionInt8 Precision = "int8"
)

// Weights is the resident handle for a loaded base model's parameters.
// The concrete type is an ONNX Runtime session (internal/genruntime);
// modelcache only needs to be able to release it.
type Weights interface {
	Close() error
}

// Adapter is the resident handle for a loaded LoRA adapter composed on
// top of a base's Weights.
type Adapter interface {
	Close() error
}

// CachedBase is a resident base model: weights, tokenizer, device
// placement, and the set of fine-tuned entries that depend on it.
type CachedBase struct {
	Name         string
	ArtifactRoot string
	Device       Device
	Precision    Precision
	Tokenizer    *tokenizer.Tokenizer
	Profile      tokenizer.Profile
	Weights      Weights
	MemoryBytes  int64

	LoadedAt       time.Time
	LoadDurationMs int64
	LastError      string

	mu         sync.Mutex
	lastAccess time.Time
	refCount   int
}

func (b *CachedBase) touch() {
	b.mu.Lock()
	b.lastAccess = time.Now()
	b.mu.Unlock()
}

func (b *CachedBase) LastAccess() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAccess
}

func (b *CachedBase) incref() {
	b.mu.Lock()
	b.refCount++
	b.mu.Unlock()
}

func (b *CachedBase) decref() {
	b.mu.Lock()
	if b.refCount > 0 {
		b.refCount--
	}
	b.mu.Unlock()
}

func (b *CachedBase) refcount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refCount
}

// CachedAdapted is a resident fine-tuned model: an owned adapter composed
// over a reference to exactly one CachedBase. Its effective tokenizer is
// the base's.
type CachedAdapted struct {
	Name         string
	VersionLabel string
	Base         *CachedBase
	Adapter      Adapter
	MemoryBytes  int64

	LoadedAt       time.Time
	LoadDurationMs int64
	LastError      string

	mu         sync.Mutex
	lastAccess time.Time
}

func (a *CachedAdapted) touch() {
	a.mu.Lock()
	a.lastAccess = time.Now()
	a.mu.Unlock()
}

func (a *CachedAdapted) LastAccess() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAccess
}

// Handle is what getModel returns: a stable reference to either a plain
// base or a base+adapter pair, captured at request-handler entry per the
// "stable reference" shared-resource policy in spec §5.
type Handle struct {
	Name      string
	IsAdapted bool
	Base      *CachedBase
	Adapted   *CachedAdapted
}

// Weights returns the weights handle generation should dispatch through.
func (h Handle) Weights() Weights { return h.Base.Weights }

// AdapterHandle returns the adapter handle, or nil for a plain base.
func (h Handle) AdapterHandle() Adapter {
	if h.Adapted == nil {
		return nil
	}
	return h.Adapted.Adapter
}

// Tokenizer and Profile are always the base's.
func (h Handle) Tokenizer() *tokenizer.Tokenizer { return h.Base.Tokenizer }
func (h Handle) Profile() tokenizer.Profile       { return h.Base.Profile }
func (h Handle) Device() Device                   { return h.Base.Device }

// MemoryGB is the combined resident footprint this handle's load
// contributed: base-only for a base handle, adapter-only for an adapted
// handle (matching the contract's {weights, tokenizer, device, memoryGB}
// tuple, one reading per entry rather than double-counting the base).
func (h Handle) MemoryGB() float64 {
	if h.IsAdapted {
		return float64(h.Adapted.MemoryBytes) / (1 << 30)
	}
	return float64(h.Base.MemoryBytes) / (1 << 30)
}
