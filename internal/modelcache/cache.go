package modelcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/aiserve/inference-gateway/internal/gatewayerr"
	"github.com/aiserve/inference-gateway/internal/modelname"
	"github.com/aiserve/inference-gateway/internal/objectstore"
	"github.com/aiserve/inference-gateway/internal/tokenizer"
)

const adapterOverheadBytes = 50 << 20 // ~50 MB, per §4.3 step 5

// VersionResolver is the subset of *metadata.Resolver the cache needs.
type VersionResolver interface {
	ResolveVersion(ctx context.Context, name string) (string, error)
	Invalidate(name string) bool
}

// ArtifactStore is the subset of *objectstore.Store the cache needs.
type ArtifactStore interface {
	Locate(ctx context.Context, logicalPath string) (string, error)
	LocateAdapter(ctx context.Context, logicalPath string) (string, error)
	ReadTrainingConfig(ctx context.Context, logicalPath string) (*objectstore.TrainingConfig, bool, error)
}

// CacheState is the single explicit value owning every resident-model
// table, per the "mutable global tables" re-architecture in spec §9: the
// inference engine reaches the cache only through this type, never
// through a package-global map.
type CacheState struct {
	mu      sync.RWMutex
	bases   map[string]*CachedBase
	adapted map[string]*CachedAdapted

	sf singleflight.Group

	resolver VersionResolver
	store    ArtifactStore
	loader   Loader

	softLimit    float64
	minFreeBytes int64
	localDev     bool

	// replicaNotify, when set, is called after a local unload so sibling
	// gateway replicas can drop their own copy of the same model. Unset
	// in single-replica/local-dev deployments.
	replicaNotify func(name string)
}

// New builds an empty CacheState.
func New(resolver VersionResolver, store ArtifactStore, loader Loader, softLimit, minFreeGB float64, localDev bool) *CacheState {
	return &CacheState{
		bases:        make(map[string]*CachedBase),
		adapted:      make(map[string]*CachedAdapted),
		resolver:     resolver,
		store:        store,
		loader:       loader,
		softLimit:    softLimit,
		minFreeBytes: int64(minFreeGB * (1 << 30)),
		localDev:     localDev,
	}
}

// SetReplicaNotifier installs the hook called after a local unload, used
// to publish cross-replica cache-invalidation notices.
func (c *CacheState) SetReplicaNotifier(fn func(name string)) {
	c.replicaNotify = fn
}


// GetModel returns a resident handle for name, loading it if necessary.
// Concurrent callers for the same name join a single in-flight load.
func (c *CacheState) GetModel(ctx context.Context, name string) (Handle, error) {
	if h, ok := c.residentHandle(name); ok {
		return h, nil
	}

	result, err, _ := c.sf.Do(name, func() (interface{}, error) {
		if h, ok := c.residentHandle(name); ok {
			return h, nil
		}
		return c.load(ctx, name)
	})
	if err != nil {
		return Handle{}, err
	}
	return result.(Handle), nil
}

func (c *CacheState) residentHandle(name string) (Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if modelname.IsBase(name) {
		if b, ok := c.bases[name]; ok {
			b.touch()
			return Handle{Name: name, Base: b}, true
		}
		return Handle{}, false
	}

	if a, ok := c.adapted[name]; ok {
		a.touch()
		a.Base.touch()
		return Handle{Name: name, IsAdapted: true, Base: a.Base, Adapted: a}, true
	}
	// A custom name may also have been loaded standalone (merged artifact,
	// no training_config.json), in which case it lives in bases keyed by
	// its bare name.
	if b, ok := c.bases[name]; ok {
		b.touch()
		return Handle{Name: name, Base: b}, true
	}
	return Handle{}, false
}

func (c *CacheState) load(ctx context.Context, name string) (Handle, error) {
	if modelname.IsBase(name) {
		b, err := c.loadBase(ctx, name, objectstore.LogicalPathForBase(name))
		if err != nil {
			return Handle{}, err
		}
		return Handle{Name: name, Base: b}, nil
	}

	label, err := c.resolver.ResolveVersion(ctx, name)
	if err != nil {
		return Handle{}, err
	}
	logicalPath := objectstore.LogicalPathForCustom(name, label)

	trainingCfg, hasAdapter, err := c.store.ReadTrainingConfig(ctx, logicalPath)
	if err != nil {
		return Handle{}, err
	}

	if !hasAdapter {
		b, err := c.loadBase(ctx, name, logicalPath)
		if err != nil {
			return Handle{}, err
		}
		return Handle{Name: name, Base: b}, nil
	}

	baseHandle, err := c.GetModel(ctx, trainingCfg.BaseModel)
	if err != nil {
		return Handle{}, gatewayerr.Wrap(gatewayerr.LoadFailed, "failed to load base dependency", err).WithModel(name)
	}

	adapterDir, err := c.store.LocateAdapter(ctx, logicalPath)
	if err != nil {
		return Handle{}, err
	}

	start := time.Now()
	adapter, err := c.loader.LoadAdapter(ctx, adapterDir, baseHandle.Base.Weights)
	if err != nil {
		return Handle{}, gatewayerr.Wrap(gatewayerr.LoadFailed, "failed to load adapter", err).WithModel(name)
	}

	a := &CachedAdapted{
		Name:           name,
		VersionLabel:   label,
		Base:           baseHandle.Base,
		Adapter:        adapter,
		MemoryBytes:    adapterOverheadBytes,
		LoadedAt:       time.Now(),
		LoadDurationMs: time.Since(start).Milliseconds(),
	}
	a.touch()
	baseHandle.Base.incref()

	c.mu.Lock()
	c.adapted[name] = a
	c.mu.Unlock()

	return Handle{Name: name, IsAdapted: true, Base: baseHandle.Base, Adapted: a}, nil
}

func (c *CacheState) loadBase(ctx context.Context, name, logicalPath string) (*CachedBase, error) {
	device := DetectDevice()
	precision := SelectPrecision(device, c.localDev)
	required := EstimateBytes(name, precision)

	c.evictForMemory(required, device)

	root, err := c.store.Locate(ctx, logicalPath)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(name)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.LoadFailed, "failed to load tokenizer", err).WithModel(name)
	}
	profile := tokenizer.BuildProfile(tok, readModelHints(name, root))

	start := time.Now()
	weights, err := c.loader.LoadBase(ctx, root, device, precision)
	if err != nil && precision == PrecisionInt8 {
		precision = PrecisionFP32
		required = EstimateBytes(name, precision)
		weights, err = c.loader.LoadBase(ctx, root, device, precision)
	}
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.LoadFailed, "failed to load base weights", err).WithModel(name)
	}

	b := &CachedBase{
		Name:           name,
		ArtifactRoot:   root,
		Device:         device,
		Precision:      precision,
		Tokenizer:      tok,
		Profile:        profile,
		Weights:        weights,
		MemoryBytes:    required,
		LoadedAt:       time.Now(),
		LoadDurationMs: time.Since(start).Milliseconds(),
	}
	b.touch()

	c.mu.Lock()
	c.bases[name] = b
	c.mu.Unlock()

	return b, nil
}

// Unload forces removal of name from the resident set and, if a replica
// notifier is installed, publishes the eviction to sibling replicas.
// Idempotent: an already-absent name leaves the resident set unchanged
// and returns false; the replica notice is still published.
func (c *CacheState) Unload(name string) (wasCached bool) {
	wasCached = c.unload(name)
	if c.replicaNotify != nil {
		c.replicaNotify(name)
	}
	return wasCached
}

func (c *CacheState) unload(name string) (wasCached bool) {
	c.mu.Lock()
	if a, ok := c.adapted[name]; ok {
		delete(c.adapted, name)
		a.Base.decref()
		c.mu.Unlock()
		a.Adapter.Close()
		c.loader.ReleaseDeviceCache()
		return true
	}
	b, ok := c.bases[name]
	if ok {
		delete(c.bases, name)
	}
	c.mu.Unlock()

	if ok {
		b.Weights.Close()
		c.loader.ReleaseDeviceCache()
	}
	return ok
}

// List returns every resident model name (base and adapted).
func (c *CacheState) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.bases)+len(c.adapted))
	for name := range c.bases {
		names = append(names, name)
	}
	for name := range c.adapted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EvictForMemory is the admin-facing entry point for the eviction
// algorithm, used by operational tooling that wants to pre-free space.
func (c *CacheState) EvictForMemory(requiredGB float64) {
	c.evictForMemory(int64(requiredGB*(1<<30)), DetectDevice())
}

// StatsEntry is one resident entry's diagnostic snapshot for /admin/stats.
type StatsEntry struct {
	Name           string  `json:"name"`
	Kind           string  `json:"kind"` // "base" or "adapted"
	Device         Device  `json:"device"`
	MemoryGB       float64 `json:"memory_gb"`
	LoadedAt       string  `json:"loaded_at"`
	LastAccess     string  `json:"last_access"`
	LoadDurationMs int64   `json:"load_duration_ms"`
	LastError      string  `json:"last_error,omitempty"`
}

// Stats reports the full resident set, supplemented from
// original_source/inference-service/src/core/model_manager.py's
// per-model load-duration/last-error detail.
func (c *CacheState) Stats() []StatsEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]StatsEntry, 0, len(c.bases)+len(c.adapted))
	for name, b := range c.bases {
		entries = append(entries, StatsEntry{
			Name:           name,
			Kind:           "base",
			Device:         b.Device,
			MemoryGB:       float64(b.MemoryBytes) / (1 << 30),
			LoadedAt:       b.LoadedAt.Format(time.RFC3339),
			LastAccess:     b.LastAccess().Format(time.RFC3339),
			LoadDurationMs: b.LoadDurationMs,
			LastError:      b.LastError,
		})
	}
	for name, a := range c.adapted {
		entries = append(entries, StatsEntry{
			Name:           name,
			Kind:           "adapted",
			Device:         a.Base.Device,
			MemoryGB:       float64(a.MemoryBytes) / (1 << 30),
			LoadedAt:       a.LoadedAt.Format(time.RFC3339),
			LastAccess:     a.LastAccess().Format(time.RFC3339),
			LoadDurationMs: a.LoadDurationMs,
			LastError:      a.LastError,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// InvalidateCache drops the version-resolver entry for name and unloads
// it if resident, per /admin/invalidate-cache/{name}.
func (c *CacheState) InvalidateCache(name string) (versionCacheDropped, modelUnloaded bool) {
	versionCacheDropped = c.resolver.Invalidate(name)
	modelUnloaded = c.Unload(name)
	return
}

// InvalidateLocal applies a cache-invalidation notice received from a
// sibling replica: same effect as InvalidateCache, but never republishes,
// so a notification can't echo back and forth between replicas.
func (c *CacheState) InvalidateLocal(name string) {
	c.resolver.Invalidate(name)
	c.unload(name)
}

// Prewarm loads each of ids, optionally in parallel, and reports a
// per-model result. dryRun validates artifact availability without
// loading, supplemented from original_source/inference-service/src/api/admin.py.
func (c *CacheState) Prewarm(ctx context.Context, ids []string, parallel, dryRun bool) map[string]error {
	results := make(map[string]error, len(ids))
	var mu sync.Mutex

	run := func(name string) {
		var err error
		if dryRun {
			err = c.validateOnly(ctx, name)
		} else {
			_, err = c.GetModel(ctx, name)
		}
		mu.Lock()
		results[name] = err
		mu.Unlock()
	}

	if !parallel {
		for _, name := range ids {
			run(name)
		}
		return results
	}

	var g errgroup.Group
	for _, name := range ids {
		name := name
		g.Go(func() error {
			run(name)
			return nil
		})
	}
	_ = g.Wait() // per-model errors are collected into results, not aggregated here
	return results
}

func (c *CacheState) validateOnly(ctx context.Context, name string) error {
	if modelname.IsBase(name) {
		_, err := c.store.Locate(ctx, objectstore.LogicalPathForBase(name))
		return err
	}
	label, err := c.resolver.ResolveVersion(ctx, name)
	if err != nil {
		return err
	}
	_, err = c.store.Locate(ctx, objectstore.LogicalPathForCustom(name, label))
	return err
}
