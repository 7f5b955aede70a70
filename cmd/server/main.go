package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aiserve/inference-gateway/internal/auth"
	gwcache "github.com/aiserve/inference-gateway/internal/cache"
	"github.com/aiserve/inference-gateway/internal/config"
	"github.com/aiserve/inference-gateway/internal/genruntime"
	"github.com/aiserve/inference-gateway/internal/inference"
	"github.com/aiserve/inference-gateway/internal/logging"
	"github.com/aiserve/inference-gateway/internal/metadata"
	"github.com/aiserve/inference-gateway/internal/metrics"
	"github.com/aiserve/inference-gateway/internal/modelcache"
	"github.com/aiserve/inference-gateway/internal/objectstore"
	"github.com/aiserve/inference-gateway/internal/router"
)

var (
	developerMode bool
	debugMode     bool
)

func main() {
	setupRuntimeOptimizations()

	flag.BoolVar(&developerMode, "dv", false, "enable developer mode")
	flag.BoolVar(&developerMode, "developer-mode", false, "enable developer mode")
	flag.BoolVar(&debugMode, "dm", false, "enable debug logging")
	flag.BoolVar(&debugMode, "debug-mode", false, "enable debug logging")
	flag.Parse()

	if developerMode {
		log.Println("Developer mode enabled")
	}
	if debugMode {
		log.Println("Debug logging enabled")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logCfg := logging.SyslogConfig{
		Enabled:  cfg.Server.Environment == "production",
		Network:  "",
		Address:  "",
		Tag:      "inference-gateway",
		Facility: "LOG_LOCAL0",
		FilePath: cfg.Logging.LogFile,
	}
	if err := logging.Initialize(logCfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.GetLogger().Close()

	ctx := context.Background()

	store, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		log.Fatalf("Failed to initialize object store: %v", err)
	}

	metadataStore, err := metadata.NewFirestoreStore(ctx, cfg.Metadata.ProjectID)
	if err != nil {
		log.Fatalf("Failed to initialize metadata store: %v", err)
	}
	versionResolver := metadata.NewResolver(metadataStore, cfg.Metadata.VersionTTL)

	keyStore, err := auth.NewStore(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize key store: %v", err)
	}
	authenticator := auth.New(cfg.Auth, keyStore)

	genRuntime := genruntime.New()
	cache := modelcache.New(versionResolver, store, genRuntime, cfg.ModelCache.MemorySoftLimit, cfg.ModelCache.MinFreeMemoryGB, cfg.Server.LocalDev)
	engine := inference.New(cache, cfg.Inference.MaxConcurrentRequests)

	replicaInvalidator, err := gwcache.NewReplicaInvalidator(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	if replicaInvalidator != nil {
		cache.SetReplicaNotifier(replicaInvalidator.Publish)

		subCtx, stopSub := context.WithCancel(ctx)
		defer stopSub()
		go replicaInvalidator.Subscribe(subCtx, cache.InvalidateLocal)
	}

	listCache, err := gwcache.NewModelListCache(ctx, cfg.ModelCache.ListCacheTTL)
	if err != nil {
		log.Fatalf("Failed to initialize model list cache: %v", err)
	}

	m := metrics.GetMetrics()
	m.StartCollection(ctx)

	mux := router.New(engine, cache, versionResolver, authenticator, m, listCache)

	host := cfg.Server.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,

		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Inference.RequestTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Printf("Starting HTTP server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP server forced to shutdown: %v", err)
	}

	if err := replicaInvalidator.Close(); err != nil {
		log.Printf("Error closing replica invalidator: %v", err)
	}

	log.Println("Server exited gracefully")
}

func setupRuntimeOptimizations() {
	numCPU := runtime.NumCPU()
	if cpuLimit := os.Getenv("CPU_LIMIT"); cpuLimit != "" {
		if limit, err := strconv.Atoi(cpuLimit); err == nil && limit > 0 {
			numCPU = limit
		}
	}
	runtime.GOMAXPROCS(numCPU)
	log.Printf("GOMAXPROCS set to %d", numCPU)

	// High-throughput inference workloads tolerate more GC pause budget
	// than the default in exchange for fewer collections.
	debug.SetGCPercent(200)

	if memLimit := os.Getenv("GOMEMLIMIT"); memLimit != "" {
		if limit := parseMemoryLimit(memLimit); limit > 0 {
			debug.SetMemoryLimit(limit)
			log.Printf("Go memory limit set to %s", memLimit)
		}
	}

	log.Println("Runtime optimizations applied")
}

func parseMemoryLimit(limit string) int64 {
	var value int64
	var unit string
	if n, err := fmt.Sscanf(limit, "%d%s", &value, &unit); n != 2 || err != nil {
		return 0
	}

	switch strings.ToUpper(unit) {
	case "GB", "G":
		return value * 1024 * 1024 * 1024
	case "MB", "M":
		return value * 1024 * 1024
	case "KB", "K":
		return value * 1024
	default:
		return value
	}
}
