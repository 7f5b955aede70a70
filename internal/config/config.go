package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates every env-driven knob the gateway reads at startup.
type Config struct {
	Server     ServerConfig
	ObjectStore ObjectStoreConfig
	Metadata   MetadataConfig
	ModelCache ModelCacheConfig
	Inference  InferenceConfig
	Auth       AuthConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	Environment string
	LocalDev    bool
}

// ObjectStoreConfig names the bucket/prefix layout described in §6; the
// concrete driver is S3-compatible (see internal/objectstore).
type ObjectStoreConfig struct {
	Bucket       string
	ModelPrefix  string
	MountPath    string
	LocalCache   string
	Endpoint     string
	Region       string
	AccessKeyID  string
	AccessSecret string
}

type MetadataConfig struct {
	ProjectID   string
	VersionTTL  time.Duration
}

type ModelCacheConfig struct {
	MemorySoftLimit float64
	MinFreeMemoryGB float64
	ListCacheTTL    time.Duration
}

type InferenceConfig struct {
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
}

type AuthConfig struct {
	RequireAuth     bool
	BaseModelAPIKey string
	KeyCacheTTL     time.Duration
	KeyCacheSize    int
	JWTSecret       string
}

type DatabaseConfig struct {
	Type     string // "postgres" or "sqlite"
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	SQLitePath string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LoggingConfig struct {
	Level   string
	LogFile string
}

func Load() (*Config, error) {
	godotenv.Load()

	localDev := getEnvAsBool("LOCAL_DEV", false)

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LocalDev:    localDev,
		},
		ObjectStore: ObjectStoreConfig{
			Bucket:       getEnv("GCS_BUCKET", ""),
			ModelPrefix:  getEnv("GCS_MODEL_PREFIX", "models/"),
			MountPath:    getEnv("MOUNT_PATH", ""),
			LocalCache:   getEnv("LOCAL_MODEL_CACHE", defaultLocalCache()),
			Endpoint:     getEnv("OBJECT_STORE_ENDPOINT", ""),
			Region:       getEnv("OBJECT_STORE_REGION", "auto"),
			AccessKeyID:  getEnv("OBJECT_STORE_ACCESS_KEY_ID", ""),
			AccessSecret: getEnv("OBJECT_STORE_SECRET_ACCESS_KEY", ""),
		},
		Metadata: MetadataConfig{
			ProjectID:  getEnv("METADATA_PROJECT_ID", ""),
			VersionTTL: getEnvAsDuration("VERSION_CACHE_TTL", 15*time.Minute),
		},
		ModelCache: ModelCacheConfig{
			MemorySoftLimit: getEnvAsFloat("MEMORY_SOFT_LIMIT", 0.8),
			MinFreeMemoryGB: getEnvAsFloat("MIN_FREE_MEMORY_GB", 2.0),
			ListCacheTTL:    getEnvAsDuration("MODEL_LIST_CACHE_TTL", 5*time.Second),
		},
		Inference: InferenceConfig{
			MaxConcurrentRequests: concurrencyDefault(localDev),
			RequestTimeout:        getEnvAsDuration("REQUEST_TIMEOUT", 300*time.Second),
		},
		Auth: AuthConfig{
			RequireAuth:     getEnvAsBool("REQUIRE_AUTH", true),
			BaseModelAPIKey: getEnv("BASE_MODEL_API_KEY", ""),
			KeyCacheTTL:     getEnvAsDuration("KEY_CACHE_TTL", 30*time.Minute),
			KeyCacheSize:    getEnvAsInt("KEY_CACHE_SIZE", 1000),
			JWTSecret:       getEnv("JWT_SECRET", "changeme"),
		},
		Database: DatabaseConfig{
			Type:       getEnv("DB_TYPE", dbTypeDefault(localDev)),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "inference_gateway"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "./gateway.db"),
			MaxConns:   getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:   getEnvAsInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			LogFile: getEnv("LOG_FILE", ""),
		},
	}

	return cfg, cfg.Validate()
}

func concurrencyDefault(localDev bool) int {
	if localDev {
		return 1
	}
	return getEnvAsInt("MAX_CONCURRENT_REQUESTS", 50)
}

func dbTypeDefault(localDev bool) string {
	if localDev {
		return "sqlite"
	}
	return "postgres"
}

func defaultLocalCache() string {
	dir := os.TempDir()
	return dir + "/inference-gateway-models"
}

func (c *Config) Validate() error {
	if c.ObjectStore.Bucket == "" && c.ObjectStore.MountPath == "" {
		return fmt.Errorf("either GCS_BUCKET or MOUNT_PATH must be configured")
	}

	if c.Auth.RequireAuth && c.Auth.JWTSecret == "changeme" && c.Server.Environment == "production" {
		return fmt.Errorf("JWT_SECRET must be set in production when REQUIRE_AUTH is true")
	}

	if c.ModelCache.MemorySoftLimit <= 0 || c.ModelCache.MemorySoftLimit > 1 {
		return fmt.Errorf("MEMORY_SOFT_LIMIT must be in (0, 1], got %f", c.ModelCache.MemorySoftLimit)
	}

	if c.Inference.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive")
	}

	validDBTypes := map[string]bool{"postgres": true, "sqlite": true}
	if !validDBTypes[c.Database.Type] {
		return fmt.Errorf("invalid DB_TYPE: %s", c.Database.Type)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return valueStr == "true" || valueStr == "1"
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var value float64
	if _, err := fmt.Sscanf(valueStr, "%f", &value); err != nil {
		return defaultValue
	}
	return value
}
