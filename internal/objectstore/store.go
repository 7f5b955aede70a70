package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sony/gobreaker"

	"github.com/aiserve/inference-gateway/internal/config"
	"github.com/aiserve/inference-gateway/internal/gatewayerr"
	"github.com/aiserve/inference-gateway/internal/resilience"
)

// Store is the artifact store adapter of §4.2: it reads model files from a
// mounted filesystem when present, else mirrors them from an S3-compatible
// object store (the concrete driver behind the spec's GCS-shaped
// GCS_BUCKET/GCS_MODEL_PREFIX contract) into a local cache.
type Store struct {
	s3Client    *s3.Client
	bucket      string
	modelPrefix string
	mountPath   string
	localCache  string
	breaker     *gobreaker.CircuitBreaker
}

// New builds a Store from configuration. The object-store client is
// optional: a mount-only deployment may leave GCS_BUCKET empty.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	s := &Store{
		bucket:      cfg.Bucket,
		modelPrefix: cfg.ModelPrefix,
		mountPath:   cfg.MountPath,
		localCache:  cfg.LocalCache,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "object-store",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
		}),
	}

	if cfg.Bucket == "" {
		return s, nil
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint == "" {
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		}
		return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: cfg.Region, HostnameImmutable: true}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessSecret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	s.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return s, nil
}

// LogicalPathForBase computes the relative path for a base model's fixed
// artifact directory: the namespace separator is replaced with a hyphen.
func LogicalPathForBase(name string) string {
	return strings.ReplaceAll(name, "/", "-")
}

// LogicalPathForCustom computes the relative path for a custom model's
// versioned artifact directory: {name}/{label}.
func LogicalPathForCustom(name, label string) string {
	return path.Join(name, label)
}

// Locate returns a filesystem path containing a valid model directory for
// logicalPath, applying the merged-subdirectory rule.
func (s *Store) Locate(ctx context.Context, logicalPath string) (string, error) {
	root, err := s.ensureLocal(ctx, logicalPath)
	if err != nil {
		return "", err
	}

	resolved := ResolveRoot(root)
	if !IsValidArtifactDir(resolved) {
		return "", gatewayerr.New(gatewayerr.ArtifactInvalid, "artifact directory failed validity check").WithModel(logicalPath)
	}
	return resolved, nil
}

// LocateAdapter returns the adapter subdirectory for logicalPath's artifact.
func (s *Store) LocateAdapter(ctx context.Context, logicalPath string) (string, error) {
	root, err := s.ensureLocal(ctx, logicalPath)
	if err != nil {
		return "", err
	}

	adapterDir := filepath.Join(root, adapterSubdir)
	info, err := os.Stat(adapterDir)
	if err != nil || !info.IsDir() {
		return "", gatewayerr.New(gatewayerr.ArtifactNotFound, "adapter directory missing").WithModel(logicalPath)
	}
	return adapterDir, nil
}

// ReadTrainingConfig reads training_config.json, returning (nil, false,
// nil) when the file is absent.
func (s *Store) ReadTrainingConfig(ctx context.Context, logicalPath string) (*TrainingConfig, bool, error) {
	root, err := s.ensureLocal(ctx, logicalPath)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(filepath.Join(root, trainingConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, gatewayerr.Wrap(gatewayerr.LoadFailed, "failed to read training config", err).WithModel(logicalPath)
	}

	var cfg TrainingConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, false, gatewayerr.Wrap(gatewayerr.ArtifactInvalid, "malformed training_config.json", err).WithModel(logicalPath)
	}
	return &cfg, true, nil
}

// ensureLocal implements the three-step resolution order of §4.2, returning
// the un-merged local directory root (the home of training_config.json and
// adapter/, which sit beside merged/ rather than inside it).
func (s *Store) ensureLocal(ctx context.Context, logicalPath string) (string, error) {
	if s.mountPath != "" {
		candidate := filepath.Join(s.mountPath, logicalPath)
		if IsValidArtifactDir(ResolveRoot(candidate)) {
			return candidate, nil
		}
	}

	cachePath := filepath.Join(s.localCache, logicalPath)
	if info, err := os.Stat(cachePath); err == nil && info.IsDir() {
		return cachePath, nil
	}

	if err := s.download(ctx, logicalPath, cachePath); err != nil {
		return "", err
	}
	return cachePath, nil
}

func (s *Store) download(ctx context.Context, logicalPath, cachePath string) error {
	if s.s3Client == nil {
		return gatewayerr.New(gatewayerr.ArtifactNotFound, "no object store configured and no mount/cache hit").WithModel(logicalPath)
	}

	prefix := path.Join(s.modelPrefix, logicalPath) + "/"

	keys, err := s.listObjects(ctx, prefix)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.MetadataStoreUnavailable, "failed to list artifact blobs", err).WithModel(logicalPath)
	}
	if len(keys) == 0 {
		return gatewayerr.New(gatewayerr.ArtifactNotFound, "no blobs under prefix").WithModel(logicalPath)
	}

	if err := s.mirror(ctx, prefix, keys, cachePath); err != nil {
		os.RemoveAll(cachePath)
		return gatewayerr.Wrap(gatewayerr.LoadFailed, "failed to download artifact", err).WithModel(logicalPath)
	}

	return nil
}

func (s *Store) listObjects(ctx context.Context, prefix string) ([]string, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		var keys []string
		paginator := s3.NewListObjectsV2Paginator(s.s3Client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			for _, obj := range page.Contents {
				keys = append(keys, *obj.Key)
			}
		}
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (s *Store) mirror(ctx context.Context, prefix string, keys []string, cachePath string) error {
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		if rel == "" {
			continue
		}

		dest := filepath.Join(cachePath, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}

		if err := s.downloadOne(ctx, key, dest); err != nil {
			return err
		}
	}
	return nil
}

// blobRetryConfig is shorter than resilience.DefaultRetryConfig: a blob
// fetch sits behind the circuit breaker, so retries here only need to
// absorb a brief network blip, not outlast a genuinely down backend.
var blobRetryConfig = resilience.RetryConfig{
	MaxRetries:     2,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Multiplier:     2.0,
	JitterFactor:   0.3,
}

func (s *Store) downloadOne(ctx context.Context, key, dest string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, resilience.Retry(ctx, blobRetryConfig, func() error {
			out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return err
			}
			defer out.Body.Close()

			f, err := os.Create(dest)
			if err != nil {
				return err
			}
			defer f.Close()

			_, err = io.Copy(f, out.Body)
			return err
		})
	})
	return err
}
