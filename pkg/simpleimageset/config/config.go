// Package config assembles a simpleimageset.Service from declarative server
// configuration, with optional environment-variable overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
	"github.com/tendant/simple-imageset/pkg/simpleimageset/media"
	repomemory "github.com/tendant/simple-imageset/pkg/simpleimageset/repo/memory"
	repopg "github.com/tendant/simple-imageset/pkg/simpleimageset/repo/postgres"
	fsstorage "github.com/tendant/simple-imageset/pkg/simpleimageset/storage/fs"
	memorystorage "github.com/tendant/simple-imageset/pkg/simpleimageset/storage/memory"
	s3storage "github.com/tendant/simple-imageset/pkg/simpleimageset/storage/s3"
	"github.com/tendant/simple-imageset/pkg/simpleimageset/token"
	redistoken "github.com/tendant/simple-imageset/pkg/simpleimageset/token/redis"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",

		DatabaseType: "memory",
		DBSchema:     "imageset",

		StorageType: "memory",

		TokenStoreType:  "memory",
		TokenNamespace:  "isu",
		TokenTTLSeconds: 600,

		UploadBucket:  "incoming",
		PublishBucket: "cdn",

		ImageExtensions:    []string{".jpg", ".png"},
		DocumentExtensions: []string{".pdf"},
	}
}

// ServerConfig represents server configuration for the simple-imageset
// service.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: imageset)

	// Storage configuration
	StorageType string // "memory", "fs", "s3"
	FSBaseDir   string // base directory for "fs"
	S3          s3storage.Config

	// Progress token configuration
	TokenStoreType  string // "memory", "redis"
	RedisURL        string
	TokenNamespace  string
	TokenTTLSeconds int

	// Buckets
	UploadBucket  string
	PublishBucket string

	// Upload extension allow-list, assembled from three groups so deployments
	// can extend the defaults without restating them.
	ImageExtensions    []string
	DocumentExtensions []string
	ExtraExtensions    []string
}

// AllowedExtensions is the union of the configured extension groups.
func (c *ServerConfig) AllowedExtensions() []string {
	out := make([]string, 0, len(c.ImageExtensions)+len(c.DocumentExtensions)+len(c.ExtraExtensions))
	out = append(out, c.ImageExtensions...)
	out = append(out, c.DocumentExtensions...)
	out = append(out, c.ExtraExtensions...)
	return out
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	if c.StorageType != "memory" && c.StorageType != "fs" && c.StorageType != "s3" {
		return errors.New("storage_type must be 'memory', 'fs' or 's3'")
	}
	if c.StorageType == "fs" && c.FSBaseDir == "" {
		return errors.New("fs_base_dir is required when using fs storage")
	}
	if c.TokenStoreType != "memory" && c.TokenStoreType != "redis" {
		return errors.New("token_store_type must be 'memory' or 'redis'")
	}
	if c.TokenStoreType == "redis" && c.RedisURL == "" {
		return errors.New("redis_url is required when using the redis token store")
	}
	if c.TokenTTLSeconds <= 0 {
		return errors.New("token_ttl_seconds must be positive")
	}
	if c.UploadBucket == "" || c.PublishBucket == "" {
		return errors.New("upload and publish buckets are required")
	}
	if c.UploadBucket == c.PublishBucket {
		return errors.New("upload and publish buckets must differ")
	}
	if len(c.AllowedExtensions()) == 0 {
		return errors.New("at least one upload extension must be allowed")
	}
	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(logger *slog.Logger) (simpleimageset.Service, error) {
	repo, err := c.buildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildBucketStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build bucket store: %w", err)
	}

	tokens, err := c.buildTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to build token store: %w", err)
	}

	pipeline := simpleimageset.DefaultPipelineConfig()
	pipeline.AllowedExtensions = c.AllowedExtensions()
	pipeline.UploadBucket = c.UploadBucket
	pipeline.PublishBucket = c.PublishBucket
	pipeline.TokenNamespace = c.TokenNamespace
	pipeline.UploadTokenTTL = time.Duration(c.TokenTTLSeconds) * time.Second

	return simpleimageset.New(
		simpleimageset.WithRepository(repo),
		simpleimageset.WithBucketStore(store),
		simpleimageset.WithTokenStore(tokens),
		simpleimageset.WithProber(media.NewBasicProber()),
		simpleimageset.WithLogger(logger),
		simpleimageset.WithPipelineConfig(pipeline),
	)
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository() (simpleimageset.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildBucketStore creates a BucketStore based on the configuration
func (c *ServerConfig) buildBucketStore() (simpleimageset.BucketStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
	case "s3":
		s3cfg := c.S3
		if s3cfg.CreateBucketIfNotExist && len(s3cfg.Buckets) == 0 {
			s3cfg.Buckets = []string{c.UploadBucket, c.PublishBucket}
		}
		return s3storage.New(s3cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

// buildTokenStore creates a token.Store based on the configuration
func (c *ServerConfig) buildTokenStore() (token.Store, error) {
	switch c.TokenStoreType {
	case "memory":
		return token.NewMemoryStore(), nil
	case "redis":
		return redistoken.New(c.RedisURL)
	default:
		return nil, fmt.Errorf("unsupported token store type: %s", c.TokenStoreType)
	}
}
