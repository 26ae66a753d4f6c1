package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the index server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Reindex ReindexConfig `yaml:"reindex"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains the HTTP boundary configuration
type ServerConfig struct {
	Address    string `yaml:"address"`
	OpsAddress string `yaml:"ops_address"`
	// BasePath is the URL prefix of the index, stored without surrounding slashes
	BasePath string `yaml:"base_path"`
}

// StorageConfig contains object store configuration
type StorageConfig struct {
	// Bucket is a bare S3 bucket name or a URL: s3://name, gs://name, azblob://account/container
	Bucket   string `yaml:"bucket"`
	// Region is left to the SDK default chain (env, shared config profile) when empty
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	// PresignedURLTTL is the signed URL lifetime in seconds
	PresignedURLTTL    int    `yaml:"presigned_url_ttl"`
	PresignConcurrency int    `yaml:"presign_concurrency"`
	AzureAccountKey    string `yaml:"azure_account_key"`
}

// ReindexConfig contains the periodic reindex configuration
type ReindexConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults
const (
	DefaultAddress            = "0.0.0.0:8080"
	DefaultOpsAddress         = "127.0.0.1:9102"
	DefaultPresignedURLTTL    = 900
	DefaultPresignConcurrency = 8
)

// LookupFunc resolves an environment variable
type LookupFunc func(key string) (string, bool)

// Load loads configuration from an optional YAML file and the process environment
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv loads configuration from an optional YAML file, then applies
// environment overrides resolved through lookup
func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnv(lookup); err != nil {
		return nil, err
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Server.Address, "LISTEN_ADDRESS")
	str(&c.Server.OpsAddress, "OPS_ADDRESS")
	if v, ok := lookup("BASE_PATH"); ok {
		c.Server.BasePath = v
	}

	str(&c.Storage.Bucket, "S3_BUCKET")
	str(&c.Storage.Region, "S3_REGION", "AWS_REGION")
	str(&c.Storage.Endpoint, "S3_ENDPOINT")
	str(&c.Storage.AzureAccountKey, "AZURE_STORAGE_KEY")

	if v, ok := lookup("S3_PRESIGNED_URL_TTL"); ok && v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: S3_PRESIGNED_URL_TTL %q is not an integer", ErrInvalidConfig, v)
		}
		c.Storage.PresignedURLTTL = ttl
	}
	if v, ok := lookup("PRESIGN_CONCURRENCY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PRESIGN_CONCURRENCY %q is not an integer", ErrInvalidConfig, v)
		}
		c.Storage.PresignConcurrency = n
	}
	if v, ok := lookup("REINDEX_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: REINDEX_INTERVAL %q: %v", ErrInvalidConfig, v, err)
		}
		c.Reindex.Interval = d
	}

	str(&c.Logging.Level, "LOG_LEVEL")
	str(&c.Logging.Format, "LOG_FORMAT")

	return nil
}

func (c *Config) setDefaults() {
	c.Server.BasePath = strings.Trim(c.Server.BasePath, "/")

	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.OpsAddress == "" {
		c.Server.OpsAddress = DefaultOpsAddress
	}

	if c.Storage.PresignedURLTTL == 0 {
		c.Storage.PresignedURLTTL = DefaultPresignedURLTTL
	}
	if c.Storage.PresignConcurrency == 0 {
		c.Storage.PresignConcurrency = DefaultPresignConcurrency
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.Bucket == "" {
		return fmt.Errorf("%w: bucket cannot be empty (set S3_BUCKET)", ErrInvalidConfig)
	}

	if c.Storage.PresignedURLTTL <= 0 {
		return fmt.Errorf("%w: presigned_url_ttl must be positive", ErrInvalidConfig)
	}
	// SigV4 caps presigned URLs at seven days
	if c.Storage.PresignedURLTTL > 7*24*3600 {
		return fmt.Errorf("%w: presigned_url_ttl %d exceeds 604800 seconds", ErrInvalidConfig, c.Storage.PresignedURLTTL)
	}

	if c.Storage.PresignConcurrency <= 0 {
		return fmt.Errorf("%w: presign_concurrency must be positive", ErrInvalidConfig)
	}

	if c.Reindex.Interval < 0 {
		return fmt.Errorf("%w: reindex interval cannot be negative", ErrInvalidConfig)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: invalid logging level: %s (must be debug, info, warn, or error)", ErrInvalidConfig, c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("%w: invalid logging format: %s (must be json or text)", ErrInvalidConfig, c.Logging.Format)
	}

	return nil
}

// PresignTTL returns the signed URL lifetime as a duration
func (s StorageConfig) PresignTTL() time.Duration {
	return time.Duration(s.PresignedURLTTL) * time.Second
}
