package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vjranagit/timeseries/internal/logging"
	"github.com/vjranagit/timeseries/pkg/storage"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Storage StorageConfig  `yaml:"storage"`
	Cache   CacheConfig    `yaml:"cache"`
	Logging logging.Config `yaml:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string        `yaml:"listen_addr"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Path             string `yaml:"path"`
	InMemory         bool   `yaml:"in_memory"`
	RetentionDays    int    `yaml:"retention_days"`
	Compression      string `yaml:"compression"`
	CompressionLevel int    `yaml:"compression_level"`
}

// CacheConfig holds series cache configuration.
// A zero capacity disables the cache.
type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns default configuration with environment overrides applied
func DefaultConfig() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":9090",
			Timeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			Path:             "./data",
			RetentionDays:    0,
			Compression:      storage.CompressionZstd,
			CompressionLevel: 3,
		},
		Cache: CacheConfig{
			Capacity: 1024,
			TTL:      5 * time.Minute,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	cfg.Server.ListenAddr = getEnv("LISTEN_ADDR", cfg.Server.ListenAddr)

	cfg.Storage.Path = getEnv("STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.InMemory = getEnvBool("STORAGE_IN_MEMORY", cfg.Storage.InMemory)
	cfg.Storage.RetentionDays = getEnvInt("RETENTION_DAYS", cfg.Storage.RetentionDays)
	cfg.Storage.Compression = getEnv("COMPRESSION", cfg.Storage.Compression)
	cfg.Storage.CompressionLevel = getEnvInt("COMPRESSION_LEVEL", cfg.Storage.CompressionLevel)

	cfg.Cache.Capacity = getEnvInt("CACHE_CAPACITY", cfg.Cache.Capacity)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig(logger *logging.Logger) *storage.Config {
	return &storage.Config{
		Path:             c.Storage.Path,
		InMemory:         c.Storage.InMemory,
		RetentionDays:    c.Storage.RetentionDays,
		Compression:      c.Storage.Compression,
		CompressionLevel: c.Storage.CompressionLevel,
		Logger:           logger,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.Server.ListenAddr == "" {
		errs = append(errs, "server.listen_addr is required")
	}
	if c.Server.Timeout <= 0 {
		errs = append(errs, "server.timeout must be positive")
	}

	if c.Storage.Path == "" && !c.Storage.InMemory {
		errs = append(errs, "storage.path is required unless storage.in_memory is set")
	}
	if c.Storage.RetentionDays < 0 {
		errs = append(errs, "storage.retention_days must not be negative")
	}
	switch c.Storage.Compression {
	case storage.CompressionZstd, storage.CompressionSnappy:
	default:
		errs = append(errs, fmt.Sprintf("storage.compression must be %q or %q",
			storage.CompressionZstd, storage.CompressionSnappy))
	}
	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		errs = append(errs, "storage.compression_level must be between 1 and 4")
	}

	if c.Cache.Capacity < 0 {
		errs = append(errs, "cache.capacity must not be negative")
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, "cache.ttl must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
