package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the chunkvault client.
type Config struct {
	LogLevel    string        `yaml:"log_level"`
	MetricsAddr string        `yaml:"metrics_addr"`
	Backend     BackendConfig `yaml:"backend"`
	Audit       AuditConfig   `yaml:"audit"`
}

// BackendConfig selects and configures the chunk store backend.
type BackendConfig struct {
	// Type is one of "memory", "redis" or "s3".
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
	S3    S3Config    `yaml:"s3"`
}

// RedisConfig configures the Redis-backed chunk store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// S3Config configures the S3-compatible chunk store.
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Provider     string `yaml:"provider"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
	KeyPrefix    string `yaml:"key_prefix"`
}

// AuditConfig configures the operation audit log.
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	MaxEvents int    `yaml:"max_events"`
	Sink      string `yaml:"sink"` // "stdout" or "file"
	FilePath  string `yaml:"file_path"`
}

// Default returns a configuration suitable for local development:
// in-memory backend, info logging, audit disabled.
func Default() *Config {
	return &Config{
		LogLevel:    "info",
		MetricsAddr: ":18080",
		Backend: BackendConfig{
			Type: "memory",
		},
		Audit: AuditConfig{
			Enabled:   false,
			MaxEvents: 1000,
			Sink:      "stdout",
		},
	}
}

// Load reads a YAML configuration file, applies environment overrides and
// validates the result. An empty path yields the defaults (plus overrides).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides file values from the environment. The names
// match what deployment tooling exports when pointing the client at a
// different backend without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("BACKEND_TYPE"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("BACKEND_REDIS_ADDR"); v != "" {
		c.Backend.Redis.Addr = v
	}
	if v := os.Getenv("BACKEND_REDIS_PASSWORD"); v != "" {
		c.Backend.Redis.Password = v
	}
	if v := os.Getenv("BACKEND_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Backend.Redis.DB = db
		}
	}
	if v := os.Getenv("BACKEND_ENDPOINT"); v != "" {
		c.Backend.S3.Endpoint = v
	}
	if v := os.Getenv("BACKEND_PROVIDER"); v != "" {
		c.Backend.S3.Provider = v
	}
	if v := os.Getenv("BACKEND_REGION"); v != "" {
		c.Backend.S3.Region = v
	}
	if v := os.Getenv("BACKEND_BUCKET"); v != "" {
		c.Backend.S3.Bucket = v
	}
	if v := os.Getenv("BACKEND_ACCESS_KEY"); v != "" {
		c.Backend.S3.AccessKey = v
	}
	if v := os.Getenv("BACKEND_SECRET_KEY"); v != "" {
		c.Backend.S3.SecretKey = v
	}
	if v := os.Getenv("BACKEND_USE_PATH_STYLE"); v != "" {
		c.Backend.S3.UsePathStyle = v == "true"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}

	switch c.Backend.Type {
	case "memory":
	case "redis":
		if c.Backend.Redis.Addr == "" {
			return fmt.Errorf("backend.redis.addr is required for the redis backend")
		}
	case "s3":
		if c.Backend.S3.Bucket == "" {
			return fmt.Errorf("backend.s3.bucket is required for the s3 backend")
		}
		if c.Backend.S3.Provider == "" {
			return fmt.Errorf("backend.s3.provider is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown backend type: %q", c.Backend.Type)
	}

	switch c.Audit.Sink {
	case "", "stdout":
	case "file":
		if c.Audit.Enabled && c.Audit.FilePath == "" {
			return fmt.Errorf("audit.file_path is required for the file sink")
		}
	default:
		return fmt.Errorf("unknown audit sink: %q", c.Audit.Sink)
	}

	return nil
}
