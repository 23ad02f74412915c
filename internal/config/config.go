// Package config loads server settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hangarhq/hangar/internal/app/services/notifications"
	"github.com/hangarhq/hangar/internal/app/services/stats"
	"github.com/hangarhq/hangar/internal/app/services/users"
)

// HTTPConfig holds the listener settings shared by both servers.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR"`
	PublicHost      string        `yaml:"public_host" env:"PUBLIC_HOST"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
}

// MongoConfig selects the document store. An empty URI keeps the server on
// the in-memory store, which is only suitable for development and tests.
type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI"`
	Database string `yaml:"database" env:"MONGO_DATABASE"`
}

// StorageConfig holds the S3 provider settings.
type StorageConfig struct {
	Bucket          string        `yaml:"bucket" env:"S3_BUCKET"`
	Region          string        `yaml:"region" env:"S3_REGION"`
	Endpoint        string        `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKeyID     string        `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string        `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
	UploadTTL       time.Duration `yaml:"upload_ttl" env:"S3_UPLOAD_TTL"`
	DownloadTTL     time.Duration `yaml:"download_ttl" env:"S3_DOWNLOAD_TTL"`
}

// AuthConfig holds token verification settings. AllowedServices gates the
// tracker's service-to-service endpoints; an empty list leaves them open.
type AuthConfig struct {
	PublicKeyPath   string   `yaml:"public_key_path" env:"AUTH_PUBLIC_KEY_PATH"`
	AllowedServices []string `yaml:"allowed_services" env:"AUTH_ALLOWED_SERVICES"`
}

// RateLimitConfig bounds per-client request rates.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// Config is the full configuration for the distribution server. The tracker
// reuses the subset it needs.
type Config struct {
	HTTP        HTTPConfig           `yaml:"http"`
	Mongo       MongoConfig          `yaml:"mongo"`
	Storage     StorageConfig        `yaml:"storage"`
	Auth        AuthConfig           `yaml:"auth"`
	RateLimit   RateLimitConfig      `yaml:"rate_limit"`
	Notifier    notifications.Config `yaml:"notifier"`
	Users       users.Config         `yaml:"users"`
	Stats       stats.Config         `yaml:"stats"`
	CORSOrigins []string             `yaml:"cors_origins" env:"CORS_ORIGINS"`
	LogLevel    string               `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat   string               `yaml:"log_format" env:"LOG_FORMAT"`
}

// Load reads configuration from the YAML file at path, then overlays values
// from the environment. A missing file is not an error; a missing path skips
// the file entirely. A .env file in the working directory is honored when
// present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("decode env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			PublicHost:      "http://localhost:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Mongo: MongoConfig{
			Database: "hangar",
		},
		Storage: StorageConfig{
			Region:      "us-east-1",
			UploadTTL:   15 * time.Minute,
			DownloadTTL: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Stats: stats.Config{
			Schedule: "@daily",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.HTTP.PublicHost == "" {
		return fmt.Errorf("http.public_host is required")
	}
	if c.Mongo.URI != "" && c.Mongo.Database == "" {
		return fmt.Errorf("mongo.database is required when mongo.uri is set")
	}
	if c.Notifier.Enabled && c.Notifier.Host == "" {
		return fmt.Errorf("notifier.host is required when the notifier is enabled")
	}
	return nil
}
