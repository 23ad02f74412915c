package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Storage.UploadTTL != 15*time.Minute {
		t.Fatalf("upload ttl = %v", cfg.Storage.UploadTTL)
	}
	if cfg.Stats.Schedule != "@daily" {
		t.Fatalf("stats schedule = %q", cfg.Stats.Schedule)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := `
http:
  addr: ":9090"
  public_host: https://builds.acme.com
mongo:
  uri: mongodb://localhost:27017
  database: hangar_test
storage:
  bucket: acme-builds
rate_limit:
  requests_per_second: 10
  burst: 20
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.HTTP.PublicHost != "https://builds.acme.com" {
		t.Fatalf("public host = %q", cfg.HTTP.PublicHost)
	}
	if cfg.Mongo.Database != "hangar_test" {
		t.Fatalf("database = %q", cfg.Mongo.Database)
	}
	if cfg.Storage.Bucket != "acme-builds" {
		t.Fatalf("bucket = %q", cfg.Storage.Bucket)
	}
	if cfg.RateLimit.RequestsPerSecond != 10 {
		t.Fatalf("rps = %v", cfg.RateLimit.RequestsPerSecond)
	}
	// Values the file does not set keep their defaults.
	if cfg.Storage.Region != "us-east-1" {
		t.Fatalf("region = %q", cfg.Storage.Region)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte("http:\n  addr: \":9090\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte("mongo:\n  uri: mongodb://localhost:27017\n  database: \"\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for mongo.uri without database")
	}

	if err := os.WriteFile(path, []byte("notifier:\n  enabled: true\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for enabled notifier without host")
	}
}
