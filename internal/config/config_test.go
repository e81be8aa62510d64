package config

import (
	"log/slog"
	"strings"
	"testing"
)

const testSecret = "test-secret-at-least-16-chars!!"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.DBPath != "data/mermaid.db" {
		t.Errorf("DBPath = %q", cfg.Server.DBPath)
	}
	if cfg.Storage.Driver != StorageLocal {
		t.Errorf("Storage.Driver = %q, want local", cfg.Storage.Driver)
	}
	if cfg.Auth.GitHubCallbackURL != "http://localhost:8080/auth/github/callback" {
		t.Errorf("GitHubCallbackURL = %q", cfg.Auth.GitHubCallbackURL)
	}
	if cfg.Renderer.Enabled || cfg.Redis.Addr != "" || len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("optional backends should be off by default: %+v", cfg)
	}
	if cfg.App.ShareRetentionDays != 30 {
		t.Errorf("ShareRetentionDays = %d, want 30", cfg.App.ShareRetentionDays)
	}
	if cfg.GitHubEnabled() {
		t.Error("GitHubEnabled() = true without credentials")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("ADMIN_LOGINS", "alice, bob,,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RENDERER_ENABLED", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("STORAGE_DRIVER", "MinIO")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_ACCESS_KEY", "key")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("GITHUB_CLIENT_ID", "id")
	t.Setenv("GITHUB_CLIENT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || !strings.Contains(cfg.Auth.GitHubCallbackURL, ":9090/") {
		t.Errorf("port not applied: %d %q", cfg.Server.Port, cfg.Auth.GitHubCallbackURL)
	}
	if len(cfg.Auth.AdminLogins) != 2 || cfg.Auth.AdminLogins[1] != "bob" {
		t.Errorf("AdminLogins = %v", cfg.Auth.AdminLogins)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Renderer.Enabled || cfg.Redis.DB != 3 || cfg.Storage.Driver != StorageMinIO {
		t.Errorf("cfg = %+v", cfg)
	}
	if lvl, _ := cfg.LogLevel(); lvl != slog.LevelDebug {
		t.Errorf("LogLevel() = %v, want debug", lvl)
	}
	if !cfg.GitHubEnabled() {
		t.Error("GitHubEnabled() = false with credentials")
	}
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PUBLIC_RATE_LIMIT", "lots")
	t.Setenv("MINIO_USE_SSL", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.PublicRateLimit != 60 || cfg.Storage.MinIOUseSSL {
		t.Errorf("defaults not used: %+v", cfg.Server)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080, DBPath: "x.db", PublicRateLimit: 10},
			Auth:    AuthConfig{JWTSecret: testSecret},
			Storage: StorageConfig{Driver: StorageLocal, FilesDir: "files"},
			App:     AppConfig{LogLevel: "info"},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() on valid config = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"no db", func(c *Config) { c.Server.DBPath = "" }},
		{"zero rate", func(c *Config) { c.Server.PublicRateLimit = 0 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "ftp" }},
		{"minio without endpoint", func(c *Config) { c.Storage.Driver = StorageMinIO }},
		{"kafka without topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} }},
		{"negative retention", func(c *Config) { c.App.ShareRetentionDays = -1 }},
		{"bad log level", func(c *Config) { c.App.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
