// Package config loads server settings from the environment. A .env file in
// the working directory is read first when present; real environment
// variables win over it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
)

type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Kafka    KafkaConfig
	Renderer RendererConfig
	App      AppConfig
}

type ServerConfig struct {
	Port        int
	DBPath      string
	TemplateDir string
	// PublicRateLimit is the requests per minute one client IP may make to
	// the share-link routes.
	PublicRateLimit int
}

type AuthConfig struct {
	JWTSecret          string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	AdminLogins        []string
}

// RedisConfig selects the collaboration store. An empty Addr keeps
// collaboration state in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Driver         string
	FilesDir       string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// KafkaConfig enables share notifications on a topic. Without brokers the
// events are only logged.
type KafkaConfig struct {
	Brokers    []string
	ShareTopic string
}

type RendererConfig struct {
	Enabled bool
	Image   string
}

type AppConfig struct {
	LogLevel           string
	ShareRetentionDays int
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	port := getEnvAsInt("PORT", 8080)
	cfg := &Config{
		Server: ServerConfig{
			Port:            port,
			DBPath:          getEnv("DB_PATH", "data/mermaid.db"),
			TemplateDir:     getEnv("TEMPLATE_DIR", "web/templates"),
			PublicRateLimit: getEnvAsInt("PUBLIC_RATE_LIMIT", 60),
		},
		Auth: AuthConfig{
			JWTSecret:          os.Getenv("JWT_SECRET"),
			GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			GitHubCallbackURL:  getEnv("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
			AdminLogins:        getEnvAsList("ADMIN_LOGINS"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Storage: StorageConfig{
			Driver:         strings.ToLower(getEnv("STORAGE_DRIVER", StorageLocal)),
			FilesDir:       getEnv("FILES_DIR", "data/files"),
			MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
			MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
			MinIOBucket:    getEnv("MINIO_BUCKET", "mermaid-files"),
			MinIOUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsList("KAFKA_BROKERS"),
			ShareTopic: getEnv("KAFKA_SHARE_TOPIC", "diagram-shares"),
		},
		Renderer: RendererConfig{
			Enabled: getEnvAsBool("RENDERER_ENABLED", false),
			Image:   os.Getenv("RENDERER_IMAGE"),
		},
		App: AppConfig{
			LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
			ShareRetentionDays: getEnvAsInt("SHARE_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: PORT %d is out of range", c.Server.Port)
	}
	if c.Server.DBPath == "" {
		return fmt.Errorf("config: DB_PATH is required")
	}
	if c.Server.PublicRateLimit <= 0 {
		return fmt.Errorf("config: PUBLIC_RATE_LIMIT must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config: JWT_SECRET must be at least 16 characters")
	}

	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.FilesDir == "" {
			return fmt.Errorf("config: FILES_DIR is required for local storage")
		}
	case StorageMinIO:
		if c.Storage.MinIOEndpoint == "" || c.Storage.MinIOAccessKey == "" || c.Storage.MinIOSecretKey == "" {
			return fmt.Errorf("config: MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for minio storage")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.ShareTopic == "" {
		return fmt.Errorf("config: KAFKA_SHARE_TOPIC is required with KAFKA_BROKERS")
	}
	if c.App.ShareRetentionDays < 0 {
		return fmt.Errorf("config: SHARE_RETENTION_DAYS must not be negative")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// GitHubEnabled reports whether GitHub login is configured.
func (c *Config) GitHubEnabled() bool {
	return c.Auth.GitHubClientID != "" && c.Auth.GitHubClientSecret != ""
}

// LogLevel parses LOG_LEVEL.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid LOG_LEVEL %q", c.App.LogLevel)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		slog.Warn("invalid integer in environment, using default",
			slog.String("key", key),
			slog.Int("default", defaultValue),
		)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		slog.Warn("invalid boolean in environment, using default",
			slog.String("key", key),
			slog.Bool("default", defaultValue),
		)
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
