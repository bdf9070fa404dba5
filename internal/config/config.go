package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	CORS     CORSConfig
	Storage  StorageConfig
	Platform PlatformConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// StorageConfig selects and parameterizes the evidence photo storage driver.
type StorageConfig struct {
	Driver         string // "local" or "s3"
	LocalBasePath  string
	LocalBaseURL   string
	S3Bucket       string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Endpoint     string // Optional: for S3-compatible services (MinIO, R2)
	S3PublicURL    string // Optional: base URL if the bucket is public
	S3UsePathStyle bool
}

// QueueConfig parameterizes the durable offline submission queue kept on a
// handheld terminal's local disk.
type QueueConfig struct {
	DataDir string
}

// HandheldConfig configures the floor-terminal sync client: where the
// inspection server lives, who the operator is, and where queued
// submissions are persisted between sessions.
type HandheldConfig struct {
	ServerURL string
	Token     string
	Queue     QueueConfig
}

// PlatformConfig points at the order management platform that owns orders
// and their line items.
type PlatformConfig struct {
	BaseURL string
	APIKey  string
}

func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "inspection"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port:         getIntOrDefault("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getIntOrDefault("SERVER_READ_TIMEOUT_SECONDS", 15)) * time.Second,
			WriteTimeout: time.Duration(getIntOrDefault("SERVER_WRITE_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getSliceOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getSliceOrDefault("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getSliceOrDefault("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
		Storage: StorageConfig{
			Driver:         getEnvOrDefault("STORAGE_DRIVER", "local"),
			LocalBasePath:  getEnvOrDefault("STORAGE_LOCAL_PATH", "./data/evidence"),
			LocalBaseURL:   getEnvOrDefault("STORAGE_LOCAL_BASE_URL", "http://localhost:8080/api/evidence"),
			S3Bucket:       getEnvOrDefault("S3_BUCKET", ""),
			S3Region:       getEnvOrDefault("S3_REGION", "us-east-1"),
			S3AccessKey:    getEnvOrDefault("S3_ACCESS_KEY", ""),
			S3SecretKey:    getEnvOrDefault("S3_SECRET_KEY", ""),
			S3Endpoint:     getEnvOrDefault("S3_ENDPOINT", ""),
			S3PublicURL:    getEnvOrDefault("S3_PUBLIC_URL", ""),
			S3UsePathStyle: getBoolOrDefault("S3_USE_PATH_STYLE", false),
		},
		Platform: PlatformConfig{
			BaseURL: getEnvOrDefault("PLATFORM_BASE_URL", ""),
			APIKey:  getEnvOrDefault("PLATFORM_API_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalBasePath == "" {
			return fmt.Errorf("STORAGE_LOCAL_PATH is required for local storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}
	return nil
}

// LoadHandheld reads the handheld terminal configuration from the
// environment.
func LoadHandheld() (*HandheldConfig, error) {
	cfg := &HandheldConfig{
		ServerURL: getEnvOrDefault("INSPECTION_SERVER_URL", "http://localhost:8080"),
		Token:     getEnvOrDefault("OPERATOR_TOKEN", ""),
		Queue: QueueConfig{
			DataDir: getEnvOrDefault("QUEUE_DATA_DIR", "./data/queue"),
		},
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("INSPECTION_SERVER_URL is required")
	}
	if cfg.Queue.DataDir == "" {
		return nil, fmt.Errorf("QUEUE_DATA_DIR is required")
	}
	return cfg, nil
}

// DSN builds the postgres connection string for GORM.
func (c *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
