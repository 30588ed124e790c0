// Package config handles application configuration via environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendS3     = "s3"
	BackendSQLite = "sqlite"
)

// Config holds all configuration for wirekit.
type Config struct {
	// Server settings
	Host    string `env:"WIRE_HOST" env-default:"0.0.0.0" yaml:"host"`
	Port    int    `env:"WIRE_PORT" env-default:"8080" yaml:"port"`
	APIPath string `env:"WIRE_API_PATH" env-default:"/api" yaml:"api_path"`

	// Storage settings
	StorageBackend string        `env:"WIRE_STORAGE_BACKEND" env-default:"file" yaml:"storage_backend"` // file, s3 or sqlite
	DataDir        string        `env:"WIRE_DATA_DIR" env-default:"./data" yaml:"data_dir"`
	SQLitePath     string        `env:"WIRE_SQLITE_PATH" env-default:"./data/wirekit.db" yaml:"sqlite_path"`
	S3Bucket       string        `env:"WIRE_S3_BUCKET" yaml:"s3_bucket"`
	S3Region       string        `env:"WIRE_S3_REGION" yaml:"s3_region"`
	S3Endpoint     string        `env:"WIRE_S3_ENDPOINT" yaml:"s3_endpoint"`
	S3UsePathStyle bool          `env:"WIRE_S3_USE_PATH_STYLE" env-default:"false" yaml:"s3_use_path_style"`
	CacheTTL       time.Duration `env:"WIRE_CACHE_TTL" env-default:"0s" yaml:"cache_ttl"` // 0 disables the read cache

	// Authentication settings
	AuthNamespace    string        `env:"WIRE_AUTH_NAMESPACE" env-default:"app" yaml:"auth_namespace"`
	AuthID           string        `env:"WIRE_AUTH_ID" env-default:"core-users" yaml:"auth_id"`
	SessionDuration  time.Duration `env:"WIRE_SESSION_DURATION" env-default:"168h" yaml:"session_duration"` // 7 days
	SessionCookie    string        `env:"WIRE_SESSION_COOKIE" env-default:"identity" yaml:"session_cookie"`
	SessionKeepalive bool          `env:"WIRE_SESSION_KEEPALIVE" env-default:"false" yaml:"session_keepalive"`

	// Account lockout
	LockoutMaxAttempts int           `env:"WIRE_LOCKOUT_MAX_ATTEMPTS" env-default:"5" yaml:"lockout_max_attempts"` // 0 disables
	LockoutDuration    time.Duration `env:"WIRE_LOCKOUT_DURATION" env-default:"15m" yaml:"lockout_duration"`

	// Rate limiting
	APIRateLimit int `env:"WIRE_API_RATE_LIMIT" env-default:"120" yaml:"api_rate_limit"` // requests per minute, 0 disables

	// CORS
	CORSAllowedOrigins string `env:"WIRE_CORS_ALLOWED_ORIGINS" yaml:"cors_allowed_origins"`

	// Logging
	LogLevel  string `env:"WIRE_LOG_LEVEL" env-default:"info" yaml:"log_level"`
	LogFormat string `env:"WIRE_LOG_FORMAT" env-default:"json" yaml:"log_format"` // json or text

	// Bootstrap users (created on startup if they don't exist)
	// Format: "username:password,username2:password2"
	BootstrapUsers string `env:"WIRE_BOOTSTRAP_USERS" yaml:"bootstrap_users"`
}

// Load reads configuration from an optional .env file, an optional config
// file named by WIRE_CONFIG_FILE, and the environment, in that order of
// increasing precedence.
func Load() (*Config, error) {
	envFile := os.Getenv("WIRE_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	var cfg Config
	if path := os.Getenv("WIRE_CONFIG_FILE"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be expressed as defaults.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendFile, BackendSQLite:
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("WIRE_S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if !strings.HasPrefix(c.APIPath, "/") {
		return fmt.Errorf("WIRE_API_PATH must start with /")
	}
	if c.SessionDuration <= 0 {
		return fmt.Errorf("WIRE_SESSION_DURATION must be positive")
	}
	return nil
}

// Addr returns the server address in host:port format.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// BootstrapUser represents a user to be created on startup.
type BootstrapUser struct {
	Username string
	Password string
}

// ParseBootstrapUsers parses the WIRE_BOOTSTRAP_USERS environment variable.
// Format: "username:password,username2:password2"
func (c *Config) ParseBootstrapUsers() []BootstrapUser {
	if c.BootstrapUsers == "" {
		return nil
	}

	var users []BootstrapUser
	for _, entry := range strings.Split(c.BootstrapUsers, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) < 2 {
			continue
		}

		user := BootstrapUser{
			Username: strings.TrimSpace(parts[0]),
			Password: strings.TrimSpace(parts[1]),
		}
		if user.Username == "" || user.Password == "" {
			continue
		}
		users = append(users, user)
	}
	return users
}
