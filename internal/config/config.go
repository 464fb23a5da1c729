package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	LogFormat        string        `mapstructure:"LOG_FORMAT"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthRedirectURL  string        `mapstructure:"AUTH_REDIRECT_URL"`
	SessionTTL       time.Duration `mapstructure:"SESSION_TTL"`
	StorageBackend   string        `mapstructure:"STORAGE_BACKEND"`
	StorageBucket    string        `mapstructure:"STORAGE_BUCKET"`
	StoragePublicURL string        `mapstructure:"STORAGE_PUBLIC_BASE_URL"`
	AWSRegion        string        `mapstructure:"AWS_REGION"`
	AWSEndpointURL   string        `mapstructure:"AWS_ENDPOINT_URL"`
	UploadMaxFiles   int           `mapstructure:"UPLOAD_MAX_FILES"`
	UploadMaxSizeMB  int           `mapstructure:"UPLOAD_MAX_SIZE_MB"`
	IdentityStrategy string        `mapstructure:"IDENTITY_STRATEGY"`
	IdentityKey      string        `mapstructure:"IDENTITY_KEY"`
	IntakeSessionTTL time.Duration `mapstructure:"INTAKE_SESSION_TTL"`
	HREmail          string        `mapstructure:"HR_EMAIL"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"LOG_FORMAT", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_REDIRECT_URL", "SESSION_TTL",
	"STORAGE_BACKEND", "STORAGE_BUCKET", "STORAGE_PUBLIC_BASE_URL", "AWS_REGION",
	"AWS_ENDPOINT_URL", "UPLOAD_MAX_FILES", "UPLOAD_MAX_SIZE_MB", "IDENTITY_STRATEGY",
	"IDENTITY_KEY", "INTAKE_SESSION_TTL", "HR_EMAIL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("AUTH_ISSUER", "healthadvocate")
	v.SetDefault("AUTH_REDIRECT_URL", "http://localhost:3000/")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("STORAGE_BUCKET", "patient-documents")
	v.SetDefault("STORAGE_PUBLIC_BASE_URL", "http://localhost:8000/storage")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("UPLOAD_MAX_FILES", 5)
	v.SetDefault("UPLOAD_MAX_SIZE_MB", 10)
	v.SetDefault("IDENTITY_STRATEGY", "name-hash")
	v.SetDefault("INTAKE_SESSION_TTL", "2h")
	v.SetDefault("HR_EMAIL", "hr@example.com")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedLogFormat returns LOG_FORMAT, falling back to console output in
// development and plain JSON elsewhere.
func (c *Config) ResolvedLogFormat() string {
	if c.LogFormat != "" {
		return c.LogFormat
	}
	if c.IsDev() {
		return "console"
	}
	return "json"
}

// UploadMaxBytes is the per-file attachment limit in bytes.
func (c *Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxSizeMB) * 1024 * 1024
}

// IdentityKeyBytes decodes IDENTITY_KEY. It returns nil when the key is unset.
func (c *Config) IdentityKeyBytes() ([]byte, error) {
	if c.IdentityKey == "" {
		return nil, nil
	}
	return hex.DecodeString(c.IdentityKey)
}

// Validate checks that the configuration is safe to run. Production requires a
// signing key for session tokens, and the keyed identity strategy requires a
// 32-byte hex key.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}

	switch c.ResolvedLogFormat() {
	case "console", "json", "ecs":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"console\", \"json\", or \"ecs\", got %q", c.LogFormat)
	}

	switch c.StorageBackend {
	case "memory":
	case "s3":
		if c.StorageBucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required when STORAGE_BACKEND is \"s3\"")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be \"memory\" or \"s3\", got %q", c.StorageBackend)
	}

	if c.UploadMaxFiles < 1 {
		return fmt.Errorf("UPLOAD_MAX_FILES must be at least 1, got %d", c.UploadMaxFiles)
	}
	if c.UploadMaxSizeMB < 1 {
		return fmt.Errorf("UPLOAD_MAX_SIZE_MB must be at least 1, got %d", c.UploadMaxSizeMB)
	}
	if c.IntakeSessionTTL <= 0 {
		return fmt.Errorf("INTAKE_SESSION_TTL must be positive, got %s", c.IntakeSessionTTL)
	}

	switch c.IdentityStrategy {
	case "name-hash":
	case "keyed":
		key, err := c.IdentityKeyBytes()
		if err != nil {
			return fmt.Errorf("IDENTITY_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("IDENTITY_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
		}
	default:
		return fmt.Errorf("IDENTITY_STRATEGY must be \"name-hash\" or \"keyed\", got %q", c.IdentityStrategy)
	}

	return nil
}
