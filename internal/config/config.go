// Package config loads the chest daemon's typed runtime configuration from
// environment variables, in the env-var-with-fallback style the teacher
// uses for its own serve command (envOrFirst in internal/commands/serve.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects which blob store gateway implementation to construct.
type Backend string

const (
	BackendS3    Backend = "s3"
	BackendAzure Backend = "azureblob"
)

const (
	defaultHost         = "localhost:8080"
	defaultReapInterval = time.Hour
)

// Config is every setting spec.md §6 assigns to this core (storage backend
// selection, bucket/container names, and the DB URL belong to the external
// collaborators in principle, but this core still needs to know them to
// construct its own gateway clients).
type Config struct {
	JWTSecret    string
	RequireTOTP  bool
	TOTPSecrets  string
	Host         string
	DatabaseURL  string
	ReapInterval time.Duration
	SentryDSN    string

	StorageBackend Backend

	S3Bucket   string
	S3Endpoint string
	S3Prefix   string

	AzureConnectionString string
	AzureContainer        string
}

// Load reads and validates configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		JWTSecret:    strings.TrimSpace(os.Getenv("JWT_SECRET")),
		RequireTOTP:  getEnvBool("REQUIRE_TOTP", false),
		TOTPSecrets:  os.Getenv("TOTP_SECRETS"),
		Host:         getEnv("CHEST_HOST", defaultHost),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ReapInterval: getEnvDuration("CHEST_REAP_INTERVAL", defaultReapInterval),
		SentryDSN:    strings.TrimSpace(os.Getenv("SENTRY_DSN")),

		StorageBackend: Backend(getEnv("CHEST_STORAGE_BACKEND", string(BackendS3))),

		S3Bucket:   os.Getenv("CHEST_S3_BUCKET"),
		S3Endpoint: os.Getenv("CHEST_S3_ENDPOINT"),
		S3Prefix:   os.Getenv("CHEST_S3_PREFIX"),

		AzureConnectionString: os.Getenv("CHEST_AZURE_CONNECTION_STRING"),
		AzureContainer:        os.Getenv("CHEST_AZURE_CONTAINER"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.RequireTOTP && strings.TrimSpace(c.TOTPSecrets) == "" {
		return fmt.Errorf("config: TOTP_SECRETS is required when REQUIRE_TOTP=true")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}

	switch c.StorageBackend {
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("config: CHEST_S3_BUCKET is required for the s3 backend")
		}
	case BackendAzure:
		if c.AzureConnectionString == "" || c.AzureContainer == "" {
			return fmt.Errorf("config: CHEST_AZURE_CONNECTION_STRING and CHEST_AZURE_CONTAINER are required for the azureblob backend")
		}
	default:
		return fmt.Errorf("config: unknown CHEST_STORAGE_BACKEND %q, expected %q or %q", c.StorageBackend, BackendS3, BackendAzure)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
