// Package config loads and validates service configuration from the
// environment. A .env file is honored in development; real deployments
// inject variables directly.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/real-rm/marketchat/internal/constants"
	"github.com/real-rm/marketchat/internal/util"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            int           `envconfig:"SERVER_PORT" default:"8080" validate:"min=1,max=65535"`
	JWTSecret       string        `envconfig:"JWT_SECRET" validate:"required"`
	PathPrefix      string        `envconfig:"MARKETCHAT_PATH_PREFIX" default:"/marketchat" validate:"required,startswith=/"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS"`
	MaxMessageSize  int64         `envconfig:"MAX_MESSAGE_SIZE" default:"65536" validate:"min=1024"`
	MaxConnsPerUser int           `envconfig:"MAX_CONNS_PER_USER" default:"10" validate:"min=1"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds MongoDB configuration
type DatabaseConfig struct {
	URI            string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017" validate:"required"`
	Database       string        `envconfig:"MONGO_DATABASE" default:"marketplace" validate:"required"`
	ConnectTimeout time.Duration `envconfig:"MONGO_CONNECT_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration. Beyond struct tags it enforces the
// JWT secret strength rules so misconfigurations are caught before serving
// traffic.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Check minimum secret length (32 characters for strong security)
	// No else needed: early return pattern (guard clause)
	if len(c.Server.JWTSecret) < constants.MinJWTSecretLength {
		return fmt.Errorf(
			"JWT secret must be at least %d characters (got %d). "+
				"Generate a strong secret with: openssl rand -base64 32",
			constants.MinJWTSecretLength, len(c.Server.JWTSecret))
	}

	// Check for common weak secrets
	// No else needed: early return pattern (guard clause)
	if weak, pattern := util.ContainsWeakPattern(c.Server.JWTSecret, constants.WeakSecrets); weak {
		return fmt.Errorf(
			"JWT secret appears to be weak (contains %q). "+
				"Use a cryptographically random secret generated with: openssl rand -base64 32",
			pattern)
	}

	return nil
}
