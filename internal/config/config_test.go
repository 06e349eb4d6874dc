package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongSecret = "k9Qz3xWv7bNm1pLr5tYu8cEi2oAs6dFg"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", strongSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/marketchat", cfg.Server.PathPrefix)
	assert.Equal(t, int64(65536), cfg.Server.MaxMessageSize)
	assert.Equal(t, 10, cfg.Server.MaxConnsPerUser)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Database.URI)
	assert.Equal(t, "marketplace", cfg.Database.Database)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", strongSecret)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MARKETCHAT_PATH_PREFIX", "/chat")
	t.Setenv("MONGO_DATABASE", "staging")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/chat", cfg.Server.PathPrefix)
	assert.Equal(t, "staging", cfg.Database.Database)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			JWTSecret:       strongSecret,
			PathPrefix:      "/marketchat",
			MaxMessageSize:  65536,
			MaxConnsPerUser: 10,
		},
		Database: DatabaseConfig{
			URI:      "mongodb://localhost:27017",
			Database: "marketplace",
		},
		Log: LogConfig{Level: "info"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Server.JWTSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_ShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Server.JWTSecret = "too-short-but-random-Xq7"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least")
}

func TestValidate_WeakJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Server.JWTSecret = "my-super-secret-password-value-0123456789"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weak")
}

func TestValidate_WeakSecretCheckIsCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.Server.JWTSecret = strings.ToUpper("changeme") + strongSecret

	assert.Error(t, cfg.Validate())
}

func TestValidate_PathPrefixMustStartWithSlash(t *testing.T) {
	cfg := validConfig()
	cfg.Server.PathPrefix = "marketchat"
	assert.Error(t, cfg.Validate())
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_PortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}
