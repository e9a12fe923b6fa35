package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func requiredEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":      "postgres://localhost/library",
		"JWT_SECRET":        "s3cret",
		"STRIPE_SECRET_KEY": "sk_test_123",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(envOf(requiredEnv()))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.Database.ConnMaxLifetime())
	assert.Equal(t, 2, cfg.Payments.FineMultiplier)
	assert.Equal(t, "usd", cfg.Payments.Currency)
	assert.Equal(t, 30*time.Second, cfg.Outbox.Interval())
	assert.Equal(t, 10, cfg.Outbox.MaxAttempts)
	assert.False(t, cfg.Tracing.Enabled)
	assert.False(t, cfg.IsProduction())
}

func TestLoadEnvOverrides(t *testing.T) {
	env := requiredEnv()
	env["APP_ENV"] = "production"
	env["DATABASE_DRIVER"] = "sqlite"
	env["FINE_MULTIPLIER"] = "3"
	env["AUTO_MIGRATE"] = "false"
	env["PUBLIC_BASE_URL"] = "https://library.example.com/"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example.com, https://b.example.com,"

	cfg, err := LoadFrom(envOf(env))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Payments.FineMultiplier)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "https://library.example.com", cfg.Payments.PublicBaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: ":9090"
database:
  driver: sqlite
  url: "file:library.db"
auth:
  jwt_secret: from-file
payments:
  stripe_secret_key: sk_file
  fine_multiplier: 4
`), 0o600))

	cfg, err := LoadFrom(envOf(map[string]string{
		"CONFIG_FILE":     path,
		"FINE_MULTIPLIER": "5",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "file:library.db", cfg.Database.URL)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 5, cfg.Payments.FineMultiplier)
	assert.Equal(t, 10, cfg.Database.MaxIdleConns)
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	_, err := LoadFrom(envOf(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	env := requiredEnv()
	env["DB_MAX_OPEN_CONNS"] = "lots"
	_, err := LoadFrom(envOf(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_MAX_OPEN_CONNS")
}
