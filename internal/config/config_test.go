package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSQLiteDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "s3cret")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "events.db", cfg.DB.Path)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, "registration.status_changed", cfg.AMQP.Queue)
	assert.True(t, cfg.Cache.Methods["GET"])
}

func TestLoadMySQLRequiresCredentials(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")

	v, err := New("")
	require.NoError(t, err)
	_, err = Load(v)
	require.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), "DB_HOST")
	assert.Contains(t, err.Error(), "DB_NAME")
	assert.Contains(t, err.Error(), "DB_USER")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("JWT_SECRET", "s3cret")

	v, err := New("")
	require.NoError(t, err)
	_, err = Load(v)
	require.Error(t, err)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_driver: sqlite\njwt_secret: fromfile\napp_port: \"9090\"\nrate_limit_burst: 5\n"), 0o600))

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "fromfile", cfg.JWTSecret)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.RateLimit.Capacity)
}

func TestRateLimitClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	v, err := New("")
	require.NoError(t, err)
	rl := LoadRateLimitConfig(v)
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestDatabaseValidateIgnoresJWTSecret(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.ErrorIs(t, err, ErrMissing)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.NoError(t, cfg.DB.Validate())
}
