package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaam8/surbate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.RestPort)
	assert.Equal(t, DriverTarantool, cfg.StorageDriver)
	assert.Equal(t, DriverRedis, cfg.SessionDriver)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 5, cfg.SaveRetries)
	assert.Equal(t, "3301", cfg.Tarantool.Port)
	assert.Equal(t, "surbate.events", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.Mattermost.Enabled())
	assert.Equal(t, models.DefaultQualityRules(), cfg.Quality.Rules())
}

func TestOverridesFromEnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("IP_HASH_SALT=pepper\nSESSION_DRIVER=memory\n"), 0o600))
	chdir(t, dir)
	t.Cleanup(func() {
		os.Unsetenv("IP_HASH_SALT")
		os.Unsetenv("SESSION_DRIVER")
	})
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("QUALITY_TOO_FAST_PENALTY", "40")
	t.Setenv("SESSION_TTL", "2h")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "pepper", cfg.IPHashSalt)
	assert.Equal(t, DriverMemory, cfg.SessionDriver)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 40, cfg.Quality.Rules().TooFastPenalty)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
}

func TestRejectsUnknownDrivers(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORAGE_DRIVER", "mongo")
	_, err := New()
	assert.ErrorContains(t, err, "STORAGE_DRIVER")

	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("SESSION_DRIVER", "cookie")
	_, err = New()
	assert.ErrorContains(t, err, "SESSION_DRIVER")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
