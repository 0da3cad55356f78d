package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ecoroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "Asia/Almaty", cfg.City.Timezone)
	assert.Equal(t, "uniform", cfg.Noise.Kind)
	assert.Equal(t, 5.0, cfg.Noise.Amplitude)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 15*time.Minute, cfg.Cache.LongTTL)
	assert.Equal(t, 3*time.Hour, cfg.Cache.Horizon)
	assert.False(t, cfg.OSRM.Enabled)
	assert.Equal(t, 6*time.Second, cfg.OSRM.Timeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "routes.computed", cfg.Kafka.Topic)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "Asia/Almaty", cfg.Location().String())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
env: production
log_level: warn
noise:
  kind: daily
  amplitude: 3
server:
  addr: ":9000"
  write_timeout: 1m
cache:
  ttl: 30s
osrm:
  enabled: true
  base_url: http://osrm.local/route/v1/driving
kafka:
  enabled: true
  brokers:
    - kafka-1:9092
    - kafka-2:9092
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "daily", cfg.Noise.Kind)
	assert.Equal(t, 3.0, cfg.Noise.Amplitude)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 15*time.Minute, cfg.Cache.LongTTL)
	assert.True(t, cfg.OSRM.Enabled)
	assert.Equal(t, "http://osrm.local/route/v1/driving", cfg.OSRM.BaseURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ECOROUTE_SERVER_ADDR", ":7070")
	t.Setenv("ECOROUTE_POSTGRES_PORT", "5433")
	t.Setenv("ECOROUTE_CACHE_TTL", "2m")
	t.Setenv("ECOROUTE_KAFKA_BROKERS", "a:9092,b:9092")

	path := writeConfig(t, "server:\n  addr: \":9000\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFlagsWin(t *testing.T) {
	t.Setenv("ECOROUTE_SERVER_ADDR", ":7070")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("addr", ":8080", "")
	fs.String("noise", "uniform", "")
	require.NoError(t, fs.Parse([]string{"--addr", ":6060", "--noise", "none"}))

	cfg, err := Load("",
		FlagBinding{Key: "server.addr", Flag: fs.Lookup("addr")},
		FlagBinding{Key: "noise.kind", Flag: fs.Lookup("noise")},
		FlagBinding{Key: "unused", Flag: fs.Lookup("missing")},
	)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Addr)
	assert.Equal(t, "none", cfg.Noise.Kind)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "noise:\n  kind: loud\ncity:\n  timezone: Mars/Olympus\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "noise.kind")
		assert.Contains(t, err.Error(), "city.timezone")
	})
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"Negative amplitude", func(c *Config) { c.Noise.Amplitude = -1 }},
		{"Empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"Zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"OSRM without timeout", func(c *Config) { c.OSRM.Enabled = true; c.OSRM.Timeout = 0 }},
		{"Kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	disabled := *base
	disabled.Cache.Enabled = false
	disabled.Cache.TTL = 0
	assert.NoError(t, disabled.Validate())
}
