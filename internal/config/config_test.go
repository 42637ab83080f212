package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		value, ok := values[name]
		return value, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"--signing-secret", "s3cret", "--storage", "memory"}, envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, []string{"s3cret"}, cfg.Signature.Secrets)
	assert.Equal(t, "md5", cfg.Signature.Algorithm)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 15*time.Second, cfg.ThrottleWindow)
	assert.Equal(t, 15*time.Second, cfg.LeaderboardTTL)
	assert.Equal(t, 60*time.Second, cfg.TopUsersTTL)
	assert.Equal(t, 15*time.Second, cfg.RefreshPeriod)
	assert.Equal(t, 10, cfg.TopLimit)
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
listen_addr: ":9000"
storage: postgres
postgres_dsn: postgres://file
redis:
  addr: redis-file:6379
  db: 2
signature:
  algorithm: hmac-sha256
  secrets: [from-file]
throttle_window: 20s
top_limit: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	env := envOf(map[string]string{
		"QUIZRESULTS_POSTGRES_DSN":    "postgres://env",
		"QUIZRESULTS_THROTTLE_WINDOW": "25s",
		"QUIZRESULTS_SIGNING_SECRETS": "new, old",
	})

	cfg, err := Load([]string{"--config", path, "--top-limit", "7"}, env)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "redis-file:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "hmac-sha256", cfg.Signature.Algorithm)
	assert.Equal(t, "postgres://env", cfg.PostgresDSN)
	assert.Equal(t, 25*time.Second, cfg.ThrottleWindow)
	assert.Equal(t, []string{"new", "old"}, cfg.Signature.Secrets)
	assert.Equal(t, 7, cfg.TopLimit)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: memory\nsignature:\n  secrets: [x]\n"), 0o600))

	cfg, err := Load(nil, envOf(map[string]string{"QUIZRESULTS_CONFIG": path}))
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, envOf(nil))
	assert.Error(t, err)

	_, err = Load(nil, envOf(map[string]string{"QUIZRESULTS_LOCK_TTL": "soon"}))
	assert.Error(t, err)

	_, err = Load([]string{"--unknown"}, envOf(nil))
	assert.Error(t, err)

	_, err = Load([]string{"--storage", "memory"}, envOf(nil))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Signature.Secrets = []string{"secret"}
		cfg.PostgresDSN = "postgres://localhost/quiz"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no secret", mutate: func(c *Config) { c.Signature.Secrets = nil }},
		{name: "empty secret", mutate: func(c *Config) { c.Signature.Secrets = []string{"a", ""} }},
		{name: "unknown algorithm", mutate: func(c *Config) { c.Signature.Algorithm = "sha1" }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = "sqlite" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.PostgresDSN = "" }},
		{name: "postgres without redis", mutate: func(c *Config) { c.Redis.Addr = "" }},
		{name: "zero lock ttl", mutate: func(c *Config) { c.LockTTL = 0 }},
		{name: "ttl not above refresh", mutate: func(c *Config) { c.TopUsersTTL = c.RefreshPeriod }},
		{name: "zero top limit", mutate: func(c *Config) { c.TopLimit = 0 }},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidate_MemoryNeedsNoBackends(t *testing.T) {
	cfg := Default()
	cfg.Storage = StorageMemory
	cfg.Redis.Addr = ""
	cfg.Signature.Secrets = []string{"secret"}

	assert.NoError(t, cfg.Validate())
}
