package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.AllowInsecureHTTP = true
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8443", cfg.Server.Addr)
	assert.Equal(t, "https://x.com", cfg.Upstream.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 50, cfg.Relay.MaxBatchSize)
	assert.Equal(t, 6*time.Hour, cfg.QueryIDs.RefreshInterval)
	assert.Equal(t, "file", cfg.Audit.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	t.Run("defaults without TLS material fail", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TLS cert and key")
	})

	t.Run("TLS files satisfy the listener check", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.TLSCertFile = "server.crt"
		cfg.Server.TLSKeyFile = "server.key"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("insecure HTTP opt-in satisfies the listener check", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("half-pinned query ids rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.QueryIDs.Followers = "abc123"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "both operations or neither")
	})

	t.Run("bad audit backend rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Audit.Backend = "postgres"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit backend")
	})

	t.Run("non-positive batch size rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Relay.MaxBatchSize = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("XRELAY_ADDR", ":9000")
	t.Setenv("XRELAY_MAX_BATCH_SIZE", "25")
	t.Setenv("XRELAY_UPSTREAM_TIMEOUT", "30s")
	t.Setenv("XRELAY_AUDIT_BACKEND", "sqlite")
	t.Setenv("XRELAY_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 25, cfg.Relay.MaxBatchSize)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "sqlite", cfg.Audit.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("XRELAY_MAX_BATCH_SIZE", "not-a-number")
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromEnv())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":7443"
  allow_insecure_http: true
relay:
  max_batch_size: 10
query_ids:
  followers: "qid-list"
  remove_follower: "qid-remove"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, ":7443", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Relay.MaxBatchSize)
	assert.True(t, cfg.StaticQueryIDs())
	// untouched sections keep defaults
	assert.Equal(t, "https://x.com", cfg.Upstream.BaseURL)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile("/nonexistent/config.yaml"))
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := validConfig()
	cfg.Relay.MaxBatchSize = 7
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 7, loaded.Relay.MaxBatchSize)
}
