package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv("OCTOLENS_GITHUB_TOKEN", "")

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		isolateEnv(t)

		cfg, err := Load(nil)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "https://api.github.com", cfg.GitHub.BaseURL)
		assert.Equal(t, "octolens", cfg.GitHub.UserAgent)
		assert.Equal(t, 10*time.Second, cfg.GitHub.Timeout)
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, "libsql", cfg.Store.Driver)
		assert.Equal(t, filepath.Join(os.Getenv("XDG_DATA_HOME"), "octolens", "octolens.db"), cfg.Store.Path)
		assert.True(t, cfg.Cache.Enabled)
		assert.Equal(t, time.Minute, cfg.Cache.TTL)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, 1.0, cfg.RateLimitMargin)
		assert.Empty(t, cfg.GitHub.Token)

		assert.Same(t, cfg, GetConfig())
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("OCTOLENS_GITHUB_BASE_URL", "https://ghe.example.com/api/v3")
		t.Setenv("OCTOLENS_SERVER_PORT", "9999")
		t.Setenv("OCTOLENS_CACHE_TTL", "5m")
		t.Setenv("OCTOLENS_RATE_LIMIT_MARGIN", "0.8")

		cfg, err := Load(nil)
		require.NoError(t, err)

		assert.Equal(t, "https://ghe.example.com/api/v3", cfg.GitHub.BaseURL)
		assert.Equal(t, 9999, cfg.Server.Port)
		assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
		assert.Equal(t, 0.8, cfg.RateLimitMargin)
	})

	t.Run("TokenFallback", func(t *testing.T) {
		isolateEnv(t)
		t.Setenv("GH_TOKEN", "gh-token")

		cfg, err := Load(nil)
		require.NoError(t, err)
		assert.Equal(t, "gh-token", cfg.GitHub.Token)

		t.Setenv("OCTOLENS_GITHUB_TOKEN", "explicit")
		cfg, err = Load(nil)
		require.NoError(t, err)
		assert.Equal(t, "explicit", cfg.GitHub.Token)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		isolateEnv(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
github:
  token: file-token
  timeout: 3s
store:
  path: ":memory:"
cache:
  enabled: false
`), 0o600))

		v, err := NewViper(path)
		require.NoError(t, err)

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "file-token", cfg.GitHub.Token)
		assert.Equal(t, 3*time.Second, cfg.GitHub.Timeout)
		assert.Equal(t, ":memory:", cfg.Store.Path)
		assert.False(t, cfg.Cache.Enabled)
	})

	t.Run("MissingExplicitConfigFile", func(t *testing.T) {
		isolateEnv(t)

		_, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("DotEnv", func(t *testing.T) {
		isolateEnv(t)
		require.NoError(t, os.WriteFile(".env", []byte("OCTOLENS_LOGGING_LEVEL=debug\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("OCTOLENS_LOGGING_LEVEL") })

		cfg, err := Load(nil)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolateEnv(t)

		cfg, err := Load(nil, map[string]any{"github.token": "flag-token", "cache.enabled": false})
		require.NoError(t, err)
		assert.Equal(t, "flag-token", cfg.GitHub.Token)
		assert.False(t, cfg.Cache.Enabled)
	})

	t.Run("InvalidMargin", func(t *testing.T) {
		isolateEnv(t)

		_, err := Load(nil, map[string]any{"rate_limit_margin": 1.5})
		require.Error(t, err)
	})
}
