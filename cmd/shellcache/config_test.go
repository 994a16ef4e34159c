package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config, err := getConfig("")
	require.NoError(t, err)
	assert.Equal(t, "dev", config.Version)
	assert.Equal(t, []string{"/"}, config.ShellAssets)
	assert.Equal(t, 10*time.Second, config.NetworkTimeout)
	assert.True(t, config.NavigationPreload)
	assert.NoError(t, config.engineConfig(zerolog.Nop()).Validate())
}

func TestConfigOverridesDefaults(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "shellcache.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(`
origin: https://app.example
version: "42"
shellAssets:
  - /index.html
  - /app.js
backendHost: api.
networkTimeout: 2s
`), 0644))

	config, err := getConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example", config.Origin)
	assert.Equal(t, "42", config.Version)
	assert.Equal(t, []string{"/index.html", "/app.js"}, config.ShellAssets)
	assert.Equal(t, 2*time.Second, config.NetworkTimeout)
	// not in the file, so the default is kept
	assert.Equal(t, "sync-offline-data", config.SyncTag)

	cfg := config.engineConfig(zerolog.Nop())
	assert.Equal(t, "shellcache-precache-42", cfg.PrecacheName())
	assert.Equal(t, "api.", cfg.BackendHost)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SHELLCACHE_VERSION", "from-env")
	t.Setenv("SHELLCACHE_SHELL_ASSETS", "/,/app.js")
	t.Setenv("SHELLCACHE_NAVIGATION_PRELOAD", "false")

	config, err := getConfig("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", config.Version)
	assert.Equal(t, []string{"/", "/app.js"}, config.ShellAssets)
	assert.False(t, config.NavigationPreload)
	// untouched by the environment
	assert.Equal(t, "http://localhost:3000", config.Origin)
}

func TestConfigErrors(t *testing.T) {
	_, err := getConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	filename := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("shellAssets: {"), 0644))
	_, err = getConfig(filename)
	assert.Error(t, err)
}
