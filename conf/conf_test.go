package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumhq/regcache/registry"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(old)
	})
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, registry.DefaultAddress, cfg.Registry.Address)
	assert.Equal(t, 10, cfg.Watch.BlockSeconds)
	assert.Equal(t, 10*time.Second, cfg.Watch.Backoff)
	assert.Equal(t, 30*time.Second, cfg.Watch.InitTimeout)
	assert.Empty(t, cfg.Watch.Services)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	content := `
log:
  level: debug
registry:
  address: http://consul.internal:8500
  datacenter: dc1
watch:
  block_seconds: 5
  backoff: 2s
  services:
    - name: web
      passing: true
      tags: [primary]
    - name: api
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regcache.yml"), []byte(content), 0o644))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://consul.internal:8500", cfg.Registry.Address)
	assert.Equal(t, "dc1", cfg.Registry.Datacenter)
	assert.Equal(t, 5, cfg.Watch.BlockSeconds)
	assert.Equal(t, 2*time.Second, cfg.Watch.Backoff)
	require.Len(t, cfg.Watch.Services, 2)
	assert.Equal(t, registry.ServiceWatch{Name: "web", Passing: true, Tags: []string{"primary"}}, cfg.Watch.Services[0])
	assert.Equal(t, registry.ServiceWatch{Name: "api"}, cfg.Watch.Services[1])
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("REGCACHE_REGISTRY_ADDRESS", "http://10.0.0.1:8500")
	t.Setenv("REGCACHE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.1:8500", cfg.Registry.Address)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regcache.yml"), []byte("log: [broken"), 0o644))
	chdir(t, dir)

	_, err := Load()
	assert.Error(t, err)
}
