package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Shutdown.ReverseOrder)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, FilePath(dir), `
name: orders
shutdown:
  timeout: 30s
  reverseOrder: false
supervising:
  enabled: true
  initialDelay: 1s
  backOff:
    maxAttempts: 5
  excludeRoutes: ["debug-*"]
  routeBackOffs:
    intake:
      delay: 100ms
routes:
  - id: intake
    from: memory:orders?workers=4
    to: [log:orders]
    startupOrder: 10
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Name)
	assert.True(t, cfg.AutoStartup)
	assert.Equal(t, 30*time.Second, cfg.Shutdown.Timeout)
	assert.Equal(t, time.Second, cfg.Shutdown.PollInterval)
	assert.False(t, cfg.Shutdown.ReverseOrder)
	assert.True(t, cfg.Supervising.Enabled)
	assert.Equal(t, time.Second, cfg.Supervising.InitialDelay)
	assert.Equal(t, BackOffConfig{Delay: 2 * time.Second, Multiplier: 1, MaxAttempts: 5}, cfg.Supervising.BackOff)
	assert.Equal(t, []string{"debug-*"}, cfg.Supervising.ExcludeRoutes)
	assert.Equal(t, 100*time.Millisecond, cfg.Supervising.RouteBackOffs["intake"].Delay)
	assert.Equal(t, DefaultAdminAddress, cfg.Admin.Address)
	require.Len(t, cfg.Routes, 1)
	assert.Equal(t, RouteConfig{ID: "intake", From: "memory:orders?workers=4", To: []string{"log:orders"}, StartupOrder: 10}, cfg.Routes[0])
}

func TestLoadConfig_RouteFilesFollowInlineRoutes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, FilePath(dir), "routes:\n  - id: inline\n    from: memory:a\n")
	writeFile(t, filepath.Join(dir, RoutesDir, "b.yaml"), "id: b\nfrom: memory:b\n")
	writeFile(t, filepath.Join(dir, RoutesDir, "a.yml"), "from: memory:c\n")
	writeFile(t, filepath.Join(dir, RoutesDir, "notes.txt"), "ignored")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	ids := make([]string, len(cfg.Routes))
	for i, r := range cfg.Routes {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"inline", "a", "b"}, ids)
}

func TestLoadConfig_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, FilePath(dir), "shutdown: [not, a, map]\n")

	_, err := LoadConfig(dir)
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorTypeParse, ce.ErrorType)
	assert.Equal(t, FilePath(dir), ce.FilePath)
}

func TestLoadAndValidate_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, FilePath(dir), "routes:\n  - id: a\n    from: memory:a\n  - id: a\n    from: memory:b\n")

	_, err := LoadAndValidate(dir)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 1)
}

func TestDefaultConfigDir(t *testing.T) {
	orig := osUserHomeDir
	t.Cleanup(func() { osUserHomeDir = orig })

	osUserHomeDir = func() (string, error) { return "/home/test", nil }
	dir, err := DefaultConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/test", ".config", "switchyard"), dir)

	osUserHomeDir = func() (string, error) { return "", errors.New("no home") }
	_, err = DefaultConfigDir()
	assert.Error(t, err)
}
