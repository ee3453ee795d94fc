package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "subaudit.db", cfg.Store.Path)
	assert.Equal(t, "pages", cfg.Store.Dir)
	assert.Equal(t, 45, cfg.Judge.PageTimeoutSecs)
	assert.InDelta(t, 0.5, cfg.Judge.MaxRate, 0.001)
	assert.Equal(t, 190, cfg.Collect.MaxPages)
	assert.Equal(t, 5, cfg.Collect.BatchSize)
	assert.Equal(t, 3, cfg.Collect.PageDelayMinSecs)
	assert.Equal(t, 6, cfg.Collect.PageDelayMaxSecs)
	assert.Equal(t, 2, cfg.Collect.RetryCeiling)
	assert.Equal(t, 2, cfg.Collect.BackoffBaseSecs)
	assert.Equal(t, 60, cfg.Collect.BackoffCapSecs)
	assert.Equal(t, "reports", cfg.Report.Dir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/subaudit
judge:
  base_url: https://judge.example.edu/admin/submissions
collect:
  max_pages: 40
  retry_ceiling: 5
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/subaudit", cfg.Store.DatabaseURL)
	assert.Equal(t, "https://judge.example.edu/admin/submissions", cfg.Judge.BaseURL)
	assert.Equal(t, 40, cfg.Collect.MaxPages)
	assert.Equal(t, 5, cfg.Collect.RetryCeiling)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Collect.BatchSize)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := "store:\n  driver: sqlite\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SUBAUDIT_STORE_DRIVER", "csv")
	t.Setenv("SUBAUDIT_COLLECT_MAX_PAGES", "12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "csv", cfg.Store.Driver)
	assert.Equal(t, 12, cfg.Collect.MaxPages)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "nonsense", Format: "json"})
	assert.Error(t, err)
}
