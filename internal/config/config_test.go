package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "templates", cfg.TemplateRoot)
	assert.Equal(t, 5, cfg.MaskGrid)
	assert.Equal(t, 15.0, cfg.MaskThreshold)
	assert.Equal(t, 2, cfg.SearchFactor)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.ChromeTimeout)
	assert.Equal(t, "fair", cfg.Selection)
	assert.Equal(t, 800, cfg.ChartWidth)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	content := "template_root: /srv/templates\nworkers: 8\nseed: 42\nselection: embedding\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/templates", cfg.TemplateRoot)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, "embedding", cfg.Selection)
	// Unset keys keep their defaults.
	assert.Equal(t, 5, cfg.MaskGrid)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWorkerFloor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 0\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Workers)
}
