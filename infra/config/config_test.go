package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "desk.json"),
		[]byte(`{"data_dir":"/tmp/desk","metrics_port":7001,"debug":true}`), 0644)
	assert.NoError(t, err)
	t.Setenv(pathEnv, dir)

	var cfg Desk
	_, err = Load("desk", &cfg)
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/desk", cfg.DataDir)
	assert.Equal(t, 7001, cfg.MetricsPort)
	assert.True(t, cfg.Debug)
}

func TestLoad_Missing(t *testing.T) {
	t.Setenv(pathEnv, t.TempDir())
	var cfg Desk
	_, err := Load("desk", &cfg)
	assert.Error(t, err)
}
