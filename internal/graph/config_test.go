package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/tensor"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	st, err := cfg.StorageType()
	require.NoError(t, err)
	assert.Equal(t, tensor.Buffer, st)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
enable_local_wg_size_override: true
local_wg_size_override: {x: 32, y: 2, z: 1}
limits:
  max_invocations_per_workgroup: 128
  max_workgroup_size: {x: 128, y: 128, z: 32}
parallel:
  enabled: false
  workers: 3
default_storage: texture3d
log_level: debug
`))
	require.NoError(t, err)
	assert.True(t, cfg.EnableLocalWGSizeOverride)
	assert.Equal(t, device.Ext(32, 2, 1), cfg.LocalWGSizeOverride)
	assert.Equal(t, uint32(128), cfg.Limits.MaxInvocationsPerWorkgroup)
	assert.Equal(t, device.Ext(128, 128, 32), cfg.Limits.MaxWorkgroupSize)
	assert.False(t, cfg.Parallel.Enabled)
	assert.Equal(t, 3, cfg.Parallel.NumWorkers)
	assert.Equal(t, DefaultConfig().Parallel.MinChunkSize, cfg.Parallel.MinChunkSize)
	assert.Equal(t, "debug", cfg.LogLevel)

	st, err := cfg.StorageType()
	require.NoError(t, err)
	assert.Equal(t, tensor.Texture3D, st)
}

func TestParseConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero override axis", "enable_local_wg_size_override: true\nlocal_wg_size_override: {x: 64, y: 0, z: 1}"},
		{"override over limit", "enable_local_wg_size_override: true\nlocal_wg_size_override: {x: 64, y: 8, z: 1}"},
		{"unknown storage", "default_storage: image2d"},
		{"malformed", "limits: [1, 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
