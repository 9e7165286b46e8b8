package graph

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/computegraph/internal/device"
	"github.com/born-ml/computegraph/internal/parallel"
	"github.com/born-ml/computegraph/internal/tensor"
)

// Config controls graph construction and execution.
//
// Example YAML:
//
//	enable_local_wg_size_override: true
//	local_wg_size_override: {x: 32, y: 1, z: 1}
//	limits:
//	  max_invocations_per_workgroup: 256
//	  max_workgroup_size: {x: 256, y: 256, z: 64}
//	parallel:
//	  enabled: true
//	  workers: 8
//	default_storage: buffer
//	log_level: debug
type Config struct {
	EnableLocalWGSizeOverride bool            `yaml:"enable_local_wg_size_override"`
	LocalWGSizeOverride       device.Extent   `yaml:"local_wg_size_override"`
	Limits                    device.Limits   `yaml:"limits"`
	Parallel                  parallel.Config `yaml:"parallel"`
	DefaultStorage            string          `yaml:"default_storage"`
	LogLevel                  string          `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Limits:         device.DefaultLimits(),
		Parallel:       parallel.DefaultConfig(),
		DefaultStorage: tensor.Buffer.String(),
		LogLevel:       "info",
	}
}

// ParseConfig decodes YAML on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse graph config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read graph config %s", path)
	}
	return ParseConfig(data)
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if c.EnableLocalWGSizeOverride {
		o := c.LocalWGSizeOverride
		if o.X == 0 || o.Y == 0 || o.Z == 0 {
			return errors.Errorf("local_wg_size_override %s has a zero axis", o)
		}
		if limit := c.Limits.MaxInvocationsPerWorkgroup; limit > 0 && o.Volume() > uint64(limit) {
			return errors.Errorf("local_wg_size_override %s exceeds %d invocations", o, limit)
		}
	}
	if _, err := c.StorageType(); err != nil {
		return errors.Wrap(err, "default_storage")
	}
	return nil
}

// StorageType returns the parsed default storage type.
func (c Config) StorageType() (tensor.StorageType, error) {
	return tensor.ParseStorageType(c.DefaultStorage)
}
