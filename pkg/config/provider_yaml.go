package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig reads, defaults, overrides from the environment and validates
// the configuration file. The result is cached after the first load.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(cfgFile)
	if err != nil {
		return nil, err
	}

	y.config = cfg
	return cfg, nil
}

// Parse turns a YAML document into a ready-to-use configuration.
func Parse(data []byte) (*ConfigData, error) {
	cfg := &ConfigData{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}

	if err := applyEnvironment(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GetDevices returns all configured devices
func (y *YAMLProvider) GetDevices() ([]DeviceData, error) {
	cfg, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Devices, nil
}

// GetDevice returns the named device
func (y *YAMLProvider) GetDevice(name string) (*DeviceData, error) {
	devices, err := y.GetDevices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("device [%s] not found in configuration", name)
}

// IsReadOnly returns true since YAML files are never written back
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
