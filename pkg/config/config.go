// Package config provides configuration loading and management for ctsegment.
// It handles loading configuration from YAML files and provides default values,
// including the organ threshold table.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"ctsegment/internal/models"
)

const (
	// DefaultInput is the CT volume read when no input is given
	DefaultInput = "/workspace/inputs/case/ct.nii.gz"

	// DefaultOutputDir receives one mask file per organ
	DefaultOutputDir = "/workspace/outputs/case/segmentations"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input is the path of the CT volume to segment (.nii or .nii.gz)
	Input string `yaml:"input"`

	// OutputDir is where <organ>.nii.gz masks are written; created if absent
	OutputDir string `yaml:"outputDir"`

	// Organs is the threshold table, processed in order
	Organs []models.OrganSpec `yaml:"organs"`

	// Output parameters
	Output struct {
		// PreviewDir, when set, receives a JPEG overlay of each mask's middle slice
		PreviewDir string `yaml:"previewDir"`

		// MetricsFile, when set, receives a Prometheus text-format report of the run
		MetricsFile string `yaml:"metricsFile"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultOrgans returns the calibrated intensity bands for the normalized CT
// volume. The values are empirical and must be kept as they are.
func DefaultOrgans() []models.OrganSpec {
	return []models.OrganSpec{
		{Name: "liver", Low: 0.4, High: 0.7, Erosion: 1, Dilation: 2},
		{Name: "kidney_left", Low: 0.6, High: 0.8, Erosion: 1, Dilation: 2},
		{Name: "kidney_right", Low: 0.6, High: 0.8, Erosion: 1, Dilation: 2},
		{Name: "spleen", Low: 0.5, High: 0.7, Erosion: 1, Dilation: 2},
		{Name: "lungs", Low: 0.05, High: 0.2, Erosion: 2, Dilation: 3},
		{Name: "heart", Low: 0.3, High: 0.5, Erosion: 1, Dilation: 2},
		{Name: "brain", Low: 0.2, High: 0.4, Erosion: 2, Dilation: 3},
	}
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Input:     DefaultInput,
		OutputDir: DefaultOutputDir,
		Organs:    DefaultOrgans(),
	}
	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// A file that sets organs replaces the whole default table
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate checks paths and the organ table
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("%w: input path is empty", ErrInvalidConfig)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output directory is empty", ErrInvalidConfig)
	}
	return ValidateOrgans(c.Organs)
}

// ValidateOrgans checks that every organ has a usable file name, a non-empty
// band and non-negative iteration counts, and that names are unique
func ValidateOrgans(organs []models.OrganSpec) error {
	if len(organs) == 0 {
		return fmt.Errorf("%w: organ table is empty", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(organs))
	for i, o := range organs {
		switch {
		case o.Name == "":
			return fmt.Errorf("%w: organ %d has no name", ErrInvalidConfig, i)
		case strings.ContainsAny(o.Name, `/\`) || o.Name == "." || o.Name == "..":
			return fmt.Errorf("%w: organ name %q is not a valid file name", ErrInvalidConfig, o.Name)
		case seen[o.Name]:
			return fmt.Errorf("%w: duplicate organ %q", ErrInvalidConfig, o.Name)
		case !(o.Low < o.High):
			return fmt.Errorf("%w: organ %q has low %v not below high %v", ErrInvalidConfig, o.Name, o.Low, o.High)
		case o.Erosion < 0 || o.Dilation < 0:
			return fmt.Errorf("%w: organ %q has negative iteration count", ErrInvalidConfig, o.Name)
		}
		seen[o.Name] = true
	}
	return nil
}

// Select restricts the organ table to names, keeping table order.
// An empty names list keeps every organ.
func (c *Config) Select(names []string) error {
	if len(names) == 0 {
		return nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}

	var kept []models.OrganSpec
	for _, o := range c.Organs {
		if want[o.Name] {
			kept = append(kept, o)
			delete(want, o.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return fmt.Errorf("%w: unknown organ(s) %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	c.Organs = kept
	return nil
}
