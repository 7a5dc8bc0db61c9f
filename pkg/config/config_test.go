package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctsegment/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultInput, cfg.Input)
	assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
	require.Len(t, cfg.Organs, 7)

	names := make([]string, len(cfg.Organs))
	for i, o := range cfg.Organs {
		names[i] = o.Name
	}
	assert.Equal(t, []string{"liver", "kidney_left", "kidney_right", "spleen", "lungs", "heart", "brain"}, names)
	assert.Equal(t, models.OrganSpec{Name: "lungs", Low: 0.05, High: 0.2, Erosion: 2, Dilation: 3}, cfg.Organs[4])
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctsegment.yaml")
	content := `
input: /data/ct.nii
organs:
  - name: bone
    low: 0.8
    high: 1.01
    erosion: 0
    dilation: 1
output:
  previewDir: /tmp/previews
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/ct.nii", cfg.Input)
	assert.Equal(t, DefaultOutputDir, cfg.OutputDir, "unset keys keep defaults")
	assert.Equal(t, []models.OrganSpec{{Name: "bone", Low: 0.8, High: 1.01, Erosion: 0, Dilation: 1}}, cfg.Organs)
	assert.Equal(t, "/tmp/previews", cfg.Output.PreviewDir)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("organs: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidateOrgans(t *testing.T) {
	ok := models.OrganSpec{Name: "liver", Low: 0.4, High: 0.7, Erosion: 1, Dilation: 2}

	tests := []struct {
		name   string
		organs []models.OrganSpec
	}{
		{"empty table", nil},
		{"no name", []models.OrganSpec{{Low: 0, High: 1}}},
		{"path separator", []models.OrganSpec{{Name: "../liver", Low: 0, High: 1}}},
		{"dot dot", []models.OrganSpec{{Name: "..", Low: 0, High: 1}}},
		{"duplicate", []models.OrganSpec{ok, ok}},
		{"inverted band", []models.OrganSpec{{Name: "x", Low: 0.7, High: 0.4}}},
		{"empty band", []models.OrganSpec{{Name: "x", Low: 0.5, High: 0.5}}},
		{"negative erosion", []models.OrganSpec{{Name: "x", Low: 0, High: 1, Erosion: -1}}},
		{"negative dilation", []models.OrganSpec{{Name: "x", Low: 0, High: 1, Dilation: -2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateOrgans(tt.organs), ErrInvalidConfig)
		})
	}

	assert.NoError(t, ValidateOrgans([]models.OrganSpec{ok}))
}

func TestValidatePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.OutputDir = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestSelect(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Select([]string{"brain", " liver"}))

	require.Len(t, cfg.Organs, 2)
	assert.Equal(t, "liver", cfg.Organs[0].Name, "table order is kept")
	assert.Equal(t, "brain", cfg.Organs[1].Name)

	cfg = DefaultConfig()
	require.NoError(t, cfg.Select(nil))
	assert.Len(t, cfg.Organs, 7)

	cfg = DefaultConfig()
	assert.ErrorIs(t, cfg.Select([]string{"pancreas"}), ErrInvalidConfig)
}
