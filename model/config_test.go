package model

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigKeepsDefaults(t *testing.T) {
	dir, err := ioutil.TempDir("", "dig-config")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "model.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
dim: 16
rasterize_mode: antialiased
background_color: "0.1, 0.2, 0.3"
crop_box:
  min: [-1, -1, -1]
  max: [1, 1, 1]
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Dim)
	assert.Equal(t, 32, cfg.GaussianDim)
	assert.Equal(t, float32(0.8), cfg.EvalAlphaCutoff)
	require.NotNil(t, cfg.CropBox)
	assert.Equal(t, [3]float32{1, 1, 1}, cfg.CropBox.Max)

	box := cfg.cropBox()
	require.NotNil(t, box)
	assert.True(t, box.Contains([3]float32{0.5, -0.5, 0}))

	out := filepath.Join(dir, "saved.yaml")
	require.NoError(t, SaveConfig(cfg, out))
	again, err := LoadConfig(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	specs := []struct {
		mutate func(*Config)
		valid  bool
	}{
		{func(*Config) {}, true},
		{func(c *Config) { c.Dim = 0 }, false},
		{func(c *Config) { c.RasterizeMode = "fancy" }, false},
		{func(c *Config) { c.BlockScheduler = "random" }, false},
		{func(c *Config) { c.BackgroundColor = "pink" }, false},
		{func(c *Config) { c.BackgroundColor = "1,x,0" }, false},
		{func(c *Config) { c.SHDegree = 4 }, false},
		{func(c *Config) { c.PatchSize = 0 }, false},
		{func(c *Config) { c.CanonicalResolution = 10 }, false},
		{func(c *Config) { c.NearPlane = 0 }, false},
		{func(c *Config) { c.NumNeighbors = 0 }, false},
		{func(c *Config) { c.CropBox = &CropBoxConfig{Min: [3]float32{1, 0, 0}} }, false},
		{func(c *Config) { c.BlockScheduler = "naive"; c.BackgroundColor = "white" }, true},
	}

	for specIndex, spec := range specs {
		cfg := DefaultConfig()
		spec.mutate(cfg)
		err := cfg.Validate()
		if spec.valid {
			assert.NoError(t, err, "[spec %d]", specIndex)
		} else {
			assert.Error(t, err, "[spec %d]", specIndex)
		}
	}
}
