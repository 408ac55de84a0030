package model

import (
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/digsplat/dig/raster"
	"github.com/digsplat/dig/scene"
	"github.com/digsplat/dig/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config holds the feature field model options.
type Config struct {
	// Output dimension of the projected feature map.
	Dim int `yaml:"dim"`

	// Dimension of the feature vector stored by each gaussian.
	GaussianDim int `yaml:"gaussian_dim"`

	// classic or antialiased.
	RasterizeMode string `yaml:"rasterize_mode"`

	// Upscale factor of the supervised feature map relative to the
	// descriptor patch grid.
	DinoRescaleFactor int `yaml:"dino_rescale_factor"`
	PatchSize         int `yaml:"patch_size"`

	// Long side (in pixels) of the images fed to the descriptor model.
	CanonicalResolution int `yaml:"canonical_resolution"`

	// Training resolution schedule: frames are rendered at
	// 1/2^max(NumDownscales - step/ResolutionSchedule, 0) scale.
	NumDownscales      int `yaml:"num_downscales"`
	ResolutionSchedule int `yaml:"resolution_schedule"`

	// random, white, black or three comma separated floats.
	BackgroundColor string `yaml:"background_color"`

	// Max SH degree and the number of steps between degree unlocks.
	SHDegree         int `yaml:"sh_degree"`
	SHDegreeInterval int `yaml:"sh_degree_interval"`

	// Feature alpha normalization thresholds.
	TrainAlphaCutoff float32 `yaml:"train_alpha_cutoff"`
	EvalAlphaCutoff  float32 `yaml:"eval_alpha_cutoff"`

	// Neighbour smoothness regularizer.
	NNRegStartStep int     `yaml:"nn_reg_start_step"`
	NNRegWeight    float32 `yaml:"nn_reg_weight"`
	NumNeighbors   int     `yaml:"num_neighbors"`

	// Rasterizer options.
	TileSize        int     `yaml:"tile_size"`
	NearPlane       float32 `yaml:"near_plane"`
	FarPlane        float32 `yaml:"far_plane"`
	EvalRadiusClip  float32 `yaml:"eval_radius_clip"`
	Workers         int     `yaml:"workers"`
	BlockScheduler  string  `yaml:"block_scheduler"`
	EmptyDepthValue float32 `yaml:"empty_depth_value"`

	// Projection network.
	HiddenLayers  int  `yaml:"hidden_layers"`
	HiddenUnits   int  `yaml:"hidden_units"`
	HalfPrecision bool `yaml:"half_precision"`

	// Optional axis aligned region rendered at inference time.
	CropBox *CropBoxConfig `yaml:"crop_box,omitempty"`

	Seed int64 `yaml:"seed"`
}

// CropBoxConfig describes an axis aligned crop region.
type CropBoxConfig struct {
	Min [3]float32 `yaml:"min"`
	Max [3]float32 `yaml:"max"`
}

// The background used for "random" at inference time and whenever no
// override is active.
var defaultBackground = types.Vec3{0.1490, 0.1647, 0.2157}

// DefaultConfig creates a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Dim:                 64,
		GaussianDim:         32,
		RasterizeMode:       "classic",
		DinoRescaleFactor:   6,
		PatchSize:           14,
		CanonicalResolution: 1260,
		NumDownscales:       0,
		ResolutionSchedule:  3000,
		BackgroundColor:     "random",
		SHDegree:            3,
		SHDegreeInterval:    1000,
		TrainAlphaCutoff:    0,
		EvalAlphaCutoff:     0.8,
		NNRegStartStep:      1000,
		NNRegWeight:         0.01,
		NumNeighbors:        3,
		TileSize:            raster.DefaultTileSize,
		NearPlane:           0.01,
		FarPlane:            1e10,
		EvalRadiusClip:      1,
		Workers:             0,
		BlockScheduler:      "perfect",
		EmptyDepthValue:     10,
		HiddenLayers:        2,
		HiddenUnits:         64,
		HalfPrecision:       true,
	}
}

// LoadConfig loads the configuration from a yaml file. Missing keys keep
// their default values.
func LoadConfig(filePath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := ioutil.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "model: could not read config %q", filePath)
	}

	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "model: could not parse config %q", filePath)
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the configuration to a yaml file.
func SaveConfig(cfg *Config, filePath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "model: could not serialize config")
	}

	if err = ioutil.WriteFile(filePath, data, 0644); err != nil {
		return errors.Wrapf(err, "model: could not write config %q", filePath)
	}
	return nil
}

// Validate rejects option combinations the model cannot render with.
func (cfg *Config) Validate() error {
	switch {
	case cfg.Dim <= 0 || cfg.GaussianDim <= 0:
		return fmt.Errorf("model: feature dims must be positive; got dim=%d gaussian_dim=%d", cfg.Dim, cfg.GaussianDim)
	case cfg.DinoRescaleFactor <= 0 || cfg.PatchSize <= 0 || cfg.CanonicalResolution <= 0:
		return errors.New("model: dino_rescale_factor, patch_size and canonical_resolution must be positive")
	case cfg.CanonicalResolution < cfg.PatchSize:
		return fmt.Errorf("model: canonical_resolution %d is smaller than patch_size %d", cfg.CanonicalResolution, cfg.PatchSize)
	case cfg.NumDownscales < 0 || cfg.ResolutionSchedule <= 0:
		return errors.New("model: invalid resolution schedule")
	case cfg.SHDegree < 0 || cfg.SHDegree > raster.MaxSHDegree || cfg.SHDegreeInterval <= 0:
		return fmt.Errorf("model: sh_degree must be in [0, %d] with a positive interval", raster.MaxSHDegree)
	case cfg.NumNeighbors <= 0:
		return errors.New("model: num_neighbors must be positive")
	case cfg.NearPlane <= 0 || cfg.FarPlane <= cfg.NearPlane:
		return fmt.Errorf("model: invalid clip planes [%f, %f]", cfg.NearPlane, cfg.FarPlane)
	case cfg.HiddenUnits <= 0 || cfg.HiddenLayers < 0:
		return errors.New("model: invalid projection network shape")
	}

	if _, err := cfg.rasterizeMode(); err != nil {
		return err
	}
	if _, err := cfg.blockScheduler(); err != nil {
		return err
	}
	if _, _, err := cfg.background(); err != nil {
		return err
	}
	if cfg.CropBox != nil {
		for i := 0; i < 3; i++ {
			if cfg.CropBox.Min[i] > cfg.CropBox.Max[i] {
				return errors.New("model: crop box min exceeds max")
			}
		}
	}
	return nil
}

func (cfg *Config) rasterizeMode() (raster.RasterizeMode, error) {
	switch cfg.RasterizeMode {
	case "classic", "":
		return raster.Classic, nil
	case "antialiased":
		return raster.Antialiased, nil
	}
	return 0, fmt.Errorf("model: unknown rasterize mode %q", cfg.RasterizeMode)
}

func (cfg *Config) blockScheduler() (raster.BlockScheduler, error) {
	switch cfg.BlockScheduler {
	case "naive":
		return raster.NaiveScheduler(), nil
	case "perfect", "":
		return raster.PerfectScheduler(), nil
	}
	return nil, fmt.Errorf("model: unknown block scheduler %q", cfg.BlockScheduler)
}

// Parse the background option. The returned flag is true when a fresh random
// color should be drawn for every training render.
func (cfg *Config) background() (types.Vec3, bool, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.BackgroundColor)) {
	case "random", "":
		return defaultBackground, true, nil
	case "white":
		return types.Vec3{1, 1, 1}, false, nil
	case "black":
		return types.Vec3{}, false, nil
	}

	tokens := strings.Split(cfg.BackgroundColor, ",")
	if len(tokens) != 3 {
		return types.Vec3{}, false, fmt.Errorf("model: invalid background color %q", cfg.BackgroundColor)
	}
	var out types.Vec3
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 32)
		if err != nil {
			return types.Vec3{}, false, errors.Wrapf(err, "model: invalid background color %q", cfg.BackgroundColor)
		}
		out[i] = float32(v)
	}
	return out, false, nil
}

func (cfg *Config) cropBox() *scene.CropBox {
	if cfg.CropBox == nil {
		return nil
	}
	return scene.NewAABBCropBox(types.Vec3(cfg.CropBox.Min), types.Vec3(cfg.CropBox.Max))
}
