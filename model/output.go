package model

import (
	"time"

	"github.com/digsplat/dig/raster"
	"github.com/digsplat/dig/tensor"
	"github.com/digsplat/dig/types"
)

// Output names.
const (
	OutputRGB             = "rgb"
	OutputDepth           = "depth"
	OutputAccumulation    = "accumulation"
	OutputDino            = "dino"
	OutputDinoAlpha       = "dino_alpha"
	OutputClickSimilarity = "click_similarity"
)

// Output is the bundle produced by a single render call. Optional maps are
// nil when the corresponding pass did not run.
type Output struct {
	// H x W x 3, clamped to [0, 1].
	RGB *tensor.Map

	// H x W x 1.
	Depth        *tensor.Map
	Accumulation *tensor.Map

	Background types.Vec3

	// dinoH x dinoW x Dim projected descriptors.
	Dino *tensor.Map

	// dinoH x dinoW x 1 feature pass opacity.
	DinoAlpha *tensor.Map

	// dinoH x dinoW x GaussianDim alpha normalized features before projection.
	CompactFeatures *tensor.Map

	// dinoH x dinoW x 1 Euclidean distance to the clicked feature.
	ClickSimilarity *tensor.Map

	// Screen space metadata of the radiance and feature passes.
	Meta        *raster.Meta
	FeatureMeta *raster.Meta

	Stats FrameStats
}

// Per-pass timing for a rendered frame.
type FrameStats struct {
	RadiancePass PassStats
	FeaturePass  PassStats
	Projection   time.Duration

	// Total render time for the entire frame.
	RenderTime time.Duration
}

// Timing and worker statistics for a rasterization pass.
type PassStats struct {
	Width, Height int
	ProjectTime   time.Duration
	BlendTime     time.Duration
	Workers       []raster.Stats
}

// Empty reports whether the output holds no maps at all.
func (o *Output) Empty() bool {
	return o.RGB == nil && o.Dino == nil
}

// Get the populated maps indexed by output name.
func (o *Output) Map() map[string]*tensor.Map {
	out := make(map[string]*tensor.Map)
	for name, m := range map[string]*tensor.Map{
		OutputRGB:             o.RGB,
		OutputDepth:           o.Depth,
		OutputAccumulation:    o.Accumulation,
		OutputDino:            o.Dino,
		OutputDinoAlpha:       o.DinoAlpha,
		OutputClickSimilarity: o.ClickSimilarity,
	} {
		if m != nil {
			out[name] = m
		}
	}
	return out
}

// Build a background only output of the given size.
func backgroundOutput(background types.Vec3, h, w int, emptyDepth float32) *Output {
	return &Output{
		RGB:          tensor.Tile(h, w, background[:]),
		Depth:        tensor.Const(h, w, emptyDepth),
		Accumulation: tensor.NewMap(h, w, 1),
		Background:   background,
	}
}
