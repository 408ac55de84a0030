// Package model implements the feature field gaussian model: a dual-pass
// renderer that produces radiance and projected descriptor maps for a
// camera, the feature loss terms and the click state used by interactive
// queries.
package model

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/chewxy/math32"
	"github.com/digsplat/dig/log"
	"github.com/digsplat/dig/nn"
	"github.com/digsplat/dig/raster"
	"github.com/digsplat/dig/scene"
	"github.com/digsplat/dig/tensor"
	"github.com/digsplat/dig/types"
)

var (
	ErrCameraBatchSize    = errors.New("model: expected exactly one camera per render call")
	ErrFeatureDimMismatch = errors.New("model: gaussian feature width does not match gaussian_dim")
	ErrClickFeatureDim    = errors.New("model: click feature width does not match the descriptor dim")
)

// ClickState holds the result of the last interactive query.
type ClickState struct {
	Location types.Vec3
	Feature  []float32
}

// Model renders a gaussian set with a per-gaussian feature field.
type Model struct {
	cfg    *Config
	logger log.Logger

	gaussians  *scene.GaussianSet
	projection *nn.MLP

	radiance *raster.Rasterizer
	features *raster.Rasterizer

	context *RenderContext
	cropBox *scene.CropBox

	rasterizeMode    raster.RasterizeMode
	background       types.Vec3
	randomBackground bool
	rng              *rand.Rand

	step     int
	training bool

	click  *ClickState
	losses *LossComposer
}

// Create a model for the given gaussians. If ctx is nil, a new render
// context is allocated.
func New(cfg *Config, gaussians *scene.GaussianSet, ctx *RenderContext) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := gaussians.Validate(); err != nil {
		return nil, err
	}
	if gaussians.FeatureDim() != cfg.GaussianDim {
		return nil, ErrFeatureDimMismatch
	}

	projection, err := nn.New(nn.Config{
		InputDim:      cfg.GaussianDim,
		OutputDim:     cfg.Dim,
		HiddenLayers:  cfg.HiddenLayers,
		HiddenUnits:   cfg.HiddenUnits,
		HalfPrecision: cfg.HalfPrecision,
		Seed:          cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = NewRenderContext()
	}

	// Validate has already checked these.
	mode, _ := cfg.rasterizeMode()
	radianceScheduler, _ := cfg.blockScheduler()
	featureScheduler, _ := cfg.blockScheduler()
	background, random, _ := cfg.background()

	return &Model{
		cfg:              cfg,
		logger:           log.New("model"),
		gaussians:        gaussians,
		projection:       projection,
		radiance:         raster.New(cfg.Workers, radianceScheduler),
		features:         raster.New(cfg.Workers, featureScheduler),
		context:          ctx,
		cropBox:          cfg.cropBox(),
		rasterizeMode:    mode,
		background:       background,
		randomBackground: random,
		rng:              rand.New(rand.NewSource(cfg.Seed)),
		training:         true,
		losses:           NewLossComposer(cfg),
	}, nil
}

func (m *Model) Config() *Config               { return m.cfg }
func (m *Model) Gaussians() *scene.GaussianSet { return m.gaussians }
func (m *Model) Projection() *nn.MLP           { return m.projection }
func (m *Model) RenderContext() *RenderContext { return m.context }
func (m *Model) Step() int                     { return m.step }
func (m *Model) Training() bool                { return m.training }
func (m *Model) Click() *ClickState            { return m.click }
func (m *Model) NeighborIndexBuilds() int      { return m.losses.Rebuilds() }

// Replace the gaussian set, e.g. after densification or pruning.
func (m *Model) SetGaussians(gs *scene.GaussianSet) {
	m.gaussians = gs
}

// Set the training step that drives the SH, resolution and regularizer
// schedules.
func (m *Model) SetStep(step int) {
	m.step = step
}

// Switch to training mode.
func (m *Model) Train() {
	m.training = true
}

// Switch to evaluation mode.
func (m *Model) Eval() {
	m.training = false
}

// Store the result of an interactive query. The feature must have the
// projected descriptor width.
func (m *Model) SetClick(location types.Vec3, feature []float32) error {
	if len(feature) != m.cfg.Dim {
		return ErrClickFeatureDim
	}
	feat := make([]float32, len(feature))
	copy(feat, feature)
	m.click = &ClickState{Location: location, Feature: feat}
	return nil
}

// Forget the last interactive query.
func (m *Model) ClearClick() {
	m.click = nil
}

// Parameter groups of the gaussian attributes, including dino_feats.
func (m *Model) GaussianParamGroups() map[string][]*tensor.Tensor {
	return m.gaussians.ParamGroups()
}

// All parameter groups exposed to the optimizer.
func (m *Model) ParamGroups() map[string][]*tensor.Tensor {
	groups := m.GaussianParamGroups()
	groups[nn.ParamGroup] = m.projection.Parameters()
	return groups
}

// Render a camera batch. Batches must contain exactly one camera. A nil
// batch yields an empty output.
func (m *Model) GetOutputs(cameras scene.Cameras) (*Output, error) {
	if cameras == nil {
		m.logger.Warning("GetOutputs called without a camera")
		return &Output{}, nil
	}
	if cameras.Len() != 1 {
		return nil, ErrCameraBatchSize
	}
	return m.Render(&cameras[0])
}

// Render the radiance and feature passes for a single camera.
func (m *Model) Render(cam *scene.Camera) (*Output, error) {
	start := time.Now()
	background := m.selectBackground()

	gs := m.gaussians
	if err := gs.Validate(); err != nil {
		return nil, err
	}
	if m.cropBox != nil && !m.training {
		ids := m.cropBox.Within(gs.Means())
		if len(ids) == 0 {
			m.logger.Debug("crop box is empty; rendering background")
			out := backgroundOutput(background, cam.Height, cam.Width, m.cfg.EmptyDepthValue)
			out.Stats.RenderTime = time.Since(start)
			return out, nil
		}
		gs = gs.Select(ids)
	}

	viewMat := cam.ViewMatrix()
	working := cam.Scaled(1 / m.downscaleFactor())
	if working.Width <= 0 || working.Height <= 0 {
		return nil, fmt.Errorf("model: camera resolution %dx%d is too small for downscale factor %.0f", cam.Width, cam.Height, m.downscaleFactor())
	}

	out, err := m.renderRadiance(gs, &working, viewMat, background)
	if err != nil {
		return nil, err
	}
	if out.Meta == nil {
		out.Stats.RenderTime = time.Since(start)
		return out, nil
	}

	if err = m.renderFeatures(gs, &working, viewMat, out); err != nil {
		return nil, err
	}

	if m.click != nil && m.click.Feature != nil && !m.training {
		out.ClickSimilarity = distanceMap(out.Dino, m.click.Feature)
	}

	out.Stats.RenderTime = time.Since(start)
	m.logger.Debugf("rendered %s in %s", cam, out.Stats.RenderTime)
	return out, nil
}

// Rasterize colors and expected depth and composite them over the
// background. Returns a background only output without metadata if no
// gaussian is visible.
func (m *Model) renderRadiance(gs *scene.GaussianSet, cam *scene.Camera, viewMat types.Mat4, background types.Vec3) (*Output, error) {
	colors, shDegree, err := m.colors(gs)
	if err != nil {
		return nil, err
	}

	geom := activate(gs, false)
	radiusClip := float32(0)
	if !m.training {
		radiusClip = m.cfg.EvalRadiusClip
	}

	res, err := m.radiance.Rasterize(&raster.Input{
		Means:         geom.means,
		Quats:         geom.quats,
		Scales:        geom.scales,
		Opacities:     geom.opacities,
		Colors:        colors,
		SHDegree:      shDegree,
		ViewMat:       viewMat,
		K:             cam.Intrinsics(1),
		Width:         cam.Width,
		Height:        cam.Height,
		TileSize:      m.cfg.TileSize,
		Near:          m.cfg.NearPlane,
		Far:           m.cfg.FarPlane,
		RenderMode:    raster.RGBED,
		RasterizeMode: m.rasterizeMode,
		RadiusClip:    radiusClip,
	})
	if err != nil {
		return nil, err
	}

	var coverage int64
	for _, r := range res.Meta.Radii {
		coverage += int64(r)
	}
	if coverage == 0 {
		m.logger.Debug("no visible gaussians; rendering background")
		return backgroundOutput(background, cam.Height, cam.Width, m.cfg.EmptyDepthValue), nil
	}

	h, w := cam.Height, cam.Width
	rgb := tensor.NewMap(h, w, 3)
	depth := tensor.NewMap(h, w, 1)
	maxDepth := float32(0)
	for p := 0; p < h*w; p++ {
		alpha := res.Alpha.Pix[p]
		px := res.Render.Pixel(p%w, p/w)
		for c := 0; c < 3; c++ {
			rgb.Pix[p*3+c] = clamp01(px[c] + (1-alpha)*background[c])
		}
		depth.Pix[p] = px[3]
		if !math32.IsInf(px[3], 0) && !math32.IsNaN(px[3]) && px[3] > maxDepth {
			maxDepth = px[3]
		}
	}
	for p, alpha := range res.Alpha.Pix {
		if alpha <= 0 {
			depth.Pix[p] = maxDepth
		}
	}

	return &Output{
		RGB:          rgb,
		Depth:        depth,
		Accumulation: res.Alpha,
		Background:   background,
		Meta:         &res.Meta,
		Stats: FrameStats{
			RadiancePass: PassStats{
				Width:       w,
				Height:      h,
				ProjectTime: res.ProjectTime,
				BlendTime:   res.BlendTime,
				Workers:     m.radiance.Stats(),
			},
		},
	}, nil
}

// Rasterize the compact gaussian features, normalize them by their alpha
// and project them to the descriptor space.
func (m *Model) renderFeatures(gs *scene.GaussianSet, cam *scene.Camera, viewMat types.Mat4, out *Output) error {
	dinoH, dinoW, scale := m.featureResolution(cam.Height, cam.Width)

	// Geometry only receives gradients from the radiance pass.
	geom := activate(gs, true)
	if !m.training {
		geom.means = gs.Means()
	}

	res, err := m.features.Rasterize(&raster.Input{
		Means:         geom.means,
		Quats:         geom.quats,
		Scales:        geom.scales,
		Opacities:     geom.opacities,
		Colors:        gs.DinoFeats(),
		SHDegree:      -1,
		ViewMat:       viewMat,
		K:             cam.Intrinsics(scale),
		Width:         dinoW,
		Height:        dinoH,
		TileSize:      m.cfg.TileSize,
		Near:          m.cfg.NearPlane,
		Far:           m.cfg.FarPlane,
		RenderMode:    raster.RGB,
		RasterizeMode: m.rasterizeMode,
		Background:    make([]float32, m.cfg.GaussianDim),
	})
	if err != nil {
		return err
	}

	cutoff := m.cfg.EvalAlphaCutoff
	if m.training {
		cutoff = m.cfg.TrainAlphaCutoff
	}
	dim := m.cfg.GaussianDim
	compact := tensor.NewMap(dinoH, dinoW, dim)
	for p, alpha := range res.Alpha.Pix {
		if alpha <= cutoff {
			continue
		}
		src := res.Render.Pix[p*dim : (p+1)*dim]
		dst := compact.Pix[p*dim : (p+1)*dim]
		for c, v := range src {
			dst[c] = v / alpha
		}
	}

	start := time.Now()
	dino, err := m.projection.Forward(compact)
	if err != nil {
		return err
	}

	out.Dino = dino
	out.DinoAlpha = res.Alpha
	out.CompactFeatures = compact
	out.FeatureMeta = &res.Meta
	out.Stats.Projection = time.Since(start)
	out.Stats.FeaturePass = PassStats{
		Width:       dinoW,
		Height:      dinoH,
		ProjectTime: res.ProjectTime,
		BlendTime:   res.BlendTime,
		Workers:     m.features.Stats(),
	}
	return nil
}

// Pick the background for the next render.
func (m *Model) selectBackground() types.Vec3 {
	if m.training {
		if m.randomBackground {
			return types.Vec3{m.rng.Float32(), m.rng.Float32(), m.rng.Float32()}
		}
		return m.background
	}
	if bg, ok := m.context.BackgroundOverride(); ok {
		return bg
	}
	return m.background
}

// Get the radiance colors and the SH degree to evaluate. Models without
// higher order harmonics splat sigmoid activated DC colors directly.
func (m *Model) colors(gs *scene.GaussianSet) (*tensor.Tensor, int, error) {
	if m.cfg.SHDegree == 0 {
		return gs.FeaturesDC().MapRows(3, sigmoidRow), -1, nil
	}

	colors, err := tensor.ConcatCols("colors", gs.FeaturesDC(), gs.FeaturesRest())
	if err != nil {
		return nil, 0, err
	}
	degree := m.step / m.cfg.SHDegreeInterval
	if degree > m.cfg.SHDegree {
		degree = m.cfg.SHDegree
	}
	if degree > gs.SHDegree() {
		degree = gs.SHDegree()
	}
	return colors, degree, nil
}

// Resolution reduction applied to training frames.
func (m *Model) downscaleFactor() float32 {
	if !m.training {
		return 1
	}
	n := m.cfg.NumDownscales - m.step/m.cfg.ResolutionSchedule
	if n < 0 {
		n = 0
	}
	return float32(int(1) << uint(n))
}

// Get the feature pass resolution and the intrinsics scale relative to the
// working camera. Training frames match the descriptor patch grid of an image
// whose long side is CanonicalResolution pixels.
func (m *Model) featureResolution(h, w int) (int, int, float32) {
	if !m.training {
		return h, w, 1
	}

	long := h
	if w > long {
		long = w
	}
	rescale, patch, canonical := m.cfg.DinoRescaleFactor, m.cfg.PatchSize, m.cfg.CanonicalResolution
	scale := float32(rescale*canonical) / float32(long) / float32(patch)

	ch := int(float32(h) * float32(canonical) / float32(long))
	cw := int(float32(w) * float32(canonical) / float32(long))
	return rescale * (ch / patch), rescale * (cw / patch), scale
}

// Activated geometry tensors.
type geometry struct {
	means, quats, scales, opacities *tensor.Tensor
}

func activate(gs *scene.GaussianSet, detach bool) geometry {
	src := func(t *tensor.Tensor) *tensor.Tensor {
		if detach {
			return t.Detach()
		}
		return t
	}
	return geometry{
		means:     src(gs.Means()),
		quats:     src(gs.Quats()).MapRows(4, normalizeRow),
		scales:    src(gs.Scales()).MapRows(3, expRow),
		opacities: src(gs.Opacities()).MapRows(1, sigmoidRow),
	}
}

func normalizeRow(dst, src []float32) {
	q := types.QuatFromSlice(src).Normalize()
	dst[0], dst[1], dst[2], dst[3] = q.W, q.V[0], q.V[1], q.V[2]
}

func expRow(dst, src []float32) {
	for i, v := range src {
		dst[i] = math32.Exp(v)
	}
}

func sigmoidRow(dst, src []float32) {
	for i, v := range src {
		dst[i] = 1 / (1 + math32.Exp(-v))
	}
}

func clamp01(v float32) float32 {
	return math32.Min(math32.Max(v, 0), 1)
}

// Per-pixel Euclidean distance between a feature map and a feature vector.
func distanceMap(feats *tensor.Map, ref []float32) *tensor.Map {
	out := tensor.NewMap(feats.H, feats.W, 1)
	for p := range out.Pix {
		var sum float32
		for c, v := range feats.Pix[p*feats.C : (p+1)*feats.C] {
			d := v - ref[c]
			sum += d * d
		}
		out.Pix[p] = math32.Sqrt(sum)
	}
	return out
}
