package model

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/digsplat/dig/nn"
	"github.com/digsplat/dig/scene"
	"github.com/digsplat/dig/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shC0 float32 = 0.28209479177387814

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.GaussianDim = 4
	cfg.Dim = 3
	cfg.HiddenUnits = 8
	cfg.HalfPrecision = false
	cfg.SHDegree = 1
	cfg.Workers = 2
	cfg.DinoRescaleFactor = 1
	cfg.CanonicalResolution = 28
	return cfg
}

// An 8x8 camera at the origin looking down -Z.
func testCamera() scene.Camera {
	return scene.Camera{Fx: 8, Fy: 8, Cx: 4, Cy: 4, Width: 8, Height: 8, CameraToWorld: types.Ident4()}
}

// A single opaque gaussian that covers the whole frame of testCamera.
func wideGaussian(color float32, feats []float32) *scene.GaussianSet {
	gs := scene.NewGaussianSet(1, 1, len(feats))
	copy(gs.Means().Row(0), []float32{0, 0, -5})
	scale := math32.Log(100)
	copy(gs.Scales().Row(0), []float32{scale, scale, scale})
	gs.Opacities().Row(0)[0] = 10
	dc := (color - 0.5) / shC0
	copy(gs.FeaturesDC().Row(0), []float32{dc, dc, dc})
	copy(gs.DinoFeats().Row(0), feats)
	return gs
}

func newModel(t *testing.T, cfg *Config, gs *scene.GaussianSet) *Model {
	m, err := New(cfg, gs, nil)
	require.NoError(t, err)
	return m
}

func TestRGBIsClamped(t *testing.T) {
	cfg := testConfig()
	cfg.BackgroundColor = "black"
	m := newModel(t, cfg, wideGaussian(5, []float32{0, 0, 0, 0}))
	cam := testCamera()

	for _, training := range []bool{true, false} {
		if training {
			m.Train()
		} else {
			m.Eval()
		}
		out, err := m.Render(&cam)
		require.NoError(t, err)
		require.NotNil(t, out.RGB)
		for idx, v := range out.RGB.Pix {
			require.Equal(t, float32(1), v, "training=%t: expected clamped value at %d", training, idx)
		}
	}
}

func TestRGBWithinUnitRange(t *testing.T) {
	cfg := testConfig()
	gs := scene.RandomGaussianSet(64, 1, cfg.GaussianDim, 1, 7)
	for i := 0; i < gs.Len(); i++ {
		gs.Means().Row(i)[2] -= 4
	}
	m := newModel(t, cfg, gs)
	cam := testCamera()

	out, err := m.Render(&cam)
	require.NoError(t, err)
	for _, v := range out.RGB.Pix {
		assert.True(t, v >= 0 && v <= 1, "rgb value %f out of range", v)
	}
}

func TestEmptyCropRendersBackground(t *testing.T) {
	cfg := testConfig()
	cfg.CropBox = &CropBoxConfig{Min: [3]float32{10, 10, 10}, Max: [3]float32{11, 11, 11}}
	ctx := NewRenderContext()
	m, err := New(cfg, wideGaussian(0.5, []float32{1, 2, 3, 4}), ctx)
	require.NoError(t, err)
	m.Eval()
	cam := testCamera()

	specs := []struct {
		override   *types.Vec3
		background types.Vec3
	}{
		{nil, defaultBackground},
		{&types.Vec3{1, 0, 0}, types.Vec3{1, 0, 0}},
	}

	for specIndex, spec := range specs {
		if spec.override != nil {
			ctx.BeginSession(*spec.override)
		} else {
			ctx.EndSession()
		}

		out, err := m.Render(&cam)
		require.NoError(t, err)
		assert.Equal(t, spec.background, out.Background, "[spec %d]", specIndex)
		assert.Nil(t, out.Dino, "[spec %d]", specIndex)
		assert.True(t, out.Stats.RenderTime > 0, "[spec %d] expected render time to be recorded", specIndex)
		require.Equal(t, cam.Height, out.RGB.H)
		require.Equal(t, cam.Width, out.RGB.W)
		for p := 0; p < out.RGB.Len(); p++ {
			assert.Equal(t, spec.background[:], out.RGB.Pix[p*3:p*3+3], "[spec %d] pixel %d", specIndex, p)
			assert.Equal(t, float32(10), out.Depth.Pix[p], "[spec %d] pixel %d", specIndex, p)
			assert.Equal(t, float32(0), out.Accumulation.Pix[p], "[spec %d] pixel %d", specIndex, p)
		}
	}

	// Crop boxes are ignored while training.
	m.Train()
	out, err := m.Render(&cam)
	require.NoError(t, err)
	assert.NotNil(t, out.Dino)
}

func TestFeatureNormalization(t *testing.T) {
	feats := []float32{0.5, -2, 3, 7}
	m := newModel(t, testConfig(), wideGaussian(0.5, feats))
	cam := testCamera()

	specs := []struct {
		training bool
		h, w     int
	}{
		{true, 2, 2},
		{false, 8, 8},
	}

	for specIndex, spec := range specs {
		if spec.training {
			m.Train()
		} else {
			m.Eval()
		}
		out, err := m.Render(&cam)
		require.NoError(t, err)

		require.Equal(t, spec.h, out.Dino.H, "[spec %d]", specIndex)
		require.Equal(t, spec.w, out.Dino.W, "[spec %d]", specIndex)
		assert.Equal(t, 3, out.Dino.C)
		for p := 0; p < out.DinoAlpha.Len(); p++ {
			assert.InDelta(t, 1, out.DinoAlpha.Pix[p], 2e-3, "[spec %d] alpha at %d", specIndex, p)
			for c, exp := range feats {
				assert.InDelta(t, exp, out.CompactFeatures.Pix[p*4+c], 1e-3, "[spec %d] channel %d at %d", specIndex, c, p)
			}
		}
	}
}

func TestFeaturePassUsesDetachedGeometry(t *testing.T) {
	m := newModel(t, testConfig(), wideGaussian(0.5, []float32{1, 1, 1, 1}))
	cam := testCamera()

	out, err := m.Render(&cam)
	require.NoError(t, err)
	assert.Equal(t, []string{"dino_feats"}, out.FeatureMeta.GradInputs)
	assert.Contains(t, out.Meta.GradInputs, "means")
	assert.Contains(t, out.Meta.GradInputs, "scales")
	assert.NotContains(t, out.Meta.GradInputs, "dino_feats")
}

func TestClickSimilarity(t *testing.T) {
	m := newModel(t, testConfig(), wideGaussian(0.5, []float32{1, -1, 0.5, 2}))
	m.Eval()
	cam := testCamera()

	out, err := m.Render(&cam)
	require.NoError(t, err)
	assert.Nil(t, out.ClickSimilarity)

	require.NoError(t, m.SetClick(types.Vec3{0, 0, -5}, out.Dino.Pixel(4, 4)))
	out, err = m.Render(&cam)
	require.NoError(t, err)
	require.NotNil(t, out.ClickSimilarity)
	assert.Equal(t, 1, out.ClickSimilarity.C)
	assert.Equal(t, out.Dino.H, out.ClickSimilarity.H)
	assert.InDelta(t, 0, out.ClickSimilarity.At(4, 4, 0), 1e-5)
	assert.Contains(t, out.Map(), OutputClickSimilarity)

	m.Train()
	out, err = m.Render(&cam)
	require.NoError(t, err)
	assert.Nil(t, out.ClickSimilarity)
}

func TestSetClickRejectsFeatureWidth(t *testing.T) {
	cfg := testConfig()
	m := newModel(t, cfg, wideGaussian(0.5, []float32{1, -1, 0.5, 2}))
	m.Eval()
	cam := testCamera()

	specs := [][]float32{
		{1},
		make([]float32, cfg.Dim+1),
		nil,
	}
	for specIndex, feature := range specs {
		err := m.SetClick(types.Vec3{}, feature)
		assert.Equal(t, ErrClickFeatureDim, err, "[spec %d]", specIndex)
		assert.Nil(t, m.Click(), "[spec %d]", specIndex)
	}

	out, err := m.Render(&cam)
	require.NoError(t, err)
	assert.Nil(t, out.ClickSimilarity)
}

func TestEvalRadiusClip(t *testing.T) {
	cfg := testConfig()
	cfg.EvalRadiusClip = 1e6
	m := newModel(t, cfg, wideGaussian(0.5, []float32{0, 0, 0, 0}))
	cam := testCamera()

	// Training renders never clip.
	out, err := m.Render(&cam)
	require.NoError(t, err)
	require.NotNil(t, out.Meta)
	assert.NotZero(t, out.Meta.Radii[0])

	m.Eval()
	out, err = m.Render(&cam)
	require.NoError(t, err)
	assert.Nil(t, out.Meta)
	assert.Nil(t, out.Dino)
	assert.True(t, out.Stats.RenderTime > 0, "expected render time to be recorded")
	for p := 0; p < out.Accumulation.Len(); p++ {
		assert.Equal(t, float32(0), out.Accumulation.Pix[p])
	}
}

func TestCameraBatch(t *testing.T) {
	m := newModel(t, testConfig(), wideGaussian(0.5, []float32{0, 0, 0, 0}))
	cam := testCamera()

	_, err := m.GetOutputs(scene.Cameras{cam, cam})
	assert.Equal(t, ErrCameraBatchSize, err)

	_, err = m.GetOutputs(scene.Cameras{})
	assert.Equal(t, ErrCameraBatchSize, err)

	out, err := m.GetOutputs(nil)
	require.NoError(t, err)
	assert.True(t, out.Empty())

	out, err = m.GetOutputs(scene.Cameras{cam})
	require.NoError(t, err)
	assert.False(t, out.Empty())
}

func TestInvisibleGaussiansRenderBackground(t *testing.T) {
	cfg := testConfig()
	cfg.BackgroundColor = "white"
	gs := wideGaussian(0.5, []float32{0, 0, 0, 0})
	gs.Means().Row(0)[2] = 5
	m := newModel(t, cfg, gs)
	cam := testCamera()

	out, err := m.Render(&cam)
	require.NoError(t, err)
	assert.Nil(t, out.Dino)
	assert.True(t, out.Stats.RenderTime > 0, "expected render time to be recorded")
	for p := 0; p < out.RGB.Len(); p++ {
		assert.Equal(t, []float32{1, 1, 1}, out.RGB.Pix[p*3:p*3+3])
		assert.Equal(t, float32(10), out.Depth.Pix[p])
	}
}

func TestDepthIsAlphaGated(t *testing.T) {
	cfg := testConfig()
	// A small gaussian leaves the frame borders empty.
	gs := wideGaussian(0.5, []float32{0, 0, 0, 0})
	scale := math32.Log(0.3)
	copy(gs.Scales().Row(0), []float32{scale, scale, scale})
	m := newModel(t, cfg, gs)
	m.Eval()
	cam := testCamera()

	out, err := m.Render(&cam)
	require.NoError(t, err)

	var maxDepth float32
	for _, d := range out.Depth.Pix {
		maxDepth = math32.Max(maxDepth, d)
	}
	require.True(t, maxDepth > 0)
	require.Equal(t, float32(0), out.Accumulation.At(0, 0, 0))
	assert.Equal(t, maxDepth, out.Depth.At(0, 0, 0))
	assert.InDelta(t, 5, out.Depth.At(4, 4, 0), 1e-2)
}

func TestBackgroundSelection(t *testing.T) {
	specs := []struct {
		option   string
		training bool
		override *types.Vec3
		exp      types.Vec3
	}{
		{"white", true, nil, types.Vec3{1, 1, 1}},
		{"black", true, nil, types.Vec3{0, 0, 0}},
		{"0.25, 0.5, 0.75", true, nil, types.Vec3{0.25, 0.5, 0.75}},
		{"random", false, nil, defaultBackground},
		{"white", false, nil, types.Vec3{1, 1, 1}},
		{"white", false, &types.Vec3{0, 1, 0}, types.Vec3{0, 1, 0}},
		// Overrides only apply to inference renders.
		{"black", true, &types.Vec3{0, 1, 0}, types.Vec3{0, 0, 0}},
	}

	for specIndex, spec := range specs {
		cfg := testConfig()
		cfg.BackgroundColor = spec.option
		m := newModel(t, cfg, wideGaussian(0.5, []float32{0, 0, 0, 0}))
		if spec.override != nil {
			m.RenderContext().BeginSession(*spec.override)
		}
		if !spec.training {
			m.Eval()
		}
		assert.Equal(t, spec.exp, m.selectBackground(), "[spec %d]", specIndex)
	}

	cfg := testConfig()
	m := newModel(t, cfg, wideGaussian(0.5, []float32{0, 0, 0, 0}))
	bg := m.selectBackground()
	for _, v := range bg {
		assert.True(t, v >= 0 && v < 1)
	}
}

func TestSchedules(t *testing.T) {
	cfg := testConfig()
	cfg.NumDownscales = 2
	cfg.ResolutionSchedule = 10
	cfg.SHDegree = 3
	gs := scene.NewGaussianSet(1, 3, cfg.GaussianDim)
	m := newModel(t, cfg, gs)

	downscales := []struct {
		step int
		exp  float32
	}{
		{0, 4}, {9, 4}, {10, 2}, {25, 1}, {1000, 1},
	}
	for _, spec := range downscales {
		m.SetStep(spec.step)
		assert.Equal(t, spec.exp, m.downscaleFactor(), "step %d", spec.step)
	}
	m.Eval()
	m.SetStep(0)
	assert.Equal(t, float32(1), m.downscaleFactor())

	m.Train()
	degrees := []struct {
		step int
		exp  int
	}{
		{0, 0}, {999, 0}, {1000, 1}, {2500, 2}, {9000, 3},
	}
	for _, spec := range degrees {
		m.SetStep(spec.step)
		_, degree, err := m.colors(gs)
		require.NoError(t, err)
		assert.Equal(t, spec.exp, degree, "step %d", spec.step)
	}
}

func TestFeatureResolution(t *testing.T) {
	cfg := DefaultConfig()
	m := newModel(t, cfg, scene.NewGaussianSet(1, 3, cfg.GaussianDim))

	h, w, scale := m.featureResolution(480, 640)
	assert.Equal(t, 402, h)
	assert.Equal(t, 540, w)
	assert.InDelta(t, 0.84375, scale, 1e-6)

	m.Eval()
	h, w, scale = m.featureResolution(480, 640)
	assert.Equal(t, 480, h)
	assert.Equal(t, 640, w)
	assert.Equal(t, float32(1), scale)
}

func TestParamGroups(t *testing.T) {
	cfg := testConfig()
	m := newModel(t, cfg, scene.NewGaussianSet(3, 1, cfg.GaussianDim))

	groups := m.ParamGroups()
	require.Contains(t, groups, scene.ParamDinoFeats)
	require.Contains(t, groups, nn.ParamGroup)
	assert.Len(t, groups[nn.ParamGroup], cfg.HiddenLayers+1)
	assert.Equal(t, 3, groups[scene.ParamDinoFeats][0].Rows())

	_, ok := m.GaussianParamGroups()[nn.ParamGroup]
	assert.False(t, ok)
}

func TestFeatureDimMismatch(t *testing.T) {
	_, err := New(testConfig(), scene.NewGaussianSet(1, 1, 7), nil)
	assert.Equal(t, ErrFeatureDimMismatch, err)
}
