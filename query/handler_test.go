package query

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/digsplat/dig/model"
	"github.com/digsplat/dig/scene"
	"github.com/digsplat/dig/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A model holding one opaque gaussian at depth 5 in front of the camera and
// a camera at the origin looking down -Z.
func setup(t *testing.T) (*model.Model, scene.Camera) {
	cfg := model.DefaultConfig()
	cfg.GaussianDim = 4
	cfg.Dim = 3
	cfg.HiddenUnits = 8
	cfg.HalfPrecision = false
	cfg.Workers = 1

	gs := scene.NewGaussianSet(1, cfg.SHDegree, cfg.GaussianDim)
	copy(gs.Means().Row(0), []float32{0, 0, -5})
	scale := math32.Log(100)
	copy(gs.Scales().Row(0), []float32{scale, scale, scale})
	gs.Opacities().Row(0)[0] = 10
	copy(gs.DinoFeats().Row(0), []float32{1, 2, 3, 4})

	m, err := model.New(cfg, gs, nil)
	require.NoError(t, err)

	cam := scene.NewLookAtCamera(types.Vec3{0, 0, 0}, types.Vec3{0, 0, -1}, types.Vec3{0, 1, 0}, 1, 16, 16)
	return m, cam
}

func TestClickRoundTrip(t *testing.T) {
	m, cam := setup(t)
	viewer := NewStaticViewer(scene.Cameras{cam})
	h := NewHandler(m, viewer)

	state, err := h.HandleClick(Click{Direction: types.Vec3{0, 0, -1}})
	require.NoError(t, err)

	for i, exp := range []float32{0, 0, -5} {
		assert.InDelta(t, exp, state.Location[i], 1e-2, "axis %d", i)
	}
	assert.Len(t, state.Feature, 3)
	assert.True(t, m.Training(), "expected training mode to be restored")

	require.Len(t, viewer.markers, 1)
	marker, ok := viewer.Marker(MarkerName)
	require.True(t, ok)
	assert.Equal(t, MarkerName, marker.Name)
	assert.Equal(t, float32(MarkerRadius), marker.Radius)
	assert.Equal(t, [4]float32{0, 1, 0, 1}, marker.Color)
	assert.InDelta(t, -50, marker.Position[2], 1e-1)
}

func TestClickFromOffsetOrigin(t *testing.T) {
	m, _ := setup(t)
	eye := types.Vec3{0, 0, 3}
	cam := scene.NewLookAtCamera(eye, types.Vec3{0, 0, -1}, types.Vec3{0, 1, 0}, 1, 16, 16)
	h := NewHandler(m, NewStaticViewer(scene.Cameras{cam}))

	state, err := h.HandleClick(Click{Origin: eye, Direction: types.Vec3{0, 0, -1}})
	require.NoError(t, err)
	assert.InDelta(t, -5, state.Location[2], 1e-2)
}

func TestClickErrors(t *testing.T) {
	m, cam := setup(t)
	h := NewHandler(m, NewStaticViewer(scene.Cameras{cam}))

	specs := []struct {
		click Click
		err   error
	}{
		{Click{Direction: types.Vec3{0, 0, 1}}, ErrClickBehindCamera},
		{Click{Direction: types.Vec3{1, 0, -0.01}.Normalize()}, ErrClickOutsideFrame},
		{Click{Direction: types.Vec3{0, -1, -0.01}.Normalize()}, ErrClickOutsideFrame},
		// Half a pixel left of and above the frame.
		{Click{Direction: types.Vec3{(-0.5 - cam.Cx) / cam.Fx, 0, -1}}, ErrClickOutsideFrame},
		{Click{Direction: types.Vec3{0, (0.5 + cam.Cy) / cam.Fy, -1}}, ErrClickOutsideFrame},
	}

	for specIndex, spec := range specs {
		_, err := h.HandleClick(spec.click)
		assert.Equal(t, spec.err, err, "[spec %d]", specIndex)
	}
	assert.Nil(t, m.Click())

	_, err := h.HandleClick(Click{Direction: types.Vec3{0, 0, -1}, CameraIndex: 3})
	assert.Error(t, err)
}

func TestSingleFlight(t *testing.T) {
	m, cam := setup(t)
	viewer := NewStaticViewer(scene.Cameras{cam})
	h := NewHandler(m, viewer)

	require.True(t, h.Arm())
	assert.True(t, viewer.ButtonDisabled())
	assert.False(t, h.Arm(), "expected a second arm to be rejected")
	assert.Len(t, viewer.callbacks, 1)

	viewer.Fire(Click{Direction: types.Vec3{0, 0, -1}})
	assert.False(t, h.Armed())
	assert.False(t, viewer.ButtonDisabled())
	assert.Empty(t, viewer.callbacks)
	require.Len(t, viewer.markers, 1)
	require.NotNil(t, m.Click())

	// Clicks are ignored until the handler is armed again.
	assert.Equal(t, 0, viewer.Fire(Click{Direction: types.Vec3{0, 0, -1}}))

	require.True(t, h.Arm())
	m.ClearClick()
	viewer.Fire(Click{Direction: types.Vec3{0, 0, 1}})
	assert.False(t, h.Armed(), "failed clicks must also release the handler")
	assert.False(t, viewer.ButtonDisabled())
	assert.Nil(t, m.Click())
}

func TestSimilarityAfterClick(t *testing.T) {
	m, cam := setup(t)
	h := NewHandler(m, NewStaticViewer(scene.Cameras{cam}))

	_, err := h.HandleClick(Click{Direction: types.Vec3{0, 0, -1}})
	require.NoError(t, err)

	m.Eval()
	out, err := m.Render(&cam)
	require.NoError(t, err)
	require.NotNil(t, out.ClickSimilarity)
	assert.InDelta(t, 0, out.ClickSimilarity.At(8, 8, 0), 1e-4)
}

func TestStaticViewerClickPixel(t *testing.T) {
	m, cam := setup(t)
	viewer := NewStaticViewer(scene.Cameras{cam})
	h := NewHandler(m, viewer)

	click, err := viewer.ClickPixel(0, 8, 8)
	require.NoError(t, err)
	state, err := h.HandleClick(click)
	require.NoError(t, err)
	assert.InDelta(t, -5, state.Location[2], 5e-2)

	_, err = viewer.ClickPixel(1, 0, 0)
	assert.Error(t, err)
}
