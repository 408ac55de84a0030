// Package query implements interactive click queries: a click ray is turned
// into a 3D surface point and a feature vector that subsequent renders
// compare every pixel against.
package query

import (
	"errors"
	"sync"

	"github.com/chewxy/math32"
	"github.com/digsplat/dig/log"
	"github.com/digsplat/dig/model"
	"github.com/digsplat/dig/types"
)

const (
	// Viewer scene units per world unit.
	ViewerScaleRatio float32 = 10

	MarkerName   = "/click"
	MarkerRadius = 0.2
)

var (
	ErrClickOutsideFrame = errors.New("query: click ray does not hit the camera frame")
	ErrClickBehindCamera = errors.New("query: click ray points away from the camera")
	ErrNoFeatures        = errors.New("query: nothing is visible at the clicked pixel")
)

var markerColor = [4]float32{0, 1, 0, 1}

// Handler resolves viewer clicks against a model. At most one click is
// processed per Arm call.
type Handler struct {
	logger log.Logger
	model  *model.Model
	viewer Viewer

	mu     sync.Mutex
	armed  bool
	busy   bool
	handle int
}

// Create a click handler.
func NewHandler(m *model.Model, viewer Viewer) *Handler {
	return &Handler{
		logger: log.New("query"),
		model:  m,
		viewer: viewer,
	}
}

// Start listening for the next click. The viewer button stays disabled until
// the click has been processed. Returns false if the handler is already
// waiting for a click.
func (h *Handler) Arm() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.armed {
		return false
	}

	h.armed = true
	h.viewer.SetButtonDisabled(true)
	h.handle = h.viewer.RegisterClickCallback(h.onClick)
	return true
}

// Armed reports whether the handler is waiting for a click.
func (h *Handler) Armed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.armed
}

func (h *Handler) onClick(click Click) {
	h.mu.Lock()
	if !h.armed || h.busy {
		h.mu.Unlock()
		return
	}
	h.busy = true
	h.mu.Unlock()

	if _, err := h.HandleClick(click); err != nil {
		h.logger.Warningf("ignoring click: %s", err)
	}

	h.mu.Lock()
	h.viewer.SetButtonDisabled(false)
	h.viewer.UnregisterClickCallback(h.handle)
	h.armed, h.busy = false, false
	h.mu.Unlock()
}

// Resolve a click into a 3D point and feature vector, store them as the
// model click state and place a marker at the point.
func (h *Handler) HandleClick(click Click) (*model.ClickState, error) {
	cam, err := h.viewer.Camera(click.CameraIndex)
	if err != nil {
		return nil, err
	}

	dir := cam.WorldToCameraRotation().Mul3x1(click.Direction)
	forward := dir[2]
	if forward <= 0 {
		return nil, ErrClickBehindCamera
	}

	coords := cam.Intrinsics(1).Mul3x1(dir)
	px, py := coords[0]/coords[2], coords[1]/coords[2]
	if px < 0 || py < 0 {
		return nil, ErrClickOutsideFrame
	}
	x, y := int(math32.Floor(px)), int(math32.Floor(py))
	if x >= cam.Width || y >= cam.Height {
		return nil, ErrClickOutsideFrame
	}

	training := h.model.Training()
	h.model.Eval()
	out, err := h.model.Render(&cam)
	if training {
		h.model.Train()
	}
	if err != nil {
		return nil, err
	}
	if out.Dino == nil {
		return nil, ErrNoFeatures
	}

	depth := out.Depth.At(x, y, 0)
	location := click.Origin.Add(click.Direction.Mul(depth / forward))
	if err = h.model.SetClick(location, out.Dino.Pixel(x, y)); err != nil {
		return nil, err
	}

	h.viewer.AddMarker(Marker{
		Name:     MarkerName,
		Radius:   MarkerRadius,
		Color:    markerColor,
		Position: ViewerPosition(location),
	})
	h.logger.Infof("clicked pixel (%d, %d) at depth %.3f -> (%.3f, %.3f, %.3f)", x, y, depth, location[0], location[1], location[2])
	return h.model.Click(), nil
}

// Convert a world space point to viewer scene units.
func ViewerPosition(p types.Vec3) types.Vec3 {
	return p.Mul(ViewerScaleRatio)
}
