package query

import (
	"fmt"
	"sync"

	"github.com/digsplat/dig/scene"
)

// StaticViewer is a headless Viewer with a fixed camera list. Clicks are
// injected with Fire.
type StaticViewer struct {
	mu        sync.Mutex
	cameras   scene.Cameras
	callbacks map[int]ClickCallback
	nextID    int
	disabled  bool
	markers   map[string]Marker
}

// Create a headless viewer for the given cameras.
func NewStaticViewer(cameras scene.Cameras) *StaticViewer {
	return &StaticViewer{
		cameras:   cameras,
		callbacks: make(map[int]ClickCallback),
		markers:   make(map[string]Marker),
	}
}

func (v *StaticViewer) RegisterClickCallback(cb ClickCallback) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	v.callbacks[v.nextID] = cb
	return v.nextID
}

func (v *StaticViewer) UnregisterClickCallback(handle int) {
	v.mu.Lock()
	delete(v.callbacks, handle)
	v.mu.Unlock()
}

func (v *StaticViewer) SetButtonDisabled(disabled bool) {
	v.mu.Lock()
	v.disabled = disabled
	v.mu.Unlock()
}

// ButtonDisabled reports the state of the query button.
func (v *StaticViewer) ButtonDisabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disabled
}

func (v *StaticViewer) Camera(index int) (scene.Camera, error) {
	if index < 0 || index >= v.cameras.Len() {
		return scene.Camera{}, fmt.Errorf("query: no camera with index %d", index)
	}
	return v.cameras[index], nil
}

// Markers replace earlier markers with the same name.
func (v *StaticViewer) AddMarker(m Marker) {
	v.mu.Lock()
	v.markers[m.Name] = m
	v.mu.Unlock()
}

// Get a marker by name.
func (v *StaticViewer) Marker(name string) (Marker, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markers[name]
	return m, ok
}

// Deliver a click to all registered callbacks. Returns the number of
// callbacks invoked.
func (v *StaticViewer) Fire(click Click) int {
	v.mu.Lock()
	callbacks := make([]ClickCallback, 0, len(v.callbacks))
	for _, cb := range v.callbacks {
		callbacks = append(callbacks, cb)
	}
	v.mu.Unlock()

	for _, cb := range callbacks {
		cb(click)
	}
	return len(callbacks)
}

// Click through the center of pixel (x, y) of a camera.
func (v *StaticViewer) ClickPixel(index, x, y int) (Click, error) {
	cam, err := v.Camera(index)
	if err != nil {
		return Click{}, err
	}
	return Click{
		Origin:      cam.Position(),
		Direction:   cam.PixelRay(x, y),
		CameraIndex: index,
	}, nil
}
