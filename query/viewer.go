package query

import (
	"github.com/digsplat/dig/scene"
	"github.com/digsplat/dig/types"
)

// Click is a ray cast by the viewer when the user clicks the scene.
type Click struct {
	Origin    types.Vec3
	Direction types.Vec3

	// Index of the viewer camera the click was issued from.
	CameraIndex int
}

// ClickCallback receives click events from a viewer.
type ClickCallback func(Click)

// Marker is a sphere placed in the viewer scene.
type Marker struct {
	Name     string
	Radius   float32
	Color    [4]float32
	Position types.Vec3
}

// Viewer is the interactive scene viewer that produces clicks and displays
// markers.
type Viewer interface {
	// Register a click callback and return a handle that can be used to
	// unregister it.
	RegisterClickCallback(cb ClickCallback) int
	UnregisterClickCallback(handle int)

	// Enable or disable the "click gaussian" button.
	SetButtonDisabled(disabled bool)

	// Get the current camera of the given viewer client.
	Camera(index int) (scene.Camera, error)

	AddMarker(marker Marker)
}
