package scene

import (
	"fmt"
	"io/ioutil"

	"github.com/chewxy/math32"
	"github.com/digsplat/dig/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// The rasterizer expects cameras that look down +Z with +Y pointing down
// while camera poses use the OpenGL convention (look down -Z, +Y up). Flipping
// the Y and Z axes of the camera rotation converts between the two.
var axisFlip = types.Diag3(types.Vec3{1, -1, -1})

// A pinhole camera.
type Camera struct {
	// Intrinsics in pixels.
	Fx, Fy float32
	Cx, Cy float32

	// Image dims.
	Width  int
	Height int

	// Camera to world transform. Only the top 3 rows are used.
	CameraToWorld types.Mat4
}

// A batch of cameras. Renderers only accept batches with a single camera.
type Cameras []Camera

// Number of cameras in the batch.
func (c Cameras) Len() int {
	return len(c)
}

// Camera rotation in world space.
func (c *Camera) Rotation() types.Mat3 {
	return c.CameraToWorld.Mat3()
}

// Camera origin in world space.
func (c *Camera) Position() types.Vec3 {
	return c.CameraToWorld.Translation()
}

// Rotation converting world space directions into rasterizer camera space.
func (c *Camera) WorldToCameraRotation() types.Mat3 {
	return c.Rotation().Mul3(axisFlip).Transpose()
}

// Build the world to camera view matrix used by the rasterizer.
//
// Rotations are orthonormal so the inverse rotation is its transpose and the
// inverse translation is the negated, rotated camera position.
func (c *Camera) ViewMatrix() types.Mat4 {
	rInv := c.WorldToCameraRotation()
	tInv := rInv.Mul3x1(c.Position()).Mul(-1)
	return types.Affine4(rInv, tInv)
}

// Get the intrinsic matrix with all entries scaled by scale.
func (c *Camera) Intrinsics(scale float32) types.Mat3 {
	return types.Mat3{
		c.Fx * scale, 0, c.Cx * scale,
		0, c.Fy * scale, c.Cy * scale,
		0, 0, 1,
	}
}

// Return a copy of the camera whose intrinsics and resolution are scaled.
func (c *Camera) Scaled(scale float32) Camera {
	out := *c
	out.Fx *= scale
	out.Fy *= scale
	out.Cx *= scale
	out.Cy *= scale
	out.Width = int(float32(c.Width) * scale)
	out.Height = int(float32(c.Height) * scale)
	return out
}

// Get the world space direction of the ray through the center of pixel
// (x, y). The direction is scaled so that its forward component is one.
func (c *Camera) PixelRay(x, y int) types.Vec3 {
	dir := types.Vec3{
		(float32(x) + 0.5 - c.Cx) / c.Fx,
		(float32(y) + 0.5 - c.Cy) / c.Fy,
		1,
	}
	return c.WorldToCameraRotation().Transpose().Mul3x1(dir)
}

func (c Camera) String() string {
	pos := c.Position()
	return fmt.Sprintf("camera %dx%d f=(%.2f, %.2f) c=(%.2f, %.2f) pos=(%.3f, %.3f, %.3f)",
		c.Width, c.Height, c.Fx, c.Fy, c.Cx, c.Cy, pos[0], pos[1], pos[2])
}

// Create a camera located at eye and looking at target. The field of view
// is specified in radians along the vertical axis.
func NewLookAtCamera(eye, target, up types.Vec3, fovY float32, width, height int) Camera {
	back := eye.Sub(target).Normalize()
	right := up.Cross(back).Normalize()
	trueUp := back.Cross(right)

	rot := types.Mat3{
		right[0], trueUp[0], back[0],
		right[1], trueUp[1], back[1],
		right[2], trueUp[2], back[2],
	}

	f := focalFromFov(fovY, height)
	return Camera{
		Fx:            f,
		Fy:            f,
		Cx:            float32(width) / 2,
		Cy:            float32(height) / 2,
		Width:         width,
		Height:        height,
		CameraToWorld: types.Affine4(rot, eye),
	}
}

// The yaml representation of a camera.
type CameraSpec struct {
	Width  int        `yaml:"width"`
	Height int        `yaml:"height"`
	Fx     float32    `yaml:"fx"`
	Fy     float32    `yaml:"fy"`
	Cx     float32    `yaml:"cx"`
	Cy     float32    `yaml:"cy"`
	FovY   float32    `yaml:"fov_y"`
	Eye    [3]float32 `yaml:"eye"`
	Target [3]float32 `yaml:"target"`
	Up     [3]float32 `yaml:"up"`
}

// Convert a camera spec into a camera. Explicit intrinsics override the
// ones derived from the field of view.
func (s CameraSpec) Camera() (Camera, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return Camera{}, fmt.Errorf("scene: invalid camera resolution %dx%d", s.Width, s.Height)
	}
	up := types.Vec3(s.Up)
	if up.Len() == 0 {
		up = types.Vec3{0, 1, 0}
	}
	fov := s.FovY
	if fov == 0 {
		fov = 1.0
	}

	cam := NewLookAtCamera(types.Vec3(s.Eye), types.Vec3(s.Target), up, fov, s.Width, s.Height)
	if s.Fx != 0 {
		cam.Fx, cam.Fy = s.Fx, s.Fy
		if cam.Fy == 0 {
			cam.Fy = s.Fx
		}
	}
	if s.Cx != 0 || s.Cy != 0 {
		cam.Cx, cam.Cy = s.Cx, s.Cy
	}
	return cam, nil
}

// Load a list of cameras from a yaml file.
func LoadCameras(filename string) (Cameras, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "scene: could not read camera file %q", filename)
	}

	var specs []CameraSpec
	if err = yaml.Unmarshal(data, &specs); err != nil {
		return nil, errors.Wrapf(err, "scene: could not parse camera file %q", filename)
	}

	cams := make(Cameras, 0, len(specs))
	for idx, s := range specs {
		cam, err := s.Camera()
		if err != nil {
			return nil, errors.Wrapf(err, "scene: camera %d", idx)
		}
		cams = append(cams, cam)
	}
	return cams, nil
}

func focalFromFov(fovY float32, height int) float32 {
	return 0.5 * float32(height) / math32.Tan(0.5*fovY)
}
