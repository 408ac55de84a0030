// Package raster implements the gaussian rasterization primitive: it
// projects 3D gaussians through a pinhole camera and alpha-composites them
// front to back into a dense H x W x C buffer.
package raster

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/digsplat/dig/log"
	"github.com/digsplat/dig/tensor"
	"github.com/digsplat/dig/types"
)

// Selects the channels produced by the rasterizer.
type RenderMode uint8

const (
	// Render the color channels only.
	RGB RenderMode = iota

	// Render the color channels followed by an expected depth channel.
	RGBED
)

// Selects how screen space covariances are filtered.
type RasterizeMode uint8

const (
	Classic RasterizeMode = iota

	// Scale opacities to compensate for the energy added by the screen
	// space low-pass filter.
	Antialiased
)

const (
	// Variance added to screen space covariances (in pixels).
	lowPassVariance float32 = 0.3

	// Per-gaussian opacity ceiling and skip threshold.
	maxAlpha float32 = 0.999
	minAlpha float32 = 1.0 / 255.0

	// Stop blending once the transmittance drops below this value.
	minTransmittance float32 = 1e-4

	// Default tile side length in pixels.
	DefaultTileSize = 16
)

var (
	ErrInvalidDims      = errors.New("raster: output width and height must be positive")
	ErrMismatchedInputs = errors.New("raster: gaussian attribute row counts differ")
	ErrBadColorWidth    = errors.New("raster: color width does not match the requested SH degree")
	ErrBadBackground    = errors.New("raster: background width does not match color width")
)

// The rasterizer inputs. Means, quaternions, scales and opacities must be
// already activated (unit quaternions, positive scales, opacities in [0,1]).
type Input struct {
	Means     *tensor.Tensor // N x 3
	Quats     *tensor.Tensor // N x 4 (w, x, y, z)
	Scales    *tensor.Tensor // N x 3
	Opacities *tensor.Tensor // N x 1

	// Either spherical harmonic coefficients laid out as
	// [basis][rgb] (when SHDegree >= 0) or arbitrary per-gaussian
	// vectors that are splatted as-is (when SHDegree < 0).
	Colors   *tensor.Tensor
	SHDegree int

	ViewMat types.Mat4
	K       types.Mat3

	Width, Height int
	TileSize      int

	Near, Far float32

	RenderMode    RenderMode
	RasterizeMode RasterizeMode

	// Gaussians whose screen radius is not larger than this are dropped.
	RadiusClip float32

	// Optional background composited behind the color channels.
	Background []float32
}

// Per-gaussian screen space metadata.
type Meta struct {
	Means2D []types.Vec2
	Radii   []int32
	Depths  []float32

	// Number of (tile, gaussian) intersections.
	TileHits int

	// Names of the inputs that track gradients. The rendered buffers
	// depend on these parameters.
	GradInputs []string
}

// The rasterizer output.
type Output struct {
	// H x W x C, C = color channels (+1 for RGBED).
	Render *tensor.Map

	// H x W x 1 accumulated opacity.
	Alpha *tensor.Map

	Meta Meta

	// Time spent projecting and compositing.
	ProjectTime time.Duration
	BlendTime   time.Duration
}

// Rasterizer splits frames into tile row blocks that are processed by a
// pool of workers.
type Rasterizer struct {
	logger    log.Logger
	scheduler BlockScheduler
	workers   []*Worker
}

// Create a rasterizer that uses numWorkers goroutines and the given block
// scheduler. If numWorkers <= 0, the number of CPUs is used.
func New(numWorkers int, scheduler BlockScheduler) *Rasterizer {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if scheduler == nil {
		scheduler = NaiveScheduler()
	}

	workers := make([]*Worker, numWorkers)
	for idx := range workers {
		workers[idx] = &Worker{id: fmt.Sprintf("worker-%02d", idx)}
	}

	return &Rasterizer{
		logger:    log.New("raster"),
		scheduler: scheduler,
		workers:   workers,
	}
}

// Get per-worker statistics for the last frame.
func (r *Rasterizer) Stats() []Stats {
	out := make([]Stats, len(r.workers))
	for idx, w := range r.workers {
		out[idx] = w.stats
	}
	return out
}

// Rasterize the gaussians described by in.
func (r *Rasterizer) Rasterize(in *Input) (*Output, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	proj := project(in)
	projectTime := time.Since(start)

	start = time.Now()
	out, err := r.composite(in, proj)
	if err != nil {
		return nil, err
	}
	out.ProjectTime = projectTime
	out.BlendTime = time.Since(start)
	out.Meta.GradInputs = gradInputs(in)

	r.logger.Debugf(
		"rasterized %d gaussians at %dx%d: %d tile hits, project %s, blend %s",
		in.Means.Rows(), in.Width, in.Height, out.Meta.TileHits, out.ProjectTime, out.BlendTime,
	)
	return out, nil
}

// Number of channels in the splatted color vectors.
func (in *Input) colorChannels() int {
	if in.SHDegree >= 0 {
		return 3
	}
	return in.Colors.Cols()
}

func (in *Input) validate() error {
	if in.Width <= 0 || in.Height <= 0 {
		return ErrInvalidDims
	}
	n := in.Means.Rows()
	if in.Quats.Rows() != n || in.Scales.Rows() != n || in.Opacities.Rows() != n || in.Colors.Rows() != n {
		return ErrMismatchedInputs
	}
	if in.SHDegree >= 0 && in.Colors.Cols() < numBases(in.SHDegree)*3 {
		return ErrBadColorWidth
	}
	if in.Background != nil && len(in.Background) != in.colorChannels() {
		return ErrBadBackground
	}
	if in.TileSize <= 0 {
		in.TileSize = DefaultTileSize
	}
	return nil
}

func gradInputs(in *Input) []string {
	names := make([]string, 0, 5)
	for _, t := range []*tensor.Tensor{in.Means, in.Quats, in.Scales, in.Opacities, in.Colors} {
		if t.RequiresGrad() {
			names = append(names, t.Name())
		}
	}
	return names
}
