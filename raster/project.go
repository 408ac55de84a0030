package raster

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/digsplat/dig/types"
)

// A gaussian projected to screen space.
type splat struct {
	index   int
	mean2D  types.Vec2
	conic   [3]float32 // inverse 2D covariance (a, b, c)
	opacity float32
	depth   float32
	color   []float32

	// Tile bbox [min, max).
	tileMin, tileMax [2]int
}

type projection struct {
	// Visible splats sorted front to back.
	splats []splat

	means2D []types.Vec2
	radii   []int32
	depths  []float32
}

// Project all gaussians and evaluate their colors.
func project(in *Input) *projection {
	n := in.Means.Rows()
	proj := &projection{
		splats:  make([]splat, 0, n),
		means2D: make([]types.Vec2, n),
		radii:   make([]int32, n),
		depths:  make([]float32, n),
	}

	view := in.ViewMat
	viewRot := view.Mat3()
	camPos := viewRot.Transpose().Mul3x1(view.Translation()).Mul(-1)

	fx, fy := in.K.At(0, 0), in.K.At(1, 1)
	cx, cy := in.K.At(0, 2), in.K.At(1, 2)
	w, h := float32(in.Width), float32(in.Height)

	// Clamp the projected direction used for the jacobian to a slightly
	// enlarged frustum so that gaussians near the image border do not
	// produce huge screen space footprints.
	limXPos := (w-cx)/fx + 0.3*w/fx
	limXNeg := cx/fx + 0.3*w/fx
	limYPos := (h-cy)/fy + 0.3*h/fy
	limYNeg := cy/fy + 0.3*h/fy

	tilesX := (in.Width + in.TileSize - 1) / in.TileSize
	tilesY := (in.Height + in.TileSize - 1) / in.TileSize
	channels := in.colorChannels()

	for i := 0; i < n; i++ {
		mrow := in.Means.Row(i)
		pCam := view.TransformPoint(types.Vec3{mrow[0], mrow[1], mrow[2]})
		z := pCam[2]
		proj.depths[i] = z
		if z < in.Near || z > in.Far {
			continue
		}

		// World space covariance: R S S^T R^T
		rot := types.QuatFromSlice(in.Quats.Row(i)).Normalize().Mat3()
		srow := in.Scales.Row(i)
		m := rot.Mul3(types.Diag3(types.Vec3{srow[0], srow[1], srow[2]}))
		cov3D := m.Mul3(m.Transpose())

		// Camera space covariance.
		covCam := viewRot.Mul3(cov3D).Mul3(viewRot.Transpose())

		tx := z * math32.Min(limXPos, math32.Max(-limXNeg, pCam[0]/z))
		ty := z * math32.Min(limYPos, math32.Max(-limYNeg, pCam[1]/z))
		invZ := 1 / z
		j00, j02 := fx*invZ, -fx*tx*invZ*invZ
		j11, j12 := fy*invZ, -fy*ty*invZ*invZ

		// cov2D = J covCam J^T with J = [[j00, 0, j02], [0, j11, j12]]
		r0 := types.Vec3{j00, 0, j02}
		r1 := types.Vec3{0, j11, j12}
		cr0 := covCam.Mul3x1(r0)
		cr1 := covCam.Mul3x1(r1)
		a := r0.Dot(cr0)
		b := r0.Dot(cr1)
		c := r1.Dot(cr1)

		detOrig := a*c - b*b
		a += lowPassVariance
		c += lowPassVariance
		det := a*c - b*b
		if det <= 0 {
			continue
		}

		opacity := in.Opacities.Row(i)[0]
		if in.RasterizeMode == Antialiased {
			opacity *= math32.Sqrt(math32.Max(detOrig/det, 0))
		}

		mid := 0.5 * (a + c)
		lambda := mid + math32.Sqrt(math32.Max(0.1, mid*mid-det))
		radius := math32.Ceil(3 * math32.Sqrt(lambda))
		if radius <= in.RadiusClip {
			continue
		}

		mean2D := types.Vec2{fx*pCam[0]*invZ + cx, fy*pCam[1]*invZ + cy}
		if mean2D[0]+radius <= 0 || mean2D[0]-radius >= w || mean2D[1]+radius <= 0 || mean2D[1]-radius >= h {
			continue
		}

		proj.means2D[i] = mean2D
		proj.radii[i] = int32(radius)

		s := splat{
			index:   i,
			mean2D:  mean2D,
			conic:   [3]float32{c / det, -b / det, a / det},
			opacity: opacity,
			depth:   z,
			color:   make([]float32, channels),
		}
		s.tileMin = [2]int{
			clampTile(int((mean2D[0]-radius)/float32(in.TileSize)), tilesX),
			clampTile(int((mean2D[1]-radius)/float32(in.TileSize)), tilesY),
		}
		s.tileMax = [2]int{
			clampTile(int((mean2D[0]+radius+float32(in.TileSize)-1)/float32(in.TileSize)), tilesX),
			clampTile(int((mean2D[1]+radius+float32(in.TileSize)-1)/float32(in.TileSize)), tilesY),
		}

		if in.SHDegree >= 0 {
			dir := types.Vec3{mrow[0], mrow[1], mrow[2]}.Sub(camPos)
			evalSH(in.SHDegree, in.Colors.Row(i), dir, s.color)
		} else {
			copy(s.color, in.Colors.Row(i))
		}

		proj.splats = append(proj.splats, s)
	}

	sort.SliceStable(proj.splats, func(i, j int) bool {
		return proj.splats[i].depth < proj.splats[j].depth
	})
	return proj
}

func clampTile(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
