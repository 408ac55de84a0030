package raster

import (
	"github.com/chewxy/math32"
	"github.com/digsplat/dig/types"
)

// Real spherical harmonic basis constants up to degree 3.
const (
	shC0 float32 = 0.28209479177387814
	shC1 float32 = 0.4886025119029199
)

var (
	shC2 = [5]float32{1.0925484305920792, -1.0925484305920792, 0.31539156525252005, -1.0925484305920792, 0.5462742152960396}
	shC3 = [7]float32{-0.5900435899266435, 2.890611442640554, -0.4570457994644658, 0.3731763325901154, -0.4570457994644658, 1.445305721320277, -0.5900435899266435}
)

// Maximum supported SH degree.
const MaxSHDegree = 3

func numBases(degree int) int {
	if degree > MaxSHDegree {
		degree = MaxSHDegree
	}
	return (degree + 1) * (degree + 1)
}

// Evaluate view dependent RGB color from SH coefficients laid out as
// [basis][rgb]. The result is offset by 0.5 and clamped to be non-negative.
func evalSH(degree int, coeffs []float32, dir types.Vec3, out []float32) {
	if degree > MaxSHDegree {
		degree = MaxSHDegree
	}
	basis := make([]float32, numBases(degree))
	basis[0] = shC0

	if degree > 0 {
		d := dir.Normalize()
		x, y, z := d[0], d[1], d[2]
		basis[1] = -shC1 * y
		basis[2] = shC1 * z
		basis[3] = -shC1 * x

		if degree > 1 {
			xx, yy, zz := x*x, y*y, z*z
			xy, yz, xz := x*y, y*z, x*z
			basis[4] = shC2[0] * xy
			basis[5] = shC2[1] * yz
			basis[6] = shC2[2] * (2*zz - xx - yy)
			basis[7] = shC2[3] * xz
			basis[8] = shC2[4] * (xx - yy)

			if degree > 2 {
				basis[9] = shC3[0] * y * (3*xx - yy)
				basis[10] = shC3[1] * xy * z
				basis[11] = shC3[2] * y * (4*zz - xx - yy)
				basis[12] = shC3[3] * z * (2*zz - 3*xx - 3*yy)
				basis[13] = shC3[4] * x * (4*zz - xx - yy)
				basis[14] = shC3[5] * z * (xx - yy)
				basis[15] = shC3[6] * x * (xx - 3*yy)
			}
		}
	}

	for ch := 0; ch < 3; ch++ {
		var sum float32
		for k, b := range basis {
			sum += b * coeffs[k*3+ch]
		}
		out[ch] = math32.Max(sum+0.5, 0)
	}
}
