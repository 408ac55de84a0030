package scene

import (
	"github.com/chewxy/math32"
	"github.com/digsplat/dig/tensor"
	"github.com/digsplat/dig/types"
)

// An oriented bounding box used to restrict rendering to a region of the
// scene.
type CropBox struct {
	Center types.Vec3

	// Box to world rotation.
	Rotation types.Mat3

	// Half side lengths along the box axes.
	HalfExtents types.Vec3
}

// Create an axis aligned crop box spanning [min, max].
func NewAABBCropBox(min, max types.Vec3) *CropBox {
	return &CropBox{
		Center:      min.Add(max).Mul(0.5),
		Rotation:    types.Ident3(),
		HalfExtents: max.Sub(min).Mul(0.5),
	}
}

// Check whether a point lies inside the box.
func (b *CropBox) Contains(p types.Vec3) bool {
	local := b.Rotation.Transpose().Mul3x1(p.Sub(b.Center))
	for i := 0; i < 3; i++ {
		if math32.Abs(local[i]) > b.HalfExtents[i] {
			return false
		}
	}
	return true
}

// Get the indices of all means that lie inside the box.
func (b *CropBox) Within(means *tensor.Tensor) []int {
	ids := make([]int, 0)
	for i := 0; i < means.Rows(); i++ {
		row := means.Row(i)
		if b.Contains(types.Vec3{row[0], row[1], row[2]}) {
			ids = append(ids, i)
		}
	}
	return ids
}
