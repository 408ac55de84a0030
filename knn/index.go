// Package knn builds k-nearest-neighbour tables over gaussian means.
package knn

import (
	"sort"
	"time"

	"github.com/digsplat/dig/log"
	"github.com/digsplat/dig/tensor"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Number of random samples used to choose kd-tree pivots.
const pivotSamples = 100

// Index holds the k nearest neighbours of every point, including the point
// itself, ordered by increasing distance.
type Index struct {
	k   int
	ids [][]int
}

var logger = log.New("knn")

// Build a neighbour table for the rows of a N x 3 means tensor.
func Build(means *tensor.Tensor, k int) *Index {
	start := time.Now()
	n := means.Rows()
	if k > n {
		k = n
	}

	points := make(pointList, n)
	for i := 0; i < n; i++ {
		row := means.Row(i)
		points[i] = point{index: i, coords: [3]float64{float64(row[0]), float64(row[1]), float64(row[2])}}
	}

	idx := &Index{k: k, ids: make([][]int, n)}
	if n == 0 {
		return idx
	}

	// kdtree.New reorders its input so keep the queries separate.
	queries := make(pointList, n)
	copy(queries, points)
	tree := kdtree.New(points, false)

	for _, q := range queries {
		keeper := kdtree.NewNKeeper(k)
		tree.NearestSet(keeper, q)

		found := make([]kdtree.ComparableDist, 0, k)
		for _, c := range keeper.Heap {
			if c.Comparable != nil {
				found = append(found, c)
			}
		}
		sort.Slice(found, func(a, b int) bool {
			if found[a].Dist == found[b].Dist {
				return found[a].Comparable.(point).index < found[b].Comparable.(point).index
			}
			return found[a].Dist < found[b].Dist
		})

		ids := make([]int, len(found))
		for j, c := range found {
			ids[j] = c.Comparable.(point).index
		}
		idx.ids[q.index] = ids
	}

	logger.Debugf("built %d-NN index for %d points in %s", k, n, time.Since(start))
	return idx
}

// Number of indexed points.
func (idx *Index) Len() int {
	return len(idx.ids)
}

// Neighbours per point.
func (idx *Index) K() int {
	return idx.k
}

// Get the neighbour ids of point i.
func (idx *Index) Neighbors(i int) []int {
	return idx.ids[i]
}

// A 3D point that remembers its row in the means tensor.
type point struct {
	index  int
	coords [3]float64
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.coords[d] - c.(point).coords[d]
}

func (p point) Dims() int {
	return 3
}

func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	var sum float64
	for d := 0; d < 3; d++ {
		diff := p.coords[d] - q.coords[d]
		sum += diff * diff
	}
	return sum
}

// pointList implements kdtree.Interface.
type pointList []point

func (p pointList) Index(i int) kdtree.Comparable { return p[i] }
func (p pointList) Len() int                      { return len(p) }
func (p pointList) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}
func (p pointList) Pivot(d kdtree.Dim) int {
	return plane{pointList: p, dim: d}.Pivot()
}

// plane sorts a point list along a single dimension.
type plane struct {
	pointList
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.pointList[i].coords[p.dim] < p.pointList[j].coords[p.dim]
}

func (p plane) Swap(i, j int) {
	p.pointList[i], p.pointList[j] = p.pointList[j], p.pointList[i]
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.pointList = p.pointList[start:end]
	return p
}

func (p plane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfRandoms(p, pivotSamples))
}
