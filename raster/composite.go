package raster

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/digsplat/dig/tensor"
	"golang.org/x/sync/errgroup"
)

// Bin splats into tiles and composite them front to back.
func (r *Rasterizer) composite(in *Input, proj *projection) (*Output, error) {
	channels := in.colorChannels()
	outChannels := channels
	if in.RenderMode == RGBED {
		outChannels++
	}

	tilesX := (in.Width + in.TileSize - 1) / in.TileSize
	tilesY := (in.Height + in.TileSize - 1) / in.TileSize

	// Splats are sorted by depth so each per-tile list is sorted as well.
	tiles := make([][]int32, tilesX*tilesY)
	tileHits := 0
	for idx := range proj.splats {
		s := &proj.splats[idx]
		for ty := s.tileMin[1]; ty < s.tileMax[1]; ty++ {
			for tx := s.tileMin[0]; tx < s.tileMax[0]; tx++ {
				tiles[ty*tilesX+tx] = append(tiles[ty*tilesX+tx], int32(idx))
				tileHits++
			}
		}
	}

	out := &Output{
		Render: tensor.NewMap(in.Height, in.Width, outChannels),
		Alpha:  tensor.NewMap(in.Height, in.Width, 1),
		Meta: Meta{
			Means2D:  proj.means2D,
			Radii:    proj.radii,
			Depths:   proj.depths,
			TileHits: tileHits,
		},
	}

	assignment := r.scheduler.Schedule(r.workers, tilesY)
	var group errgroup.Group
	blockY := 0
	for idx, blockH := range assignment {
		w, startRow, endRow := r.workers[idx], blockY, blockY+blockH
		blockY = endRow
		if blockH == 0 {
			w.stats = Stats{Id: w.id}
			continue
		}

		group.Go(func() error {
			start := time.Now()
			for ty := startRow; ty < endRow; ty++ {
				for tx := 0; tx < tilesX; tx++ {
					blendTile(in, proj, tiles[ty*tilesX+tx], tx, ty, channels, out)
				}
			}
			w.stats = Stats{Id: w.id, BlockH: endRow - startRow, BlockTime: time.Since(start)}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Composite the splats overlapping a single tile.
func blendTile(in *Input, proj *projection, list []int32, tx, ty, channels int, out *Output) {
	x0, y0 := tx*in.TileSize, ty*in.TileSize
	x1 := minInt(x0+in.TileSize, in.Width)
	y1 := minInt(y0+in.TileSize, in.Height)
	withDepth := in.RenderMode == RGBED

	for y := y0; y < y1; y++ {
		py := float32(y) + 0.5
		for x := x0; x < x1; x++ {
			px := float32(x) + 0.5
			pix := out.Render.Pixel(x, y)

			var depth float32
			T := float32(1)
			for _, sIdx := range list {
				s := &proj.splats[sIdx]
				dx, dy := s.mean2D[0]-px, s.mean2D[1]-py
				sigma := 0.5*(s.conic[0]*dx*dx+s.conic[2]*dy*dy) + s.conic[1]*dx*dy
				if sigma < 0 {
					continue
				}
				alpha := math32.Min(maxAlpha, s.opacity*math32.Exp(-sigma))
				if alpha < minAlpha {
					continue
				}
				nextT := T * (1 - alpha)
				if nextT <= minTransmittance {
					break
				}

				vis := alpha * T
				for c := 0; c < channels; c++ {
					pix[c] += s.color[c] * vis
				}
				depth += s.depth * vis
				T = nextT
			}

			accum := 1 - T
			out.Alpha.Pix[y*in.Width+x] = accum
			if in.Background != nil {
				for c := 0; c < channels; c++ {
					pix[c] += T * in.Background[c]
				}
			}
			if withDepth {
				pix[channels] = depth / math32.Max(accum, 1e-10)
			}
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
