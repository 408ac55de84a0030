package tensor

import "github.com/chewxy/math32"

// Interpolation selects the filter used when resizing maps.
type Interpolation uint8

const (
	Bilinear Interpolation = iota
	Nearest
)

// A Map is an H x W x C image stored in row-major, channel-last order.
type Map struct {
	H, W, C int
	Pix     []float32
}

// Allocate a zero-filled map.
func NewMap(h, w, c int) *Map {
	return &Map{H: h, W: w, C: c, Pix: make([]float32, h*w*c)}
}

// Create a map where every pixel equals value.
func Tile(h, w int, value []float32) *Map {
	m := NewMap(h, w, len(value))
	m.Fill(value)
	return m
}

// Create a single channel map filled with v.
func Const(h, w int, v float32) *Map {
	return Tile(h, w, []float32{v})
}

// Set every pixel to value.
func (m *Map) Fill(value []float32) {
	for off := 0; off < len(m.Pix); off += m.C {
		copy(m.Pix[off:off+m.C], value)
	}
}

// Get the channel vector at (x, y). The returned slice aliases the map.
func (m *Map) Pixel(x, y int) []float32 {
	off := (y*m.W + x) * m.C
	return m.Pix[off : off+m.C]
}

// Get channel c at (x, y).
func (m *Map) At(x, y, c int) float32 {
	return m.Pix[(y*m.W+x)*m.C+c]
}

// Set channel c at (x, y).
func (m *Map) Set(x, y, c int, v float32) {
	m.Pix[(y*m.W+x)*m.C+c] = v
}

// Number of pixels.
func (m *Map) Len() int {
	return m.H * m.W
}

// Copy a subset of channels into a new map.
func (m *Map) Channels(from, to int) *Map {
	out := NewMap(m.H, m.W, to-from)
	for p := 0; p < m.Len(); p++ {
		copy(out.Pix[p*out.C:(p+1)*out.C], m.Pix[p*m.C+from:p*m.C+to])
	}
	return out
}

// Create a deep copy.
func (m *Map) Clone() *Map {
	out := NewMap(m.H, m.W, m.C)
	copy(out.Pix, m.Pix)
	return out
}

// Resize the map to h x w. Bilinear sampling uses half-pixel centers and
// clamps at the borders.
func (m *Map) Resize(h, w int, interp Interpolation) *Map {
	if h == m.H && w == m.W {
		return m.Clone()
	}

	out := NewMap(h, w, m.C)
	scaleY := float32(m.H) / float32(h)
	scaleX := float32(m.W) / float32(w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst := out.Pixel(x, y)
			if interp == Nearest {
				sx := clampInt(int(math32.Floor(float32(x)*scaleX)), 0, m.W-1)
				sy := clampInt(int(math32.Floor(float32(y)*scaleY)), 0, m.H-1)
				copy(dst, m.Pixel(sx, sy))
				continue
			}

			fx := math32.Max((float32(x)+0.5)*scaleX-0.5, 0)
			fy := math32.Max((float32(y)+0.5)*scaleY-0.5, 0)
			x0 := clampInt(int(fx), 0, m.W-1)
			y0 := clampInt(int(fy), 0, m.H-1)
			x1 := clampInt(x0+1, 0, m.W-1)
			y1 := clampInt(y0+1, 0, m.H-1)
			wx := fx - float32(x0)
			wy := fy - float32(y0)

			p00, p10 := m.Pixel(x0, y0), m.Pixel(x1, y0)
			p01, p11 := m.Pixel(x0, y1), m.Pixel(x1, y1)
			for c := range dst {
				top := p00[c]*(1-wx) + p10[c]*wx
				bottom := p01[c]*(1-wx) + p11[c]*wx
				dst[c] = top*(1-wy) + bottom*wy
			}
		}
	}
	return out
}

// Mean squared error between two maps of identical shape.
func MSE(a, b *Map) float32 {
	if len(a.Pix) == 0 {
		return 0
	}
	var sum float64
	for i, v := range a.Pix {
		d := float64(v - b.Pix[i])
		sum += d * d
	}
	return float32(sum / float64(len(a.Pix)))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
