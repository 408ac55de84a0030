// Package featmap stores rendered maps on disk. Float maps of any width are
// written as OpenEXR layers; color and heat maps can be exported as PNG.
package featmap

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"sort"

	"github.com/chewxy/math32"
	"github.com/digsplat/dig/asset"
	"github.com/digsplat/dig/tensor"
	"github.com/mrjoshuak/go-openexr/exr"
	"github.com/mrjoshuak/go-openexr/exrmeta"
	"github.com/mrjoshuak/go-openexr/exrutil"
	"github.com/pkg/errors"
)

var (
	ErrNoLayers    = errors.New("featmap: no layers to write")
	ErrLayerSize   = errors.New("featmap: all layers must have the same size")
	ErrPNGChannels = errors.New("featmap: png export requires 1 or 3 channels")
)

// Layer is a named map. Single channel layers are stored in a channel with
// the layer name; wider layers use one "<name>.<index>" channel per map
// channel.
type Layer struct {
	Name string
	Map  *tensor.Map
}

// File is the content of a decoded EXR file.
type File struct {
	Comments string
	Layers   map[string]*tensor.Map
}

// Save layers to an EXR file.
func SaveEXR(filename, comments string, layers ...Layer) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "featmap: could not create file")
	}
	defer f.Close()
	return WriteEXR(f, comments, layers...)
}

// Write layers as a ZIP compressed scanline EXR image.
func WriteEXR(ws io.WriteSeeker, comments string, layers ...Layer) error {
	if len(layers) == 0 {
		return ErrNoLayers
	}
	h, w := layers[0].Map.H, layers[0].Map.W
	for _, l := range layers {
		if l.Map.H != h || l.Map.W != w {
			return ErrLayerSize
		}
	}

	header := exr.NewScanlineHeader(w, h)
	header.SetCompression(exr.CompressionZIP)
	if comments != "" {
		exrmeta.SetComments(header, comments)
	}

	channels := exr.NewChannelList()
	fb := exr.NewFrameBuffer()
	for _, l := range layers {
		for c := 0; c < l.Map.C; c++ {
			name := channelName(l.Name, c, l.Map.C)
			data := make([]float32, h*w)
			for p := range data {
				data[p] = l.Map.Pix[p*l.Map.C+c]
			}
			channels.Add(exr.Channel{Name: name, Type: exr.PixelTypeFloat, XSampling: 1, YSampling: 1})
			fb.Set(name, exr.NewSliceFromFloat32(data, w, h))
		}
	}
	header.SetChannels(channels)

	writer, err := exr.NewScanlineWriter(ws, header)
	if err != nil {
		return errors.Wrap(err, "featmap: could not create exr writer")
	}
	writer.SetFrameBuffer(fb)
	if err = writer.WritePixels(0, h-1); err != nil {
		return errors.Wrap(err, "featmap: could not write pixels")
	}
	return writer.Close()
}

// Load an EXR file from a local path or URL.
func LoadEXR(path string) (*File, error) {
	res, err := asset.Open(path)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	data, err := res.Bytes()
	if err != nil {
		return nil, err
	}
	return ReadEXR(bytes.NewReader(data), int64(len(data)))
}

// Decode the layers of an EXR image.
func ReadEXR(r io.ReaderAt, size int64) (*File, error) {
	f, err := exr.OpenReader(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "featmap: could not open exr")
	}
	header := f.Header(0)
	w, h := header.Width(), header.Height()

	out := &File{
		Comments: exrmeta.Comments(header),
		Layers:   make(map[string]*tensor.Map),
	}
	for layer, names := range exrutil.SplitLayers(header) {
		if layer == "" {
			// Channels without a layer prefix are single channel layers.
			for _, name := range names {
				data, err := exrutil.ExtractChannel(f, name)
				if err != nil {
					return nil, errors.Wrapf(err, "featmap: could not read channel %s", name)
				}
				out.Layers[name] = &tensor.Map{H: h, W: w, C: 1, Pix: data}
			}
			continue
		}

		sort.Strings(names)
		m := tensor.NewMap(h, w, len(names))
		for c, suffix := range names {
			data, err := exrutil.ExtractChannel(f, layer+"."+suffix)
			if err != nil {
				return nil, errors.Wrapf(err, "featmap: could not read layer %s", layer)
			}
			for p, v := range data {
				m.Pix[p*m.C+c] = v
			}
		}
		out.Layers[layer] = m
	}
	return out, nil
}

// Save a map as a PNG image.
func SavePNG(filename string, m *tensor.Map) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "featmap: could not create file")
	}
	defer f.Close()
	return WritePNG(f, m)
}

// Encode a map as an 8-bit PNG image. Three channel maps are treated as
// colors in [0, 1]; single channel maps are normalized to their value range
// and written as grayscale.
func WritePNG(w io.Writer, m *tensor.Map) error {
	var img image.Image
	switch m.C {
	case 3:
		rgba := image.NewNRGBA(image.Rect(0, 0, m.W, m.H))
		for y := 0; y < m.H; y++ {
			for x := 0; x < m.W; x++ {
				px := m.Pixel(x, y)
				rgba.SetNRGBA(x, y, color.NRGBA{R: toByte(px[0]), G: toByte(px[1]), B: toByte(px[2]), A: 255})
			}
		}
		img = rgba
	case 1:
		lo, hi := valueRange(m.Pix)
		gray := image.NewGray(image.Rect(0, 0, m.W, m.H))
		for y := 0; y < m.H; y++ {
			for x := 0; x < m.W; x++ {
				v := float32(0)
				if hi > lo {
					v = (m.At(x, y, 0) - lo) / (hi - lo)
				}
				gray.SetGray(x, y, color.Gray{Y: toByte(v)})
			}
		}
		img = gray
	default:
		return ErrPNGChannels
	}

	if err := png.Encode(w, img); err != nil {
		return errors.Wrap(err, "featmap: could not encode png")
	}
	return nil
}

func channelName(layer string, c, n int) string {
	if n == 1 {
		return layer
	}
	return fmt.Sprintf("%s.%03d", layer, c)
}

func toByte(v float32) uint8 {
	return uint8(math32.Min(math32.Max(v, 0), 1)*255 + 0.5)
}

func valueRange(values []float32) (float32, float32) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math32.Min(lo, v)
		hi = math32.Max(hi, v)
	}
	return lo, hi
}
