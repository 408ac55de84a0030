package featmap

import (
	"bytes"
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/digsplat/dig/tensor"
)

func gradient(h, w, c int) *tensor.Map {
	m := tensor.NewMap(h, w, c)
	for i := range m.Pix {
		m.Pix[i] = float32(i) * 0.25
	}
	return m
}

func TestEXRRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "featmap")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "out.exr")

	dino := gradient(3, 5, 12)
	depth := gradient(3, 5, 1)
	err = SaveEXR(path, "step 10", Layer{"dino", dino}, Layer{"depth", depth})
	if err != nil {
		t.Fatal(err)
	}

	f, err := LoadEXR(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Comments != "step 10" {
		t.Fatalf("expected comments %q; got %q", "step 10", f.Comments)
	}
	if len(f.Layers) != 2 {
		t.Fatalf("expected 2 layers; got %d", len(f.Layers))
	}

	specs := []struct {
		name string
		exp  *tensor.Map
	}{
		{"dino", dino},
		{"depth", depth},
	}
	for specIndex, spec := range specs {
		got, ok := f.Layers[spec.name]
		if !ok {
			t.Fatalf("[spec %d] missing layer %s", specIndex, spec.name)
		}
		if got.H != spec.exp.H || got.W != spec.exp.W || got.C != spec.exp.C {
			t.Fatalf("[spec %d] expected shape %dx%dx%d; got %dx%dx%d", specIndex, spec.exp.H, spec.exp.W, spec.exp.C, got.H, got.W, got.C)
		}
		for i, v := range spec.exp.Pix {
			if got.Pix[i] != v {
				t.Fatalf("[spec %d] expected value %f at %d; got %f", specIndex, v, i, got.Pix[i])
			}
		}
	}
}

func TestEXRErrors(t *testing.T) {
	dir, err := ioutil.TempDir("", "featmap")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "out.exr")

	if err = SaveEXR(path, ""); err != ErrNoLayers {
		t.Fatalf("expected ErrNoLayers; got %v", err)
	}
	if err = SaveEXR(path, "", Layer{"a", gradient(2, 2, 1)}, Layer{"b", gradient(2, 3, 1)}); err != ErrLayerSize {
		t.Fatalf("expected ErrLayerSize; got %v", err)
	}
}

func TestWritePNG(t *testing.T) {
	specs := []struct {
		m   *tensor.Map
		err error
	}{
		{tensor.Tile(4, 6, []float32{1, 0.5, -1}), nil},
		{gradient(4, 6, 1), nil},
		{tensor.Const(4, 6, 3), nil},
		{gradient(4, 6, 2), ErrPNGChannels},
	}

	for specIndex, spec := range specs {
		var buf bytes.Buffer
		err := WritePNG(&buf, spec.m)
		if err != spec.err {
			t.Fatalf("[spec %d] expected error %v; got %v", specIndex, spec.err, err)
		}
		if err != nil {
			continue
		}

		img, err := png.Decode(&buf)
		if err != nil {
			t.Fatalf("[spec %d] %s", specIndex, err)
		}
		if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 4 {
			t.Fatalf("[spec %d] expected 6x4 image; got %dx%d", specIndex, b.Dx(), b.Dy())
		}
	}

	var buf bytes.Buffer
	if err := WritePNG(&buf, tensor.Tile(1, 1, []float32{1, 0.5, -1})); err != nil {
		t.Fatal(err)
	}
	img, _ := png.Decode(&buf)
	r, g, b, _ := img.At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 128 || b>>8 != 0 {
		t.Fatalf("expected clamped color (255, 128, 0); got (%d, %d, %d)", r>>8, g>>8, b>>8)
	}
}
