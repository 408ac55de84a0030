// Package tensor provides the two dense float32 containers shared by the
// scene store, the rasterizer and the feature model: row tensors holding one
// row per gaussian and H x W x C maps holding rendered buffers.
package tensor

import "fmt"

// A Tensor stores Rows x Cols float32 values in row-major order.
//
// Each tensor carries a gradient tracking flag. Views returned by Detach
// share storage with their source but never track gradients, which lets two
// consumers of the same parameters see different gradient visibility without
// copying or mutating each other's data.
type Tensor struct {
	name string
	data []float32
	rows int
	cols int
	grad bool
}

// Create a zero-filled tensor.
func New(name string, rows, cols int, requiresGrad bool) *Tensor {
	return &Tensor{
		name: name,
		data: make([]float32, rows*cols),
		rows: rows,
		cols: cols,
		grad: requiresGrad,
	}
}

// Wrap existing row-major data. The tensor takes ownership of data.
func FromData(name string, data []float32, rows, cols int, requiresGrad bool) (*Tensor, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("tensor: %d values cannot be shaped as %dx%d", len(data), rows, cols)
	}
	return &Tensor{
		name: name,
		data: data,
		rows: rows,
		cols: cols,
		grad: requiresGrad,
	}, nil
}

func (t *Tensor) Name() string       { return t.name }
func (t *Tensor) Rows() int          { return t.rows }
func (t *Tensor) Cols() int          { return t.cols }
func (t *Tensor) RequiresGrad() bool { return t.grad }

// Access the backing storage.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Get row i. The returned slice aliases the tensor storage.
func (t *Tensor) Row(i int) []float32 {
	return t.data[i*t.cols : (i+1)*t.cols]
}

// Return a view over the same storage that does not track gradients.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{
		name: t.name,
		data: t.data,
		rows: t.rows,
		cols: t.cols,
	}
}

// Return a view with gradient tracking enabled over the same storage.
func (t *Tensor) Attach() *Tensor {
	view := t.Detach()
	view.grad = true
	return view
}

// Gather the rows listed in ids into a new tensor. Like indexing a
// tracked parameter, the result keeps the gradient flag of its source.
func (t *Tensor) Select(ids []int) *Tensor {
	out := New(t.name, len(ids), t.cols, t.grad)
	for dst, src := range ids {
		copy(out.Row(dst), t.Row(src))
	}
	return out
}

// Produce a derived tensor by applying fn to every row. The derived tensor
// inherits gradient tracking from its source.
func (t *Tensor) MapRows(cols int, fn func(dst, src []float32)) *Tensor {
	out := New(t.name, t.rows, cols, t.grad)
	for i := 0; i < t.rows; i++ {
		fn(out.Row(i), t.Row(i))
	}
	return out
}

// Create a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := New(t.name, t.rows, t.cols, t.grad)
	copy(out.data, t.data)
	return out
}

// Concatenate the columns of several tensors with identical row counts.
// The result tracks gradients if any input does.
func ConcatCols(name string, parts ...*Tensor) (*Tensor, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("tensor: nothing to concatenate")
	}

	rows, cols, grad := parts[0].rows, 0, false
	for _, p := range parts {
		if p.rows != rows {
			return nil, fmt.Errorf("tensor: cannot concatenate %q with %d rows to %d rows", p.name, p.rows, rows)
		}
		cols += p.cols
		grad = grad || p.grad
	}

	out := New(name, rows, cols, grad)
	for i := 0; i < rows; i++ {
		dst := out.Row(i)
		offset := 0
		for _, p := range parts {
			copy(dst[offset:], p.Row(i))
			offset += p.cols
		}
	}
	return out, nil
}
