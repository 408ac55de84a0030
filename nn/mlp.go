// Package nn implements the feature projection network: a small bias-free
// multilayer perceptron with ReLU hidden activations and an identity output,
// applied independently to every pixel of a rendered feature map.
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/digsplat/dig/tensor"
	"github.com/mrjoshuak/go-openexr/half"
	"gonum.org/v1/gonum/mat"
)

// The name under which the network parameters are exposed to optimizers.
const ParamGroup = "nn_projection"

// Network shape and numeric options.
type Config struct {
	InputDim     int
	OutputDim    int
	HiddenLayers int
	HiddenUnits  int

	// Round inputs and outputs to IEEE 754 half precision, matching
	// networks that evaluate in fp16.
	HalfPrecision bool

	// Seed for weight initialization.
	Seed int64
}

// A serializable snapshot of a weight matrix.
type LayerState struct {
	Rows int
	Cols int
	Data []float32
}

// MLP is a fully connected network without biases.
type MLP struct {
	cfg Config

	// One in x out weight matrix per layer.
	weights []*tensor.Tensor
}

// Create a network with Glorot-uniform initialized weights.
func New(cfg Config) (*MLP, error) {
	if cfg.InputDim <= 0 || cfg.OutputDim <= 0 || cfg.HiddenUnits <= 0 || cfg.HiddenLayers < 0 {
		return nil, fmt.Errorf("nn: invalid network shape %d -> %dx%d -> %d", cfg.InputDim, cfg.HiddenLayers, cfg.HiddenUnits, cfg.OutputDim)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	dims := layerDims(cfg)
	m := &MLP{cfg: cfg, weights: make([]*tensor.Tensor, len(dims)-1)}
	for idx := range m.weights {
		in, out := dims[idx], dims[idx+1]
		w := tensor.New(fmt.Sprintf("%s.layer%d", ParamGroup, idx), in, out, true)
		limit := math.Sqrt(6.0 / float64(in+out))
		for i := range w.Data() {
			w.Data()[i] = float32((rng.Float64()*2 - 1) * limit)
		}
		m.weights[idx] = w
	}
	return m, nil
}

// Input width.
func (m *MLP) InputDim() int {
	return m.cfg.InputDim
}

// Output width.
func (m *MLP) OutputDim() int {
	return m.cfg.OutputDim
}

// Get the learnable weight tensors.
func (m *MLP) Parameters() []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(m.weights))
	copy(out, m.weights)
	return out
}

// Apply the network to every pixel of a H x W x InputDim map.
func (m *MLP) Forward(in *tensor.Map) (*tensor.Map, error) {
	if in.C != m.cfg.InputDim {
		return nil, fmt.Errorf("nn: expected %d input channels; got %d", m.cfg.InputDim, in.C)
	}

	out := tensor.NewMap(in.H, in.W, m.cfg.OutputDim)
	if in.Len() == 0 {
		return out, nil
	}
	copy(out.Pix, m.ForwardRows(in.Pix, in.Len()))
	return out, nil
}

// Apply the network to rows of row-major input vectors.
func (m *MLP) ForwardRows(data []float32, rows int) []float32 {
	x := mat.NewDense(rows, m.cfg.InputDim, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < m.cfg.InputDim; c++ {
			x.Set(r, c, m.quantize(data[r*m.cfg.InputDim+c]))
		}
	}

	act := x
	for idx, w := range m.weights {
		wm := toDense(w)
		var next mat.Dense
		next.Mul(act, wm)
		if idx < len(m.weights)-1 {
			next.Apply(relu, &next)
		}
		act = &next
	}

	out := make([]float32, rows*m.cfg.OutputDim)
	for r := 0; r < rows; r++ {
		for c := 0; c < m.cfg.OutputDim; c++ {
			out[r*m.cfg.OutputDim+c] = float32(m.quantize(float32(act.At(r, c))))
		}
	}
	return out
}

// Snapshot the network weights.
func (m *MLP) State() []LayerState {
	st := make([]LayerState, len(m.weights))
	for idx, w := range m.weights {
		data := make([]float32, len(w.Data()))
		copy(data, w.Data())
		st[idx] = LayerState{Rows: w.Rows(), Cols: w.Cols(), Data: data}
	}
	return st
}

// Replace the network weights with a snapshot of the same shape.
func (m *MLP) LoadState(st []LayerState) error {
	if len(st) != len(m.weights) {
		return fmt.Errorf("nn: expected %d layers; got %d", len(m.weights), len(st))
	}
	weights := make([]*tensor.Tensor, len(st))
	for idx, ls := range st {
		if ls.Rows != m.weights[idx].Rows() || ls.Cols != m.weights[idx].Cols() {
			return fmt.Errorf("nn: layer %d has shape %dx%d; expected %dx%d", idx, ls.Rows, ls.Cols, m.weights[idx].Rows(), m.weights[idx].Cols())
		}
		w, err := tensor.FromData(m.weights[idx].Name(), ls.Data, ls.Rows, ls.Cols, true)
		if err != nil {
			return err
		}
		weights[idx] = w
	}
	m.weights = weights
	return nil
}

func (m *MLP) quantize(v float32) float64 {
	if m.cfg.HalfPrecision {
		return float64(half.FromFloat32(v).Float32())
	}
	return float64(v)
}

func toDense(t *tensor.Tensor) *mat.Dense {
	data := make([]float64, len(t.Data()))
	for i, v := range t.Data() {
		data[i] = float64(v)
	}
	return mat.NewDense(t.Rows(), t.Cols(), data)
}

func relu(_, _ int, v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func layerDims(cfg Config) []int {
	dims := []int{cfg.InputDim}
	for i := 0; i < cfg.HiddenLayers; i++ {
		dims = append(dims, cfg.HiddenUnits)
	}
	return append(dims, cfg.OutputDim)
}
