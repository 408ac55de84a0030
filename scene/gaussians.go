package scene

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/digsplat/dig/tensor"
	"github.com/digsplat/dig/types"
)

// Names of the per-gaussian parameters.
const (
	ParamMeans        = "means"
	ParamScales       = "scales"
	ParamQuats        = "quats"
	ParamFeaturesDC   = "features_dc"
	ParamFeaturesRest = "features_rest"
	ParamOpacities    = "opacities"
	ParamDinoFeats    = "dino_feats"
)

var (
	// The order in which parameters are exposed to optimizers and checkpoints.
	paramOrder = []string{
		ParamMeans,
		ParamScales,
		ParamQuats,
		ParamFeaturesDC,
		ParamFeaturesRest,
		ParamOpacities,
		ParamDinoFeats,
	}

	ErrPendingRestore = errors.New("scene: gaussian state loaded but not restored")
	ErrNothingLoaded  = errors.New("scene: no pending gaussian state to restore")
)

// Number of spherical harmonic coefficients per color channel for degree.
func NumSHBases(degree int) int {
	return (degree + 1) * (degree + 1)
}

// A serializable snapshot of a single parameter.
type ParamState struct {
	Name string
	Rows int
	Cols int
	Data []float32
}

// A serializable snapshot of all gaussian parameters.
type State []ParamState

// GaussianSet is the scene parameter store. Every attribute is kept in a
// separate tensor (structure of arrays) and all tensors share the same row
// count; row i of each tensor describes gaussian i.
type GaussianSet struct {
	params  map[string]*tensor.Tensor
	pending State
}

// Create a zero-initialized set of n gaussians.
func NewGaussianSet(n, shDegree, featureDim int) *GaussianSet {
	gs := &GaussianSet{params: make(map[string]*tensor.Tensor)}
	dims := paramDims(shDegree, featureDim)
	for _, name := range paramOrder {
		gs.params[name] = tensor.New(name, n, dims[name], true)
	}
	// Zero quaternions are not valid rotations.
	quats := gs.params[ParamQuats]
	for i := 0; i < n; i++ {
		quats.Row(i)[0] = 1
	}
	return gs
}

// Create n gaussians with means scattered uniformly inside a cube of the
// given half extent, small isotropic scales, random orientation, random
// colors and normally distributed features.
func RandomGaussianSet(n, shDegree, featureDim int, extent float32, seed int64) *GaussianSet {
	rng := rand.New(rand.NewSource(seed))
	gs := NewGaussianSet(n, shDegree, featureDim)

	logScale := math32.Log(extent / math32.Max(math32.Cbrt(float32(n)), 1))
	for i := 0; i < n; i++ {
		mean := gs.params[ParamMeans].Row(i)
		for j := range mean {
			mean[j] = (rng.Float32()*2 - 1) * extent
		}

		scale := gs.params[ParamScales].Row(i)
		for j := range scale {
			scale[j] = logScale
		}

		quat := gs.params[ParamQuats].Row(i)
		for j := range quat {
			quat[j] = float32(rng.NormFloat64())
		}

		dc := gs.params[ParamFeaturesDC].Row(i)
		for j := range dc {
			dc[j] = (rng.Float32() - 0.5) / shC0
		}

		gs.params[ParamOpacities].Row(i)[0] = logit(0.1)

		feats := gs.params[ParamDinoFeats].Row(i)
		for j := range feats {
			feats[j] = float32(rng.NormFloat64())
		}
	}
	return gs
}

// Number of gaussians.
func (gs *GaussianSet) Len() int {
	return gs.params[ParamMeans].Rows()
}

// Get a parameter by name. Returns nil for unknown names.
func (gs *GaussianSet) Get(name string) *tensor.Tensor {
	return gs.params[name]
}

// Replace a parameter. Callers that densify or prune the set must replace
// every parameter before the next render; Validate reports mismatches.
func (gs *GaussianSet) Set(t *tensor.Tensor) {
	gs.params[t.Name()] = t
}

func (gs *GaussianSet) Means() *tensor.Tensor        { return gs.params[ParamMeans] }
func (gs *GaussianSet) Scales() *tensor.Tensor       { return gs.params[ParamScales] }
func (gs *GaussianSet) Quats() *tensor.Tensor        { return gs.params[ParamQuats] }
func (gs *GaussianSet) FeaturesDC() *tensor.Tensor   { return gs.params[ParamFeaturesDC] }
func (gs *GaussianSet) FeaturesRest() *tensor.Tensor { return gs.params[ParamFeaturesRest] }
func (gs *GaussianSet) Opacities() *tensor.Tensor    { return gs.params[ParamOpacities] }
func (gs *GaussianSet) DinoFeats() *tensor.Tensor    { return gs.params[ParamDinoFeats] }

// Degree of the spherical harmonics stored by the set.
func (gs *GaussianSet) SHDegree() int {
	bases := 1 + gs.params[ParamFeaturesRest].Cols()/3
	return int(math32.Round(math32.Sqrt(float32(bases)))) - 1
}

// Width of the compact feature vector.
func (gs *GaussianSet) FeatureDim() int {
	return gs.params[ParamDinoFeats].Cols()
}

// Get the mean of gaussian i.
func (gs *GaussianSet) Mean(i int) types.Vec3 {
	row := gs.params[ParamMeans].Row(i)
	return types.Vec3{row[0], row[1], row[2]}
}

// Iterate parameters in a stable order.
func (gs *GaussianSet) Params() []*tensor.Tensor {
	out := make([]*tensor.Tensor, 0, len(paramOrder))
	for _, name := range paramOrder {
		out = append(out, gs.params[name])
	}
	return out
}

// Parameter groups for the external optimizer, one group per attribute.
func (gs *GaussianSet) ParamGroups() map[string][]*tensor.Tensor {
	groups := make(map[string][]*tensor.Tensor, len(paramOrder))
	for _, name := range paramOrder {
		groups[name] = []*tensor.Tensor{gs.params[name]}
	}
	return groups
}

// Check that all parameters are present and have the same number of rows.
func (gs *GaussianSet) Validate() error {
	if gs.pending != nil {
		return ErrPendingRestore
	}
	n := -1
	for _, name := range paramOrder {
		t, ok := gs.params[name]
		if !ok || t == nil {
			return fmt.Errorf("scene: missing gaussian parameter %q", name)
		}
		if n == -1 {
			n = t.Rows()
		} else if t.Rows() != n {
			return fmt.Errorf("scene: parameter %q has %d rows; expected %d", name, t.Rows(), n)
		}
	}
	return nil
}

// Gather gaussians by index into a new set. Gradient tracking flags are
// preserved.
func (gs *GaussianSet) Select(ids []int) *GaussianSet {
	out := &GaussianSet{params: make(map[string]*tensor.Tensor, len(gs.params))}
	for name, t := range gs.params {
		out.params[name] = t.Select(ids)
	}
	return out
}

// Snapshot all parameters.
func (gs *GaussianSet) State() State {
	st := make(State, 0, len(paramOrder))
	for _, name := range paramOrder {
		t := gs.params[name]
		data := make([]float32, len(t.Data()))
		copy(data, t.Data())
		st = append(st, ParamState{Name: name, Rows: t.Rows(), Cols: t.Cols(), Data: data})
	}
	return st
}

// Stage a previously saved state. The staged state only becomes visible
// after an explicit call to Restore.
func (gs *GaussianSet) LoadState(st State) {
	gs.pending = st
}

// Convert a staged state into gradient tracked parameter tensors, replacing
// the current parameters.
func (gs *GaussianSet) Restore() error {
	if gs.pending == nil {
		return ErrNothingLoaded
	}

	params := make(map[string]*tensor.Tensor, len(gs.pending))
	for _, ps := range gs.pending {
		t, err := tensor.FromData(ps.Name, ps.Data, ps.Rows, ps.Cols, true)
		if err != nil {
			return fmt.Errorf("scene: could not restore %q: %s", ps.Name, err)
		}
		params[ps.Name] = t
	}

	prev := gs.params
	gs.params, gs.pending = params, nil
	if err := gs.Validate(); err != nil {
		gs.params = prev
		return err
	}
	return nil
}

// Build a set directly from a saved state.
func GaussianSetFromState(st State) (*GaussianSet, error) {
	gs := &GaussianSet{}
	gs.LoadState(st)
	if err := gs.Restore(); err != nil {
		return nil, err
	}
	return gs, nil
}

func paramDims(shDegree, featureDim int) map[string]int {
	return map[string]int{
		ParamMeans:        3,
		ParamScales:       3,
		ParamQuats:        4,
		ParamFeaturesDC:   3,
		ParamFeaturesRest: (NumSHBases(shDegree) - 1) * 3,
		ParamOpacities:    1,
		ParamDinoFeats:    featureDim,
	}
}

// Zeroth order spherical harmonic basis constant.
const shC0 float32 = 0.28209479177387814

func logit(p float32) float32 {
	return math32.Log(p / (1 - p))
}
