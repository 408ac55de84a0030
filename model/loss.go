package model

import (
	"errors"
	"fmt"

	"github.com/digsplat/dig/knn"
	"github.com/digsplat/dig/log"
	"github.com/digsplat/dig/scene"
	"github.com/digsplat/dig/tensor"
	"gonum.org/v1/gonum/stat"
)

// Loss names.
const (
	LossDino   = "dino_loss"
	LossDinoNN = "dino_nn_loss"
)

var ErrMissingDescriptors = errors.New("model: batch has no ground truth descriptor map")

// Batch holds the supervision for a single training camera.
type Batch struct {
	// Ground truth descriptor map at any resolution.
	Dino *tensor.Map
}

// LossComposer computes the feature reconstruction loss and the neighbour
// smoothness regularizer. It caches the neighbour index between calls.
type LossComposer struct {
	cfg    *Config
	logger log.Logger

	index    *knn.Index
	rebuilds int
}

// Create a loss composer.
func NewLossComposer(cfg *Config) *LossComposer {
	return &LossComposer{
		cfg:    cfg,
		logger: log.New("loss"),
	}
}

// Number of times the neighbour index has been built.
func (lc *LossComposer) Rebuilds() int {
	return lc.rebuilds
}

// Get the neighbour index for gs, rebuilding it if the gaussian count has
// changed since the last call.
func (lc *LossComposer) Neighbors(gs *scene.GaussianSet) *knn.Index {
	if lc.index == nil || lc.index.Len() != gs.Len() {
		lc.logger.Infof("rebuilding %d-NN index for %d gaussians", lc.cfg.NumNeighbors, gs.Len())
		lc.index = knn.Build(gs.Means().Detach(), lc.cfg.NumNeighbors)
		lc.rebuilds++
	}
	return lc.index
}

// Compute the named feature loss terms for a rendered output. Outputs without
// a feature map contribute no terms.
func (lc *LossComposer) LossDict(out *Output, batch *Batch, gs *scene.GaussianSet, step int) (map[string]float32, error) {
	losses := make(map[string]float32)
	if out.Dino == nil {
		return losses, nil
	}
	if batch == nil || batch.Dino == nil {
		return nil, ErrMissingDescriptors
	}
	if batch.Dino.C != out.Dino.C {
		return nil, fmt.Errorf("model: descriptor map has %d channels; rendered map has %d", batch.Dino.C, out.Dino.C)
	}

	gt := batch.Dino.Resize(out.Dino.H, out.Dino.W, tensor.Bilinear)
	losses[LossDino] = tensor.MSE(out.Dino, gt)

	index := lc.Neighbors(gs)
	if step > lc.cfg.NNRegStartStep {
		losses[LossDinoNN] = lc.cfg.NNRegWeight * neighborVariance(gs.DinoFeats(), index)
	}
	return losses, nil
}

// Sum over gaussians and feature channels of the unbiased variance of each
// channel across the gaussian's neighbourhood.
func neighborVariance(feats *tensor.Tensor, index *knn.Index) float32 {
	var total float64
	values := make([]float64, 0, index.K())
	for i := 0; i < index.Len(); i++ {
		ids := index.Neighbors(i)
		if len(ids) < 2 {
			continue
		}
		for c := 0; c < feats.Cols(); c++ {
			values = values[:0]
			for _, id := range ids {
				values = append(values, float64(feats.Row(id)[c]))
			}
			total += stat.Variance(values, nil)
		}
	}
	return float32(total)
}

// Compute the feature loss terms for out at the current training step.
func (m *Model) LossDict(out *Output, batch *Batch) (map[string]float32, error) {
	return m.losses.LossDict(out, batch, m.gaussians, m.step)
}

// Get the cached neighbour index, building it if needed.
func (m *Model) NeighborIndex() *knn.Index {
	return m.losses.Neighbors(m.gaussians)
}
