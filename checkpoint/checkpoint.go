// Package checkpoint saves and restores trained feature field models as
// zip archives.
package checkpoint

import (
	"github.com/digsplat/dig/model"
	"github.com/digsplat/dig/nn"
	"github.com/digsplat/dig/scene"
)

// Archive entries.
const (
	metaFile       = "meta.bin"
	configFile     = "config.yaml"
	gaussiansFile  = "gaussians.bin"
	projectionFile = "projection.bin"
)

// Checkpoint is a snapshot of a model's learnable state.
type Checkpoint struct {
	Step       int
	Config     *model.Config
	Gaussians  scene.State
	Projection []nn.LayerState
}

// Capture a snapshot of a model.
func FromModel(m *model.Model) *Checkpoint {
	return &Checkpoint{
		Step:       m.Step(),
		Config:     m.Config(),
		Gaussians:  m.Gaussians().State(),
		Projection: m.Projection().State(),
	}
}

// Build a model from the snapshot. The gaussian state is restored into
// freshly allocated gradient tracked parameters.
func (c *Checkpoint) Model(ctx *model.RenderContext) (*model.Model, error) {
	gs := &scene.GaussianSet{}
	gs.LoadState(c.Gaussians)
	if err := gs.Restore(); err != nil {
		return nil, err
	}

	m, err := model.New(c.Config, gs, ctx)
	if err != nil {
		return nil, err
	}
	if err = m.Projection().LoadState(c.Projection); err != nil {
		return nil, err
	}
	m.SetStep(c.Step)
	return m, nil
}

type meta struct {
	Step int
}
