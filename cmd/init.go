package cmd

import (
	"github.com/digsplat/dig/checkpoint"
	"github.com/digsplat/dig/model"
	"github.com/digsplat/dig/scene"
	"github.com/urfave/cli"
)

// Create a checkpoint holding a random scene and an untrained projection.
func InitScene(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	gs := scene.RandomGaussianSet(ctx.Int("num-gaussians"), cfg.SHDegree, cfg.GaussianDim, float32(ctx.Float64("extent")), cfg.Seed)
	m, err := model.New(cfg, gs, nil)
	if err != nil {
		return err
	}

	out := ctx.String("out")
	if err = checkpoint.Write(checkpoint.FromModel(m), out); err != nil {
		return err
	}
	logger.Noticef("wrote %d gaussians to %s", gs.Len(), out)
	return nil
}

func loadConfig(ctx *cli.Context) (*model.Config, error) {
	if ctx.String("config") == "" {
		return model.DefaultConfig(), nil
	}
	return model.LoadConfig(ctx.String("config"))
}
