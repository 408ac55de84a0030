package cmd

import (
	"fmt"

	"github.com/digsplat/dig/asset/featmap"
	"github.com/digsplat/dig/model"
	"github.com/digsplat/dig/scene"
	"github.com/urfave/cli"
)

// Evaluate the feature loss terms of a checkpoint against a descriptor map.
func EvalLoss(ctx *cli.Context) error {
	setupLogging(ctx)

	m, err := loadModel(ctx, model.NewRenderContext())
	if err != nil {
		return err
	}
	cam, err := selectCamera(ctx)
	if err != nil {
		return err
	}

	target, err := featmap.LoadEXR(ctx.String("target"))
	if err != nil {
		return err
	}
	layer := ctx.String("layer")
	gt, ok := target.Layers[layer]
	if !ok {
		return fmt.Errorf("descriptor file %s has no layer %q", ctx.String("target"), layer)
	}

	m.Train()
	out, err := m.GetOutputs(scene.Cameras{cam})
	if err != nil {
		return err
	}
	losses, err := m.LossDict(out, &model.Batch{Dino: gt})
	if err != nil {
		return err
	}
	displayFrameStats(out.Stats)
	displayLosses(losses)
	return nil
}
