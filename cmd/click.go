package cmd

import (
	"errors"

	"github.com/digsplat/dig/model"
	"github.com/digsplat/dig/query"
	"github.com/digsplat/dig/scene"
	"github.com/urfave/cli"
)

var errClickFailed = errors.New("click did not resolve to a surface point")

// Run a click query on a pixel and render the resulting similarity map.
func ClickQuery(ctx *cli.Context) error {
	setupLogging(ctx)

	m, err := loadModel(ctx, model.NewRenderContext())
	if err != nil {
		return err
	}
	cam, err := selectCamera(ctx)
	if err != nil {
		return err
	}

	viewer := query.NewStaticViewer(scene.Cameras{cam})
	handler := query.NewHandler(m, viewer)
	click, err := viewer.ClickPixel(0, ctx.Int("x"), ctx.Int("y"))
	if err != nil {
		return err
	}

	handler.Arm()
	viewer.Fire(click)
	state := m.Click()
	if state == nil {
		return errClickFailed
	}
	marker, _ := viewer.Marker(query.MarkerName)
	logger.Noticef(
		"clicked (%.3f, %.3f, %.3f); viewer marker at (%.2f, %.2f, %.2f)",
		state.Location[0], state.Location[1], state.Location[2],
		marker.Position[0], marker.Position[1], marker.Position[2],
	)

	m.Eval()
	out, err := m.Render(&cam)
	if err != nil {
		return err
	}
	displayFrameStats(out.Stats)
	return writeOutputs(ctx.String("out"), out)
}
