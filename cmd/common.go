package cmd

import (
	"errors"
	"fmt"

	"github.com/digsplat/dig/checkpoint"
	"github.com/digsplat/dig/model"
	"github.com/digsplat/dig/scene"
	"github.com/digsplat/dig/types"
	"github.com/urfave/cli"
)

var errMissingCheckpoint = errors.New("missing checkpoint argument")

// Flags shared by the commands that render a camera.
var CameraFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "cameras, c",
		Usage: "yaml file with a list of cameras",
	},
	cli.IntFlag{
		Name:  "camera-index",
		Value: 0,
		Usage: "index of the camera to render",
	},
	cli.IntFlag{
		Name:  "width",
		Value: 512,
		Usage: "frame width for the default camera",
	},
	cli.IntFlag{
		Name:  "height",
		Value: 512,
		Usage: "frame height for the default camera",
	},
	cli.Float64Flag{
		Name:  "distance",
		Value: 3,
		Usage: "distance of the default camera from the scene origin",
	},
}

// Load the model stored in the checkpoint passed as the first argument.
func loadModel(ctx *cli.Context, renderCtx *model.RenderContext) (*model.Model, error) {
	if ctx.NArg() < 1 {
		return nil, errMissingCheckpoint
	}

	c, err := checkpoint.Load(ctx.Args().First())
	if err != nil {
		return nil, err
	}
	m, err := c.Model(renderCtx)
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("step") {
		m.SetStep(ctx.Int("step"))
	}
	return m, nil
}

// Get the camera selected by the camera flags. Without a camera file, a
// camera on the +Z axis looking at the origin is used.
func selectCamera(ctx *cli.Context) (scene.Camera, error) {
	if ctx.String("cameras") == "" {
		eye := types.Vec3{0, 0, float32(ctx.Float64("distance"))}
		return scene.NewLookAtCamera(eye, types.Vec3{}, types.Vec3{0, 1, 0}, 1, ctx.Int("width"), ctx.Int("height")), nil
	}

	cams, err := scene.LoadCameras(ctx.String("cameras"))
	if err != nil {
		return scene.Camera{}, err
	}
	idx := ctx.Int("camera-index")
	if idx < 0 || idx >= cams.Len() {
		return scene.Camera{}, fmt.Errorf("camera index %d out of range [0, %d)", idx, cams.Len())
	}
	return cams[idx], nil
}
