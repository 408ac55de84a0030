package main

import (
	"os"

	"github.com/digsplat/dig/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	checkpointFlags := []cli.Flag{
		cli.IntFlag{
			Name:  "step",
			Usage: "override the training step stored in the checkpoint",
		},
	}

	app := cli.NewApp()
	app.Name = "dig"
	app.Usage = "render and query gaussian splat scenes with distilled feature fields"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, notice, warning, error)",
		},
		cli.StringSliceFlag{
			Name:  "debug-module",
			Value: &cli.StringSlice{},
			Usage: "enable debug logging for a single named logger",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "init",
			Usage: "create a checkpoint with a random scene",
			Description: `
Sample gaussians uniformly inside a cube, attach random feature vectors and an
untrained projection network and write everything to a checkpoint archive.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config",
					Usage: "yaml model configuration",
				},
				cli.IntFlag{
					Name:  "num-gaussians, n",
					Value: 10000,
					Usage: "number of gaussians",
				},
				cli.Float64Flag{
					Name:  "extent",
					Value: 1,
					Usage: "half size of the cube the gaussians are sampled in",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "scene.zip",
					Usage: "checkpoint filename",
				},
			},
			Action: cmd.InitScene,
		},
		{
			Name:  "render",
			Usage: "render a single frame",
			Description: `
Render one camera from a checkpoint. The RGB image is written as a PNG file while
depth, accumulation and feature maps are written as layers of an EXR file.`,
			ArgsUsage: "checkpoint.zip",
			Flags: append(append([]cli.Flag{
				cli.BoolFlag{
					Name:  "train",
					Usage: "render in training mode",
				},
				cli.StringFlag{
					Name:  "background",
					Usage: "override the background color (r,g,b)",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame",
					Usage: "filename prefix for the rendered maps",
				},
			}, cmd.CameraFlags...), checkpointFlags...),
			Action: cmd.RenderFrame,
		},
		{
			Name:  "click",
			Usage: "query the scene at a pixel",
			Description: `
Resolve a click at pixel (x, y) to a surface point and a feature vector and render
the feature distance of every pixel to the clicked feature.`,
			ArgsUsage: "checkpoint.zip",
			Flags: append(append([]cli.Flag{
				cli.IntFlag{
					Name:  "x",
					Usage: "pixel column",
				},
				cli.IntFlag{
					Name:  "y",
					Usage: "pixel row",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "click",
					Usage: "filename prefix for the rendered maps",
				},
			}, cmd.CameraFlags...), checkpointFlags...),
			Action: cmd.ClickQuery,
		},
		{
			Name:      "loss",
			Usage:     "evaluate the feature losses against a descriptor map",
			ArgsUsage: "checkpoint.zip",
			Flags: append(append([]cli.Flag{
				cli.StringFlag{
					Name:  "target, t",
					Usage: "EXR file with ground truth descriptors",
				},
				cli.StringFlag{
					Name:  "layer",
					Value: "dino",
					Usage: "name of the descriptor layer",
				},
			}, cmd.CameraFlags...), checkpointFlags...),
			Action: cmd.EvalLoss,
		},
		{
			Name:      "inspect",
			Usage:     "list the parameter groups of a checkpoint",
			ArgsUsage: "checkpoint.zip",
			Action:    cmd.Inspect,
		},
		{
			Name:      "config",
			Usage:     "print the effective model configuration",
			ArgsUsage: "[checkpoint.zip]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config",
					Usage: "yaml model configuration",
				},
			},
			Action: cmd.DumpConfig,
		},
	}

	app.Run(os.Args)
}
