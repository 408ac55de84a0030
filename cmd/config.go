package cmd

import (
	"fmt"

	"github.com/digsplat/dig/checkpoint"
	"github.com/digsplat/dig/model"
	"github.com/urfave/cli"
	yaml "gopkg.in/yaml.v2"
)

// Print the effective model configuration as yaml. The configuration is read
// from a checkpoint if one is given, from --config otherwise.
func DumpConfig(ctx *cli.Context) error {
	setupLogging(ctx)

	var (
		cfg *model.Config
		err error
	)
	if ctx.NArg() > 0 {
		var c *checkpoint.Checkpoint
		if c, err = checkpoint.Load(ctx.Args().First()); err == nil {
			cfg = c.Config
		}
	} else {
		cfg, err = loadConfig(ctx)
	}
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
