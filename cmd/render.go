package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/digsplat/dig/asset/featmap"
	"github.com/digsplat/dig/model"
	"github.com/digsplat/dig/scene"
	"github.com/digsplat/dig/types"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Render a single frame from a checkpoint.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	renderCtx := model.NewRenderContext()
	m, err := loadModel(ctx, renderCtx)
	if err != nil {
		return err
	}
	if ctx.Bool("train") {
		m.Train()
	} else {
		m.Eval()
	}

	if bg := ctx.String("background"); bg != "" {
		color, err := parseColor(bg)
		if err != nil {
			return err
		}
		renderCtx.BeginSession(color)
		defer renderCtx.EndSession()
	}

	cam, err := selectCamera(ctx)
	if err != nil {
		return err
	}
	logger.Noticef("rendering %s", cam)

	out, err := m.GetOutputs(scene.Cameras{cam})
	if err != nil {
		return err
	}
	displayFrameStats(out.Stats)
	return writeOutputs(ctx.String("out"), out)
}

// Write the RGB map as <prefix>.png and the remaining maps as layers of
// <prefix>.exr.
func writeOutputs(prefix string, out *model.Output) error {
	if out.Empty() {
		logger.Warning("nothing was rendered")
		return nil
	}

	pngFile := prefix + ".png"
	if err := featmap.SavePNG(pngFile, out.RGB); err != nil {
		return err
	}
	logger.Noticef("wrote %s", pngFile)

	maps := out.Map()
	delete(maps, model.OutputRGB)
	names := make([]string, 0, len(maps))
	for name := range maps {
		names = append(names, name)
	}
	sort.Strings(names)

	// Layers must share a resolution; the feature maps are written to a
	// second file when they do not match the radiance maps.
	var main, feature []featmap.Layer
	for _, name := range names {
		layer := featmap.Layer{Name: name, Map: maps[name]}
		if maps[name].H == out.RGB.H && maps[name].W == out.RGB.W {
			main = append(main, layer)
		} else {
			feature = append(feature, layer)
		}
	}

	comments := fmt.Sprintf("background %.4f,%.4f,%.4f", out.Background[0], out.Background[1], out.Background[2])
	for suffix, layers := range map[string][]featmap.Layer{".exr": main, "_features.exr": feature} {
		if len(layers) == 0 {
			continue
		}
		exrFile := prefix + suffix
		if err := featmap.SaveEXR(exrFile, comments, layers...); err != nil {
			return err
		}
		logger.Noticef("wrote %s (%s)", exrFile, layerNames(layers))
	}

	if out.ClickSimilarity != nil {
		simFile := prefix + "_similarity.png"
		if err := featmap.SavePNG(simFile, out.ClickSimilarity); err != nil {
			return err
		}
		logger.Noticef("wrote %s", simFile)
	}
	return nil
}

func layerNames(layers []featmap.Layer) string {
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = l.Name
	}
	return strings.Join(names, ", ")
}

func parseColor(value string) (types.Vec3, error) {
	var c types.Vec3
	if _, err := fmt.Sscanf(strings.Replace(value, " ", "", -1), "%f,%f,%f", &c[0], &c[1], &c[2]); err != nil {
		return c, errors.Wrapf(err, "invalid color %q", value)
	}
	return c, nil
}
