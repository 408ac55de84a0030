package cmd

import (
	"bytes"
	"fmt"
	"time"

	"github.com/digsplat/dig/model"
	"github.com/olekukonko/tablewriter"
)

func displayFrameStats(stats model.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Pass", "Worker", "Resolution", "Block height", "% of frame", "Block time"})
	appendPass(table, "radiance", stats.RadiancePass)
	appendPass(table, "feature", stats.FeaturePass)
	table.Append([]string{"projection", "", "", "", "", stats.Projection.String()})
	table.SetFooter([]string{"", "", "", "", "TOTAL", stats.RenderTime.String()})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}

func appendPass(table *tablewriter.Table, name string, pass model.PassStats) {
	rows := pass.Height
	if rows == 0 {
		return
	}
	resolution := fmt.Sprintf("%dx%d", pass.Width, pass.Height)
	table.Append([]string{name, "", resolution, "", "", fmt.Sprintf("project %s, blend %s", pass.ProjectTime, pass.BlendTime)})
	for _, stat := range pass.Workers {
		if stat.BlockH == 0 {
			continue
		}
		table.Append([]string{
			"",
			stat.Id,
			"",
			fmt.Sprintf("%d", stat.BlockH),
			fmt.Sprintf("%02.1f %%", framePercent(stat.BlockH, pass.Height)),
			stat.BlockTime.Round(time.Microsecond).String(),
		})
	}
}

func framePercent(blockH, frameH int) float32 {
	return 100 * float32(blockH) / float32(frameH)
}

func displayLosses(losses map[string]float32) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Loss", "Value"})
	for _, name := range []string{model.LossDino, model.LossDinoNN} {
		v, ok := losses[name]
		if !ok {
			continue
		}
		table.Append([]string{name, fmt.Sprintf("%.6f", v)})
	}
	table.Render()
	logger.Noticef("loss terms\n%s", buf.String())
}
