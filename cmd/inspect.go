package cmd

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Display the optimizer parameter groups of a checkpoint.
func Inspect(ctx *cli.Context) error {
	setupLogging(ctx)

	m, err := loadModel(ctx, nil)
	if err != nil {
		return err
	}

	groups := m.ParamGroups()
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Group", "Tensor", "Shape", "Requires grad"})
	var total int
	for _, name := range names {
		for _, t := range groups[name] {
			table.Append([]string{name, t.Name(), fmt.Sprintf("%dx%d", t.Rows(), t.Cols()), fmt.Sprintf("%t", t.RequiresGrad())})
			total += t.Rows() * t.Cols()
		}
	}
	table.SetFooter([]string{"", "", "TOTAL", fmt.Sprintf("%d", total)})
	table.Render()

	logger.Noticef("checkpoint %s: %d gaussians at step %d\n%s", ctx.Args().First(), m.Gaussians().Len(), m.Step(), buf.String())
	return nil
}
