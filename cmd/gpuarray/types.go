package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fxnlabs/gpuarray/internal/gpu"
	"github.com/fxnlabs/gpuarray/internal/registry"
	"github.com/urfave/cli/v2"
)

func typesCommand() *cli.Command {
	return &cli.Command{
		Name:  "types",
		Usage: "List the registered array classes",
		Action: func(c *cli.Context) error {
			return withModule(c, func(_ *gpu.Manager, m *registry.Module) error {
				return printClasses(c.App.Writer, m)
			})
		},
	}
}

func printClasses(w io.Writer, m *registry.Module) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tTYPE\tFORMAT\tITEMSIZE")
	for _, class := range m.Classes() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", class.Name(), class.Label(), class.Format(), class.ItemSize())
	}
	return tw.Flush()
}
