package main

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/gpuarray/internal/gpu"
	"github.com/fxnlabs/gpuarray/internal/registry"
	"github.com/urfave/cli/v2"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the selected runtime and its device",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-banner",
				Usage: "Skip the banner",
			},
		},
		Action: func(c *cli.Context) error {
			return withModule(c, func(m *gpu.Manager, _ *registry.Module) error {
				if !c.Bool("no-banner") {
					fmt.Fprintln(c.App.Writer, figure.NewFigure("gpuarray", "", true).String())
				}
				return printInfo(c.App.Writer, m)
			})
		},
	}
}

func printInfo(w io.Writer, m *gpu.Manager) error {
	info := m.GetDeviceInfo()
	fmt.Fprintf(w, "Runtime:            %s\n", m.RuntimeType())
	fmt.Fprintf(w, "Device:             %s\n", info.Name)
	fmt.Fprintf(w, "Compute capability: %s\n", info.ComputeCapability)
	fmt.Fprintf(w, "Driver version:     %s\n", info.DriverVersion)
	fmt.Fprintf(w, "Runtime version:    %s\n", info.RuntimeVersion)

	free, total, st := m.Runtime().MemInfo()
	if !st.OK() {
		fmt.Fprintf(w, "Memory:             unavailable (%s)\n", st)
		return nil
	}
	if total == 0 {
		fmt.Fprintln(w, "Memory:             unlimited")
		return nil
	}
	fmt.Fprintf(w, "Memory:             %s free of %s\n", formatBytes(free), formatBytes(total))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
