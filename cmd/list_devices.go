package cmd

import (
	"bytes"
	"fmt"
	"runtime"

	"github.com/lumen-rt/lumen/tracer/device"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// List the devices available for tracing.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var kernelStatus string
	if words, err := device.CompileKernel(); err != nil {
		kernelStatus = fmt.Sprintf("unavailable (%v)", err)
	} else {
		kernelStatus = fmt.Sprintf("compiled (%d words)", len(words))
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Device", "Type", "Workers", "Memory budget", "Compute kernel"})
	table.Append([]string{
		"host",
		"cpu",
		fmt.Sprint(runtime.NumCPU()),
		fmt.Sprintf("%d MiB", device.DefaultMemoryBudget>>20),
		kernelStatus,
	})
	table.Render()

	logger.Noticef("available devices\n%s", buf.String())
	return nil
}
