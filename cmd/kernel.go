package cmd

import (
	"os"
	"strings"

	"github.com/lumen-rt/lumen/tracer/device"
	"github.com/urfave/cli"
)

// Export the compute kernel as WGSL source or as a SPIR-V module.
func ExportKernel(ctx *cli.Context) error {
	setupLogging(ctx)

	outFile := ctx.String("out")
	if strings.HasSuffix(outFile, ".wgsl") {
		if err := os.WriteFile(outFile, []byte(device.KernelSource()), 0644); err != nil {
			return err
		}
		logger.Noticef("wrote kernel source to %s", outFile)
		return nil
	}

	words, err := device.CompileKernel()
	if err != nil {
		return err
	}
	if err = os.WriteFile(outFile, device.SPIRVBytes(words), 0644); err != nil {
		return err
	}
	logger.Noticef("wrote %d word SPIR-V module to %s", len(words), outFile)
	return nil
}
