package main

import (
	"os"
	"time"

	"github.com/lumen-rt/lumen/cmd"
	"github.com/lumen-rt/lumen/log"
	"github.com/urfave/cli"
)

var logger = log.New("lumen")

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	sceneFlags := []cli.Flag{
		cli.IntFlag{
			Name:   "max-leaf",
			Value:  4,
			Usage:  "max triangles per BVH leaf when compiling wavefront scenes",
			EnvVar: "LUMEN_BVH_MAX_LEAF",
		},
		cli.IntFlag{
			Name:   "bins",
			Value:  12,
			Usage:  "number of SAH bins per axis when compiling wavefront scenes",
			EnvVar: "LUMEN_BVH_BINS",
		},
	}

	renderFlags := append([]cli.Flag{
		cli.IntFlag{
			Name:   "width",
			Value:  512,
			Usage:  "frame width",
			EnvVar: "LUMEN_WIDTH",
		},
		cli.IntFlag{
			Name:   "height",
			Value:  512,
			Usage:  "frame height",
			EnvVar: "LUMEN_HEIGHT",
		},
		cli.Float64Flag{
			Name:   "exposure",
			Value:  1.0,
			Usage:  "camera exposure for tone-mapping",
			EnvVar: "LUMEN_EXPOSURE",
		},
		cli.StringFlag{
			Name:   "tone-mapper",
			Value:  "reinhard",
			Usage:  "tone mapping operator (reinhard, aces)",
			EnvVar: "LUMEN_TONE_MAPPER",
		},
		cli.IntFlag{
			Name:   "bounces",
			Value:  8,
			Usage:  "max path segments",
			EnvVar: "LUMEN_BOUNCES",
		},
		cli.IntFlag{
			Name:   "rr-bounces",
			Value:  2,
			Usage:  "min bounces before applying russian roulette; 0 disables russian roulette",
			EnvVar: "LUMEN_RR_BOUNCES",
		},
		cli.IntFlag{
			Name:   "tracers",
			Value:  1,
			Usage:  "number of cpu tracers",
			EnvVar: "LUMEN_TRACERS",
		},
		cli.IntFlag{
			Name:   "workers",
			Value:  0,
			Usage:  "goroutines per tracer (0 = one per cpu)",
			EnvVar: "LUMEN_WORKERS",
		},
		cli.StringFlag{
			Name:   "scheduler",
			Value:  "perfect",
			Usage:  "block scheduler (naive, perfect)",
			EnvVar: "LUMEN_SCHEDULER",
		},
		cli.Int64Flag{
			Name:   "device-memory",
			Value:  1024,
			Usage:  "device memory budget in MiB (0 = unlimited)",
			EnvVar: "LUMEN_DEVICE_MEMORY",
		},
	}, sceneFlags...)

	app := cli.NewApp()
	app.Name = "lumen"
	app.Usage = "render scenes using progressive path tracing"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "compile",
			Usage: "compile text scene representation into a binary compressed format",
			Description: `
Parse a scene definition from a wavefront obj file, build a BVH tree to optimize
ray intersection tests and package scene elements in a device-friendly format.

The optimized scene data is then written to a zip archive which can be supplied
as an argument to the render command.`,
			ArgsUsage: "scene_file1.obj scene_file2.obj ...",
			Flags:     sceneFlags,
			Action:    cmd.CompileScene,
		},
		{
			Name:      "info",
			Usage:     "display scene statistics",
			ArgsUsage: "scene_file",
			Flags:     sceneFlags,
			Action:    cmd.ShowSceneInfo,
		},
		{
			Name:   "list-devices",
			Usage:  "list available tracing devices",
			Action: cmd.ListDevices,
		},
		{
			Name:  "kernel",
			Usage: "export the compute kernel",
			Description: `
Write the compute kernel as WGSL source when the output file has a .wgsl
extension or compile it to a SPIR-V module otherwise.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Value: "kernel.spv",
					Usage: "output file",
				},
			},
			Action: cmd.ExportKernel,
		},
		{
			Name:  "render",
			Usage: "render scene",
			Subcommands: []cli.Command{
				{
					Name:  "frame",
					Usage: "render single frame",
					Description: `
Render a single frame by accumulating the requested number of samples per pixel.
Sending SIGINT stops rendering after the current sample and keeps the partial
result. Checkpoints allow long renders to be resumed later.`,
					ArgsUsage: "scene_file",
					Flags: append([]cli.Flag{
						cli.IntFlag{
							Name:   "spp",
							Value:  16,
							Usage:  "samples per pixel (0 = until interrupted)",
							EnvVar: "LUMEN_SPP",
						},
						cli.StringFlag{
							Name:  "out, o",
							Value: "frame.png",
							Usage: "image filename for the rendered frame (png, bmp or tiff)",
						},
						cli.StringFlag{
							Name:  "checkpoint",
							Usage: "save accumulation state to this file when rendering stops",
						},
						cli.StringFlag{
							Name:  "resume",
							Usage: "resume rendering from a checkpoint file",
						},
					}, renderFlags...),
					Action: cmd.RenderFrame,
				},
				{
					Name:  "preview",
					Usage: "render an interactive view of the scene in the browser",
					Description: `
Start a web server that streams progressively refined frames over a websocket
and accepts camera and display commands from connected viewers.`,
					ArgsUsage: "scene_file",
					Flags: append([]cli.Flag{
						cli.IntFlag{
							Name:   "spp",
							Value:  0,
							Usage:  "stop refining after this many samples per pixel (0 = never)",
							EnvVar: "LUMEN_SPP",
						},
						cli.StringFlag{
							Name:   "listen",
							Value:  "127.0.0.1:8080",
							Usage:  "address for the preview web server",
							EnvVar: "LUMEN_LISTEN",
						},
						cli.DurationFlag{
							Name:   "frame-interval",
							Value:  100 * time.Millisecond,
							Usage:  "min time between frames sent to viewers",
							EnvVar: "LUMEN_FRAME_INTERVAL",
						},
					}, renderFlags...),
					Action: cmd.RenderPreview,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
