package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/asset/scene/reader"
	"github.com/lumen-rt/lumen/preview"
	"github.com/lumen-rt/lumen/renderer"
	"github.com/lumen-rt/lumen/tracer"
	"github.com/lumen-rt/lumen/tracer/kernel"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Render a still frame.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	r, err := setupRenderer(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	checkpointFile := ctx.String("checkpoint")
	if resumeFile := ctx.String("resume"); resumeFile != "" {
		if err = r.LoadCheckpointFile(resumeFile); err != nil {
			return err
		}
	}

	// Stop rendering on SIGINT and keep whatever has been accumulated so far
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; ok {
			logger.Notice("interrupted; finishing current frame")
			r.Interrupt()
		}
	}()

	logger.Notice("rendering frame")
	start := time.Now()
	err = r.Render()
	if err != nil && !errors.Is(err, renderer.ErrInterrupted) {
		return err
	}
	logger.Noticef("rendered %d samples per pixel in %d ms", r.Samples(), time.Since(start).Nanoseconds()/1e6)

	// Display stats
	displayFrameStats(r.Stats())

	if checkpointFile != "" {
		if err := r.SaveCheckpointFile(checkpointFile); err != nil {
			return err
		}
		logger.Noticef("saved checkpoint to %s", checkpointFile)
	}

	return writeImage(ctx.String("out"), r.Image())
}

// Render the scene progressively and stream frames to browser clients.
func RenderPreview(ctx *cli.Context) error {
	setupLogging(ctx)

	r, err := setupRenderer(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := preview.NewServer(r)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(runCtx, ctx.String("listen"))
		cancel()
	}()

	loopOpts := preview.DefaultLoopOptions()
	loopOpts.MaxSamples = uint32(ctx.Int("spp"))
	loopOpts.FrameInterval = ctx.Duration("frame-interval")
	if err = srv.RenderLoop(runCtx, r, loopOpts); err != nil {
		return err
	}

	displayFrameStats(r.Stats())
	return <-serveErr
}

func setupRenderer(ctx *cli.Context) (*renderer.Progressive, error) {
	if ctx.NArg() != 1 {
		return nil, errors.New("missing scene file argument")
	}

	opts, err := rendererOptions(ctx)
	if err != nil {
		return nil, err
	}

	sc, err := reader.ReadScene(ctx.Args().First(), compilerOptions(ctx))
	if err != nil {
		return nil, err
	}
	if sc.Camera == nil {
		logger.Warning("scene does not define a camera; using default camera")
		sc.Camera = scene.NewCamera(45)
	}

	var scheduler tracer.BlockScheduler
	switch ctx.String("scheduler") {
	case "naive":
		scheduler = tracer.NaiveScheduler()
	case "perfect":
		scheduler = tracer.PerfectScheduler()
	default:
		return nil, fmt.Errorf("unsupported block scheduler %q", ctx.String("scheduler"))
	}

	r, err := renderer.NewProgressive(sc, scheduler, opts)
	if err != nil {
		return nil, err
	}
	logger.Infof("device buffers:\n%s", r.ResourceStats())
	return r, nil
}

func rendererOptions(ctx *cli.Context) (renderer.Options, error) {
	toneMapper, err := kernel.ParseToneMapper(ctx.String("tone-mapper"))
	if err != nil {
		return renderer.Options{}, err
	}

	opts := renderer.DefaultOptions()
	opts.FrameW = uint32(ctx.Int("width"))
	opts.FrameH = uint32(ctx.Int("height"))
	opts.SamplesPerPixel = uint32(ctx.Int("spp"))
	opts.Exposure = float32(ctx.Float64("exposure"))
	opts.ToneMapper = toneMapper
	opts.NumBounces = uint32(ctx.Int("bounces"))
	opts.MinBouncesForRR = uint32(ctx.Int("rr-bounces"))
	opts.NumTracers = ctx.Int("tracers")
	opts.WorkersPerTracer = ctx.Int("workers")
	opts.DeviceMemoryBudget = ctx.Int64("device-memory") << 20

	if opts.MinBouncesForRR == 0 || opts.MinBouncesForRR >= opts.NumBounces {
		logger.Notice("disabling RR for path elimination")
		opts.MinBouncesForRR = 0
	}

	return opts, opts.Validate()
}

// Encode img using the format implied by the file extension.
func writeImage(imgFile string, img image.Image) error {
	f, err := os.Create(imgFile)
	if err != nil {
		return err
	}

	start := time.Now()
	switch strings.ToLower(filepath.Ext(imgFile)) {
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("error encoding %s: %w", imgFile, err)
	}
	if err = f.Close(); err != nil {
		return err
	}

	logger.Noticef("wrote frame to %s in %d ms", imgFile, time.Since(start).Nanoseconds()/1e6)
	return nil
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Tracer", "Block height", "% of frame", "Render time"})
	for _, stat := range stats.Tracers {
		table.Append([]string{
			stat.Id,
			fmt.Sprintf("%d", stat.BlockH),
			fmt.Sprintf("%02.1f %%", stat.FramePercent),
			stat.RenderTime.String(),
		})
	}
	table.SetFooter([]string{"", fmt.Sprintf("%d spp", stats.Samples), "TOTAL", stats.AccumulatedTime.String()})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}
