package cmd

import (
	"errors"
	"strings"

	"github.com/lumen-rt/lumen/asset/compiler"
	"github.com/lumen-rt/lumen/asset/scene/reader"
	"github.com/lumen-rt/lumen/asset/scene/writer"
	"github.com/urfave/cli"
)

// Compile scene to binary format.
func CompileScene(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() == 0 {
		return errors.New("missing scene file argument")
	}

	opts := compilerOptions(ctx)
	for idx := 0; idx < ctx.NArg(); idx++ {
		sceneFile := ctx.Args().Get(idx)
		if !strings.HasSuffix(sceneFile, ".obj") {
			logger.Warningf("skipping unsupported file %s", sceneFile)
			continue
		}

		logger.Noticef("parsing and compiling scene: %s", sceneFile)
		sc, err := reader.ReadScene(sceneFile, opts)
		if err != nil {
			return err
		}

		// Display compiled scene info
		logger.Noticef("scene information:\n%s", sc.Stats())

		zipFile := strings.TrimSuffix(sceneFile, ".obj") + ".zip"
		if err = writer.WriteScene(sc, zipFile); err != nil {
			return err
		}
		logger.Noticef("wrote compiled scene to %s", zipFile)
	}

	return nil
}

// Display compiled scene info.
func ShowSceneInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	sc, err := reader.ReadScene(ctx.Args().First(), compilerOptions(ctx))
	if err != nil {
		return err
	}

	// Display compiled scene info
	logger.Noticef("scene information:\n%s", sc.Stats())

	return nil
}

// Build compiler options from the bvh flags.
func compilerOptions(ctx *cli.Context) compiler.Options {
	opts := compiler.DefaultOptions()
	if ctx.IsSet("max-leaf") {
		opts.Bvh.MaxTrianglesPerLeaf = ctx.Int("max-leaf")
	}
	if ctx.IsSet("bins") {
		opts.Bvh.BinCount = ctx.Int("bins")
	}
	return opts
}
