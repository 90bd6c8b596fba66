package writer

import (
	"archive/zip"
	"encoding/gob"
	"encoding/json"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/asset/scene/format"
	"github.com/lumen-rt/lumen/log"
)

type zipSceneWriter struct {
	logger log.Logger
	target io.Writer
	name   string
}

// Create a new zip scene writer
func newZipSceneWriter(target io.Writer, name string) *zipSceneWriter {
	return &zipSceneWriter{
		logger: log.New("zip writer"),
		target: target,
		name:   name,
	}
}

// Write scene definition to zip file. Entries are compressed with zstd.
func (w *zipSceneWriter) Write(sc *scene.Scene) error {
	w.logger.Noticef("writing compressed scene to %s", w.name)
	start := time.Now()

	zw := zip.NewWriter(w.target)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedBetterCompression)))

	mw, err := zw.CreateHeader(&zip.FileHeader{Name: format.ManifestFile, Method: zip.Deflate})
	if err != nil {
		return err
	}
	err = json.NewEncoder(mw).Encode(format.Manifest{
		Version:   format.Version,
		Triangles: len(sc.Triangles),
		BvhNodes:  len(sc.BvhNodes),
		Materials: len(sc.Materials),
		Lights:    len(sc.Lights),
	})
	if err != nil {
		return err
	}

	cw, err := zw.CreateHeader(&zip.FileHeader{Name: format.DataFile, Method: zstd.ZipMethodWinZip})
	if err != nil {
		return err
	}
	err = gob.NewEncoder(cw).Encode(sc)
	if err != nil {
		return err
	}

	if err = zw.Close(); err != nil {
		return err
	}

	w.logger.Noticef("compressed scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}
