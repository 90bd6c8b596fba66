package reader

import (
	"archive/zip"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/lumen-rt/lumen/asset"
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/asset/scene/format"
	"github.com/lumen-rt/lumen/log"
)

type zipSceneReader struct {
	logger log.Logger
}

// Create a new zip scene reader
func newZipSceneReader() *zipSceneReader {
	return &zipSceneReader{
		logger: log.New("zip reader"),
	}
}

// Read scene definition from zip file.
func (p *zipSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	p.logger.Noticef(`parsing compiled scene from "%s"`, sceneRes.Path())
	start := time.Now()

	// zip package requires a reader implementing ReaderAt. To work around
	// this requirement we read the entire zip file into memory and create
	// a reader from the bytes package that implements ReaderAt
	data, err := io.ReadAll(sceneRes)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	var sc *scene.Scene
	var manifest *format.Manifest
	for _, f := range zr.File {
		switch f.Name {
		case format.DataFile, format.ManifestFile:
		default:
			p.logger.Warningf("unknown file %s in scene zip file; skipping", f.Name)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		if f.Name == format.DataFile {
			sc = &scene.Scene{}
			err = gob.NewDecoder(rc).Decode(sc)
		} else {
			manifest = &format.Manifest{}
			err = json.NewDecoder(rc).Decode(manifest)
		}
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zipSceneReader: failed to load %s: %w", f.Name, err)
		}
	}

	if sc == nil {
		return nil, fmt.Errorf("zipSceneReader: archive does not contain %s", format.DataFile)
	}
	if manifest != nil {
		if manifest.Version != format.Version {
			return nil, fmt.Errorf("zipSceneReader: unsupported scene version %d; expected %d", manifest.Version, format.Version)
		}
		if manifest.Triangles != len(sc.Triangles) || manifest.BvhNodes != len(sc.BvhNodes) {
			return nil, fmt.Errorf("zipSceneReader: scene data does not match manifest")
		}
	}

	p.logger.Noticef("loaded scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return sc, nil
}
