package reader

import (
	"fmt"

	"github.com/lumen-rt/lumen/asset"
	"github.com/lumen-rt/lumen/asset/compiler"
	"github.com/lumen-rt/lumen/asset/compiler/input"
	"github.com/lumen-rt/lumen/asset/scene"
)

// The Reader interface is implemented by all scene readers.
type Reader interface {
	// Read scene definition from a resource.
	Read(*asset.Resource) (*scene.Scene, error)
}

// Read scene from file. Wavefront scenes are compiled using the supplied
// options; compiled zip scenes are loaded as-is.
func ReadScene(filename string, opts compiler.Options) (*scene.Scene, error) {
	res, err := asset.NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	// Select reader based on file extension
	var reader Reader
	switch res.Ext() {
	case ".obj":
		reader = newWavefrontReader(opts)
	case ".zip":
		reader = newZipSceneReader()
	default:
		return nil, fmt.Errorf("readScene: unsupported file format %q", res.Ext())
	}
	return reader.Read(res)
}

// Parse a wavefront scene into a scene graph without compiling it.
func ReadWavefront(res *asset.Resource) (*input.Scene, error) {
	return newWavefrontReader(compiler.DefaultOptions()).ReadRaw(res)
}
