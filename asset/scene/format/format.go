// Package format defines the layout of compiled scene archives.
package format

const (
	// Archive entry holding the gob-encoded scene.
	DataFile = "scene.bin"

	// Archive entry holding the JSON manifest.
	ManifestFile = "manifest.json"

	// Bumped whenever the encoded scene layout changes.
	Version = 1
)

// Manifest describes the contents of a compiled scene archive.
type Manifest struct {
	Version   int `json:"version"`
	Triangles int `json:"triangles"`
	BvhNodes  int `json:"bvh_nodes"`
	Materials int `json:"materials"`
	Lights    int `json:"lights"`
}
