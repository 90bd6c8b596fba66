package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/lumen-rt/lumen/types"
	"github.com/olekukonko/tablewriter"
)

// A compiled scene ready for upload to a tracing device.
type Scene struct {
	// Triangles are stored in BVH leaf order.
	Triangles []Triangle
	Materials []Material
	BvhNodes  []BvhNode

	// Analytic lights followed by emissive triangle lights.
	Lights []Light

	// Texture data referenced by material texture rects.
	Atlas *Atlas

	// Radiance returned for rays that escape the scene.
	Background types.Vec3

	// The scene camera.
	Camera *Camera
}

// Count lights by type.
func (sc *Scene) LightCount(lightType LightType) int {
	count := 0
	for _, light := range sc.Lights {
		if light.Type == lightType {
			count++
		}
	}
	return count
}

// Build a tabular representation of scene statistics.
func (sc *Scene) Stats() string {
	var texels []types.Vec4
	if sc.Atlas != nil {
		texels = sc.Atlas.Texels
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Count", "Size"})
	table.Append([]string{"Geometry", "---", "", fmtSize(sc.Triangles, sc.BvhNodes)})
	table.Append([]string{"", "Triangles", fmt.Sprint(len(sc.Triangles)), fmtSize(sc.Triangles)})
	table.Append([]string{"", "BVH nodes", fmt.Sprint(len(sc.BvhNodes)), fmtSize(sc.BvhNodes)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Lights", "---", fmt.Sprint(len(sc.Lights)), fmtSize(sc.Lights)})
	table.Append([]string{"", "Emissive", fmt.Sprint(sc.LightCount(EmissiveLight)), ""})
	table.Append([]string{"", "Directional", fmt.Sprint(sc.LightCount(DirectionalLight)), ""})
	table.Append([]string{"", "Point", fmt.Sprint(sc.LightCount(PointLight)), ""})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Materials", "---", fmt.Sprint(len(sc.Materials)), fmtSize(sc.Materials)})
	table.Append([]string{"Textures", "Atlas", atlasDims(sc.Atlas), fmtSize(texels)})
	table.SetFooter([]string{"Total", " ", " ", strings.TrimLeft(fmtSize(sc.Triangles, sc.BvhNodes, sc.Lights, sc.Materials, texels), " ")})

	table.Render()
	return buf.String()
}

func atlasDims(atlas *Atlas) string {
	if atlas == nil || len(atlas.Texels) == 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d", atlas.Width, atlas.Height)
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
