package texture

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/lumen-rt/lumen/asset"
	"github.com/lumen-rt/lumen/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type ColorSpace uint8

// Colour space of the stored texel data. Colour maps (albedo, emissive) are
// authored in sRGB while data maps (normals, metallic-roughness) are linear.
const (
	Linear ColorSpace = iota
	SRGB
)

// A decoded texture with linear RGBA texels stored in row-major order.
type Texture struct {
	Width  uint32
	Height uint32
	Texels []types.Vec4
}

// Create a new texture from a Resource. Texels are converted to linear space.
func New(res *asset.Resource, space ColorSpace) (*Texture, error) {
	img, format, err := image.Decode(res)
	if err != nil {
		return nil, fmt.Errorf("texture: could not decode %s: %w", res.Path(), err)
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("texture: %s (%s) has no pixels", res.Path(), format)
	}

	tex := &Texture{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Texels: make([]types.Vec4, bounds.Dx()*bounds.Dy()),
	}

	offset := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			texel := types.Vec4{
				float32(c.R) / 0xffff,
				float32(c.G) / 0xffff,
				float32(c.B) / 0xffff,
				float32(c.A) / 0xffff,
			}
			if space == SRGB {
				texel[0] = SRGBToLinear(texel[0])
				texel[1] = SRGBToLinear(texel[1])
				texel[2] = SRGBToLinear(texel[2])
			}
			tex.Texels[offset] = texel
			offset++
		}
	}

	return tex, nil
}

// Convert an sRGB encoded channel value to linear space.
func SRGBToLinear(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return float32(math.Pow((float64(v)+0.055)/1.055, 2.4))
}
