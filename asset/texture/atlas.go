package texture

import (
	"math"
	"sort"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

// Packer collects textures and packs them into a single atlas using a shelf
// allocator. Atlas dimensions are powers of two so that normalized texel
// coordinates are exact.
type Packer struct {
	textures []*Texture
}

// Queue a texture for packing and return its index.
func (p *Packer) Add(tex *Texture) int {
	p.textures = append(p.textures, tex)
	return len(p.textures) - 1
}

// Number of queued textures.
func (p *Packer) Len() int {
	return len(p.textures)
}

type placement struct {
	x, y uint32
}

// Pack all queued textures. The returned rects are indexed by the value
// returned by Add. If no textures were queued Pack returns a nil atlas.
func (p *Packer) Pack() (*scene.Atlas, []scene.TextureRect) {
	if len(p.textures) == 0 {
		return nil, nil
	}

	// Sort by decreasing height to keep shelves tight
	order := make([]int, len(p.textures))
	var area float64
	var maxW uint32
	for index, tex := range p.textures {
		order[index] = index
		area += float64(tex.Width) * float64(tex.Height)
		if tex.Width > maxW {
			maxW = tex.Width
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return p.textures[order[i]].Height > p.textures[order[j]].Height
	})

	width := nextPow2(uint32(math.Ceil(math.Sqrt(area))))
	if width < maxW {
		width = nextPow2(maxW)
	}

	placements := make([]placement, len(p.textures))
	var shelfX, shelfY, shelfH uint32
	for _, texIndex := range order {
		tex := p.textures[texIndex]
		if shelfX+tex.Width > width {
			shelfY += shelfH
			shelfX, shelfH = 0, 0
		}
		placements[texIndex] = placement{x: shelfX, y: shelfY}
		shelfX += tex.Width
		if tex.Height > shelfH {
			shelfH = tex.Height
		}
	}
	height := nextPow2(shelfY + shelfH)

	atlas := &scene.Atlas{
		Width:  width,
		Height: height,
		Texels: make([]types.Vec4, width*height),
	}
	rects := make([]scene.TextureRect, len(p.textures))
	for texIndex, tex := range p.textures {
		pl := placements[texIndex]
		for row := uint32(0); row < tex.Height; row++ {
			dst := (pl.y+row)*width + pl.x
			copy(atlas.Texels[dst:dst+tex.Width], tex.Texels[row*tex.Width:(row+1)*tex.Width])
		}

		rects[texIndex] = scene.TextureRect{
			Origin: types.Vec2{float32(pl.x) / float32(width), float32(pl.y) / float32(height)},
			Size:   types.Vec2{float32(tex.Width) / float32(width), float32(tex.Height) / float32(height)},
		}
	}

	return atlas, rects
}

func nextPow2(v uint32) uint32 {
	out := uint32(1)
	for out < v {
		out <<= 1
	}
	return out
}
