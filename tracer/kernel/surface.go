package kernel

import (
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

// The shading data for a ray hit.
type surface struct {
	position types.Vec3

	// Both normals face the side the ray arrived from.
	normal     types.Vec3
	geomNormal types.Vec3

	uv        types.Vec2
	frontFace bool

	triIndex uint32
	material *scene.Material
}

// Material inputs after texture lookups.
type shadingParams struct {
	albedo       types.Vec3
	metallic     float32
	roughness    float32
	transmission float32
	ior          float32
	emission     types.Vec3
}

func resolveSurface(sc *Scene, ray Ray, hit Hit) surface {
	tri := &sc.Triangles[hit.TriangleIndex]
	s := surface{
		position: ray.At(hit.T),
		uv:       interpolate2(&tri.UVs, hit.U, hit.V),
		triIndex: hit.TriangleIndex,
		material: &sc.Materials[tri.MaterialIndex],
	}

	ng, ok := unitVector(tri.EdgeCross())
	if !ok {
		ng = ray.Dir.Neg()
	}
	s.frontFace = ng.Dot(ray.Dir) < 0
	if !s.frontFace {
		ng = ng.Neg()
	}

	n, ok := unitVector(interpolate3(&tri.Normals, hit.U, hit.V))
	if !s.frontFace {
		n = n.Neg()
	}

	// Fall back to the geometric normal when interpolation flips the
	// normal to the other side of the surface.
	if !ok || n.Dot(ng) <= 0 {
		n = ng
	}

	s.geomNormal = ng
	s.normal = n

	if !s.material.NormalTex.Empty() && sc.Atlas != nil {
		s.normal = perturbNormal(sc.Atlas, tri, &s)
	}
	return s
}

// Apply a tangent-space normal map using a tangent frame derived from the
// triangle uv derivatives.
func perturbNormal(atlas *scene.Atlas, tri *scene.Triangle, s *surface) types.Vec3 {
	e1 := tri.Vertices[1].Sub(tri.Vertices[0])
	e2 := tri.Vertices[2].Sub(tri.Vertices[0])
	duv1 := tri.UVs[1].Sub(tri.UVs[0])
	duv2 := tri.UVs[2].Sub(tri.UVs[0])

	r := duv1[0]*duv2[1] - duv2[0]*duv1[1]
	if r > -1e-12 && r < 1e-12 {
		return s.normal
	}

	tangent := e1.Mul(duv2[1]).Sub(e2.Mul(duv1[1])).Mul(1.0 / r)
	tangent, ok := unitVector(tangent.Sub(s.normal.Mul(s.normal.Dot(tangent))))
	if !ok {
		return s.normal
	}
	bitangent := s.normal.Cross(tangent)
	if r < 0 {
		bitangent = bitangent.Neg()
	}

	texel := atlas.Sample(s.material.NormalTex, s.uv)
	tx, ty, tz := texel[0]*2-1, texel[1]*2-1, texel[2]*2-1

	n, ok := unitVector(tangent.Mul(tx).Add(bitangent.Mul(ty)).Add(s.normal.Mul(tz)))
	if !ok || n.Dot(s.geomNormal) <= 0 {
		return s.normal
	}
	return n
}

// Resolve the material inputs at a surface point.
func (sc *Scene) shadingParams(s *surface) shadingParams {
	mat := s.material
	p := shadingParams{
		albedo:       mat.BaseColor,
		metallic:     mat.Metallic,
		roughness:    mat.Roughness,
		transmission: mat.Transmission,
		ior:          mat.IOR,
	}

	if sc.Atlas != nil {
		if !mat.AlbedoTex.Empty() {
			p.albedo = p.albedo.MulVec(sc.Atlas.Sample(mat.AlbedoTex, s.uv).Vec3())
		}

		// Roughness lives in G and metalness in B
		if !mat.MetallicRoughnessTex.Empty() {
			mr := sc.Atlas.Sample(mat.MetallicRoughnessTex, s.uv)
			p.roughness *= mr[1]
			p.metallic *= mr[2]
			if p.roughness < scene.MinRoughness {
				p.roughness = scene.MinRoughness
			}
		}
	}

	p.emission = emittedRadiance(sc.Atlas, mat, s.uv)
	return p
}

// Get the radiance emitted by a material at uv.
func emittedRadiance(atlas *scene.Atlas, mat *scene.Material, uv types.Vec2) types.Vec3 {
	if !mat.IsEmissive() {
		return types.Vec3{}
	}

	base := mat.Emission
	if !mat.EmissiveTex.Empty() {
		if base.MaxComponent() <= 0 {
			base = types.Vec3{1, 1, 1}
		}
		base = base.MulVec(atlas.Sample(mat.EmissiveTex, uv).Vec3())
	}
	return base.Mul(mat.EmissiveStrength)
}

// Normalize v, reporting false for zero-length input.
func unitVector(v types.Vec3) (types.Vec3, bool) {
	l := v.Len()
	if l <= 0 || l != l {
		return types.Vec3{}, false
	}
	return v.Mul(1.0 / l), true
}
