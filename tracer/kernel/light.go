package kernel

import (
	"math"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

// A point sampled on a light source as seen from a shading point.
type lightSample struct {
	dir      types.Vec3
	dist     float32
	radiance types.Vec3

	// Solid-angle pdf including the light selection probability. For delta
	// lights this is just the selection probability.
	pdf   float32
	delta bool
}

// Pick one light uniformly and sample it from point p.
func sampleLight(sc *Scene, p types.Vec3, rng *Rng) (lightSample, bool) {
	count := len(sc.Lights)
	if count == 0 {
		return lightSample{}, false
	}

	index := int(rng.Float() * float32(count))
	if index >= count {
		index = count - 1
	}
	light := &sc.Lights[index]
	selectPdf := 1.0 / float32(count)
	u1 := rng.Float()
	u2 := rng.Float()

	switch light.Type {
	case scene.EmissiveLight:
		return sampleEmissiveTriangle(sc, light.TriangleIndex, p, selectPdf, u1, u2)
	case scene.DirectionalLight:
		dir, ok := unitVector(light.Position.Neg())
		if !ok {
			return lightSample{}, false
		}
		return lightSample{
			dir:      dir,
			dist:     maxDistance,
			radiance: light.Color.Mul(light.Intensity),
			pdf:      selectPdf,
			delta:    true,
		}, true
	case scene.PointLight:
		pos := light.Position
		if light.Radius > 0 {
			pos = pos.Add(uniformSampleSphere(u1, u2).Mul(light.Radius))
		}
		d := pos.Sub(p)
		dist2 := d.LenSq()
		if dist2 <= 0 {
			return lightSample{}, false
		}
		dist := float32(math.Sqrt(float64(dist2)))
		return lightSample{
			dir:      d.Mul(1.0 / dist),
			dist:     dist,
			radiance: light.Color.Mul(light.Intensity / dist2),
			pdf:      selectPdf,
			delta:    true,
		}, true
	}

	return lightSample{}, false
}

// Sample a uniformly distributed point on an emissive triangle.
func sampleEmissiveTriangle(sc *Scene, triIndex uint32, p types.Vec3, selectPdf, u1, u2 float32) (lightSample, bool) {
	tri := &sc.Triangles[triIndex]
	area := tri.Area()
	lightNormal, ok := unitVector(tri.EdgeCross())
	if !ok || area <= 0 {
		return lightSample{}, false
	}

	su := float32(math.Sqrt(float64(u1)))
	b1 := su * (1 - u2)
	b2 := su * u2
	pos := interpolate3(&tri.Vertices, b1, b2)

	d := pos.Sub(p)
	dist2 := d.LenSq()
	if dist2 <= 0 {
		return lightSample{}, false
	}
	dist := float32(math.Sqrt(float64(dist2)))
	dir := d.Mul(1.0 / dist)

	cosLight := absf(lightNormal.Dot(dir))
	if cosLight < 1e-6 {
		return lightSample{}, false
	}

	mat := &sc.Materials[tri.MaterialIndex]
	return lightSample{
		dir:      dir,
		dist:     dist,
		radiance: emittedRadiance(sc.Atlas, mat, interpolate2(&tri.UVs, b1, b2)),
		pdf:      selectPdf * dist2 / (cosLight * area),
	}, true
}

// Get the pdf with which sampleLight would pick the direction dir towards a
// point on emissive triangle triIndex at distance dist.
func emissiveLightPdf(sc *Scene, triIndex uint32, dir types.Vec3, dist float32) float32 {
	if len(sc.Lights) == 0 {
		return 0
	}
	tri := &sc.Triangles[triIndex]
	area := tri.Area()
	lightNormal, ok := unitVector(tri.EdgeCross())
	if !ok || area <= 0 {
		return 0
	}
	cosLight := absf(lightNormal.Dot(dir))
	if cosLight < 1e-6 {
		return 0
	}
	return dist * dist / (cosLight * area * float32(len(sc.Lights)))
}

// Estimate direct lighting at s with a single light sample. If mis is set the
// sample is weighted against bsdf sampling with the power heuristic.
func sampleDirect(sc *Scene, s *surface, wo types.Vec3, b *bsdf, rng *Rng, mis bool) types.Vec3 {
	ls, ok := sampleLight(sc, s.position, rng)
	if !ok {
		return types.Vec3{}
	}

	cos := s.normal.Dot(ls.dir)
	if cos <= 0 || ls.dir.Dot(s.geomNormal) <= 0 {
		return types.Vec3{}
	}

	f, bsdfPdf := b.eval(s.normal, wo, ls.dir)
	if f.MaxComponent() <= 0 || ls.radiance.MaxComponent() <= 0 {
		return types.Vec3{}
	}

	shadowRay := NewRay(offsetOrigin(s.position, s.geomNormal, ls.dir), ls.dir)
	if Occluded(sc, shadowRay, ls.dist*(1-shadowEpsilon)) {
		return types.Vec3{}
	}

	weight := float32(1)
	if mis && !ls.delta {
		weight = powerHeuristic(ls.pdf, bsdfPdf)
	}
	return f.MulVec(ls.radiance).Mul(cos * weight / maxf(ls.pdf, pdfEpsilon))
}

// Power heuristic (beta = 2) weight for a sample drawn from the strategy with pdf fPdf.
func powerHeuristic(fPdf, gPdf float32) float32 {
	f2 := fPdf * fPdf
	g2 := gPdf * gPdf
	if f2+g2 <= 0 {
		return 0
	}
	return f2 / (f2 + g2)
}

func uniformSampleSphere(u1, u2 float32) types.Vec3 {
	z := 1 - 2*u1
	r := float32(math.Sqrt(math.Max(0, float64(1-z*z))))
	phi := 2 * math.Pi * float64(u2)
	return types.Vec3{r * float32(math.Cos(phi)), r * float32(math.Sin(phi)), z}
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
