package kernel

import (
	"math"

	"github.com/lumen-rt/lumen/types"
)

const (
	invPi float32 = 1.0 / math.Pi

	// Lower bound applied to every pdf used as a divisor.
	pdfEpsilon float32 = 1e-6
)

// A material instance at a surface point: a probabilistic mixture of a
// diffuse lobe, a GGX metallic lobe and a dielectric transmission lobe.
type bsdf struct {
	albedo types.Vec3
	f0     types.Vec3
	alpha  float32
	ior    float32

	diffuseWeight      float32
	specularWeight     float32
	transmissionWeight float32
}

// A direction sampled from the bsdf.
type bsdfSample struct {
	dir types.Vec3

	// f * cos / pdf
	weight types.Vec3

	// The mixture pdf of dir; for delta lobes this is the lobe selection probability.
	pdf   float32
	delta bool
}

func newBSDF(p shadingParams) bsdf {
	m := p.metallic
	t := p.transmission
	return bsdf{
		albedo:             p.albedo,
		f0:                 types.Vec3{0.04, 0.04, 0.04}.Lerp(p.albedo, m),
		alpha:              p.roughness * p.roughness,
		ior:                p.ior,
		diffuseWeight:      (1 - m) * (1 - t),
		specularWeight:     m,
		transmissionWeight: (1 - m) * t,
	}
}

// Evaluate the non-delta lobes for the light direction wi. Both wo and wi
// point away from the surface. Returns the bsdf value and the mixture pdf
// that sample would have produced wi with.
func (b *bsdf) eval(n, wo, wi types.Vec3) (types.Vec3, float32) {
	nDotL := n.Dot(wi)
	nDotV := n.Dot(wo)
	if nDotL <= 0 || nDotV <= 0 {
		return types.Vec3{}, 0
	}

	f := b.albedo.Mul(b.diffuseWeight * invPi)
	pdf := b.diffuseWeight * nDotL * invPi

	if b.specularWeight > 0 {
		h, ok := unitVector(wo.Add(wi))
		if ok {
			nDotH := maxf(n.Dot(h), 0)
			vDotH := maxf(wo.Dot(h), 0)
			d := ggxD(nDotH, b.alpha)
			g := smithG1(nDotV, b.alpha) * smithG1(nDotL, b.alpha)
			fr := schlickFresnel(b.f0, vDotH)

			f = f.Add(fr.Mul(b.specularWeight * d * g / (4 * nDotV * nDotL)))
			if vDotH > 0 {
				pdf += b.specularWeight * d * nDotH / (4 * vDotH)
			}
		}
	}

	return f, pdf
}

// Pick a lobe and sample a continuation direction from it.
func (b *bsdf) sample(s *surface, wo types.Vec3, rng *Rng) (bsdfSample, bool) {
	lobe := rng.Float()
	u1 := rng.Float()
	u2 := rng.Float()

	if b.transmissionWeight > 0 && lobe >= b.diffuseWeight+b.specularWeight {
		return b.sampleTransmission(s, wo, u1), true
	}

	n := s.normal
	var wi types.Vec3
	if lobe < b.diffuseWeight || b.specularWeight <= 0 {
		wi = cosineSampleHemisphere(n, u1, u2)
	} else {
		h := sampleGGX(n, b.alpha, u1, u2)
		wi = reflect(wo, h)
	}

	cos := n.Dot(wi)
	if cos <= 0 || wi.Dot(s.geomNormal) <= 0 {
		return bsdfSample{}, false
	}

	f, pdf := b.eval(n, wo, wi)
	if pdf <= 0 {
		return bsdfSample{}, false
	}

	return bsdfSample{
		dir:    wi,
		weight: f.Mul(cos / maxf(pdf, pdfEpsilon)),
		pdf:    pdf,
	}, true
}

// Sample the smooth dielectric lobe: reflect with the Fresnel probability,
// otherwise refract. The lobe selection probability cancels with the lobe
// weight so the returned weight is the lobe tint.
func (b *bsdf) sampleTransmission(s *surface, wo types.Vec3, u float32) bsdfSample {
	n := s.normal
	out := bsdfSample{
		pdf:    b.transmissionWeight,
		delta:  true,
		weight: types.Vec3{1, 1, 1},
	}

	eta := b.ior
	if s.frontFace {
		eta = 1.0 / b.ior
	}

	cosI := clampf(n.Dot(wo), 0, 1)
	sin2T := eta * eta * (1 - cosI*cosI)
	if sin2T >= 1 {
		// Total internal reflection
		out.dir = reflect(wo, n)
		return out
	}
	cosT := float32(math.Sqrt(float64(1 - sin2T)))

	r0 := (1 - b.ior) / (1 + b.ior)
	r0 *= r0
	cos := cosI
	if !s.frontFace {
		cos = cosT
	}
	fresnel := r0 + (1-r0)*pow5(1-cos)

	if u < fresnel {
		out.dir = reflect(wo, n)
		return out
	}

	dir, ok := unitVector(wo.Neg().Mul(eta).Add(n.Mul(eta*cosI - cosT)))
	if !ok {
		out.dir = reflect(wo, n)
		return out
	}
	out.dir = dir
	out.weight = b.albedo
	return out
}

// GGX normal distribution.
func ggxD(nDotH, alpha float32) float32 {
	a2 := alpha * alpha
	d := nDotH*nDotH*(a2-1) + 1
	return a2 / (math.Pi * d * d)
}

// Smith masking term for GGX.
func smithG1(nDotX, alpha float32) float32 {
	a2 := alpha * alpha
	return 2 * nDotX / (nDotX + float32(math.Sqrt(float64(a2+(1-a2)*nDotX*nDotX))))
}

func schlickFresnel(f0 types.Vec3, vDotH float32) types.Vec3 {
	k := pow5(1 - vDotH)
	return types.Vec3{
		f0[0] + (1-f0[0])*k,
		f0[1] + (1-f0[1])*k,
		f0[2] + (1-f0[2])*k,
	}
}

// Mirror v (pointing away from the surface) about n.
func reflect(v, n types.Vec3) types.Vec3 {
	return n.Mul(2 * v.Dot(n)).Sub(v)
}

func cosineSampleHemisphere(n types.Vec3, u1, u2 float32) types.Vec3 {
	r := float32(math.Sqrt(float64(u1)))
	phi := 2 * math.Pi * float64(u2)
	z := float32(math.Sqrt(math.Max(0, float64(1-u1))))
	return toWorld(n, r*float32(math.Cos(phi)), r*float32(math.Sin(phi)), z)
}

// Sample a GGX microfacet normal around n.
func sampleGGX(n types.Vec3, alpha, u1, u2 float32) types.Vec3 {
	phi := 2 * math.Pi * float64(u1)
	cosTheta := float32(math.Sqrt(float64((1 - u2) / (1 + (alpha*alpha-1)*u2))))
	sinTheta := float32(math.Sqrt(math.Max(0, float64(1-cosTheta*cosTheta))))
	return toWorld(n, sinTheta*float32(math.Cos(phi)), sinTheta*float32(math.Sin(phi)), cosTheta)
}

// Transform a direction from the tangent frame of n to world space.
func toWorld(n types.Vec3, x, y, z float32) types.Vec3 {
	t, b := orthonormalBasis(n)
	return t.Mul(x).Add(b.Mul(y)).Add(n.Mul(z))
}

// Build a tangent frame around a unit vector (Duff et al. 2017).
func orthonormalBasis(n types.Vec3) (types.Vec3, types.Vec3) {
	sign := float32(1.0)
	if n[2] < 0 {
		sign = -1.0
	}
	a := -1.0 / (sign + n[2])
	b := n[0] * n[1] * a
	return types.Vec3{1 + sign*n[0]*n[0]*a, sign * b, -sign * n[0]},
		types.Vec3{b, sign + n[1]*n[1]*a, -n[1]}
}

func pow5(v float32) float32 {
	v2 := v * v
	return v2 * v2 * v
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func clampf(v, lo, hi float32) float32 {
	return minf(maxf(v, lo), hi)
}
