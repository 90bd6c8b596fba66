package kernel

import (
	"math"

	"github.com/lumen-rt/lumen/types"
)

const (
	// Shadow rays stop this fraction short of the sampled light point.
	shadowEpsilon float32 = 1e-3

	// Ray origins are pushed off the surface by this amount (scaled by the
	// magnitude of the hit position).
	originOffset float32 = 1e-4

	// Russian roulette survival probability ceiling.
	maxSurvival float32 = 0.95

	// Materials with at least this much transmission skip light sampling.
	neeTransmissionCutoff float32 = 0.5
)

// Trace a path starting with ray and return its radiance estimate. The
// returned value never contains NaN or Inf components.
func Trace(sc *Scene, ray Ray, rng *Rng, opts Options) types.Vec3 {
	var radiance types.Vec3
	throughput := types.Vec3{1, 1, 1}

	// The pdf of the last bsdf sample and whether light sampling at the
	// previous vertex could also have produced the current direction.
	var prevPdf float32
	combineWithNEE := false

	for bounce := uint32(0); bounce < opts.MaxBounces; bounce++ {
		hit, found := Intersect(sc, ray, maxDistance)
		if !found {
			radiance = radiance.Add(throughput.MulVec(sc.Background))
			break
		}

		s := resolveSurface(sc, ray, hit)
		params := sc.shadingParams(&s)

		// Paths end at emitters
		if params.emission.MaxComponent() > 0 {
			weight := float32(1)
			if combineWithNEE {
				weight = powerHeuristic(prevPdf, emissiveLightPdf(sc, hit.TriangleIndex, ray.Dir, hit.T))
			}
			radiance = radiance.Add(throughput.MulVec(params.emission).Mul(weight))
			break
		}

		b := newBSDF(params)
		wo := ray.Dir.Neg()

		// The bsdf sample of the last vertex is never traced so its light
		// sample carries the full direct lighting estimate.
		lastBounce := bounce+1 == opts.MaxBounces
		nee := len(sc.Lights) > 0 && params.transmission < neeTransmissionCutoff
		if nee {
			radiance = radiance.Add(throughput.MulVec(sampleDirect(sc, &s, wo, &b, rng, !lastBounce)))
		}
		if lastBounce {
			break
		}

		bs, ok := b.sample(&s, wo, rng)
		if !ok {
			break
		}
		throughput = throughput.MulVec(bs.weight)
		prevPdf = bs.pdf
		combineWithNEE = nee && !bs.delta

		if opts.MinBouncesForRR > 0 && bounce >= opts.MinBouncesForRR {
			survival := minf(throughput.MaxComponent(), maxSurvival)
			if survival <= 0 || rng.Float() >= survival {
				break
			}
			throughput = throughput.Mul(1.0 / survival)
		}

		if !(throughput.MaxComponent() > 0) {
			break
		}
		ray = NewRay(offsetOrigin(s.position, s.geomNormal, bs.dir), bs.dir)
	}

	return sanitize(radiance)
}

// Trace a single sample for pixel (x, y) and blend it into the accumulation
// buffer as a streaming mean over frame.Index+1 samples.
func TracePixel(sc *Scene, frame *Frame, opts Options, x, y uint32) {
	rng := NewRng(x, y, frame.Index)
	ray := GenerateRay(&frame.Camera, x, y, frame.Width, frame.Height, &rng)
	sample := Trace(sc, ray, &rng, opts)

	index := y*frame.Width + x
	if frame.Index == 0 {
		frame.Accum[index] = sample.Vec4(1)
		return
	}
	prev := frame.Accum[index].Vec3()
	frame.Accum[index] = prev.Lerp(sample, 1.0/float32(frame.Index+1)).Vec4(1)
}

// Offset a ray origin along the geometric normal, towards the side dir points to.
func offsetOrigin(p, n, dir types.Vec3) types.Vec3 {
	scale := originOffset * maxf(1, maxf(absf(p[0]), maxf(absf(p[1]), absf(p[2]))))
	if dir.Dot(n) < 0 {
		scale = -scale
	}
	return p.Add(n.Mul(scale))
}

// Replace NaN and Inf components with 0.
func sanitize(v types.Vec3) types.Vec3 {
	for i := 0; i < 3; i++ {
		f := float64(v[i])
		if math.IsNaN(f) || math.IsInf(f, 0) {
			v[i] = 0
		}
	}
	return v
}
