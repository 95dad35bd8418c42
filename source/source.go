// Package source implements the launch-side source models of
// spec.md §4.8: filling a photon's initial position, direction, and
// weight, and determining its initial enclosing element via
// barycentric search.
package source

import (
	"math"

	"github.com/pthm-cable/mmc/config"
	"github.com/pthm-cable/mmc/mesh"
	"github.com/pthm-cable/mmc/reflect"
	"github.com/pthm-cable/mmc/rng"
)

// BaryTolerance is the slack allowed on barycentric coordinates when
// deciding a point lies inside a candidate tet (P5: "all b_i >= -1e-4").
const BaryTolerance = 1e-4

type vec = [3]float64

func sub(a, b vec) vec { return vec{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func add(a, b vec) vec { return vec{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func scale(a vec, s float64) vec { return vec{a[0] * s, a[1] * s, a[2] * s} }
func dot(a, b vec) float64      { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func normalize(v vec) vec {
	n := math.Sqrt(dot(v, v))
	if n == 0 {
		return v
	}
	return scale(v, 1/n)
}

// anyOrthonormal returns two unit vectors orthogonal to v and to each
// other, used to build a local frame for footprint/cone sampling.
func anyOrthonormal(v vec) (e1, e2 vec) {
	up := vec{0, 0, 1}
	if math.Abs(v[2]) > 0.999 {
		up = vec{1, 0, 0}
	}
	e1 = normalize(vec{
		up[1]*v[2] - up[2]*v[1],
		up[2]*v[0] - up[0]*v[2],
		up[0]*v[1] - up[1]*v[0],
	})
	e2 = vec{
		v[1]*e1[2] - v[2]*e1[1],
		v[2]*e1[0] - v[0]*e1[2],
		v[0]*e1[1] - v[1]*e1[0],
	}
	return e1, e2
}

// Photon is the launch outcome: initial position, direction, weight,
// and the enclosing element found by barycentric search.
type Photon struct {
	P, V [3]float64
	W    float64
	Elem int32
	Bary [4]float64
}

// Launch samples a photon per the source descriptor and locates its
// starting element among src.Elems. ok is false if no candidate
// element contains the sampled position (§4.7 step 1: "if ... no
// enclosing element found, terminate").
func Launch(src *config.Source, m *mesh.Mesh, s *rng.Stream, specular config.SpecularMode, nOut float64, startElem int32, startBary [4]float64) (ph Photon, ok bool) {
	pos := vec{src.Pos.X, src.Pos.Y, src.Pos.Z}
	dir := vec{src.Dir.X, src.Dir.Y, src.Dir.Z}

	var p, v vec
	w := 1.0

	switch src.Type {
	case config.SourcePencil:
		p, v = pos, dir

	case config.SourceIsotropic:
		p = pos
		v = sampleSphere(s)

	case config.SourceCone:
		p = pos
		v = sampleCone(dir, src.Param1[0], s)

	case config.SourceGaussian:
		p = pos
		waist := src.Param1[0]
		// Param1[1] (the Rayleigh-correction term) is read and clamped
		// at 0, but no Rayleigh correction is applied: the footprint is
		// a fixed Gaussian of the given waist for every Param1[1].
		rayleighCorrection := src.Param1[1]
		if rayleighCorrection < 0 {
			rayleighCorrection = 0
		}
		e1, e2 := anyOrthonormal(dir)
		r := waist * math.Sqrt(-math.Log(s.NextUniform()+1e-12))
		phi := s.NextAzimuth()
		p = add(p, add(scale(e1, r*math.Cos(phi)), scale(e2, r*math.Sin(phi))))
		v = dir

	case config.SourcePlanar, config.SourcePattern:
		u := s.NextUniform()
		vv := s.NextUniform()
		p1 := vec{src.Param1[0], src.Param1[1], src.Param1[2]}
		p2 := vec{src.Param2[0], src.Param2[1], src.Param2[2]}
		p = add(pos, add(scale(p1, u), scale(p2, vv)))
		v = dir
		if src.Type == config.SourcePattern && src.Pattern != nil && src.Pattern.Xs > 0 && src.Pattern.Ys > 0 {
			ix := int(u * float64(src.Pattern.Xs))
			iy := int(vv * float64(src.Pattern.Ys))
			if ix >= src.Pattern.Xs {
				ix = src.Pattern.Xs - 1
			}
			if iy >= src.Pattern.Ys {
				iy = src.Pattern.Ys - 1
			}
			w = src.Pattern.Data[iy*src.Pattern.Xs+ix]
		}

	case config.SourceFourier, config.SourceFourierX, config.SourceFourierX2D:
		u := s.NextUniform()
		vv := s.NextUniform()
		p1 := vec{src.Param1[0], src.Param1[1], src.Param1[2]}
		p2 := vec{src.Param2[0], src.Param2[1], src.Param2[2]}
		p = add(pos, add(scale(p1, u), scale(p2, vv)))
		v = dir
		kx, ky, phi0, amp := src.Param1[0], src.Param1[1], src.Param1[2], src.Param1[3]
		if amp == 0 {
			amp = 1
		}
		w = (math.Cos(kx*u+ky*vv+phi0)*amp + 1) / 2

	case config.SourceArcsine:
		p = pos
		u := s.NextUniform()
		cosTheta := math.Sqrt(1 - u)
		v = zenithDirection(dir, cosTheta, s)

	case config.SourceDisk:
		e1, e2 := anyOrthonormal(dir)
		r := src.Param1[0] * math.Sqrt(s.NextUniform())
		phi := s.NextAzimuth()
		p = add(pos, add(scale(e1, r*math.Cos(phi)), scale(e2, r*math.Sin(phi))))
		v = dir

	case config.SourceZGaussian:
		p = pos
		sigma := src.Param1[0]
		if sigma <= 0 {
			sigma = 1e-3
		}
		dtheta := sigma * math.Sqrt(-2*math.Log(s.NextUniform()+1e-12))
		cosTheta := math.Cos(dtheta)
		v = zenithDirection(dir, cosTheta, s)

	case config.SourceLine, config.SourceSlit:
		t := s.NextUniform()
		p1 := vec{src.Param1[0], src.Param1[1], src.Param1[2]}
		p = add(pos, scale(p1, t))
		if src.Type == config.SourceSlit {
			v = dir
		} else {
			// line: randomized direction orthogonal to the line segment.
			e1, e2 := anyOrthonormal(normalize(p1))
			phi := s.NextAzimuth()
			v = normalize(add(scale(e1, math.Cos(phi)), scale(e2, math.Sin(phi))))
		}

	default:
		return Photon{}, false
	}

	// Focus steering for footprint sources (planar family, disk, line/slit).
	if src.Focus != 0 && isFootprintSource(src.Type) {
		focal := add(pos, scale(dir, src.Focus))
		toFocal := normalize(sub(focal, p))
		if src.Focus < 0 {
			toFocal = normalize(sub(p, focal))
		}
		v = toFocal
	}
	v = normalize(v)

	if specular == config.SpecularWeightLaunch {
		// Open question resolution (SPEC_FULL.md): the caller applies
		// w <- w*(1-R). We assume near-normal incidence at the mesh
		// boundary for the purpose of this initial loss; a full
		// engine would use the actual entry-face normal.
		cosI := math.Abs(dot(v, dir))
		if r, ok := reflect.FresnelR(nOut, startingMediumIndex(m, src), cosI); ok {
			w *= 1 - r
		}
	}

	// A caller-supplied starting element (config.RunConfig.StartElem,
	// §3 "starting tet index e0 and its starting barycentric b0")
	// bypasses the barycentric search entirely and pins the photon
	// directly into that tet.
	var elem int32
	var bary [4]float64
	var found bool
	if startElem > 0 && int(startElem) < len(m.Elems) {
		elem, bary, found = startElem, startBary, true
	} else {
		elem, bary, found = FindElement(m, src.Elems, p)
	}
	if !found {
		return Photon{}, false
	}
	if w <= 0 {
		return Photon{}, false
	}

	return Photon{P: p, V: v, W: w, Elem: elem, Bary: bary}, true
}

func startingMediumIndex(m *mesh.Mesh, src *config.Source) float64 {
	if len(src.Elems) == 0 {
		return 1
	}
	e := src.Elems[0]
	if int(e) <= 0 || int(e) >= len(m.ElemProp) {
		return 1
	}
	prop := m.ElemProp[e]
	if int(prop) < 0 || int(prop) >= len(m.Media) {
		return 1
	}
	return m.Media[prop].N
}

func isFootprintSource(t config.SourceType) bool {
	switch t {
	case config.SourcePlanar, config.SourcePattern, config.SourceFourier, config.SourceFourierX,
		config.SourceFourierX2D, config.SourceDisk, config.SourceLine, config.SourceSlit:
		return true
	}
	return false
}

// sampleSphere draws a uniform direction over the full sphere.
func sampleSphere(s *rng.Stream) vec {
	cosTheta := 2*s.NextUniform() - 1
	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))
	phi := s.NextAzimuth()
	return vec{sinTheta * math.Cos(phi), sinTheta * math.Sin(phi), cosTheta}
}

// sampleCone draws a direction uniform (by solid angle) within
// halfAngle radians of dir.
func sampleCone(dir vec, halfAngle float64, s *rng.Stream) vec {
	if halfAngle <= 0 {
		return dir
	}
	cosMax := math.Cos(halfAngle)
	cosTheta := 1 - s.NextUniform()*(1-cosMax)
	return zenithDirection(dir, cosTheta, s)
}

// zenithDirection builds a direction at zenith angle acos(cosTheta)
// from dir, with a uniformly random azimuth around dir.
func zenithDirection(dir vec, cosTheta float64, s *rng.Stream) vec {
	dir = normalize(dir)
	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))
	phi := s.NextAzimuth()
	e1, e2 := anyOrthonormal(dir)
	return normalize(add(scale(dir, cosTheta), add(scale(e1, sinTheta*math.Cos(phi)), scale(e2, sinTheta*math.Sin(phi)))))
}

// FindElement searches candidates for the tet whose barycentric
// coordinates at p are all >= -BaryTolerance, returning the first
// match (§4.8 "the first tet where all four are non-negative ...
// wins").
func FindElement(m *mesh.Mesh, candidates []int32, p [3]float64) (elem int32, bary [4]float64, ok bool) {
	for _, e := range candidates {
		if int(e) <= 0 || int(e) >= len(m.Elems) {
			continue
		}
		b := m.Barycentric(e, p)
		if b[0] >= -BaryTolerance && b[1] >= -BaryTolerance && b[2] >= -BaryTolerance && b[3] >= -BaryTolerance {
			return e, b, true
		}
	}
	return 0, [4]float64{}, false
}
