// Package scatter implements Henyey-Greenstein deflection sampling
// (spec.md §4.4): given the current direction and a medium's
// anisotropy g, draws a new direction from the phase function.
package scatter

import (
	"math"

	"github.com/pthm-cable/mmc/rng"
)

// polarSingularity is how close |vz| must be to 1 before the direct
// axis-replacement branch is used instead of the general rotation
// formula, which has a removable singularity there (§4.4).
const polarSingularity = 1 - 1e-6

// Sample draws a new direction from the Henyey-Greenstein phase
// function with anisotropy g, rotated into the frame aligned with the
// current direction v. It returns the new direction and cos(theta),
// the deflection cosine (needed by callers tracking momentum
// transfer, §4.4 "accumulate 1-cos(theta)").
func Sample(v [3]float64, g float64, s *rng.Stream) (newV [3]float64, cosTheta float64) {
	cosTheta = s.NextCosThetaHG(g)
	phi := s.NextAzimuth()
	sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))
	cosPhi := math.Cos(phi)
	sinPhi := math.Sin(phi)

	vx, vy, vz := v[0], v[1], v[2]

	if math.Abs(vz) > polarSingularity {
		sign := 1.0
		if vz < 0 {
			sign = -1.0
		}
		return [3]float64{
			sinTheta * cosPhi,
			sinTheta * sinPhi,
			cosTheta * sign,
		}, cosTheta
	}

	denom := math.Sqrt(math.Max(1e-12, 1-vz*vz))
	nx := sinTheta*(vx*vz*cosPhi-vy*sinPhi)/denom + vx*cosTheta
	ny := sinTheta*(vy*vz*cosPhi+vx*sinPhi)/denom + vy*cosTheta
	nz := -sinTheta*cosPhi*denom + vz*cosTheta

	n := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if n == 0 {
		return v, cosTheta
	}
	return [3]float64{nx / n, ny / n, nz / n}, cosTheta
}
