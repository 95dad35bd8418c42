// Package reflect implements the Fresnel reflection/refraction split
// at a refractive-index mismatch interface, per spec.md §4.3.
package reflect

import "math"

// Vec3 operations are kept local and tiny; this package does not
// depend on mesh so it stays usable for both real and void-boundary
// interfaces.
type vec = [3]float64

func dot(a, b vec) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func normalize(v vec) vec {
	n := math.Sqrt(dot(v, v))
	if n == 0 {
		return v
	}
	return vec{v[0] / n, v[1] / n, v[2] / n}
}

func reflectAbout(v, n vec) vec {
	d := 2 * dot(v, n)
	return normalize(vec{v[0] - d*n[0], v[1] - d*n[1], v[2] - d*n[2]})
}

// FresnelR returns the unpolarized Fresnel reflectance R = (Rs+Rp)/2
// for a ray crossing from index n1 into index n2 at incidence angle
// whose cosine is cosI (cosI = |v . normal| >= 0). ok is false when
// the angle is beyond the critical angle (total internal reflection,
// k >= 1), in which case R should be treated as 1.
func FresnelR(n1, n2, cosI float64) (r float64, ok bool) {
	ratio := n1 / n2
	k := ratio * ratio * (1 - cosI*cosI)
	if k >= 1 {
		return 1, false
	}
	cosT := math.Sqrt(1 - k)
	rs := (n1*cosI - n2*cosT) / (n1*cosI + n2*cosT)
	rp := (n1*cosT - n2*cosI) / (n1*cosT + n2*cosI)
	return (rs*rs + rp*rp) / 2, true
}

// Split resolves a Fresnel interface crossing (§4.3): given the
// incoming direction v, the face normal in either orientation
// (gradient form; it is normalized and oriented against v
// internally), the refractive indices on either side,
// and a uniform draw u from Stream.NextReflectTest, it returns the
// new direction and whether the photon was reflected (true) or
// transmitted (false).
func Split(v, faceNormal vec, n1, n2, u float64) (vec, bool) {
	n := normalize(faceNormal)
	cosI := dot(v, n)
	// Orient n against v so cosI is the angle-of-incidence cosine and
	// reflection/transmission formulas below see a consistent sign.
	if cosI > 0 {
		n = vec{-n[0], -n[1], -n[2]}
		cosI = -cosI
	}
	absCosI := -cosI

	ratio := n1 / n2
	k := ratio * ratio * (1 - absCosI*absCosI)
	if k >= 1 {
		// Total internal reflection: no Fresnel draw needed, energy is
		// fully retained (P8 "no Fresnel leak when k<0" is the
		// k>=1-in-this-convention case).
		return reflectAbout(v, n), true
	}

	r, _ := FresnelR(n1, n2, absCosI)
	if u <= r {
		return reflectAbout(v, n), true
	}

	cosT := math.Sqrt(1 - k)
	t := vec{
		ratio*v[0] + (ratio*absCosI-cosT)*n[0],
		ratio*v[1] + (ratio*absCosI-cosT)*n[1],
		ratio*v[2] + (ratio*absCosI-cosT)*n[2],
	}
	return normalize(t), false
}
