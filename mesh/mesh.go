// Package mesh holds the immutable tetrahedral mesh, medium, and
// detector tables the transport engine reads from every worker
// goroutine: node coordinates, tet->node and tet->neighbor indices,
// per-face plane equations, per-tet material and volume, and the
// small medium and detector arrays. Nothing here is mutated after
// Build returns; photons carry only integer indices into it.
package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pthm-cable/mmc/merr"
)

// Node is an immutable 3D point. Index 0 is a reserved sentinel; real
// geometry starts at index 1 (§3 "Indexed 1-based in mesh tables").
type Node struct {
	X, Y, Z float64
}

// Sub returns a-b as a plain vector.
func (a Node) Sub(b Node) [3]float64 { return [3]float64{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

// Tet is a tetrahedral element: four 1-based node indices.
type Tet struct {
	N [4]int32
}

// Plane stores a face-plane equation in barycentric-gradient form:
// Eval(p) = A*p.x + B*p.y + C*p.z + D equals the barycentric
// coordinate associated with the face's opposite vertex (I2): it is 1
// at that vertex, 0 on the face itself, and strictly positive for any
// point inside the tet.
type Plane struct {
	A, B, C, D float64
}

// Eval returns the barycentric value of p with respect to this plane.
func (pl Plane) Eval(x, y, z float64) float64 {
	return pl.A*x + pl.B*y + pl.C*z + pl.D
}

// Medium holds the optical properties of one tissue type. Index 0 is
// the background/void medium (outside the mesh).
type Medium struct {
	Mua, Mus, G, N float64
}

// Detector is a sphere-test detector: center + radius.
type Detector struct {
	Pos [3]float64
	R   float64
}

// Mesh is the full immutable transport geometry. All slices are
// 1-based: index 0 is an unused sentinel ("outside"/"no neighbor").
type Mesh struct {
	Nodes    []Node
	Elems    []Tet
	FaceNb   [][4]int32 // neighbor tet id per face, 0 = exterior
	ElemProp []int32    // medium index per tet
	EVol     []float64  // tet volume
	Faces    [][4]Plane // plane equation per tet per face

	Media     []Medium
	Detectors []Detector
}

// faceLocalNodes lists, for each local face f (opposite local vertex
// f), the three other local vertex indices in the order used when
// deriving barycentric gradients.
var faceLocalNodes = [4][3]int{
	{1, 2, 3},
	{0, 2, 3},
	{0, 1, 3},
	{0, 1, 2},
}

// Build assembles a Mesh from raw node/element/neighbor/property
// tables, computing per-tet volumes and face-plane equations. Nodes
// and elems must both be 1-based (index 0 unused).
func Build(nodes []Node, elems []Tet, faceNb [][4]int32, elemProp []int32, media []Medium, detectors []Detector) (*Mesh, error) {
	if len(elems) != len(faceNb) || len(elems) != len(elemProp) {
		return nil, merr.Wrap(merr.ConfigKind, "mesh: elem/faceNb/elemProp length mismatch (%d/%d/%d)", len(elems), len(faceNb), len(elemProp))
	}
	m := &Mesh{
		Nodes:     nodes,
		Elems:     elems,
		FaceNb:    faceNb,
		ElemProp:  elemProp,
		EVol:      make([]float64, len(elems)),
		Faces:     make([][4]Plane, len(elems)),
		Media:     media,
		Detectors: detectors,
	}
	for e := 1; e < len(elems); e++ {
		vol, faces, err := tetGeometry(nodes, elems[e])
		if err != nil {
			return nil, merr.Wrap(merr.MeshKind, "mesh: element %d: %v", e, err)
		}
		m.EVol[e] = vol
		m.Faces[e] = faces
	}
	return m, nil
}

// tetGeometry computes the signed volume and the four face-plane
// equations of one tet.
func tetGeometry(nodes []Node, t Tet) (float64, [4]Plane, error) {
	var corners [4]Node
	for i, idx := range t.N {
		if int(idx) <= 0 || int(idx) >= len(nodes) {
			return 0, [4]Plane{}, fmt.Errorf("node index %d out of range", idx)
		}
		corners[i] = nodes[idx]
	}

	// N is the 4x4 matrix whose i-th row is [x_i, y_i, z_i, 1]. Solving
	// N*x = e_f for each face f gives that face's plane coefficients:
	// x is the f-th column of N^-1, so row i of N dotted with x is 1
	// for i == f and 0 otherwise.
	nd := mat.NewDense(4, 4, nil)
	for i, c := range corners {
		nd.Set(i, 0, c.X)
		nd.Set(i, 1, c.Y)
		nd.Set(i, 2, c.Z)
		nd.Set(i, 3, 1)
	}

	var inv mat.Dense
	if err := inv.Inverse(nd); err != nil {
		return 0, [4]Plane{}, fmt.Errorf("degenerate tet (zero volume?): %w", err)
	}

	var faces [4]Plane
	for f := 0; f < 4; f++ {
		faces[f] = Plane{
			A: inv.At(0, f),
			B: inv.At(1, f),
			C: inv.At(2, f),
			D: inv.At(3, f),
		}
	}

	// Volume = |det(edge matrix)| / 6.
	e1 := corners[1].Sub(corners[0])
	e2 := corners[2].Sub(corners[0])
	e3 := corners[3].Sub(corners[0])
	det := e1[0]*(e2[1]*e3[2]-e2[2]*e3[1]) -
		e1[1]*(e2[0]*e3[2]-e2[2]*e3[0]) +
		e1[2]*(e2[0]*e3[1]-e2[1]*e3[0])
	vol := det / 6
	if vol < 0 {
		vol = -vol
	}
	return vol, faces, nil
}

// FaceNodes returns the three 1-based node indices bordering face f of
// tet e, in the fixed order used by nodal (basis=1) accumulation.
func (m *Mesh) FaceNodes(e int32, f int) [3]int32 {
	t := m.Elems[e]
	ln := faceLocalNodes[f]
	return [3]int32{t.N[ln[0]], t.N[ln[1]], t.N[ln[2]]}
}

// Barycentric evaluates all four face-plane equations of tet e at
// point p, i.e. its barycentric coordinates with respect to e.
func (m *Mesh) Barycentric(e int32, p [3]float64) [4]float64 {
	var b [4]float64
	for f := 0; f < 4; f++ {
		b[f] = m.Faces[e][f].Eval(p[0], p[1], p[2])
	}
	return b
}

// Centroid returns the centroid of tet e.
func (m *Mesh) Centroid(e int32) [3]float64 {
	t := m.Elems[e]
	var c [3]float64
	for _, idx := range t.N {
		n := m.Nodes[idx]
		c[0] += n.X
		c[1] += n.Y
		c[2] += n.Z
	}
	c[0] /= 4
	c[1] /= 4
	c[2] /= 4
	return c
}

// Validate checks the mesh self-consistency invariants required
// before dispatch: neighbor symmetry (I1/P7) and in-range medium and
// neighbor indices. It returns a single aggregated MeshKind error
// describing every violation found, or nil if the mesh is conforming.
func (m *Mesh) Validate() error {
	var problems []string

	for e := 1; e < len(m.Elems); e++ {
		prop := m.ElemProp[e]
		if int(prop) < 0 || int(prop) >= len(m.Media) {
			problems = append(problems, fmt.Sprintf("elem %d: medium index %d out of range", e, prop))
		}
		for f := 0; f < 4; f++ {
			nb := m.FaceNb[e][f]
			if nb == 0 {
				continue
			}
			if int(nb) < 0 || int(nb) >= len(m.Elems) {
				problems = append(problems, fmt.Sprintf("elem %d face %d: neighbor %d out of range", e, f, nb))
				continue
			}
			if !m.hasNeighbor(nb, int32(e)) {
				problems = append(problems, fmt.Sprintf("elem %d face %d: neighbor %d does not point back (I1/P7 violated)", e, f, nb))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	msg := problems[0]
	if len(problems) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(problems)-1)
	}
	return merr.Wrap(merr.MeshKind, "mesh validation failed: %s", msg)
}

func (m *Mesh) hasNeighbor(e, target int32) bool {
	for _, nb := range m.FaceNb[e] {
		if nb == target {
			return true
		}
	}
	return false
}
