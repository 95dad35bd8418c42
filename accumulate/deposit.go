package accumulate

import (
	"math"

	"github.com/pthm-cable/mmc/config"
	"github.com/pthm-cable/mmc/mesh"
)

// Accumulator is satisfied by both Field (private, reduced later) and
// AtomicField (shared, CAS-added), letting Deposit/GridDeposit work
// against either reduction strategy (§3 "Atomic float-add permitted;
// alternatively per-worker private arrays").
type Accumulator interface {
	Add(gate, site int, val float64)
}

// Gate returns the clipped time-gate index g = floor((tau-t0)/dt),
// clipped to [0, gates-1] (§4.5).
func Gate(tau, t0, dt float64, gates int) int {
	g := int(math.Floor((tau - t0) / dt))
	if g < 0 {
		g = 0
	}
	if g >= gates {
		g = gates - 1
	}
	return g
}

// scaleForOutput applies the flux/jacobian output convention: divide
// the deposited amount by mua before accumulation (§4.5).
func scaleForOutput(out config.OutputType, mua, dw float64) float64 {
	if (out == config.OutputFlux || out == config.OutputJacobian) && mua > 0 {
		return dw / mua
	}
	return dw
}

// Deposit applies one step's absorbed energy dw to acc under the
// element-constant (basis=0) or nodal piecewise-linear (basis=1)
// scheme of §4.5. exitFace is the tet-local face index the step
// crossed (-1 if the step ended by scattering inside the tet, with no
// well-defined exit face).
func Deposit(acc Accumulator, m *mesh.Mesh, out config.OutputType, basis int, gate int, elem int32, exitFace int, mua, dw float64) {
	contribution := scaleForOutput(out, mua, dw)

	if basis == 0 {
		acc.Add(gate, int(elem), contribution)
		return
	}

	if exitFace < 0 || exitFace > 3 {
		// No exit face (step ended by scattering inside the tet):
		// split evenly across all four tet nodes instead of the
		// three exit-face nodes §4.5 describes for a crossing step.
		t := m.Elems[elem]
		quarter := contribution / 4
		for _, n := range t.N {
			acc.Add(gate, int(n), quarter)
		}
		return
	}

	nodes := m.FaceNodes(elem, exitFace)
	third := contribution / 3
	for _, n := range nodes {
		acc.Add(gate, int(n), third)
	}
}

// Grid is the Cartesian voxel lattice used by grid-Badouel
// accumulation (§4.5): voxel index = floor((p-nmin)*dstep) per axis.
type Grid struct {
	NMin  [3]float64
	Dims  [3]int
	DStep float64
}

// Sites returns the total voxel count, i.e. the grid's "site"
// dimension of the G x S field.
func (g *Grid) Sites() int { return g.Dims[0] * g.Dims[1] * g.Dims[2] }

// VoxelIndex maps a point to a flattened voxel index, or false if p
// falls outside the grid.
func (g *Grid) VoxelIndex(p [3]float64) (int, bool) {
	ix := int(math.Floor((p[0] - g.NMin[0]) * g.DStep))
	iy := int(math.Floor((p[1] - g.NMin[1]) * g.DStep))
	iz := int(math.Floor((p[2] - g.NMin[2]) * g.DStep))
	if ix < 0 || iy < 0 || iz < 0 || ix >= g.Dims[0] || iy >= g.Dims[1] || iz >= g.Dims[2] {
		return 0, false
	}
	return (iz*g.Dims[1]+iy)*g.Dims[0] + ix, true
}

// GridDeposit distributes one step's absorption across the Cartesian
// grid (§4.5 "grid-Badouel"): the step of length l is subdivided into
// 2*ceil(l*dstep) equal segments, sampling a voxel at each segment's
// midpoint, with the per-segment deposit decaying geometrically by
// exp(-mua*ds) across the subsegments. w is the photon weight at the
// start of the step.
func GridDeposit(acc Accumulator, grid *Grid, out config.OutputType, gate int, p, v [3]float64, l, mua, w float64) {
	if l <= 0 {
		return
	}
	n := 2 * int(math.Ceil(l*grid.DStep))
	if n < 1 {
		n = 1
	}
	ds := l / float64(n)
	decay := math.Exp(-mua * ds)
	segW := w
	for i := 0; i < n; i++ {
		mid := (float64(i) + 0.5) * ds
		mp := [3]float64{p[0] + mid*v[0], p[1] + mid*v[1], p[2] + mid*v[2]}
		dw := segW * (1 - decay)
		contribution := scaleForOutput(out, mua, dw)
		if idx, ok := grid.VoxelIndex(mp); ok {
			acc.Add(gate, idx, contribution)
		}
		segW *= decay
	}
}
