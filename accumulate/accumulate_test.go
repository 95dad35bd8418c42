package accumulate

import (
	"bytes"
	"math"
	"testing"

	"github.com/pthm-cable/mmc/config"
	"github.com/pthm-cable/mmc/mesh"
)

func TestWriteFieldReadFieldRoundTrip(t *testing.T) {
	f := NewField(2, 3)
	f.Add(0, 1, 0.5)
	f.Add(1, 2, 1.25)

	var buf bytes.Buffer
	if err := WriteField(&buf, f); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	got, err := ReadField(&buf, 2, 3)
	if err != nil {
		t.Fatalf("ReadField: %v", err)
	}
	for i := range f.Data {
		if got.Data[i] != f.Data[i] {
			t.Fatalf("cell %d: got %v want %v", i, got.Data[i], f.Data[i])
		}
	}
}

func TestFieldAddAndMerge(t *testing.T) {
	f := NewField(2, 3)
	f.Add(0, 1, 0.5)
	f.Add(1, 2, 0.25)
	if f.TotalWeight() != 0.75 {
		t.Fatalf("got total %v", f.TotalWeight())
	}
	g := NewField(2, 3)
	g.Add(0, 1, 0.5)
	f.Merge(g)
	if math.Abs(f.TotalWeight()-1.25) > 1e-12 {
		t.Fatalf("got merged total %v", f.TotalWeight())
	}
}

func TestFieldAddOutOfRangeIgnored(t *testing.T) {
	f := NewField(1, 1)
	f.Add(5, 5, 10)
	f.Add(-1, 0, 10)
	if f.TotalWeight() != 0 {
		t.Fatalf("expected out-of-range adds to be no-ops, got %v", f.TotalWeight())
	}
}

func TestAtomicFieldSnapshotMatchesSequentialAdds(t *testing.T) {
	af := NewAtomicField(1, 4)
	for i := 0; i < 100; i++ {
		af.Add(0, i%4, 1.0)
	}
	snap := af.Snapshot()
	if snap.TotalWeight() != 100 {
		t.Fatalf("got %v", snap.TotalWeight())
	}
}

func TestGateClipsToRange(t *testing.T) {
	if g := Gate(-1, 0, 1e-10, 5); g != 0 {
		t.Fatalf("expected clip to 0, got %d", g)
	}
	if g := Gate(1, 0, 1e-10, 5); g != 4 {
		t.Fatalf("expected clip to last gate, got %d", g)
	}
	if g := Gate(2.5e-10, 0, 1e-10, 5); g != 2 {
		t.Fatalf("expected gate 2, got %d", g)
	}
}

func TestDepositBasisZeroAddsWholeContribution(t *testing.T) {
	m := mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
	f := NewField(1, len(m.Elems))
	Deposit(f, m, config.OutputEnergy, 0, 0, 1, -1, 0.01, 0.4)
	if math.Abs(f.Data[1]-0.4) > 1e-12 {
		t.Fatalf("expected 0.4 at elem 1, got %v", f.Data[1])
	}
}

func TestDepositBasisOneSplitsThirdsAcrossExitFace(t *testing.T) {
	m := mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
	f := NewField(1, len(m.Nodes))
	Deposit(f, m, config.OutputEnergy, 1, 0, 1, 0, 0.01, 0.3)
	nodes := m.FaceNodes(1, 0)
	sum := 0.0
	for _, n := range nodes {
		sum += f.Data[n]
		if math.Abs(f.Data[n]-0.1) > 1e-12 {
			t.Fatalf("expected 0.1 at node %d, got %v", n, f.Data[n])
		}
	}
	if math.Abs(sum-0.3) > 1e-12 {
		t.Fatalf("nodal split should conserve total, got %v", sum)
	}
}

func TestDepositBasisOneFallsBackToAllNodesWithoutExitFace(t *testing.T) {
	m := mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
	f := NewField(1, len(m.Nodes))
	Deposit(f, m, config.OutputEnergy, 1, 0, 1, -1, 0.01, 0.4)
	t1 := m.Elems[1]
	sum := 0.0
	for _, n := range t1.N {
		sum += f.Data[n]
	}
	if math.Abs(sum-0.4) > 1e-9 {
		t.Fatalf("expected total 0.4 spread across tet nodes, got %v", sum)
	}
}

func TestDepositFluxDividesByMua(t *testing.T) {
	m := mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
	f := NewField(1, len(m.Elems))
	Deposit(f, m, config.OutputFlux, 0, 0, 1, -1, 0.02, 0.4)
	if math.Abs(f.Data[1]-20.0) > 1e-9 {
		t.Fatalf("expected flux-scaled 20.0, got %v", f.Data[1])
	}
}

func TestGridDepositConservesTotalAbsorption(t *testing.T) {
	grid := &Grid{NMin: [3]float64{-5, -5, -5}, Dims: [3]int{100, 100, 100}, DStep: 1.0}
	f := NewField(1, grid.Sites())
	p := [3]float64{0, 0, 0}
	v := [3]float64{0, 0, 1}
	l := 2.0
	mua := 0.05
	w := 1.0
	GridDeposit(f, grid, config.OutputEnergy, 0, p, v, l, mua, w)
	want := w * (1 - math.Exp(-mua*l))
	got := f.TotalWeight()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("grid deposit should conserve total absorbed energy: got %v want %v", got, want)
	}
}

func TestGridDepositZeroLengthNoOp(t *testing.T) {
	grid := &Grid{NMin: [3]float64{0, 0, 0}, Dims: [3]int{10, 10, 10}, DStep: 1.0}
	f := NewField(1, grid.Sites())
	GridDeposit(f, grid, config.OutputEnergy, 0, [3]float64{}, [3]float64{0, 0, 1}, 0, 0.1, 1.0)
	if f.TotalWeight() != 0 {
		t.Fatalf("expected no-op for zero-length step")
	}
}
