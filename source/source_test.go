package source

import (
	"math"
	"testing"

	"github.com/pthm-cable/mmc/config"
	"github.com/pthm-cable/mmc/mesh"
	"github.com/pthm-cable/mmc/rng"
)

func twoTet() *mesh.Mesh {
	return mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
}

func pencilSource() *config.Source {
	return &config.Source{
		Type:  config.SourcePencil,
		Pos:   config.Vec3{X: 0.2, Y: 0.2, Z: 0.01},
		Dir:   config.Vec3{X: 0, Y: 0, Z: 1},
		Elems: []int32{1, 2},
	}
}

func TestLaunchPencilFindsEnclosingElement(t *testing.T) {
	m := twoTet()
	s := rng.New(1, 1)
	src := pencilSource()
	ph, ok := Launch(src, m, s, config.SpecularOff, 1.0, 0, [4]float64{})
	if !ok {
		t.Fatalf("expected pencil launch to find an enclosing element")
	}
	if ph.Elem != 1 && ph.Elem != 2 {
		t.Fatalf("unexpected elem %d", ph.Elem)
	}
	for i, b := range ph.Bary {
		if b < -BaryTolerance {
			t.Fatalf("barycentric coord %d negative beyond tolerance: %v", i, b)
		}
	}
}

func TestLaunchNoEnclosingElementFails(t *testing.T) {
	m := twoTet()
	s := rng.New(1, 1)
	src := pencilSource()
	src.Pos = config.Vec3{X: 100, Y: 100, Z: 100}
	_, ok := Launch(src, m, s, config.SpecularOff, 1.0, 0, [4]float64{})
	if ok {
		t.Fatalf("expected launch far outside mesh to fail")
	}
}

func TestLaunchIsotropicProducesUnitDirection(t *testing.T) {
	m := twoTet()
	s := rng.New(2, 2)
	src := pencilSource()
	src.Type = config.SourceIsotropic
	ph, ok := Launch(src, m, s, config.SpecularOff, 1.0, 0, [4]float64{})
	if !ok {
		t.Fatalf("expected isotropic launch to succeed")
	}
	mag := math.Sqrt(ph.V[0]*ph.V[0] + ph.V[1]*ph.V[1] + ph.V[2]*ph.V[2])
	if math.Abs(mag-1) > 1e-9 {
		t.Fatalf("direction not unit length: %v", mag)
	}
}

func TestLaunchConeStaysWithinHalfAngle(t *testing.T) {
	m := twoTet()
	src := pencilSource()
	src.Type = config.SourceCone
	src.Param1[0] = 0.2 // radians half-angle
	for i := 0; i < 200; i++ {
		s := rng.New(uint32(i+1), 1)
		ph, ok := Launch(src, m, s, config.SpecularOff, 1.0, 0, [4]float64{})
		if !ok {
			continue
		}
		cosAngle := ph.V[0]*src.Dir.X + ph.V[1]*src.Dir.Y + ph.V[2]*src.Dir.Z
		if cosAngle < math.Cos(0.2)-1e-6 {
			t.Fatalf("cone sample %d outside half-angle: cos=%v", i, cosAngle)
		}
	}
}

func TestLaunchPatternWeightsFromImage(t *testing.T) {
	m := twoTet()
	src := pencilSource()
	src.Type = config.SourcePattern
	src.Param1 = [4]float64{0.4, 0, 0, 0}
	src.Param2 = [4]float64{0, 0.4, 0, 0}
	src.Pattern = &config.Pattern{Xs: 2, Ys: 1, Data: []float64{0.25, 0.75}}
	seenLow, seenHigh := false, false
	for i := 0; i < 50; i++ {
		s := rng.New(uint32(i+10), 1)
		ph, ok := Launch(src, m, s, config.SpecularOff, 1.0, 0, [4]float64{})
		if !ok {
			continue
		}
		if ph.W == 0.25 {
			seenLow = true
		}
		if ph.W == 0.75 {
			seenHigh = true
		}
	}
	if !seenLow || !seenHigh {
		t.Fatalf("expected both pattern pixel weights to appear: low=%v high=%v", seenLow, seenHigh)
	}
}

func TestLaunchSpecularReducesWeightAtMismatch(t *testing.T) {
	m := twoTet()
	s := rng.New(3, 3)
	src := pencilSource()
	ph, ok := Launch(src, m, s, config.SpecularWeightLaunch, 1.0, 0, [4]float64{})
	if !ok {
		t.Fatalf("expected launch to succeed")
	}
	if ph.W >= 1.0 {
		t.Fatalf("expected specular weight loss at index mismatch, got w=%v", ph.W)
	}
}

func TestLaunchStartElemBypassesBarycentricSearch(t *testing.T) {
	m := twoTet()
	s := rng.New(4, 4)
	src := pencilSource()
	// Point the source far outside the mesh so a barycentric search
	// would fail, then pin it directly into elem 2 via StartElem/StartBary.
	src.Pos = config.Vec3{X: 100, Y: 100, Z: 100}
	pinnedBary := [4]float64{0.25, 0.25, 0.25, 0.25}
	ph, ok := Launch(src, m, s, config.SpecularOff, 1.0, 2, pinnedBary)
	if !ok {
		t.Fatalf("expected start-elem pin to bypass barycentric search")
	}
	if ph.Elem != 2 {
		t.Fatalf("expected pinned elem 2, got %d", ph.Elem)
	}
	if ph.Bary != pinnedBary {
		t.Fatalf("expected pinned barycentric coords, got %v", ph.Bary)
	}
}

func TestFindElementRejectsOutOfRangeIndices(t *testing.T) {
	m := twoTet()
	_, _, ok := FindElement(m, []int32{0, 99}, [3]float64{0.2, 0.2, 0.01})
	if ok {
		t.Fatalf("expected out-of-range candidates to be skipped, not matched")
	}
}
