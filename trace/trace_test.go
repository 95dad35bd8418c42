package trace

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/mmc/config"
	"github.com/pthm-cable/mmc/merr"
	"github.com/pthm-cable/mmc/mesh"
)

func TestStepScatterEndsInsideTet(t *testing.T) {
	m := mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
	c := m.Centroid(1)
	v := [3]float64{0, 0, 1}
	// A tiny remaining scattering path should end inside the tet well
	// before any face is reached.
	res, err := Step(config.MethodBadouelBranchless, m, 1, c, v, 1e-6, 1.0, 1.37, 0, 0, 1, config.SpeedOfLight())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsEnd {
		t.Fatalf("expected scatter to end inside the tet, got Face=%d L=%v", res.Face, res.L)
	}
	if res.L <= 0 {
		t.Fatalf("expected positive step length, got %v", res.L)
	}
}

func TestStepCrossesSharedFace(t *testing.T) {
	m := mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
	p := [3]float64{0.2, 0.2, 0.05}
	v := [3]float64{0.3, 0.3, 0.9}
	norm := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	v = [3]float64{v[0] / norm, v[1] / norm, v[2] / norm}

	res, err := Step(config.MethodBadouelBranchless, m, 1, p, v, 1e6, 1.0, 1.37, 0, 0, 1, config.SpeedOfLight())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsEnd {
		t.Fatalf("expected a face crossing, not a scatter end")
	}
	if res.Face < 0 || res.Face > 3 {
		t.Fatalf("expected a valid crossed face, got %d", res.Face)
	}
}

func TestStepTimeClipping(t *testing.T) {
	m := mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
	p := m.Centroid(1)
	v := [3]float64{0, 0, 1}
	// t1 almost reached already: any positive step should clip to -2.
	tau := 1 - 1e-13
	res, err := Step(config.MethodBadouelBranchless, m, 1, p, v, 1e6, 1.0, 1.37, tau, 0, 1, config.SpeedOfLight())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Face != -2 {
		t.Fatalf("expected time-exit (-2), got face %d", res.Face)
	}
	if res.L < 0 {
		t.Fatalf("clamped length should not be negative, got %v", res.L)
	}
}

func TestStepDegenerateZeroDirectionErrors(t *testing.T) {
	m := mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
	c := m.Centroid(1)
	_, err := Step(config.MethodBadouelBranchless, m, 1, c, [3]float64{0, 0, 0}, 1.0, 1.0, 1.37, 0, 0, 1, config.SpeedOfLight())
	if err == nil || !errors.Is(err, merr.NumericKind) {
		t.Fatalf("expected NumericKind error for zero direction, got %v", err)
	}
}

func TestStepUnknownMethodIsConfigError(t *testing.T) {
	m := mesh.UnitTwoTet(0.01, 1.0, 0.9, 1.37)
	c := m.Centroid(1)
	_, err := Step("bogus", m, 1, c, [3]float64{0, 0, 1}, 1.0, 1.0, 1.37, 0, 0, 1, config.SpeedOfLight())
	if err == nil || !errors.Is(err, merr.ConfigKind) {
		t.Fatalf("expected ConfigKind error, got %v", err)
	}
}
