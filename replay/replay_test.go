package replay

import (
	"bytes"
	"testing"

	"github.com/pthm-cable/mmc/rng"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	set := &Set{
		Seeds:   [][2]uint64{{1, 2}, {3, 4}, {5, 6}},
		Weights: []float64{1.0, 0.5, 0.25},
		Times:   []float64{0, 1e-10, 2e-10},
	}
	var buf bytes.Buffer
	if err := Write(&buf, set); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(&buf, 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := range set.Seeds {
		if got.Seeds[i] != set.Seeds[i] {
			t.Fatalf("seed %d mismatch: got %v want %v", i, got.Seeds[i], set.Seeds[i])
		}
		if got.Weights[i] != set.Weights[i] {
			t.Fatalf("weight %d mismatch", i)
		}
		if got.Times[i] != set.Times[i] {
			t.Fatalf("time %d mismatch", i)
		}
	}
}

func TestSourceReplaysWithinRangeAndFallsBackBeyond(t *testing.T) {
	set := &Set{Seeds: [][2]uint64{{9, 9}}, Weights: []float64{0.5}, Times: []float64{1e-10}}
	src := set.Source(42)

	stream, w, tau, ok := src(0)
	if !ok {
		t.Fatalf("expected index 0 to be covered by the replay set")
	}
	if stream.State() != [2]uint64{9, 9} {
		t.Fatalf("expected replayed state {9,9}, got %v", stream.State())
	}
	if w != 0.5 || tau != 1e-10 {
		t.Fatalf("expected replayed weight/time 0.5/1e-10, got %v/%v", w, tau)
	}

	fallback, _, _, fok := src(1)
	if fok {
		t.Fatalf("expected index 1 (out of range) to not be marked as replayed")
	}
	want := rng.New(42, 1)
	if fallback.State() != want.State() {
		t.Fatalf("expected fallback to match fresh derivation for out-of-range index")
	}
}
