// Package replay implements the optional replay input path of
// spec.md §6: feeding previously saved per-photon RNG seeds (plus
// their launch weight/time) back into the dispatcher instead of
// deriving fresh streams, so a prior run's photon histories can be
// exactly reproduced (P6).
package replay

import (
	"encoding/binary"
	"io"

	"github.com/pthm-cable/mmc/merr"
	"github.com/pthm-cable/mmc/rng"
)

// Set holds the replay arrays described in §6: one saved RNG state,
// launch weight, and launch time per photon.
type Set struct {
	Seeds   [][2]uint64
	Weights []float64
	Times   []float64
}

// Len returns the number of replayable photons.
func (s *Set) Len() int { return len(s.Seeds) }

// Source builds a dispatch.SeedSource-compatible function that
// replays saved state (seed, launch weight, launch time) for indices
// within range, and falls back to a fresh (seed, index) derivation
// with no override beyond it (so a replay set smaller than Nphoton
// doesn't panic — it simply doesn't cover every photon).
func (s *Set) Source(fallbackSeed uint32) func(index uint64) (*rng.Stream, float64, float64, bool) {
	return func(index uint64) (*rng.Stream, float64, float64, bool) {
		if int(index) < len(s.Seeds) {
			return rng.Restore(s.Seeds[index]), s.Weights[index], s.Times[index], true
		}
		return rng.New(fallbackSeed, index), 0, 0, false
	}
}

// Load reads a replay file in the format §6 describes: nphoton *
// |RNG_state| bytes of saved seeds (two little-endian uint64 words
// each), followed by nphoton float64 replayweight values, followed by
// nphoton float64 replaytime values.
func Load(r io.Reader, nphoton int) (*Set, error) {
	set := &Set{
		Seeds:   make([][2]uint64, nphoton),
		Weights: make([]float64, nphoton),
		Times:   make([]float64, nphoton),
	}

	for i := 0; i < nphoton; i++ {
		var s0, s1 uint64
		if err := binary.Read(r, binary.LittleEndian, &s0); err != nil {
			return nil, merr.Wrap(merr.ConfigKind, "replay: reading seed[%d].s0: %v", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &s1); err != nil {
			return nil, merr.Wrap(merr.ConfigKind, "replay: reading seed[%d].s1: %v", i, err)
		}
		set.Seeds[i] = [2]uint64{s0, s1}
	}
	for i := 0; i < nphoton; i++ {
		if err := binary.Read(r, binary.LittleEndian, &set.Weights[i]); err != nil {
			return nil, merr.Wrap(merr.ConfigKind, "replay: reading replayweight[%d]: %v", i, err)
		}
	}
	for i := 0; i < nphoton; i++ {
		if err := binary.Read(r, binary.LittleEndian, &set.Times[i]); err != nil {
			return nil, merr.Wrap(merr.ConfigKind, "replay: reading replaytime[%d]: %v", i, err)
		}
	}
	return set, nil
}

// Write serializes a Set back out in the same layout Load expects,
// e.g. to persist a batch's detected-photon seed buffer for a later
// replay run.
func Write(w io.Writer, set *Set) error {
	for _, seed := range set.Seeds {
		if err := binary.Write(w, binary.LittleEndian, seed[0]); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, seed[1]); err != nil {
			return err
		}
	}
	for _, wt := range set.Weights {
		if err := binary.Write(w, binary.LittleEndian, wt); err != nil {
			return err
		}
	}
	for _, tm := range set.Times {
		if err := binary.Write(w, binary.LittleEndian, tm); err != nil {
			return err
		}
	}
	return nil
}
