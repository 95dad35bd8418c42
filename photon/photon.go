// Package photon implements the per-photon transport state machine of
// spec.md §4.7: launch, repeated step/scatter/reflect, accumulation,
// Russian roulette, and termination.
package photon

import (
	"math"

	"github.com/pthm-cable/mmc/accumulate"
	"github.com/pthm-cable/mmc/config"
	"github.com/pthm-cable/mmc/detect"
	"github.com/pthm-cable/mmc/mesh"
	"github.com/pthm-cable/mmc/reflect"
	"github.com/pthm-cable/mmc/rng"
	"github.com/pthm-cable/mmc/scatter"
	"github.com/pthm-cable/mmc/source"
	"github.com/pthm-cable/mmc/trace"
)

// State is the photon's terminal (or non-terminal) classification.
type State int

const (
	StateStepping State = iota
	StateNoLaunch       // launch found no enclosing element, or zero weight
	StateExited
	StateTimedOut
	StateAbsorbed
	StateErrored
)

// Outcome is everything a finished photon contributes back to the
// dispatcher: energy balance terms, and an optional detector record.
type Outcome struct {
	State      State
	Launched   float64
	Absorbed   float64
	Escaped    float64
	Detected   *detect.Record
	InitialSeed [2]uint64
	Err        error
}

// LaunchOverride replaces a photon's default launch weight and launch
// time, fed in from a replay set's saved replayweight[i]/replaytime[i]
// (§6 "Optional replay input", P6) instead of the source model's own
// weight and tau=0 start.
type LaunchOverride struct {
	W   float64
	Tau float64
}

// Run drives one photon's full life cycle against the shared mesh and
// accumulator. acc may be a worker's private Field or a shared
// AtomicField (both satisfy accumulate.Accumulator); grid is only
// used when cfg.Method is grid-Badouel. override is non-nil only
// when this photon's index is covered by a replay set.
func Run(cfg *config.RunConfig, m *mesh.Mesh, src *config.Source, s *rng.Stream, acc accumulate.Accumulator, grid *accumulate.Grid, override *LaunchOverride) Outcome {
	initialSeed := s.State()

	launch, ok := source.Launch(src, m, s, cfg.Specular, cfg.NOut, cfg.StartElem, cfg.StartBary)
	if !ok {
		return Outcome{State: StateNoLaunch, InitialSeed: initialSeed}
	}

	p := launch.P
	v := launch.V
	w := launch.W
	tau := 0.0
	if override != nil {
		w = override.W
		tau = override.Tau
	}
	if w <= 0 {
		return Outcome{State: StateNoLaunch, InitialSeed: initialSeed}
	}
	launchedWeight := w
	initWeight := w
	e := launch.Elem
	sLeft := s.NextScatterLength()

	scatterCount := make([]float64, len(m.Media))
	pathLength := make([]float64, len(m.Media))
	var momentum []float64
	if cfg.Flags.Momentum {
		momentum = make([]float64, len(m.Media))
	}

	absorbed := 0.0
	fixRetries := 0

	for {
		if int(e) <= 0 || int(e) >= len(m.Elems) {
			return Outcome{State: StateErrored, Launched: launchedWeight, Absorbed: absorbed + w, InitialSeed: initialSeed}
		}

		prop := m.ElemProp[e]
		med := m.Media[prop]

		res, err := trace.Step(cfg.Method, m, e, p, v, sLeft, med.Mus, med.N, tau, cfg.Time.T0, cfg.Time.T1, config.SpeedOfLight())
		if err != nil {
			if fixRetries < trace.MaxFixRetries {
				fixRetries++
				p = trace.Nudge(m, e, p)
				continue
			}
			return Outcome{State: StateErrored, Launched: launchedWeight, Absorbed: absorbed + w, Err: err, InitialSeed: initialSeed}
		}
		fixRetries = 0

		L := res.L
		dw := w * (1 - math.Exp(-med.Mua*L))
		gate := accumulate.Gate(tau, cfg.Time.T0, cfg.Time.DT, cfg.Time.Gates)

		if cfg.Method == config.MethodGridBadouel && grid != nil {
			accumulate.GridDeposit(acc, grid, cfg.Output, gate, p, v, L, med.Mua, w)
		} else {
			accumulate.Deposit(acc, m, cfg.Output, cfg.BasisOrder, gate, e, res.Face, med.Mua, dw)
		}

		w -= dw
		absorbed += dw
		pathLength[prop] += L
		tau += L * med.N / config.SpeedOfLight()
		p = res.PointOut
		sLeft -= L * med.Mus

		if res.Face == -2 {
			// The time window closes on this photon; its remaining
			// weight is not tracked further and is tallied as absorbed
			// for energy-balance bookkeeping (P1).
			return Outcome{State: StateTimedOut, Launched: launchedWeight, Absorbed: absorbed + w, InitialSeed: initialSeed}
		}

		if res.IsEnd {
			newV, cosTheta := scatter.Sample(v, med.G, s)
			v = newV
			scatterCount[prop]++
			if momentum != nil {
				momentum[prop] += 1 - cosTheta
			}
			sLeft = s.NextScatterLength()

			// §4.7 step 10: roulette only fires while the time window is
			// not temporally-resolved (cfg.Flags.VoidTime).
			if w < cfg.Roulette.MinWeight && cfg.Flags.VoidTime {
				u := s.NextRouletteTest()
				if u < 1.0/float64(cfg.Roulette.Size) {
					w *= float64(cfg.Roulette.Size)
				} else {
					return Outcome{State: StateAbsorbed, Launched: launchedWeight, Absorbed: absorbed + w, InitialSeed: initialSeed}
				}
			}
			continue
		}

		// Crossing face res.Face into res.Next.
		next := res.Next
		sameMedium := next != 0 && m.Media[m.ElemProp[next]].N == med.N
		if !sameMedium {
			if cfg.Flags.Reflect {
				n1 := med.N
				n2 := cfg.NOut
				if next != 0 {
					n2 = m.Media[m.ElemProp[next]].N
				}
				face := m.Faces[e][res.Face]
				newDir, reflected := reflect.Split(v, [3]float64{face.A, face.B, face.C}, n1, n2, s.NextReflectTest())
				v = newDir
				if reflected {
					continue // stays in e
				}
			}
			if next == 0 {
				if cfg.Specular == config.SpecularTerminateAtVoid {
					return Outcome{State: StateAbsorbed, Launched: launchedWeight, Absorbed: absorbed + w, InitialSeed: initialSeed}
				}
				if cfg.Flags.ExternalDet {
					// §4.7 step 7 exception: continue into void tracking
					// instead of capturing/exiting at the mesh boundary.
					return voidTrack(cfg, m, p, v, w, tau, launchedWeight, absorbed, initWeight, scatterCount, pathLength, momentum, initialSeed)
				}
				return exitOutcome(cfg, m, p, v, w, launchedWeight, absorbed, initWeight, scatterCount, pathLength, momentum, initialSeed)
			}
		}

		e = next
	}
}

func exitOutcome(cfg *config.RunConfig, m *mesh.Mesh, p, v [3]float64, w, launchedWeight, absorbed, initWeight float64,
	scatterCount, pathLength, momentum []float64, initialSeed [2]uint64) Outcome {
	o := Outcome{State: StateExited, Launched: launchedWeight, Absorbed: absorbed, Escaped: w, InitialSeed: initialSeed}
	if !cfg.Flags.SaveDet {
		return o
	}
	id := detect.Hit(m.Detectors, p)
	if id == 0 {
		return o
	}
	o.Detected = buildRecord(cfg, id, p, v, initWeight, scatterCount, pathLength, momentum)
	return o
}

func buildRecord(cfg *config.RunConfig, id int, p, v [3]float64, initWeight float64, scatterCount, pathLength, momentum []float64) *detect.Record {
	rec := &detect.Record{
		DetectorID:   id,
		ScatterCount: append([]float64(nil), scatterCount...),
		PathLength:   append([]float64(nil), pathLength...),
		InitWeight:   initWeight,
	}
	if momentum != nil {
		rec.Momentum = append([]float64(nil), momentum...)
	}
	if cfg.Flags.SaveExit {
		rec.Pos = p
		rec.Vel = v
	}
	return rec
}

// voidStepLen is the straight-line advance per iteration while
// tracking a photon through void space in external-detector mode
// (§4.7 step 7 exception). maxVoidSteps bounds the walk so a photon
// heading away from every detector still terminates.
const (
	voidStepLen  = 0.1
	maxVoidSteps = 10000
)

// voidTrack advances p along v in void (no medium: no absorption, no
// scattering) testing for a detector hit at each step, until either a
// detector captures the photon, the time window closes, or the step
// budget is exhausted — realizing "continue into void tracking"
// rather than terminating immediately at the mesh boundary.
func voidTrack(cfg *config.RunConfig, m *mesh.Mesh, p, v [3]float64, w, tau, launchedWeight, absorbed, initWeight float64,
	scatterCount, pathLength, momentum []float64, initialSeed [2]uint64) Outcome {
	nOut := cfg.NOut
	if nOut <= 0 {
		nOut = 1
	}
	dtau := voidStepLen * nOut / config.SpeedOfLight()

	for i := 0; i < maxVoidSteps && tau <= cfg.Time.T1; i++ {
		if cfg.Flags.SaveDet {
			if id := detect.Hit(m.Detectors, p); id != 0 {
				o := Outcome{State: StateExited, Launched: launchedWeight, Absorbed: absorbed, Escaped: w, InitialSeed: initialSeed}
				o.Detected = buildRecord(cfg, id, p, v, initWeight, scatterCount, pathLength, momentum)
				return o
			}
		}
		p = [3]float64{p[0] + v[0]*voidStepLen, p[1] + v[1]*voidStepLen, p[2] + v[2]*voidStepLen}
		tau += dtau
	}
	if tau > cfg.Time.T1 {
		return Outcome{State: StateTimedOut, Launched: launchedWeight, Absorbed: absorbed + w, InitialSeed: initialSeed}
	}
	return Outcome{State: StateExited, Launched: launchedWeight, Absorbed: absorbed, Escaped: w, InitialSeed: initialSeed}
}
