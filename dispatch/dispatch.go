// Package dispatch implements the data-parallel photon dispatcher of
// spec.md §4.9: splitting Nph photons across W worker goroutines
// (mirroring the teacher's chunked-goroutine/WaitGroup pattern), each
// with a private accumulator, reduced and optionally normalized at a
// single end-of-batch barrier.
package dispatch

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pthm-cable/mmc/accumulate"
	"github.com/pthm-cable/mmc/config"
	"github.com/pthm-cable/mmc/detect"
	"github.com/pthm-cable/mmc/merr"
	"github.com/pthm-cable/mmc/mesh"
	"github.com/pthm-cable/mmc/photon"
	"github.com/pthm-cable/mmc/rng"
)

// Result is the full outcome of a dispatch run (§4.9c "(field,
// detected_photons, detected_seeds)" plus the energy totals needed
// for P1/normalization).
type Result struct {
	Field         *accumulate.Field
	Detected      []detect.Record
	DetectedSeeds [][2]uint64
	Launched      float64
	Absorbed      float64
	Escaped       float64
	Overflowed    bool
}

// SeedSource supplies the RNG stream for photon index i, plus an
// optional replayed launch (weight, time) override: ok is true only
// when a replay set covers this index, in which case w/tau should
// replace the photon's default launch weight and launch time (§6
// "Optional replay input", "matching replayweight[nphoton],
// replaytime[nphoton]", P6). The default (DefaultSeedSource) derives
// the stream from (cfg.Seed, i) and never overrides weight/time; the
// replay package supplies one that restores saved per-photon state
// instead.
type SeedSource func(index uint64) (stream *rng.Stream, w, tau float64, ok bool)

// DefaultSeedSource derives each photon's stream from (seed, index),
// the reproducible-by-construction path independent of worker count
// or scheduling (P3, P4).
func DefaultSeedSource(seed uint32) SeedSource {
	return func(index uint64) (*rng.Stream, float64, float64, bool) {
		return rng.New(seed, index), 0, 0, false
	}
}

// Run executes cfg.Nphoton independent photon histories split into W
// equal chunks plus a remainder (§4.9), one goroutine per chunk, each
// writing to its own private accumulator. At completion it reduces
// the private accumulators, optionally normalizes, and returns the
// combined field and detected-photon buffers.
func Run(cfg *config.RunConfig, m *mesh.Mesh, seeds SeedSource) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var grid *accumulate.Grid
	sites := siteCount(cfg, m)
	if cfg.Method == config.MethodGridBadouel {
		grid = buildGrid(cfg, m)
		sites = grid.Sites()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > cfg.Nphoton {
		workers = cfg.Nphoton
	}
	if workers < 1 {
		workers = 1
	}

	chunkSize := (cfg.Nphoton + workers - 1) / workers
	buf := detect.NewBuffer(cfg.MaxDetect, cfg.Flags.SaveSeed)

	fields := make([]*accumulate.Field, workers)
	launched := make([]float64, workers)
	absorbed := make([]float64, workers)
	escaped := make([]float64, workers)

	var errFlag atomic.Bool
	var firstErr atomic.Value

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > cfg.Nphoton {
			end = cfg.Nphoton
		}
		if start >= end {
			continue
		}
		fields[w] = accumulate.NewField(cfg.Time.Gates, sites)

		wg.Add(1)
		go func(workerID, i0, i1 int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errFlag.Store(true)
					firstErr.CompareAndSwap(nil, any(merr.Wrap(merr.WorkerKind, "worker %d panicked: %v", workerID, r)))
				}
			}()

			f := fields[workerID]
			for i := i0; i < i1; i++ {
				if errFlag.Load() {
					return
				}
				stream, ow, otau, replayed := seeds(uint64(i))
				var override *photon.LaunchOverride
				if replayed {
					override = &photon.LaunchOverride{W: ow, Tau: otau}
				}
				out := photon.Run(cfg, m, &cfg.Source, stream, f, grid, override)
				launched[workerID] += out.Launched
				absorbed[workerID] += out.Absorbed
				escaped[workerID] += out.Escaped
				if out.Detected != nil {
					buf.Append(*out.Detected, out.InitialSeed)
				}
			}
		}(w, start, end)
	}
	wg.Wait()

	if errFlag.Load() {
		if v := firstErr.Load(); v != nil {
			return nil, v.(error)
		}
		return nil, merr.Wrap(merr.WorkerKind, "worker exception (no detail captured)")
	}

	field := accumulate.NewField(cfg.Time.Gates, sites)
	var totalLaunched, totalAbsorbed, totalEscaped float64
	for w := 0; w < workers; w++ {
		if fields[w] == nil {
			continue
		}
		field.Merge(fields[w])
		totalLaunched += launched[w]
		totalAbsorbed += absorbed[w]
		totalEscaped += escaped[w]
	}

	if cfg.Normalize && totalLaunched > 0 {
		field.Scale(1.0 / totalLaunched)
	}

	return &Result{
		Field:         field,
		Detected:      append([]detect.Record(nil), buf.Records()...),
		DetectedSeeds: buf.Seeds(),
		Launched:      totalLaunched,
		Absorbed:      totalAbsorbed,
		Escaped:       totalEscaped,
		Overflowed:    buf.Overflowed(),
	}, nil
}

// siteCount returns the accumulator's site dimension for the
// configured basis: one site per node (basis=1) or per element
// (basis=0).
func siteCount(cfg *config.RunConfig, m *mesh.Mesh) int {
	if cfg.BasisOrder == 1 {
		return len(m.Nodes)
	}
	return len(m.Elems)
}

// buildGrid derives a Cartesian voxel lattice covering the mesh's
// bounding box at the configured grid_dstep resolution, for
// grid-Badouel accumulation (§4.5).
func buildGrid(cfg *config.RunConfig, m *mesh.Mesh) *accumulate.Grid {
	min := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	max := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := 1; i < len(m.Nodes); i++ {
		n := m.Nodes[i]
		if n.X < min[0] {
			min[0] = n.X
		}
		if n.Y < min[1] {
			min[1] = n.Y
		}
		if n.Z < min[2] {
			min[2] = n.Z
		}
		if n.X > max[0] {
			max[0] = n.X
		}
		if n.Y > max[1] {
			max[1] = n.Y
		}
		if n.Z > max[2] {
			max[2] = n.Z
		}
	}

	dstep := cfg.GridDStep
	if dstep <= 0 {
		dstep = 1
	}
	dims := [3]int{
		int(math.Ceil((max[0]-min[0])*dstep)) + 1,
		int(math.Ceil((max[1]-min[1])*dstep)) + 1,
		int(math.Ceil((max[2]-min[2])*dstep)) + 1,
	}
	return &accumulate.Grid{NMin: min, Dims: dims, DStep: dstep}
}
