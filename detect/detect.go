// Package detect implements detector capture (spec.md §4.6): sphere
// tests against the configured detector list, and a fixed-width
// packed record buffer with an atomically-incremented cursor shared
// across workers.
package detect

import (
	"sync/atomic"

	"github.com/pthm-cable/mmc/mesh"
)

// Hit returns the 1-based id of the first detector whose sphere
// contains p, or 0 if none match ("first hit wins", §4.6).
func Hit(detectors []mesh.Detector, p [3]float64) int {
	for i, d := range detectors {
		dx, dy, dz := p[0]-d.Pos[0], p[1]-d.Pos[1], p[2]-d.Pos[2]
		if dx*dx+dy*dy+dz*dz <= d.R*d.R {
			return i + 1
		}
	}
	return 0
}

// Record is one detected-photon entry. ScatterCount/PathLength/
// Momentum are per-medium (index 0 unused, matching mesh.Media's
// background slot), and are only meaningful when the corresponding
// flag enabled them during transport. Pos/Vel/InitWeight are filled
// per the save-exit and general record format of §4.6.
type Record struct {
	DetectorID   int
	ScatterCount []float64
	PathLength   []float64
	Momentum     []float64 // nil unless momentum-save is enabled
	Pos, Vel     [3]float64
	InitWeight   float64
}

// Buffer is a fixed-capacity, concurrency-safe detected-photon log.
// Writers call Append; once capacity is reached further records are
// dropped but the cursor keeps advancing so callers can detect
// overflow (§4.6 "the cursor still advances so the host can detect
// overflow").
type Buffer struct {
	cursor   atomic.Int64
	cap      int
	records  []Record
	seeds    [][2]uint64
	saveSeed bool
}

// NewBuffer allocates a buffer for up to capacity records. If
// saveSeed is true, a parallel seed buffer of the same capacity is
// kept (§4.6 "If seed-save is enabled, also copy the photon's initial
// RNG state into a parallel buffer").
func NewBuffer(capacity int, saveSeed bool) *Buffer {
	b := &Buffer{cap: capacity, records: make([]Record, capacity), saveSeed: saveSeed}
	if saveSeed {
		b.seeds = make([][2]uint64, capacity)
	}
	return b
}

// Append attempts to store rec (and, if seed-saving, the photon's
// initial seed state) at the next cursor slot. It returns the total
// number of append attempts observed so far (including this one),
// which may exceed Capacity() when the buffer has overflowed.
func (b *Buffer) Append(rec Record, seed [2]uint64) int {
	idx := b.cursor.Add(1) - 1
	attempts := int(idx) + 1
	if int(idx) >= b.cap {
		return attempts
	}
	b.records[idx] = rec
	if b.saveSeed {
		b.seeds[idx] = seed
	}
	return attempts
}

// Count returns how many append attempts were made, which may exceed
// Capacity if the buffer overflowed.
func (b *Buffer) Count() int { return int(b.cursor.Load()) }

// Capacity returns the buffer's fixed record capacity.
func (b *Buffer) Capacity() int { return b.cap }

// Overflowed reports whether more records were appended than fit.
func (b *Buffer) Overflowed() bool { return b.Count() > b.cap }

// Records returns the stored records, trimmed to however many
// actually fit (never more than Capacity()).
func (b *Buffer) Records() []Record {
	n := b.Count()
	if n > b.cap {
		n = b.cap
	}
	if n < 0 {
		n = 0
	}
	return b.records[:n]
}

// Seeds returns the parallel saved-seed buffer, trimmed the same way
// as Records. Empty if seed-saving was not enabled.
func (b *Buffer) Seeds() [][2]uint64 {
	if !b.saveSeed {
		return nil
	}
	n := b.Count()
	if n > b.cap {
		n = b.cap
	}
	if n < 0 {
		n = 0
	}
	return b.seeds[:n]
}
