// Package accumulate implements the time-gated fluence/energy field of
// spec.md §4.5: per-step energy deposit distributed over either mesh
// elements (basis=0), mesh nodes (basis=1), or a Cartesian grid
// (grid-Badouel), with either atomic or per-worker-private reduction.
package accumulate

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
)

// Field is a private (single-writer) G x S accumulator, one row per
// time gate, used as each worker's local copy before reduction (§3
// "per-worker private arrays reduced at termination").
type Field struct {
	Gates, Sites int
	Data         []float64
}

// NewField allocates a zeroed field with gates*sites cells.
func NewField(gates, sites int) *Field {
	return &Field{Gates: gates, Sites: sites, Data: make([]float64, gates*sites)}
}

// Add deposits val at (gate, site), ignoring out-of-range indices
// (Gate already clamps the gate index, but a
// defensive bound here keeps a single bad node index from corrupting
// neighboring cells).
func (f *Field) Add(gate, site int, val float64) {
	if gate < 0 || gate >= f.Gates || site < 0 || site >= f.Sites {
		return
	}
	f.Data[gate*f.Sites+site] += val
}

// Merge element-wise adds other into f (dispatcher reduction step,
// §3 "(a) reduces private accumulators by element-wise sum").
func (f *Field) Merge(other *Field) {
	floats.Add(f.Data, other.Data)
}

// TotalWeight sums every cell, used for the mass-conservation check
// (P2) and for computing the normalization factor (§4.9c).
func (f *Field) TotalWeight() float64 {
	return floats.Sum(f.Data)
}

// Scale multiplies every cell by s in place (normalization, §4.9c).
func (f *Field) Scale(s float64) {
	floats.Scale(s, f.Data)
}

// WriteField serializes f as little-endian float64s, row-major by
// gate-then-site (§6 "Field buffer: G x S doubles, row-major by
// gate-then-site").
func WriteField(w io.Writer, f *Field) error {
	return binary.Write(w, binary.LittleEndian, f.Data)
}

// ReadField is the inverse of WriteField, for a consumer rebuilding a
// field from a previously written buffer.
func ReadField(r io.Reader, gates, sites int) (*Field, error) {
	f := NewField(gates, sites)
	if err := binary.Read(r, binary.LittleEndian, f.Data); err != nil {
		return nil, err
	}
	return f, nil
}

// AtomicField is a shared G x S accumulator safe for concurrent Add
// calls from multiple workers, emulating float-atomic-add with a CAS
// loop on the IEEE-754 bit pattern (§3 "Float-atomic accumulation").
type AtomicField struct {
	Gates, Sites int
	bits         []atomic.Uint64
}

// NewAtomicField allocates a zeroed shared field.
func NewAtomicField(gates, sites int) *AtomicField {
	return &AtomicField{Gates: gates, Sites: sites, bits: make([]atomic.Uint64, gates*sites)}
}

// Add atomically deposits val at (gate, site).
func (f *AtomicField) Add(gate, site int, val float64) {
	if gate < 0 || gate >= f.Gates || site < 0 || site >= f.Sites {
		return
	}
	idx := gate*f.Sites + site
	for {
		old := f.bits[idx].Load()
		next := math.Float64bits(math.Float64frombits(old) + val)
		if f.bits[idx].CompareAndSwap(old, next) {
			return
		}
	}
}

// Snapshot copies the current values into a plain Field.
func (f *AtomicField) Snapshot() *Field {
	out := NewField(f.Gates, f.Sites)
	for i := range out.Data {
		out.Data[i] = math.Float64frombits(f.bits[i].Load())
	}
	return out
}
