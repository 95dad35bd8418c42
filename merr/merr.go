// Package merr defines the error taxonomy shared across the transport
// engine: configuration, mesh, buffer-overflow, numeric, and worker
// errors. Callers compare with errors.Is against the sentinel Kind
// values; wrapped errors carry the offending detail via fmt.Errorf("%w").
package merr

import "fmt"

// Kind identifies one of the error categories from the error handling
// design. Kind implements error so it can be used directly as a
// sentinel with errors.Is.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// ConfigKind covers invalid nphoton, non-unit srcdir, empty
	// required fields, or an unknown enum value. Reported before
	// dispatch.
	ConfigKind Kind = "config error"

	// MeshKind covers a non-conforming mesh (I1 violation) or a
	// photon exiting into a tet whose neighbor entry is stale. The
	// owning photon is marked Errored; the batch continues.
	MeshKind Kind = "mesh error"

	// OverflowKind covers the detected-photon buffer exceeding its
	// capacity. Subsequent records are dropped; the cursor keeps
	// counting so the overflow is reportable.
	OverflowKind Kind = "buffer overflow"

	// NumericKind covers a degenerate ray-tet intersection that
	// survives three fix-up attempts.
	NumericKind Kind = "numeric error"

	// WorkerKind covers an unrecoverable error raised by a worker
	// goroutine; the dispatcher reports it at the reduction barrier.
	WorkerKind Kind = "worker exception"
)

// Wrap attaches additional context to a Kind while preserving it as the
// wrapped sentinel, so errors.Is(err, merr.MeshKind) still succeeds.
func Wrap(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}
