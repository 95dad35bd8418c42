package telemetry

import "log/slog"

// ReportProgress logs a coarse progress update: photons completed out
// of the total, and the running energy balance so far. The mmc CLI
// calls it once, after the batch completes, when -P is given.
func ReportProgress(done, total int, launched, absorbed, escaped float64) {
	slog.Info("progress",
		"photons_done", done,
		"photons_total", total,
		"pct", pct(done, total),
		"launched_weight", launched,
		"absorbed_weight", absorbed,
		"escaped_weight", escaped,
	)
}

func pct(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// ReportOverflow logs a detected-photon buffer overflow warning (§7
// "Surfaced: ... buffer overflows are surfaced as a warning with
// counts").
func ReportOverflow(capacity, attempted int) {
	slog.Warn("detected-photon buffer overflow",
		"capacity", capacity,
		"attempted", attempted,
		"dropped", attempted-capacity,
	)
}

// ReportMeshError logs a non-fatal per-photon mesh error (§7
// MeshError: "photon is marked Errored and counted; batch continues").
func ReportMeshError(photonIndex int, err error) {
	slog.Warn("photon errored", "photon_index", photonIndex, "err", err)
}
