// Package telemetry provides structured progress logging, per-stage
// timing, the §6 debug-flag bitmask, and an optional CSV dump of
// energy-balance summaries for a transport run — the "host-side
// progress-bar/log plumbing" spec.md §1 references as an external
// collaborator interface, realized here in the teacher's own idiom
// (slog + a rolling PerfCollector + gocsv output).
package telemetry

import (
	"log/slog"
	"time"
)

// Stage names for the per-photon pipeline, timed by PerfCollector.
const (
	StageLaunch     = "launch"
	StageStep       = "step"
	StageScatter    = "scatter"
	StageAccumulate = "accumulate"
	StageDetect     = "detect"
	StageReduce     = "reduce"
)

// DebugFlags is the bitmask of §6 "Debug flags".
type DebugFlags uint32

const (
	DebugMove       DebugFlags = 1 << iota // Move
	DebugRayPoly                           // RayPoly
	DebugBary                              // Bary
	DebugWeight                            // Weight
	DebugDist                              // Dist
	DebugTracingIn                         // TracingIn
	DebugTracingOut                        // TracingOut
	DebugEdge                              // Edge
	DebugAccum                             // Accum
	DebugTime                              // Time
	DebugReflect                           // Reflect
	DebugProgress                          // Progress
	DebugExit                              // Exit
)

// Has reports whether all bits of want are set in f.
func (f DebugFlags) Has(want DebugFlags) bool { return f&want == want }

// PerfSample holds timing data for a single dispatch batch.
type PerfSample struct {
	BatchDuration time.Duration
	Stages        map[string]time.Duration
}

// PerfCollector tracks stage timing over a rolling window of batches.
// A dispatcher run that reports progress in chunks (e.g. one sample
// per worker chunk) uses one of these to produce an aggregate stage
// breakdown, adapted from the teacher's tick-phase PerfCollector.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentStages map[string]time.Duration
	batchStart    time.Time
	stageStart    time.Time
	lastStage     string
}

// NewPerfCollector creates a collector averaging over windowSize
// batches.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 16
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentStages: make(map[string]time.Duration),
	}
}

// StartBatch begins timing a new batch (e.g. one photon chunk).
func (p *PerfCollector) StartBatch() {
	p.batchStart = time.Now()
	p.currentStages = make(map[string]time.Duration)
	p.lastStage = ""
}

// StartStage begins timing a named pipeline stage.
func (p *PerfCollector) StartStage(stage string) {
	now := time.Now()
	if p.lastStage != "" {
		p.currentStages[p.lastStage] += now.Sub(p.stageStart)
	}
	p.stageStart = now
	p.lastStage = stage
}

// EndBatch finishes timing the current batch and records the sample.
func (p *PerfCollector) EndBatch() {
	now := time.Now()
	if p.lastStage != "" {
		p.currentStages[p.lastStage] += now.Sub(p.stageStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		BatchDuration: now.Sub(p.batchStart),
		Stages:        p.currentStages,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics over the window.
type PerfStats struct {
	AvgBatchDuration time.Duration
	MinBatchDuration time.Duration
	MaxBatchDuration time.Duration
	StageAvg         map[string]time.Duration
	StagePct         map[string]float64
	BatchesPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{StageAvg: map[string]time.Duration{}, StagePct: map[string]float64{}}
	}

	var total, min, max time.Duration
	stageSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		total += s.BatchDuration
		if i == 0 || s.BatchDuration < min {
			min = s.BatchDuration
		}
		if s.BatchDuration > max {
			max = s.BatchDuration
		}
		for stage, dur := range s.Stages {
			stageSum[stage] += dur
		}
	}

	avg := total / time.Duration(p.sampleCount)
	stageAvg := make(map[string]time.Duration)
	stagePct := make(map[string]float64)
	for stage, sum := range stageSum {
		stageAvg[stage] = sum / time.Duration(p.sampleCount)
		if avg > 0 {
			stagePct[stage] = float64(stageAvg[stage]) / float64(avg) * 100
		}
	}

	var perSec float64
	if avg > 0 {
		perSec = float64(time.Second) / float64(avg)
	}

	return PerfStats{
		AvgBatchDuration: avg,
		MinBatchDuration: min,
		MaxBatchDuration: max,
		StageAvg:         stageAvg,
		StagePct:         stagePct,
		BatchesPerSecond: perSec,
	}
}

// LogStats logs performance statistics via slog.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_batch_us", s.AvgBatchDuration.Microseconds(),
		"min_batch_us", s.MinBatchDuration.Microseconds(),
		"max_batch_us", s.MaxBatchDuration.Microseconds(),
		"batches_per_sec", s.BatchesPerSecond,
	}
	for _, stage := range []string{StageLaunch, StageStep, StageScatter, StageAccumulate, StageDetect, StageReduce} {
		if pct, ok := s.StagePct[stage]; ok && pct > 0.1 {
			attrs = append(attrs, stage+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_batch_us", s.AvgBatchDuration.Microseconds()),
		slog.Int64("min_batch_us", s.MinBatchDuration.Microseconds()),
		slog.Int64("max_batch_us", s.MaxBatchDuration.Microseconds()),
		slog.Float64("batches_per_sec", s.BatchesPerSecond),
	}
	for stage, pct := range s.StagePct {
		attrs = append(attrs, slog.Float64(stage+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export via gocsv.
type PerfStatsCSV struct {
	BatchEnd      int64   `csv:"batch_end"`
	AvgBatchUS    int64   `csv:"avg_batch_us"`
	MinBatchUS    int64   `csv:"min_batch_us"`
	MaxBatchUS    int64   `csv:"max_batch_us"`
	BatchesPerSec float64 `csv:"batches_per_sec"`
	LaunchPct     float64 `csv:"launch_pct"`
	StepPct       float64 `csv:"step_pct"`
	ScatterPct    float64 `csv:"scatter_pct"`
	AccumulatePct float64 `csv:"accumulate_pct"`
	DetectPct     float64 `csv:"detect_pct"`
	ReducePct     float64 `csv:"reduce_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(batchEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		BatchEnd:      batchEnd,
		AvgBatchUS:    s.AvgBatchDuration.Microseconds(),
		MinBatchUS:    s.MinBatchDuration.Microseconds(),
		MaxBatchUS:    s.MaxBatchDuration.Microseconds(),
		BatchesPerSec: s.BatchesPerSecond,
		LaunchPct:     s.StagePct[StageLaunch],
		StepPct:       s.StagePct[StageStep],
		ScatterPct:    s.StagePct[StageScatter],
		AccumulatePct: s.StagePct[StageAccumulate],
		DetectPct:     s.StagePct[StageDetect],
		ReducePct:     s.StagePct[StageReduce],
	}
}
