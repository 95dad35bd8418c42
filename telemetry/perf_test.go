package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollectorAccumulatesStages(t *testing.T) {
	p := NewPerfCollector(4)
	for i := 0; i < 4; i++ {
		p.StartBatch()
		p.StartStage(StageStep)
		time.Sleep(time.Millisecond)
		p.StartStage(StageAccumulate)
		time.Sleep(time.Millisecond)
		p.EndBatch()
	}
	stats := p.Stats()
	if stats.AvgBatchDuration <= 0 {
		t.Fatalf("expected positive avg batch duration, got %v", stats.AvgBatchDuration)
	}
	if _, ok := stats.StagePct[StageStep]; !ok {
		t.Fatalf("expected step stage in StagePct")
	}
	if _, ok := stats.StagePct[StageAccumulate]; !ok {
		t.Fatalf("expected accumulate stage in StagePct")
	}
}

func TestDebugFlagsHas(t *testing.T) {
	f := DebugMove | DebugProgress
	if !f.Has(DebugMove) {
		t.Fatalf("expected DebugMove set")
	}
	if !f.Has(DebugProgress) {
		t.Fatalf("expected DebugProgress set")
	}
	if f.Has(DebugAccum) {
		t.Fatalf("did not expect DebugAccum set")
	}
}

func TestEmptyCollectorStats(t *testing.T) {
	p := NewPerfCollector(4)
	stats := p.Stats()
	if stats.AvgBatchDuration != 0 {
		t.Fatalf("expected zero avg for empty collector")
	}
}
