package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/mmc/config"
)

// EnergyBalance is one row of the energy-balance summary (P1): total
// launched weight vs. absorbed vs. escaped, per batch/checkpoint.
type EnergyBalance struct {
	BatchEnd int64   `csv:"batch_end"`
	Launched float64 `csv:"launched_weight"`
	Absorbed float64 `csv:"absorbed_weight"`
	Escaped  float64 `csv:"escaped_weight"`
	Relative float64 `csv:"relative_error"` // |launched-(absorbed+escaped)|/launched
}

// OutputManager handles structured run output with CSV logging:
// energy-balance summaries and per-stage performance, plus a copy of
// the configuration used.
type OutputManager struct {
	dir                  string
	energyFile           *os.File
	perfFile             *os.File
	energyHeaderWritten  bool
	perfHeaderWritten    bool
}

// NewOutputManager creates an output manager and initializes the
// output directory. Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	energyPath := filepath.Join(dir, "energy_balance.csv")
	f, err := os.Create(energyPath)
	if err != nil {
		return nil, fmt.Errorf("creating energy_balance.csv: %w", err)
	}
	om.energyFile = f

	perfPath := filepath.Join(dir, "perf.csv")
	f, err = os.Create(perfPath)
	if err != nil {
		om.energyFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.RunConfig) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteEnergyBalance writes one energy-balance row.
func (om *OutputManager) WriteEnergyBalance(eb EnergyBalance) error {
	if om == nil {
		return nil
	}
	records := []EnergyBalance{eb}
	if !om.energyHeaderWritten {
		if err := gocsv.Marshal(records, om.energyFile); err != nil {
			return fmt.Errorf("writing energy balance: %w", err)
		}
		om.energyHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.energyFile); err != nil {
		return fmt.Errorf("writing energy balance: %w", err)
	}
	return nil
}

// WritePerf writes one performance stats row.
func (om *OutputManager) WritePerf(stats PerfStats, batchEnd int64) error {
	if om == nil {
		return nil
	}
	records := []PerfStatsCSV{stats.ToCSV(batchEnd)}
	if !om.perfHeaderWritten {
		if err := gocsv.Marshal(records, om.perfFile); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		om.perfHeaderWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.perfFile); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	if om.energyFile != nil {
		if err := om.energyFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if om.perfFile != nil {
		if err := om.perfFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
