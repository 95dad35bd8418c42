// Package config provides configuration loading and validation for the
// transport engine: the time window, photon count, termination
// thresholds, output/tracer/basis selection, source descriptor, and
// detector list described in spec.md §3 and §6.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/mmc/merr"
	"github.com/pthm-cable/mmc/mesh"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// OutputType selects what the accumulator integrates (§3).
type OutputType string

const (
	OutputFlux               OutputType = "flux"
	OutputFluence            OutputType = "fluence"
	OutputEnergy             OutputType = "energy"
	OutputJacobian           OutputType = "jacobian"
	OutputWeightedPathlength OutputType = "wp"
	OutputWeightedScatter    OutputType = "ws"
)

// TracerMethod selects the ray-tet intersection algorithm (§4.2).
type TracerMethod string

const (
	MethodPlucker           TracerMethod = "plucker"
	MethodHavel             TracerMethod = "havel"
	MethodBadouel           TracerMethod = "badouel"
	MethodBadouelBranchless TracerMethod = "badouel_branchless"
	MethodGridBadouel       TracerMethod = "grid_badouel"
)

// SpecularMode controls how an initial/void-bound Fresnel split at
// launch/exit is handled (§4.3).
type SpecularMode int

const (
	SpecularOff            SpecularMode = 0
	SpecularWeightLaunch   SpecularMode = 1 // apply w *= (1-R) at launch
	SpecularTerminateAtVoid SpecularMode = 2 // terminate instead of transmitting into void
)

// SourceType enumerates the source models of §4.8.
type SourceType string

const (
	SourcePencil     SourceType = "pencil"
	SourceIsotropic  SourceType = "isotropic"
	SourceCone       SourceType = "cone"
	SourceGaussian   SourceType = "gaussian"
	SourcePlanar     SourceType = "planar"
	SourcePattern    SourceType = "pattern"
	SourceFourier    SourceType = "fourier"
	SourceFourierX   SourceType = "fourierx"
	SourceFourierX2D SourceType = "fourierx2d"
	SourceArcsine    SourceType = "arcsine"
	SourceDisk       SourceType = "disk"
	SourceZGaussian  SourceType = "zgaussian"
	SourceLine       SourceType = "line"
	SourceSlit       SourceType = "slit"
)

// Vec3 is a plain 3-vector, used for source positions/directions.
type Vec3 struct {
	X, Y, Z float64
}

// Source is the source descriptor of §3/§4.8: a type tag plus the two
// generic parameter 4-vectors the source table keys off of.
type Source struct {
	Type    SourceType `yaml:"type"`
	Pos     Vec3       `yaml:"pos"`
	Dir     Vec3       `yaml:"dir"`
	Param1  [4]float64 `yaml:"param1"`
	Param2  [4]float64 `yaml:"param2"`
	Focus   float64    `yaml:"focus"`
	Pattern *Pattern   `yaml:"pattern,omitempty"`

	// Elems is the user-provided candidate element list searched at
	// launch to find the enclosing tet (§4.8).
	Elems []int32 `yaml:"elems"`
}

// Pattern is an Xs x Ys intensity image for "pattern" sources.
type Pattern struct {
	Xs, Ys int       `yaml:"-"`
	Data   []float64 `yaml:"-"`
}

// TimeConfig is the time-gating window of §3.
type TimeConfig struct {
	T0    float64 `yaml:"t0"`
	T1    float64 `yaml:"t1"`
	DT    float64 `yaml:"dt"`
	Gates int     `yaml:"-"` // derived: ceil((t1-t0)/dt)
}

// RouletteConfig holds Russian-roulette parameters (§4.7 step 10).
type RouletteConfig struct {
	MinWeight float64 `yaml:"min_weight"`
	Size      int     `yaml:"size"`
}

// FlagsConfig holds the boolean behavior switches of §3.
type FlagsConfig struct {
	Reflect     bool `yaml:"reflect"`
	SaveDet     bool `yaml:"save_det"`
	SaveExit    bool `yaml:"save_exit"`
	SaveSeed    bool `yaml:"save_seed"`
	Momentum    bool `yaml:"momentum"`
	VoidTime    bool `yaml:"void_time"`
	ExternalDet bool `yaml:"external_det"`
}

// RunConfig is the full read-only configuration record passed into
// dispatch.Run (§3 "Configuration (read-only at dispatch)").
type RunConfig struct {
	Time       TimeConfig     `yaml:"time"`
	Nphoton    int            `yaml:"nphoton"`
	Seed       uint32         `yaml:"seed"`
	NOut       float64        `yaml:"n_out"`
	Roulette   RouletteConfig `yaml:"roulette"`
	Flags      FlagsConfig    `yaml:"flags"`
	Specular   SpecularMode   `yaml:"specular"`
	BasisOrder int            `yaml:"basis_order"` // 0 = element, 1 = nodal
	Method     TracerMethod   `yaml:"method"`
	GridDStep  float64        `yaml:"grid_dstep"`
	UnitInMM   float64        `yaml:"unit_in_mm"`
	Output     OutputType     `yaml:"output_type"`
	Source     Source         `yaml:"source"`
	MaxDetect  int            `yaml:"max_detect"`

	// StartElem/StartBary let a caller pin a photon's initial
	// position directly, bypassing barycentric search (§3).
	StartElem int32      `yaml:"start_elem"`
	StartBary [4]float64 `yaml:"start_bary"`

	// Workers overrides runtime.GOMAXPROCS(0) when > 0 (ambient,
	// not in spec.md but named in SPEC_FULL.md's dispatcher wiring).
	Workers int `yaml:"workers"`

	// Normalize enables dispatcher-side energy normalization (§4.9c).
	Normalize bool `yaml:"normalize"`

	// ReplaySeedFile, if non-empty, replaces the seed-derivation with
	// saved per-photon seeds (§6 "Optional replay input").
	ReplaySeedFile string `yaml:"replay_seed_file"`
}

const speedOfLightMMPerS = 2.99792458e11 // mm/s, c0 used by time-of-flight (§4.2)

// SpeedOfLight returns c0 in mm/s, the unit convention used throughout
// the transport loop (lengths in mm, times in seconds, matching the
// worked example in spec.md §8 scenario 1: t in [0, 5e-9] s).
func SpeedOfLight() float64 { return speedOfLightMMPerS }

// global holds the loaded configuration for package-level convenience
// (CLI, tests); dispatch.Run itself takes a *RunConfig directly and
// never touches this.
var global *RunConfig

// Init loads configuration from the given path, or uses embedded
// defaults if path is empty, and validates it. Must be called before
// Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *RunConfig {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded
// defaults, computes derived fields, and validates the result.
func Load(path string) (*RunConfig, error) {
	cfg := &RunConfig{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteYAML writes the configuration back out, e.g. alongside run
// output for reproducibility.
func (c *RunConfig) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *RunConfig) computeDerived() {
	if c.Time.DT > 0 {
		c.Time.Gates = int(math.Ceil((c.Time.T1 - c.Time.T0) / c.Time.DT))
	}
}

// RecomputeDerived re-derives Time.Gates after a caller has mutated
// Time.T0/T1/DT directly (e.g. a CLI overriding the loaded config).
func (c *RunConfig) RecomputeDerived() { c.computeDerived() }

// Validate checks the ConfigError-class invariants of §7: invalid
// nphoton, non-unit srcdir, empty required fields, unknown enums.
func (c *RunConfig) Validate() error {
	if c.Nphoton <= 0 {
		return merr.Wrap(merr.ConfigKind, "nphoton must be positive, got %d", c.Nphoton)
	}
	if c.Time.DT <= 0 {
		return merr.Wrap(merr.ConfigKind, "time.dt must be positive, got %v", c.Time.DT)
	}
	if c.Time.T1 <= c.Time.T0 {
		return merr.Wrap(merr.ConfigKind, "time.t1 (%v) must be greater than time.t0 (%v)", c.Time.T1, c.Time.T0)
	}
	if c.Time.Gates <= 0 {
		return merr.Wrap(merr.ConfigKind, "computed gate count must be positive, got %d", c.Time.Gates)
	}
	if c.NOut < 1 {
		return merr.Wrap(merr.ConfigKind, "n_out must be >= 1, got %v", c.NOut)
	}
	if c.Roulette.Size < 1 {
		return merr.Wrap(merr.ConfigKind, "roulette.size must be >= 1, got %d", c.Roulette.Size)
	}
	if c.BasisOrder != 0 && c.BasisOrder != 1 {
		return merr.Wrap(merr.ConfigKind, "basis_order must be 0 or 1, got %d", c.BasisOrder)
	}
	switch c.Method {
	case MethodPlucker, MethodHavel, MethodBadouel, MethodBadouelBranchless, MethodGridBadouel:
	default:
		return merr.Wrap(merr.ConfigKind, "unknown tracer method %q", c.Method)
	}
	switch c.Output {
	case OutputFlux, OutputFluence, OutputEnergy, OutputJacobian, OutputWeightedPathlength, OutputWeightedScatter:
	default:
		return merr.Wrap(merr.ConfigKind, "unknown output type %q", c.Output)
	}
	if err := c.Source.validate(); err != nil {
		return err
	}
	return nil
}

func (s *Source) validate() error {
	switch s.Type {
	case SourcePencil, SourceIsotropic, SourceCone, SourceGaussian, SourcePlanar, SourcePattern,
		SourceFourier, SourceFourierX, SourceFourierX2D, SourceArcsine, SourceDisk, SourceZGaussian,
		SourceLine, SourceSlit:
	default:
		return merr.Wrap(merr.ConfigKind, "unknown source type %q", s.Type)
	}
	requiresDir := s.Type != SourceIsotropic && s.Type != SourceArcsine
	if requiresDir {
		norm := math.Sqrt(s.Dir.X*s.Dir.X + s.Dir.Y*s.Dir.Y + s.Dir.Z*s.Dir.Z)
		if math.Abs(norm-1) > 1e-6 {
			return merr.Wrap(merr.ConfigKind, "source direction must be unit length, got norm %v", norm)
		}
	}
	if s.Type == SourcePattern && s.Pattern == nil {
		return merr.Wrap(merr.ConfigKind, "pattern source requires a pattern image")
	}
	if len(s.Elems) == 0 {
		return merr.Wrap(merr.ConfigKind, "source element candidate list must not be empty")
	}
	return nil
}

// DetectorsOf is a convenience constructor turning a flat list of
// (x,y,z,r) quadruples into mesh.Detector values for a RunConfig's
// companion mesh — detectors themselves live on the mesh, not here,
// but callers assembling both from the same config file commonly need
// this.
func DetectorsOf(flat [][4]float64) []mesh.Detector {
	out := make([]mesh.Detector, len(flat))
	for i, d := range flat {
		out[i] = mesh.Detector{Pos: [3]float64{d[0], d[1], d[2]}, R: d[3]}
	}
	return out
}
