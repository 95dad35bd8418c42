// Command mmc is the transport engine's CLI surface (spec.md §6): a
// thin, flag-driven pass-through that loads a configuration, builds a
// mesh, runs the dispatcher, and reports the result. Adapted from the
// teacher's main.go flag-var style (package-level pointer vars from
// flag.Bool/Int/..., long options, everything wired before the run
// loop starts) rather than its ECS/rendering content.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/mmc/accumulate"
	"github.com/pthm-cable/mmc/config"
	"github.com/pthm-cable/mmc/dispatch"
	"github.com/pthm-cable/mmc/mesh"
	"github.com/pthm-cable/mmc/replay"
	"github.com/pthm-cable/mmc/telemetry"
)

// Flag declarations mirror spec.md §6's short-option surface, paired
// with long aliases bound to the same variable. Letters with an
// explicit long name in the spec (E, n, t, b/reflect, d/savedet,
// S/saveseed, e/saveexit, O/outputtype, F/method, M/momentum,
// R/replaydet, L/voidtime, C/basisorder) keep that mapping; the
// remaining letters cover the rest of config.RunConfig and the
// telemetry/session surface.
var (
	help    = flag.Bool("h", false, "show usage and exit")
	helpL   = flag.Bool("help", false, "show usage and exit")
	version = flag.Bool("V", false, "print version and exit")
	versionL = flag.Bool("version", false, "print version and exit")
	verbose = flag.Bool("v", false, "verbose (debug-level) logging")
	verboseL = flag.Bool("verbose", false, "verbose (debug-level) logging")

	seed     = flag.Uint("E", 0, "RNG seed (0 = use config value)")
	seedL    = flag.Uint("seed", 0, "RNG seed (0 = use config value)")
	input    = flag.String("f", "", "path to the YAML run configuration")
	inputL   = flag.String("input", "", "path to the YAML run configuration")
	meshPath = flag.String("a", "", "path to the whitespace-delimited mesh-text file")
	meshPathL = flag.String("mesh", "", "path to the whitespace-delimited mesh-text file")

	nphoton  = flag.Int("n", 0, "override photon count (0 = use config value)")
	nphotonL = flag.Int("photon", 0, "override photon count (0 = use config value)")
	threads  = flag.Int("t", 0, "override worker count (0 = GOMAXPROCS)")
	threadsL = flag.Int("thread", 0, "override worker count (0 = GOMAXPROCS)")

	endTime  = flag.Float64("T", 0, "override time.t1 (0 = use config value)")
	endTimeL = flag.Float64("endtime", 0, "override time.t1 (0 = use config value)")
	gateW    = flag.Float64("g", 0, "override time.dt (0 = use config value)")
	gateWL   = flag.Float64("gatewidth", 0, "override time.dt (0 = use config value)")

	session  = flag.String("s", "", "session name; also used as the output directory")
	sessionL = flag.String("session", "", "session name; also used as the output directory")

	reflect  = flag.Bool("b", false, "enable Fresnel reflection at index mismatches")
	reflectL = flag.Bool("reflect", false, "enable Fresnel reflection at index mismatches")
	saveDet  = flag.Bool("d", false, "save detected-photon records")
	saveDetL = flag.Bool("savedet", false, "save detected-photon records")
	saveSeed = flag.Bool("S", false, "save each detected photon's initial RNG seed")
	saveSeedL = flag.Bool("saveseed", false, "save each detected photon's initial RNG seed")
	saveExit = flag.Bool("e", false, "save each detected photon's exit position/direction")
	saveExitL = flag.Bool("saveexit", false, "save each detected photon's exit position/direction")
	momentum = flag.Bool("M", false, "accumulate per-medium momentum transfer")
	momentumL = flag.Bool("momentum", false, "accumulate per-medium momentum transfer")
	voidTime = flag.Bool("L", false, "treat the time window as non-resolved for roulette purposes")
	voidTimeL = flag.Bool("voidtime", false, "treat the time window as non-resolved for roulette purposes")
	externalDet = flag.Bool("D", false, "continue into void tracking at the mesh boundary instead of exiting immediately")
	normalize = flag.Bool("u", false, "normalize the field by total launched weight")
	normalizeL = flag.Bool("normalize", false, "normalize the field by total launched weight")
	progress = flag.Bool("P", false, "report progress to stderr as photons complete")

	minEnergy  = flag.Float64("r", 0, "override roulette.min_weight (0 = use config value)")
	rouletteSz = flag.Int("q", 0, "override roulette.size (0 = use config value)")
	unitInMM   = flag.Float64("U", 0, "override unit_in_mm (0 = use config value)")
	maxDetect  = flag.Int("l", 0, "override max_detect (0 = use config value)")
	specular   = flag.Int("I", -1, "override specular mode (-1 = use config value)")
	nOut       = flag.Float64("i", 0, "override n_out (0 = use config value)")
	basisOrder  = flag.Int("C", -1, "override basis_order (-1 = use config value)")
	basisOrderL = flag.Int("basisorder", -1, "override basis_order (-1 = use config value)")
	outputType  = flag.String("O", "", "override output_type (empty = use config value)")
	outputTypeL = flag.String("outputtype", "", "override output_type (empty = use config value)")
	method      = flag.String("F", "", "override tracer method (empty = use config value)")
	methodL     = flag.String("method", "", "override tracer method (empty = use config value)")
	gridStep    = flag.Float64("x", 0, "override grid_dstep (0 = use config value)")

	replayDet  = flag.String("R", "", "path to a saved replay-seed file (§6 optional replay input)")
	replayDetL = flag.String("replaydet", "", "path to a saved replay-seed file (§6 optional replay input)")
	output     = flag.String("o", "", "path to write the field buffer (empty = not written)")
	dumpYAML  = flag.String("k", "", "path to dump the effective configuration as YAML")
	perfLog   = flag.Bool("m", false, "write an energy-balance/perf CSV alongside the output")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: mmc -f config.yaml -a mesh.txt [options]\n\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *help || *helpL {
		usage()
		os.Exit(0)
	}
	if *version || *versionL {
		fmt.Println("mmc 1.0.0")
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose || *verboseL {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := buildConfig()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(-1)
	}

	meshIn := firstNonEmpty(*meshPath, *meshPathL)
	if meshIn == "" {
		slog.Error("no mesh supplied", "flag", "-a/--mesh")
		os.Exit(-1)
	}
	m, err := loadMeshFile(meshIn)
	if err != nil {
		slog.Error("mesh error", "err", err)
		os.Exit(-1)
	}

	if err := run(cfg, m, os.Stdout); err != nil {
		slog.Error("dispatch error", "err", err)
		os.Exit(-1)
	}
}

// buildConfig loads the base YAML config (if given) and layers the CLI
// overrides on top of it, mirroring the teacher's flag-overrides-file
// precedence.
func buildConfig() (*config.RunConfig, error) {
	path := firstNonEmpty(*input, *inputL)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if s := firstUint(*seed, *seedL); s != 0 {
		cfg.Seed = uint32(s)
	}
	if n := firstInt(*nphoton, *nphotonL); n != 0 {
		cfg.Nphoton = n
	}
	if w := firstInt(*threads, *threadsL); w != 0 {
		cfg.Workers = w
	}
	if t1 := firstFloat(*endTime, *endTimeL); t1 != 0 {
		cfg.Time.T1 = t1
	}
	if dt := firstFloat(*gateW, *gateWL); dt != 0 {
		cfg.Time.DT = dt
	}
	if *reflect || *reflectL {
		cfg.Flags.Reflect = true
	}
	if *saveDet || *saveDetL {
		cfg.Flags.SaveDet = true
	}
	if *saveSeed || *saveSeedL {
		cfg.Flags.SaveSeed = true
	}
	if *saveExit || *saveExitL {
		cfg.Flags.SaveExit = true
	}
	if *momentum || *momentumL {
		cfg.Flags.Momentum = true
	}
	if *voidTime || *voidTimeL {
		cfg.Flags.VoidTime = true
	}
	if *externalDet {
		cfg.Flags.ExternalDet = true
	}
	if *normalize || *normalizeL {
		cfg.Normalize = true
	}
	if *minEnergy != 0 {
		cfg.Roulette.MinWeight = *minEnergy
	}
	if *rouletteSz != 0 {
		cfg.Roulette.Size = *rouletteSz
	}
	if *unitInMM != 0 {
		cfg.UnitInMM = *unitInMM
	}
	if *maxDetect != 0 {
		cfg.MaxDetect = *maxDetect
	}
	if *specular >= 0 {
		cfg.Specular = config.SpecularMode(*specular)
	}
	if *nOut != 0 {
		cfg.NOut = *nOut
	}
	if b := firstIntSigned(*basisOrder, *basisOrderL); b >= 0 {
		cfg.BasisOrder = b
	}
	if o := firstNonEmpty(*outputType, *outputTypeL); o != "" {
		cfg.Output = config.OutputType(o)
	}
	if mt := firstNonEmpty(*method, *methodL); mt != "" {
		cfg.Method = config.TracerMethod(mt)
	}
	if *gridStep != 0 {
		cfg.GridDStep = *gridStep
	}
	if rd := firstNonEmpty(*replayDet, *replayDetL); rd != "" {
		cfg.ReplaySeedFile = rd
	}

	cfg.RecomputeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadMeshFile(path string) (*mesh.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loadMeshText(f)
}

// run executes one batch and reports the outcome; separated from
// main() so tests can drive it without touching the flag/global state.
func run(cfg *config.RunConfig, m *mesh.Mesh, summary io.Writer) error {
	seedSrc := dispatch.DefaultSeedSource(cfg.Seed)
	if cfg.ReplaySeedFile != "" {
		f, err := os.Open(cfg.ReplaySeedFile)
		if err != nil {
			return fmt.Errorf("opening replay file: %w", err)
		}
		set, err := replay.Load(f, cfg.Nphoton)
		f.Close()
		if err != nil {
			return err
		}
		seedSrc = set.Source(cfg.Seed)
	}

	var om *telemetry.OutputManager
	sess := firstNonEmpty(*session, *sessionL)
	if sess != "" {
		var err error
		om, err = telemetry.NewOutputManager(sess)
		if err != nil {
			return err
		}
		defer om.Close()
		if err := om.WriteConfig(cfg); err != nil {
			return err
		}
	}

	pc := telemetry.NewPerfCollector(1)
	pc.StartBatch()
	start := time.Now()
	res, err := dispatch.Run(cfg, m, seedSrc)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	pc.EndBatch()

	rel := 0.0
	total := res.Absorbed + res.Escaped
	if res.Launched > 0 {
		rel = (total - res.Launched) / res.Launched
		if rel < 0 {
			rel = -rel
		}
	}
	slog.Info("batch complete",
		"elapsed", elapsed,
		"launched", res.Launched,
		"absorbed", res.Absorbed,
		"escaped", res.Escaped,
		"relative_error", rel,
		"detected", len(res.Detected),
		"overflowed", res.Overflowed,
	)
	if *progress {
		telemetry.ReportProgress(cfg.Nphoton, cfg.Nphoton, res.Launched, res.Absorbed, res.Escaped)
	}
	if res.Overflowed {
		telemetry.ReportOverflow(cfg.MaxDetect, len(res.Detected))
	}

	if om != nil {
		if err := om.WriteEnergyBalance(telemetry.EnergyBalance{
			BatchEnd: int64(cfg.Nphoton),
			Launched: res.Launched,
			Absorbed: res.Absorbed,
			Escaped:  res.Escaped,
			Relative: rel,
		}); err != nil {
			return err
		}
		if *perfLog {
			if err := om.WritePerf(pc.Stats(), int64(cfg.Nphoton)); err != nil {
				return err
			}
		}
	}

	if *output != "" {
		if err := writeField(*output, res.Field); err != nil {
			return err
		}
	}
	if *dumpYAML != "" {
		if err := cfg.WriteYAML(*dumpYAML); err != nil {
			return err
		}
	}

	fmt.Fprintf(summary, "launched=%g absorbed=%g escaped=%g detected=%d\n",
		res.Launched, res.Absorbed, res.Escaped, len(res.Detected))
	return nil
}

// writeField writes the G x S field buffer as little-endian float64s,
// row-major by gate-then-site (§6 "Field buffer: G x S doubles").
func writeField(path string, f *accumulate.Field) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return accumulate.WriteField(out, f)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// firstIntSigned is like firstInt but for flags whose "unset" sentinel
// is -1 rather than 0 (basis_order is a legitimate 0 value).
func firstIntSigned(a, b int) int {
	if a >= 0 {
		return a
	}
	return b
}

func firstUint(a, b uint) uint {
	if a != 0 {
		return a
	}
	return b
}

func firstFloat(a, b float64) float64 {
	if a != 0 {
		return a
	}
	return b
}
