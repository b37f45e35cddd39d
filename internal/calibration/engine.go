package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/vaxsim/internal/model"
	"github.com/banshee-data/vaxsim/internal/monitoring"
)

// Defaults for a calibration run.
const (
	DefaultSamples   = 10000
	DefaultEpsilon   = 0.2
	DefaultSeed      = 42
	DefaultBatchSize = 100
)

// ErrBudgetExhausted is returned with a partial result when MaxSimulations
// trials ran before the requested number of samples was accepted.
var ErrBudgetExhausted = errors.New("simulation budget exhausted")

var errNaNDistance = errors.New("distance is NaN")

// SeedMode selects the random seed each trial simulates with.
type SeedMode string

const (
	// SeedShared gives every trial the run seed, so trials differ only in
	// their parameters.
	SeedShared SeedMode = "shared"
	// SeedPerTrial derives a distinct seed from the run seed and the trial
	// index.
	SeedPerTrial SeedMode = "per_trial"
)

// ParseSeedMode accepts shared and per_trial. Empty means shared.
func ParseSeedMode(s string) (SeedMode, error) {
	switch SeedMode(s) {
	case "", SeedShared:
		return SeedShared, nil
	case SeedPerTrial:
		return SeedPerTrial, nil
	}
	return "", fmt.Errorf("%w: unknown seed mode %q", model.ErrConfig, s)
}

// Config holds the run settings of an Engine.
type Config struct {
	Samples        int     // accepted samples to collect
	Epsilon        float64 // accept when distance < Epsilon
	Seed           uint64
	SeedMode       SeedMode
	Workers        int // concurrent simulations; <= 0 means runtime.NumCPU()
	BatchSize      int // <= 0 means DefaultBatchSize
	MaxSimulations int // 0 means unlimited

	// Options are passed to model.Simulate for every trial; Seed is set per
	// trial.
	Options model.Options
}

// DefaultConfig returns the standard run settings.
func DefaultConfig() Config {
	return Config{
		Samples:   DefaultSamples,
		Epsilon:   DefaultEpsilon,
		Seed:      DefaultSeed,
		SeedMode:  SeedShared,
		BatchSize: DefaultBatchSize,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.Samples < 1 {
		return fmt.Errorf("%w: samples must be positive, got %d", model.ErrConfig, c.Samples)
	}
	if !(c.Epsilon > 0) {
		return fmt.Errorf("%w: epsilon must be positive, got %g", model.ErrConfig, c.Epsilon)
	}
	if c.MaxSimulations < 0 {
		return fmt.Errorf("%w: max simulations must not be negative", model.ErrConfig)
	}
	if _, err := ParseSeedMode(string(c.SeedMode)); err != nil {
		return err
	}
	return nil
}

// Simulator runs the model for one trial.
type Simulator func(p model.Params, seed uint64) (*model.Trajectory, error)

// Trial is the outcome of one simulation.
type Trial struct {
	Index    int // 1-based sequence number in submission order
	Seed     uint64
	Params   model.Params
	Distance float64
	Accepted bool
	Err      error
	Duration time.Duration
}

// Outcome returns accepted, rejected or failed.
func (t Trial) Outcome() string {
	switch {
	case t.Err != nil:
		return "failed"
	case t.Accepted:
		return "accepted"
	}
	return "rejected"
}

// Recorder persists every processed trial.
type Recorder interface {
	RecordTrial(ctx context.Context, t Trial) error
}

// Progress is told about every acceptance.
type Progress interface {
	Advance(accepted, target int)
}

// Metrics observes trial outcomes.
type Metrics interface {
	ObserveTrial(outcome string, d time.Duration)
	SetAccepted(n int)
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l monitoring.Logger) Option { return func(e *Engine) { e.log = monitoring.OrNop(l) } }

// WithRecorder sets the trial recorder.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.rec = r } }

// WithProgress sets the progress reporter.
func WithProgress(p Progress) Option { return func(e *Engine) { e.progress = p } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithSimulator replaces model.Simulate, mainly for tests.
func WithSimulator(s Simulator) Option { return func(e *Engine) { e.sim = s } }

// Engine runs ABC rejection sampling.
type Engine struct {
	cfg      Config
	obsSero  []float64
	obsDiva  []float64
	prior    Prior
	sim      Simulator
	log      monitoring.Logger
	rec      Recorder
	progress Progress
	metrics  Metrics
}

// NewEngine validates cfg and wires the collaborators.
func NewEngine(cfg Config, observed *Observed, prior Prior, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if observed == nil || observed.Len() == 0 {
		return nil, ErrNoObservations
	}
	if prior == nil {
		return nil, fmt.Errorf("%w: no prior sampler", model.ErrConfig)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SeedMode == "" {
		cfg.SeedMode = SeedShared
	}

	e := &Engine{
		cfg:     cfg,
		obsSero: observed.Sero(),
		obsDiva: observed.DIVA(),
		prior:   prior,
		log:     monitoring.Nop(),
	}
	base := cfg.Options
	e.sim = func(p model.Params, seed uint64) (*model.Trajectory, error) {
		o := base
		o.Seed = model.Seed(seed)
		o.Diagnosis = false
		return model.Simulate(p, o)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective settings.
func (e *Engine) Config() Config { return e.cfg }

// Run collects cfg.Samples accepted parameter vectors. Batches of trials are
// simulated concurrently and then processed in submission order. On
// cancellation or an exhausted budget the partial result is returned
// together with the error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg := e.cfg
	res := &Result{}
	start := time.Now()
	e.log.Infof("ABC calibration: samples=%d epsilon=%g seed=%d seed_mode=%s workers=%d batch=%d",
		cfg.Samples, cfg.Epsilon, cfg.Seed, cfg.SeedMode, cfg.Workers, cfg.BatchSize)

	for len(res.Accepted) < cfg.Samples {
		if err := ctx.Err(); err != nil {
			res.finish()
			return res, fmt.Errorf("calibration stopped after %d simulations: %w", res.Total, err)
		}
		size := min(cfg.BatchSize, cfg.Samples-len(res.Accepted))
		if cfg.MaxSimulations > 0 {
			left := cfg.MaxSimulations - res.Total
			if left <= 0 {
				res.finish()
				return res, fmt.Errorf("%w: %d simulations, %d of %d accepted",
					ErrBudgetExhausted, res.Total, len(res.Accepted), cfg.Samples)
			}
			size = min(size, left)
		}

		trials := make([]Trial, size)
		for i := range trials {
			idx := res.Total + i + 1
			trials[i] = Trial{Index: idx, Seed: e.trialSeed(idx), Params: e.prior.Sample()}
		}

		var g errgroup.Group
		g.SetLimit(cfg.Workers)
		for i := range trials {
			g.Go(func() error {
				e.runTrial(&trials[i])
				return nil
			})
		}
		_ = g.Wait()

		for _, t := range trials {
			e.process(ctx, res, t)
		}
		e.log.Infof("batch processed: total simulations = %d, accepted = %d, failed = %d",
			res.Total, len(res.Accepted), res.Failed)
	}

	res.finish()
	e.log.Infof("calibration complete in %s: acceptance rate %.2f%%, total simulations %d, accepted %d",
		time.Since(start).Round(time.Millisecond), res.AcceptanceRate*100, res.Total, len(res.Accepted))
	s := res.Summary
	e.log.Infof("distance summary: count=%d mean=%.6f std=%.6f min=%.6f 25%%=%.6f 50%%=%.6f 75%%=%.6f max=%.6f",
		s.Count, s.Mean, s.Std, s.Min, s.Q25, s.Median, s.Q75, s.Max)
	return res, nil
}

func (e *Engine) trialSeed(idx int) uint64 {
	if e.cfg.SeedMode == SeedPerTrial {
		return splitmix64(e.cfg.Seed + uint64(idx))
	}
	return e.cfg.Seed
}

// runTrial simulates t.Params and fills in the distance or the error. It
// never panics.
func (e *Engine) runTrial(t *Trial) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.Err = fmt.Errorf("trial %d panicked: %v\n%s", t.Index, r, debug.Stack())
		}
		t.Duration = time.Since(start)
	}()

	traj, err := e.sim(t.Params, t.Seed)
	if err != nil {
		t.Err = err
		return
	}
	n := t.Params.Population()
	d := Distance(e.obsSero, e.obsDiva, traj.Seroprevalence(n), traj.DIVA(n))
	if math.IsNaN(d) {
		t.Err = errNaNDistance
		return
	}
	t.Distance = d
	t.Accepted = d < e.cfg.Epsilon
}

func (e *Engine) process(ctx context.Context, res *Result, t Trial) {
	res.Total++
	switch {
	case t.Err != nil:
		res.Failed++
		e.log.Warnf("simulation %d failed: %v (params %v)", t.Index, t.Err, t.Params)
	case t.Accepted:
		res.Accepted = append(res.Accepted, Sample{Index: t.Index, Params: t.Params, Distance: t.Distance})
		res.AcceptedDistances = append(res.AcceptedDistances, t.Distance)
		e.log.Infof("simulation %d - distance: %.6f - accepted", t.Index, t.Distance)
		if e.progress != nil {
			e.progress.Advance(len(res.Accepted), e.cfg.Samples)
		}
	default:
		res.RejectedDistances = append(res.RejectedDistances, t.Distance)
		e.log.Infof("simulation %d - distance: %.6f - rejected", t.Index, t.Distance)
	}

	if e.metrics != nil {
		e.metrics.ObserveTrial(t.Outcome(), t.Duration)
		e.metrics.SetAccepted(len(res.Accepted))
	}
	if e.rec != nil {
		if err := e.rec.RecordTrial(ctx, t); err != nil {
			e.log.Errorf("record simulation %d: %v", t.Index, err)
		}
	}
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Sample is one accepted parameter vector.
type Sample struct {
	Index    int
	Params   model.Params
	Distance float64
}

// Summary describes the accepted distances.
type Summary struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64
}

// Result is the outcome of a calibration run.
type Result struct {
	Accepted          []Sample
	AcceptedDistances []float64
	RejectedDistances []float64
	Total             int // all attempted trials, failed ones included
	Failed            int
	AcceptanceRate    float64
	Summary           Summary
}

func (r *Result) finish() {
	if r.Total > 0 {
		r.AcceptanceRate = float64(len(r.Accepted)) / float64(r.Total)
	}
	r.Summary = Summarize(r.AcceptedDistances)
}

// Summarize computes count, mean, sample standard deviation, min, quartiles
// and max. Quartiles use gonum's LinInterp estimator.
func Summarize(xs []float64) Summary {
	s := Summary{Count: len(xs)}
	if len(xs) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Q25, s.Median, s.Q75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return s
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	s.Mean = stat.Mean(sorted, nil)
	s.Std = math.NaN()
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q25 = stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	s.Median = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	s.Q75 = stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	return s
}

// Table returns one row per accepted sample holding the named parameters,
// in acceptance order. Missing parameters are NaN.
func (r *Result) Table(names []string) [][]float64 {
	rows := make([][]float64, len(r.Accepted))
	for i, s := range r.Accepted {
		row := make([]float64, len(names))
		for j, n := range names {
			v, ok := s.Params[n]
			if !ok {
				v = math.NaN()
			}
			row[j] = v
		}
		rows[i] = row
	}
	return rows
}
