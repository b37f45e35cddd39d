package model

import (
	"math"
	"math/rand/v2"
)

// SeedingConfig selects the seeding policy of a run.
type SeedingConfig struct {
	Method      SeedMethod
	EventSeries []int
}

// Options controls one simulation call.
type Options struct {
	Scenario  string
	Seed      *uint64 // nil draws a fresh seed
	Diagnosis bool
	Strategy  Strategy
	Ranker    Ranker // used by StrategyTargeted; nil degrades to random
	Seeding   SeedingConfig
}

// Seed returns a pointer to v, for Options.Seed.
func Seed(v uint64) *uint64 {
	return &v
}

// Model advances the compartments one day at a time.
type Model struct {
	day      int
	days     int
	n        int
	beta     float64
	gamma    float64
	seedRate int
	schedule []int

	s, i     int
	rec, vax *cohorts

	alloc Allocator
	rnd   *Sampler
}

// NewModel builds a model at day 0 from validated params.
func NewModel(p Params, strategy Strategy, ranker Ranker, schedule []int, seed uint64) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	days := p.Int(ParamDays)
	recWaning := Waning{Shape: p.Get(ParamRecShape), Scale: p.Get(ParamRecScale)}
	vaxWaning := Waning{Shape: p.Get(ParamVaxShape), Scale: p.Get(ParamVaxScale)}

	m := &Model{
		days:     days,
		n:        p.Population(),
		beta:     p.Get(ParamBeta),
		gamma:    p.Get(ParamGamma),
		seedRate: p.Int(ParamSeedRate),
		schedule: schedule,
		s:        p.Int(ParamS0),
		i:        p.Int(ParamI0),
		rec:      newCohorts(days, recWaning.HazardTable(days)),
		vax:      newCohorts(days, vaxWaning.HazardTable(days)),
		alloc:    NewAllocator(strategy, CampaignFromParams(p), ranker),
		rnd:      NewSampler(newSource(seed, streamDynamics)),
	}
	m.rec.add(0, p.Int(ParamR0))
	m.vax.add(0, p.Int(ParamV0))

	// Seeds scheduled on day 0 are part of the initial state.
	seeds := min(SeedInfection(0, schedule, m.seedRate), m.s)
	m.s -= seeds
	m.i += seeds
	return m, nil
}

// Day returns the index of the current state.
func (m *Model) Day() int { return m.day }

// State returns the current compartment counts.
func (m *Model) State() State {
	return State{S: m.s, I: m.i, R: m.rec.total, V: m.vax.total}
}

// Done reports whether the horizon has been reached.
func (m *Model) Done() bool { return m.day >= m.days-1 }

// Step advances one day and returns the new state. Within a day the order
// is waning, transmission, seeding, recovery, vaccination; every transition
// draws from what is left in its source compartment, so no count can go
// negative and the total is conserved.
func (m *Model) Step() State {
	if m.Done() {
		return m.State()
	}
	t := m.day + 1
	prevI := m.i

	m.s += m.rec.wane(t, m.rnd) + m.vax.wane(t, m.rnd)

	var newInf int
	if prevI > 0 && m.n > 0 {
		newInf = m.rnd.Binomial(m.s, -math.Expm1(-m.beta*float64(prevI)/float64(m.n)))
	}
	m.s -= newInf

	seeds := min(SeedInfection(t, m.schedule, m.seedRate), m.s)
	m.s -= seeds
	newInf += seeds

	recovered := m.rnd.Binomial(prevI, -math.Expm1(-m.gamma))
	m.i = prevI - recovered + newInf
	m.rec.add(t, recovered)

	a := m.alloc.Allocate(t, m.State(), m.rnd)
	if a.FromS > 0 {
		m.s -= a.FromS
		m.vax.add(t, a.FromS)
	}
	if a.Boosted > 0 {
		var moved int
		if a.BoostOldest {
			moved = m.vax.takeOldest(a.Boosted)
		} else {
			moved = m.vax.takeRandom(a.Boosted, m.rnd)
		}
		m.vax.add(t, moved)
	}

	m.day = t
	return m.State()
}

// diagnose samples decay times for every protected animal on day.
func (m *Model) diagnose(day int, vaxWaning, recWaning Waning) DecaySample {
	var out DecaySample
	m.vax.ages(day, func(age, count int) {
		for k := 0; k < count; k++ {
			out.Vaccinated = append(out.Vaccinated, vaxWaning.DrawGiven(float64(age)))
		}
	})
	m.rec.ages(day, func(age, count int) {
		for k := 0; k < count; k++ {
			out.Recovered = append(out.Recovered, recWaning.DrawGiven(float64(age)))
		}
	})
	return out
}

// Simulate runs the model over the configured horizon.
//
// The local_minima seeding policy needs a finished trajectory, so it first
// runs an unseeded reference pass with the same seed and derives the
// schedule from it.
func Simulate(p Params, opts Options) (*Trajectory, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	seed := rand.Uint64()
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	schedule, err := buildSchedule(p, opts, seed)
	if err != nil {
		return nil, err
	}

	m, err := NewModel(p, opts.Strategy, opts.Ranker, schedule, seed)
	if err != nil {
		return nil, err
	}
	traj := newTrajectory(opts.Scenario, m.days)
	traj.Schedule = schedule

	var diag *Diagnostics
	var vaxWaning, recWaning Waning
	if opts.Diagnosis {
		src := newSource(seed, streamDiagnostics)
		vaxWaning = Waning{Shape: p.Get(ParamVaxShape), Scale: p.Get(ParamVaxScale), Src: src}
		recWaning = Waning{Shape: p.Get(ParamRecShape), Scale: p.Get(ParamRecScale), Src: src}
		diag = &Diagnostics{Start: m.diagnose(0, vaxWaning, recWaning)}
	}

	traj.set(0, m.State())
	for !m.Done() {
		st := m.Step()
		traj.set(m.Day(), st)
	}

	if diag != nil {
		diag.End = m.diagnose(m.Day(), vaxWaning, recWaning)
		traj.Diagnostics = diag
	}
	return traj, nil
}

func buildSchedule(p Params, opts Options, seed uint64) ([]int, error) {
	in := SeedInputs{
		Days:        p.Int(ParamDays),
		MinDay:      p.Int(ParamSeedMinDay),
		EventSeries: opts.Seeding.EventSeries,
	}
	switch opts.Seeding.Method {
	case SeedRandom:
		in.Rand = rand.New(newSource(seed, streamSchedule))
	case SeedLocalMinima:
		refOpts := opts
		refOpts.Diagnosis = false
		refOpts.Seeding = SeedingConfig{Method: SeedNone}
		refOpts.Seed = &seed
		ref, err := Simulate(p, refOpts)
		if err != nil {
			return nil, err
		}
		in.Reference = ref
	}
	return GenerateSeedSchedule(opts.Seeding.Method, in)
}
