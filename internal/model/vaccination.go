package model

import (
	"fmt"
	"math"
	"strings"
)

// Strategy selects how vaccine doses are distributed.
type Strategy string

const (
	// StrategyRandom spreads doses uniformly over all non-infected animals.
	StrategyRandom Strategy = "random"
	// StrategyTargeted serves doses in the order given by a Ranker.
	StrategyTargeted Strategy = "targeted"
)

// ParseStrategy accepts "random", "targeted" and the legacy spelling
// "targetted".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "random":
		return StrategyRandom, nil
	case "targeted", "targetted":
		return StrategyTargeted, nil
	}
	return "", fmt.Errorf("%w: unknown vaccination strategy %q", ErrConfig, s)
}

// Campaign is the periodic vaccination schedule. Every Period days a
// campaign runs for Window days. A non-positive Period vaccinates daily.
type Campaign struct {
	Rate   float64 // target coverage per day, averaged over the period
	Period int
	Window int
}

// CampaignFromParams reads vax_rate, vax_period and vax_window.
func CampaignFromParams(p Params) Campaign {
	c := Campaign{
		Rate:   p.Get(ParamVaxRate),
		Period: p.Int(ParamVaxPeriod),
		Window: max(p.Int(ParamVaxWindow), 1),
	}
	if c.Period > 0 && c.Window > c.Period {
		c.Window = c.Period
	}
	return c
}

// Active reports whether doses are given on day. Day 1 is the first step.
func (c Campaign) Active(day int) bool {
	if c.Rate <= 0 || day < 1 {
		return false
	}
	if c.Period <= 0 {
		return true
	}
	return (day-1)%c.Period < c.Window
}

// Coverage is the fraction of non-infected animals dosed on an active day.
// The period's worth of doses is concentrated into the campaign window.
func (c Campaign) Coverage() float64 {
	if c.Period <= 0 {
		return math.Min(c.Rate, 1)
	}
	return math.Min(c.Rate*float64(c.Period)/float64(c.Window), 1)
}

// Group is a dose recipient class.
type Group int

const (
	GroupSusceptible Group = iota
	GroupVaccinated
	GroupRecovered
)

func (g Group) String() string {
	switch g {
	case GroupSusceptible:
		return "susceptible"
	case GroupVaccinated:
		return "vaccinated"
	case GroupRecovered:
		return "recovered"
	}
	return fmt.Sprintf("group(%d)", int(g))
}

// Ranker orders recipient groups for targeted vaccination. Doses go to the
// first group until it is exhausted, then the next. Groups left out of the
// ranking receive nothing that day.
type Ranker interface {
	Rank(day int, st State) []Group
}

// RankerFunc adapts a function to the Ranker interface.
type RankerFunc func(day int, st State) []Group

// Rank implements Ranker.
func (f RankerFunc) Rank(day int, st State) []Group { return f(day, st) }

// SusceptibleFirst doses susceptibles, then boosts the longest-protected
// vaccinated animals.
var SusceptibleFirst Ranker = RankerFunc(func(int, State) []Group {
	return []Group{GroupSusceptible, GroupVaccinated}
})

// InfectionPressure prioritises susceptibles while prevalence I/N is at or
// above Threshold and boosts waning vaccinated animals first otherwise.
type InfectionPressure struct {
	Threshold float64
}

// Rank implements Ranker.
func (r InfectionPressure) Rank(_ int, st State) []Group {
	if n := st.Total(); n > 0 && float64(st.I)/float64(n) >= r.Threshold {
		return []Group{GroupSusceptible, GroupVaccinated}
	}
	return []Group{GroupVaccinated, GroupSusceptible}
}

// Allocation is one day's dose outcome.
type Allocation struct {
	Doses       int
	FromS       int  // susceptibles moved to V
	Boosted     int  // vaccinated animals whose protection restarts today
	Wasted      int  // doses given to recovered animals
	BoostOldest bool // boosts come from the oldest vintages rather than at random
}

// Allocator decides how today's doses are spent.
type Allocator interface {
	Allocate(day int, st State, s *Sampler) Allocation
}

// NewAllocator returns the allocator for a strategy. A targeted strategy
// without a ranker degrades to random selection.
func NewAllocator(strategy Strategy, campaign Campaign, ranker Ranker) Allocator {
	if strategy == StrategyTargeted && ranker != nil {
		return &targetedAllocator{campaign: campaign, ranker: ranker}
	}
	return &randomAllocator{campaign: campaign}
}

// doses draws today's dose count from the non-infected population.
func doses(c Campaign, day int, st State, s *Sampler) int {
	if !c.Active(day) {
		return 0
	}
	return s.Binomial(st.S+st.R+st.V, c.Coverage())
}

type randomAllocator struct {
	campaign Campaign
}

func (a *randomAllocator) Allocate(day int, st State, s *Sampler) Allocation {
	d := doses(a.campaign, day, st, s)
	if d == 0 {
		return Allocation{}
	}
	eligible := st.S + st.R + st.V
	fromS := min(s.Binomial(d, float64(st.S)/float64(eligible)), st.S)
	rest := d - fromS
	var boosted int
	if st.R+st.V > 0 {
		boosted = min(s.Binomial(rest, float64(st.V)/float64(st.R+st.V)), st.V)
	}
	return Allocation{
		Doses:   d,
		FromS:   fromS,
		Boosted: boosted,
		Wasted:  rest - boosted,
	}
}

type targetedAllocator struct {
	campaign Campaign
	ranker   Ranker
}

func (a *targetedAllocator) Allocate(day int, st State, s *Sampler) Allocation {
	d := doses(a.campaign, day, st, s)
	if d == 0 {
		return Allocation{}
	}
	out := Allocation{Doses: d, BoostOldest: true}
	left := d
	for _, g := range a.ranker.Rank(day, st) {
		if left == 0 {
			break
		}
		switch g {
		case GroupSusceptible:
			k := min(left, st.S-out.FromS)
			out.FromS += k
			left -= k
		case GroupVaccinated:
			k := min(left, st.V-out.Boosted)
			out.Boosted += k
			left -= k
		case GroupRecovered:
			k := min(left, st.R-out.Wasted)
			out.Wasted += k
			left -= k
		}
	}
	// Doses that found no recipient in the ranked groups are not given.
	out.Doses = d - left
	return out
}
