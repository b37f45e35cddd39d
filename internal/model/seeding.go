package model

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// SeedMethod selects how exogenous infection seeding days are chosen.
type SeedMethod string

const (
	SeedNone        SeedMethod = "none"
	SeedRandom      SeedMethod = "random"
	SeedEventSeries SeedMethod = "event_series"
	SeedLocalMinima SeedMethod = "local_minima"
)

// RandomSeedCount is the number of seeding days drawn by SeedRandom.
const RandomSeedCount = 5

// SeedInputs carries what the seeding methods need. Only the fields used by
// the selected method have to be set.
type SeedInputs struct {
	Days   int
	MinDay int

	// Rand drives SeedRandom. A nil Rand uses a randomly seeded source.
	Rand *rand.Rand

	// EventSeries is a binary indicator per day for SeedEventSeries.
	EventSeries []int

	// Reference is a completed simulation for SeedLocalMinima.
	Reference *Trajectory
}

// GenerateSeedSchedule returns the sorted days on which seeding occurs.
func GenerateSeedSchedule(method SeedMethod, in SeedInputs) ([]int, error) {
	switch method {
	case SeedNone, "":
		return nil, nil

	case SeedRandom:
		lo, hi := max(in.MinDay, 0), in.Days
		if hi-lo < RandomSeedCount {
			return nil, fmt.Errorf("%w: random seeding needs %d days in [%d, %d)", ErrConfig, RandomSeedCount, lo, hi)
		}
		rnd := in.Rand
		if rnd == nil {
			rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
		days := sampleWithoutReplacement(rnd, lo, hi, RandomSeedCount)
		slices.Sort(days)
		return days, nil

	case SeedEventSeries:
		if in.EventSeries == nil {
			return nil, fmt.Errorf("%w: event_series seeding requires an event series", ErrConfig)
		}
		var days []int
		for i, v := range in.EventSeries {
			if v == 1 {
				days = append(days, i)
			}
		}
		return days, nil

	case SeedLocalMinima:
		ref := in.Reference
		if ref == nil || ref.S == nil || ref.I == nil || ref.R == nil || ref.V == nil {
			return nil, fmt.Errorf("%w: local_minima seeding requires S, I, R and V", ErrConfig)
		}
		days := in.Days
		if days <= 0 || days > ref.Len() {
			days = ref.Len()
		}
		return FindLocalMinima(ref.Protected(), days), nil
	}
	return nil, fmt.Errorf("%w: unknown seeding method %q", ErrConfig, method)
}

// FindLocalMinima returns indices i in [1, days-1) where data[i] is strictly
// below both neighbours. Flat or monotonic stretches yield nothing.
func FindLocalMinima(data []float64, days int) []int {
	days = min(days, len(data))
	var minima []int
	for i := 1; i < days-1; i++ {
		if data[i-1] > data[i] && data[i] < data[i+1] {
			minima = append(minima, i)
		}
	}
	return minima
}

// SeedInfection returns the number of seeds introduced on day t.
func SeedInfection(t int, schedule []int, rate int) int {
	if slices.Contains(schedule, t) {
		return rate
	}
	return 0
}

// sampleWithoutReplacement draws k distinct values from [lo, hi) with a
// partial Fisher-Yates shuffle.
func sampleWithoutReplacement(rnd *rand.Rand, lo, hi, k int) []int {
	pool := make([]int, hi-lo)
	for i := range pool {
		pool[i] = lo + i
	}
	for i := 0; i < k; i++ {
		j := i + rnd.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k:k]
}
