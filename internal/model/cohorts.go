package model

// cohorts tracks one protected compartment (R or V) as counts per entry day.
// Each vintage loses members at the Weibull hazard for its age, so reversion
// depends on time since entry rather than a constant daily rate.
type cohorts struct {
	counts []int
	hazard []float64
	total  int
	oldest int // lowest index that may be non-empty
}

func newCohorts(days int, hazard []float64) *cohorts {
	return &cohorts{
		counts: make([]int, days),
		hazard: hazard,
	}
}

// add places n individuals in the vintage that entered on day.
func (c *cohorts) add(day, n int) {
	if n <= 0 {
		return
	}
	c.counts[day] += n
	c.total += n
	if day < c.oldest {
		c.oldest = day
	}
}

// wane removes the members of every vintage whose immunity lapses during the
// step that produces day, and returns how many reverted.
func (c *cohorts) wane(day int, s *Sampler) int {
	out := 0
	for e := c.oldest; e < day && e < len(c.counts); e++ {
		n := c.counts[e]
		if n == 0 {
			continue
		}
		k := s.Binomial(n, c.hazard[day-1-e])
		c.counts[e] -= k
		out += k
	}
	c.total -= out
	c.advanceOldest()
	return out
}

// takeOldest removes up to n individuals starting with the oldest vintage.
func (c *cohorts) takeOldest(n int) int {
	taken := 0
	for e := c.oldest; e < len(c.counts) && taken < n; e++ {
		k := min(c.counts[e], n-taken)
		c.counts[e] -= k
		taken += k
	}
	c.total -= taken
	c.advanceOldest()
	return taken
}

// takeRandom removes up to n individuals chosen uniformly across vintages.
func (c *cohorts) takeRandom(n int, s *Sampler) int {
	n = min(n, c.total)
	remaining := c.total
	taken := 0
	for e := c.oldest; e < len(c.counts) && taken < n && remaining > 0; e++ {
		cnt := c.counts[e]
		if cnt == 0 {
			continue
		}
		want := n - taken
		var k int
		if cnt == remaining {
			k = want
		} else {
			k = s.Binomial(want, float64(cnt)/float64(remaining))
		}
		k = min(k, cnt)
		c.counts[e] -= k
		taken += k
		remaining -= cnt
	}
	c.total -= taken
	// Clamping can leave a shortfall; settle it from the oldest vintages.
	if taken < n {
		taken += c.takeOldest(n - taken)
	}
	c.advanceOldest()
	return taken
}

func (c *cohorts) advanceOldest() {
	for c.oldest < len(c.counts) && c.counts[c.oldest] == 0 {
		c.oldest++
	}
}

// ages calls fn for every non-empty vintage with its age on day and count.
func (c *cohorts) ages(day int, fn func(age, count int)) {
	for e := c.oldest; e < len(c.counts) && e <= day; e++ {
		if c.counts[e] > 0 {
			fn(day-e, c.counts[e])
		}
	}
}
