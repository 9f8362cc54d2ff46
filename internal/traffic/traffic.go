package traffic

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxAge bounds how long outcomes are retained when NewTracker is given zero.
const DefaultMaxAge = 2 * time.Hour

// Tracker maintains sliding windows of fetch outcome timestamps per source.
// Single source of truth for the health check's degraded ratio.
type Tracker struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	maxAge  time.Duration
	sources map[string]*outcomes
}

type outcomes struct {
	okTimes       []time.Time
	degradedTimes []time.Time
}

// NewTracker creates a Tracker. Outcomes older than maxAge are pruned; zero means DefaultMaxAge.
// A nil clock uses wall time.
func NewTracker(clock clockwork.Clock, maxAge time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Tracker{
		clock:   clock,
		maxAge:  maxAge,
		sources: make(map[string]*outcomes),
	}
}

// Record stores one fetch outcome for source.
func (t *Tracker) Record(source string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.sources[source]
	if o == nil {
		o = &outcomes{}
		t.sources[source] = o
	}
	now := t.clock.Now()
	if ok {
		o.okTimes = append(o.okTimes, now)
	} else {
		o.degradedTimes = append(o.degradedTimes, now)
	}
	t.pruneLocked(o, now)
}

// DegradedRate returns (degradedCount, totalCount) for source within the window.
func (t *Tracker) DegradedRate(source string, window time.Duration) (degraded, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.sources[source]
	if o == nil {
		return 0, 0
	}
	cutoff := t.clock.Now().Add(-window)
	d := countInWindow(o.degradedTimes, cutoff)
	return d, d + countInWindow(o.okTimes, cutoff)
}

// Sources returns every source that has recorded an outcome, sorted.
func (t *Tracker) Sources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sources))
	for s := range t.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = make(map[string]*outcomes)
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mutex held.
func (t *Tracker) pruneLocked(o *outcomes, now time.Time) {
	cutoff := now.Add(-t.maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&o.okTimes)
	prune(&o.degradedTimes)
}
