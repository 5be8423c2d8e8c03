package pattern

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/searcher/internal/config"
)

// SpikeTrain produces rate spikes whose start times form a Poisson process
// with rate Lambda. A spike climbs linearly to Factor over RampUp, then
// decays exponentially back towards 1 over RampDown.
type SpikeTrain struct {
	cfg config.Spikes
	rng *rand.Rand
	now func() time.Time

	mu   sync.Mutex
	next time.Time
	cur  *spike // nil between spikes
}

type spike struct {
	start, peak, end time.Time
}

func (s *spike) multiplier(now time.Time, factor float64) float64 {
	gain := factor - 1
	if now.Before(s.peak) {
		return 1 + gain*fraction(now.Sub(s.start), s.peak.Sub(s.start))
	}
	return 1 + gain*math.Exp(-3*fraction(now.Sub(s.peak), s.end.Sub(s.peak)))
}

func fraction(elapsed, total time.Duration) float64 {
	return elapsed.Seconds() / total.Seconds()
}

// NewSpikeTrain creates a spike train; the first spike is scheduled now.
func NewSpikeTrain(cfg config.Spikes) *SpikeTrain {
	t := &SpikeTrain{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
	t.next = t.now().Add(t.gap())
	return t
}

// Multiplier returns the current rate multiplier, 1 outside spikes.
func (t *SpikeTrain) Multiplier() float64 {
	if !t.cfg.Enabled {
		return 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.advance(now)
	if t.cur == nil {
		return 1
	}
	return t.cur.multiplier(now, t.cfg.Factor)
}

// advance starts a due spike and retires a finished one.
func (t *SpikeTrain) advance(now time.Time) {
	if t.cur == nil && !now.Before(t.next) {
		peak := now.Add(t.cfg.RampUp)
		t.cur = &spike{start: now, peak: peak, end: peak.Add(t.cfg.RampDown)}
	}
	if t.cur != nil && now.After(t.cur.end) {
		t.cur = nil
		t.next = now.Add(t.gap())
	}
}

// gap draws an exponential inter-arrival time clamped to
// [MinInterval, MaxInterval].
func (t *SpikeTrain) gap() time.Duration {
	if t.cfg.Lambda <= 0 {
		return t.cfg.MaxInterval
	}

	secs := math.Max(t.rng.ExpFloat64()/t.cfg.Lambda, t.cfg.MinInterval.Seconds())
	if t.cfg.MaxInterval > 0 {
		secs = math.Min(secs, t.cfg.MaxInterval.Seconds())
	}
	return time.Duration(secs * float64(time.Second))
}

// NextSpikeIn returns the time until the next spike, or 0 during one.
func (t *SpikeTrain) NextSpikeIn() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cur != nil {
		return 0
	}
	return t.next.Sub(t.now())
}

func (t *SpikeTrain) IsSpiking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur != nil
}
