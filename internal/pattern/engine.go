// Package pattern shapes the batch request rate over time.
package pattern

import (
	"time"

	"github.com/searcher/internal/config"
)

// Engine multiplies a base rate by spike and noise factors. Its settings
// are fixed at construction; the generators synchronise themselves.
type Engine struct {
	spikes   *SpikeTrain
	noise    *Noise
	baseRate float64
	maxRate  float64
}

// NewEngine creates an engine shaping baseRate requests per second. Without
// an explicit MaxRate the ceiling is the highest rate the shape can reach.
func NewEngine(cfg config.Shape, baseRate float64) *Engine {
	maxRate := cfg.MaxRate
	if maxRate == 0 {
		maxRate = baseRate * max(cfg.Spikes.Factor, 1) * (1 + cfg.Noise.Amplitude)
	}

	return &Engine{
		spikes:   NewSpikeTrain(cfg.Spikes),
		noise:    NewNoise(cfg.Noise),
		baseRate: baseRate,
		maxRate:  maxRate,
	}
}

// Rate returns the current target rate capped at MaxRate. It never drops
// below one request per second.
func (e *Engine) Rate() float64 {
	r := e.baseRate * e.spikes.Multiplier() * e.noise.Multiplier()
	return max(min(r, e.maxRate), 1)
}

func (e *Engine) BaseRate() float64 { return e.baseRate }

func (e *Engine) MaxRate() float64 { return e.maxRate }

// IsSpiking returns whether a spike is in progress.
func (e *Engine) IsSpiking() bool {
	return e.spikes.IsSpiking()
}

// NextSpikeIn returns the time until the next spike starts, or 0 during one.
func (e *Engine) NextSpikeIn() time.Duration {
	return e.spikes.NextSpikeIn()
}
