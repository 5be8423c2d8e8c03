package pattern

import (
	"math/rand"
	"sync"
	"time"

	"github.com/searcher/internal/config"
)

// noiseLag is the share of the distance to the target covered per call.
const noiseLag = 0.2

// Noise wobbles the rate around 1. The offset chases a target that is
// redrawn every few calls, so the multiplier stays within
// [1-Amplitude, 1+Amplitude].
type Noise struct {
	cfg config.Noise
	rng *rand.Rand

	mu     sync.Mutex
	offset float64
	target float64
	hold   int // calls left before the target is redrawn
}

func NewNoise(cfg config.Noise) *Noise {
	return &Noise{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Multiplier returns the current noise multiplier.
func (n *Noise) Multiplier() float64 {
	if !n.cfg.Enabled {
		return 1
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.hold == 0 {
		n.target = n.cfg.Amplitude * (2*n.rng.Float64() - 1)
		n.hold = 5 + n.rng.Intn(10)
	}
	n.hold--

	n.offset += noiseLag * (n.target - n.offset)
	return 1 + n.offset
}
