// internal/humanoid/pacer.go
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/gatepass/internal/config"
)

// Pacer samples the human-scale delays used while filling a form. When the humanoid
// profile is disabled every sample is the lower bound of its range.
type Pacer struct {
	mu  sync.Mutex
	rng *rand.Rand
	cfg config.HumanoidConfig
}

// NewPacer creates a Pacer. A nil rng is replaced by a time-seeded one.
func NewPacer(cfg config.HumanoidConfig, rng *rand.Rand) *Pacer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pacer{rng: rng, cfg: cfg}
}

// InterField is the pause between finishing one field and focusing the next.
func (p *Pacer) InterField() time.Duration {
	return p.sample(p.cfg.InterFieldDelayMin, p.cfg.InterFieldDelayMax)
}

// PerChar is the delay between keystrokes within one field.
func (p *Pacer) PerChar() time.Duration {
	return p.sample(p.cfg.PerCharDelayMin, p.cfg.PerCharDelayMax)
}

// SubmitPause is the hesitation before the submit action.
func (p *Pacer) SubmitPause() time.Duration {
	return p.sample(p.cfg.SubmitPauseMin, p.cfg.SubmitPauseMax)
}

func (p *Pacer) sample(min, max time.Duration) time.Duration {
	if !p.cfg.Enabled || max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rng.Int63n(int64(max-min)+1))
}
