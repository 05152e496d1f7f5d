// internal/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/gatepass/internal/config"
	"go.uber.org/zap"
)

const (
	driftMinDistance = 20.0
	driftMaxDistance = 90.0
	// edgeMargin keeps drift targets away from the viewport border.
	edgeMargin = 8.0
)

// Humanoid produces pointer motion that looks like a resting hand. It never clicks.
type Humanoid struct {
	// mu guards every field below; trajectory simulation runs with it held.
	mu       sync.Mutex
	cfg      config.HumanoidConfig
	logger   *zap.Logger
	executor Executor
	rng      *rand.Rand
	noiseX   *PinkNoise
	noiseY   *PinkNoise
	bounds   Vector2D
	pos      Vector2D
}

// New creates a Humanoid for a viewport of the given size. The pointer starts near
// the middle of the viewport.
func New(cfg config.HumanoidConfig, viewport Vector2D, logger *zap.Logger, executor Executor) *Humanoid {
	return newWithRand(cfg, viewport, logger, executor, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewTestHumanoid creates a deterministic Humanoid with a 1366x768 viewport.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	cfg := config.HumanoidConfig{
		Enabled:         true,
		FittsA:          100,
		FittsB:          120,
		NoiseAmplitude:  1.5,
		MaxStepsPerMove: 40,
	}
	return newWithRand(cfg, Vector2D{X: 1366, Y: 768}, zap.NewNop(), executor, rand.New(rand.NewSource(seed)))
}

func newWithRand(cfg config.HumanoidConfig, viewport Vector2D, logger *zap.Logger, executor Executor, rng *rand.Rand) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	center := viewport.Mul(0.5)
	jitter := Vector2D{X: (rng.Float64() - 0.5) * viewport.X * 0.2, Y: (rng.Float64() - 0.5) * viewport.Y * 0.2}
	return &Humanoid{
		cfg:      cfg,
		logger:   logger.Named("humanoid"),
		executor: executor,
		rng:      rng,
		noiseX:   NewPinkNoise(rng, 12),
		noiseY:   NewPinkNoise(rng, 12),
		bounds:   viewport,
		pos:      center.Add(jitter),
	}
}

// Position reports where the pointer was last moved to.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// MoveTo moves the pointer to target along a curved, eased path.
func (h *Humanoid) MoveTo(ctx context.Context, target Vector2D) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.simulateTrajectory(ctx, h.pos, target.Clamp(Vector2D{}, h.bounds))
}

// Tick performs one short idle drift. It is the liveness signal emitted while a
// challenge widget settles and is a no-op when the humanoid is disabled.
func (h *Humanoid) Tick(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.cfg.Enabled {
		return nil
	}

	angle := h.rng.Float64() * 2 * math.Pi
	dist := driftMinDistance + h.rng.Float64()*(driftMaxDistance-driftMinDistance)
	target := h.pos.Add(Vector2D{X: math.Cos(angle), Y: math.Sin(angle)}.Mul(dist))
	target = target.Clamp(Vector2D{X: edgeMargin, Y: edgeMargin}, h.bounds.Sub(Vector2D{X: edgeMargin, Y: edgeMargin}))

	if err := h.simulateTrajectory(ctx, h.pos, target); err != nil {
		if ctx.Err() == nil {
			h.logger.Debug("Idle drift interrupted.", zap.Error(err))
		}
		return err
	}
	return nil
}
