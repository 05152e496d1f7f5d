// internal/humanoid/trajectory.go
package humanoid

import (
	"context"
	"math"
	"time"
)

// fittsTargetWidth is the nominal target width, in pixels, used for the index of difficulty.
const fittsTargetWidth = 30.0

// easeInOutCubic maps linear progress onto an accelerate-then-decelerate profile.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// fittsDuration applies Fitts's law, MT = a + b*log2(1 + D/W), in milliseconds, then
// perturbs the result by up to +/-15%. jitter is expected in [0, 1).
func fittsDuration(a, b, distance, jitter float64) time.Duration {
	mt := a + b*math.Log2(1+distance/fittsTargetWidth)
	mt += mt * (jitter*0.3 - 0.15)
	if mt < 0 {
		mt = 0
	}
	return time.Duration(mt * float64(time.Millisecond))
}

// bezierPath samples a cubic Bezier curve from start to end in n points. bow bends the
// curve sideways, as a fraction of the distance, so the path is not a ruler line.
func bezierPath(start, end Vector2D, bow float64, n int) []Vector2D {
	if n < 2 || start.Dist(end) < 1 {
		return []Vector2D{end}
	}
	span := end.Sub(start)
	side := span.Perp().Normalize().Mul(span.Mag() * bow)
	p1 := start.Add(span.Mul(1.0 / 3)).Add(side)
	p2 := start.Add(span.Mul(2.0 / 3)).Add(side.Mul(0.5))

	path := make([]Vector2D, n)
	for i := range path {
		t := float64(i) / float64(n-1)
		u := 1 - t
		path[i] = start.Mul(u * u * u).
			Add(p1.Mul(3 * u * u * t)).
			Add(p2.Mul(3 * u * t * t)).
			Add(end.Mul(t * t * t))
	}
	return path
}

// simulateTrajectory walks the pointer from start to end. The caller must hold h.mu.
func (h *Humanoid) simulateTrajectory(ctx context.Context, start, end Vector2D) error {
	duration := fittsDuration(h.cfg.FittsA, h.cfg.FittsB, start.Dist(end), h.rng.Float64())

	steps := int(duration.Seconds() * 60)
	if steps < 2 {
		steps = 2
	}
	if max := h.cfg.MaxStepsPerMove; max >= 2 && steps > max {
		steps = max
	}

	bow := (h.rng.Float64()*2 - 1) * 0.15
	path := bezierPath(start, end, bow, steps)
	stepSleep := duration / time.Duration(len(path))

	for i := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		progress := 1.0
		if len(path) > 1 {
			progress = easeInOutCubic(float64(i) / float64(len(path)-1))
		}
		point := path[int(math.Round(progress*float64(len(path)-1)))]

		// Tremor fades out as the pointer lands so the final position is the target.
		tremor := Vector2D{X: h.noiseX.Next(), Y: h.noiseY.Next()}.Mul(h.cfg.NoiseAmplitude * (1 - progress))
		point = point.Add(tremor).Clamp(Vector2D{}, h.bounds)

		if err := h.executor.DispatchMouseMove(ctx, point); err != nil {
			return err
		}
		h.pos = point

		if err := h.executor.Sleep(ctx, stepSleep); err != nil {
			return err
		}
	}
	return nil
}
