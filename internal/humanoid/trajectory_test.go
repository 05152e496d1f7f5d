// internal/humanoid/trajectory_test.go
package humanoid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEaseInOutCubic(t *testing.T) {
	assert.Equal(t, 0.0, easeInOutCubic(0))
	assert.InDelta(t, 0.5, easeInOutCubic(0.5), 1e-9)
	assert.Equal(t, 1.0, easeInOutCubic(1))

	prev := 0.0
	for i := 1; i <= 100; i++ {
		v := easeInOutCubic(float64(i) / 100)
		assert.GreaterOrEqual(t, v, prev, "easing must be monotonic")
		prev = v
	}
}

func TestFittsDuration(t *testing.T) {
	// jitter 0.5 is the neutral point of the +/-15% perturbation.
	assert.Equal(t, 100*time.Millisecond, fittsDuration(100, 120, 0, 0.5))
	assert.Equal(t, 220*time.Millisecond, fittsDuration(100, 120, 30, 0.5))

	low := fittsDuration(100, 120, 30, 0)
	high := fittsDuration(100, 120, 30, 0.999)
	assert.Less(t, low, 220*time.Millisecond)
	assert.Greater(t, high, 220*time.Millisecond)
	assert.Less(t, fittsDuration(100, 120, 30, 0.5), fittsDuration(100, 120, 600, 0.5), "longer moves take longer")
}

func TestBezierPath(t *testing.T) {
	start := Vector2D{X: 10, Y: 10}
	end := Vector2D{X: 410, Y: 210}

	t.Run("Endpoints are exact", func(t *testing.T) {
		path := bezierPath(start, end, 0.1, 25)
		require.Len(t, path, 25)
		assert.InDelta(t, start.X, path[0].X, 1e-9)
		assert.InDelta(t, start.Y, path[0].Y, 1e-9)
		assert.InDelta(t, end.X, path[24].X, 1e-9)
		assert.InDelta(t, end.Y, path[24].Y, 1e-9)
	})

	t.Run("Zero bow is a straight line", func(t *testing.T) {
		path := bezierPath(start, end, 0, 11)
		for _, p := range path {
			// Points on the segment satisfy y - 10 = (x - 10) / 2.
			assert.InDelta(t, (p.X-10)/2, p.Y-10, 1e-6)
		}
	})

	t.Run("Degenerate inputs", func(t *testing.T) {
		assert.Equal(t, []Vector2D{end}, bezierPath(start, end, 0.1, 1))
		assert.Equal(t, []Vector2D{start}, bezierPath(start, start, 0.1, 10))
	})
}

func TestMoveTo(t *testing.T) {
	t.Run("Lands on target", func(t *testing.T) {
		mock := newMockExecutor()
		h := NewTestHumanoid(mock, 12345)
		target := Vector2D{X: 900, Y: 600}

		require.NoError(t, h.MoveTo(context.Background(), target))

		moves := mock.recordedMoves()
		require.GreaterOrEqual(t, len(moves), 2)
		assert.LessOrEqual(t, len(moves), 40, "step count is capped")
		last := moves[len(moves)-1]
		assert.InDelta(t, target.X, last.X, 1e-6)
		assert.InDelta(t, target.Y, last.Y, 1e-6)
		assert.Equal(t, last, h.Position())
	})

	t.Run("Target outside viewport is clamped", func(t *testing.T) {
		mock := newMockExecutor()
		h := NewTestHumanoid(mock, 1)

		require.NoError(t, h.MoveTo(context.Background(), Vector2D{X: 5000, Y: -40}))
		assert.Equal(t, Vector2D{X: 1366, Y: 0}, h.Position())
	})

	t.Run("Total sleep stays within the Fitts bound", func(t *testing.T) {
		mock := newMockExecutor()
		h := NewTestHumanoid(mock, 99)
		start := h.Position()
		target := Vector2D{X: 100, Y: 100}

		require.NoError(t, h.MoveTo(context.Background(), target))

		upper := time.Duration(float64(fittsDuration(100, 120, start.Dist(target), 0.5)) * 1.15)
		assert.LessOrEqual(t, mock.totalSleep(), upper+time.Millisecond)
		assert.Positive(t, mock.totalSleep())
	})

	t.Run("Dispatch failure propagates", func(t *testing.T) {
		mock := newMockExecutor()
		boom := errors.New("target closed")
		mock.MockDispatchMouseMove = func(ctx context.Context, pos Vector2D) error { return boom }
		h := NewTestHumanoid(mock, 5)

		err := h.MoveTo(context.Background(), Vector2D{X: 10, Y: 10})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Sleep interruption stops the move", func(t *testing.T) {
		mock := newMockExecutor()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		mock.MockSleep = func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}
		h := NewTestHumanoid(mock, 6)

		err := h.MoveTo(ctx, Vector2D{X: 10, Y: 10})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, mock.recordedMoves(), 1)
	})
}
