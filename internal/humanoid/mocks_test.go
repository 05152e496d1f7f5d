// internal/humanoid/mocks_test.go
package humanoid

import (
	"context"
	"sync"
	"time"
)

// mockExecutor records pointer motion and sleeps. Override funcs replace the default
// behavior; they must not touch Humanoid state, since Humanoid calls the executor with
// h.mu held.
type mockExecutor struct {
	mu     sync.Mutex
	moves  []Vector2D
	sleeps []time.Duration

	MockSleep             func(ctx context.Context, d time.Duration) error
	MockDispatchMouseMove func(ctx context.Context, pos Vector2D) error
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if m.MockSleep != nil {
		return m.MockSleep(ctx, d)
	}
	return m.DefaultSleep(ctx, d)
}

// DefaultSleep records d without waiting.
func (m *mockExecutor) DefaultSleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleeps = append(m.sleeps, d)
	return nil
}

func (m *mockExecutor) DispatchMouseMove(ctx context.Context, pos Vector2D) error {
	if m.MockDispatchMouseMove != nil {
		return m.MockDispatchMouseMove(ctx, pos)
	}
	return m.DefaultDispatchMouseMove(ctx, pos)
}

// DefaultDispatchMouseMove records pos.
func (m *mockExecutor) DefaultDispatchMouseMove(ctx context.Context, pos Vector2D) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves = append(m.moves, pos)
	return nil
}

func (m *mockExecutor) recordedMoves() []Vector2D {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Vector2D(nil), m.moves...)
}

func (m *mockExecutor) totalSleep() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total time.Duration
	for _, d := range m.sleeps {
		total += d
	}
	return total
}
