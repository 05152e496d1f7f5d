// internal/humanoid/executor.go
package humanoid

import (
	"context"
	"time"
)

// Executor is the browser surface the humanoid drives. It carries pointer motion
// only; nothing reachable through it can press a button or a key.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseMove(ctx context.Context, pos Vector2D) error
}
