// internal/login/overlay.go
package login

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/gatepass/internal/config"
	"go.uber.org/zap"
)

// OverlayReport summarizes one Clear call.
type OverlayReport struct {
	RoundsUsed int
	Cleared    bool
	Dismissed  int // overlays clicked
	KeyPresses int // blind Enter presses
	Expired    int // rounds abandoned at their own deadline
}

// OverlayDismisser clears modal layers sitting in front of the login form.
type OverlayDismisser struct {
	overlays []Descriptor
	field    Descriptor
	settle   time.Duration
	clock    Clock
	logger   *zap.Logger
}

// NewOverlayDismisser builds a dismisser that waits for the username field.
func NewOverlayDismisser(cfg config.LoginConfig, clock Clock, logger *zap.Logger) *OverlayDismisser {
	return &OverlayDismisser{
		overlays: ParseDescriptors(cfg.Selectors.Overlays),
		field:    ParseDescriptor(cfg.Selectors.Username),
		settle:   cfg.OverlaySettle,
		clock:    clock,
		logger:   logger.Named("overlay"),
	}
}

type roundResult int

const (
	roundNoAction roundResult = iota
	roundDismissed
	roundKeyPressed
	roundFieldVisible
)

// Clear runs at most maxRounds rounds, each bounded by perRoundTimeout. The field
// still missing afterwards is reported as Cleared=false, not as an error; only driver
// failures and cancellation of ctx are returned.
func (o *OverlayDismisser) Clear(ctx context.Context, drv PageDriver, maxRounds int, perRoundTimeout time.Duration) (OverlayReport, error) {
	var report OverlayReport
	for round := 1; round <= maxRounds; round++ {
		report.RoundsUsed = round

		roundCtx, cancel := context.WithTimeout(ctx, perRoundTimeout)
		res, err := o.round(roundCtx, drv)
		expired := errors.Is(roundCtx.Err(), context.DeadlineExceeded)
		cancel()

		switch res {
		case roundDismissed:
			report.Dismissed++
		case roundKeyPressed:
			report.KeyPresses++
		}

		if err != nil {
			if ctx.Err() != nil {
				return report, driverErr("overlay clearing", ctx.Err())
			}
			if expired {
				report.Expired++
				o.logger.Debug("Overlay round hit its deadline.", zap.Int("round", round))
				continue
			}
			return report, err
		}
		if res == roundFieldVisible {
			report.Cleared = true
			return report, nil
		}
	}

	// The last round's action may have uncovered the field.
	_, ok, err := visible(ctx, drv, o.field)
	if err != nil {
		return report, err
	}
	report.Cleared = ok
	if !ok {
		o.logger.Warn("Login field still hidden after overlay rounds.",
			zap.Int("rounds", report.RoundsUsed),
			zap.String("field", o.field.String()))
	}
	return report, nil
}

func (o *OverlayDismisser) round(ctx context.Context, drv PageDriver) (roundResult, error) {
	for _, d := range o.overlays {
		h, ok, err := visible(ctx, drv, d)
		if err != nil {
			return roundNoAction, err
		}
		if !ok {
			continue
		}
		o.logger.Debug("Dismissing overlay.", zap.String("locator", d.String()))
		if err := drv.Click(ctx, h); err != nil {
			return roundNoAction, driverErr("dismiss overlay", err)
		}
		return roundDismissed, o.clock.Sleep(ctx, o.settle)
	}

	_, ok, err := visible(ctx, drv, o.field)
	if err != nil {
		return roundNoAction, err
	}
	if ok {
		return roundFieldVisible, nil
	}

	// Something unidentified is in the way, such as a native-style alert layer.
	if err := drv.PressKey(ctx, KeyEnter); err != nil {
		return roundNoAction, driverErr("blind dismiss", err)
	}
	return roundKeyPressed, o.clock.Sleep(ctx, o.settle)
}
