// internal/login/challenge.go
package login

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xkilldash9x/gatepass/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Liveness emits one benign pointer-motion cue. Implementations must never click,
// drag or type.
type Liveness interface {
	Tick(ctx context.Context) error
}

// ChallengeReport summarizes one Wait call. Used never exceeds the budget.
type ChallengeReport struct {
	Observed bool
	Cleared  bool
	Used     time.Duration
	Polls    int
	Ticks    int
	Signal   Signal
}

// ChallengeWaiter waits out an anti-automation widget without touching it.
type ChallengeWaiter struct {
	framePatterns []string
	widgets       []Descriptor
	poll          time.Duration
	grace         time.Duration
	clock         Clock
	logger        *zap.Logger

	liveness       Liveness
	ticksPerSecond float64
	maxTicks       int
}

// NewChallengeWaiter builds a waiter. live may be nil to disable liveness ticks.
func NewChallengeWaiter(cfg config.LoginConfig, lcfg config.LivenessConfig, live Liveness, clock Clock, logger *zap.Logger) *ChallengeWaiter {
	w := &ChallengeWaiter{
		framePatterns: cfg.Selectors.ChallengeFrame,
		widgets:       ParseDescriptors(cfg.Selectors.Challenges),
		poll:          cfg.ChallengePoll,
		grace:         cfg.ChallengeGrace,
		clock:         clock,
		logger:        logger.Named("challenge"),
	}
	if live != nil && lcfg.Enabled && lcfg.MaxTicks > 0 && lcfg.TicksPerSecond > 0 {
		w.liveness = live
		w.ticksPerSecond = lcfg.TicksPerSecond
		w.maxTicks = lcfg.MaxTicks
	}
	return w
}

// Wait polls for the widget until it disappears, until the appearance grace passes
// without it ever showing, or until budget is spent. Running out of budget is
// reported through the returned report, not as an error.
func (w *ChallengeWaiter) Wait(ctx context.Context, drv PageDriver, budget time.Duration) (ChallengeReport, error) {
	start := w.clock.Now()
	report := ChallengeReport{Cleared: true}
	if budget <= 0 {
		report.Signal = Signal{Kind: SignalChallenge, Locator: "budget", ObservedAt: start, Absent: true}
		return report, nil
	}

	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	var limiter *rate.Limiter
	if w.liveness != nil {
		limiter = rate.NewLimiter(rate.Limit(w.ticksPerSecond), 1)
	}

	remaining := func() time.Duration { return budget - w.clock.Now().Sub(start) }

	for {
		sig, err := w.observe(budgetCtx, drv)
		if err != nil {
			if ctx.Err() != nil {
				return w.finish(report, start, budget), driverErr("challenge wait", ctx.Err())
			}
			if errors.Is(budgetCtx.Err(), context.DeadlineExceeded) {
				break
			}
			return w.finish(report, start, budget), err
		}
		report.Polls++
		report.Signal = sig

		if !sig.Absent {
			report.Observed = true
			report.Cleared = false
		} else {
			report.Cleared = true
			if report.Observed {
				w.logger.Info("Challenge widget cleared.", zap.Duration("after", w.clock.Now().Sub(start)))
				break
			}
			if w.clock.Now().Sub(start) >= w.grace {
				break
			}
		}

		if remaining() <= 0 {
			break
		}
		// A tick runs inside the poll interval, not in addition to it.
		var spent time.Duration
		if !sig.Absent && limiter != nil && report.Ticks < w.maxTicks && limiter.AllowN(w.clock.Now(), 1) {
			tickStart := w.clock.Now()
			w.tick(budgetCtx, &report, min(w.poll, remaining()))
			spent = w.clock.Now().Sub(tickStart)
		}

		if remaining() <= 0 {
			break
		}
		nap := min(w.poll-spent, remaining())
		if nap <= 0 {
			continue
		}
		if err := w.clock.Sleep(budgetCtx, nap); err != nil {
			if ctx.Err() != nil {
				return w.finish(report, start, budget), driverErr("challenge wait", ctx.Err())
			}
			break
		}
	}

	if report.Observed && !report.Cleared {
		w.logger.Warn("Challenge budget exhausted with widget still present.", zap.Duration("budget", budget))
	}
	return w.finish(report, start, budget), nil
}

func (w *ChallengeWaiter) finish(report ChallengeReport, start time.Time, budget time.Duration) ChallengeReport {
	report.Used = min(max(w.clock.Now().Sub(start), 0), budget)
	return report
}

// observe reports the widget as present when any frame URL matches a pattern or any
// in-page widget descriptor is visible.
func (w *ChallengeWaiter) observe(ctx context.Context, drv PageDriver) (Signal, error) {
	frames, err := drv.ListFrames(ctx)
	if err != nil {
		return Signal{}, driverErr("list frames", err)
	}
	for _, f := range frames {
		for _, p := range w.framePatterns {
			if p != "" && strings.Contains(f.URL, p) {
				return Signal{Kind: SignalChallenge, Locator: "frame:" + p, ObservedAt: w.clock.Now()}, nil
			}
		}
	}
	for _, d := range w.widgets {
		_, ok, err := visible(ctx, drv, d)
		if err != nil {
			return Signal{}, err
		}
		if ok {
			return Signal{Kind: SignalChallenge, Locator: d.String(), ObservedAt: w.clock.Now()}, nil
		}
	}
	return Signal{Kind: SignalChallenge, Locator: "any", ObservedAt: w.clock.Now(), Absent: true}, nil
}

// tick runs one liveness cue bounded by limit, which never exceeds the remaining
// budget. Failures are logged and dropped.
func (w *ChallengeWaiter) tick(ctx context.Context, report *ChallengeReport, limit time.Duration) {
	tickCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	report.Ticks++
	if err := w.liveness.Tick(tickCtx); err != nil && ctx.Err() == nil {
		w.logger.Debug("Liveness tick failed.", zap.Error(err))
	}
}
