// internal/login/orchestrator.go
package login

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/gatepass/internal/config"
	"github.com/xkilldash9x/gatepass/internal/humanoid"
	"go.uber.org/zap"
)

// State is a node of the attempt state machine.
type State string

const (
	StateInit                 State = "init"
	StateNavigated            State = "navigated"
	StateOverlaysClear1       State = "overlays_clear_1"
	StateChallengeWaited      State = "challenge_waited"
	StateOverlaysClear2       State = "overlays_clear_2"
	StateCredentialsSubmitted State = "credentials_submitted"
	StateClassified           State = "classified"

	StateSuccess       State = "success"
	StateStillOnForm   State = "still_on_form"
	StateBlocked       State = "blocked"
	StateIndeterminate State = "indeterminate"
	StateFatal         State = "fatal"
)

// terminalState maps a verdict onto its terminal state.
func terminalState(v Verdict) State {
	switch v {
	case VerdictSuccess:
		return StateSuccess
	case VerdictStillOnForm:
		return StateStillOnForm
	case VerdictBlocked:
		return StateBlocked
	default:
		return StateIndeterminate
	}
}

// teardownTimeout bounds the diagnostics gathered after an attempt has failed or
// its context was cancelled.
const teardownTimeout = 10 * time.Second

// Result is what one Run produced. On a fatal run Outcome is nil.
type Result struct {
	Attempt *Attempt
	State   State
	Outcome *Outcome
	// Failed is the state the attempt was in when it turned fatal.
	Failed      State
	ArtifactDir string
}

// LivenessFactory builds the liveness cue for a freshly acquired driver. It may
// return nil to disable ticks.
type LivenessFactory func(PageDriver) Liveness

// Orchestrator runs login attempts, one at a time, against drivers from a provider.
type Orchestrator struct {
	cfg      *config.Config
	provider DriverProvider
	clock    Clock
	logger   *zap.Logger
	pacer    Pacer
	liveness LivenessFactory
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(o *Orchestrator) { o.clock = c } }

// WithPacer replaces the humanoid pacer.
func WithPacer(p Pacer) Option { return func(o *Orchestrator) { o.pacer = p } }

// WithLiveness replaces the liveness factory.
func WithLiveness(f LivenessFactory) Option { return func(o *Orchestrator) { o.liveness = f } }

// NewOrchestrator creates an Orchestrator. The configuration is used as given; it
// should already have passed Validate.
func NewOrchestrator(cfg *config.Config, provider DriverProvider, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		provider: provider,
		clock:    RealClock(),
		logger:   logger.Named("login"),
		pacer:    humanoid.NewPacer(cfg.Humanoid, nil),
	}
	o.liveness = o.defaultLiveness
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// defaultLiveness drives a humanoid when the driver can move the pointer.
func (o *Orchestrator) defaultLiveness(drv PageDriver) Liveness {
	exec, ok := drv.(humanoid.Executor)
	if !ok {
		return nil
	}
	viewport := humanoid.Vector2D{X: float64(o.cfg.Browser.Viewport.Width), Y: float64(o.cfg.Browser.Viewport.Height)}
	return humanoid.New(o.cfg.Humanoid, viewport, o.logger, exec)
}

// Run performs exactly one attempt. A non-nil error is always a *FatalError; every
// other ending, including Indeterminate, is reported through the Result.
func (o *Orchestrator) Run(ctx context.Context, creds *Credentials) (*Result, error) {
	if creds == nil || creds.identifier == "" || creds.secret == "" {
		var missing []string
		if creds == nil || creds.identifier == "" {
			missing = append(missing, "identifier")
		}
		if creds == nil || creds.secret == "" {
			missing = append(missing, "secret")
		}
		cause := &ConfigurationError{Missing: missing}
		o.logger.Error("Refusing to start attempt.", zap.Error(cause))
		return &Result{State: StateFatal, Failed: StateInit}, &FatalError{State: StateInit, Cause: cause}
	}

	r := &run{
		o:         o,
		attempt:   newAttempt(o.clock.Now()),
		artifacts: NewArtifactStore(o.cfg.Artifacts.Dir),
		state:     StateInit,
	}
	r.logger = o.logger.With(zap.String("attempt", r.attempt.ID.String()))
	r.logger.Info("Starting login attempt.", zap.String("url", o.cfg.Login.URL))

	if err := r.artifacts.Ensure(); err != nil {
		r.logger.Warn("Artifacts will not be written.", zap.Error(err))
	}

	drv, err := o.provider.Acquire(ctx)
	if err != nil {
		return r.fatal(ctx, nil, driverErr("acquire driver", err))
	}
	defer r.release(drv)

	if o.cfg.Artifacts.Trace {
		if err := drv.StartTrace(ctx, creds.values()...); err != nil {
			r.logger.Warn("Trace recording unavailable.", zap.Error(err))
		} else {
			r.tracing = true
		}
	}

	return r.sequence(ctx, drv, creds)
}

// run holds the state of one attempt.
type run struct {
	o         *Orchestrator
	logger    *zap.Logger
	attempt   *Attempt
	artifacts *ArtifactStore
	state     State
	tracing   bool

	phase      Phase
	phaseStart time.Time
}

func (r *run) sequence(ctx context.Context, drv PageDriver, creds *Credentials) (*Result, error) {
	o := r.o
	lc := o.cfg.Login

	r.begin(PhaseNavigated)
	if err := drv.Navigate(ctx, lc.URL, WaitDOMContentLoaded, lc.NavigationTimeout); err != nil {
		return r.fatal(ctx, drv, driverErr("navigate", err))
	}
	r.advance(ctx, drv, StateNavigated, StatusOK)

	dismisser := NewOverlayDismisser(lc, o.clock, r.logger)

	r.begin(PhaseOverlaysClear1)
	first, err := dismisser.Clear(ctx, drv, lc.OverlayMaxRounds, lc.PhaseTimeout)
	if err != nil {
		return r.fatal(ctx, drv, err)
	}
	r.advance(ctx, drv, StateOverlaysClear1, overlayStatus(first))

	var live Liveness
	if o.liveness != nil {
		live = o.liveness(drv)
	}
	waiter := NewChallengeWaiter(lc, o.cfg.Humanoid.Liveness, live, o.clock, r.logger)

	r.begin(PhaseChallengeWaited)
	challenge, err := waiter.Wait(ctx, drv, lc.ChallengeWait)
	if err != nil {
		return r.fatal(ctx, drv, err)
	}
	r.logger.Info("Challenge phase finished.",
		zap.Bool("observed", challenge.Observed),
		zap.Bool("cleared", challenge.Cleared),
		zap.Duration("used", challenge.Used))
	r.advance(ctx, drv, StateChallengeWaited, challengeStatus(challenge))

	r.begin(PhaseOverlaysClear2)
	second, err := dismisser.Clear(ctx, drv, lc.OverlayMaxRounds, lc.PhaseTimeout)
	if err != nil {
		return r.fatal(ctx, drv, err)
	}
	if !first.Cleared && !second.Cleared {
		// The field never showed up in either round; there is nothing to type into.
		return r.fatal(ctx, drv, &PreconditionError{Reason: FieldNotReady, Field: "username"})
	}
	r.advance(ctx, drv, StateOverlaysClear2, overlayStatus(second))

	submitter := NewCredentialSubmitter(lc, o.pacer, o.clock, r.logger)
	r.begin(PhaseCredentialsSubmitted)
	submitted, err := submitter.Submit(ctx, drv, creds)
	if err != nil {
		var pe *PreconditionError
		if !errors.As(err, &pe) {
			err = driverErr("submit", err)
		}
		return r.fatal(ctx, drv, err)
	}
	r.advance(ctx, drv, StateCredentialsSubmitted, StatusOK)

	classifier := NewOutcomeClassifier(lc, o.clock, r.logger)
	r.begin(PhaseClassified)
	outcome, err := classifier.Classify(ctx, drv, submitted.PriorURL)
	if err != nil {
		return r.fatal(ctx, drv, err)
	}
	r.advance(ctx, drv, StateClassified, StatusOK)

	r.state = terminalState(outcome.Verdict)
	r.logger.Info("Login attempt finished.", zap.String("state", string(r.state)))
	r.writeReport(&outcome, nil)
	return &Result{Attempt: r.attempt, State: r.state, Outcome: &outcome, ArtifactDir: r.artifacts.Dir()}, nil
}

// begin marks p as the phase in progress.
func (r *run) begin(p Phase) {
	r.phase = p
	r.phaseStart = r.o.clock.Now()
}

// result builds the PhaseResult of the phase in progress.
func (r *run) result(status Status, artifact string) PhaseResult {
	now := r.o.clock.Now()
	return PhaseResult{
		Phase:    r.phase,
		Status:   status,
		Elapsed:  now.Sub(r.attempt.StartedAt),
		Duration: now.Sub(r.phaseStart),
		Artifact: artifact,
	}
}

// advance records the phase in progress as finished, captures its screenshot and
// moves the state on.
func (r *run) advance(ctx context.Context, drv PageDriver, next State, status Status) {
	p := r.phase
	path := r.artifacts.PhaseScreenshotPath(p)
	if err := drv.Screenshot(ctx, path); err != nil {
		r.logger.Warn("Screenshot failed.", zap.String("phase", string(p)), zap.Error(err))
		path = ""
	}
	r.attempt.record(r.result(status, path))
	r.logger.Debug("Phase complete.", zap.String("phase", string(p)), zap.String("status", string(status)))
	r.state = next
}

// fatal captures a best-effort error screenshot, writes the report and returns the
// wrapped cause. drv may be nil when acquisition itself failed.
func (r *run) fatal(ctx context.Context, drv PageDriver, cause error) (*Result, error) {
	failed := r.state
	fe := &FatalError{State: failed, Cause: cause}
	r.logger.Error("Login attempt failed.", zap.String("state", string(failed)), zap.Error(cause))

	var path string
	if drv != nil {
		path = r.artifacts.ScreenshotPath(ErrorArtifact)
		captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		if err := drv.Screenshot(captureCtx, path); err != nil {
			r.logger.Warn("Error screenshot failed.", zap.Error(err))
			path = ""
		}
		cancel()
	}
	if r.phase != "" {
		r.attempt.record(r.result(StatusFailed, path))
	}

	r.state = StateFatal
	r.writeReport(nil, fe)
	return &Result{Attempt: r.attempt, State: StateFatal, Failed: failed, ArtifactDir: r.artifacts.Dir()}, fe
}

// release stops the trace and closes the driver. It runs on every exit path.
func (r *run) release(drv PageDriver) {
	if r.tracing {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		if err := drv.StopTrace(ctx, r.artifacts.TracePath()); err != nil {
			r.logger.Warn("Failed to save trace.", zap.Error(err))
		}
		cancel()
	}
	if err := drv.Close(); err != nil {
		r.logger.Warn("Failed to close driver.", zap.Error(err))
	}
}

func (r *run) writeReport(outcome *Outcome, fe *FatalError) {
	report := Report{Attempt: r.attempt, State: r.state, Outcome: outcome}
	if fe != nil {
		report.Error = fe.Error()
	}
	if err := r.artifacts.WriteReport(report); err != nil {
		r.logger.Warn("Attempt report not written.", zap.Error(err))
	}
}

func overlayStatus(rep OverlayReport) Status {
	switch {
	case !rep.Cleared:
		return StatusFailed
	case rep.RoundsUsed > 1:
		return StatusRetried
	default:
		return StatusOK
	}
}

func challengeStatus(rep ChallengeReport) Status {
	switch {
	case rep.Observed && !rep.Cleared:
		return StatusFailed
	case rep.Observed:
		return StatusRetried
	default:
		return StatusOK
	}
}
