// internal/login/classify.go
package login

import (
	"context"
	"strings"
	"time"

	"github.com/xkilldash9x/gatepass/internal/config"
	"go.uber.org/zap"
)

// Observation is everything the classifier looks at after a submission.
type Observation struct {
	PageText string
	// VisibleSuccessMarkers lists the success marker descriptors found visible, in
	// configuration order.
	VisibleSuccessMarkers []string
	PriorURL              string
	CurrentURL            string
	FormInteractable      bool
	ObservedAt            time.Time
}

// OutcomeClassifier turns post-submission observations into a verdict.
type OutcomeClassifier struct {
	keywords       []string
	loginMarker    string
	successMarkers []Descriptor
	form           Descriptor
	settle         time.Duration
	clock          Clock
	logger         *zap.Logger
}

// NewOutcomeClassifier builds a classifier from the configured keywords and selectors.
func NewOutcomeClassifier(cfg config.LoginConfig, clock Clock, logger *zap.Logger) *OutcomeClassifier {
	keywords := make([]string, 0, len(cfg.ErrorKeywords))
	for _, k := range cfg.ErrorKeywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &OutcomeClassifier{
		keywords:       keywords,
		loginMarker:    strings.ToLower(cfg.LoginMarker),
		successMarkers: ParseDescriptors(cfg.Selectors.SuccessMarkers),
		form:           ParseDescriptor(cfg.Selectors.Username),
		settle:         cfg.PostSubmitWait,
		clock:          clock,
		logger:         logger.Named("classify"),
	}
}

// Classify lets the page settle, gathers an Observation and decides on it.
func (c *OutcomeClassifier) Classify(ctx context.Context, drv PageDriver, priorURL string) (Outcome, error) {
	if err := c.clock.Sleep(ctx, c.settle); err != nil {
		return Outcome{}, driverErr("post-submit settle", err)
	}
	obs, err := c.observe(ctx, drv, priorURL)
	if err != nil {
		return Outcome{}, err
	}
	out := c.Decide(obs)
	c.logger.Info("Submission classified.",
		zap.String("verdict", string(out.Verdict)),
		zap.Int("evidence", len(out.Evidence)))
	return out, nil
}

func (c *OutcomeClassifier) observe(ctx context.Context, drv PageDriver, priorURL string) (Observation, error) {
	obs := Observation{PriorURL: priorURL}

	text, err := drv.PageText(ctx)
	if err != nil {
		return obs, driverErr("read page text", err)
	}
	obs.PageText = text

	for _, d := range c.successMarkers {
		_, ok, err := visible(ctx, drv, d)
		if err != nil {
			return obs, err
		}
		if ok {
			obs.VisibleSuccessMarkers = append(obs.VisibleSuccessMarkers, d.String())
		}
	}

	if obs.CurrentURL, err = drv.CurrentURL(ctx); err != nil {
		return obs, driverErr("read url", err)
	}

	h, ok, err := visible(ctx, drv, c.form)
	if err != nil {
		return obs, err
	}
	if ok {
		if ok, err = drv.IsEnabled(ctx, h); err != nil {
			return obs, driverErr("form enabled", err)
		}
	}
	obs.FormInteractable = ok
	obs.ObservedAt = c.clock.Now()
	return obs, nil
}

// Decide applies the signal table in priority order and stops at the first match:
// error text, a visible success marker, a URL that left the login page, the form
// still being usable, and finally Indeterminate. It depends only on obs and the
// classifier's fixed rules.
func (c *OutcomeClassifier) Decide(obs Observation) Outcome {
	at := obs.ObservedAt

	if matched := c.matchKeywords(obs.PageText); len(matched) > 0 {
		evidence := make([]Signal, len(matched))
		for i, k := range matched {
			evidence[i] = Signal{Kind: SignalErrorMarker, Locator: "text:" + k, ObservedAt: at}
		}
		return NewOutcome(VerdictBlocked, evidence[0], evidence[1:]...)
	}

	if len(obs.VisibleSuccessMarkers) > 0 {
		evidence := make([]Signal, len(obs.VisibleSuccessMarkers))
		for i, m := range obs.VisibleSuccessMarkers {
			evidence[i] = Signal{Kind: SignalSuccessMarker, Locator: m, ObservedAt: at}
		}
		return NewOutcome(VerdictSuccess, evidence[0], evidence[1:]...)
	}

	if c.leftLoginPage(obs.PriorURL, obs.CurrentURL) {
		return NewOutcome(VerdictSuccess, Signal{Kind: SignalSuccessMarker, Locator: "url:" + obs.CurrentURL, ObservedAt: at})
	}

	if obs.FormInteractable {
		return NewOutcome(VerdictStillOnForm, Signal{Kind: SignalFieldReady, Locator: c.form.String(), ObservedAt: at})
	}

	absent := []Signal{{Kind: SignalErrorMarker, Locator: "text", ObservedAt: at, Absent: true}}
	for _, d := range c.successMarkers {
		absent = append(absent, Signal{Kind: SignalSuccessMarker, Locator: d.String(), ObservedAt: at, Absent: true})
	}
	absent = append(absent, Signal{Kind: SignalFieldReady, Locator: c.form.String(), ObservedAt: at, Absent: true})
	return NewOutcome(VerdictIndeterminate, absent[0], absent[1:]...)
}

// matchKeywords returns every configured keyword found in text, case-insensitively,
// in configuration order.
func (c *OutcomeClassifier) matchKeywords(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var matched []string
	for _, k := range c.keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			matched = append(matched, k)
		}
	}
	return matched
}

// leftLoginPage is true when the URL changed and the login marker carried by the
// prior URL is gone. Without a configured marker any change counts.
func (c *OutcomeClassifier) leftLoginPage(prior, current string) bool {
	if current == "" || current == prior {
		return false
	}
	if c.loginMarker == "" {
		return true
	}
	return strings.Contains(strings.ToLower(prior), c.loginMarker) &&
		!strings.Contains(strings.ToLower(current), c.loginMarker)
}
