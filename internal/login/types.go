// internal/login/types.go
package login

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
)

// Phase names one step of an attempt. Phases always appear in declaration order.
type Phase string

const (
	PhaseNavigated            Phase = "navigated"
	PhaseOverlaysClear1       Phase = "overlays_clear_1"
	PhaseChallengeWaited      Phase = "challenge_waited"
	PhaseOverlaysClear2       Phase = "overlays_clear_2"
	PhaseCredentialsSubmitted Phase = "credentials_submitted"
	PhaseClassified           Phase = "classified"
)

// phaseOrder maps each phase to its position and the stem of its screenshot.
var phaseOrder = map[Phase]struct {
	index int
	stem  string
}{
	PhaseNavigated:            {1, "loaded"},
	PhaseOverlaysClear1:       {2, "overlays_1"},
	PhaseChallengeWaited:      {3, "challenge"},
	PhaseOverlaysClear2:       {4, "overlays_2"},
	PhaseCredentialsSubmitted: {5, "submitted"},
	PhaseClassified:           {6, "result"},
}

// Status is how a phase ended.
type Status string

const (
	StatusOK      Status = "ok"
	StatusRetried Status = "retried"
	StatusFailed  Status = "failed"
)

// PhaseResult records one finished phase. Elapsed is measured from the start of the
// attempt; Duration is the phase's own running time.
type PhaseResult struct {
	Phase    Phase         `json:"phase"`
	Status   Status        `json:"status"`
	Elapsed  time.Duration `json:"elapsed"`
	Duration time.Duration `json:"duration"`
	Artifact string        `json:"artifact,omitempty"`
}

// Attempt is one end-to-end run of the login sequence.
type Attempt struct {
	ID        uuid.UUID     `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Phases    []PhaseResult `json:"phases"`
}

func newAttempt(startedAt time.Time) *Attempt {
	return &Attempt{ID: uuid.New(), StartedAt: startedAt}
}

// record appends r, holding Elapsed at the previous value if a clock step would
// otherwise make it go backwards.
func (a *Attempt) record(r PhaseResult) {
	if n := len(a.Phases); n > 0 && r.Elapsed < a.Phases[n-1].Elapsed {
		r.Elapsed = a.Phases[n-1].Elapsed
	}
	a.Phases = append(a.Phases, r)
}

// SignalKind is one of the abstract observation categories.
type SignalKind string

const (
	SignalOverlay       SignalKind = "overlay"
	SignalChallenge     SignalKind = "challenge"
	SignalFieldReady    SignalKind = "field_ready"
	SignalSuccessMarker SignalKind = "success_marker"
	SignalErrorMarker   SignalKind = "error_marker"
)

// Signal is a single observation made during one poll. Absent marks a category that
// was looked for and not found.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	Locator    string     `json:"locator"`
	ObservedAt time.Time  `json:"observed_at"`
	Absent     bool       `json:"absent,omitempty"`
}

// Verdict is the classification of a submission.
type Verdict string

const (
	VerdictSuccess       Verdict = "success"
	VerdictStillOnForm   Verdict = "still_on_form"
	VerdictBlocked       Verdict = "blocked"
	VerdictIndeterminate Verdict = "indeterminate"
)

// Outcome is a verdict together with the signals that justified it.
type Outcome struct {
	Verdict  Verdict  `json:"verdict"`
	Evidence []Signal `json:"evidence"`
}

// NewOutcome builds an Outcome. The signature requires at least one piece of evidence.
func NewOutcome(v Verdict, first Signal, rest ...Signal) Outcome {
	evidence := make([]Signal, 0, 1+len(rest))
	evidence = append(evidence, first)
	evidence = append(evidence, rest...)
	return Outcome{Verdict: v, Evidence: evidence}
}

const redacted = "[REDACTED]"

// Credentials is the identifier and secret pair submitted to the form. Every
// rendering of the value (fmt verbs, zap fields, JSON) is redacted.
type Credentials struct {
	identifier string
	secret     string
}

// NewCredentials returns a ConfigurationError naming whichever half is missing.
func NewCredentials(identifier, secret string) (*Credentials, error) {
	var missing []string
	if identifier == "" {
		missing = append(missing, "identifier")
	}
	if secret == "" {
		missing = append(missing, "secret")
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}
	return &Credentials{identifier: identifier, secret: secret}, nil
}

// values returns the raw pair so diagnostics can mask it. Never log the result.
func (c *Credentials) values() []string {
	return []string{c.identifier, c.secret}
}

func (c Credentials) String() string {
	return "Credentials{" + redacted + "}"
}

func (c Credentials) GoString() string {
	return c.String()
}

// MarshalJSON never emits the pair.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("identifier", redacted)
	enc.AddString("secret", redacted)
	return nil
}
