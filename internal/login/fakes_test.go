// internal/login/fakes_test.go
package login

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/gatepass/internal/config"
)

// Descriptors used by the default configuration.
const (
	overlaySel   = "button.swal2-confirm"
	usernameSel  = "input#ContentPlaceHolder1_loginid"
	passwordSel  = "input#loginpw"
	submitSel    = "input#login_but"
	logoutSel    = "a[href*='logout']"
	turnstileSel = "div.cf-turnstile"
	loginURL     = "https://example.test/CG02.aspx?module=login_page&files=login"
	challengeURL = "https://challenges.cloudflare.com/cdn-cgi/challenge-platform/h/b/turnstile"
)

// testConfig returns the default configuration pointed at a temporary artifact dir.
func testConfig(t testing.TB) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Login.URL = loginURL
	cfg.Artifacts.Dir = t.TempDir()
	require.NoError(t, cfg.Validate())
	return cfg
}

// -- Clock --

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// -- Pacer --

type fixedPacer struct{}

func (fixedPacer) InterField() time.Duration  { return 300 * time.Millisecond }
func (fixedPacer) PerChar() time.Duration     { return 50 * time.Millisecond }
func (fixedPacer) SubmitPause() time.Duration { return 200 * time.Millisecond }

// -- Liveness --

type fakeLiveness struct {
	clock *fakeClock
	cost  time.Duration
	err   error
	ticks int
}

// Tick spends cost on the fake clock, cut short at the tick deadline the way a
// real pointer sweep stops when its context ends.
func (l *fakeLiveness) Tick(ctx context.Context) error {
	l.ticks++
	if l.clock == nil {
		return l.err
	}
	cost := l.cost
	if deadline, ok := ctx.Deadline(); ok {
		cost = min(cost, max(time.Until(deadline), 0))
	}
	l.clock.advance(cost)
	return l.err
}

// -- Page --

type fakeHandle struct{ d Descriptor }

func (h fakeHandle) Descriptor() Descriptor { return h.d }

type typedText struct {
	locator string
	text    string
	delay   time.Duration
}

// fakePage is a scripted login page. The username field is visible once every
// overlay has been clicked away and every blind layer has been dismissed with Enter.
type fakePage struct {
	mu    sync.Mutex
	clock *fakeClock

	url  string
	text string

	overlays        int
	blindLayers     int
	fieldNever      bool
	fieldDisabled   bool
	passwordHidden  bool
	submitHidden    bool
	challengeUntil  time.Time
	challengeAlways bool
	challengeFrame  bool
	successVisible  bool
	onSubmit        func(p *fakePage)

	// failOn maps an operation ("navigate", "click:<locator>", "locate:<locator>",
	// "press", "screenshot", "text", ...) to the error it returns.
	failOn map[string]error
	// blockLocates makes the next n Locate calls wait for their context to end.
	blockLocates int
	// visibility, when set, overrides the computed visibility of a locator.
	visibility func(locator string) bool
	enabled    func(locator string) bool

	calls           []string
	typed           []typedText
	keys            []Key
	submits         int
	screenshots     []string
	lastVisible     map[string]bool
	lastEnabled     map[string]bool
	violations      []string
	traceOn         bool
	traceRedact     []string
	tracePath       string
	traceAfterClose bool
	closed          bool
}

func newFakePage(clock *fakeClock) *fakePage {
	return &fakePage{
		clock:       clock,
		failOn:      map[string]error{},
		lastVisible: map[string]bool{},
		lastEnabled: map[string]bool{},
	}
}

func (p *fakePage) fail(op string) error {
	return p.failOn[op]
}

func (p *fakePage) challengeActive() bool {
	return p.challengeAlways || p.clock.Now().Before(p.challengeUntil)
}

func (p *fakePage) fieldVisible() bool {
	return !p.fieldNever && p.overlays == 0 && p.blindLayers == 0
}

func (p *fakePage) exists(loc string) bool {
	switch loc {
	case overlaySel:
		return p.overlays > 0
	case usernameSel, passwordSel, submitSel:
		return true
	case logoutSel:
		return p.successVisible
	case turnstileSel:
		return p.challengeActive() && !p.challengeFrame
	}
	return false
}

func (p *fakePage) computeVisible(loc string) bool {
	if p.visibility != nil {
		return p.visibility(loc)
	}
	switch loc {
	case usernameSel:
		return p.fieldVisible()
	case passwordSel:
		return p.fieldVisible() && !p.passwordHidden
	case submitSel:
		return p.fieldVisible() && !p.submitHidden
	}
	return p.exists(loc)
}

func (p *fakePage) Navigate(ctx context.Context, url string, mode WaitMode, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "navigate")
	if err := p.fail("navigate"); err != nil {
		return err
	}
	p.url = url
	return nil
}

func (p *fakePage) Locate(ctx context.Context, d Descriptor) (ElementHandle, error) {
	p.mu.Lock()
	if p.blockLocates > 0 {
		p.blockLocates--
		p.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer p.mu.Unlock()
	loc := d.String()
	if err := p.fail("locate:" + loc); err != nil {
		return nil, err
	}
	if !p.exists(loc) {
		return nil, nil
	}
	return fakeHandle{d: d}, nil
}

func (p *fakePage) IsVisible(ctx context.Context, h ElementHandle) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	loc := h.Descriptor().String()
	v := p.computeVisible(loc)
	p.lastVisible[loc] = v
	return v, nil
}

func (p *fakePage) IsEnabled(ctx context.Context, h ElementHandle) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	loc := h.Descriptor().String()
	e := !(loc == usernameSel && p.fieldDisabled)
	if p.enabled != nil {
		e = p.enabled(loc)
	}
	p.lastEnabled[loc] = e
	return e, nil
}

func (p *fakePage) Click(ctx context.Context, h ElementHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	loc := h.Descriptor().String()
	p.calls = append(p.calls, "click:"+loc)
	if err := p.fail("click:" + loc); err != nil {
		return err
	}
	switch loc {
	case overlaySel:
		if p.overlays > 0 {
			p.overlays--
		}
	case submitSel:
		p.submitLocked()
	}
	return nil
}

func (p *fakePage) submitLocked() {
	p.submits++
	if p.onSubmit != nil {
		p.onSubmit(p)
	}
}

func (p *fakePage) Type(ctx context.Context, h ElementHandle, text string, opts TypeOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	loc := h.Descriptor().String()
	p.calls = append(p.calls, "type:"+loc)
	if !p.lastVisible[loc] || !p.lastEnabled[loc] {
		p.violations = append(p.violations, loc)
	}
	if err := p.fail("type:" + loc); err != nil {
		return err
	}
	p.typed = append(p.typed, typedText{locator: loc, text: text, delay: opts.PerCharDelay})
	return nil
}

func (p *fakePage) PressKey(ctx context.Context, key Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "press:"+string(key))
	if err := p.fail("press"); err != nil {
		return err
	}
	p.keys = append(p.keys, key)
	if p.blindLayers > 0 {
		p.blindLayers--
		return nil
	}
	if len(p.typed) >= 2 {
		p.submitLocked()
	}
	return nil
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("url"); err != nil {
		return "", err
	}
	return p.url, nil
}

func (p *fakePage) PageText(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("text"); err != nil {
		return "", err
	}
	return p.text, nil
}

func (p *fakePage) ListFrames(ctx context.Context) ([]Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("frames"); err != nil {
		return nil, err
	}
	frames := []Frame{{ID: "main", URL: p.url}}
	if p.challengeFrame && p.challengeActive() {
		frames = append(frames, Frame{ID: "cf", URL: challengeURL})
	}
	return frames, nil
}

func (p *fakePage) Screenshot(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("screenshot"); err != nil {
		return err
	}
	p.screenshots = append(p.screenshots, filepath.Base(path))
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (p *fakePage) StartTrace(ctx context.Context, redact ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.traceOn = true
	p.traceRedact = redact
	return p.fail("trace")
}

func (p *fakePage) StopTrace(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.traceAfterClose = true
	}
	p.tracePath = path
	return os.WriteFile(path, []byte("zip"), 0o644)
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) String() string {
	return fmt.Sprintf("fakePage{url=%s overlays=%d}", p.url, p.overlays)
}

// -- Provider --

type fakeProvider struct {
	page     *fakePage
	err      error
	acquired int
}

func (f *fakeProvider) Acquire(ctx context.Context) (PageDriver, error) {
	f.acquired++
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}
