// internal/browser/chrome/recorder.go
package chrome

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// TraceEntryName is the event log inside a trace bundle.
const TraceEntryName = "trace.json"

// TraceEvent is one entry of the attempt trace. Request bodies and typed text are
// never recorded.
type TraceEvent struct {
	Time   time.Time `json:"ts"`
	Kind   string    `json:"kind"`
	URL    string    `json:"url,omitempty"`
	Method string    `json:"method,omitempty"`
	Status int64     `json:"status,omitempty"`
	Frame  string    `json:"frame,omitempty"`
	Level  string    `json:"level,omitempty"`
	Text   string    `json:"text,omitempty"`
}

// Trace event kinds.
const (
	KindRequest    = "request"
	KindResponse   = "response"
	KindFailed     = "request_failed"
	KindNavigated  = "frame_navigated"
	KindConsole    = "console"
	KindException  = "exception"
	KindAction     = "action"
	KindScreenshot = "screenshot"
)

// Recorder collects page activity for the trace bundle. It listens to the tab's
// DevTools events between Start and Stop and accepts action marks from the driver.
type Recorder struct {
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	events      []TraceEvent
	requestURLs map[network.RequestID]string
	screenshots []string
	started     bool
	cancel      context.CancelFunc
	// scrub masks redacted values in URLs and text. Nil when nothing is redacted.
	scrub *strings.Replacer
}

// redactedMark replaces every masked value in the trace.
const redactedMark = "[REDACTED]"

// NewRecorder creates an idle Recorder.
func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{
		logger:      logger.Named("trace"),
		now:         time.Now,
		requestURLs: make(map[network.RequestID]string),
	}
}

// Start subscribes to the tab's events. tabCtx must be a chromedp context whose
// browser has already been allocated.
func (r *Recorder) Start(tabCtx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	// The lock is not held while enabling domains: listener callbacks take it and
	// run on the same event loop that delivers the command responses.
	listenCtx, cancel := context.WithCancel(tabCtx)
	chromedp.ListenTarget(listenCtx, r.handle)
	if err := chromedp.Run(tabCtx, network.Enable(), runtime.Enable(), page.Enable()); err != nil {
		cancel()
		return fmt.Errorf("failed to enable trace domains: %w", err)
	}

	r.mu.Lock()
	r.cancel = cancel
	r.started = true
	r.mu.Unlock()
	r.logger.Debug("Trace recording started.")
	return nil
}

// Redact masks values, and their URL-encoded forms, in every event recorded from
// now on. Empty values are ignored.
func (r *Recorder) Redact(values ...string) {
	seen := make(map[string]struct{})
	var needles []string
	for _, v := range values {
		if v == "" {
			continue
		}
		for _, form := range []string{v, url.QueryEscape(v), url.PathEscape(v)} {
			if _, ok := seen[form]; !ok {
				seen[form] = struct{}{}
				needles = append(needles, form)
			}
		}
	}
	// Longer needles first, so a value is never half-masked by one of its prefixes.
	sort.Slice(needles, func(i, j int) bool { return len(needles[i]) > len(needles[j]) })

	var scrub *strings.Replacer
	if len(needles) > 0 {
		pairs := make([]string, 0, 2*len(needles))
		for _, n := range needles {
			pairs = append(pairs, n, redactedMark)
		}
		scrub = strings.NewReplacer(pairs...)
	}

	r.mu.Lock()
	r.scrub = scrub
	r.mu.Unlock()
}

// Recording reports whether Start has succeeded and Stop has not been called.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Stop unsubscribes and returns everything recorded so far.
func (r *Recorder) Stop() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.started = false
	return append([]TraceEvent(nil), r.events...)
}

// Mark records a driver action. detail must not contain user input.
func (r *Recorder) Mark(action, detail string) {
	r.add(TraceEvent{Kind: KindAction, Text: strings.TrimSpace(action + " " + detail)})
}

// AddScreenshot records a screenshot so it is packed into the bundle.
func (r *Recorder) AddScreenshot(path string) {
	r.mu.Lock()
	r.screenshots = append(r.screenshots, path)
	r.mu.Unlock()
	r.add(TraceEvent{Kind: KindScreenshot, Text: filepath.Base(path)})
}

func (r *Recorder) add(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Time.IsZero() {
		ev.Time = r.now()
	}
	if r.scrub != nil {
		ev.URL = r.scrub.Replace(ev.URL)
		ev.Text = r.scrub.Replace(ev.Text)
	}
	r.events = append(r.events, ev)
}

// handle receives DevTools events. It runs on chromedp's event goroutine.
func (r *Recorder) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		r.mu.Lock()
		r.requestURLs[e.RequestID] = e.Request.URL
		r.mu.Unlock()
		r.add(TraceEvent{Kind: KindRequest, URL: e.Request.URL, Method: e.Request.Method})
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		r.add(TraceEvent{Kind: KindResponse, URL: e.Response.URL, Status: e.Response.Status})
	case *network.EventLoadingFailed:
		r.mu.Lock()
		reqURL := r.requestURLs[e.RequestID]
		r.mu.Unlock()
		r.add(TraceEvent{Kind: KindFailed, URL: reqURL, Text: e.ErrorText})
	case *page.EventFrameNavigated:
		if e.Frame == nil {
			return
		}
		r.add(TraceEvent{Kind: KindNavigated, URL: e.Frame.URL, Frame: string(e.Frame.ID)})
	case *runtime.EventConsoleAPICalled:
		r.add(TraceEvent{Kind: KindConsole, Level: string(e.Type), Text: consoleText(e.Args)})
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return
		}
		text := e.ExceptionDetails.Text
		if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
			text = e.ExceptionDetails.Exception.Description
		}
		r.add(TraceEvent{Kind: KindException, Level: "error", Text: text})
	}
}

func consoleText(args []*runtime.RemoteObject) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteString(" ")
		}
		var val interface{}
		switch {
		case len(arg.Value) > 0 && json.Unmarshal([]byte(arg.Value), &val) == nil:
			fmt.Fprintf(&b, "%v", val)
		case arg.Description != "":
			b.WriteString(arg.Description)
		default:
			fmt.Fprintf(&b, "[%s]", arg.Type)
		}
	}
	return b.String()
}

// WriteBundle writes a zip archive at path holding the event log and a copy of every
// recorded screenshot that still exists.
func (r *Recorder) WriteBundle(path string, events []TraceEvent) error {
	r.mu.Lock()
	shots := append([]string(nil), r.screenshots...)
	r.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace bundle: %w", err)
	}
	zw := zip.NewWriter(f)

	if err := writeEvents(zw, events); err != nil {
		zw.Close()
		f.Close()
		return err
	}
	for _, shot := range shots {
		if err := copyInto(zw, "screenshots/"+filepath.Base(shot), shot); err != nil {
			r.logger.Debug("Screenshot left out of trace bundle.", zap.String("file", filepath.Base(shot)), zap.Error(err))
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finish trace bundle: %w", err)
	}
	return f.Close()
}

func writeEvents(zw *zip.Writer, events []TraceEvent) error {
	w, err := zw.Create(TraceEntryName)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", TraceEntryName, err)
	}
	if events == nil {
		events = []TraceEvent{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return fmt.Errorf("failed to encode trace events: %w", err)
	}
	return nil
}

func copyInto(zw *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
