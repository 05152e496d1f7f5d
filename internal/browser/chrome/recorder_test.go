// internal/browser/chrome/recorder_test.go
package chrome

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r := NewRecorder(zaptest.NewLogger(t))
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	return r
}

func TestRecorder_HandleEvents(t *testing.T) {
	r := newTestRecorder(t)

	r.handle(&network.EventRequestWillBeSent{
		RequestID: "req-1",
		Request: &network.Request{
			URL:         "https://example.test/CG02.aspx",
			Method:      "POST",
			HasPostData: true,
		},
	})
	r.handle(&network.EventResponseReceived{
		RequestID: "req-1",
		Response:  &network.Response{URL: "https://example.test/CG02.aspx", Status: 302},
	})
	r.handle(&network.EventLoadingFailed{RequestID: "req-1", ErrorText: "net::ERR_ABORTED"})
	r.handle(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "main", URL: "https://example.test/home"}})
	r.handle(&runtime.EventConsoleAPICalled{
		Type: runtime.APITypeWarning,
		Args: []*runtime.RemoteObject{
			{Type: runtime.TypeObject, Description: "Object"},
			{Type: runtime.TypeUndefined},
		},
	})
	r.handle(&runtime.EventExceptionThrown{ExceptionDetails: &runtime.ExceptionDetails{Text: "Uncaught"}})
	r.handle(&network.EventRequestWillBeSent{RequestID: "nil-request"})
	r.handle("not an event")
	r.Mark("click", "input#login_but")

	events := r.Stop()
	require.Len(t, events, 7)
	assert.Equal(t, TraceEvent{Time: r.now(), Kind: KindRequest, URL: "https://example.test/CG02.aspx", Method: "POST"}, events[0])
	assert.Equal(t, int64(302), events[1].Status)
	assert.Equal(t, KindFailed, events[2].Kind)
	assert.Equal(t, "https://example.test/CG02.aspx", events[2].URL, "failure resolves the request URL")
	assert.Equal(t, "main", events[3].Frame)
	assert.Equal(t, "Object [undefined]", events[4].Text)
	assert.Equal(t, "warning", events[4].Level)
	assert.Equal(t, "Uncaught", events[5].Text)
	assert.Equal(t, "click input#login_but", events[6].Text)
}

func TestRecorder_Redact(t *testing.T) {
	r := newTestRecorder(t)
	r.Redact("member-0042", "p@ss word", "")

	r.handle(&network.EventRequestWillBeSent{
		RequestID: "get-form",
		Request: &network.Request{
			URL:    "https://example.test/CG02.aspx?loginid=member-0042&loginpw=p%40ss+word",
			Method: "GET",
		},
	})
	r.handle(&network.EventLoadingFailed{RequestID: "get-form", ErrorText: "net::ERR_ABORTED"})
	r.handle(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: "main", URL: "https://example.test/u/p@ss%20word/home"}})
	r.handle(&runtime.EventConsoleAPICalled{
		Type: runtime.APITypeLog,
		Args: []*runtime.RemoteObject{{Type: runtime.TypeString, Value: []byte(`"welcome member-0042"`)}},
	})
	r.Mark("navigate", "https://example.test/?user=member-0042")

	events := r.Stop()
	require.Len(t, events, 5)
	assert.Equal(t, "https://example.test/CG02.aspx?loginid=[REDACTED]&loginpw=[REDACTED]", events[0].URL)
	assert.Equal(t, events[0].URL, events[1].URL)
	assert.Equal(t, "https://example.test/u/[REDACTED]/home", events[2].URL)
	assert.Equal(t, "welcome [REDACTED]", events[3].Text)
	assert.Equal(t, "navigate https://example.test/?user=[REDACTED]", events[4].Text)

	path := filepath.Join(t.TempDir(), "trace.zip")
	require.NoError(t, r.WriteBundle(path, events))
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	for _, secret := range []string{"member-0042", "p@ss word", "p%40ss+word", "p@ss%20word"} {
		assert.NotContains(t, string(body), secret)
	}
}

func TestRecorder_WriteBundle(t *testing.T) {
	dir := t.TempDir()
	r := newTestRecorder(t)

	shot := filepath.Join(dir, "01_loaded.png")
	require.NoError(t, os.WriteFile(shot, []byte("png-bytes"), 0o644))
	r.AddScreenshot(shot)
	r.AddScreenshot(filepath.Join(dir, "missing.png"))
	r.Mark("navigate", "https://example.test/")

	path := filepath.Join(dir, "trace.zip")
	require.NoError(t, r.WriteBundle(path, r.Stop()))

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	entries := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		entries[f.Name] = body
	}
	require.Contains(t, entries, TraceEntryName)
	assert.Equal(t, []byte("png-bytes"), entries["screenshots/01_loaded.png"])
	assert.NotContains(t, entries, "screenshots/missing.png")

	var events []TraceEvent
	require.NoError(t, json.Unmarshal(entries[TraceEntryName], &events))
	require.Len(t, events, 3)
	assert.Equal(t, KindScreenshot, events[0].Kind)
	assert.Equal(t, "01_loaded.png", events[0].Text)
	assert.Equal(t, KindAction, events[2].Kind)
}

func TestRecorder_EmptyBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.zip")
	r := newTestRecorder(t)
	assert.False(t, r.Recording())
	require.NoError(t, r.WriteBundle(path, nil))

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(body))
}

func TestRecorder_WriteBundleFailure(t *testing.T) {
	r := newTestRecorder(t)
	err := r.WriteBundle(filepath.Join(t.TempDir(), "no", "such", "dir", "trace.zip"), nil)
	assert.ErrorContains(t, err, "failed to create trace bundle")
}
