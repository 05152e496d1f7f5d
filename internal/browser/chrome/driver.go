// internal/browser/chrome/driver.go
package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatepass/internal/humanoid"
	"github.com/xkilldash9x/gatepass/internal/login"
)

const (
	// screenshotQuality 100 makes FullScreenshot produce PNG.
	screenshotQuality = 100
	closeTimeout      = 10 * time.Second
)

// visibleFn mirrors what a user can see: a laid-out box that is not hidden by style.
const visibleFn = `function() {
	const rect = this.getBoundingClientRect();
	const style = window.getComputedStyle(this);
	return rect.width > 0 && rect.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
}`

const enabledFn = `function() { return !this.disabled && !this.readOnly; }`

const clearValueFn = `function() {
	if ('value' in this) {
		this.value = '';
		this.dispatchEvent(new Event('input', { bubbles: true }));
	}
}`

const pageTextJS = `document.body ? document.body.innerText : ""`

// keyDefinition is what DispatchKeyEvent needs to emulate one named key.
type keyDefinition struct {
	key  string
	code string
	vk   int64
	text string
}

var keyDefinitions = map[login.Key]keyDefinition{
	login.KeyEnter: {key: "Enter", code: "Enter", vk: 13, text: "\r"},
}

// elementHandle pins a located node to the descriptor that found it.
type elementHandle struct {
	desc login.Descriptor
	node *cdp.Node
}

func (h *elementHandle) Descriptor() login.Descriptor { return h.desc }

// Driver implements login.PageDriver and humanoid.Executor on one chromedp tab.
// It owns its browser process; Close shuts both down.
type Driver struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *zap.Logger
	recorder    *Recorder

	closeOnce sync.Once
	closeErr  error
}

var (
	_ login.PageDriver  = (*Driver)(nil)
	_ humanoid.Executor = (*Driver)(nil)
)

// run executes actions on the tab, bounded by the operational context.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(d.tabCtx, ctx)
	defer cancel()
	return opError(ctx, chromedp.Run(opCtx, actions...))
}

func (d *Driver) mark(action, detail string) {
	if d.recorder.Recording() {
		d.recorder.Mark(action, detail)
	}
}

// Navigate loads url and waits for the requested lifecycle point.
func (d *Driver) Navigate(ctx context.Context, url string, mode login.WaitMode, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	d.mark("navigate", url)
	d.logger.Debug("Navigating.", zap.String("url", url), zap.String("wait", string(mode)))

	var action chromedp.Action
	switch mode {
	case login.WaitDOMContentLoaded:
		action = chromedp.Tasks{
			chromedp.ActionFunc(func(ctx context.Context) error {
				var res page.NavigateReturns
				if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
					return err
				}
				if res.ErrorText != "" {
					return fmt.Errorf("page load error %s", res.ErrorText)
				}
				return nil
			}),
			chromedp.WaitReady("body", chromedp.ByQuery),
		}
	default:
		action = chromedp.Navigate(url)
	}

	if err := d.run(ctx, action); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Locate returns the first node matching desc, or nil when nothing matches yet.
func (d *Driver) Locate(ctx context.Context, desc login.Descriptor) (login.ElementHandle, error) {
	by := chromedp.ByQueryAll
	if desc.Strategy == login.StrategyXPath {
		by = chromedp.BySearch
	}
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(desc.Query, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", desc, err)
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &elementHandle{desc: desc, node: nodes[0]}, nil
}

func handleOf(h login.ElementHandle) (*elementHandle, error) {
	eh, ok := h.(*elementHandle)
	if !ok || eh == nil || eh.node == nil {
		return nil, fmt.Errorf("element handle %T was not produced by this driver", h)
	}
	return eh, nil
}

// callOnNode runs a function with the node as this and decodes the result into res.
func (d *Driver) callOnNode(ctx context.Context, eh *elementHandle, fn string, res interface{}) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return chromedp.CallFunctionOnNode(ctx, eh.node, fn, res)
	}))
}

// IsVisible reports whether the element has a rendered, unhidden box.
func (d *Driver) IsVisible(ctx context.Context, h login.ElementHandle) (bool, error) {
	eh, err := handleOf(h)
	if err != nil {
		return false, err
	}
	var visible bool
	if err := d.callOnNode(ctx, eh, visibleFn, &visible); err != nil {
		return false, fmt.Errorf("failed to check visibility of %s: %w", eh.desc, err)
	}
	return visible, nil
}

// IsEnabled reports whether the element accepts input.
func (d *Driver) IsEnabled(ctx context.Context, h login.ElementHandle) (bool, error) {
	eh, err := handleOf(h)
	if err != nil {
		return false, err
	}
	var enabled bool
	if err := d.callOnNode(ctx, eh, enabledFn, &enabled); err != nil {
		return false, fmt.Errorf("failed to check state of %s: %w", eh.desc, err)
	}
	return enabled, nil
}

// Click scrolls the element into view and clicks its center.
func (d *Driver) Click(ctx context.Context, h login.ElementHandle) error {
	eh, err := handleOf(h)
	if err != nil {
		return err
	}
	d.mark("click", eh.desc.String())
	if err := d.run(ctx, chromedp.MouseClickNode(eh.node)); err != nil {
		return fmt.Errorf("failed to click %s: %w", eh.desc, err)
	}
	return nil
}

// Type replaces the element's value with text, one key event per character when a
// per-character delay is set. The text never reaches logs or the trace.
func (d *Driver) Type(ctx context.Context, h login.ElementHandle, text string, opts login.TypeOptions) error {
	eh, err := handleOf(h)
	if err != nil {
		return err
	}
	d.mark("type", eh.desc.String())

	prepare := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			return chromedp.CallFunctionOnNode(ctx, eh.node, clearValueFn, nil)
		}),
		dom.Focus().WithNodeID(eh.node.NodeID),
	}
	if err := d.run(ctx, prepare); err != nil {
		return fmt.Errorf("failed to focus %s: %w", eh.desc, err)
	}

	if opts.PerCharDelay <= 0 {
		if err := d.run(ctx, chromedp.KeyEvent(text)); err != nil {
			return fmt.Errorf("failed to type into %s: %w", eh.desc, err)
		}
		return nil
	}
	for i, r := range []rune(text) {
		if i > 0 {
			if err := d.Sleep(ctx, opts.PerCharDelay); err != nil {
				return err
			}
		}
		if err := d.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("failed to type into %s: %w", eh.desc, err)
		}
	}
	return nil
}

// PressKey sends a key down and key up for key to the focused element.
func (d *Driver) PressKey(ctx context.Context, key login.Key) error {
	def, ok := keyDefinitions[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	d.mark("press", string(key))
	down := input.DispatchKeyEvent(input.KeyDown).
		WithKey(def.key).
		WithCode(def.code).
		WithWindowsVirtualKeyCode(def.vk).
		WithText(def.text)
	up := input.DispatchKeyEvent(input.KeyUp).
		WithKey(def.key).
		WithCode(def.code).
		WithWindowsVirtualKeyCode(def.vk)
	if err := d.run(ctx, down, up); err != nil {
		return fmt.Errorf("failed to press %s: %w", key, err)
	}
	return nil
}

// CurrentURL returns the top-level document URL.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// PageText returns the rendered text of the document body.
func (d *Driver) PageText(ctx context.Context) (string, error) {
	var text string
	if err := d.run(ctx, chromedp.Evaluate(pageTextJS, &text)); err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// ListFrames returns every frame of the page, main frame first.
func (d *Driver) ListFrames(ctx context.Context) ([]login.Frame, error) {
	var tree *page.FrameTree
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame tree: %w", err)
	}
	return flattenFrames(tree, nil), nil
}

func flattenFrames(tree *page.FrameTree, out []login.Frame) []login.Frame {
	if tree == nil {
		return out
	}
	if f := tree.Frame; f != nil {
		out = append(out, login.Frame{ID: string(f.ID), Name: f.Name, URL: f.URL})
	}
	for _, child := range tree.ChildFrames {
		out = flattenFrames(child, out)
	}
	return out
}

// Screenshot captures the full page as PNG.
func (d *Driver) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := d.run(ctx, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	if d.recorder.Recording() {
		d.recorder.AddScreenshot(path)
	}
	return nil
}

// StartTrace begins recording page activity with redact masked out of it.
func (d *Driver) StartTrace(ctx context.Context, redact ...string) error {
	d.recorder.Redact(redact...)
	opCtx, cancel := CombineContext(d.tabCtx, ctx)
	defer cancel()
	return opError(ctx, d.recorder.Start(opCtx))
}

// StopTrace ends the recording and writes the bundle to path.
func (d *Driver) StopTrace(ctx context.Context, path string) error {
	events := d.recorder.Stop()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.recorder.WriteBundle(path, events); err != nil {
		return err
	}
	d.logger.Debug("Trace saved.", zap.Int("events", len(events)))
	return nil
}

// Sleep pauses for d or until ctx ends.
func (d *Driver) Sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DispatchMouseMove moves the pointer to pos without pressing any button.
func (d *Driver) DispatchMouseMove(ctx context.Context, pos humanoid.Vector2D) error {
	return d.run(ctx, input.DispatchMouseEvent(input.MouseMoved, pos.X, pos.Y))
}

// Close shuts the tab and the browser down. It is safe to call more than once.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.recorder.Stop()

		// chromedp.Cancel blocks until the browser exits, so it is bounded here.
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(d.tabCtx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				d.closeErr = fmt.Errorf("failed to close browser: %w", err)
			}
		case <-time.After(closeTimeout):
			d.closeErr = fmt.Errorf("browser did not exit within %s", closeTimeout)
		}
		d.cancelTab()
		d.cancelAlloc()
		d.logger.Debug("Browser closed.")
	})
	return d.closeErr
}
