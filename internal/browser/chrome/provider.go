// internal/browser/chrome/provider.go
package chrome

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatepass/internal/browser/stealth"
	"github.com/xkilldash9x/gatepass/internal/config"
	"github.com/xkilldash9x/gatepass/internal/login"
)

// Provider launches a fresh, isolated browser for every attempt.
type Provider struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ login.DriverProvider = (*Provider)(nil)

// NewProvider creates a Provider for the given browser settings.
func NewProvider(cfg config.BrowserConfig, logger *zap.Logger) *Provider {
	return &Provider{cfg: cfg, logger: logger.Named("browser")}
}

// Acquire starts a browser, opens a tab and applies the persona. The browser
// outlives ctx's cancellation so diagnostics can still be captured; it is torn
// down by the returned driver's Close.
func (p *Provider) Acquire(ctx context.Context) (login.PageDriver, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(p.cfg)...)
	sugar := p.logger.Sugar()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	d := &Driver{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      p.logger,
		recorder:    NewRecorder(p.logger),
	}

	if err := p.launch(ctx, tabCtx); err != nil {
		if cerr := d.Close(); cerr != nil {
			p.logger.Debug("Cleanup after failed launch.", zap.Error(cerr))
		}
		return nil, err
	}

	persona := stealth.FromConfig(p.cfg)
	if err := d.run(ctx, stealth.Apply(persona, p.logger)); err != nil {
		if cerr := d.Close(); cerr != nil {
			p.logger.Debug("Cleanup after failed persona setup.", zap.Error(cerr))
		}
		return nil, fmt.Errorf("failed to apply browser persona: %w", err)
	}

	p.logger.Info("Browser ready.",
		zap.Bool("headless", p.cfg.Headless),
		zap.Int("width", persona.Width),
		zap.Int("height", persona.Height))
	return d, nil
}

// launch allocates the browser on tabCtx. The first chromedp.Run on a context
// binds the browser's lifetime to that context, so it must not carry a timeout;
// the launch timeout is enforced around it instead.
func (p *Provider) launch(ctx context.Context, tabCtx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()

	timeout := p.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("browser did not start within %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
