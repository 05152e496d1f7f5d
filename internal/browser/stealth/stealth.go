package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatepass/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
	Width     int
	Height    int
}

// DefaultPersona is a desktop Chrome on Windows browsing in Traditional Chinese.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"zh-TW", "zh"},
	Timezone:  "Asia/Taipei",
	Locale:    "zh-TW",
	Width:     1366,
	Height:    768,
}

// FromConfig builds a Persona from the browser configuration. Empty fields keep
// the DefaultPersona values.
func FromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	pc := cfg.Persona
	if pc.UserAgent != "" {
		p.UserAgent = pc.UserAgent
	}
	if pc.Platform != "" {
		p.Platform = pc.Platform
	}
	if len(pc.Languages) > 0 {
		p.Languages = append([]string(nil), pc.Languages...)
	}
	if pc.Timezone != "" {
		p.Timezone = pc.Timezone
	}
	if pc.Locale != "" {
		p.Locale = pc.Locale
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		p.Width, p.Height = cfg.Viewport.Width, cfg.Viewport.Height
	}
	return p
}

// AcceptLanguage renders the persona's languages as an Accept-Language header value,
// lowering the quality by 0.1 for each subsequent entry.
func (p Persona) AcceptLanguage() string {
	parts := make([]string, 0, len(p.Languages))
	q := 1.0
	for i, lang := range p.Languages {
		if lang == "" {
			continue
		}
		if i == 0 {
			parts = append(parts, lang)
		} else {
			parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
		}
		if q > 0.2 {
			q -= 0.1
		}
	}
	return strings.Join(parts, ",")
}

// Apply builds the DevTools actions that make the tab look like a user-operated
// browser matching p. It must be run through chromedp.Run on the tab's context.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.String("timezone", p.Timezone),
	)

	acceptLanguage := p.AcceptLanguage()
	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(acceptLanguage),

		// AddScriptToEvaluateOnNewDocument returns an identifier as well as an error,
		// so it does not satisfy chromedp.Action on its own.
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),

		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
	}
	if acceptLanguage != "" {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": acceptLanguage,
		}))
	}
	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(p.Width), int64(p.Height), 1, false))
	}
	return tasks
}
