// internal/browser/chrome/options.go
package chrome

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/gatepass/internal/browser/stealth"
	"github.com/xkilldash9x/gatepass/internal/config"
)

// execFlags returns the command line switches for a fresh browser. The set is built
// explicitly instead of starting from chromedp.DefaultExecAllocatorOptions, which
// turns on enable-automation.
func execFlags(cfg config.BrowserConfig) map[string]interface{} {
	persona := stealth.FromConfig(cfg)
	flags := map[string]interface{}{
		"disable-blink-features":   "AutomationControlled",
		"no-sandbox":               true,
		"disable-infobars":         true,
		"disable-setuid-sandbox":   true,
		"no-first-run":             true,
		"no-default-browser-check": true,
		"disable-dev-shm-usage":    true,
		"password-store":           "basic",
		"use-mock-keychain":        true,
		"window-size":              fmt.Sprintf("%d,%d", persona.Width, persona.Height),
		"user-agent":               persona.UserAgent,
	}
	if len(persona.Languages) > 0 {
		flags["lang"] = persona.Languages[0]
	}
	if cfg.Headless {
		flags["headless"] = true
		flags["hide-scrollbars"] = true
		flags["mute-audio"] = true
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
	}

	// Extra arguments from the configuration win over the defaults above.
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = strings.Trim(value, `"'`)
		} else {
			flags[arg] = true
		}
	}
	return flags
}

// allocatorOptions converts the configuration into exec allocator options.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	flags := execFlags(cfg)
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]chromedp.ExecAllocatorOption, 0, len(keys)+1)
	for _, k := range keys {
		opts = append(opts, chromedp.Flag(k, flags[k]))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
