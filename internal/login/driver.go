// internal/login/driver.go
package login

import (
	"context"
	"strings"
	"time"
)

// Strategy is the query language of a Descriptor.
type Strategy string

const (
	StrategyCSS   Strategy = "css"
	StrategyXPath Strategy = "xpath"
)

const xpathPrefix = "xpath:"

// Descriptor locates an element on the page.
type Descriptor struct {
	Strategy Strategy
	Query    string
}

// ParseDescriptor reads the configuration form of a descriptor: "xpath:<expr>" for
// XPath, anything else is CSS.
func ParseDescriptor(s string) Descriptor {
	s = strings.TrimSpace(s)
	if q, ok := strings.CutPrefix(s, xpathPrefix); ok {
		return Descriptor{Strategy: StrategyXPath, Query: strings.TrimSpace(q)}
	}
	return Descriptor{Strategy: StrategyCSS, Query: s}
}

// ParseDescriptors parses a list, dropping blank entries.
func ParseDescriptors(in []string) []Descriptor {
	out := make([]Descriptor, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, ParseDescriptor(s))
	}
	return out
}

func (d Descriptor) String() string {
	if d.Strategy == StrategyXPath {
		return xpathPrefix + d.Query
	}
	return d.Query
}

// WaitMode selects the page lifecycle event Navigate waits for.
type WaitMode string

const (
	WaitLoad             WaitMode = "load"
	WaitDOMContentLoaded WaitMode = "domcontentloaded"
)

// Key names a keyboard key.
type Key string

const KeyEnter Key = "Enter"

// TypeOptions paces typing.
type TypeOptions struct {
	PerCharDelay time.Duration
}

// ElementHandle is an opaque reference to a located element.
type ElementHandle interface {
	Descriptor() Descriptor
}

// Frame is one entry of the page's frame tree.
type Frame struct {
	ID   string
	Name string
	URL  string
}

// PageDriver is the browser capability consumed by the login sequence.
type PageDriver interface {
	Navigate(ctx context.Context, url string, mode WaitMode, timeout time.Duration) error
	// Locate returns a nil handle and a nil error when nothing matches.
	Locate(ctx context.Context, d Descriptor) (ElementHandle, error)
	IsVisible(ctx context.Context, h ElementHandle) (bool, error)
	IsEnabled(ctx context.Context, h ElementHandle) (bool, error)
	Click(ctx context.Context, h ElementHandle) error
	Type(ctx context.Context, h ElementHandle, text string, opts TypeOptions) error
	PressKey(ctx context.Context, key Key) error
	CurrentURL(ctx context.Context) (string, error)
	PageText(ctx context.Context) (string, error)
	ListFrames(ctx context.Context) ([]Frame, error)
	Screenshot(ctx context.Context, path string) error
	// StartTrace begins recording. Every value in redact is masked wherever it
	// would appear in the recorded URLs or text.
	StartTrace(ctx context.Context, redact ...string) error
	StopTrace(ctx context.Context, path string) error
	Close() error
}

// DriverProvider hands out a fresh driver per attempt.
type DriverProvider interface {
	Acquire(ctx context.Context) (PageDriver, error)
}

// visible resolves d and reports whether it is on screen. A missing element is simply
// not visible.
func visible(ctx context.Context, drv PageDriver, d Descriptor) (ElementHandle, bool, error) {
	h, err := drv.Locate(ctx, d)
	if err != nil {
		return nil, false, driverErr("locate "+d.String(), err)
	}
	if h == nil {
		return nil, false, nil
	}
	ok, err := drv.IsVisible(ctx, h)
	if err != nil {
		return nil, false, driverErr("visibility "+d.String(), err)
	}
	return h, ok, nil
}
