// internal/login/driver_test.go
package login

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDescriptor(t *testing.T) {
	cases := []struct {
		in   string
		want Descriptor
	}{
		{"input#loginpw", Descriptor{Strategy: StrategyCSS, Query: "input#loginpw"}},
		{"  a[href*='logout'] ", Descriptor{Strategy: StrategyCSS, Query: "a[href*='logout']"}},
		{"xpath://a[contains(., '登出')]", Descriptor{Strategy: StrategyXPath, Query: "//a[contains(., '登出')]"}},
		{"xpath: //button", Descriptor{Strategy: StrategyXPath, Query: "//button"}},
	}
	for _, tc := range cases {
		got := ParseDescriptor(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, got, ParseDescriptor(got.String()), "String round-trips")
	}
}

func TestParseDescriptors_DropsBlanks(t *testing.T) {
	got := ParseDescriptors([]string{"", "div.cf-turnstile", "   ", "xpath://iframe"})
	assert.Equal(t, []Descriptor{
		{Strategy: StrategyCSS, Query: "div.cf-turnstile"},
		{Strategy: StrategyXPath, Query: "//iframe"},
	}, got)
}
