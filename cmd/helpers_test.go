// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/gatepass/internal/config"
	"github.com/xkilldash9x/gatepass/internal/login"
	"github.com/xkilldash9x/gatepass/internal/observability"
	"go.uber.org/zap"
)

const (
	testUsername = "member-0042"
	testPassword = "s3cret-pa55"
)

// resetForTest isolates a test from the process environment and the global logger.
func resetForTest(t *testing.T) {
	t.Helper()

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	for _, name := range []string{
		"GATEPASS_LOGIN_USERNAME", "GATEPASS_LOGIN_PASSWORD",
		"BOOKING_USERNAME", "BOOKING_PASSWORD", "CF_WAIT_SECONDS",
		"GATEPASS_METRICS_TEXTFILE",
	} {
		t.Setenv(name, "")
	}
	t.Setenv("GATEPASS_LOGGER_LEVEL", "fatal")

	origProvider, origNow := newProvider, now
	t.Cleanup(func() {
		newProvider = origProvider
		now = origNow
	})
	now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

	// Keep viper from picking up a config.yaml in the package directory.
	t.Chdir(t.TempDir())
}

// withCredentials exports a credential pair through the primary variable names.
func withCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("GATEPASS_LOGIN_USERNAME", testUsername)
	t.Setenv("GATEPASS_LOGIN_PASSWORD", testPassword)
}

// executeCmd runs a fresh command tree and returns what it printed on stdout.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfigFile writes content to a config.yaml in a temp dir and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// mockProvider records the configuration the command ran with. Tests make
// acquisition fail so no browser is needed.
type mockProvider struct {
	mock.Mock
	cfg *config.Config
}

func (p *mockProvider) Acquire(ctx context.Context) (login.PageDriver, error) {
	args := p.Called(ctx)
	drv, _ := args.Get(0).(login.PageDriver)
	return drv, args.Error(1)
}

func installProvider(t *testing.T, err error) *mockProvider {
	t.Helper()
	p := &mockProvider{}
	p.On("Acquire", mock.Anything).Return(nil, err).Maybe()
	newProvider = func(cfg *config.Config, logger *zap.Logger) login.DriverProvider {
		p.cfg = cfg
		return p
	}
	return p
}
