// File: cmd/login.go
package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/gatepass/internal/browser/chrome"
	"github.com/xkilldash9x/gatepass/internal/config"
	"github.com/xkilldash9x/gatepass/internal/login"
	"github.com/xkilldash9x/gatepass/internal/metrics"
	"github.com/xkilldash9x/gatepass/internal/observability"
	"go.uber.org/zap"
)

// Function variables so tests can run the command without a browser.
var (
	newProvider = func(cfg *config.Config, logger *zap.Logger) login.DriverProvider {
		return chrome.NewProvider(cfg.Browser, logger)
	}
	now = time.Now
)

// loginFlags maps each flag onto the config key it overrides.
var loginFlags = map[string]string{
	"url":            "login.url",
	"challenge-wait": "login.challenge_wait",
	"overlay-rounds": "login.overlay_max_rounds",
	"artifacts":      "artifacts.dir",
	"headless":       "browser.headless",
}

// newLoginCmd creates the `login` command, which performs exactly one attempt.
func newLoginCmd(v *viper.Viper) *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Perform one login attempt and report the verdict",
		Long: `Perform one login attempt against the configured portal.

Credentials are read from GATEPASS_LOGIN_USERNAME and GATEPASS_LOGIN_PASSWORD
(or the legacy BOOKING_USERNAME and BOOKING_PASSWORD). Screenshots, the trace
bundle and attempt.json are written to the artifacts directory.

Exit status is 0 whenever a verdict was reached, 2 for missing or invalid
configuration and 1 for any other failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			// An explicit flag beats the legacy CF_WAIT_SECONDS variable.
			if cmd.Flags().Changed("challenge-wait") {
				cfg.Login.ChallengeWait = v.GetDuration(loginFlags["challenge-wait"])
				if err := cfg.Validate(); err != nil {
					return &configLoadError{err: fmt.Errorf("invalid configuration: %w", err)}
				}
			}
			return runLogin(cmd, cfg)
		},
	}

	flags := loginCmd.Flags()
	flags.String("url", "", "login page URL")
	flags.Duration("challenge-wait", 0, "time budget for the anti-automation challenge")
	flags.Int("overlay-rounds", 0, "maximum overlay dismissal rounds per pass")
	flags.String("artifacts", "", "directory for screenshots, trace and report")
	flags.Bool("headless", true, "run the browser without a window")

	// Flags only take effect when set, so binding them up front keeps the
	// file < env < flag precedence.
	for name, key := range loginFlags {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %q: %v", name, err))
		}
	}
	return loginCmd
}

func runLogin(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	creds, err := login.NewCredentials(cfg.Login.Username, cfg.Login.Password)
	if err != nil {
		logger.Error("Refusing to start attempt.", zap.Error(err))
		fmt.Fprintln(cmd.OutOrStdout(), formatResult(&login.Result{State: login.StateFatal, Failed: login.StateInit}))
		return &login.FatalError{State: login.StateInit, Cause: err}
	}

	orch := login.NewOrchestrator(cfg, newProvider(cfg, logger), logger)
	res, runErr := orch.Run(ctx, creds)

	if cfg.Metrics.Textfile != "" {
		writeMetrics(cfg.Metrics.Textfile, res, logger)
	}
	printResult(cmd.OutOrStdout(), res)
	return runErr
}

func writeMetrics(path string, res *login.Result, logger *zap.Logger) {
	rec := metrics.NewRecorder()
	rec.RecordResult(res, now())
	if err := rec.WriteTextfile(path); err != nil {
		logger.Warn("Metrics not written.", zap.Error(err))
	}
}

func printResult(w io.Writer, res *login.Result) {
	if res == nil {
		return
	}
	fmt.Fprintln(w, formatResult(res))
}

// formatResult renders the single stdout line scripts consume. It is built from
// the result only, so it can never carry credentials.
func formatResult(res *login.Result) string {
	line := "state=" + string(res.State)
	if res.State == login.StateFatal {
		line += " failed=" + string(res.Failed)
	}
	if res.Outcome != nil && len(res.Outcome.Evidence) > 0 {
		first := res.Outcome.Evidence[0]
		line += fmt.Sprintf(" evidence=%s:%s", first.Kind, first.Locator)
	}
	if res.Attempt != nil {
		line += " attempt=" + res.Attempt.ID.String()
	}
	if res.ArtifactDir != "" {
		line += " artifacts=" + res.ArtifactDir
	}
	return line
}
