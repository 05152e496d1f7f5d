// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/gatepass/internal/config"
	"github.com/xkilldash9x/gatepass/internal/login"
	"github.com/xkilldash9x/gatepass/internal/observability"
	"go.uber.org/zap"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFatal       = 1
	exitConfigError = 2
)

// errNoConfig is returned when a subcommand runs outside the root pre-run hook.
var errNoConfig = errors.New("configuration not initialized")

type contextKey string

const configKey contextKey = "gatepass.config"

// configLoadError marks a configuration that could not be read or did not validate.
type configLoadError struct {
	err error
}

func (e *configLoadError) Error() string { return e.err.Error() }
func (e *configLoadError) Unwrap() error { return e.err }

// newRootCmd builds the command tree. Each call gets its own viper instance so
// tests can execute it repeatedly.
func newRootCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var cfgFile string
	root := &cobra.Command{
		Use:           "gatepass",
		Short:         "gatepass signs in to a protected member portal and reports what happened.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "gatepass"})
				return &configLoadError{err: err}
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "gatepass"})
				return &configLoadError{err: fmt.Errorf("failed to load or validate config: %w", err)}
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version), zap.String("config_file", v.ConfigFileUsed()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newLoginCmd(v))
	root.AddCommand(newVersionCmd())
	return root
}

// initializeConfig reads the config file, if any, and wires the environment.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GATEPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only.
	}
	return nil
}

// configFromContext returns the configuration stored by the root pre-run hook.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errNoConfig
	}
	return cfg, nil
}

// exitCode maps the outcome of a command onto the process exit status. Every
// verdict, Indeterminate included, is a successful run.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var cfgErr *login.ConfigurationError
	var loadErr *configLoadError
	if errors.As(err, &cfgErr) || errors.As(err, &loadErr) {
		return exitConfigError
	}
	return exitFatal
}

// Execute runs the command tree under ctx and returns the process exit code.
func Execute(ctx context.Context) int {
	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command failed.", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return exitCode(err)
}
