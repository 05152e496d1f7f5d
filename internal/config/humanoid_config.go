// File: internal/config/humanoid_config.go
// This file defines the HumanoidConfig struct, which contains the tunable
// parameters for the pacing and pointer-motion models used while logging in.
// These settings control the jitter between keystrokes and fields and the
// benign pointer drift emitted while the challenge widget settles.
//
// The configuration is designed to be loaded from a file (e.g., YAML) using
// Viper, so the behavioral profile can be tuned without changing code.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// HumanoidConfig holds pacing ranges and liveness settings.
type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Pacing ranges. A delay is sampled uniformly within [Min, Max].
	InterFieldDelayMin time.Duration `mapstructure:"inter_field_delay_min" yaml:"inter_field_delay_min"`
	InterFieldDelayMax time.Duration `mapstructure:"inter_field_delay_max" yaml:"inter_field_delay_max"`
	PerCharDelayMin    time.Duration `mapstructure:"per_char_delay_min" yaml:"per_char_delay_min"`
	PerCharDelayMax    time.Duration `mapstructure:"per_char_delay_max" yaml:"per_char_delay_max"`
	SubmitPauseMin     time.Duration `mapstructure:"submit_pause_min" yaml:"submit_pause_min"`
	SubmitPauseMax     time.Duration `mapstructure:"submit_pause_max" yaml:"submit_pause_max"`

	// Movement model.
	FittsA          float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB          float64 `mapstructure:"fitts_b" yaml:"fitts_b"`
	NoiseAmplitude  float64 `mapstructure:"noise_amplitude" yaml:"noise_amplitude"`
	MaxStepsPerMove int     `mapstructure:"max_steps_per_move" yaml:"max_steps_per_move"`

	Liveness LivenessConfig `mapstructure:"liveness" yaml:"liveness"`
}

// LivenessConfig bounds the pointer drift emitted during the challenge wait.
type LivenessConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	TicksPerSecond float64 `mapstructure:"ticks_per_second" yaml:"ticks_per_second"`
	MaxTicks       int     `mapstructure:"max_ticks" yaml:"max_ticks"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.inter_field_delay_min", "250ms")
	v.SetDefault("humanoid.inter_field_delay_max", "650ms")
	v.SetDefault("humanoid.per_char_delay_min", "40ms")
	v.SetDefault("humanoid.per_char_delay_max", "140ms")
	v.SetDefault("humanoid.submit_pause_min", "200ms")
	v.SetDefault("humanoid.submit_pause_max", "500ms")
	v.SetDefault("humanoid.fitts_a", 100.0)
	v.SetDefault("humanoid.fitts_b", 120.0)
	v.SetDefault("humanoid.noise_amplitude", 1.5)
	v.SetDefault("humanoid.max_steps_per_move", 40)
	v.SetDefault("humanoid.liveness.enabled", true)
	v.SetDefault("humanoid.liveness.ticks_per_second", 1.0)
	v.SetDefault("humanoid.liveness.max_ticks", 8)
}

// Validate checks that every range is ordered and non-negative.
func (h *HumanoidConfig) Validate() error {
	ranges := []struct {
		name     string
		min, max time.Duration
	}{
		{"inter_field_delay", h.InterFieldDelayMin, h.InterFieldDelayMax},
		{"per_char_delay", h.PerCharDelayMin, h.PerCharDelayMax},
		{"submit_pause", h.SubmitPauseMin, h.SubmitPauseMax},
	}
	for _, r := range ranges {
		if r.min < 0 || r.max < r.min {
			return fmt.Errorf("%s range must satisfy 0 <= min <= max", r.name)
		}
	}
	if h.Liveness.Enabled {
		if h.Liveness.TicksPerSecond <= 0 {
			return fmt.Errorf("liveness.ticks_per_second must be positive")
		}
		if h.Liveness.MaxTicks < 0 {
			return fmt.Errorf("liveness.max_ticks must not be negative")
		}
	}
	return nil
}
