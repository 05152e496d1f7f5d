// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
// It is loaded once at startup and handed to the login orchestrator at construction.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Login     LoginConfig     `mapstructure:"login" yaml:"login"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Humanoid  HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LoginConfig describes the target and the per-phase budgets of one login attempt.
type LoginConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Username string `mapstructure:"username" yaml:"-"`
	Password string `mapstructure:"password" yaml:"-"`

	// ChallengeWait is the time budget granted to the anti-automation widget.
	ChallengeWait time.Duration `mapstructure:"challenge_wait" yaml:"challenge_wait"`
	// ChallengeGrace bounds how long the waiter looks for a widget that has not appeared yet.
	ChallengeGrace   time.Duration `mapstructure:"challenge_grace" yaml:"challenge_grace"`
	ChallengePoll    time.Duration `mapstructure:"challenge_poll" yaml:"challenge_poll"`
	OverlayMaxRounds int           `mapstructure:"overlay_max_rounds" yaml:"overlay_max_rounds"`
	OverlaySettle    time.Duration `mapstructure:"overlay_settle" yaml:"overlay_settle"`
	PhaseTimeout     time.Duration `mapstructure:"phase_timeout" yaml:"phase_timeout"`

	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostSubmitWait    time.Duration `mapstructure:"post_submit_wait" yaml:"post_submit_wait"`

	// LoginMarker is the URL segment that identifies the login page.
	LoginMarker   string          `mapstructure:"login_marker" yaml:"login_marker"`
	ErrorKeywords []string        `mapstructure:"error_keywords" yaml:"error_keywords"`
	Selectors     SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
}

// SelectorsConfig lists the locator descriptors for each abstract signal category.
// Entries prefixed with "xpath:" are evaluated as XPath, everything else as CSS.
type SelectorsConfig struct {
	Overlays       []string `mapstructure:"overlays" yaml:"overlays"`
	Username       string   `mapstructure:"username" yaml:"username"`
	Password       string   `mapstructure:"password" yaml:"password"`
	Submit         string   `mapstructure:"submit" yaml:"submit"`
	SuccessMarkers []string `mapstructure:"success_markers" yaml:"success_markers"`
	Challenges     []string `mapstructure:"challenges" yaml:"challenges"`
	ChallengeFrame []string `mapstructure:"challenge_frames" yaml:"challenge_frames"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	Persona         PersonaConfig  `mapstructure:"persona" yaml:"persona"`
	LaunchTimeout   time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
}

// ViewportConfig is the emulated window size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// PersonaConfig defines the browser characteristics to emulate.
type PersonaConfig struct {
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Platform  string   `mapstructure:"platform" yaml:"platform"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
}

// ArtifactsConfig controls where diagnostics are written.
type ArtifactsConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Trace bool   `mapstructure:"trace" yaml:"trace"`
}

// MetricsConfig configures the optional node-exporter textfile.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gatepass")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Login --
	v.SetDefault("login.url", "https://www.cjcf.com.tw/CG02.aspx?module=login_page&files=login")
	v.SetDefault("login.challenge_wait", "6s")
	v.SetDefault("login.challenge_grace", "2s")
	v.SetDefault("login.challenge_poll", "500ms")
	v.SetDefault("login.overlay_max_rounds", 5)
	v.SetDefault("login.overlay_settle", "500ms")
	v.SetDefault("login.phase_timeout", "10s")
	v.SetDefault("login.navigation_timeout", "60s")
	v.SetDefault("login.post_submit_wait", "3s")
	v.SetDefault("login.login_marker", "login")
	v.SetDefault("login.error_keywords", []string{
		"invalid", "incorrect", "captcha required", "帳號或密碼錯誤", "驗證碼錯誤",
	})
	v.SetDefault("login.selectors.overlays", []string{"button.swal2-confirm"})
	v.SetDefault("login.selectors.username", "input#ContentPlaceHolder1_loginid")
	v.SetDefault("login.selectors.password", "input#loginpw")
	v.SetDefault("login.selectors.submit", "input#login_but")
	v.SetDefault("login.selectors.success_markers", []string{
		"a[href*='logout']", "xpath://a[contains(normalize-space(.), '登出')]",
	})
	v.SetDefault("login.selectors.challenges", []string{"#cf-challenge-running", "div.cf-turnstile"})
	v.SetDefault("login.selectors.challenge_frames", []string{"challenges.cloudflare.com"})

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.viewport.width", 1366)
	v.SetDefault("browser.viewport.height", 768)
	v.SetDefault("browser.persona.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.persona.platform", "Win32")
	v.SetDefault("browser.persona.languages", []string{"zh-TW", "zh"})
	v.SetDefault("browser.persona.timezone", "Asia/Taipei")
	v.SetDefault("browser.persona.locale", "zh-TW")

	// Initialize all Humanoid defaults using the centralized function in humanoid_config.go.
	setHumanoidDefaults(v)

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("artifacts.trace", true)

	// -- Metrics --
	v.SetDefault("metrics.textfile", "")
}

// BindEnvironment wires the sensitive keys and the legacy variable names used by
// the original deployment scripts.
func BindEnvironment(v *viper.Viper) {
	_ = v.BindEnv("login.username", "GATEPASS_LOGIN_USERNAME", "BOOKING_USERNAME")
	_ = v.BindEnv("login.password", "GATEPASS_LOGIN_PASSWORD", "BOOKING_PASSWORD")
	_ = v.BindEnv(legacyChallengeWaitKey, "CF_WAIT_SECONDS")
}

// legacyChallengeWaitKey carries CF_WAIT_SECONDS, an integer count of seconds.
const legacyChallengeWaitKey = "legacy.cf_wait_seconds"

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	BindEnvironment(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Like any environment variable, CF_WAIT_SECONDS wins over the config file.
	wait, ok, err := legacyChallengeWait(v)
	if err != nil {
		return nil, err
	}
	if ok {
		cfg.Login.ChallengeWait = wait
	}

	dir, err := homedir.Expand(cfg.Artifacts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand artifacts.dir: %w", err)
	}
	cfg.Artifacts.Dir = dir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// legacyChallengeWait parses CF_WAIT_SECONDS. An unset or empty variable reports
// ok=false. Zero is a valid budget and means no wait at all.
func legacyChallengeWait(v *viper.Viper) (time.Duration, bool, error) {
	raw := strings.TrimSpace(v.GetString(legacyChallengeWaitKey))
	if raw == "" {
		return 0, false, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, false, fmt.Errorf("invalid configuration: CF_WAIT_SECONDS must be a non-negative integer of seconds, got %q", raw)
	}
	return time.Duration(secs) * time.Second, true, nil
}

// Validate checks the configuration for required fields and sane values.
// Missing credentials are deliberately not checked here; the orchestrator reports
// them as a configuration error before any browser is started.
func (c *Config) Validate() error {
	if err := c.Login.Validate(); err != nil {
		return fmt.Errorf("login configuration invalid: %w", err)
	}
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Humanoid.Validate(); err != nil {
		return fmt.Errorf("humanoid configuration invalid: %w", err)
	}
	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is required")
	}
	return nil
}

// Validate checks the login budgets and selectors.
func (l *LoginConfig) Validate() error {
	u, err := url.Parse(l.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url must be an absolute URL, got %q", l.URL)
	}
	if l.ChallengeWait < 0 {
		return fmt.Errorf("challenge_wait must not be negative")
	}
	if l.ChallengePoll <= 0 {
		return fmt.Errorf("challenge_poll must be a positive duration")
	}
	if l.OverlayMaxRounds <= 0 {
		return fmt.Errorf("overlay_max_rounds must be a positive integer")
	}
	if l.PhaseTimeout <= 0 {
		return fmt.Errorf("phase_timeout must be a positive duration")
	}
	if l.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be a positive duration")
	}
	if l.PostSubmitWait < 0 || l.OverlaySettle < 0 || l.ChallengeGrace < 0 {
		return fmt.Errorf("settle intervals must not be negative")
	}
	if l.Selectors.Username == "" || l.Selectors.Password == "" {
		return fmt.Errorf("selectors.username and selectors.password are required")
	}
	return nil
}

// Validate checks the BrowserConfig settings.
func (b *BrowserConfig) Validate() error {
	if b.Viewport.Width <= 0 || b.Viewport.Height <= 0 {
		return fmt.Errorf("viewport dimensions must be positive")
	}
	if b.LaunchTimeout <= 0 {
		return fmt.Errorf("launch_timeout must be a positive duration")
	}
	return nil
}
