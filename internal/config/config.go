// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CLAIMGATE_DATABASE_URL.
const EnvPrefix = "CLAIMGATE"

// Config holds the entire application configuration. It is unmarshaled by viper
// from the config file, environment and bound flags, in that order of precedence
// (lowest first).
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Target    TargetConfig    `mapstructure:"target" yaml:"target"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Reveal    RevealConfig    `mapstructure:"reveal" yaml:"reveal"`
	Policy    PolicyConfig    `mapstructure:"policy" yaml:"policy"`
	Handoff   HandoffConfig   `mapstructure:"handoff" yaml:"handoff"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
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

// ColorConfig names the terminal color for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects and configures the audit store.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	URL        string `mapstructure:"url" yaml:"-"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	// OpTimeout bounds each individual write so a hung store cannot stall the verdict.
	OpTimeout time.Duration `mapstructure:"op_timeout" yaml:"op_timeout"`
}

// BrowserConfig holds settings for the headless Chrome instance.
type BrowserConfig struct {
	Headless     bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath     string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent    string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args         []string       `mapstructure:"args" yaml:"args"`
	Viewport     map[string]int `mapstructure:"viewport" yaml:"viewport"`
	CloseTimeout time.Duration  `mapstructure:"close_timeout" yaml:"close_timeout"`
	Debug        bool           `mapstructure:"debug" yaml:"debug"`
}

// TargetConfig describes the third-party page and the timing of each step.
type TargetConfig struct {
	URL               string        `mapstructure:"url" yaml:"url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StepTimeout       time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PostSubmitDelay   time.Duration `mapstructure:"post_submit_delay" yaml:"post_submit_delay"`
	Screenshots       bool          `mapstructure:"screenshots" yaml:"screenshots"`
}

// DiscoveryConfig tunes the element discovery engine.
type DiscoveryConfig struct {
	AffirmativeKeywords []string      `mapstructure:"affirmative_keywords" yaml:"affirmative_keywords"`
	ExcludedKeywords    []string      `mapstructure:"excluded_keywords" yaml:"excluded_keywords"`
	LoginKeywords       []string      `mapstructure:"login_keywords" yaml:"login_keywords"`
	PerSelectorTimeout  time.Duration `mapstructure:"per_selector_timeout" yaml:"per_selector_timeout"`
}

// RevealConfig bounds the hover/click loop that exposes the login surface.
type RevealConfig struct {
	MaxCandidates int           `mapstructure:"max_candidates" yaml:"max_candidates"`
	HoverRate     float64       `mapstructure:"hover_rate" yaml:"hover_rate"`
	HoverSettle   time.Duration `mapstructure:"hover_settle" yaml:"hover_settle"`
	ClickSettle   time.Duration `mapstructure:"click_settle" yaml:"click_settle"`
}

// PolicyConfig holds the phrase lists the decision policy matches against.
type PolicyConfig struct {
	InvalidPhrases     []string `mapstructure:"invalid_phrases" yaml:"invalid_phrases"`
	SuccessPhrases     []string `mapstructure:"success_phrases" yaml:"success_phrases"`
	SuccessURLKeywords []string `mapstructure:"success_url_keywords" yaml:"success_url_keywords"`
	ErrorClasses       []string `mapstructure:"error_classes" yaml:"error_classes"`
}

// HandoffConfig configures the claim workflow supervisor.
type HandoffConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Candidates are probed in order: an executable runs directly, any other
	// file runs through Interpreter.
	Candidates []string `mapstructure:"candidates" yaml:"candidates"`
	// Interpreter, when set, runs the entry point as a script (e.g. "node").
	Interpreter string        `mapstructure:"interpreter" yaml:"interpreter"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ExitGrace   time.Duration `mapstructure:"exit_grace" yaml:"exit_grace"`
	// Watchdog re-executes this binary as a detached supervisor so the timeout
	// outlives the validator process.
	Watchdog  bool `mapstructure:"watchdog" yaml:"watchdog"`
	RelayLogs bool `mapstructure:"relay_logs" yaml:"relay_logs"`
	// LogDir overrides the claim log directory, which otherwise lives under artifacts.dir.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`
}

// ArtifactsConfig locates screenshots and child process logs.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ScreenshotDir is where checkpoint captures are written.
func (a ArtifactsConfig) ScreenshotDir() string { return filepath.Join(a.Dir, "screenshots") }

// ClaimLogDir is where the claim workflow's stdout/stderr files are written.
func (a ArtifactsConfig) ClaimLogDir() string { return filepath.Join(a.Dir, "claim-logs") }

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "claimgate")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.sqlite_path", filepath.Join(xdg.DataHome, "claimgate", "claimgate.db"))
	v.SetDefault("database.op_timeout", "10s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.close_timeout", "5s")
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})

	// -- Target --
	v.SetDefault("target.url", "")
	v.SetDefault("target.navigation_timeout", "45s")
	v.SetDefault("target.step_timeout", "10s")
	v.SetDefault("target.settle_delay", "3s")
	v.SetDefault("target.post_submit_delay", "4s")
	v.SetDefault("target.screenshots", true)

	// -- Discovery --
	v.SetDefault("discovery.affirmative_keywords", []string{"go", "ok", "submit", "confirm", "continue", "log in", "login", "sign in"})
	v.SetDefault("discovery.excluded_keywords", []string{
		"google", "facebook", "apple", "twitter", "discord", "sign in with", "continue with", "log in with",
	})
	v.SetDefault("discovery.login_keywords", []string{"login", "log in", "sign in", "signin", "sign-in"})
	v.SetDefault("discovery.per_selector_timeout", "2s")

	// -- Reveal --
	v.SetDefault("reveal.max_candidates", 8)
	v.SetDefault("reveal.hover_rate", 4.0)
	v.SetDefault("reveal.hover_settle", "600ms")
	v.SetDefault("reveal.click_settle", "1200ms")

	// -- Policy --
	v.SetDefault("policy.invalid_phrases", []string{
		"invalid unique id", "invalid id", "invalid user", "user not found",
		"player not found", "does not exist", "please enter a valid", "incorrect id",
	})
	v.SetDefault("policy.success_phrases", []string{"logout", "log out", "sign out", "welcome"})
	v.SetDefault("policy.success_url_keywords", []string{"profile", "account", "dashboard", "success"})
	v.SetDefault("policy.error_classes", []string{"error", "invalid", "is-invalid", "has-error"})

	// -- Handoff --
	v.SetDefault("handoff.enabled", true)
	v.SetDefault("handoff.candidates", []string{"./claim/claim.js", "./scripts/claim.js", "./bin/claim"})
	v.SetDefault("handoff.interpreter", "node")
	v.SetDefault("handoff.timeout", "5m")
	v.SetDefault("handoff.exit_grace", "3s")
	v.SetDefault("handoff.watchdog", true)
	v.SetDefault("handoff.relay_logs", true)
	v.SetDefault("handoff.log_dir", "")

	// -- Artifacts --
	v.SetDefault("artifacts.dir", filepath.Join(xdg.StateHome, "claimgate"))
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewStoreConfigFromViper is NewConfigFromViper for commands that only touch
// the database. Target, browser and handoff settings are loaded but not checked.
func NewStoreConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if cfg.Handoff.LogDir == "" {
		cfg.Handoff.LogDir = cfg.Artifacts.ClaimLogDir()
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every path-valued setting.
func (c *Config) expandPaths() error {
	paths := []*string{&c.Database.SQLitePath, &c.Artifacts.Dir, &c.Logger.LogFile, &c.Browser.ExecPath, &c.Handoff.LogDir}
	for i := range c.Handoff.Candidates {
		paths = append(paths, &c.Handoff.Candidates[i])
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.Target.URL == "" {
		return fmt.Errorf("target.url is a required configuration field")
	}
	if c.Target.NavigationTimeout <= 0 || c.Target.StepTimeout <= 0 {
		return fmt.Errorf("target.navigation_timeout and target.step_timeout must be positive durations")
	}
	if c.Reveal.MaxCandidates < 0 {
		return fmt.Errorf("reveal.max_candidates must not be negative")
	}
	if err := c.Handoff.Validate(); err != nil {
		return fmt.Errorf("handoff configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the driver and its connection setting. Driver names are
// matched case-insensitively.
func (d *DatabaseConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(d.Driver)) {
	case DriverPostgres:
		if d.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver (set %s_DATABASE_URL)", EnvPrefix)
		}
	case DriverSQLite:
		if d.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, d.Driver)
	}
	return nil
}

// Validate checks the handoff settings.
func (h *HandoffConfig) Validate() error {
	if !h.Enabled {
		return nil
	}
	if len(h.Candidates) == 0 {
		return fmt.Errorf("at least one entry point candidate is required")
	}
	if h.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if h.ExitGrace < 0 {
		return fmt.Errorf("exit_grace must not be negative")
	}
	return nil
}
