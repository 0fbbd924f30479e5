// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Engine() EngineConfig
	Widget() WidgetConfig
	Runner() RunnerConfig
	Report() ReportConfig
	Store() StoreConfig

	// Browser Setters
	SetBrowserDriver(string)
	SetBrowserHeadless(bool)

	// Widget Setters
	SetWidgetBaseURL(string)

	// Runner Setters
	SetRunnerConcurrency(int)
	SetRunnerRetries(int)
	SetRunnerScenarios([]string)

	// Report Setters
	SetReportFormats([]string)
	SetReportOutputDir(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	EngineCfg  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	WidgetCfg  WidgetConfig  `mapstructure:"widget" yaml:"widget"`
	RunnerCfg  RunnerConfig  `mapstructure:"runner" yaml:"runner"`
	ReportCfg  ReportConfig  `mapstructure:"report" yaml:"report"`
	StoreCfg   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Engine() EngineConfig   { return c.EngineCfg }
func (c *Config) Widget() WidgetConfig   { return c.WidgetCfg }
func (c *Config) Runner() RunnerConfig   { return c.RunnerCfg }
func (c *Config) Report() ReportConfig   { return c.ReportCfg }
func (c *Config) Store() StoreConfig     { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

// Browser Setters
func (c *Config) SetBrowserDriver(d string) { c.BrowserCfg.Driver = d }
func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }

// Widget Setters
func (c *Config) SetWidgetBaseURL(u string) { c.WidgetCfg.BaseURL = strings.TrimRight(u, "/") }

// Runner Setters
func (c *Config) SetRunnerConcurrency(n int)    { c.RunnerCfg.Concurrency = n }
func (c *Config) SetRunnerRetries(n int)        { c.RunnerCfg.Retries = n }
func (c *Config) SetRunnerScenarios(s []string) { c.RunnerCfg.Scenarios = s }

// Report Setters
func (c *Config) SetReportFormats(f []string) { c.ReportCfg.Formats = f }
func (c *Config) SetReportOutputDir(d string) { c.ReportCfg.OutputDir = d }

// LoggerConfig defines the structure for logger settings.
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

// Browser driver backends.
const (
	DriverCDP        = "cdp"
	DriverPlaywright = "playwright"
)

// BrowserConfig holds settings for the browser backend that renders the widget.
type BrowserConfig struct {
	// Driver selects the automation backend: "cdp" (chromedp) or "playwright".
	Driver            string         `mapstructure:"driver" yaml:"driver"`
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
	UserAgent         string         `mapstructure:"user_agent" yaml:"user_agent"`
	Locale            string         `mapstructure:"locale" yaml:"locale"`
	GrantClipboard    bool           `mapstructure:"grant_clipboard" yaml:"grant_clipboard"`
}

// ViewportConfig is the window size used for every page.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// EngineConfig bounds every suspension point of the interaction engine.
type EngineConfig struct {
	// AttemptTimeout bounds a single strategy attempt inside a fallback chain.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	// PollInterval is the fixed interval between state observations.
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	VerifyTimeout    time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	OverlayTimeout   time.Duration `mapstructure:"overlay_timeout" yaml:"overlay_timeout"`
	ArtifactTimeout  time.Duration `mapstructure:"artifact_timeout" yaml:"artifact_timeout"`
	DialogWait       time.Duration `mapstructure:"dialog_wait" yaml:"dialog_wait"`
	ClipboardTimeout time.Duration `mapstructure:"clipboard_timeout" yaml:"clipboard_timeout"`
}

// WidgetConfig describes the widget builder page: where it lives and the copy
// and selectors used to find its controls.
type WidgetConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Path    string `mapstructure:"path" yaml:"path"`
	// ReadyMarker must appear in the page URL for the page to count as loaded.
	ReadyMarker    string          `mapstructure:"ready_marker" yaml:"ready_marker"`
	Labels         LabelsConfig    `mapstructure:"labels" yaml:"labels"`
	Selectors      SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
	ArtifactTokens []string        `mapstructure:"artifact_tokens" yaml:"artifact_tokens"`
}

// URL joins the base URL and the widget path.
func (w WidgetConfig) URL() string {
	return strings.TrimRight(w.BaseURL, "/") + "/" + strings.TrimLeft(w.Path, "/")
}

// LabelsConfig is the visible page copy the engine anchors on.
type LabelsConfig struct {
	Steps         []string `mapstructure:"steps" yaml:"steps"`
	ThemeSelect   string   `mapstructure:"theme_select" yaml:"theme_select"`
	CountrySelect string   `mapstructure:"country_select" yaml:"country_select"`
	Width         string   `mapstructure:"width" yaml:"width"`
	Height        string   `mapstructure:"height" yaml:"height"`
	FullWidth     string   `mapstructure:"full_width" yaml:"full_width"`
	FullHeight    string   `mapstructure:"full_height" yaml:"full_height"`
	LightTheme    string   `mapstructure:"light_theme" yaml:"light_theme"`
	DarkTheme     string   `mapstructure:"dark_theme" yaml:"dark_theme"`
	SelectAll     string   `mapstructure:"select_all" yaml:"select_all"`
	SelectAllAlt  string   `mapstructure:"select_all_alt" yaml:"select_all_alt"`
	Clear         string   `mapstructure:"clear" yaml:"clear"`
	AllCountries  string   `mapstructure:"all_countries" yaml:"all_countries"`
	Generate      string   `mapstructure:"generate" yaml:"generate"`
	Copy          string   `mapstructure:"copy" yaml:"copy"`
	PageContent   string   `mapstructure:"page_content" yaml:"page_content"`
}

// SelectorsConfig holds the CSS selectors for structural parts of the widget.
type SelectorsConfig struct {
	OverlaySurface       string `mapstructure:"overlay_surface" yaml:"overlay_surface"`
	OverlayPanel         string `mapstructure:"overlay_panel" yaml:"overlay_panel"`
	ThemeCheckboxAttrs   string `mapstructure:"theme_checkbox_attrs" yaml:"theme_checkbox_attrs"`
	CountryCheckboxAttrs string `mapstructure:"country_checkbox_attrs" yaml:"country_checkbox_attrs"`
	Artifact             string `mapstructure:"artifact" yaml:"artifact"`
	ThemeSelect          string `mapstructure:"theme_select" yaml:"theme_select"`
	CountrySelect        string `mapstructure:"country_select" yaml:"country_select"`
	SelectedMarker       string `mapstructure:"selected_marker" yaml:"selected_marker"`
	Heading              string `mapstructure:"heading" yaml:"heading"`
	Preview              string `mapstructure:"preview" yaml:"preview"`
}

// RunnerConfig tunes the scenario suite runner.
type RunnerConfig struct {
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	ScenarioTimeout time.Duration `mapstructure:"scenario_timeout" yaml:"scenario_timeout"`
	Retries         int           `mapstructure:"retries" yaml:"retries"`
	// NavigationRate caps page loads against the third-party host, per second.
	NavigationRate  float64  `mapstructure:"navigation_rate" yaml:"navigation_rate"`
	NavigationBurst int      `mapstructure:"navigation_burst" yaml:"navigation_burst"`
	Scenarios       []string `mapstructure:"scenarios" yaml:"scenarios"`
}

// ReportConfig controls where and how run reports are written.
type ReportConfig struct {
	Formats   []string `mapstructure:"formats" yaml:"formats"`
	OutputDir string   `mapstructure:"output_dir" yaml:"output_dir"`
}

// StoreConfig configures optional PostgreSQL persistence of run history.
type StoreConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	URL           string        `mapstructure:"url" yaml:"url"`
	SchemaTimeout time.Duration `mapstructure:"schema_timeout" yaml:"schema_timeout"`
}

// NewDefaultConfig returns a configuration populated entirely from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults are static, so an unmarshal failure here is a programming error.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults failed to unmarshal: %v", err))
	}
	return &cfg
}

// SetDefaults registers every configuration key with its default value.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "widgetpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
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

	// -- Browser --
	v.SetDefault("browser.driver", DriverCDP)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.locale", "ru-RU")
	v.SetDefault("browser.grant_clipboard", true)

	// -- Engine --
	v.SetDefault("engine.attempt_timeout", "1500ms")
	v.SetDefault("engine.poll_interval", "100ms")
	v.SetDefault("engine.verify_timeout", "5s")
	v.SetDefault("engine.overlay_timeout", "1s")
	v.SetDefault("engine.artifact_timeout", "5s")
	v.SetDefault("engine.dialog_wait", "2s")
	v.SetDefault("engine.clipboard_timeout", "2s")

	// -- Widget --
	v.SetDefault("widget.base_url", "https://dev.3snet.info")
	v.SetDefault("widget.path", "/eventswidget/")
	v.SetDefault("widget.ready_marker", "eventswidget")
	v.SetDefault("widget.labels.steps", []string{"Шаг 1", "Шаг 2", "Шаг 3", "Шаг 4"})
	v.SetDefault("widget.labels.theme_select", "Выберите тематику")
	v.SetDefault("widget.labels.country_select", "Выберите страны")
	v.SetDefault("widget.labels.width", "Ширина, px:")
	v.SetDefault("widget.labels.height", "Высота, px:")
	v.SetDefault("widget.labels.full_width", "на всю ширину контейнера")
	v.SetDefault("widget.labels.full_height", "на всю высоту блока")
	v.SetDefault("widget.labels.light_theme", "Светлая тема:")
	v.SetDefault("widget.labels.dark_theme", "Темная тема:")
	v.SetDefault("widget.labels.select_all", "Выбрать все")
	v.SetDefault("widget.labels.select_all_alt", "Все")
	v.SetDefault("widget.labels.clear", "Очистить")
	v.SetDefault("widget.labels.all_countries", "Все страны")
	v.SetDefault("widget.labels.generate", "Сгенерировать превью")
	v.SetDefault("widget.labels.copy", "Скопировать код")
	v.SetDefault("widget.labels.page_content", `(?i)Скопируйте|код|превью`)
	v.SetDefault("widget.selectors.overlay_surface", ".checkselect-over")
	v.SetDefault("widget.selectors.overlay_panel", ".checkselect-popup")
	v.SetDefault("widget.selectors.theme_checkbox_attrs", `[name="type"]`)
	v.SetDefault("widget.selectors.country_checkbox_attrs", `[name="country"]`)
	v.SetDefault("widget.selectors.artifact", `textarea[disabled], input[disabled], textarea[readonly], [role="textbox"][aria-disabled="true"]`)
	v.SetDefault("widget.selectors.theme_select", `select[name="type"]`)
	v.SetDefault("widget.selectors.country_select", `select[name="country"]`)
	v.SetDefault("widget.selectors.selected_marker", `.selected, .active, [aria-selected="true"]`)
	v.SetDefault("widget.selectors.heading", "h1")
	v.SetDefault("widget.selectors.preview", "iframe, .preview, #preview")
	v.SetDefault("widget.artifact_tokens", []string{"iframe", "script"})

	// -- Runner --
	v.SetDefault("runner.concurrency", 2)
	v.SetDefault("runner.scenario_timeout", "30s")
	v.SetDefault("runner.retries", 0)
	v.SetDefault("runner.navigation_rate", 1.0)
	v.SetDefault("runner.navigation_burst", 2)
	v.SetDefault("runner.scenarios", []string{})

	// -- Report --
	v.SetDefault("report.formats", []string{"json"})
	v.SetDefault("report.output_dir", "./reports")

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.url", "")
	v.SetDefault("store.schema_timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The database URL usually carries credentials, keep it out of config files.
	_ = v.BindEnv("store.url", "WIDGETPILOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.WidgetCfg.BaseURL = strings.TrimRight(cfg.WidgetCfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Driver {
	case DriverCDP, DriverPlaywright:
	default:
		return fmt.Errorf("browser.driver must be one of %q or %q, got %q", DriverCDP, DriverPlaywright, c.BrowserCfg.Driver)
	}
	if c.BrowserCfg.Viewport.Width <= 0 || c.BrowserCfg.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport width and height must be positive")
	}
	if err := c.EngineCfg.Validate(); err != nil {
		return fmt.Errorf("engine configuration invalid: %w", err)
	}
	if err := c.WidgetCfg.Validate(); err != nil {
		return fmt.Errorf("widget configuration invalid: %w", err)
	}
	if c.RunnerCfg.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if c.RunnerCfg.Retries < 0 {
		return fmt.Errorf("runner.retries cannot be negative")
	}
	if c.RunnerCfg.NavigationRate <= 0 {
		return fmt.Errorf("runner.navigation_rate must be positive")
	}
	if c.StoreCfg.Enabled && c.StoreCfg.URL == "" {
		return fmt.Errorf("store.url is required when store.enabled is true")
	}
	return nil
}

// Validate checks that every engine bound is a positive duration and that
// polling is finer than the shortest bound it serves.
func (e *EngineConfig) Validate() error {
	bounds := map[string]time.Duration{
		"attempt_timeout":   e.AttemptTimeout,
		"poll_interval":     e.PollInterval,
		"verify_timeout":    e.VerifyTimeout,
		"overlay_timeout":   e.OverlayTimeout,
		"artifact_timeout":  e.ArtifactTimeout,
		"dialog_wait":       e.DialogWait,
		"clipboard_timeout": e.ClipboardTimeout,
	}
	for name, d := range bounds {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if e.PollInterval >= e.VerifyTimeout {
		return fmt.Errorf("poll_interval (%s) must be shorter than verify_timeout (%s)", e.PollInterval, e.VerifyTimeout)
	}
	return nil
}

// Validate checks the widget location and the copy the engine depends on.
func (w *WidgetConfig) Validate() error {
	u, err := url.Parse(w.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute URL", w.BaseURL)
	}
	if len(w.ArtifactTokens) == 0 {
		return fmt.Errorf("artifact_tokens must list at least one token")
	}
	if w.Selectors.OverlaySurface == "" || w.Selectors.Artifact == "" {
		return fmt.Errorf("selectors.overlay_surface and selectors.artifact are required")
	}
	return nil
}
