// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/xkilldash9x/prerender/pkg/hydrate"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Hydrate() HydrateConfig
	Serialize() SerializeConfig
	Render() RenderConfig

	// Hydrate Setters
	SetHydrateTimeout(d time.Duration)
	SetHydrateMaxCount(n int)
	SetRuntimeLogging(b bool)

	// Serialize Setters
	SetPrettyHTML(b bool)
	SetRemoveScripts(b bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	HydrateCfg   HydrateConfig   `mapstructure:"hydrate" yaml:"hydrate"`
	SerializeCfg SerializeConfig `mapstructure:"serialize" yaml:"serialize"`
	// RenderCfg gets its marching orders from CLI flags as well as the config file.
	RenderCfg RenderConfig `mapstructure:"render" yaml:"render"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Hydrate() HydrateConfig     { return c.HydrateCfg }
func (c *Config) Serialize() SerializeConfig { return c.SerializeCfg }
func (c *Config) Render() RenderConfig       { return c.RenderCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetHydrateTimeout(d time.Duration) { c.HydrateCfg.Timeout = d }
func (c *Config) SetHydrateMaxCount(n int)          { c.HydrateCfg.MaxHydrateCount = n }
func (c *Config) SetRuntimeLogging(b bool)          { c.HydrateCfg.RuntimeLogging = b }
func (c *Config) SetPrettyHTML(b bool)              { c.SerializeCfg.PrettyHTML = b }
func (c *Config) SetRemoveScripts(b bool)           { c.HydrateCfg.RemoveScripts = b }

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

// HydrateConfig mirrors the hydrate options that make sense to keep in a config file.
// Per-request values (cookie, referrer, url) are usually supplied on the command line.
type HydrateConfig struct {
	CanonicalURL             string        `mapstructure:"canonical_url" yaml:"canonical_url"`
	ConstrainTimeouts        bool          `mapstructure:"constrain_timeouts" yaml:"constrain_timeouts"`
	ClientHydrateAnnotations bool          `mapstructure:"client_hydrate_annotations" yaml:"client_hydrate_annotations"`
	Cookie                   string        `mapstructure:"cookie" yaml:"cookie"`
	Direction                string        `mapstructure:"direction" yaml:"direction"`
	ExcludeComponents        []string      `mapstructure:"exclude_components" yaml:"exclude_components"`
	Language                 string        `mapstructure:"language" yaml:"language"`
	MaxHydrateCount          int           `mapstructure:"max_hydrate_count" yaml:"max_hydrate_count"`
	Referrer                 string        `mapstructure:"referrer" yaml:"referrer"`
	RemoveScripts            bool          `mapstructure:"remove_scripts" yaml:"remove_scripts"`
	RemoveUnusedStyles       bool          `mapstructure:"remove_unused_styles" yaml:"remove_unused_styles"`
	ResourcesURL             string        `mapstructure:"resources_url" yaml:"resources_url"`
	RuntimeLogging           bool          `mapstructure:"runtime_logging" yaml:"runtime_logging"`
	StaticComponents         []string      `mapstructure:"static_components" yaml:"static_components"`
	Timeout                  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Title                    string        `mapstructure:"title" yaml:"title"`
	URL                      string        `mapstructure:"url" yaml:"url"`
	UserAgent                string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// SerializeConfig holds the output formatting policies.
type SerializeConfig struct {
	ApproximateLineWidth         int  `mapstructure:"approximate_line_width" yaml:"approximate_line_width"`
	PrettyHTML                   bool `mapstructure:"pretty_html" yaml:"pretty_html"`
	RemoveAttributeQuotes        bool `mapstructure:"remove_attribute_quotes" yaml:"remove_attribute_quotes"`
	RemoveBooleanAttributeQuotes bool `mapstructure:"remove_boolean_attribute_quotes" yaml:"remove_boolean_attribute_quotes"`
	RemoveEmptyAttributes        bool `mapstructure:"remove_empty_attributes" yaml:"remove_empty_attributes"`
	RemoveHTMLComments           bool `mapstructure:"remove_html_comments" yaml:"remove_html_comments"`
}

// RenderConfig holds settings for a batch of CLI renders.
type RenderConfig struct {
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
	JSON        bool   `mapstructure:"json" yaml:"json"`
}

// Options converts the hydrate section into hydrate options. An empty
// canonical url leaves the document's canonical link alone.
func (c HydrateConfig) Options() hydrate.HydrateOptions {
	o := hydrate.HydrateOptions{
		ConstrainTimeouts:        c.ConstrainTimeouts,
		ClientHydrateAnnotations: c.ClientHydrateAnnotations,
		Cookie:                   c.Cookie,
		Direction:                c.Direction,
		ExcludeComponents:        append([]string(nil), c.ExcludeComponents...),
		Language:                 c.Language,
		MaxHydrateCount:          c.MaxHydrateCount,
		Referrer:                 c.Referrer,
		RemoveScripts:            c.RemoveScripts,
		RemoveUnusedStyles:       c.RemoveUnusedStyles,
		ResourcesURL:             c.ResourcesURL,
		RuntimeLogging:           c.RuntimeLogging,
		StaticComponents:         append([]string(nil), c.StaticComponents...),
		Timeout:                  c.Timeout,
		Title:                    c.Title,
		URL:                      c.URL,
		UserAgent:                c.UserAgent,
	}
	if c.CanonicalURL != "" {
		canonical := c.CanonicalURL
		o.CanonicalURL = &canonical
	}
	return o
}

// SerializeOptions combines the hydrate and serialize sections.
func (c *Config) SerializeOptions() hydrate.SerializeOptions {
	return hydrate.SerializeOptions{
		HydrateOptions:               c.HydrateCfg.Options(),
		ApproximateLineWidth:         c.SerializeCfg.ApproximateLineWidth,
		PrettyHTML:                   c.SerializeCfg.PrettyHTML,
		RemoveAttributeQuotes:        c.SerializeCfg.RemoveAttributeQuotes,
		RemoveBooleanAttributeQuotes: c.SerializeCfg.RemoveBooleanAttributeQuotes,
		RemoveEmptyAttributes:        c.SerializeCfg.RemoveEmptyAttributes,
		RemoveHTMLComments:           c.SerializeCfg.RemoveHTMLComments,
	}
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
	v.SetDefault("logger.service_name", "prerender")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Hydrate --
	v.SetDefault("hydrate.constrain_timeouts", true)
	v.SetDefault("hydrate.client_hydrate_annotations", true)
	v.SetDefault("hydrate.max_hydrate_count", 300)
	v.SetDefault("hydrate.remove_scripts", false)
	v.SetDefault("hydrate.remove_unused_styles", true)
	v.SetDefault("hydrate.runtime_logging", false)
	v.SetDefault("hydrate.timeout", "15s")

	// -- Serialize --
	v.SetDefault("serialize.approximate_line_width", 100)
	v.SetDefault("serialize.pretty_html", false)
	v.SetDefault("serialize.remove_attribute_quotes", true)
	v.SetDefault("serialize.remove_boolean_attribute_quotes", true)
	v.SetDefault("serialize.remove_empty_attributes", true)
	v.SetDefault("serialize.remove_html_comments", true)

	// -- Render --
	v.SetDefault("render.concurrency", 4)
	v.SetDefault("render.json", false)
}

// Validate checks the configuration for values that would make rendering impossible.
func (c *Config) Validate() error {
	if c.HydrateCfg.MaxHydrateCount < 0 {
		return fmt.Errorf("hydrate.max_hydrate_count must not be negative")
	}
	if c.HydrateCfg.Timeout < 0 {
		return fmt.Errorf("hydrate.timeout must not be negative")
	}
	if c.SerializeCfg.ApproximateLineWidth < 0 {
		return fmt.Errorf("serialize.approximate_line_width must not be negative")
	}
	if c.RenderCfg.Concurrency <= 0 {
		return fmt.Errorf("render.concurrency must be a positive integer")
	}
	return nil
}
