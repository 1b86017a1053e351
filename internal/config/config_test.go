// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/prerender/pkg/hydrate"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "prerender", cfg.Logger().ServiceName)
	assert.True(t, cfg.Hydrate().ConstrainTimeouts)
	assert.True(t, cfg.Hydrate().ClientHydrateAnnotations)
	assert.Equal(t, 300, cfg.Hydrate().MaxHydrateCount)
	assert.Equal(t, 15*time.Second, cfg.Hydrate().Timeout)
	assert.False(t, cfg.Hydrate().RemoveScripts)
	assert.True(t, cfg.Hydrate().RemoveUnusedStyles)
	assert.Equal(t, 100, cfg.Serialize().ApproximateLineWidth)
	assert.False(t, cfg.Serialize().PrettyHTML)
	assert.True(t, cfg.Serialize().RemoveAttributeQuotes)
	assert.True(t, cfg.Serialize().RemoveBooleanAttributeQuotes)
	assert.True(t, cfg.Serialize().RemoveEmptyAttributes)
	assert.True(t, cfg.Serialize().RemoveHTMLComments)
	assert.Equal(t, 4, cfg.Render().Concurrency)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	negativeCount := *cfg
	negativeCount.HydrateCfg.MaxHydrateCount = -1
	err := negativeCount.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hydrate.max_hydrate_count")

	negativeTimeout := *cfg
	negativeTimeout.HydrateCfg.Timeout = -time.Second
	assert.Error(t, negativeTimeout.Validate())

	badConcurrency := *cfg
	badConcurrency.RenderCfg.Concurrency = 0
	err = badConcurrency.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render.concurrency must be a positive integer")
}

// -- Setter Tests --

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetHydrateTimeout(2 * time.Second)
	iface.SetHydrateMaxCount(7)
	iface.SetRuntimeLogging(true)
	iface.SetPrettyHTML(true)
	iface.SetRemoveScripts(true)

	assert.Equal(t, 2*time.Second, cfg.Hydrate().Timeout)
	assert.Equal(t, 7, cfg.Hydrate().MaxHydrateCount)
	assert.True(t, cfg.Hydrate().RuntimeLogging)
	assert.True(t, cfg.Serialize().PrettyHTML)
	assert.True(t, cfg.Hydrate().RemoveScripts)
}

// -- YAML Loading Tests --

func TestLoadFromYAML(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
hydrate:
  timeout: 250ms
  static_components:
    - site-header
    - site-footer
  exclude_components:
    - legacy-widget
serialize:
  pretty_html: true
  approximate_line_width: 80
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Hydrate().Timeout)
	assert.Equal(t, []string{"site-header", "site-footer"}, cfg.Hydrate().StaticComponents)
	assert.Equal(t, []string{"legacy-widget"}, cfg.Hydrate().ExcludeComponents)
	assert.True(t, cfg.Serialize().PrettyHTML)
	assert.Equal(t, 80, cfg.Serialize().ApproximateLineWidth)
	// Untouched keys keep their defaults.
	assert.Equal(t, 300, cfg.Hydrate().MaxHydrateCount)
	assert.True(t, cfg.Serialize().RemoveHTMLComments)
}

// -- Conversion Tests --

func TestDefaultsMatchHydrateDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, hydrate.DefaultSerializeOptions(), cfg.SerializeOptions())
}

func TestHydrateOptionsConversion(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.HydrateCfg.CanonicalURL = "https://example.com/page"
	cfg.HydrateCfg.StaticComponents = []string{"site-header"}
	cfg.SerializeCfg.PrettyHTML = true

	opts := cfg.SerializeOptions()
	require.NotNil(t, opts.CanonicalURL)
	assert.Equal(t, "https://example.com/page", *opts.CanonicalURL)
	assert.Equal(t, []string{"site-header"}, opts.StaticComponents)
	assert.True(t, opts.PrettyHTML)

	// The options do not alias the config.
	cfg.HydrateCfg.StaticComponents[0] = "other"
	assert.Equal(t, []string{"site-header"}, opts.StaticComponents)
}
