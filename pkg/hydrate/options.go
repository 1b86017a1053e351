package hydrate

import (
	"context"
	"time"

	"github.com/xkilldash9x/prerender/internal/scheduler"
	"github.com/xkilldash9x/prerender/internal/serialize"
	"github.com/xkilldash9x/prerender/pkg/diagnostics"
	"github.com/xkilldash9x/prerender/pkg/sandbox"
	"golang.org/x/net/html"
)

// Hook is called with the live document right before or right after
// hydration. A returned error is recorded as a diagnostic; the render goes on.
type Hook func(ctx context.Context, doc *html.Node) error

// HydrateOptions controls the sandbox and the hydration pass.
// Start from DefaultHydrateOptions; zero numeric fields fall back to their
// defaults, boolean fields are taken as given.
type HydrateOptions struct {
	// CanonicalURL: nil leaves <link rel="canonical"> untouched, "" removes
	// it, any other value sets it.
	CanonicalURL *string
	// ConstrainTimeouts makes every timer fire after 1ms and intervals fire
	// once.
	ConstrainTimeouts        bool
	ClientHydrateAnnotations bool
	Cookie                   string
	Direction                string
	ExcludeComponents        []string
	Language                 string
	MaxHydrateCount          int
	Referrer                 string
	RemoveScripts            bool
	RemoveUnusedStyles       bool
	ResourcesURL             string
	// RuntimeLogging mirrors diagnostics and console output to the logger.
	RuntimeLogging   bool
	StaticComponents []string
	Timeout          time.Duration
	Title            string
	URL              string
	UserAgent        string

	BeforeHydrate Hook
	AfterHydrate  Hook

	// Timers overrides the policy ConstrainTimeouts selects. Nil keeps it.
	Timers sandbox.TimerPolicy
}

// DefaultHydrateOptions returns the documented defaults.
func DefaultHydrateOptions() HydrateOptions {
	return HydrateOptions{
		ConstrainTimeouts:        true,
		ClientHydrateAnnotations: true,
		MaxHydrateCount:          scheduler.DefaultMaxHydrateCount,
		RemoveUnusedStyles:       true,
		Timeout:                  scheduler.DefaultTimeout,
	}
}

// SerializeOptions adds the output policies to HydrateOptions.
type SerializeOptions struct {
	HydrateOptions

	ApproximateLineWidth         int
	PrettyHTML                   bool
	RemoveAttributeQuotes        bool
	RemoveBooleanAttributeQuotes bool
	RemoveEmptyAttributes        bool
	RemoveHTMLComments           bool
}

// DefaultSerializeOptions returns the documented defaults.
func DefaultSerializeOptions() SerializeOptions {
	return SerializeOptions{
		HydrateOptions:               DefaultHydrateOptions(),
		ApproximateLineWidth:         serialize.DefaultApproximateLineWidth,
		RemoveAttributeQuotes:        true,
		RemoveBooleanAttributeQuotes: true,
		RemoveEmptyAttributes:        true,
		RemoveHTMLComments:           true,
	}
}

// normalized returns a deep copy with zero numeric fields defaulted, so
// later changes by the caller cannot reach a running render.
func (o HydrateOptions) normalized() HydrateOptions {
	if o.MaxHydrateCount <= 0 {
		o.MaxHydrateCount = scheduler.DefaultMaxHydrateCount
	}
	if o.Timeout <= 0 {
		o.Timeout = scheduler.DefaultTimeout
	}
	if o.CanonicalURL != nil {
		v := *o.CanonicalURL
		o.CanonicalURL = &v
	}
	o.ExcludeComponents = append([]string(nil), o.ExcludeComponents...)
	o.StaticComponents = append([]string(nil), o.StaticComponents...)
	return o
}

func (o SerializeOptions) normalized() SerializeOptions {
	o.HydrateOptions = o.HydrateOptions.normalized()
	if o.ApproximateLineWidth <= 0 {
		o.ApproximateLineWidth = serialize.DefaultApproximateLineWidth
	}
	return o
}

func (o HydrateOptions) sandboxOptions(diags *diagnostics.Collector) sandbox.Options {
	var timers sandbox.TimerPolicy = sandbox.ConstrainedTimers{}
	if !o.ConstrainTimeouts {
		timers = sandbox.RealTimers{}
	}
	if o.Timers != nil {
		timers = o.Timers
	}
	return sandbox.Options{
		URL:            o.URL,
		Referrer:       o.Referrer,
		Cookie:         o.Cookie,
		UserAgent:      o.UserAgent,
		Language:       o.Language,
		Direction:      o.Direction,
		Title:          o.Title,
		ResourcesURL:   o.ResourcesURL,
		CanonicalURL:   o.CanonicalURL,
		Timers:         timers,
		RuntimeLogging: o.RuntimeLogging,
		Diagnostics:    diags,
	}
}

func (o HydrateOptions) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		ExcludeComponents:        o.ExcludeComponents,
		StaticComponents:         o.StaticComponents,
		MaxHydrateCount:          o.MaxHydrateCount,
		Timeout:                  o.Timeout,
		ClientHydrateAnnotations: o.ClientHydrateAnnotations,
	}
}

func (o SerializeOptions) serializeOptions() serialize.Options {
	return serialize.Options{
		PrettyHTML:                   o.PrettyHTML,
		ApproximateLineWidth:         o.ApproximateLineWidth,
		RemoveAttributeQuotes:        o.RemoveAttributeQuotes,
		RemoveBooleanAttributeQuotes: o.RemoveBooleanAttributeQuotes,
		RemoveEmptyAttributes:        o.RemoveEmptyAttributes,
		RemoveHTMLComments:           o.RemoveHTMLComments,
		RemoveScripts:                o.RemoveScripts,
		RemoveUnusedStyles:           o.RemoveUnusedStyles,
		ClientHydrateAnnotations:     o.ClientHydrateAnnotations,
	}
}
