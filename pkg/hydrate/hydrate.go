// Package hydrate is the entry point for server-side rendering of documents
// built from custom elements. A render builds a sandbox around the template,
// drives every registered component through its render lifecycle, scans the
// result for resources and serializes it back to html.
package hydrate

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/prerender/internal/resources"
	"github.com/xkilldash9x/prerender/internal/scheduler"
	"github.com/xkilldash9x/prerender/internal/serialize"
	"github.com/xkilldash9x/prerender/pkg/components"
	"github.com/xkilldash9x/prerender/pkg/diagnostics"
	"github.com/xkilldash9x/prerender/pkg/sandbox"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Hydrator renders documents against one component registry. It holds no
// per-render state, so concurrent renders are safe.
type Hydrator struct {
	registry *components.Registry
	logger   *zap.Logger
}

// New creates a Hydrator. A nil registry renders no components.
func New(registry *components.Registry, logger *zap.Logger) *Hydrator {
	if registry == nil {
		registry = components.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hydrator{registry: registry, logger: logger.Named("hydrate")}
}

// RenderToString hydrates markup and returns the serialized result. Only a
// template that cannot become a document produces an error; every other
// problem is reported through Results.Diagnostics. opts may be nil.
func (h *Hydrator) RenderToString(ctx context.Context, markup string, opts *SerializeOptions) (*Results, error) {
	o := serializeDefaults(opts)
	diags := h.collector(o.RuntimeLogging)

	win, err := sandbox.New(markup, "", o.sandboxOptions(diags), h.logger)
	if err != nil {
		return parseFailure(err)
	}
	return h.render(ctx, win, o, diags), nil
}

// RenderDocument is RenderToString for an existing tree. doc is hydrated in
// place.
func (h *Hydrator) RenderDocument(ctx context.Context, doc *html.Node, opts *SerializeOptions) (*Results, error) {
	o := serializeDefaults(opts)
	diags := h.collector(o.RuntimeLogging)

	win, err := sandbox.FromDocument(doc, "", o.sandboxOptions(diags), h.logger)
	if err != nil {
		return parseFailure(err)
	}
	return h.render(ctx, win, o, diags), nil
}

// HydrateDocument hydrates doc in place and hands back the live window
// instead of html. The caller owns the window and must Close it.
func (h *Hydrator) HydrateDocument(ctx context.Context, doc *html.Node, opts *HydrateOptions) (*Results, *sandbox.Window, error) {
	o := hydrateDefaults(opts)
	diags := h.collector(o.RuntimeLogging)

	win, err := sandbox.FromDocument(doc, "", o.sandboxOptions(diags), h.logger)
	if err != nil {
		res, err := parseFailure(err)
		return res, nil, err
	}

	return h.live(ctx, win, o, diags), win, nil
}

// HydrateString parses markup and then behaves like HydrateDocument.
func (h *Hydrator) HydrateString(ctx context.Context, markup string, opts *HydrateOptions) (*Results, *sandbox.Window, error) {
	o := hydrateDefaults(opts)
	diags := h.collector(o.RuntimeLogging)

	win, err := sandbox.New(markup, "", o.sandboxOptions(diags), h.logger)
	if err != nil {
		res, err := parseFailure(err)
		return res, nil, err
	}

	return h.live(ctx, win, o, diags), win, nil
}

// SerializeDocumentToString writes doc as html without hydrating it.
func (h *Hydrator) SerializeDocumentToString(doc *html.Node, opts SerializeOptions) string {
	o := opts.normalized()
	return serialize.New(o.serializeOptions(), nil, h.logger).Document(doc)
}

func (h *Hydrator) live(ctx context.Context, win *sandbox.Window, o HydrateOptions, diags *diagnostics.Collector) *Results {
	res := &Results{}
	h.hydrate(ctx, win, o, diags, res)
	if !onLoop(win, func() { res.applyManifest(resources.Scan(win.Document(), win.Location())) }) {
		busyLoop(diags, "resource scan")
	}
	res.finish(diags)
	return res
}

func (h *Hydrator) render(ctx context.Context, win *sandbox.Window, o SerializeOptions, diags *diagnostics.Collector) *Results {
	defer win.Close()
	start := time.Now()

	res := &Results{}
	h.hydrate(ctx, win, o.HydrateOptions, diags, res)

	ok := onLoop(win, func() {
		res.applyManifest(resources.Scan(win.Document(), win.Location()))
		res.HTML = serialize.New(o.serializeOptions(), diags, h.logger).Document(win.Document())
	})
	if !ok {
		busyLoop(diags, "serialization")
	}
	res.finish(diags)

	h.logger.Debug("Render complete.",
		zap.String("sandbox_id", win.ID()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("hydrated", res.HydratedCount),
		zap.Int("status", res.HTTPStatus))
	return res
}

// hydrate runs the hooks around the scheduler.
func (h *Hydrator) hydrate(ctx context.Context, win *sandbox.Window, o HydrateOptions, diags *diagnostics.Collector, res *Results) {
	h.runHook(ctx, win, "beforeHydrate", o.BeforeHydrate, diags)

	result := scheduler.New(h.registry, o.schedulerConfig(), h.logger).Hydrate(ctx, win, diags)
	res.applyHydration(result)

	h.runHook(ctx, win, "afterHydrate", o.AfterHydrate, diags)
}

func (h *Hydrator) runHook(ctx context.Context, win *sandbox.Window, name string, hook Hook, diags *diagnostics.Collector) {
	if hook == nil {
		return
	}
	ran := onLoop(win, func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Hook panicked.", zap.String("hook", name), zap.Any("panic", r))
				diags.Errorf(diagnostics.TypeHook, "Hook Error", "%s panicked: %v", name, r)
			}
		}()
		if err := hook(ctx, win.Document()); err != nil {
			h.logger.Warn("Hook failed.", zap.String("hook", name), zap.Error(err))
			diags.Errorf(diagnostics.TypeHook, "Hook Error", "%s failed: %v", name, err)
		}
	})
	if !ran {
		busyLoop(diags, name)
	}
}

func (h *Hydrator) collector(runtimeLogging bool) *diagnostics.Collector {
	diags := diagnostics.NewCollector()
	if runtimeLogging {
		diags.Mirror(h.logger)
	}
	return diags
}

// onLoop runs fn on the window's event loop and waits for it, so it never
// races a timer callback. A loop that was halted after a timeout no longer
// takes work; fn then runs on the caller's goroutine, but only once no render
// is executing on the loop. A halted loop never starts another job, so an
// idle halted loop leaves the tree to the caller for good. onLoop reports
// false, without running fn, while a render is still executing.
func onLoop(win *sandbox.Window, fn func()) bool {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn()
	}
	loop := win.Loop()
	inline := func() bool {
		if loop.Busy() {
			return false
		}
		job()
		return true
	}
	if !loop.Post(job) {
		return inline()
	}
	select {
	case <-done:
		return true
	case <-loop.Done():
		select {
		case <-done:
			return true
		default:
			// The loop exited without running job.
			return inline()
		}
	}
}

// busyLoop records that a stage was skipped because a render ignored the
// deadline and still owns the tree.
func busyLoop(diags *diagnostics.Collector, stage string) {
	diags.Errorf(diagnostics.TypeHydrate, "Hydrate Error", "%s skipped: a component is still rendering after the timeout", stage)
}

// parseFailure builds the results for a template that never became a
// document: the parse diagnostic alone, and no html.
func parseFailure(err error) (*Results, error) {
	diags := diagnostics.NewCollector()
	diags.Errorf(diagnostics.TypeBuild, "Parse Error", "%v", err)
	res := &Results{}
	res.finish(diags)
	return res, fmt.Errorf("hydrate: %w", err)
}

func hydrateDefaults(opts *HydrateOptions) HydrateOptions {
	if opts == nil {
		return DefaultHydrateOptions()
	}
	return opts.normalized()
}

func serializeDefaults(opts *SerializeOptions) SerializeOptions {
	if opts == nil {
		return DefaultSerializeOptions()
	}
	return opts.normalized()
}
