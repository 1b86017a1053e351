// Package scheduler drives the custom elements of a window through their
// render lifecycle under a component limit and a single deadline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/prerender/internal/annotation"
	"github.com/xkilldash9x/prerender/pkg/components"
	"github.com/xkilldash9x/prerender/pkg/diagnostics"
	"github.com/xkilldash9x/prerender/pkg/sandbox"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Rendering modes reported in the component manifest.
const (
	ModeHydrated = "hydrated"
	ModeStatic   = "static"
)

const (
	DefaultMaxHydrateCount = 300
	DefaultTimeout         = 15 * time.Second

	// haltGrace bounds how long a timed out scheduler waits for the render
	// that is executing at the deadline.
	haltGrace = 250 * time.Millisecond
)

// Config is the part of the hydrate options the scheduler acts on.
type Config struct {
	ExcludeComponents        []string
	StaticComponents         []string
	MaxHydrateCount          int
	Timeout                  time.Duration
	ClientHydrateAnnotations bool
}

// Component is one manifest entry: a distinct tag and how it was rendered.
type Component struct {
	Tag   string `json:"tag"`
	Mode  string `json:"mode"`
	Count int    `json:"count"`
	Depth int    `json:"depth"`
}

// Result is what a hydration pass produced.
type Result struct {
	// Components lists every tag that rendered at least once, in the order
	// the tag was first queued.
	Components    []Component
	HydratedCount int
}

// Scheduler is reusable and safe for concurrent use; each Hydrate call keeps
// its state on its own stack.
type Scheduler struct {
	registry *components.Registry
	cfg      Config
	logger   *zap.Logger
	exclude  map[string]bool
	static   map[string]bool
}

// New creates a Scheduler. Zero limits fall back to the defaults.
func New(registry *components.Registry, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxHydrateCount <= 0 {
		cfg.MaxHydrateCount = DefaultMaxHydrateCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if registry == nil {
		registry = components.NewRegistry()
	}
	return &Scheduler{
		registry: registry,
		cfg:      cfg,
		logger:   logger.Named("scheduler"),
		exclude:  tagSet(cfg.ExcludeComponents),
		static:   tagSet(cfg.StaticComponents),
	}
}

// task is one queued render.
type task struct {
	node  *html.Node
	tag   string
	depth int
	seq   int
}

// candidate is a custom element found by a discovery pass.
type candidate struct {
	node  *html.Node
	tag   string
	depth int
}

// event reports back to the scheduler goroutine. Discovery events have a nil task.
type event struct {
	task     *task
	err      error
	detached bool
	found    []candidate
}

type manifestEntry struct {
	Component
	order int
}

// Hydrate renders every eligible custom element of win and returns once the
// queue drains, the deadline passes or ctx ends. All tree access happens on
// the window's loop. After a timeout the loop is halted.
func (s *Scheduler) Hydrate(ctx context.Context, win *sandbox.Window, diags *diagnostics.Collector) Result {
	if diags == nil {
		diags = diagnostics.NewCollector()
	}
	log := s.logger.With(zap.String("sandbox_id", win.ID()))

	// The deadline is attached to the context handed to components so a
	// cooperative render can stop early.
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	r := &run{
		Scheduler: s,
		ctx:       runCtx,
		win:       win,
		loop:      win.Loop(),
		events:    make(chan event),
		seen:      make(map[*html.Node]bool),
		ids:       annotation.NewGenerator(),
		log:       log,
	}

	start := time.Now()
	manifest := make(map[string]*manifestEntry)
	pending := make(map[int]task)
	var (
		outstanding int
		scheduled   int
		completed   int
		seq         int
		limitHit    bool
	)

	dispatch := func(t task) {
		if r.loop.Post(func() { r.render(t) }) {
			pending[t.seq] = t
			outstanding++
			return
		}
		log.Warn("Loop refused render, component abandoned.", zap.String("tag", t.tag))
	}

	enqueue := func(c candidate) {
		if scheduled >= s.cfg.MaxHydrateCount {
			if !limitHit {
				limitHit = true
				diags.Warnf(diagnostics.TypeHydrate, "Hydrate Warning",
					"Maximum hydrate count of %d reached, remaining components were not hydrated", s.cfg.MaxHydrateCount)
				log.Warn("Hydrate limit reached.", zap.Int("max", s.cfg.MaxHydrateCount))
			}
			return
		}
		scheduled++
		seq++
		t := task{node: c.node, tag: c.tag, depth: c.depth, seq: seq}

		if _, ok := manifest[t.tag]; !ok {
			manifest[t.tag] = &manifestEntry{Component: Component{Tag: t.tag, Mode: s.mode(t.tag)}, order: len(manifest)}
		}
		dispatch(t)
	}

	if r.loop.Post(func() { r.discover(nil, win.Document()) }) {
		outstanding++
	} else {
		diags.Errorf(diagnostics.TypeHydrate, "Hydrate Error", "window event loop is not running")
	}

wait:
	for outstanding > 0 {
		select {
		case ev := <-r.events:
			outstanding--
			if ev.task != nil {
				delete(pending, ev.task.seq)
				switch {
				case ev.detached:
					log.Debug("Host removed before it rendered.", zap.String("tag", ev.task.tag))
				case ev.err != nil:
					diags.Add(diagnostics.Diagnostic{
						Level:       diagnostics.LevelError,
						Type:        diagnostics.TypeHydrate,
						Header:      "Hydrate Error: <" + ev.task.tag + ">",
						MessageText: fmt.Sprintf("<%s> failed to render: %v", ev.task.tag, ev.err),
					})
					log.Debug("Component failed.", zap.String("tag", ev.task.tag), zap.Error(ev.err))
				default:
					completed++
					entry := manifest[ev.task.tag]
					if entry.Count == 0 || ev.task.depth < entry.Depth {
						entry.Depth = ev.task.depth
					}
					entry.Count++
				}
			}
			for _, c := range ev.found {
				enqueue(c)
			}

		case <-runCtx.Done():
			s.abort(ctx, runCtx, r, pending, time.Since(start), diags, log)
			break wait
		}
	}

	log.Debug("Hydrate finished.",
		zap.Int("completed", completed),
		zap.Int("abandoned", len(pending)),
		zap.Duration("elapsed", time.Since(start)))

	return Result{Components: sortedManifest(manifest), HydratedCount: completed}
}

// abort records why hydration stopped early and halts the loop so no
// abandoned render touches the tree afterwards.
func (s *Scheduler) abort(parent, runCtx context.Context, r *run, pending map[int]task, elapsed time.Duration, diags *diagnostics.Collector, log *zap.Logger) {
	tags := pendingTags(pending)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		msg := fmt.Sprintf("Hydrate exceeded timeout, %dms", s.cfg.Timeout.Milliseconds())
		if len(tags) > 0 {
			msg += ": " + strings.Join(tags, ", ")
		}
		diags.Add(diagnostics.Diagnostic{
			Level:       diagnostics.LevelError,
			Type:        diagnostics.TypeHydrate,
			Header:      "Hydrate Error",
			MessageText: msg,
		})
		log.Warn("Hydrate timed out.", zap.Duration("elapsed", elapsed), zap.Strings("pending", tags))
	} else {
		diags.Errorf(diagnostics.TypeHydrate, "Hydrate Error", "Hydrate cancelled: %v", parent.Err())
		log.Info("Hydrate cancelled.", zap.Error(parent.Err()))
	}

	haltCtx, cancel := context.WithTimeout(context.Background(), haltGrace)
	defer cancel()
	if err := r.loop.Halt(haltCtx); err != nil {
		log.Warn("Render still running after abort.", zap.Error(err))
	}
}

func (s *Scheduler) mode(tag string) string {
	if s.static[tag] {
		return ModeStatic
	}
	return ModeHydrated
}

// run is the per-call state shared with the loop. seen and ids are only
// touched by loop jobs.
type run struct {
	*Scheduler
	ctx    context.Context
	win    *sandbox.Window
	loop   *sandbox.Loop
	events chan event
	seen   map[*html.Node]bool
	ids    *annotation.Generator
	log    *zap.Logger
}

// send delivers ev unless the scheduler has already returned.
func (r *run) send(ev event) {
	select {
	case r.events <- ev:
	case <-r.ctx.Done():
	}
}

// discover walks the children of root (root itself when t is nil) and
// reports every registered custom element not seen before.
func (r *run) discover(t *task, root *html.Node) {
	var found []candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if skipSubtree(c) {
				continue
			}
			tag := strings.ToLower(c.Data)
			if c.DataAtom == 0 && strings.Contains(tag, "-") {
				if r.exclude[tag] {
					continue
				}
				if _, ok := r.registry.Lookup(tag); ok && !r.seen[c] {
					r.seen[c] = true
					found = append(found, candidate{node: c, tag: tag, depth: sandbox.Depth(c)})
				}
			}
			walk(c)
		}
	}
	walk(root)
	r.send(event{task: t, found: found})
}

// render runs one component inside a failure boundary. It is a loop job.
func (r *run) render(t task) {
	if r.ctx.Err() != nil {
		return
	}
	// A parent's render may have replaced this host already.
	if !attached(t.node) {
		r.send(event{task: &t, detached: true})
		return
	}

	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			// Always hop back onto the loop: async components may call done
			// from any goroutine.
			if !r.loop.Post(func() { r.complete(t, err) }) {
				r.send(event{task: &t, err: err})
			}
		})
	}

	comp, ok := r.registry.Lookup(t.tag)
	if !ok {
		finish(fmt.Errorf("no component defined for <%s>", t.tag))
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("Recovered panic in component.", zap.String("tag", t.tag), zap.Any("panic", p))
			finish(fmt.Errorf("panic: %v", p))
		}
	}()

	host := components.NewHost(t.node, r.win)
	if async, ok := comp.(components.AsyncComponent); ok {
		async.RenderAsync(r.ctx, host, finish)
		return
	}
	finish(comp.Render(r.ctx, host))
}

// complete annotates a rendered host and looks for the components its
// render produced. It is a loop job.
func (r *run) complete(t task, err error) {
	if err != nil || r.ctx.Err() != nil {
		r.send(event{task: &t, err: err})
		return
	}
	if r.cfg.ClientHydrateAnnotations && !r.static[t.tag] {
		annotation.Annotate(t.node, r.ids.Next(), r.isStatic)
	}
	r.discover(&t, t.node)
}

// isStatic reports elements that are static components. They never carry
// client annotations, not even as a child of a hydrated host.
func (r *run) isStatic(n *html.Node) bool {
	return n.DataAtom == 0 && r.static[strings.ToLower(n.Data)]
}

func attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.DocumentNode {
			return true
		}
	}
	return false
}

// skipSubtree reports elements whose content is never hydrated.
func skipSubtree(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Template, atom.Script, atom.Style, atom.Noscript:
		return true
	}
	return false
}

func tagSet(tags []string) map[string]bool {
	out := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out[t] = true
		}
	}
	return out
}

func pendingTags(pending map[int]task) []string {
	seqs := make([]int, 0, len(pending))
	for seq := range pending {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	var tags []string
	seen := make(map[string]bool)
	for _, seq := range seqs {
		tag := pending[seq].tag
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, "<"+tag+">")
		}
	}
	return tags
}

func sortedManifest(manifest map[string]*manifestEntry) []Component {
	entries := make([]*manifestEntry, 0, len(manifest))
	for _, e := range manifest {
		if e.Count > 0 {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
	out := make([]Component, len(entries))
	for i, e := range entries {
		out[i] = e.Component
	}
	return out
}
