// Package sandbox builds the isolated document and window a render runs in.
// A Window owns its tree, timers and event loop; nothing it does reaches the
// host process's globals.
package sandbox

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/xkilldash9x/prerender/pkg/diagnostics"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrParse is returned when the template cannot be turned into a document.
var ErrParse = errors.New("template html could not be parsed into a document")

const (
	// DefaultURL is location.href when no url is configured.
	DefaultURL = "http://prerender.local/"
	// DefaultUserAgent is navigator.userAgent when none is configured.
	DefaultUserAgent = "prerender"
)

// Options configures a Window. The zero value is usable.
type Options struct {
	URL          string
	Referrer     string
	Cookie       string
	UserAgent    string
	Language     string
	Direction    string
	Title        string
	ResourcesURL string
	// CanonicalURL: nil leaves <link rel="canonical"> alone, "" removes it,
	// anything else sets (or inserts) it, resolved against URL.
	CanonicalURL *string

	// Timers selects the timer policy. Nil means ConstrainedTimers.
	Timers TimerPolicy

	RuntimeLogging bool
	// Diagnostics receives console warnings and errors. May be nil.
	Diagnostics *diagnostics.Collector
}

// Navigator is the subset of window.navigator the sandbox exposes.
type Navigator struct {
	UserAgent string
	Language  string
}

// Window is a disposable document/window pair.
type Window struct {
	id     string
	logger *zap.Logger

	doc          *html.Node
	location     *url.URL
	navigator    Navigator
	referrer     string
	resourcesURL string

	cookieMu sync.Mutex
	cookies  []cookiePair

	loop    *Loop
	timers  *Timers
	console *Console

	closeOnce sync.Once
	closed    atomic.Bool
}

// New parses templateHTML and builds a window around it. identity namespaces
// the window's bookkeeping; an empty identity gets a random one.
func New(templateHTML, identity string, opts Options, logger *zap.Logger) (*Window, error) {
	doc, err := html.Parse(strings.NewReader(templateHTML))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return FromDocument(doc, identity, opts, logger)
}

// FromDocument builds a window around an existing tree. doc must be a
// document node, or a parentless <html> element which is then wrapped.
func FromDocument(doc *html.Node, identity string, opts Options, logger *zap.Logger) (*Window, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrParse)
	}
	if doc.Type == html.ElementNode && doc.DataAtom == atom.Html && doc.Parent == nil {
		root := &html.Node{Type: html.DocumentNode}
		root.AppendChild(doc)
		doc = root
	}
	if doc.Type != html.DocumentNode || FindElement(doc, atom.Html) == nil {
		return nil, fmt.Errorf("%w: no <html> element", ErrParse)
	}

	if identity == "" {
		identity = uuid.New().String()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("sandbox").With(zap.String("sandbox_id", identity))

	loc, err := url.Parse(firstNonEmpty(opts.URL, DefaultURL))
	if err != nil {
		log.Warn("Invalid url option, falling back to default.", zap.String("url", opts.URL), zap.Error(err))
		if opts.Diagnostics != nil {
			opts.Diagnostics.Warnf(diagnostics.TypeSandbox, "Invalid url", "%q could not be parsed: %v", opts.URL, err)
		}
		loc, _ = url.Parse(DefaultURL)
	}

	policy := opts.Timers
	if policy == nil {
		policy = ConstrainedTimers{}
	}

	w := &Window{
		id:           identity,
		logger:       log,
		doc:          doc,
		location:     loc,
		navigator:    Navigator{UserAgent: firstNonEmpty(opts.UserAgent, DefaultUserAgent), Language: opts.Language},
		referrer:     opts.Referrer,
		resourcesURL: opts.ResourcesURL,
		console:      newConsole(log, opts.RuntimeLogging, opts.Diagnostics),
	}
	w.loop = NewLoop(log)
	w.timers = newTimers(policy, w.loop)
	w.cookies = parseCookieString(opts.Cookie)

	w.applyDocumentOptions(opts)
	log.Debug("Sandbox created.", zap.String("url", loc.String()))
	return w, nil
}

func (w *Window) applyDocumentOptions(opts Options) {
	root := w.DocumentElement()
	if opts.Direction != "" {
		SetAttr(root, "dir", opts.Direction)
	}
	if opts.Language != "" {
		SetAttr(root, "lang", opts.Language)
	}
	if opts.Title != "" {
		w.SetTitle(opts.Title)
	}
	if opts.CanonicalURL != nil {
		w.setCanonical(*opts.CanonicalURL)
	}
}

// setCanonical inserts, updates or removes <link rel="canonical">.
func (w *Window) setCanonical(raw string) {
	links := w.canonicalLinks()
	if strings.TrimSpace(raw) == "" {
		for _, l := range links {
			l.Parent.RemoveChild(l)
		}
		return
	}

	href := raw
	if ref, err := url.Parse(raw); err == nil {
		href = w.location.ResolveReference(ref).String()
	}
	if len(links) > 0 {
		SetAttr(links[0], "href", href)
		for _, extra := range links[1:] {
			extra.Parent.RemoveChild(extra)
		}
		return
	}
	w.Head().AppendChild(NewElement("link",
		html.Attribute{Key: "rel", Val: "canonical"},
		html.Attribute{Key: "href", Val: href},
	))
}

func (w *Window) canonicalLinks() []*html.Node {
	var out []*html.Node
	for _, l := range FindElements(w.doc, atom.Link) {
		if rel, ok := GetAttr(l, "rel"); ok && strings.EqualFold(strings.TrimSpace(rel), "canonical") {
			out = append(out, l)
		}
	}
	return out
}

// ID returns the window's identity token.
func (w *Window) ID() string { return w.id }

// Logger returns the window's named logger.
func (w *Window) Logger() *zap.Logger { return w.logger }

// Document returns the document node.
func (w *Window) Document() *html.Node { return w.doc }

// DocumentElement returns the <html> element.
func (w *Window) DocumentElement() *html.Node { return FindElement(w.doc, atom.Html) }

// Head returns <head>, creating it when the tree has none.
func (w *Window) Head() *html.Node {
	root := w.DocumentElement()
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Head {
			return c
		}
	}
	head := NewElement("head")
	root.InsertBefore(head, root.FirstChild)
	return head
}

// Body returns <body>, creating it when the tree has none.
func (w *Window) Body() *html.Node {
	root := w.DocumentElement()
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Body {
			return c
		}
	}
	body := NewElement("body")
	root.AppendChild(body)
	return body
}

// Title returns the text of the first <title>.
func (w *Window) Title() string {
	if t := FindElement(w.doc, atom.Title); t != nil {
		return strings.TrimSpace(TextContent(t))
	}
	return ""
}

// SetTitle sets document.title, creating <title> in <head> when missing.
func (w *Window) SetTitle(title string) {
	t := FindElement(w.doc, atom.Title)
	if t == nil {
		t = NewElement("title")
		w.Head().AppendChild(t)
	}
	SetTextContent(t, title)
}

// Location returns a copy of location.
func (w *Window) Location() *url.URL {
	u := *w.location
	return &u
}

// Navigator returns window.navigator.
func (w *Window) Navigator() Navigator { return w.navigator }

// Referrer returns document.referrer.
func (w *Window) Referrer() string { return w.referrer }

// ResourcesURL returns the base url for component assets.
func (w *Window) ResourcesURL() string { return w.resourcesURL }

// Loop returns the window's event loop.
func (w *Window) Loop() *Loop { return w.loop }

// Timers returns the window's timers.
func (w *Window) Timers() *Timers { return w.timers }

// Console returns the window's console.
func (w *Window) Console() *Console { return w.console }

// Closed reports whether Close has been called.
func (w *Window) Closed() bool { return w.closed.Load() }

// Close tears down timers and the event loop. Safe to call more than once.
func (w *Window) Close() {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.timers.StopAll()
		w.loop.Close()
		w.logger.Debug("Sandbox closed.")
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
