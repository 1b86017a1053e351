package hydrate

import (
	"net/http"

	"github.com/xkilldash9x/prerender/internal/resources"
	"github.com/xkilldash9x/prerender/internal/scheduler"
	"github.com/xkilldash9x/prerender/pkg/diagnostics"
)

// Component modes.
const (
	ModeHydrated = scheduler.ModeHydrated
	ModeStatic   = scheduler.ModeStatic
)

// Component describes one custom element tag found during hydration.
type Component struct {
	Tag   string `json:"tag"`
	Mode  string `json:"mode"`
	Count int    `json:"count"`
	Depth int    `json:"depth"`
}

// Element is an attribute snapshot of a scanned element: href and target for
// anchors, href for stylesheet links, src and type for scripts, src for
// images, plus every other attribute the element carried.
type Element map[string]string

// Results is everything a render reports. Callers decide success by looking
// for error-level Diagnostics; HTTPStatus is only a coarse signal.
type Results struct {
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`

	URL      string `json:"url"`
	Host     string `json:"host"`
	Hostname string `json:"hostname"`
	Href     string `json:"href"`
	Port     string `json:"port"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Hash     string `json:"hash"`

	// HTML is empty for HydrateDocument results.
	HTML string `json:"html,omitempty"`

	Components []Component `json:"components"`
	Anchors    []Element   `json:"anchors"`
	Styles     []Element   `json:"styles"`
	Scripts    []Element   `json:"scripts"`
	Imgs       []Element   `json:"imgs"`
	Title      string      `json:"title"`

	HydratedCount int `json:"hydratedCount"`
	HTTPStatus    int `json:"httpStatus"`
}

// HasErrors reports whether any error-level diagnostic was recorded.
func (r *Results) HasErrors() bool {
	return diagnostics.HasErrors(r.Diagnostics)
}

func (r *Results) applyHydration(res scheduler.Result) {
	r.HydratedCount = res.HydratedCount
	r.Components = make([]Component, 0, len(res.Components))
	for _, c := range res.Components {
		r.Components = append(r.Components, Component(c))
	}
}

func (r *Results) applyManifest(m resources.Manifest) {
	r.URL = m.URL
	r.Host = m.Host
	r.Hostname = m.Hostname
	r.Href = m.Href
	r.Port = m.Port
	r.Pathname = m.Pathname
	r.Search = m.Search
	r.Hash = m.Hash
	r.Title = m.Title
	r.Anchors = elements(m.Anchors)
	r.Styles = elements(m.Styles)
	r.Scripts = elements(m.Scripts)
	r.Imgs = elements(m.Imgs)
}

// finish copies the diagnostics in and derives the status.
func (r *Results) finish(diags *diagnostics.Collector) {
	r.Diagnostics = diags.Entries()
	r.HTTPStatus = http.StatusOK
	if r.HasErrors() {
		r.HTTPStatus = http.StatusInternalServerError
	}
}

func elements(in []resources.Element) []Element {
	out := make([]Element, 0, len(in))
	for _, e := range in {
		out = append(out, Element(e))
	}
	return out
}
