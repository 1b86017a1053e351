package resources

import (
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const page = `<!doctype html>
<html>
<head>
  <title>  Resource Page </title>
  <link rel="stylesheet" href="/main.css">
  <link rel="icon" href="/favicon.ico">
  <link rel="alternate stylesheet" href="/alt.css" title="alt">
  <style>body { color: red }</style>
  <script src="/app.js" type="module"></script>
</head>
<body>
  <a href="/one">One</a>
  <a href="https://example.com/" target="_blank" rel="noopener">Two</a>
  <img src="/logo.png" alt="logo">
  <script>inline()</script>
</body>
</html>`

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func TestScanCollectsManifestsInDocumentOrder(t *testing.T) {
	m := Scan(parse(t, page), nil)

	want := Manifest{
		Anchors: []Element{
			{"href": "/one"},
			{"href": "https://example.com/", "target": "_blank", "rel": "noopener"},
		},
		Styles: []Element{
			{"rel": "stylesheet", "href": "/main.css"},
			{"rel": "alternate stylesheet", "href": "/alt.css", "title": "alt"},
			{},
		},
		Scripts: []Element{
			{"src": "/app.js", "type": "module"},
			{},
		},
		Imgs:  []Element{{"src": "/logo.png", "alt": "logo"}},
		Title: "Resource Page",
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}
}

func TestScanInterleavedStylesKeepDocumentOrder(t *testing.T) {
	doc := parse(t, `<title>first</title><body>`+
		`<style id="s1"></style>`+
		`<link rel="stylesheet" href="/a.css">`+
		`<svg><title>second</title></svg>`+
		`<style id="s2"></style>`+
		`<link rel="preload stylesheet" href="/b.css">`)

	m := Scan(doc, nil)
	want := []Element{
		{"id": "s1"},
		{"rel": "stylesheet", "href": "/a.css"},
		{"id": "s2"},
		{"rel": "preload stylesheet", "href": "/b.css"},
	}
	if diff := cmp.Diff(want, m.Styles); diff != "" {
		t.Errorf("styles mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "first", m.Title, "the first title wins")
}

func TestScanSnapshotsAreDetached(t *testing.T) {
	doc := parse(t, `<a href="/before"></a>`)
	m := Scan(doc, nil)
	require.Len(t, m.Anchors, 1)

	var a *html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			a = n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	a.Attr[0].Val = "/after"

	assert.Equal(t, "/before", m.Anchors[0]["href"])
}

func TestScanEmptyDocument(t *testing.T) {
	m := Scan(parse(t, ""), nil)
	assert.Empty(t, m.Anchors)
	assert.Empty(t, m.Styles)
	assert.Empty(t, m.Scripts)
	assert.Empty(t, m.Imgs)
	assert.Equal(t, "", m.Title)
}

func TestScanURLParts(t *testing.T) {
	u, err := url.Parse("https://example.com:8443/docs/a%20b?q=1&r=2#section")
	require.NoError(t, err)

	m := Scan(parse(t, ""), u)
	assert.Equal(t, "https://example.com:8443/docs/a%20b?q=1&r=2#section", m.Href)
	assert.Equal(t, m.Href, m.URL)
	assert.Equal(t, "example.com:8443", m.Host)
	assert.Equal(t, "example.com", m.Hostname)
	assert.Equal(t, "8443", m.Port)
	assert.Equal(t, "/docs/a%20b", m.Pathname)
	assert.Equal(t, "?q=1&r=2", m.Search)
	assert.Equal(t, "#section", m.Hash)
}

func TestScanURLPartsDefaults(t *testing.T) {
	u, err := url.Parse("http://prerender.local")
	require.NoError(t, err)

	m := Scan(parse(t, ""), u)
	assert.Equal(t, "/", m.Pathname)
	assert.Equal(t, "", m.Port)
	assert.Equal(t, "", m.Search)
	assert.Equal(t, "", m.Hash)
}
