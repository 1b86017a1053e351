// Package resources extracts the anchors, stylesheets, scripts and images of
// a hydrated document, plus its title and url parts.
package resources

import (
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// resourceXPath selects every element any manifest wants in one descendant
// walk, so results come back in document order.
const resourceXPath = `//*[local-name()='a' or local-name()='style' or local-name()='script' or local-name()='img' or local-name()='title' or ` +
	`(local-name()='link' and contains(concat(' ', normalize-space(@rel), ' '), ' stylesheet '))]`

// Element is a snapshot of one element's attributes.
type Element map[string]string

// Manifest is the result of one scan. Nothing in it references the tree.
type Manifest struct {
	Anchors []Element
	Styles  []Element
	Scripts []Element
	Imgs    []Element
	Title   string

	URL      string
	Host     string
	Hostname string
	Href     string
	Port     string
	Pathname string
	Search   string
	Hash     string
}

// Scan walks doc once and sorts what it finds into manifests. location may
// be nil, leaving the url parts empty.
func Scan(doc *html.Node, location *url.URL) Manifest {
	m := Manifest{
		Anchors: []Element{},
		Styles:  []Element{},
		Scripts: []Element{},
		Imgs:    []Element{},
	}
	titled := false
	for _, n := range query(doc) {
		switch strings.ToLower(n.Data) {
		case "a":
			m.Anchors = append(m.Anchors, snapshot(n))
		case "style", "link":
			m.Styles = append(m.Styles, snapshot(n))
		case "script":
			m.Scripts = append(m.Scripts, snapshot(n))
		case "img":
			m.Imgs = append(m.Imgs, snapshot(n))
		case "title":
			if !titled {
				m.Title = strings.TrimSpace(htmlquery.InnerText(n))
				titled = true
			}
		}
	}
	if location != nil {
		m.setURL(location)
	}
	return m
}

// setURL fills the url parts the way window.location reports them.
func (m *Manifest) setURL(u *url.URL) {
	m.Href = u.String()
	m.URL = m.Href
	m.Host = u.Host
	m.Hostname = u.Hostname()
	m.Port = u.Port()
	m.Pathname = u.EscapedPath()
	if m.Pathname == "" && u.Host != "" {
		m.Pathname = "/"
	}
	if u.RawQuery != "" {
		m.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		m.Hash = "#" + u.EscapedFragment()
	}
}

func query(doc *html.Node) []*html.Node {
	if doc == nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(doc, resourceXPath)
	if err != nil {
		// The expression is a constant, so this only happens on a programming error.
		panic("resources: invalid xpath: " + err.Error())
	}
	return nodes
}

func snapshot(n *html.Node) Element {
	e := make(Element, len(n.Attr))
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		if _, exists := e[key]; !exists {
			e[key] = a.Val
		}
	}
	return e
}
