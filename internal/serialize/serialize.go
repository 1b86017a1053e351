// Package serialize turns a finished document tree back into html text under
// a set of independent minification and formatting policies.
package serialize

import (
	"strings"

	"github.com/xkilldash9x/prerender/internal/annotation"
	"github.com/xkilldash9x/prerender/internal/browser/parser"
	"github.com/xkilldash9x/prerender/internal/browser/style"
	"github.com/xkilldash9x/prerender/pkg/diagnostics"
	"github.com/xkilldash9x/prerender/pkg/sandbox"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	DefaultApproximateLineWidth = 100
	defaultIndent               = "  "
)

// Options selects the serialization policies.
type Options struct {
	PrettyHTML           bool
	ApproximateLineWidth int

	RemoveAttributeQuotes        bool
	RemoveBooleanAttributeQuotes bool
	RemoveEmptyAttributes        bool
	RemoveHTMLComments           bool
	RemoveScripts                bool
	RemoveUnusedStyles           bool

	// ClientHydrateAnnotations keeps annotation markers. When false they are
	// stripped from the output.
	ClientHydrateAnnotations bool
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ApproximateLineWidth:         DefaultApproximateLineWidth,
		RemoveAttributeQuotes:        true,
		RemoveBooleanAttributeQuotes: true,
		RemoveEmptyAttributes:        true,
		RemoveHTMLComments:           true,
		RemoveUnusedStyles:           true,
		ClientHydrateAnnotations:     true,
	}
}

// Serializer writes trees as html. It never modifies the tree it is given;
// removals happen on a clone.
type Serializer struct {
	opts   Options
	diags  *diagnostics.Collector
	logger *zap.Logger
}

// New creates a Serializer. diags receives css warnings and may be nil.
func New(opts Options, diags *diagnostics.Collector, logger *zap.Logger) *Serializer {
	if opts.ApproximateLineWidth <= 0 {
		opts.ApproximateLineWidth = DefaultApproximateLineWidth
	}
	if diags == nil {
		diags = diagnostics.NewCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Serializer{opts: opts, diags: diags, logger: logger.Named("serialize")}
}

// Document serializes a document node, starting with <!doctype html>.
// Any other node is serialized as by Node.
func (s *Serializer) Document(doc *html.Node) string {
	if doc == nil {
		return ""
	}
	root := s.prepare(doc)

	var b strings.Builder
	if root.Type == html.DocumentNode {
		b.WriteString("<!doctype html>")
	}
	if s.opts.PrettyHTML {
		p := newPretty(s, &b)
		p.children(root, 0)
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		return b.String()
	}
	s.compactChildren(&b, root)
	return b.String()
}

// Node serializes n and its subtree.
func (s *Serializer) Node(n *html.Node) string {
	if n == nil {
		return ""
	}
	root := s.prepare(n)

	var b strings.Builder
	if s.opts.PrettyHTML {
		p := newPretty(s, &b)
		if p.isBlock(root) {
			p.block(root, 0)
		} else {
			p.fill(p.inline([]*html.Node{root}), 0)
		}
		return b.String()
	}
	s.compact(&b, root)
	return b.String()
}

// prepare returns the tree to write: root itself, or a clone with scripts,
// annotations, unused styles and comments removed as configured.
func (s *Serializer) prepare(root *html.Node) *html.Node {
	if !s.opts.RemoveScripts && !s.opts.RemoveUnusedStyles && !s.opts.RemoveHTMLComments && s.opts.ClientHydrateAnnotations {
		return root
	}
	clone := sandbox.CloneNode(root)
	if s.opts.RemoveScripts {
		for _, script := range elementsNamed(clone, "script") {
			script.Parent.RemoveChild(script)
		}
	}
	if !s.opts.ClientHydrateAnnotations {
		annotation.Strip(clone)
	}
	if s.opts.RemoveUnusedStyles {
		s.removeUnusedStyles(clone)
	}
	if s.opts.RemoveHTMLComments {
		removeComments(clone)
	}
	return clone
}

// removeComments drops every non-annotation comment and joins the text nodes
// that end up next to each other, so the output reparses to the same tree.
func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode && !annotation.IsComment(c.Data):
			n.RemoveChild(c)
		case c.Type == html.TextNode:
			for next != nil && (next.Type == html.TextNode || next.Type == html.CommentNode && !annotation.IsComment(next.Data)) {
				if next.Type == html.TextNode {
					c.Data += next.Data
				}
				after := next.NextSibling
				n.RemoveChild(next)
				next = after
			}
		default:
			removeComments(c)
		}
		c = next
	}
}

func (s *Serializer) removeUnusedStyles(root *html.Node) {
	sheets := elementsNamed(root, "style")
	if len(sheets) == 0 {
		return
	}
	elements := style.Elements(root)

	for _, el := range sheets {
		sheet := parser.NewParser(sandbox.TextContent(el)).Parse()
		if sheet.HasUnparsed() {
			d := diagnostics.Diagnostic{
				Level:       diagnostics.LevelWarn,
				Type:        diagnostics.TypeCSS,
				Header:      "CSS Warning",
				MessageText: "Unused style removal kept css it could not analyse",
			}
			if len(sheet.Errors) > 0 {
				d.DebugText = strings.Join(sheet.Errors, "; ")
			}
			s.diags.Add(d)
		}

		kept := style.RemoveUnused(sheet, elements).String()
		if strings.TrimSpace(kept) == "" {
			if el.Parent != nil {
				el.Parent.RemoveChild(el)
			}
			continue
		}
		sandbox.SetTextContent(el, kept)
	}
}

// attributes formats the attributes of n under the attribute policies.
func (s *Serializer) attributes(n *html.Node) []string {
	out := make([]string, 0, len(n.Attr))
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		val := a.Val
		htmlAttr := a.Namespace == "" && n.Namespace == ""

		if s.opts.RemoveEmptyAttributes && htmlAttr && emptyRemovableAttrs[key] {
			if key == "class" {
				val = strings.Join(strings.Fields(val), " ")
			}
			if strings.TrimSpace(val) == "" {
				continue
			}
		}
		if s.opts.RemoveBooleanAttributeQuotes && htmlAttr && booleanAttrs[key] && (val == "" || strings.EqualFold(val, key)) {
			out = append(out, key)
			continue
		}
		if s.opts.RemoveAttributeQuotes && canUnquote(val) {
			out = append(out, key+"="+val)
			continue
		}
		out = append(out, key+`="`+escapeAttr(val)+`"`)
	}
	return out
}

// keepComment applies the comment policy. Annotation comments always survive.
func (s *Serializer) keepComment(n *html.Node) bool {
	return !s.opts.RemoveHTMLComments || annotation.IsComment(n.Data)
}

func (s *Serializer) compactChildren(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.compact(b, c)
	}
}

func (s *Serializer) compact(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		s.compactChildren(b, n)

	case html.DoctypeNode:
		// The document writer emits the doctype itself.

	case html.CommentNode:
		if s.keepComment(n) {
			b.WriteString("<!--" + n.Data + "-->")
		}

	case html.TextNode:
		b.WriteString(textContent(n))

	case html.RawNode:
		b.WriteString(n.Data)

	case html.ElementNode:
		b.WriteString("<" + n.Data)
		for _, attr := range s.attributes(n) {
			b.WriteString(" " + attr)
		}
		b.WriteByte('>')
		if voidElements[n.Data] && n.Namespace == "" {
			return
		}
		if preformattedElements[n.Data] && startsWithNewline(n) {
			b.WriteByte('\n')
		}
		s.compactChildren(b, n)
		b.WriteString("</" + n.Data + ">")
	}
}

// textContent renders a text node for compact output.
func textContent(n *html.Node) string {
	parent := n.Parent
	if parent != nil && parent.Type == html.ElementNode && parent.Namespace == "" {
		if rawTextElements[parent.Data] {
			return n.Data
		}
		if (parent.Data == "html" || parent.Data == "head") && isWhitespaceOnly(n.Data) {
			return ""
		}
	}
	if parent == nil || parent.Type == html.DocumentNode {
		if isWhitespaceOnly(n.Data) {
			return ""
		}
	}
	if inPreformatted(n) {
		return escapeText(n.Data)
	}
	return escapeText(collapseWhitespace(n.Data))
}

func inPreformatted(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && preformattedElements[p.Data] {
			return true
		}
	}
	return false
}

// startsWithNewline reports whether a pre-like element's content begins
// with a newline, which the parser would swallow unless it is doubled.
func startsWithNewline(n *html.Node) bool {
	c := n.FirstChild
	return c != nil && c.Type == html.TextNode && strings.HasPrefix(c.Data, "\n")
}

func elementsNamed(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Namespace == "" && n.Data == tag {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}
