package serialize

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// token is an unbreakable piece of inline output. space records whether the
// source had whitespace before it, which is where a line may wrap.
type token struct {
	text  string
	space bool
}

// pretty writes one element per line for block content and fills inline
// content up to the approximate line width.
type pretty struct {
	s     *Serializer
	b     *strings.Builder
	width int
	col   int
	// lineStart is the column where the current line's content began.
	lineStart int
	blocks    map[*html.Node]bool
}

func newPretty(s *Serializer, b *strings.Builder) *pretty {
	return &pretty{
		s:      s,
		b:      b,
		width:  s.opts.ApproximateLineWidth,
		blocks: make(map[*html.Node]bool),
	}
}

func (p *pretty) newline(level int) {
	if p.b.Len() > 0 {
		p.b.WriteByte('\n')
	}
	indent := strings.Repeat(defaultIndent, level)
	p.b.WriteString(indent)
	p.col = len(indent)
	p.lineStart = p.col
}

func (p *pretty) write(s string) {
	p.b.WriteString(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		p.col = utf8.RuneCountInString(s[i+1:])
		p.lineStart = 0
		return
	}
	p.col += utf8.RuneCountInString(s)
}

// fill writes tokens starting at the current position, wrapping at token
// boundaries that had whitespace. Continuation lines are indented to level.
func (p *pretty) fill(tokens []token, level int) {
	for i, t := range tokens {
		if i == 0 || !t.space {
			p.write(t.text)
			continue
		}
		if p.col > p.lineStart && p.col+1+utf8.RuneCountInString(t.text) > p.width {
			p.newline(level)
			p.write(t.text)
			continue
		}
		p.write(" " + t.text)
	}
}

// isBlock reports whether n gets lines of its own. Block-level elements
// always do. Any other element, custom elements included, only does when it
// holds block content and the source already separates it from its
// siblings, so the inserted line breaks never add rendered whitespace.
func (p *pretty) isBlock(n *html.Node) bool {
	if v, ok := p.blocks[n]; ok {
		return v
	}
	v := false
	switch n.Type {
	case html.DocumentNode, html.DoctypeNode:
		v = true
	case html.ElementNode:
		v = blockLevel(n) || (p.hasBlockChild(n) && separated(n, true) && separated(n, false))
	}
	p.blocks[n] = v
	return v
}

// blockLevel reports elements browsers lay out as blocks. Whitespace next to
// them never renders. Unknown tags are inline.
func blockLevel(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Namespace == "" && n.DataAtom != 0 &&
		!inlineElements[n.Data] && !rawTextElements[n.Data]
}

// separated reports whether the source has whitespace or a block boundary
// on one side of n: before it when before is set, after it otherwise.
// Comments are skipped.
func separated(n *html.Node, before bool) bool {
	sib := n.NextSibling
	if before {
		sib = n.PrevSibling
	}
	for sib != nil && sib.Type == html.CommentNode {
		if before {
			sib = sib.PrevSibling
		} else {
			sib = sib.NextSibling
		}
	}
	if sib == nil {
		return true
	}
	switch sib.Type {
	case html.TextNode:
		if sib.Data == "" {
			return true
		}
		if before {
			return isSpace(sib.Data[len(sib.Data)-1])
		}
		return isSpace(sib.Data[0])
	case html.ElementNode:
		return blockLevel(sib)
	}
	return false
}

func (p *pretty) hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if p.isBlock(c) {
			return true
		}
	}
	return false
}

// children lays out the children of n at level. Consecutive inline children
// are filled together on their own line.
func (p *pretty) children(n *html.Node, level int) {
	var run []*html.Node
	flush := func() {
		if tokens := p.inline(run); len(tokens) > 0 {
			p.newline(level)
			p.fill(tokens, level)
		}
		run = run[:0]
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if p.isBlock(c) {
			flush()
			p.block(c, level)
			continue
		}
		run = append(run, c)
	}
	flush()
}

func (p *pretty) block(n *html.Node, level int) {
	switch n.Type {
	case html.DocumentNode:
		p.children(n, level)
		return
	case html.DoctypeNode:
		return
	}

	p.newline(level)
	open := p.openTag(n, false)

	if voidElements[n.Data] && n.Namespace == "" {
		p.fill(open, level+1)
		return
	}

	if n.Namespace == "" && (rawTextElements[n.Data] || preformattedElements[n.Data]) {
		p.fill(open, level+1)
		if preformattedElements[n.Data] && startsWithNewline(n) {
			p.write("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p.verbatim(c)
		}
		p.write("</" + n.Data + ">")
		return
	}

	if !p.hasBlockChild(n) {
		var kids []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			kids = append(kids, c)
		}
		tokens := append(open, p.inline(kids)...)
		tokens = appendClose(tokens, n.Data, false)
		p.fill(tokens, level+1)
		return
	}

	p.fill(open, level+1)
	p.children(n, level+1)
	p.newline(level)
	p.write("</" + n.Data + ">")
}

// verbatim writes the content of raw text and preformatted elements exactly
// as the compact writer would.
func (p *pretty) verbatim(n *html.Node) {
	var b strings.Builder
	p.s.compact(&b, n)
	p.write(b.String())
}

// openTag returns the start tag as tokens: the tag name, one token per
// attribute, with ">" glued to the last one.
func (p *pretty) openTag(n *html.Node, space bool) []token {
	tokens := []token{{text: "<" + n.Data, space: space}}
	for _, attr := range p.s.attributes(n) {
		tokens = append(tokens, token{text: attr, space: true})
	}
	tokens[len(tokens)-1].text += ">"
	return tokens
}

func appendClose(tokens []token, tag string, space bool) []token {
	return append(tokens, token{text: "</" + tag + ">", space: space})
}

// inline tokenizes a run of inline nodes. Whitespace only decides where the
// tokens may wrap; runs of it are never written as is.
func (p *pretty) inline(nodes []*html.Node) []token {
	t := &tokenizer{p: p}
	for _, n := range nodes {
		t.node(n)
	}
	return t.tokens
}

type tokenizer struct {
	p       *pretty
	tokens  []token
	pending bool
}

func (t *tokenizer) add(text string) {
	t.tokens = append(t.tokens, token{text: text, space: t.pending})
	t.pending = false
}

func (t *tokenizer) node(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		t.text(n.Data)

	case html.CommentNode:
		if t.p.s.keepComment(n) {
			t.add("<!--" + n.Data + "-->")
		}

	case html.RawNode:
		t.add(n.Data)

	case html.ElementNode:
		if n.Namespace == "" && (rawTextElements[n.Data] || preformattedElements[n.Data]) {
			var b strings.Builder
			t.p.s.compact(&b, n)
			t.add(b.String())
			return
		}
		open := t.p.openTag(n, t.pending)
		t.pending = false
		t.tokens = append(t.tokens, open...)
		if voidElements[n.Data] && n.Namespace == "" {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			t.node(c)
		}
		t.add("</" + n.Data + ">")
	}
}

func (t *tokenizer) text(data string) {
	start := -1
	for i := 0; i <= len(data); i++ {
		if i < len(data) && !isSpace(data[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			t.add(escapeText(data[start:i]))
			start = -1
		}
		if i < len(data) {
			t.pending = true
		}
	}
}
