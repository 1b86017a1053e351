package serialize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/prerender/pkg/diagnostics"
	"github.com/xkilldash9x/prerender/pkg/sandbox"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func parseDoc(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func first(t *testing.T, doc *html.Node, a atom.Atom) *html.Node {
	t.Helper()
	n := sandbox.FindElement(doc, a)
	require.NotNil(t, n, "no <%s> in document", a)
	return n
}

func TestDocumentDefaults(t *testing.T) {
	doc := parseDoc(t, `<!DOCTYPE html><html><head><title>T</title></head><body><div class="" hidden="">x</div></body></html>`)

	got := New(DefaultOptions(), nil, nil).Document(doc)
	assert.Equal(t, `<!doctype html><html><head><title>T</title></head><body><div hidden>x</div></body></html>`, got)
}

func TestDocumentWritesDoctypeWithoutOne(t *testing.T) {
	doc := parseDoc(t, `<p>hi</p>`)
	got := New(DefaultOptions(), nil, nil).Document(doc)
	assert.Equal(t, `<!doctype html><html><head></head><body><p>hi</p></body></html>`, got)
}

func TestCompactWhitespace(t *testing.T) {
	doc := parseDoc(t, "<html><head>\n  <title> A  B </title>\n</head><body>\n  <p>a   b</p>\n</body></html>")

	got := New(DefaultOptions(), nil, nil).Document(doc)
	assert.Equal(t, `<!doctype html><html><head><title> A B </title></head><body> <p>a b</p> </body></html>`, got)
}

func TestAttributes(t *testing.T) {
	doc := parseDoc(t, `<a href="/x y" title='say "hi"' data-x="a&amp;b" id="ok" class="  one   two ">x</a>`)
	a := first(t, doc, atom.A)

	t.Run("defaults", func(t *testing.T) {
		got := New(DefaultOptions(), nil, nil).Node(a)
		assert.Equal(t, `<a href="/x y" title="say &quot;hi&quot;" data-x="a&amp;b" id=ok class="one two">x</a>`, got)
	})

	t.Run("quotes kept", func(t *testing.T) {
		opts := DefaultOptions()
		opts.RemoveAttributeQuotes = false
		got := New(opts, nil, nil).Node(a)
		assert.Equal(t, `<a href="/x y" title="say &quot;hi&quot;" data-x="a&amp;b" id="ok" class="one two">x</a>`, got)
	})
}

func TestBooleanAndEmptyAttributes(t *testing.T) {
	doc := parseDoc(t, `<input disabled="disabled" checked="" required="false" id="" title=" " value="">`)
	input := first(t, doc, atom.Input)

	got := New(DefaultOptions(), nil, nil).Node(input)
	assert.Equal(t, `<input disabled checked required=false value="">`, got)

	opts := DefaultOptions()
	opts.RemoveBooleanAttributeQuotes = false
	opts.RemoveEmptyAttributes = false
	got = New(opts, nil, nil).Node(input)
	assert.Equal(t, `<input disabled=disabled checked="" required=false id="" title=" " value="">`, got)
}

func TestComments(t *testing.T) {
	doc := parseDoc(t, `<div s-id="1"><!-- note --><!--r.1--><span c-id="1.0">x</span></div>`)
	div := first(t, doc, atom.Div)

	t.Run("annotations survive comment removal", func(t *testing.T) {
		got := New(DefaultOptions(), nil, nil).Node(div)
		assert.Equal(t, `<div s-id=1><!--r.1--><span c-id=1.0>x</span></div>`, got)
	})

	t.Run("comments kept", func(t *testing.T) {
		opts := DefaultOptions()
		opts.RemoveHTMLComments = false
		got := New(opts, nil, nil).Node(div)
		assert.Equal(t, `<div s-id=1><!-- note --><!--r.1--><span c-id=1.0>x</span></div>`, got)
	})

	t.Run("annotations stripped", func(t *testing.T) {
		opts := DefaultOptions()
		opts.ClientHydrateAnnotations = false
		got := New(opts, nil, nil).Node(div)
		assert.Equal(t, `<div><span>x</span></div>`, got)

		// The source tree keeps its markers.
		_, ok := sandbox.GetAttr(div, "s-id")
		assert.True(t, ok)
	})
}

func TestScripts(t *testing.T) {
	doc := parseDoc(t, `<body><script>var a = "<b>" && 1;</script><p>x</p></body>`)
	body := first(t, doc, atom.Body)

	got := New(DefaultOptions(), nil, nil).Node(body)
	assert.Equal(t, `<body><script>var a = "<b>" && 1;</script><p>x</p></body>`, got)

	opts := DefaultOptions()
	opts.RemoveScripts = true
	got = New(opts, nil, nil).Node(body)
	assert.Equal(t, `<body><p>x</p></body>`, got)

	assert.NotNil(t, sandbox.FindElement(doc, atom.Script), "source tree must not be modified")
}

func TestUnusedStyles(t *testing.T) {
	markup := `<html><head><style>.used{color:red}.unused{color:blue}</style><style>.gone{x:y}</style></head><body><p class="used">x</p></body></html>`

	t.Run("removed", func(t *testing.T) {
		doc := parseDoc(t, markup)
		diags := diagnostics.NewCollector()
		got := New(DefaultOptions(), diags, nil).Document(doc)

		assert.Equal(t, `<!doctype html><html><head><style>.used{color:red}</style></head><body><p class=used>x</p></body></html>`, got)
		assert.Zero(t, diags.Len())
		assert.Len(t, sandbox.FindElements(doc, atom.Style), 2)
	})

	t.Run("kept", func(t *testing.T) {
		opts := DefaultOptions()
		opts.RemoveUnusedStyles = false
		got := New(opts, nil, nil).Document(parseDoc(t, markup))
		assert.Contains(t, got, `.unused{color:blue}`)
		assert.Contains(t, got, `<style>.gone{x:y}</style>`)
	})

	t.Run("unparsed css warns", func(t *testing.T) {
		doc := parseDoc(t, `<style>p{color:red} b { color: blue</style><p>x</p>`)
		diags := diagnostics.NewCollector()
		got := New(DefaultOptions(), diags, nil).Document(doc)

		assert.Contains(t, got, `<style>p{color:red}b { color: blue</style>`)
		entries := diags.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, diagnostics.LevelWarn, entries[0].Level)
		assert.Equal(t, diagnostics.TypeCSS, entries[0].Type)
		assert.False(t, diags.HasErrors())
	})
}

func TestPreformatted(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{"pre whitespace", "<pre>\n  a  b\n</pre>", "<pre>  a  b\n</pre>"},
		{"pre leading newline", "<pre>\n\nx</pre>", "<pre>\n\nx</pre>"},
		{"pre nested", "<pre><b>a   b</b></pre>", "<pre><b>a   b</b></pre>"},
		{"textarea escaped", "<textarea>a &lt; b</textarea>", "<textarea>a &lt; b</textarea>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDoc(t, tt.markup)
			body := first(t, doc, atom.Body)
			got := New(DefaultOptions(), nil, nil).Node(body.FirstChild)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextEscaping(t *testing.T) {
	doc := parseDoc(t, "<p>1 &lt; 2 &amp;&amp; a&nbsp;b</p>")
	got := New(DefaultOptions(), nil, nil).Node(first(t, doc, atom.P))
	assert.Equal(t, "<p>1 &lt; 2 &amp;&amp; a&nbsp;b</p>", got)
}

func TestForeignAttributes(t *testing.T) {
	doc := parseDoc(t, `<svg><use xlink:href="#i"></use></svg>`)
	got := New(DefaultOptions(), nil, nil).Node(first(t, doc, atom.Svg))
	assert.Equal(t, `<svg><use xlink:href=#i></use></svg>`, got)
}

func TestCompactIsStable(t *testing.T) {
	doc := parseDoc(t, `<!DOCTYPE html>
<html lang="en">
  <head>
    <title>Page</title>
    <style>.a { color: red } .b { color: blue }</style>
  </head>
  <body>
    <!-- banner -->
    <header class="a">Hello   <em>there</em></header>
    <pre>
  keep  this</pre>
    <input type="checkbox" checked>
  </body>
</html>`)

	s := New(DefaultOptions(), nil, nil)
	once := s.Document(doc)
	twice := s.Document(parseDoc(t, once))
	assert.Equal(t, once, twice)
	assert.NotContains(t, once, ".b {")
}

func TestPrettyDocument(t *testing.T) {
	doc := parseDoc(t, `<html><head><title>T</title></head><body><div><p>Hello <b>world</b></p></div></body></html>`)

	opts := DefaultOptions()
	opts.PrettyHTML = true
	got := New(opts, nil, nil).Document(doc)

	want := `<!doctype html>
<html>
  <head>
    <title>T</title>
  </head>
  <body>
    <div>
      <p>Hello <b>world</b></p>
    </div>
  </body>
</html>
`
	assert.Equal(t, want, got)
}

func TestPrettyWrapsInlineContent(t *testing.T) {
	doc := parseDoc(t, `<p>aaaa bbbb cccc dddd eeee ffff</p>`)

	opts := DefaultOptions()
	opts.PrettyHTML = true
	opts.ApproximateLineWidth = 20
	got := New(opts, nil, nil).Node(first(t, doc, atom.P))

	assert.Equal(t, "<p>aaaa bbbb cccc\n  dddd eeee ffff</p>", got)
}

func TestPrettyInlineHoldingBlock(t *testing.T) {
	doc := parseDoc(t, `<div><a href="/"><div>x</div></a></div>`)

	opts := DefaultOptions()
	opts.PrettyHTML = true
	got := New(opts, nil, nil).Node(first(t, doc, atom.Div))

	assert.Equal(t, "<div>\n  <a href=/>\n    <div>x</div>\n  </a>\n</div>", got)
}

func TestPrettyKeepsRawText(t *testing.T) {
	doc := parseDoc(t, "<div><pre>\n a\n  b</pre><script>if (a<b) {}</script></div>")

	opts := DefaultOptions()
	opts.PrettyHTML = true
	got := New(opts, nil, nil).Node(first(t, doc, atom.Div))

	assert.Equal(t, "<div>\n  <pre> a\n  b</pre>\n  <script>if (a<b) {}</script>\n</div>", got)
}

func TestPrettyKeepsCustomElementsInline(t *testing.T) {
	doc := parseDoc(t, `<p>Price:<my-price>42</my-price>USD</p>`)

	opts := DefaultOptions()
	opts.PrettyHTML = true
	got := New(opts, nil, nil).Node(first(t, doc, atom.P))

	assert.Equal(t, "<p>Price:<my-price>42</my-price>USD</p>", got)
}

func TestPrettyBreaksAroundInlineBlockOnlyAtWhitespace(t *testing.T) {
	opts := DefaultOptions()
	opts.PrettyHTML = true
	s := New(opts, nil, nil)

	glued := parseDoc(t, `<div>Total:<my-card><div>x</div></my-card>done</div>`)
	assert.Equal(t, "<div>Total:<my-card><div>x</div></my-card>done</div>", s.Node(first(t, glued, atom.Div)))

	spaced := parseDoc(t, `<div>Total: <my-card><div>x</div></my-card> done</div>`)
	assert.Equal(t, "<div>\n  Total:\n  <my-card>\n    <div>x</div>\n  </my-card>\n  done\n</div>", s.Node(first(t, spaced, atom.Div)))
}

// renderedText approximates the text a browser shows for markup: whitespace
// runs collapse to one space, block boundaries become "|" and whitespace
// next to a boundary is dropped.
func renderedText(t *testing.T, markup string) string {
	t.Helper()
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if rawTextElements[n.Data] {
				return
			}
			if blockLevel(n) {
				b.WriteString("|")
				defer b.WriteString("|")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(parseDoc(t, markup))

	text := strings.Join(strings.Fields(b.String()), " ")
	text = strings.ReplaceAll(text, " |", "|")
	text = strings.ReplaceAll(text, "| ", "|")
	for strings.Contains(text, "||") {
		text = strings.ReplaceAll(text, "||", "|")
	}
	return strings.Trim(text, "|")
}

func TestPrettyPreservesRenderedText(t *testing.T) {
	inputs := []string{
		`<p>Price:<my-price>42</my-price>USD</p>`,
		`<div>Total:<my-card><div>x</div></my-card>done</div>`,
		`<div>Total: <my-card><div>x</div></my-card> done</div>`,
		`<section><h1>Title</h1>text<span>a</span>b <em>c</em><my-el>d</my-el> and some longer words here</section>`,
		`<p>a<svg><circle r="1"></circle></svg>b<video src="v"></video>c</p>`,
		`<ul><li>one<my-badge>1</my-badge></li><li>two <b>bold</b>, <i>it</i></li></ul>`,
		`<p>x<script>var a = 1;</script>y<textarea>  t  </textarea>z</p>`,
		`<my-layout><my-header>h</my-header><main><p>body text that wraps around</p></main>tail</my-layout>`,
	}

	compactOpts := DefaultOptions()
	prettyOpts := DefaultOptions()
	prettyOpts.PrettyHTML = true
	prettyOpts.ApproximateLineWidth = 20

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			compact := New(compactOpts, nil, nil).Document(parseDoc(t, in))
			pretty := New(prettyOpts, nil, nil).Document(parseDoc(t, in))
			assert.Equal(t, renderedText(t, compact), renderedText(t, pretty), "pretty output:\n%s", pretty)
		})
	}
}

func TestNilNodes(t *testing.T) {
	s := New(DefaultOptions(), nil, nil)
	assert.Empty(t, s.Document(nil))
	assert.Empty(t, s.Node(nil))
}
