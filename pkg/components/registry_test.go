package components

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/prerender/pkg/sandbox"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var noop = ComponentFunc(func(context.Context, *Host) error { return nil })

func TestValidateTagName(t *testing.T) {
	valid := []string{"my-card", "x-1", "a-b-c", "app-root", "my-élément"}
	for _, tag := range valid {
		assert.NoError(t, ValidateTagName(tag), tag)
	}

	invalid := []string{"", "card", "My-card", "my-Card", "1-card", "-card", "my card", "font-face", "annotation-xml"}
	for _, tag := range invalid {
		err := ValidateTagName(tag)
		assert.True(t, errors.Is(err, ErrInvalidTagName), "%q should be rejected, got %v", tag, err)
	}
}

func TestRegistryDefineAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Define("my-card", noop))
	require.NoError(t, r.Define("app-root", noop))

	c, ok := r.Lookup("MY-CARD")
	assert.True(t, ok)
	assert.NotNil(t, c)

	_, ok = r.Lookup("my-other")
	assert.False(t, ok)

	assert.Equal(t, []string{"app-root", "my-card"}, r.Tags())
	assert.Equal(t, 2, r.Len())
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Define("my-card", noop))

	err := r.Define("my-card", noop)
	assert.True(t, errors.Is(err, ErrAlreadyDefined))

	assert.Error(t, r.Define("my-nil", nil))
	assert.Panics(t, func() { r.MustDefine("nohyphen", noop) })
}

func TestHostHelpers(t *testing.T) {
	w, err := sandbox.New(`<html><body><my-card title="x">old</my-card></body></html>`, "host", sandbox.Options{}, nil)
	require.NoError(t, err)
	defer w.Close()

	var node *html.Node
	for c := w.Body().FirstChild; c != nil; c = c.NextSibling {
		if c.Data == "my-card" {
			node = c
		}
	}
	require.NotNil(t, node)

	h := NewHost(node, w)
	assert.Equal(t, "my-card", h.Tag())
	assert.Same(t, w, h.Window())

	v, ok := h.Attr("title")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	h.SetAttr("role", "region")
	h.RemoveAttr("title")
	_, ok = h.Attr("title")
	assert.False(t, ok)

	require.NoError(t, h.SetInnerHTML(`<h2>Title</h2><p>Body <b>text</b></p>`))
	assert.Equal(t, "TitleBody text", h.TextContent())
	require.NotNil(t, h.Node().FirstChild)
	assert.Equal(t, atom.H2, h.Node().FirstChild.DataAtom)

	require.NoError(t, h.AppendHTML(`<footer>end</footer>`))
	assert.Equal(t, atom.Footer, h.Node().LastChild.DataAtom)

	h.SetTextContent("plain")
	assert.Equal(t, "plain", h.TextContent())
}
