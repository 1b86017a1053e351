// Package components defines the contract between the hydration pipeline and
// the custom elements it renders.
package components

import (
	"context"
	"strings"

	"github.com/xkilldash9x/prerender/pkg/sandbox"
	"golang.org/x/net/html"
)

// Component renders one custom element in place. Render runs on the window's
// event loop, so it may mutate the tree freely but must not block for long;
// ctx is cancelled when the hydration deadline passes.
type Component interface {
	Render(ctx context.Context, host *Host) error
}

// AsyncComponent is implemented by components whose render finishes later,
// typically from a timer callback. done must be called exactly once.
// When a component implements both, RenderAsync wins.
type AsyncComponent interface {
	RenderAsync(ctx context.Context, host *Host, done func(error))
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(ctx context.Context, host *Host) error

func (f ComponentFunc) Render(ctx context.Context, host *Host) error {
	return f(ctx, host)
}

// Host is the element a component is rendering into.
type Host struct {
	node   *html.Node
	window *sandbox.Window
}

// NewHost binds node to its window.
func NewHost(node *html.Node, window *sandbox.Window) *Host {
	return &Host{node: node, window: window}
}

// Node returns the host element.
func (h *Host) Node() *html.Node { return h.node }

// Tag returns the lower-cased tag name.
func (h *Host) Tag() string { return strings.ToLower(h.node.Data) }

// Window returns the window the host lives in.
func (h *Host) Window() *sandbox.Window { return h.window }

func (h *Host) Attr(name string) (string, bool) { return sandbox.GetAttr(h.node, name) }

func (h *Host) SetAttr(name, value string) { sandbox.SetAttr(h.node, name, value) }

func (h *Host) RemoveAttr(name string) { sandbox.RemoveAttr(h.node, name) }

// TextContent returns the concatenated text of the host's subtree.
func (h *Host) TextContent() string { return sandbox.TextContent(h.node) }

// SetTextContent replaces the host's children with text.
func (h *Host) SetTextContent(text string) { sandbox.SetTextContent(h.node, text) }

// SetInnerHTML replaces the host's children with the parsed markup.
func (h *Host) SetInnerHTML(markup string) error {
	nodes, err := h.parse(markup)
	if err != nil {
		return err
	}
	sandbox.RemoveChildren(h.node)
	for _, n := range nodes {
		h.node.AppendChild(n)
	}
	return nil
}

// AppendHTML parses markup and appends it after the host's existing children.
func (h *Host) AppendHTML(markup string) error {
	nodes, err := h.parse(markup)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		h.node.AppendChild(n)
	}
	return nil
}

// parse reads markup in the context of the host element.
func (h *Host) parse(markup string) ([]*html.Node, error) {
	return html.ParseFragment(strings.NewReader(markup), h.node)
}
