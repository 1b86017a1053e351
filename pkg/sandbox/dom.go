package sandbox

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FindElement returns the first element under root (inclusive) whose tag is a,
// in document order.
func FindElement(root *html.Node, a atom.Atom) *html.Node {
	if root == nil {
		return nil
	}
	if root.Type == html.ElementNode && root.DataAtom == a {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := FindElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// FindElements returns every element under root whose tag is a, in document order.
func FindElements(root *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// GetAttr returns the value of the attribute named key (case-insensitive).
func GetAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets an attribute, replacing an existing one in place so attribute
// order stays stable.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes every attribute named key.
func RemoveAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// TextContent concatenates every text node under n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// SetTextContent replaces every child of n with a single text node.
func SetTextContent(n *html.Node, text string) {
	RemoveChildren(n)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// NewElement creates a detached element node.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

// CloneNode deep-copies n. The copy is detached from any parent.
func CloneNode(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		clone.Attr = make([]html.Attribute, len(n.Attr))
		copy(clone.Attr, n.Attr)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(CloneNode(c))
	}
	return clone
}

// Depth counts the element ancestors of n.
func Depth(n *html.Node) int {
	depth := 0
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			depth++
		}
	}
	return depth
}
