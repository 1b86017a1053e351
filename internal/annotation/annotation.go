// Package annotation defines the markers written into hydrated output so a
// client can find component boundaries again without re-rendering.
//
// A hydrated host carries s-id="N", its first child is the comment <!--r.N-->,
// and each direct element child carries c-id="N.i". Comments starting with
// o., s. or t. followed by an id are reserved as well.
package annotation

import (
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

const (
	HostIDAttr  = "s-id"
	ChildIDAttr = "c-id"

	HostCommentPrefix = "r."
)

var reservedCommentPrefixes = []string{HostCommentPrefix, "o.", "s.", "t."}

// Generator hands out sequential host ids for one document.
type Generator struct {
	mu      sync.Mutex
	counter int
}

// NewGenerator creates a Generator whose first id is 1.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next id.
func (g *Generator) Next() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return g.counter
}

// Current returns the last id handed out.
func (g *Generator) Current() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter
}

// HostComment returns the comment text that opens host id's content.
func HostComment(id int) string {
	return HostCommentPrefix + strconv.Itoa(id)
}

// ChildID returns the c-id value of a host's i-th element child.
func ChildID(hostID, i int) string {
	return strconv.Itoa(hostID) + "." + strconv.Itoa(i)
}

// IsComment reports whether a comment's text is a reserved marker: one of
// the reserved prefixes followed by an id made of digits and dots.
func IsComment(data string) bool {
	for _, p := range reservedCommentPrefixes {
		if rest, ok := strings.CutPrefix(data, p); ok && isID(rest) {
			return true
		}
	}
	return false
}

// IsAttr reports whether key names an annotation attribute.
func IsAttr(key string) bool {
	return key == HostIDAttr || key == ChildIDAttr
}

// Annotate marks host with id: it sets s-id, inserts the opening comment
// and numbers the direct element children. Children for which unmarked
// reports true get no c-id and take no number; unmarked may be nil.
// Existing markers are replaced, so annotating twice is harmless.
func Annotate(host *html.Node, id int, unmarked func(*html.Node) bool) {
	setAttr(host, HostIDAttr, strconv.Itoa(id))

	if first := host.FirstChild; first != nil && first.Type == html.CommentNode && IsComment(first.Data) {
		host.RemoveChild(first)
	}
	host.InsertBefore(&html.Node{Type: html.CommentNode, Data: HostComment(id)}, host.FirstChild)

	i := 0
	for c := host.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if unmarked != nil && unmarked(c) {
			removeAttr(c, ChildIDAttr)
			continue
		}
		setAttr(c, ChildIDAttr, ChildID(id, i))
		i++
	}
}

// Strip removes every annotation attribute and comment under root.
func Strip(root *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			kept := n.Attr[:0]
			for _, a := range n.Attr {
				if a.Namespace == "" && IsAttr(a.Key) {
					continue
				}
				kept = append(kept, a)
			}
			n.Attr = kept
		}
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.CommentNode && IsComment(c.Data) {
				n.RemoveChild(c)
			} else {
				walk(c)
			}
			c = next
		}
	}
	walk(root)
}

func isID(s string) bool {
	if s == "" || s[0] == '.' || s[len(s)-1] == '.' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if (s[i] < '0' || s[i] > '9') && s[i] != '.' {
			return false
		}
	}
	return true
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}
