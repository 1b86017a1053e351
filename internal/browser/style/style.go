// internal/browser/style/style.go
package style

import (
	"strings"

	"github.com/xkilldash9x/prerender/internal/browser/parser"
	"golang.org/x/net/html"
)

// RemoveUnused returns the rules of sheet that can still apply to one of
// elements. It never mutates its inputs. The analysis is conservative:
// at-rules, unparseable rules and unparseable selectors are always kept, and
// pseudo-classes and pseudo-elements are ignored when matching, which can only
// widen what a selector matches. Within a kept rule, selectors that match
// nothing are dropped.
func RemoveUnused(sheet parser.StyleSheet, elements []*html.Node) parser.StyleSheet {
	out := parser.StyleSheet{Errors: sheet.Errors}
	for _, rule := range sheet.Rules {
		if rule.Kind != parser.RuleStyle {
			out.Rules = append(out.Rules, rule)
			continue
		}

		var kept []parser.ComplexSelector
		for _, sel := range rule.Selectors {
			if sel.Unparsed || matchesAny(elements, sel) {
				kept = append(kept, sel)
			}
		}
		if len(kept) == 0 {
			continue
		}
		rule.Selectors = kept
		out.Rules = append(out.Rules, rule)
	}
	return out
}

// Elements returns every element under root in document order.
func Elements(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
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

// Matches reports whether node is matched by sel, ignoring pseudo selectors.
// Unparsed selectors match everything.
func Matches(node *html.Node, sel parser.ComplexSelector) bool {
	if sel.Unparsed {
		return true
	}
	if node == nil || node.Type != html.ElementNode || len(sel.Selectors) == 0 {
		return false
	}
	return recursiveMatch(node, sel, len(sel.Selectors)-1)
}

func matchesAny(elements []*html.Node, sel parser.ComplexSelector) bool {
	for _, el := range elements {
		if Matches(el, sel) {
			return true
		}
	}
	return false
}

func recursiveMatch(node *html.Node, complexSelector parser.ComplexSelector, index int) bool {
	if node == nil || index < 0 {
		return false
	}
	if node.Type != html.ElementNode {
		return false
	}
	currentSelectorWithCombinator := complexSelector.Selectors[index]
	if !matchesSimple(node, currentSelectorWithCombinator.SimpleSelector) {
		return false
	}
	if index == 0 {
		return true
	}
	nextIndex := index - 1
	switch currentSelectorWithCombinator.Combinator {
	case parser.CombinatorDescendant:
		for parent := node.Parent; parent != nil; parent = parent.Parent {
			if recursiveMatch(parent, complexSelector, nextIndex) {
				return true
			}
		}
		return false
	case parser.CombinatorChild:
		return recursiveMatch(node.Parent, complexSelector, nextIndex)
	case parser.CombinatorAdjacentSibling:
		return recursiveMatch(getPreviousElementSibling(node), complexSelector, nextIndex)
	case parser.CombinatorGeneralSibling:
		for sibling := getPreviousElementSibling(node); sibling != nil; sibling = getPreviousElementSibling(sibling) {
			if recursiveMatch(sibling, complexSelector, nextIndex) {
				return true
			}
		}
		return false
	case parser.CombinatorNone:
		return true
	}
	return false
}

func getPreviousElementSibling(node *html.Node) *html.Node {
	for sibling := node.PrevSibling; sibling != nil; sibling = sibling.PrevSibling {
		if sibling.Type == html.ElementNode {
			return sibling
		}
	}
	return nil
}

// matchesSimple checks tag, id, classes and attributes. Pseudo selectors
// are not evaluated.
func matchesSimple(node *html.Node, selector parser.SimpleSelector) bool {
	if selector.TagName != "" && selector.TagName != "*" && strings.ToLower(node.Data) != selector.TagName {
		return false
	}
	if selector.ID != "" {
		idFound := false
		for _, attr := range node.Attr {
			if attr.Key == "id" && attr.Val == selector.ID {
				idFound = true
				break
			}
		}
		if !idFound {
			return false
		}
	}
	if len(selector.Classes) > 0 {
		var nodeClasses []string
		for _, attr := range node.Attr {
			if attr.Key == "class" {
				nodeClasses = strings.Fields(attr.Val)
				break
			}
		}
		for _, requiredClass := range selector.Classes {
			found := false
			for _, nodeClass := range nodeClasses {
				if nodeClass == requiredClass {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}

	for _, attrSel := range selector.Attributes {
		if !matchesAttribute(node, attrSel) {
			return false
		}
	}

	return true
}

func matchesAttribute(node *html.Node, sel parser.AttributeSelector) bool {
	var actualValue string
	found := false
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, sel.Name) {
			actualValue = attr.Val
			found = true
			break
		}
	}

	switch sel.Operator {
	case "":
		return found
	case "=":
		return found && actualValue == sel.Value
	case "~=":
		if !found {
			return false
		}
		for _, word := range strings.Fields(actualValue) {
			if word == sel.Value {
				return true
			}
		}
		return false
	case "|=":
		return found && (actualValue == sel.Value || strings.HasPrefix(actualValue, sel.Value+"-"))
	case "^=":
		return found && sel.Value != "" && strings.HasPrefix(actualValue, sel.Value)
	case "$=":
		return found && sel.Value != "" && strings.HasSuffix(actualValue, sel.Value)
	case "*=":
		return found && sel.Value != "" && strings.Contains(actualValue, sel.Value)
	default:
		return false
	}
}
