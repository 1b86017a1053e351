// internal/browser/parser/css.go
package parser

import (
	"fmt"
	"strings"
)

// Property represents a CSS property (e.g., "display").
type Property string

// Value represents a CSS value (e.g., "none").
type Value string

// Declaration is a key-value pair (e.g., display: none).
type Declaration struct {
	Property  Property
	Value     Value
	Important bool
}

// RuleKind tells style rules apart from the rules kept as opaque text.
type RuleKind int

const (
	RuleStyle   RuleKind = iota // selector list + declaration block
	RuleAt                      // @media, @font-face, @import ... kept verbatim
	RuleInvalid                 // text the parser could not make sense of, kept verbatim
)

// Rule is one top-level rule together with the source text needed to write
// it back out.
type Rule struct {
	Kind RuleKind
	// Source is the verbatim text of at-rules and invalid rules.
	Source string
	// Selectors holds one entry per comma separated selector of a style rule.
	Selectors []ComplexSelector
	// Body is the declaration block including its braces, verbatim.
	Body         string
	Declarations []Declaration
}

// String writes the rule back out. Style rules are rebuilt from their
// selector texts so a caller can drop individual selectors.
func (r Rule) String() string {
	if r.Kind != RuleStyle {
		return r.Source
	}
	texts := make([]string, len(r.Selectors))
	for i, s := range r.Selectors {
		texts[i] = s.Text
	}
	return strings.Join(texts, ",") + r.Body
}

// StyleSheet is the parsed content of one <style> element.
type StyleSheet struct {
	Rules []Rule
	// Errors lists problems found while parsing. Affected text is still
	// present in Rules as RuleInvalid or as unparsed selectors.
	Errors []string
}

// String writes every rule back out without separators.
func (s StyleSheet) String() string {
	var b strings.Builder
	for _, r := range s.Rules {
		b.WriteString(r.String())
	}
	return b.String()
}

// HasUnparsed reports whether any part of the sheet could not be analysed.
func (s StyleSheet) HasUnparsed() bool {
	if len(s.Errors) > 0 {
		return true
	}
	for _, r := range s.Rules {
		if r.Kind == RuleInvalid {
			return true
		}
		for _, sel := range r.Selectors {
			if sel.Unparsed {
				return true
			}
		}
	}
	return false
}

// ComplexSelector represents a sequence of simple selectors joined by combinators (e.g., "div > p").
type ComplexSelector struct {
	// Text is the selector as written, trimmed.
	Text string
	// Unparsed is set when Text uses syntax the parser does not model.
	// Selectors stays empty in that case.
	Unparsed  bool
	Selectors []SimpleSelectorWithCombinator
}

// SimpleSelectorWithCombinator pairs a simple selector with its preceding combinator.
type SimpleSelectorWithCombinator struct {
	Combinator     Combinator
	SimpleSelector SimpleSelector
}

// SimpleSelector represents the core components of a selector (tag, ID, classes).
type SimpleSelector struct {
	TagName    string
	ID         string
	Classes    []string
	Attributes []AttributeSelector
	// Pseudo holds pseudo-classes and pseudo-elements as written, e.g. ":hover",
	// "::before" or ":not(.x)".
	Pseudo []string
}

// AttributeSelector represents a CSS attribute selector like `[href]` or `[target="_blank"]`.
type AttributeSelector struct {
	Name     string
	Operator string // e.g., "=", "~=", "|=", "^=", "$=", "*="
	Value    string
}

// Combinator defines the relationship between simple selectors.
type Combinator int

const (
	CombinatorNone            Combinator = iota // No combinator (first selector)
	CombinatorDescendant                        // Space
	CombinatorChild                             // >
	CombinatorAdjacentSibling                   // +
	CombinatorGeneralSibling                    // ~
)

// IsValid checks if the selector has at least one component.
func (s SimpleSelector) IsValid() bool {
	return s.TagName != "" || s.ID != "" || len(s.Classes) > 0 || len(s.Attributes) > 0 || len(s.Pseudo) > 0
}

// Parser holds the state of the CSS parser.
type Parser struct {
	input string
	pos   int
}

func NewParser(input string) *Parser {
	return &Parser{input: input, pos: 0}
}

// Parse splits the input into top-level rules. Comments between rules are
// dropped; everything else is kept in some form.
func (p *Parser) Parse() StyleSheet {
	var sheet StyleSheet
	for {
		p.consumeWhitespace()
		if p.eof() {
			break
		}
		if p.startsWith("/*") {
			p.skipComment()
			continue
		}
		// HTML comment delimiters are allowed around style content.
		if p.startsWith("<!--") {
			p.consumeN(4)
			continue
		}
		if p.startsWith("-->") {
			p.consumeN(3)
			continue
		}

		start := p.pos
		if p.currentChar() == '@' {
			if !p.skipAtRule() {
				sheet.Errors = append(sheet.Errors, fmt.Sprintf("unterminated at-rule at offset %d", start))
				sheet.Rules = append(sheet.Rules, Rule{Kind: RuleInvalid, Source: p.input[start:]})
				break
			}
			sheet.Rules = append(sheet.Rules, Rule{Kind: RuleAt, Source: strings.TrimSpace(p.input[start:p.pos])})
			continue
		}

		p.skipTo('{', '}')
		if p.eof() {
			sheet.Errors = append(sheet.Errors, fmt.Sprintf("rule without a block at offset %d", start))
			sheet.Rules = append(sheet.Rules, Rule{Kind: RuleInvalid, Source: p.input[start:]})
			break
		}
		if p.currentChar() == '}' {
			p.consumeChar()
			sheet.Errors = append(sheet.Errors, fmt.Sprintf("unexpected '}' at offset %d", p.pos-1))
			continue
		}

		prelude := strings.TrimSpace(p.input[start:p.pos])
		bodyStart := p.pos
		p.consumeChar() // Consume '{'
		if !p.skipBlock('{', '}') {
			sheet.Errors = append(sheet.Errors, fmt.Sprintf("unterminated block at offset %d", bodyStart))
			sheet.Rules = append(sheet.Rules, Rule{Kind: RuleInvalid, Source: p.input[start:]})
			break
		}
		body := p.input[bodyStart:p.pos]

		if prelude == "" {
			sheet.Errors = append(sheet.Errors, fmt.Sprintf("block without selectors at offset %d", start))
			sheet.Rules = append(sheet.Rules, Rule{Kind: RuleInvalid, Source: body})
			continue
		}

		declarations, _ := NewParser(body).parseDeclarations()
		sheet.Rules = append(sheet.Rules, Rule{
			Kind:         RuleStyle,
			Selectors:    ParseSelectorList(prelude),
			Body:         body,
			Declarations: declarations,
		})
	}
	return sheet
}

// ParseSelectorList parses a comma separated selector list. Entries that
// cannot be parsed are returned with Unparsed set and their text intact.
func ParseSelectorList(list string) []ComplexSelector {
	var out []ComplexSelector
	for _, part := range splitTopLevel(list, ',') {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}
		p := NewParser(text)
		complex, err := p.parseComplexSelector()
		if err != nil || len(complex.Selectors) == 0 {
			out = append(out, ComplexSelector{Text: text, Unparsed: true})
			continue
		}
		complex.Text = text
		out = append(out, complex)
	}
	return out
}

// splitTopLevel splits s on sep outside quotes, parentheses and brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '\\':
			i++
		case '"', '\'':
			for i++; i < len(s) && s[i] != ch; i++ {
				if s[i] == '\\' {
					i++
				}
			}
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// parseComplexSelector parses a sequence of simple selectors and combinators.
// The whole input must be consumed.
func (p *Parser) parseComplexSelector() (ComplexSelector, error) {
	var complexSelector ComplexSelector
	combinator := CombinatorNone

	for {
		p.consumeWhitespace()
		if p.eof() {
			break
		}

		simple, err := p.parseSimpleSelector()
		if err != nil {
			return ComplexSelector{}, err
		}
		complexSelector.Selectors = append(complexSelector.Selectors, SimpleSelectorWithCombinator{
			Combinator:     combinator,
			SimpleSelector: simple,
		})

		sawSpace := p.consumeWhitespace()
		if p.eof() {
			break
		}

		switch p.currentChar() {
		case '>':
			combinator = CombinatorChild
			p.consumeChar()
		case '+':
			combinator = CombinatorAdjacentSibling
			p.consumeChar()
		case '~':
			combinator = CombinatorGeneralSibling
			p.consumeChar()
		default:
			if !sawSpace {
				return ComplexSelector{}, fmt.Errorf("unexpected %q at offset %d", p.currentChar(), p.pos)
			}
			combinator = CombinatorDescendant
		}
		if p.consumeWhitespace(); p.eof() {
			return ComplexSelector{}, fmt.Errorf("dangling combinator")
		}
	}
	return complexSelector, nil
}

// parseSimpleSelector parses a single selector component (e.g., div#id.class1:hover).
func (p *Parser) parseSimpleSelector() (SimpleSelector, error) {
	selector := SimpleSelector{}

	// Universal or Tag Name
	if !p.eof() {
		ch := p.currentChar()
		if ch == '*' {
			p.consumeChar()
			selector.TagName = "*"
		} else if isValidIdentifierStart(ch) {
			selector.TagName = strings.ToLower(p.parseIdentifier())
		}
	}

	// IDs, Classes, Attributes and pseudo selectors
	for !p.eof() {
		switch p.currentChar() {
		case '#':
			p.consumeChar()
			id := p.parseIdentifier()
			if id == "" {
				return selector, fmt.Errorf("empty id selector")
			}
			selector.ID = id
		case '.':
			p.consumeChar()
			class := p.parseIdentifier()
			if class == "" {
				return selector, fmt.Errorf("empty class selector")
			}
			selector.Classes = append(selector.Classes, class)
		case '[':
			p.consumeChar() // consume '['
			attr, err := p.parseAttributeSelector()
			if err != nil {
				return selector, err
			}
			selector.Attributes = append(selector.Attributes, attr)
		case ':':
			pseudo, err := p.parsePseudo()
			if err != nil {
				return selector, err
			}
			selector.Pseudo = append(selector.Pseudo, pseudo)
		default:
			goto done
		}
	}

done:
	// A simple selector must have at least one part.
	if !selector.IsValid() {
		return selector, fmt.Errorf("invalid simple selector")
	}
	return selector, nil
}

// parsePseudo reads ":name", "::name" or ":name(args)" and returns it as written.
func (p *Parser) parsePseudo() (string, error) {
	start := p.pos
	p.consumeChar()
	if p.currentChar() == ':' {
		p.consumeChar()
	}
	if p.parseIdentifier() == "" {
		return "", fmt.Errorf("empty pseudo selector")
	}
	if p.currentChar() == '(' {
		p.consumeChar()
		if !p.skipBlock('(', ')') {
			return "", fmt.Errorf("unterminated pseudo selector arguments")
		}
	}
	return p.input[start:p.pos], nil
}

// parseAttributeSelector parses the contents of `[...]` for an attribute selector.
func (p *Parser) parseAttributeSelector() (AttributeSelector, error) {
	p.consumeWhitespace()
	name := p.parseIdentifier()
	p.consumeWhitespace()

	if name == "" {
		return AttributeSelector{}, fmt.Errorf("missing attribute name")
	}
	if p.eof() {
		return AttributeSelector{}, fmt.Errorf("unexpected EOF in attribute selector")
	}

	// If we hit ']', it's a presence selector like `[disabled]`.
	if p.currentChar() == ']' {
		p.consumeChar()
		return AttributeSelector{Name: strings.ToLower(name)}, nil
	}

	// Otherwise, we expect an operator.
	var operator strings.Builder
	switch ch := p.currentChar(); ch {
	case '=':
		operator.WriteByte(p.consumeChar())
	case '~', '|', '^', '$', '*':
		operator.WriteByte(p.consumeChar())
		if p.currentChar() != '=' {
			return AttributeSelector{}, fmt.Errorf("invalid attribute operator %q", ch)
		}
		operator.WriteByte(p.consumeChar())
	default:
		return AttributeSelector{}, fmt.Errorf("invalid attribute operator %q", ch)
	}

	p.consumeWhitespace()

	var value string
	if p.currentChar() == '"' || p.currentChar() == '\'' {
		quote := p.currentChar()
		p.consumeChar() // consume opening quote
		start := p.pos
		for !p.eof() && p.currentChar() != quote {
			p.pos++
		}
		value = p.input[start:p.pos]
		if p.eof() {
			return AttributeSelector{}, fmt.Errorf("unterminated attribute value")
		}
		p.consumeChar() // consume closing quote
	} else {
		value = p.parseIdentifier()
	}
	p.consumeWhitespace()

	// Case flags ([type="a" i]) change matching semantics we do not model.
	if p.eof() || p.currentChar() != ']' {
		return AttributeSelector{}, fmt.Errorf("expected ']' to close attribute selector")
	}
	p.consumeChar() // consume ']'

	return AttributeSelector{
		Name:     strings.ToLower(name),
		Operator: operator.String(),
		Value:    value,
	}, nil
}

// parseDeclarations parses the content within { ... }.
func (p *Parser) parseDeclarations() ([]Declaration, error) {
	p.consumeWhitespace()
	if p.eof() || p.currentChar() != '{' {
		return nil, fmt.Errorf("expected '{' at start of declarations")
	}
	p.consumeChar() // Consume '{'

	var declarations []Declaration
	for {
		p.consumeWhitespace()
		if p.eof() || p.currentChar() == '}' {
			break
		}

		if p.startsWith("/*") {
			p.skipComment()
			continue
		}

		property, value, important := p.parseDeclaration()
		if property != "" && value != "" {
			declarations = append(declarations, Declaration{
				Property:  Property(strings.ToLower(property)),
				Value:     Value(value),
				Important: important,
			})
		}
	}

	if !p.eof() && p.currentChar() == '}' {
		p.consumeChar() // Consume '}'
	}
	return declarations, nil
}

// parseDeclaration parses a single 'property: value;' pair.
func (p *Parser) parseDeclaration() (prop, val string, important bool) {
	// 1. Parse Property.
	if !isValidIdentifierStart(p.currentChar()) {
		p.skipDeclaration()
		return
	}
	prop = p.parseIdentifier()
	p.consumeWhitespace()

	// 2. Parse Colon.
	if p.eof() || p.currentChar() != ':' {
		p.skipDeclaration()
		return "", "", false
	}
	p.consumeChar()
	p.consumeWhitespace()

	// 3. Parse Value.
	val = p.parseValue()

	// 4. Handle !important.
	if strings.HasSuffix(strings.ToLower(val), "!important") {
		important = true
		val = strings.TrimSpace(val[:len(val)-len("!important")])
	}

	// 5. Consume optional semicolon.
	p.consumeWhitespace()
	if !p.eof() && p.currentChar() == ';' {
		p.consumeChar()
	}
	return
}

// skipDeclaration moves past a declaration that cannot be parsed, including
// a nested block if there is one.
func (p *Parser) skipDeclaration() {
	p.skipTo(';', '{', '}')
	switch {
	case p.eof():
	case p.currentChar() == ';':
		p.consumeChar()
	case p.currentChar() == '{':
		p.consumeChar()
		p.skipBlock('{', '}')
	}
}

// parseValue reads a CSS value until a delimiter.
func (p *Parser) parseValue() string {
	start := p.pos
	for !p.eof() {
		ch := p.currentChar()
		if ch == ';' || ch == '}' {
			break
		}
		if ch == '"' || ch == '\'' {
			p.skipQuotedString(ch)
			continue
		}
		if ch == '(' {
			p.consumeChar()
			p.skipBlock('(', ')')
			continue
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

// --- Lexer-like Helpers ---

func (p *Parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *Parser) currentChar() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) consumeChar() byte {
	ch := p.currentChar()
	if !p.eof() {
		p.pos++
	}
	return ch
}

func (p *Parser) consumeN(n int) {
	p.pos += n
	if p.pos > len(p.input) {
		p.pos = len(p.input)
	}
}

// consumeWhitespace reports whether anything was consumed.
func (p *Parser) consumeWhitespace() bool {
	start := p.pos
	for !p.eof() && isWhitespace(p.currentChar()) {
		p.pos++
	}
	return p.pos > start
}

func (p *Parser) startsWith(s string) bool {
	if p.pos+len(s) > len(p.input) {
		return false
	}
	return p.input[p.pos:p.pos+len(s)] == s
}

func (p *Parser) skipComment() {
	p.pos += 2
	endIndex := strings.Index(p.input[p.pos:], "*/")
	if endIndex == -1 {
		p.pos = len(p.input)
	} else {
		p.pos += endIndex + 2
	}
}

// skipTo advances to the first target byte outside quotes and comments.
func (p *Parser) skipTo(targets ...byte) {
	for !p.eof() {
		ch := p.currentChar()
		for _, target := range targets {
			if ch == target {
				return
			}
		}
		switch {
		case ch == '"' || ch == '\'':
			p.skipQuotedString(ch)
		case p.startsWith("/*"):
			p.skipComment()
		case ch == '\\':
			p.consumeN(2)
		default:
			p.pos++
		}
	}
}

// skipBlock consumes up to and including the close that balances an open
// already consumed. It reports false when the input ends first.
func (p *Parser) skipBlock(open, close byte) bool {
	depth := 1
	for !p.eof() {
		ch := p.currentChar()
		switch {
		case ch == '"' || ch == '\'':
			p.skipQuotedString(ch)
			continue
		case p.startsWith("/*"):
			p.skipComment()
			continue
		case ch == '\\':
			p.consumeN(2)
			continue
		}
		p.consumeChar()
		if ch == open {
			depth++
		} else if ch == close {
			depth--
			if depth == 0 {
				return true
			}
		}
	}
	return false
}

func (p *Parser) skipQuotedString(quote byte) {
	p.consumeChar() // Consume opening quote
	for !p.eof() {
		ch := p.consumeChar()
		if ch == '\\' {
			p.consumeChar() // Skip escaped character
		} else if ch == quote {
			return
		}
	}
}

// skipAtRule consumes an at-rule: up to ';' or through its balanced block.
func (p *Parser) skipAtRule() bool {
	p.consumeChar() // Consume '@'
	_ = p.parseIdentifier()
	p.skipTo('{', ';')
	if p.eof() {
		return false
	}
	if p.consumeChar() == ';' {
		return true
	}
	return p.skipBlock('{', '}')
}

func (p *Parser) parseIdentifier() string {
	start := p.pos
	for !p.eof() && isValidIdentifierChar(p.currentChar()) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func isValidIdentifierStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '-' || ch >= 0x80
}

func isValidIdentifierChar(ch byte) bool {
	return isValidIdentifierStart(ch) || (ch >= '0' && ch <= '9')
}
