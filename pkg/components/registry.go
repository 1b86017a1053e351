package components

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrInvalidTagName is returned for names that are not valid custom element names.
	ErrInvalidTagName = errors.New("invalid custom element name")
	// ErrAlreadyDefined is returned when a tag is defined twice.
	ErrAlreadyDefined = errors.New("custom element already defined")
)

// Names that match the custom element grammar but are reserved by SVG and MathML.
var reservedNames = map[string]bool{
	"annotation-xml":   true,
	"color-profile":    true,
	"font-face":        true,
	"font-face-src":    true,
	"font-face-uri":    true,
	"font-face-format": true,
	"font-face-name":   true,
	"missing-glyph":    true,
}

// ValidateTagName reports whether tag can name a custom element: it must start
// with a lower-case ascii letter, contain a hyphen, have no upper-case letters
// or whitespace, and not be one of the reserved names.
func ValidateTagName(tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTagName)
	}
	if tag[0] < 'a' || tag[0] > 'z' {
		return fmt.Errorf("%w: %q must start with a lower-case letter", ErrInvalidTagName, tag)
	}
	if !strings.Contains(tag, "-") {
		return fmt.Errorf("%w: %q must contain a hyphen", ErrInvalidTagName, tag)
	}
	for _, r := range tag {
		switch {
		case r >= 'A' && r <= 'Z':
			return fmt.Errorf("%w: %q must be lower-case", ErrInvalidTagName, tag)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '/' || r == '>' || r == '<':
			return fmt.Errorf("%w: %q contains %q", ErrInvalidTagName, tag, r)
		}
	}
	if reservedNames[tag] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidTagName, tag)
	}
	return nil
}

// Registry maps custom element tag names to their implementations.
// It is safe for concurrent use; one registry is typically shared by every render.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Define registers c under tag.
func (r *Registry) Define(tag string, c Component) error {
	if c == nil {
		return fmt.Errorf("define %q: nil component", tag)
	}
	if err := ValidateTagName(tag); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.components[tag]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyDefined, tag)
	}
	r.components[tag] = c
	return nil
}

// MustDefine is Define for package-level setup; it panics on error.
func (r *Registry) MustDefine(tag string, c Component) {
	if err := r.Define(tag, c); err != nil {
		panic(fmt.Sprintf("components: %v", err))
	}
}

// Lookup returns the component for tag. Lookup is case-insensitive, matching
// how the HTML parser lower-cases element names.
func (r *Registry) Lookup(tag string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[strings.ToLower(tag)]
	return c, ok
}

// Tags returns the defined tag names, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.components))
	for t := range r.components {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Len returns the number of defined components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}
