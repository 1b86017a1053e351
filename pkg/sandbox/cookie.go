package sandbox

import "strings"

type cookiePair struct {
	name  string
	value string
}

// parseCookieString reads a Cookie header style string ("a=1; b=2").
func parseCookieString(raw string) []cookiePair {
	var out []cookiePair
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		out = upsertCookie(out, cookiePair{name: strings.TrimSpace(name), value: strings.TrimSpace(value)})
	}
	return out
}

func upsertCookie(jar []cookiePair, c cookiePair) []cookiePair {
	for i := range jar {
		if jar[i].name == c.name {
			jar[i].value = c.value
			return jar
		}
	}
	return append(jar, c)
}

// Cookie returns document.cookie.
func (w *Window) Cookie() string {
	w.cookieMu.Lock()
	defer w.cookieMu.Unlock()
	parts := make([]string, 0, len(w.cookies))
	for _, c := range w.cookies {
		if c.name == "" {
			parts = append(parts, c.value)
			continue
		}
		parts = append(parts, c.name+"="+c.value)
	}
	return strings.Join(parts, "; ")
}

// SetCookie behaves like assigning document.cookie: only the first
// name=value pair is stored, attributes such as Path or Max-Age are ignored.
func (w *Window) SetCookie(assignment string) {
	first, _, _ := strings.Cut(assignment, ";")
	first = strings.TrimSpace(first)
	if first == "" {
		return
	}
	name, value, _ := strings.Cut(first, "=")

	w.cookieMu.Lock()
	defer w.cookieMu.Unlock()
	w.cookies = upsertCookie(w.cookies, cookiePair{name: strings.TrimSpace(name), value: strings.TrimSpace(value)})
}
