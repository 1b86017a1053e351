package serialize

import "strings"

// escapeText escapes text node content.
func escapeText(s string) string {
	if !strings.ContainsAny(s, "&<>\u00a0") {
		return s
	}
	var buf strings.Builder
	buf.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '\u00a0':
			buf.WriteString("&nbsp;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

// escapeAttr escapes a double-quoted attribute value.
func escapeAttr(s string) string {
	if !strings.ContainsAny(s, "&\"\u00a0") {
		return s
	}
	var buf strings.Builder
	buf.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '"':
			buf.WriteString("&quot;")
		case '\u00a0':
			buf.WriteString("&nbsp;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}

// canUnquote reports whether value can be written without quotes.
func canUnquote(value string) bool {
	if value == "" {
		return false
	}
	return !strings.ContainsAny(value, " \t\n\r\f\"'`=<>&\u00a0")
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f'
}

// collapseWhitespace replaces every run of html whitespace with one space.
func collapseWhitespace(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inSpace := false
	for i := 0; i < len(s); i++ {
		if isSpace(s[i]) {
			if !inSpace {
				buf.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		buf.WriteByte(s[i])
	}
	return buf.String()
}

func isWhitespaceOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isSpace(s[i]) {
			return false
		}
	}
	return true
}
