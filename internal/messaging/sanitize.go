package messaging

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// contentPolicy is the formatting allowlist shared with the ticket app's
// message editor. Anything else is stripped.
func contentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "strong", "em", "u", "ul", "ol", "li", "code", "pre")
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowStandardURLs()
	return p
}

// Policies are safe for concurrent use once built.
var (
	richPolicy  = contentPolicy()
	plainPolicy = bluemonday.StrictPolicy()
)

// Sanitize applies the content allowlist and trims surrounding whitespace.
// Only markup characters stay escaped in text; quotes come back as typed.
func Sanitize(content string) string {
	return strings.TrimSpace(unescapeQuotes(richPolicy.Sanitize(content)))
}

// unescapeQuotes reverts the quote entities bluemonday writes into text.
// Attribute values are double quoted, so &#39; is safe everywhere while
// &#34; is kept inside tags. A literal entity typed by the user arrives as
// &amp;#39; and is left alone.
func unescapeQuotes(s string) string {
	if !strings.Contains(s, "&#") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for i := 0; i < len(s); {
		switch c := s[i]; {
		case c == '<':
			inTag = true
		case c == '>':
			inTag = false
		case strings.HasPrefix(s[i:], "&#39;"):
			b.WriteByte('\'')
			i += len("&#39;")
			continue
		case !inTag && strings.HasPrefix(s[i:], "&#34;"):
			b.WriteByte('"')
			i += len("&#34;")
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// PlainText strips all markup, for channels that cannot render HTML.
func PlainText(content string) string {
	return strings.TrimSpace(html.UnescapeString(plainPolicy.Sanitize(content)))
}
