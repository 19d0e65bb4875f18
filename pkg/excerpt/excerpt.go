// Package excerpt renders short plain-text previews of cooked (HTML) post
// bodies for the moderation dashboard.
package excerpt

import (
	"regexp"
	"strings"
)

var (
	tagRe = regexp.MustCompile(`<[^>]*>`)
	wsRe  = regexp.MustCompile(`\s+`)
	// leadingLinkRe matches an anchor element sitting at the very start of
	// the cooked body (typically an onebox/quote backlink) which adds noise
	// to previews.
	leadingLinkRe = regexp.MustCompile(`(?s)^\s*<a\b[^>]*>.*?</a>`)
)

// Render converts cooked HTML into a single-line plain-text excerpt of at
// most maxLen runes. A link that is the first node of the body is dropped
// entirely; remaining tags are stripped and whitespace collapsed.
func Render(cooked string, maxLen int) string {
	text := leadingLinkRe.ReplaceAllString(cooked, "")
	text = tagRe.ReplaceAllString(text, " ")
	text = unescape(text)
	text = strings.TrimSpace(wsRe.ReplaceAllString(text, " "))
	return Truncate(text, maxLen)
}

// Truncate shortens s to at most maxLen runes, appending an ellipsis when
// anything was cut. maxLen <= 0 means no limit.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(runes[:maxLen])) + "…"
}

// unescape reverses the handful of entities the cooking pipeline emits.
func unescape(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return replacer.Replace(s)
}
