package comps

import (
	"regexp"
	"strings"
)

// Phrases that mark a sold item as unusable for resale estimation (lots,
// empty boxes, parts) and get stripped from comp queries.
var junkPhrases = []string{
	"read description",
	"job lot",
	"joblot",
	"case only",
	"empty box",
	"box only",
	"spares repairs",
	"spares repair",
	"for parts",
}

var (
	punctRe      = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeQuery canonicalizes a comp query so equivalent listing titles map
// to the same stats cache entry: lowercase, punctuation stripped, junk
// phrases removed, whitespace collapsed.
func NormalizeQuery(query string) string {
	text := strings.ToLower(strings.ReplaceAll(query, "/", " "))
	text = punctRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	for _, phrase := range junkPhrases {
		text = strings.ReplaceAll(text, phrase, " ")
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
