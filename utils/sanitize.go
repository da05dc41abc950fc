package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Transaction descriptions are plain text shown in activity feeds. The strict
// policy drops every tag a calling module lets through; the unescape pass
// undoes the entity encoding it applies, since the result is stored and
// rendered as text, not HTML.
var stripMarkup = bluemonday.StrictPolicy()

// Sanitize reduces caller-supplied text to trimmed plain text.
func Sanitize(input string) string {
	return strings.TrimSpace(html.UnescapeString(stripMarkup.Sanitize(input)))
}
