// Package sanitize strips markup from user-authored plain text.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Text removes every tag, unescapes entities, and trims surrounding space.
// Inner whitespace and newlines are kept.
func Text(s string) string {
	clean := policy.Sanitize(s)
	return strings.TrimSpace(html.UnescapeString(clean))
}

// IsBlank reports whether s has no visible content once sanitized.
func IsBlank(s string) bool {
	return Text(s) == ""
}
