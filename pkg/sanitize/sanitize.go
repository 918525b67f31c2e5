package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Text strips every HTML element and script from s and returns plain,
// trimmed text. Entities produced by the policy are unescaped again so
// the stored value is what the user typed.
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
}

// Texts applies Text to every element in place and returns the slice.
func Texts(values []string) []string {
	for i, v := range values {
		values[i] = Text(v)
	}
	return values
}
