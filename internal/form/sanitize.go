package form

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// CleanText strips markup from free-text input. Entities produced by the
// sanitizer are decoded again so "Obstetrics & Gynecology" stays readable.
func CleanText(s string) string {
	if !strings.ContainsAny(s, "<>&") {
		return s
	}
	return html.UnescapeString(textPolicy.Sanitize(s))
}
