package ratelimit

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category classifies submissions for rate limiting purposes.
//
// See https://develop.sentry.dev/sdk/expected-features/rate-limiting/#definitions.
type Category string

const (
	CategoryAll        Category = "" // special category for empty categories (applies to all)
	CategoryError      Category = "error"
	CategoryUserReport Category = "user_report"
)

var knownCategories = map[Category]struct{}{
	CategoryAll:        {},
	CategoryError:      {},
	CategoryUserReport: {},
}

// String returns the category formatted for debugging.
func (c Category) String() string {
	if c == CategoryAll {
		return "CategoryAll"
	}
	caser := cases.Title(language.English)
	rv := "Category"
	for _, w := range strings.FieldsFunc(string(c), func(r rune) bool { return r == ' ' || r == '_' }) {
		rv += caser.String(w)
	}
	return rv
}
