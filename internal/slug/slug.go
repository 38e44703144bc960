package slug

import (
	"fmt"
	"strings"
	"unicode"
)

// Generate lowercases text, strips everything that is not a word character or
// a space, and joins the remaining words with dashes.
func Generate(text string) string {
	text = strings.ToLower(text)

	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ' ' {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), "-")
}

// MakeUnique appends -1, -2, ... to base until it no longer collides with
// existing.
func MakeUnique(base string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		taken[s] = struct{}{}
	}

	slug := base
	for counter := 1; ; counter++ {
		if _, ok := taken[slug]; !ok {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}
