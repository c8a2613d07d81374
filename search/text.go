package search

import (
	"slices"
	"strings"
	"unicode"
)

// processString lowercases text, turns every character that is not a letter
// or digit into a space and trims the result.
func processString(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.TrimSpace(mapped)
}

// tokenSet returns the distinct whitespace-separated tokens of processed text.
func tokenSet(text string) map[string]struct{} {
	words := strings.Fields(processString(text))
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

// sortedJoin joins the set's tokens in lexical order.
func sortedJoin(set map[string]struct{}) string {
	words := make([]string, 0, len(set))
	for word := range set {
		words = append(words, word)
	}
	slices.Sort(words)
	return strings.Join(words, " ")
}
