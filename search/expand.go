package search

import "strings"

// abbreviations maps lowercase shorthand to the word it stands for.
var abbreviations = map[string]string{
	"info":  "information",
	"def":   "definition",
	"desc":  "description",
	"intro": "introduction",
}

// ExpandQuery replaces known abbreviations, matched case-insensitively on
// whole whitespace-separated tokens, and rejoins the tokens with single spaces.
// Nothing else about the query changes.
func ExpandQuery(query string) string {
	words := strings.Fields(query)
	for i, word := range words {
		if full, ok := abbreviations[strings.ToLower(word)]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}
