package search

import (
	"strings"

	"github.com/poiesic/askit/core"
)

// DefaultPronouns are the words that refer back to the conversation's entity.
var DefaultPronouns = []string{
	"he", "she", "it", "they", "him", "her", "this",
	"his", "hers", "its", "their", "them",
}

// PronounResolver detects referential words in a query.
// The zero value uses DefaultPronouns.
type PronounResolver struct {
	pronouns []string
}

// NewPronounResolver creates a resolver for the given words.
// With no arguments it uses DefaultPronouns.
func NewPronounResolver(pronouns ...string) PronounResolver {
	words := make([]string, 0, len(pronouns))
	for _, p := range pronouns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			words = append(words, p)
		}
	}
	return PronounResolver{pronouns: words}
}

func (r PronounResolver) words() []string {
	if len(r.pronouns) == 0 {
		return DefaultPronouns
	}
	return r.pronouns
}

// HasPronoun reports whether query contains a pronoun as a whole word.
// Words are delimited by single spaces only, so "him?" does not count.
func (r PronounResolver) HasPronoun(query string) bool {
	padded := " " + strings.ToLower(query) + " "
	for _, p := range r.words() {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// Resolve returns the entity id to force into the results when query refers
// to a pronoun and the conversation has an entity.
func (r PronounResolver) Resolve(query string, entity core.EntityContext) (string, bool) {
	if entity.IsEmpty() || !r.HasPronoun(query) {
		return "", false
	}
	return entity.Id, true
}
