package ingestion

import (
	"slices"
	"strings"

	"github.com/poiesic/askit/core"
)

// contentFields are the document fields that make up searchable content, in order.
var contentFields = []string{
	"title", "name", "question", "query",
	"description", "content", "text", "body",
	"answer", "response", "summary",
	"category", "tags", "keywords",
}

// PrepareContent flattens a document into searchable text. The known
// content fields are used when any of them has a value; otherwise every
// scalar field except "id" is, in key order.
func PrepareContent(doc core.Metadata) string {
	var parts []string
	for _, field := range contentFields {
		if !doc.Truthy(field) {
			continue
		}
		if list, ok := doc[field].([]any); ok {
			words := make([]string, len(list))
			for i, v := range list {
				words[i] = core.FormatValue(v)
			}
			parts = append(parts, strings.Join(words, " "))
			continue
		}
		parts = append(parts, doc.Text(field))
	}

	if len(parts) == 0 {
		keys := make([]string, 0, len(doc))
		for key := range doc {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			if key == "id" {
				continue
			}
			switch v := doc[key].(type) {
			case string:
				if v != "" {
					parts = append(parts, v)
				}
			case float64, bool:
				parts = append(parts, doc.Text(key))
			}
		}
	}

	return strings.TrimSpace(strings.Join(parts, " "))
}
