package search

import (
	"context"
	"log/slog"
	"math"

	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/storage"
	"github.com/xrash/smetrics"
)

// DefaultThreshold is the score a name must exceed to count as mentioned.
const DefaultThreshold = 80

// Catalog lists the display names known to the knowledge base, in store order.
type Catalog []core.KnownName

// BuildCatalog collects the name and title fields of every record. Records
// with unparseable metadata contribute nothing.
func BuildCatalog(records []*core.Record, logger *slog.Logger) Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	var catalog Catalog
	for _, record := range records {
		md, err := record.ParsedMetadata()
		if err != nil {
			logger.Debug("skipping record without metadata", "id", record.Id, "err", err)
			continue
		}
		for _, field := range []string{"name", "title"} {
			if !md.Has(field) {
				continue
			}
			if name := md.Text(field); name != "" {
				catalog = append(catalog, core.KnownName{Name: name, RecordId: record.Id})
			}
		}
	}
	return catalog
}

// LoadCatalog builds the catalog from every record in repo.
func LoadCatalog(ctx context.Context, repo storage.RecordRepository, logger *slog.Logger) (Catalog, error) {
	records, err := repo.GetAllRecords(ctx)
	if err != nil {
		return nil, err
	}
	return BuildCatalog(records, logger), nil
}

// Names returns the display names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, known := range c {
		names[i] = known.Name
	}
	return names
}

// Lookup returns the first entry whose name equals name exactly.
func (c Catalog) Lookup(name string) (core.KnownName, bool) {
	for _, known := range c {
		if known.Name == name {
			return known, true
		}
	}
	return core.KnownName{}, false
}

// FuzzyMatcher finds the catalog name a query mentions.
type FuzzyMatcher struct {
	catalog   Catalog
	threshold int
}

// NewFuzzyMatcher creates a matcher that accepts scores strictly above threshold.
func NewFuzzyMatcher(catalog Catalog, threshold int) (*FuzzyMatcher, error) {
	if threshold < 0 || threshold > 100 {
		return nil, ErrInvalidThreshold
	}
	return &FuzzyMatcher{catalog: catalog, threshold: threshold}, nil
}

// Threshold returns the acceptance threshold.
func (m *FuzzyMatcher) Threshold() int {
	return m.threshold
}

// Best returns the highest scoring catalog name and its score. The first
// name wins ties. ok is false only for an empty catalog.
func (m *FuzzyMatcher) Best(query string) (name string, score int, ok bool) {
	score = -1
	for _, known := range m.catalog {
		s := TokenSetRatio(query, known.Name)
		if s > score {
			name, score = known.Name, s
		}
	}
	return name, score, score >= 0
}

// Match returns the catalog entry mentioned by query when the best score
// exceeds the threshold.
func (m *FuzzyMatcher) Match(query string) (core.KnownName, int, bool) {
	name, score, ok := m.Best(query)
	if !ok || score <= m.threshold {
		return core.KnownName{}, score, false
	}
	known, _ := m.catalog.Lookup(name)
	return known, score, true
}

// TokenSetRatio scores how similar two strings are on a 0..100 scale,
// ignoring word order and repeated words. When every word of one string
// appears in the other the score is 100.
func TokenSetRatio(a, b string) int {
	tokensA, tokensB := tokenSet(a), tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	intersection := make(map[string]struct{})
	onlyA := make(map[string]struct{})
	for word := range tokensA {
		if _, ok := tokensB[word]; ok {
			intersection[word] = struct{}{}
		} else {
			onlyA[word] = struct{}{}
		}
	}
	onlyB := make(map[string]struct{})
	for word := range tokensB {
		if _, ok := tokensA[word]; !ok {
			onlyB[word] = struct{}{}
		}
	}

	if len(intersection) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 100
	}

	diffAB, diffBA := sortedJoin(onlyA), sortedJoin(onlyB)
	sectLen := len(sortedJoin(intersection))

	// sect + " " + diff, or just diff when the intersection is empty
	sep := 0
	if sectLen > 0 {
		sep = 1
	}
	sectABLen := sectLen + sep + len(diffAB)
	sectBALen := sectLen + sep + len(diffBA)

	// The combined strings share the intersection as a prefix, so their
	// distance is that of the differences alone.
	best := indelRatio(smetrics.WagnerFischer(diffAB, diffBA, 1, 1, 2), sectABLen+sectBALen)
	if sectLen > 0 {
		best = max(best,
			indelRatio(sep+len(diffAB), sectLen+sectABLen),
			indelRatio(sep+len(diffBA), sectLen+sectBALen),
		)
	}
	return int(math.RoundToEven(best))
}

// indelRatio converts an insert/delete distance into a 0..100 similarity.
func indelRatio(distance, totalLen int) float64 {
	if totalLen == 0 {
		return 100
	}
	return 100 * (1 - float64(distance)/float64(totalLen))
}
