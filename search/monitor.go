package search

import (
	"github.com/poiesic/askit/core"
)

// SearchMonitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results.
type SearchMonitor interface {
	Start(question string)
	AfterExpansion(expanded string)
	PronounDetected(entity core.EntityContext)
	FuzzyMatched(name core.KnownName, score int)
	AfterVectorSearch(query string, matches []core.SimilarityMatch)
	AfterMerge(ids []string)
	ContextUpdated(previous, current core.EntityContext)
	Finish(results []*core.CandidateResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                       {}
func (n *noopMonitor) AfterExpansion(_ string)                              {}
func (n *noopMonitor) PronounDetected(_ core.EntityContext)                 {}
func (n *noopMonitor) FuzzyMatched(_ core.KnownName, _ int)                 {}
func (n *noopMonitor) AfterVectorSearch(_ string, _ []core.SimilarityMatch) {}
func (n *noopMonitor) AfterMerge(_ []string)                                {}
func (n *noopMonitor) ContextUpdated(_, _ core.EntityContext)               {}
func (n *noopMonitor) Finish(_ []*core.CandidateResult)                     {}
