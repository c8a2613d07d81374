package answer

import (
	"log/slog"
	"strings"

	"github.com/poiesic/askit/core"
)

const (
	// NoResultsMessage answers a question nothing was retrieved for.
	NoResultsMessage = "I couldn't find any relevant information to answer your question. Please try rephrasing or ask something else."

	// NoSummaryMessage answers when the top record has no usable text.
	NoSummaryMessage = "I found some information but couldn't extract a clear summary."
)

// Synthesizer turns retrieved candidates into answer text using the
// metadata of the top candidate.
type Synthesizer struct {
	logger *slog.Logger
}

// NewSynthesizer creates a synthesizer. A nil logger uses slog.Default().
func NewSynthesizer(logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{logger: logger.With("component", "synthesizer")}
}

// Synthesize answers question from results, which must be ordered by relevance.
func (s *Synthesizer) Synthesize(question string, results []*core.CandidateResult) string {
	if len(results) == 0 {
		return NoResultsMessage
	}

	top := results[0]
	r, _ := match(strings.ToLower(question), top.Metadata)
	text := r.extract(top.Metadata)
	s.logger.Debug("answer synthesized", "intent", r.intent, "record", top.Id)
	if text == "" {
		return NoSummaryMessage
	}
	return text
}
