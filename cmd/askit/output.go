package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/askit"
	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/search"
)

// answerer is the part of answer.Pipeline the REPL needs.
type answerer interface {
	Answer(ctx context.Context, session *search.Session, question string) (*core.Answer, error)
}

// runREPL answers one question per input line until EOF or "exit".
// All questions share session so pronouns carry over.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, pipeline answerer, session *search.Session) error {
	fmt.Fprintln(out, `Ask a question ("reset" forgets the conversation, "exit" quits).`)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "reset":
			session.Reset()
			fmt.Fprintln(out, "Conversation reset.")
			continue
		}

		answer, err := pipeline.Answer(ctx, session, question)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		writeAnswer(out, answer)
	}
}

func writeAnswer(out io.Writer, answer *core.Answer) {
	fmt.Fprintln(out, answer.Text)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sources:")
	for i, source := range answer.Sources {
		fmt.Fprintf(out, "  %d. %s%s [%s]\n", i+1, source.Id, label(source.Metadata), score(source.Score))
	}
}

func writeCandidates(out io.Writer, results []*core.CandidateResult) {
	fmt.Fprintf(out, "Found %d candidates\n", len(results))
	for i, r := range results {
		fmt.Fprintf(out, "%d: %s%s [%s]\n", i, r.Id, label(r.Metadata), score(r.Score))
		fmt.Fprintf(out, "   %s\n", r.Content)
	}
}

func writeStatus(out io.Writer, status *askit.Status) {
	fmt.Fprintf(out, "Backend: %s\n", status.Backend)
	fmt.Fprintf(out, "Records: %d\n", status.Records)
	if !status.IndexReady {
		fmt.Fprintln(out, "Index: not built")
		return
	}
	fmt.Fprintf(out, "Index: %d vectors, dimension %d\n", status.IndexedRecords, status.Dimension)
	if status.IndexedRecords != status.Records {
		fmt.Fprintln(out, "Index is stale; run 'askit index' to rebuild it.")
	}
}

func label(md core.Metadata) string {
	if name := md.First("name", "title"); name != "" {
		return fmt.Sprintf(" (%s)", name)
	}
	return ""
}

func score(s float32) string {
	if s == core.ForcedScore {
		return "forced"
	}
	return fmt.Sprintf("%0.3f", s)
}

// traceMonitor prints every retrieval stage.
type traceMonitor struct {
	out io.Writer
}

var _ search.SearchMonitor = (*traceMonitor)(nil)

func newTraceMonitor(out io.Writer) *traceMonitor {
	return &traceMonitor{out: out}
}

func (m *traceMonitor) Start(question string) {
	fmt.Fprintf(m.out, "question: %q\n", question)
}

func (m *traceMonitor) AfterExpansion(expanded string) {
	fmt.Fprintf(m.out, "expanded: %q\n", expanded)
}

func (m *traceMonitor) PronounDetected(entity core.EntityContext) {
	if entity.IsEmpty() {
		fmt.Fprintln(m.out, "pronoun: no conversation entity")
		return
	}
	fmt.Fprintf(m.out, "pronoun: refers to %s (%s)\n", entity.Id, entity.Name)
}

func (m *traceMonitor) FuzzyMatched(name core.KnownName, score int) {
	fmt.Fprintf(m.out, "mention: %q -> %s (score %d)\n", name.Name, name.RecordId, score)
}

func (m *traceMonitor) AfterVectorSearch(query string, matches []core.SimilarityMatch) {
	fmt.Fprintf(m.out, "vector query: %q, %d hits\n", query, len(matches))
	for _, match := range matches {
		fmt.Fprintf(m.out, "  %s %0.3f\n", match.RecordId, match.Score)
	}
}

func (m *traceMonitor) AfterMerge(ids []string) {
	fmt.Fprintf(m.out, "merged: %s\n", strings.Join(ids, ", "))
}

func (m *traceMonitor) ContextUpdated(previous, current core.EntityContext) {
	fmt.Fprintf(m.out, "context: %q -> %q\n", previous.Name, current.Name)
}

func (m *traceMonitor) Finish(results []*core.CandidateResult) {
	fmt.Fprintf(m.out, "results: %d\n\n", len(results))
}
