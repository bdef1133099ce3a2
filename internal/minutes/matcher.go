package minutes

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/llm"
	"github.com/Yates-Labs/auditor/internal/rag"
)

// NoMatch is the raw match value when no document could be assigned.
const NoMatch = "No Match"

// matchLabel is the answer cue in the matching prompt. Echoed lines that
// contain it are discarded when parsing.
const matchLabel = "Matched Document"

const matchPrompt = `You are an AI assistant for the Bank of Thailand's auditor. Match the meeting-minutes subtopic below to the most relevant Bank of Thailand reference documents.

Subtopic: %s
Content: %s

Candidate documents:
%s

Answer with one or more document names copied verbatim from the candidate list, separated by commas, and nothing else.
` + matchLabel + `:`

// Assignment links a subtopic to the documents it was matched to.
type Assignment struct {
	Subtopic Subtopic `json:"subtopic"`
	// Raw is the unparsed model answer, or NoMatch.
	Raw       string   `json:"raw"`
	Documents []string `json:"documents"`
}

// Matched reports whether at least one document was resolved.
func (a Assignment) Matched() bool {
	return len(a.Documents) > 0
}

// Matcher assigns subtopics to known documents with one completion call each.
type Matcher struct {
	llm    llm.LLM
	store  rag.GraphStore
	logger *zap.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(l llm.LLM, store rag.GraphStore, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{llm: l, store: store, logger: logger}
}

// Match reads the document list once and matches every subtopic in order.
// Failures are returned as diagnostics; the affected subtopics get NoMatch.
func (m *Matcher) Match(ctx context.Context, subtopics []Subtopic) ([]Assignment, []string) {
	assignments := make([]Assignment, 0, len(subtopics))
	var diagnostics []string

	names, err := m.store.DocumentNames(ctx)
	if err != nil {
		diagnostics = append(diagnostics, fmt.Sprintf("Failed to list reference documents: %v", err))
		names = nil
	}
	if err == nil && len(names) == 0 {
		diagnostics = append(diagnostics, "No reference documents are available for matching.")
	}

	candidates := "- " + strings.Join(names, "\n- ")
	for _, s := range subtopics {
		a := Assignment{Subtopic: s, Raw: NoMatch}
		if len(names) == 0 {
			assignments = append(assignments, a)
			continue
		}

		raw, err := m.llm.Generate(ctx, fmt.Sprintf(matchPrompt, s.Name, s.Content, candidates))
		if err != nil {
			m.logger.Warn("document matching failed", zap.String("subtopic", s.Name), zap.Error(err))
			diagnostics = append(diagnostics, fmt.Sprintf("Matching failed for subtopic %q: %v", s.Name, err))
			assignments = append(assignments, a)
			continue
		}

		a.Raw = strings.TrimSpace(raw)
		a.Documents = ResolveDocuments(a.Raw, names)
		m.logger.Debug("subtopic matched",
			zap.String("subtopic", s.Name),
			zap.Strings("documents", a.Documents),
		)
		assignments = append(assignments, a)
	}
	return assignments, diagnostics
}

// ResolveDocuments splits a raw match on commas and newlines, drops pieces
// that echo the answer cue and maps the rest onto candidates. A piece
// resolves to the candidate equal to it after trimming, or else to the
// longest candidate it contains. Results keep first-seen order without
// duplicates.
func ResolveDocuments(raw string, candidates []string) []string {
	pieces := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' })

	seen := make(map[string]bool)
	var out []string
	for _, p := range pieces {
		if strings.Contains(p, matchLabel) {
			continue
		}
		p = strings.Trim(strings.TrimSpace(p), "\"'`*- ")
		if p == "" || p == NoMatch {
			continue
		}
		if name, ok := resolveOne(p, candidates); ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func resolveOne(piece string, candidates []string) (string, bool) {
	for _, c := range candidates {
		if strings.TrimSpace(c) == piece {
			return c, true
		}
	}
	best := ""
	for _, c := range candidates {
		if tc := strings.TrimSpace(c); tc != "" && strings.Contains(piece, tc) && len(tc) > len(strings.TrimSpace(best)) {
			best = c
		}
	}
	return best, best != ""
}
