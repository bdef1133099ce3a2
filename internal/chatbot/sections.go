package chatbot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/rag"
)

// SectionMarker introduces a law section citation.
const SectionMarker = "มาตรา"

const noValidSections = "No valid sections found in your query."

// Citations may use ASCII or Thai digits and any Unicode space after the
// marker.
var sectionPattern = regexp.MustCompile(SectionMarker + `[\s\p{Zs}]*([0-9\x{0E50}-\x{0E59}]+)`)

// ExtractSectionNumbers returns every cited section number in order of
// appearance, with Thai digits converted to ASCII. Repeated citations are
// kept.
func ExtractSectionNumbers(text string) []string {
	matches := sectionPattern.FindAllStringSubmatch(text, -1)
	numbers := make([]string, 0, len(matches))
	for _, m := range matches {
		numbers = append(numbers, asciiDigits(m[1]))
	}
	return numbers
}

func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '๐' && r <= '๙' {
			return '0' + (r - '๐')
		}
		return r
	}, s)
}

// SectionOutcome is the result of one exact lookup.
type SectionOutcome struct {
	Number   string        `json:"number"`
	Sections []rag.Section `json:"sections"`
	Error    string        `json:"error,omitempty"`
}

// SectionLookup holds one outcome per citation.
type SectionLookup struct {
	Outcomes []SectionOutcome `json:"outcomes"`
}

// Render formats the lookup as the assistant message.
func (s SectionLookup) Render() string {
	if len(s.Outcomes) == 0 {
		return noValidSections
	}

	parts := make([]string, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		switch {
		case o.Error != "":
			parts = append(parts, fmt.Sprintf("Error looking up Section %s: %s", o.Number, o.Error))
		case len(o.Sections) == 0:
			parts = append(parts, fmt.Sprintf("No exact match found for Section %s.", o.Number))
		default:
			found := make([]string, 0, len(o.Sections))
			for _, sec := range o.Sections {
				found = append(found, fmt.Sprintf("Section: %s (ID: %s)", sec.Text, sec.ID))
			}
			parts = append(parts, strings.Join(found, "\n\n"))
		}
	}
	return "Retrieved Information for Sections:\n" + strings.Join(parts, "\n\n")
}

// SectionExtractor resolves explicit section citations by exact lookup.
type SectionExtractor struct {
	store  rag.GraphStore
	logger *zap.Logger
}

// NewSectionExtractor creates a SectionExtractor over store.
func NewSectionExtractor(store rag.GraphStore, logger *zap.Logger) *SectionExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionExtractor{store: store, logger: logger}
}

// Lookup issues one lookup per cited number. A failed lookup is recorded
// on its outcome and the remaining numbers are still queried.
func (e *SectionExtractor) Lookup(ctx context.Context, text string) SectionLookup {
	numbers := ExtractSectionNumbers(text)
	lookup := SectionLookup{Outcomes: make([]SectionOutcome, 0, len(numbers))}

	for _, n := range numbers {
		out := SectionOutcome{Number: n}
		sections, err := e.store.SectionsByNumber(ctx, n)
		if err != nil {
			e.logger.Warn("section lookup failed", zap.String("section", n), zap.Error(err))
			out.Error = err.Error()
		} else {
			out.Sections = sections
		}
		lookup.Outcomes = append(lookup.Outcomes, out)
	}

	e.logger.Debug("section lookup complete", zap.Strings("numbers", numbers))
	return lookup
}
