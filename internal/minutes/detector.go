package minutes

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Yates-Labs/auditor/internal/llm"
	"github.com/Yates-Labs/auditor/internal/rag"
	"github.com/Yates-Labs/auditor/internal/telemetry"
)

// Verdict is the compliance outcome for one subtopic and document.
type Verdict string

const (
	VerdictNoConflict       Verdict = "no_conflict"
	VerdictInsufficientInfo Verdict = "insufficient_info"
	VerdictConflict         Verdict = "conflict"
	VerdictIrrelevant       Verdict = "irrelevant"
	// VerdictUnknown marks a judgment whose text names no verdict.
	VerdictUnknown Verdict = "unknown"
)

var (
	verdictToken     = `(no[\s_-]*conflict|insufficient[\s_-]*info(?:rmation)?|conflict|irrelevant)`
	verdictLine      = regexp.MustCompile(`(?i)\bverdict\b[\s*:：-]*` + verdictToken + `\b`)
	verdictAnywhere  = regexp.MustCompile(`(?i)\b` + verdictToken + `\b`)
	verdictSeparator = regexp.MustCompile(`[\s_-]+`)
)

// ParseVerdict returns the verdict named on the "Verdict:" line, or failing
// that the first verdict named anywhere in text. Case, spaces and hyphens
// inside the verdict are ignored.
func ParseVerdict(text string) Verdict {
	m := verdictLine.FindStringSubmatch(text)
	if m == nil {
		m = verdictAnywhere.FindStringSubmatch(text)
	}
	if m == nil {
		return VerdictUnknown
	}
	v := verdictSeparator.ReplaceAllString(strings.ToLower(m[1]), "_")
	if v == "insufficient_information" {
		v = string(VerdictInsufficientInfo)
	}
	return Verdict(v)
}

const judgmentPrompt = `You are an AI assistant for the Bank of Thailand's auditor. Judge whether the meeting-minutes subtopic below complies with the reference document it was matched to, using only the retrieved regulation text.

Subtopic: %s
Content: %s
Matched Document: %s
Related Sections: %s

Retrieved Regulation Text:
%s

Choose exactly one verdict from: no_conflict, insufficient_info, conflict, irrelevant.
Begin your answer with "Verdict: <verdict>" and then explain your reasoning in Thai.
If the verdict is conflict, cite the related sections listed above that the subtopic violates.`

// Finding is the judgment of one (subtopic, document) pair.
type Finding struct {
	Subtopic        Subtopic  `json:"subtopic"`
	Document        string    `json:"document"`
	RelatedSections []string  `json:"related_sections,omitempty"`
	Evidence        []rag.Hit `json:"evidence"`
	Judgment        string    `json:"judgment"`
	Verdict         Verdict   `json:"verdict"`
	// Error is an inline diagnostic when retrieval or judgment failed.
	Error string `json:"error,omitempty"`
}

// Detector judges matched subtopics against scoped evidence.
type Detector struct {
	llm       llm.LLM
	retriever *rag.Retriever
	topN      int
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

// NewDetector creates a Detector retrieving topN chunks per pair.
func NewDetector(l llm.LLM, retriever *rag.Retriever, topN int, logger *zap.Logger, metrics *telemetry.Metrics) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{llm: l, retriever: retriever, topN: topN, logger: logger, metrics: metrics}
}

// Eligible reports whether an assignment reaches the detector.
func Eligible(a Assignment) bool {
	return strings.TrimSpace(a.Subtopic.Content) != "" && a.Matched()
}

// Detect produces one finding per matched document of every eligible
// assignment, in assignment order. Each subtopic is embedded once and the
// vector is reused for every matched document. Pairs are processed one at
// a time.
func (d *Detector) Detect(ctx context.Context, assignments []Assignment) []Finding {
	findings := []Finding{}
	for _, a := range assignments {
		if !Eligible(a) {
			continue
		}
		vector, err := d.retriever.EmbedQuery(ctx, a.Subtopic.Name+" "+a.Subtopic.Content)
		if err != nil {
			d.logger.Warn("subtopic embedding failed", zap.String("subtopic", a.Subtopic.Name), zap.Error(err))
		}
		for _, doc := range a.Documents {
			findings = append(findings, d.judge(ctx, a.Subtopic, doc, vector, err))
		}
	}
	return findings
}

func (d *Detector) judge(ctx context.Context, s Subtopic, doc string, vector []float32, embedErr error) Finding {
	start := time.Now()
	defer d.metrics.ObserveStage("judge", start)

	f := Finding{Subtopic: s, Document: doc, Evidence: []rag.Hit{}, Verdict: VerdictUnknown}
	logger := d.logger.With(zap.String("subtopic", s.Name), zap.String("document", doc))

	if document, err := d.retriever.Store().Document(ctx, doc); err != nil {
		logger.Warn("document attributes unavailable", zap.Error(err))
	} else if document != nil {
		f.RelatedSections = document.RelatedSections
	}

	if embedErr != nil {
		f.Error = fmt.Sprintf("Evidence retrieval failed: %v", embedErr)
		return f
	}
	hits, err := d.retriever.RetrieveVector(ctx, vector, rag.Query{
		Text:         s.Name + " " + s.Content,
		Index:        rag.IndexChunk,
		TopK:         d.topN,
		Document:     doc,
		ResolveLinks: true,
	})
	if err != nil {
		logger.Warn("evidence retrieval failed", zap.Error(err))
		f.Error = fmt.Sprintf("Evidence retrieval failed: %v", err)
		return f
	}
	f.Evidence = hits

	related := strings.Join(f.RelatedSections, ", ")
	if related == "" {
		related = "None"
	}
	out, err := d.llm.Generate(ctx, fmt.Sprintf(judgmentPrompt, s.Name, s.Content, strings.TrimSpace(doc), related, formatEvidence(hits)))
	if err != nil {
		logger.Warn("judgment failed", zap.Error(err))
		f.Error = fmt.Sprintf("Judgment failed: %v", err)
		return f
	}

	f.Judgment = strings.TrimSpace(out)
	f.Verdict = ParseVerdict(f.Judgment)
	logger.Info("pair judged", zap.String("verdict", string(f.Verdict)), zap.Int("evidence", len(hits)))
	return f
}

func formatEvidence(hits []rag.Hit) string {
	if len(hits) == 0 {
		return "No regulation text was retrieved."
	}
	entries := make([]string, 0, len(hits))
	for _, h := range hits {
		var prev, next string
		if h.Links.Previous != nil {
			prev = h.Links.Previous.Text
		}
		if h.Links.Next != nil {
			next = h.Links.Next.Text
		}
		entries = append(entries, fmt.Sprintf("Previous Chunk: %s\nChunk: %s\nNext Chunk: %s\nScore: %.4f", prev, h.Text, next, h.Score))
	}
	return strings.Join(entries, "\n\n")
}
