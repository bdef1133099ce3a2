package minutes

import (
	"fmt"
	"strings"
	"time"
)

// Report is the ordered set of findings of one run.
type Report struct {
	Findings    []Finding `json:"findings"`
	Diagnostics []string  `json:"diagnostics,omitempty"`
}

// Assemble keeps findings in production order.
func Assemble(findings []Finding, diagnostics []string) Report {
	return Report{
		Findings:    append([]Finding{}, findings...),
		Diagnostics: append([]string(nil), diagnostics...),
	}
}

// Counts tallies findings by verdict.
func (r Report) Counts() map[Verdict]int {
	counts := make(map[Verdict]int)
	for _, f := range r.Findings {
		counts[f.Verdict]++
	}
	return counts
}

// ViolationsMarkdown renders one entry per finding, empty judgments included.
func (r Report) ViolationsMarkdown() string {
	var b strings.Builder
	b.WriteString("## Compliance Violations Report\n\n")
	if len(r.Findings) == 0 {
		b.WriteString("No subtopics were matched to reference documents.\n")
	}
	for i, f := range r.Findings {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, f.Subtopic.Name)
		fmt.Fprintf(&b, "- **Section:** %s\n", f.Subtopic.Section)
		fmt.Fprintf(&b, "- **Matched Document:** %s\n", strings.TrimSpace(f.Document))
		fmt.Fprintf(&b, "- **Verdict:** %s\n", f.Verdict)
		if len(f.RelatedSections) > 0 {
			fmt.Fprintf(&b, "- **Related Sections:** %s\n", strings.Join(f.RelatedSections, ", "))
		}
		if f.Error != "" {
			fmt.Fprintf(&b, "- **Error:** %s\n", f.Error)
		}
		fmt.Fprintf(&b, "\n**Judgment:**\n\n%s\n\n", f.Judgment)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// EvidenceMarkdown renders the retrieved chunks behind every finding.
func (r Report) EvidenceMarkdown() string {
	var b strings.Builder
	b.WriteString("## Retrieved Evidence\n\n")
	for i, f := range r.Findings {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, f.Subtopic.Name)
		fmt.Fprintf(&b, "- **Content:** %s\n", f.Subtopic.Content)
		fmt.Fprintf(&b, "- **Document:** %s\n\n", strings.TrimSpace(f.Document))
		if len(f.Evidence) == 0 {
			b.WriteString("_No evidence retrieved._\n\n")
			continue
		}
		for j, h := range f.Evidence {
			fmt.Fprintf(&b, "%d. (score %.4f) %s\n", j+1, h.Score, h.Text)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Markdown renders violations followed by evidence and diagnostics.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString(r.ViolationsMarkdown())
	b.WriteString("\n")
	b.WriteString(r.EvidenceMarkdown())
	if len(r.Diagnostics) > 0 {
		b.WriteString("\n## Diagnostics\n\n")
		for _, d := range r.Diagnostics {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	return b.String()
}

// Export renders the offline document: the analysis text followed by the
// violations report.
func Export(title, analysis string, r Report, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_Generated %s_\n\n", at.UTC().Format(time.RFC3339))
	b.WriteString("## Meeting Minutes Analysis\n\n")
	b.WriteString(strings.TrimSpace(analysis))
	b.WriteString("\n\n")
	b.WriteString(r.ViolationsMarkdown())
	return b.String()
}
