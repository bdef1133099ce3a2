package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Yates-Labs/auditor/internal/chatbot"
	"github.com/Yates-Labs/auditor/internal/minutes"
)

// Styling
var (
	headerColor   = lipgloss.Color("#F780FF") // Bright pink
	questionColor = lipgloss.Color("#8BE9FD") // Cyan
	answerColor   = lipgloss.Color("#E9E9F4") // Light purple/white
	contextColor  = lipgloss.Color("#6272A4") // Muted purple
	errorColor    = lipgloss.Color("#FF5555") // Red
	successColor  = lipgloss.Color("#50FA7B") // Green
	warningColor  = lipgloss.Color("#FFB86C") // Orange

	headerStyle   = lipgloss.NewStyle().Foreground(headerColor).Bold(true)
	questionStyle = lipgloss.NewStyle().Foreground(questionColor).Italic(true)
	answerStyle   = lipgloss.NewStyle().Foreground(answerColor)
	contextStyle  = lipgloss.NewStyle().Foreground(contextColor).Italic(true)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(successColor)
	warningStyle  = lipgloss.NewStyle().Foreground(warningColor)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(contextColor).
			Padding(0, 1)
)

var verdictStyles = map[minutes.Verdict]lipgloss.Style{
	minutes.VerdictNoConflict:       successStyle,
	minutes.VerdictConflict:         errorStyle,
	minutes.VerdictInsufficientInfo: warningStyle,
	minutes.VerdictIrrelevant:       contextStyle,
	minutes.VerdictUnknown:          contextStyle,
}

func renderQuestion(w io.Writer, question string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Question:"))
	fmt.Fprintln(w, questionStyle.Render(question))
	fmt.Fprintln(w)
}

// renderReply prints the assistant message, and with verbose the label and
// the retrieved-information panel.
func renderReply(w io.Writer, reply chatbot.Reply, verbose bool) {
	if verbose {
		fmt.Fprintln(w, contextStyle.Render("→ Classified as "+reply.Query.Label.String()))
	}

	fmt.Fprintln(w, headerStyle.Render("Answer:"))
	if reply.Err != "" {
		fmt.Fprintln(w, errorStyle.Render(reply.Message))
	} else {
		fmt.Fprintln(w, answerStyle.Render(strings.TrimSpace(reply.Message)))
	}
	fmt.Fprintln(w)

	if verbose && reply.Retrieved != "" {
		fmt.Fprintln(w, headerStyle.Render("Retrieved Information:"))
		fmt.Fprintln(w, panelStyle.Render(reply.Retrieved))
		fmt.Fprintln(w)
	}
}

// renderResult prints a minutes run: the analysis, one block per finding
// and, with verbose, the retrieved evidence and diagnostics.
func renderResult(w io.Writer, res *minutes.Result, verbose bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Meeting Minutes Analysis"))
	fmt.Fprintln(w, answerStyle.Render(res.Analysis))
	fmt.Fprintln(w)

	fmt.Fprintln(w, headerStyle.Render("Compliance Violations Report"))
	if len(res.Report.Findings) == 0 {
		fmt.Fprintln(w, contextStyle.Render("No subtopics were matched to reference documents."))
	}
	for i, f := range res.Report.Findings {
		style, ok := verdictStyles[f.Verdict]
		if !ok {
			style = contextStyle
		}
		fmt.Fprintf(w, "%s %s\n", questionStyle.Render(fmt.Sprintf("%d. %s", i+1, f.Subtopic.Name)), style.Render("["+string(f.Verdict)+"]"))
		fmt.Fprintln(w, contextStyle.Render("   "+strings.TrimSpace(f.Document)))
		if f.Error != "" {
			fmt.Fprintln(w, errorStyle.Render("   "+f.Error))
		}
		if f.Judgment != "" {
			fmt.Fprintln(w, panelStyle.Render(f.Judgment))
		}
		fmt.Fprintln(w)
	}

	counts := res.Report.Counts()
	verdicts := make([]string, 0, len(counts))
	for v := range counts {
		verdicts = append(verdicts, string(v))
	}
	sort.Strings(verdicts)
	summary := make([]string, 0, len(verdicts))
	for _, v := range verdicts {
		summary = append(summary, fmt.Sprintf("%s: %d", v, counts[minutes.Verdict(v)]))
	}
	if len(summary) > 0 {
		fmt.Fprintln(w, successStyle.Render("✓ "+strings.Join(summary, ", ")))
	}

	if verbose {
		fmt.Fprintln(w)
		fmt.Fprintln(w, contextStyle.Render(res.Report.EvidenceMarkdown()))
		for _, d := range res.Diagnostics {
			fmt.Fprintln(w, warningStyle.Render("! "+d))
		}
	}
}
