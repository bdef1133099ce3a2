package minutes

import (
	"fmt"
	"strings"
)

// Canonical section headers of a minutes analysis.
const (
	HeaderDecisions = "Key Decisions Made"
	HeaderTopics    = "Critical Topics Discussed"
	HeaderActions   = "Action Items and Responsibilities"
)

// CanonicalHeaders lists the headers in the order sections are decomposed.
var CanonicalHeaders = []string{HeaderDecisions, HeaderTopics, HeaderActions}

const listMarker = "- "

// Subtopic is one bullet of the analysis.
type Subtopic struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Section string `json:"section"`
}

// Decomposition is the ordered subtopic list plus non-fatal warnings.
type Decomposition struct {
	Subtopics []Subtopic `json:"subtopics"`
	Warnings  []string   `json:"warnings,omitempty"`
}

// BySection returns the subtopics decomposed from header.
func (d Decomposition) BySection(header string) []Subtopic {
	var out []Subtopic
	for _, s := range d.Subtopics {
		if s.Section == header {
			out = append(out, s)
		}
	}
	return out
}

// Decompose splits analysis text into subtopics.
//
// Each header's body runs from just after its first occurrence to the start
// of the nearest following occurrence of any other header, or the end of
// text. Inside a body, a line starting with "- " opens a subtopic named by
// the text before the first colon; other non-empty lines are appended to
// the open subtopic with a single space. A missing header produces a
// warning and no subtopics for that section.
func Decompose(text string) Decomposition {
	d := Decomposition{Subtopics: []Subtopic{}}
	for _, header := range CanonicalHeaders {
		body, ok := sectionBody(text, header)
		if !ok {
			d.Warnings = append(d.Warnings, fmt.Sprintf("section header %q not found in analysis", header))
			continue
		}
		d.Subtopics = append(d.Subtopics, parseBody(body, header)...)
	}
	return d
}

func sectionBody(text, header string) (string, bool) {
	pos := strings.Index(text, header)
	if pos < 0 {
		return "", false
	}
	start := pos + len(header)
	end := len(text)
	for _, other := range CanonicalHeaders {
		if other == header {
			continue
		}
		if i := strings.Index(text[start:], other); i >= 0 && start+i < end {
			end = start + i
		}
	}

	body := text[start:end]
	if end < len(text) {
		body = dropHeaderPrefix(body)
	}
	return body, true
}

// dropHeaderPrefix removes the numbering or markup that precedes the next
// header on its own line, such as "2. **".
func dropHeaderPrefix(body string) string {
	i := strings.LastIndex(body, "\n")
	if i < 0 {
		return body
	}
	if strings.Trim(body[i+1:], " \t#*.)0123456789") == "" {
		return body[:i]
	}
	return body
}

func parseBody(body, header string) []Subtopic {
	var out []Subtopic
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, listMarker) {
			name, content, _ := strings.Cut(strings.TrimPrefix(line, listMarker), ":")
			out = append(out, Subtopic{
				Name:    strings.Trim(name, " \t*"),
				Content: strings.TrimSpace(strings.TrimLeft(content, "*")),
				Section: header,
			})
			continue
		}

		if len(out) == 0 {
			continue
		}
		last := &out[len(out)-1]
		if last.Content == "" {
			last.Content = line
		} else {
			last.Content += " " + line
		}
	}
	return out
}
