package chatbot

import "strings"

// Label classifies a user question.
type Label int

const (
	// LabelGeneral is the fallback for anything not recognised.
	LabelGeneral Label = iota
	LabelExactSection
	LabelLaw
	LabelAnnouncement
)

var labelNames = map[Label]string{
	LabelGeneral:      "general_question",
	LabelExactSection: "exact_section_query",
	LabelLaw:          "law_query",
	LabelAnnouncement: "announcement_query",
}

// String returns the wire name of the label.
func (l Label) String() string {
	if s, ok := labelNames[l]; ok {
		return s
	}
	return labelNames[LabelGeneral]
}

// MarshalText encodes the label by name.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ParseLabel maps classifier output to a Label. Surrounding whitespace,
// quotes, backticks and a trailing period are ignored. Unknown text reports
// false.
func ParseLabel(raw string) (Label, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, ".")
	s = strings.Trim(s, " \t\r\n'\"`")
	for l, name := range labelNames {
		if s == name {
			return l, true
		}
	}
	return LabelGeneral, false
}

// Query is a classified user question.
type Query struct {
	Text  string `json:"text"`
	Label Label  `json:"label"`
}
