package domain

import (
	"regexp"
	"strings"
)

// NarrativeSections splits a Phase 1 answer into its four requested sections.
type NarrativeSections struct {
	Timeline      string `json:"timeline,omitempty"`
	Relationships string `json:"relationships,omitempty"`
	Anomalies     string `json:"anomalies,omitempty"`
	Summary       string `json:"summary,omitempty"`
}

var sectionHeading = regexp.MustCompile(`(?im)^[ \t#*]*(?:\d+\.)?[ \t*]*(timeline of events|relationship map|anomalies\s*/\s*issues|anomalies|summary)[ \t*]*(?::|$)[ \t*]*`)

// ParseNarrative extracts the sections by heading. Text before the first
// heading is ignored; missing sections stay empty. Returns nil when no
// heading is found.
func ParseNarrative(text string) *NarrativeSections {
	locs := sectionHeading.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	s := &NarrativeSections{}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(text[loc[1]:end])
		name := strings.ToLower(text[loc[2]:loc[3]])
		switch {
		case strings.HasPrefix(name, "timeline"):
			s.Timeline = body
		case strings.HasPrefix(name, "relationship"):
			s.Relationships = body
		case strings.HasPrefix(name, "anomalies"):
			s.Anomalies = body
		case name == "summary":
			s.Summary = body
		}
	}
	return s
}
