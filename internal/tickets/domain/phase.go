package domain

import "strings"

// Phase is the work phase encoded in a ticket subject.
type Phase string

const (
	PhaseP1         Phase = "P1"
	PhaseP2         Phase = "P2"
	PhaseP3         Phase = "P3"
	PhaseSiteSurvey Phase = "Site Survey"
	PhaseBilling    Phase = "Billing"
	PhaseRevisit    Phase = "Revisit"
	PhaseOther      Phase = "Other"
	PhaseUnknown    Phase = "Unknown"
)

// DetectPhase maps a subject line to its phase. Numbered phases win over
// keywords, matching how coordinators title multi-phase installs.
func DetectPhase(subject string) Phase {
	if strings.TrimSpace(subject) == "" {
		return PhaseUnknown
	}
	upper := strings.ToUpper(subject)
	switch {
	case strings.Contains(upper, "P1"):
		return PhaseP1
	case strings.Contains(upper, "P2"):
		return PhaseP2
	case strings.Contains(upper, "P3"):
		return PhaseP3
	case strings.Contains(upper, "SITE SURVEY"):
		return PhaseSiteSurvey
	case strings.Contains(upper, "BILLING"):
		return PhaseBilling
	case strings.Contains(upper, "REVISIT"):
		return PhaseRevisit
	default:
		return PhaseOther
	}
}
