package triage

// Phase tracks where a conversation is in the automated triage lifecycle.
type Phase string

const (
	// PhaseNotStarted means no automated message has been sent yet.
	PhaseNotStarted Phase = "not_started"

	// PhaseWelcomed means the welcome message was sent.
	PhaseWelcomed Phase = "welcomed"

	// PhaseQuestioning means scripted questions are being asked.
	PhaseQuestioning Phase = "questioning"

	// PhaseAnalyzing means a classification is in flight.
	PhaseAnalyzing Phase = "analyzing"

	// PhaseComplete means triage finished and urgency was persisted.
	PhaseComplete Phase = "complete"

	// PhaseHalted means a staff member replied; no further automated
	// activity happens in this conversation.
	PhaseHalted Phase = "halted"
)

// Terminal reports whether no further automated transitions may occur.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseHalted
}

// Urgency ordinals. UrgencyUrgent is the escalation threshold.
const (
	UrgencyNormal    = 0
	UrgencyAttention = 1
	UrgencyUrgent    = 2
	UrgencyCritical  = 3
)

// SuicideRisk is the categorical self-harm assessment, separate from the
// general urgency ordinal.
type SuicideRisk string

const (
	SuicideRiskNone   SuicideRisk = "none"
	SuicideRiskLow    SuicideRisk = "low"
	SuicideRiskMedium SuicideRisk = "medium"
	SuicideRiskHigh   SuicideRisk = "high"
)

// Assessment is the structured result extracted from one classification
// call. Only UrgencyLevel and Summary are persisted long-term; the rest is
// recomputed on demand for counselor display.
type Assessment struct {
	UrgencyLevel         int         `json:"urgency_level"`
	SuicideRisk          SuicideRisk `json:"suicide_risk"`
	MainIssues           []string    `json:"main_issues"`
	RiskFactors          []string    `json:"risk_factors"`
	ProtectiveFactors    []string    `json:"protective_factors"`
	BehavioralIndicators []string    `json:"behavioral_indicators"`
	EmotionalState       string      `json:"emotional_state"`
	RecommendedApproach  string      `json:"recommended_approach"`
	Summary              string      `json:"summary"`
	PriorityNote         string      `json:"priority_note,omitempty"`
}

// TranscriptEntry is one speaker-labeled line of conversation fed to the
// classifier.
type TranscriptEntry struct {
	Speaker string
	Text    string
}
