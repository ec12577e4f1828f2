// Package chat defines the conversation domain model shared by the triage
// engine, the escalation dispatcher, and the HTTP API: messages, sessions,
// appointment submissions, and the persistence contract over them.
package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	// SenderStudent is the student seeking support.
	SenderStudent Sender = "student"

	// SenderStaff is a human counselor or admin. The first staff message
	// in a conversation permanently halts automated triage.
	SenderStaff Sender = "staff"

	// SenderSystem is the automated assistant.
	SenderSystem Sender = "system"
)

// Metadata tags for messages emitted by the automated triage flow. The
// question tag is what makes the question index recoverable from history
// after a process restart; the UI uses the tags for styling.
const (
	MetaWelcome  = "solace.triage:welcome"
	MetaQuestion = "solace.triage:question"
	MetaClosing  = "solace.triage:closing"
	MetaNotice   = "solace.triage:notice"
)

// Message is a single entry in a conversation. Messages are append-only;
// they are never edited after being written.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	IsSystem       bool      `json:"is_system"`
	Metadata       string    `json:"metadata,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is the per-conversation record the triage engine reads and writes.
// UrgencyLevel is nil until triage completes with an assessment persisted.
type Session struct {
	ID                string     `json:"id"`
	StudentID         string     `json:"student_id,omitempty"`
	StudentName       string     `json:"student_name,omitempty"`
	TriageComplete    bool       `json:"triage_complete"`
	FirstStaffReplyAt *time.Time `json:"first_staff_reply_at,omitempty"`
	UrgencyLevel      *int       `json:"urgency_level,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Halted reports whether a staff member has replied, which irreversibly
// stops automated triage for the conversation.
func (s *Session) Halted() bool {
	return s.FirstStaffReplyAt != nil
}

// Appointment is a booking submission pre-screened for risk before any
// conversation exists. UrgencyLevel is nil until screening runs.
type Appointment struct {
	ID           string    `json:"id"`
	StudentName  string    `json:"student_name"`
	Contact      string    `json:"contact,omitempty"`
	IssueText    string    `json:"issue_text"`
	UrgencyLevel *int      `json:"urgency_level,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Role is a staff directory role.
type Role string

const (
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

// StaffUser is a directory entry eligible to receive escalation notifications.
type StaffUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}
