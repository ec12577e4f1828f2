package chat

import "context"

// Store is the persistence contract for conversations, appointments, and the
// staff directory. Messages are append-only and read back in created_at
// order ascending.
type Store interface {
	// GetSession retrieves a conversation session record.
	GetSession(ctx context.Context, conversationID string) (*Session, bool, error)

	// PutSession inserts or replaces a session record.
	PutSession(ctx context.Context, s *Session) error

	// AppendMessage appends one message to a conversation's history.
	AppendMessage(ctx context.Context, m *Message) error

	// ListMessages returns the conversation's full history ordered by
	// created_at ascending.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	// MarkStaffReplied records the first staff reply time if none is set.
	// Later calls are no-ops; the first write wins.
	MarkStaffReplied(ctx context.Context, conversationID string) error

	// CompleteTriage writes urgencyLevel, summary, and the triageComplete
	// marker as a single unit.
	CompleteTriage(ctx context.Context, conversationID string, urgency int, summary string) error

	// PutAppointment inserts or replaces an appointment submission.
	PutAppointment(ctx context.Context, a *Appointment) error

	// GetAppointment retrieves an appointment by ID.
	GetAppointment(ctx context.Context, id string) (*Appointment, bool, error)

	// ListStaffByRole returns staff users holding any of the given roles.
	ListStaffByRole(ctx context.Context, roles ...Role) ([]StaffUser, error)
}
