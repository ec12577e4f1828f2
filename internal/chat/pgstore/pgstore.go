// Package pgstore provides a PostgreSQL implementation of chat.Store.
package pgstore

import (
	_ "embed"
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/solace/internal/chat"
)

var tracer = otel.Tracer("github.com/linnemanlabs/solace/internal/chat/pgstore")

//go:embed schema.sql
var schema string

// Store persists conversations, appointments, and staff in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const sessionColumns = `id, student_id, student_name, triage_complete, first_staff_reply_at,
	urgency_level, summary, created_at`

// GetSession retrieves a session by conversation ID.
func (s *Store) GetSession(ctx context.Context, conversationID string) (*chat.Session, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetSession", "SELECT")
	defer span.End()

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	var sess chat.Session
	err := s.pool.QueryRow(ctx, query, conversationID).Scan(
		&sess.ID, &sess.StudentID, &sess.StudentName, &sess.TriageComplete,
		&sess.FirstStaffReplyAt, &sess.UrgencyLevel, &sess.Summary, &sess.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, spanErr(span, fmt.Errorf("scan session: %w", err))
	}
	return &sess, true, nil
}

// PutSession inserts or replaces a session record.
func (s *Store) PutSession(ctx context.Context, sess *chat.Session) error {
	ctx, span := startSpan(ctx, "pgstore.PutSession", "UPSERT")
	defer span.End()

	query := `INSERT INTO sessions (` + sessionColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	ON CONFLICT (id) DO UPDATE SET
		student_id           = EXCLUDED.student_id,
		student_name         = EXCLUDED.student_name,
		triage_complete      = EXCLUDED.triage_complete,
		first_staff_reply_at = EXCLUDED.first_staff_reply_at,
		urgency_level        = EXCLUDED.urgency_level,
		summary              = EXCLUDED.summary`

	_, err := s.pool.Exec(ctx, query,
		sess.ID, sess.StudentID, sess.StudentName, sess.TriageComplete,
		sess.FirstStaffReplyAt, sess.UrgencyLevel, sess.Summary, sess.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("upsert session: %w", err))
	}
	return nil
}

// AppendMessage appends one message to a conversation's history.
func (s *Store) AppendMessage(ctx context.Context, m *chat.Message) error {
	ctx, span := startSpan(ctx, "pgstore.AppendMessage", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender, content, is_system, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, string(m.Sender), m.Content, m.IsSystem, m.Metadata, m.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("insert message: %w", err))
	}
	return nil
}

// ListMessages returns the full history ordered by created_at ascending.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	ctx, span := startSpan(ctx, "pgstore.ListMessages", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, sender, content, is_system, metadata, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at, id`,
		conversationID,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query messages: %w", err))
	}
	defer rows.Close()

	var history []chat.Message
	for rows.Next() {
		var m chat.Message
		var sender string
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Content, &m.IsSystem, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan message: %w", err))
		}
		m.Sender = chat.Sender(sender)
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate messages: %w", err))
	}
	return history, nil
}

// MarkStaffReplied records the first staff reply time; the first write wins.
func (s *Store) MarkStaffReplied(ctx context.Context, conversationID string) error {
	ctx, span := startSpan(ctx, "pgstore.MarkStaffReplied", "UPSERT")
	defer span.End()

	query := `INSERT INTO sessions (id, first_staff_reply_at) VALUES ($1, now())
	ON CONFLICT (id) DO UPDATE SET first_staff_reply_at = now()
	WHERE sessions.first_staff_reply_at IS NULL`

	if _, err := s.pool.Exec(ctx, query, conversationID); err != nil {
		return spanErr(span, fmt.Errorf("mark staff replied: %w", err))
	}
	return nil
}

// CompleteTriage writes urgency, summary, and the completion marker as one
// statement, so a torn urgency write without the completion flag cannot
// be observed.
func (s *Store) CompleteTriage(ctx context.Context, conversationID string, urgency int, summary string) error {
	ctx, span := startSpan(ctx, "pgstore.CompleteTriage", "UPSERT")
	defer span.End()

	query := `INSERT INTO sessions (id, triage_complete, urgency_level, summary)
	VALUES ($1, TRUE, $2, $3)
	ON CONFLICT (id) DO UPDATE SET
		triage_complete = TRUE,
		urgency_level   = EXCLUDED.urgency_level,
		summary         = EXCLUDED.summary`

	if _, err := s.pool.Exec(ctx, query, conversationID, urgency, summary); err != nil {
		return spanErr(span, fmt.Errorf("complete triage: %w", err))
	}
	return nil
}

// PutAppointment inserts or replaces an appointment submission.
func (s *Store) PutAppointment(ctx context.Context, a *chat.Appointment) error {
	ctx, span := startSpan(ctx, "pgstore.PutAppointment", "UPSERT")
	defer span.End()

	query := `INSERT INTO appointments (id, student_name, contact, issue_text, urgency_level, summary, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (id) DO UPDATE SET
		student_name  = EXCLUDED.student_name,
		contact       = EXCLUDED.contact,
		issue_text    = EXCLUDED.issue_text,
		urgency_level = EXCLUDED.urgency_level,
		summary       = EXCLUDED.summary`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.StudentName, a.Contact, a.IssueText, a.UrgencyLevel, a.Summary, a.CreatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("upsert appointment: %w", err))
	}
	return nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Store) GetAppointment(ctx context.Context, id string) (*chat.Appointment, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetAppointment", "SELECT")
	defer span.End()

	var a chat.Appointment
	err := s.pool.QueryRow(ctx,
		`SELECT id, student_name, contact, issue_text, urgency_level, summary, created_at
		 FROM appointments WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.StudentName, &a.Contact, &a.IssueText, &a.UrgencyLevel, &a.Summary, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, spanErr(span, fmt.Errorf("scan appointment: %w", err))
	}
	return &a, true, nil
}

// ListStaffByRole returns staff users holding any of the given roles.
func (s *Store) ListStaffByRole(ctx context.Context, roles ...chat.Role) ([]chat.StaffUser, error) {
	ctx, span := startSpan(ctx, "pgstore.ListStaffByRole", "SELECT")
	defer span.End()

	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, role FROM staff_users WHERE role = ANY($1) ORDER BY id`,
		names,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("query staff: %w", err))
	}
	defer rows.Close()

	var staff []chat.StaffUser
	for rows.Next() {
		var u chat.StaffUser
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &role); err != nil {
			return nil, spanErr(span, fmt.Errorf("scan staff: %w", err))
		}
		u.Role = chat.Role(role)
		staff = append(staff, u)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("iterate staff: %w", err))
	}
	return staff, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
