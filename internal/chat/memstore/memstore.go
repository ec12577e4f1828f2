// Package memstore provides an in-memory implementation of chat.Store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/solace/internal/chat"
)

// Store holds conversations, appointments, and staff in memory. Suitable
// for dev/testing.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*chat.Session
	messages     map[string][]chat.Message // conversation ID -> history
	appointments map[string]*chat.Appointment
	staff        []chat.StaffUser
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		sessions:     make(map[string]*chat.Session),
		messages:     make(map[string][]chat.Message),
		appointments: make(map[string]*chat.Appointment),
	}
}

// SeedStaff replaces the staff directory. Test/dev helper.
func (s *Store) SeedStaff(users ...chat.StaffUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff = append([]chat.StaffUser(nil), users...)
}

// GetSession retrieves a session by conversation ID. Returns a copy.
func (s *Store) GetSession(_ context.Context, conversationID string) (*chat.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[conversationID]
	if !ok {
		return nil, false, nil
	}
	cp := *sess
	return &cp, true, nil
}

// PutSession stores a copy of the session.
func (s *Store) PutSession(_ context.Context, sess *chat.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// AppendMessage appends a copy of the message to the conversation history.
func (s *Store) AppendMessage(_ context.Context, m *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], *m)
	return nil
}

// ListMessages returns a copy of the history ordered by created_at ascending.
func (s *Store) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := append([]chat.Message(nil), s.messages[conversationID]...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})
	return history, nil
}

// MarkStaffReplied sets FirstStaffReplyAt once; later calls are no-ops.
func (s *Store) MarkStaffReplied(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[conversationID]
	if !ok {
		sess = &chat.Session{ID: conversationID, CreatedAt: time.Now()}
		s.sessions[conversationID] = sess
	}
	if sess.FirstStaffReplyAt == nil {
		now := time.Now()
		sess.FirstStaffReplyAt = &now
	}
	return nil
}

// CompleteTriage writes urgency, summary, and the completion marker together.
func (s *Store) CompleteTriage(_ context.Context, conversationID string, urgency int, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[conversationID]
	if !ok {
		sess = &chat.Session{ID: conversationID, CreatedAt: time.Now()}
		s.sessions[conversationID] = sess
	}
	u := urgency
	sess.UrgencyLevel = &u
	sess.Summary = summary
	sess.TriageComplete = true
	return nil
}

// PutAppointment stores a copy of the appointment.
func (s *Store) PutAppointment(_ context.Context, a *chat.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.appointments[a.ID] = &cp
	return nil
}

// GetAppointment retrieves an appointment by ID. Returns a copy.
func (s *Store) GetAppointment(_ context.Context, id string) (*chat.Appointment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, false, nil
	}
	cp := *a
	return &cp, true, nil
}

// ListStaffByRole returns staff users holding any of the given roles.
func (s *Store) ListStaffByRole(_ context.Context, roles ...chat.Role) ([]chat.StaffUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []chat.StaffUser
	for _, u := range s.staff {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}
