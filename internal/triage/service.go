package triage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/solace/internal/chat"
)

// Escalator fans an elevated appointment screening out to eligible staff.
// Implemented by escalate.Dispatcher.
type Escalator interface {
	EscalateAppointment(ctx context.Context, appt *chat.Appointment, a *Assessment) error
}

type eventKind int

const (
	evStart eventKind = iota
	evStudent
	evStaff
)

type convQueue struct {
	busy    bool
	pending []eventKind
}

// Service is the business boundary for triage operations: inbound message
// intake, conversation initialization, and appointment pre-screening.
//
// Events for one conversation are processed strictly one at a time. An
// event arriving while another is in flight (classification included) is
// deferred and replayed afterwards, never processed concurrently, so at
// most one classification is ever in flight per conversation.
type Service struct {
	store      chat.Store
	machine    *Machine
	classifier *Classifier
	escalator  Escalator
	logger     log.Logger

	mu     sync.Mutex
	queues map[string]*convQueue
}

// NewService creates a triage service.
func NewService(store chat.Store, machine *Machine, classifier *Classifier, escalator Escalator, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:      store,
		machine:    machine,
		classifier: classifier,
		escalator:  escalator,
		logger:     logger,
		queues:     make(map[string]*convQueue),
	}
}

// InitConversation ensures a session exists and runs the initialization
// step (welcome + first paced question). Safe to call more than once.
func (s *Service) InitConversation(ctx context.Context, conversationID, studentID, studentName string) error {
	if err := s.ensureSession(ctx, conversationID, studentID, studentName); err != nil {
		return err
	}
	return s.dispatch(ctx, conversationID, evStart)
}

// HandleMessage ingests one inbound message. Student messages advance the
// triage flow; the first staff message permanently halts it. The message
// is appended to history before the state machine sees the event.
func (s *Service) HandleMessage(ctx context.Context, conversationID string, sender chat.Sender, content string) error {
	if sender != chat.SenderStudent && sender != chat.SenderStaff {
		return fmt.Errorf("unsupported sender %q", sender)
	}

	if err := s.ensureSession(ctx, conversationID, "", ""); err != nil {
		return err
	}

	msg := &chat.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	ev := evStudent
	if sender == chat.SenderStaff {
		ev = evStaff
		// The halt must be visible to a classification already in
		// flight before this event waits its turn in the queue; the
		// write is first-write-wins, so replays are harmless.
		if err := s.store.MarkStaffReplied(ctx, conversationID); err != nil {
			return fmt.Errorf("mark staff replied: %w", err)
		}
	}
	return s.dispatch(ctx, conversationID, ev)
}

// GetConversation returns the session record and full ordered history.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*chat.Session, []chat.Message, bool, error) {
	sess, ok, err := s.store.GetSession(ctx, conversationID)
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, false, err
	}
	return sess, history, true, nil
}

// ScreenAppointment classifies a booking submission's free-text issue
// description, persists the appointment with its urgency, and fans
// elevated results out to staff. The appointment is returned even when
// escalation fails; in that case the error reports the failed fan-out.
func (s *Service) ScreenAppointment(ctx context.Context, studentName, contact, issueText string) (*chat.Appointment, error) {
	appt := &chat.Appointment{
		ID:          ulid.Make().String(),
		StudentName: studentName,
		Contact:     contact,
		IssueText:   issueText,
		CreatedAt:   time.Now(),
	}

	assessment := s.classifier.ClassifyText(ctx, issueText)

	urgency := UrgencyNormal
	if assessment != nil {
		urgency = assessment.UrgencyLevel
		appt.Summary = assessment.Summary
	}
	appt.UrgencyLevel = &urgency

	if err := s.store.PutAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("put appointment: %w", err)
	}

	s.logger.Info(ctx, "appointment screened",
		"appointment_id", appt.ID,
		"urgency", urgency,
		"assessed", assessment != nil,
	)

	if urgency >= UrgencyUrgent && s.escalator != nil {
		if err := s.escalator.EscalateAppointment(ctx, appt, assessment); err != nil {
			return appt, fmt.Errorf("escalate appointment: %w", err)
		}
	}
	return appt, nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id string) (*chat.Appointment, bool, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) ensureSession(ctx context.Context, conversationID, studentID, studentName string) error {
	_, ok, err := s.store.GetSession(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if ok {
		return nil
	}
	sess := &chat.Session{
		ID:          conversationID,
		StudentID:   studentID,
		StudentName: studentName,
		CreatedAt:   time.Now(),
	}
	if err := s.store.PutSession(ctx, sess); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// dispatch runs one event through the machine, serialized per
// conversation. If another event for the same conversation is in flight,
// the event is queued and replayed by the goroutine currently draining;
// errors from replayed events are logged, not returned, since their
// submitter has already been answered.
func (s *Service) dispatch(ctx context.Context, conversationID string, ev eventKind) error {
	s.mu.Lock()
	q := s.queues[conversationID]
	if q == nil {
		q = &convQueue{}
		s.queues[conversationID] = q
	}
	if q.busy {
		q.pending = append(q.pending, ev)
		s.mu.Unlock()
		return nil
	}
	q.busy = true
	s.mu.Unlock()

	err := s.process(ctx, conversationID, ev)

	for {
		s.mu.Lock()
		if len(q.pending) == 0 {
			// Drained; drop the entry so the map does not grow with
			// every conversation ever seen.
			delete(s.queues, conversationID)
			s.mu.Unlock()
			return err
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		s.mu.Unlock()

		if derr := s.process(ctx, conversationID, next); derr != nil {
			s.logger.Error(ctx, derr, "deferred event failed", "conversation_id", conversationID)
		}
	}
}

func (s *Service) process(ctx context.Context, conversationID string, ev eventKind) error {
	switch ev {
	case evStart:
		return s.machine.Start(ctx, conversationID)
	case evStudent:
		return s.machine.OnStudentMessage(ctx, conversationID)
	case evStaff:
		return s.machine.OnStaffMessage(ctx, conversationID)
	default:
		return fmt.Errorf("unknown event kind %d", ev)
	}
}
