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

// State is the in-memory triage state for one conversation. Asked counts
// questions already emitted or scheduled; it is recovered from message
// history when the process restarts, so a question visible in history is
// never sent twice.
type State struct {
	Phase Phase
	Asked int
}

// Machine sequences the automated pre-counselor conversation for every
// active conversation: welcome, paced scripted questions, awaited
// classification, atomic completion write, closing message, and the
// delayed escalation notice. All mutation of a conversation's state goes
// through the Machine; the Service serializes events per conversation
// before they reach it.
type Machine struct {
	store      chat.Store
	classifier *Classifier
	scheduler  Scheduler
	profile    *Profile
	logger     log.Logger
	hooks      Hooks

	mu     sync.Mutex
	states map[string]*State // conversations with triage in progress
}

// NewMachine creates a triage state machine.
func NewMachine(store chat.Store, classifier *Classifier, scheduler Scheduler, profile *Profile, logger log.Logger, hooks Hooks) *Machine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Machine{
		store:      store,
		classifier: classifier,
		scheduler:  scheduler,
		profile:    profile,
		logger:     logger,
		hooks:      hooks,
		states:     make(map[string]*State),
	}
}

// Phase returns the in-memory phase for a conversation with triage in
// progress. PhaseNotStarted is returned for unknown conversations and
// for completed or halted ones, which are no longer tracked; their
// outcome lives on the session record.
func (m *Machine) Phase(conversationID string) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[conversationID]; ok {
		return st.Phase
	}
	return PhaseNotStarted
}

// Start runs the initialization step: emit the welcome message once and
// pace out the first scripted question. Idempotent; a conversation already
// past not_started (in memory or visible in history) is left untouched.
func (m *Machine) Start(ctx context.Context, conversationID string) error {
	st, sess, err := m.load(ctx, conversationID)
	if err != nil {
		return err
	}
	if m.observeHalt(ctx, conversationID, st, sess) {
		return nil
	}
	if st.Phase != PhaseNotStarted {
		return nil
	}
	return m.welcome(ctx, conversationID, st)
}

// OnStudentMessage advances the conversation in response to one new
// student message (already appended to history). The halt check runs
// before any phase decision. A persistence failure during completion is
// returned to the caller; classifier failures are absorbed with a default
// urgency of 0.
func (m *Machine) OnStudentMessage(ctx context.Context, conversationID string) error {
	st, sess, err := m.load(ctx, conversationID)
	if err != nil {
		return err
	}
	if m.observeHalt(ctx, conversationID, st, sess) {
		return nil
	}
	if st.Phase.Terminal() || st.Phase == PhaseAnalyzing {
		return nil
	}

	// First student message creates the conversation flow.
	if st.Phase == PhaseNotStarted {
		return m.welcome(ctx, conversationID, st)
	}

	if st.Asked < m.profile.QuestionCount() {
		m.scheduleQuestion(conversationID, st.Asked)
		st.Asked++
		st.Phase = PhaseQuestioning
		return nil
	}

	return m.analyze(ctx, conversationID, st)
}

// OnStaffMessage records the staff reply and halts the conversation.
// The state is loaded before the session write so a conversation not
// yet halted goes through the full halt transition, cancellation
// included; the write itself is first-write-wins.
func (m *Machine) OnStaffMessage(ctx context.Context, conversationID string) error {
	st, _, err := m.load(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := m.store.MarkStaffReplied(ctx, conversationID); err != nil {
		return fmt.Errorf("mark staff replied: %w", err)
	}
	m.halt(ctx, conversationID, st)
	return nil
}

func (m *Machine) welcome(ctx context.Context, conversationID string, st *State) error {
	if err := m.emit(ctx, conversationID, m.profile.WelcomeText, chat.MetaWelcome); err != nil {
		return err
	}
	st.Phase = PhaseWelcomed

	if m.profile.QuestionCount() > 0 {
		m.scheduleQuestion(conversationID, 0)
		st.Asked = 1
		st.Phase = PhaseQuestioning
	}
	return nil
}

// scheduleQuestion paces out question emission so the student does not
// receive two automated messages as one block. The session is re-read
// when the timer fires; cancellation on halt covers tasks that never
// get to fire.
func (m *Machine) scheduleQuestion(conversationID string, index int) {
	text := m.profile.Questions[index]
	m.scheduler.After(conversationID, m.profile.QuestionDelay, func(ctx context.Context) {
		sess, _, err := m.store.GetSession(ctx, conversationID)
		if err != nil {
			m.logger.Error(ctx, err, "get session before question", "conversation_id", conversationID)
			return
		}
		if sess == nil || sess.Halted() || sess.TriageComplete {
			return
		}
		if err := m.emit(ctx, conversationID, text, chat.MetaQuestion); err != nil {
			m.logger.Error(ctx, err, "emit scripted question", "conversation_id", conversationID, "question", index)
			return
		}
		m.hooks.question(index)
	})
}

// analyze runs the awaited classification and drives the conversation to
// complete. A nil assessment (backend failure or undecodable output)
// falls back to urgency 0 so the student still gets a graceful close.
func (m *Machine) analyze(ctx context.Context, conversationID string, st *State) error {
	st.Phase = PhaseAnalyzing

	history, err := m.store.ListMessages(ctx, conversationID)
	if err != nil {
		st.Phase = PhaseQuestioning
		return fmt.Errorf("list messages: %w", err)
	}

	var transcript []TranscriptEntry
	for _, msg := range history {
		if msg.Sender == chat.SenderStudent {
			transcript = append(transcript, TranscriptEntry{Speaker: "student", Text: msg.Content})
		}
	}

	assessment := m.classifier.ClassifyTranscript(ctx, transcript)

	// A staff member may have replied while classification was in
	// flight. The halt wins: discard the result, persist nothing.
	sess, _, err := m.store.GetSession(ctx, conversationID)
	if err != nil {
		st.Phase = PhaseQuestioning
		return fmt.Errorf("get session: %w", err)
	}
	if sess != nil && sess.Halted() {
		m.halt(ctx, conversationID, st)
		return nil
	}

	urgency := UrgencyNormal
	summary := ""
	assessed := assessment != nil
	if assessed {
		urgency = assessment.UrgencyLevel
		summary = assessment.Summary
	} else {
		m.logger.Warn(ctx, "assessment unavailable, completing with default urgency",
			"conversation_id", conversationID)
	}

	if err := m.store.CompleteTriage(ctx, conversationID, urgency, summary); err != nil {
		st.Phase = PhaseQuestioning
		return fmt.Errorf("complete triage: %w", err)
	}
	st.Phase = PhaseComplete
	m.hooks.completion(urgency, assessed)

	if err := m.emit(ctx, conversationID, m.profile.ClosingText, chat.MetaClosing); err != nil {
		m.logger.Error(ctx, err, "emit closing message", "conversation_id", conversationID)
	}

	if notice := m.profile.NoticeFor(urgency); notice != "" {
		m.scheduleNotice(conversationID, urgency, notice)
	}
	m.forget(conversationID)

	m.logger.Info(ctx, "triage complete",
		"conversation_id", conversationID,
		"urgency", urgency,
		"assessed", assessed,
	)
	return nil
}

// scheduleNotice emits the escalation notice behind the closing message.
// Unlike questions, the notice still fires for a completed conversation;
// only a halt suppresses it, checked against the session when the timer
// fires in case a staff reply raced the cancellation.
func (m *Machine) scheduleNotice(conversationID string, urgency int, notice string) {
	m.scheduler.After(conversationID, m.profile.EscalationDelay, func(ctx context.Context) {
		sess, _, err := m.store.GetSession(ctx, conversationID)
		if err != nil {
			m.logger.Error(ctx, err, "get session before notice", "conversation_id", conversationID)
			return
		}
		if sess == nil || sess.Halted() {
			return
		}
		if err := m.emit(ctx, conversationID, notice, chat.MetaNotice); err != nil {
			m.logger.Error(ctx, err, "emit escalation notice", "conversation_id", conversationID)
			return
		}
		m.hooks.escalationNotice(urgency)
	})
}

func (m *Machine) halt(ctx context.Context, conversationID string, st *State) {
	if st.Phase == PhaseHalted {
		return
	}
	st.Phase = PhaseHalted
	m.scheduler.CancelConversation(conversationID)
	m.forget(conversationID)
	m.hooks.halt()
	m.logger.Info(ctx, "triage halted by staff reply", "conversation_id", conversationID)
}

// forget drops the in-memory record of a conversation that reached a
// terminal phase; the session record is the source of truth from there,
// and load rebuilds a view of it if another event ever arrives.
func (m *Machine) forget(conversationID string) {
	m.mu.Lock()
	delete(m.states, conversationID)
	m.mu.Unlock()
}

// observeHalt applies a staff reply visible on the session record.
func (m *Machine) observeHalt(ctx context.Context, conversationID string, st *State, sess *chat.Session) bool {
	if sess != nil && sess.Halted() {
		m.halt(ctx, conversationID, st)
		return true
	}
	return st.Phase == PhaseHalted
}

func (m *Machine) emit(ctx context.Context, conversationID, content, metadata string) error {
	msg := &chat.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		Sender:         chat.SenderSystem,
		Content:        content,
		IsSystem:       true,
		Metadata:       metadata,
		CreatedAt:      time.Now(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append system message: %w", err)
	}
	return nil
}

// load returns the in-memory state for a conversation, recovering it from
// persisted history when the process has no record of the conversation
// (restart, or first event routed here).
func (m *Machine) load(ctx context.Context, conversationID string) (*State, *chat.Session, error) {
	sess, _, err := m.store.GetSession(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("get session: %w", err)
	}

	m.mu.Lock()
	if st, ok := m.states[conversationID]; ok {
		m.mu.Unlock()
		return st, sess, nil
	}
	m.mu.Unlock()

	st := &State{Phase: PhaseNotStarted}
	if err := m.recover(ctx, conversationID, st, sess); err != nil {
		return nil, nil, err
	}
	// Terminal conversations are not tracked; the recovered state is a
	// throwaway view and the map holds only triage still in progress.
	if !st.Phase.Terminal() {
		m.mu.Lock()
		m.states[conversationID] = st
		m.mu.Unlock()
	}
	return st, sess, nil
}

// recover rebuilds State from the session record and message history.
func (m *Machine) recover(ctx context.Context, conversationID string, st *State, sess *chat.Session) error {
	if sess != nil && sess.Halted() {
		st.Phase = PhaseHalted
		return nil
	}
	if sess != nil && sess.TriageComplete {
		st.Phase = PhaseComplete
		return nil
	}

	history, err := m.store.ListMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	welcomed := false
	for _, msg := range history {
		switch msg.Metadata {
		case chat.MetaWelcome:
			welcomed = true
		case chat.MetaQuestion:
			st.Asked++
		case chat.MetaClosing:
			st.Phase = PhaseComplete
			return nil
		}
	}

	switch {
	case st.Asked > 0:
		st.Phase = PhaseQuestioning
	case welcomed:
		st.Phase = PhaseWelcomed
	default:
		st.Phase = PhaseNotStarted
	}
	return nil
}
