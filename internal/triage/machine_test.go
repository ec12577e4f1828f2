package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/solace/internal/chat"
	"github.com/linnemanlabs/solace/internal/chat/memstore"
)

// syncScheduler runs scheduled tasks immediately, making paced emission
// deterministic in tests. Cancels are recorded.
type syncScheduler struct {
	mu        sync.Mutex
	cancelled []string
}

func (s *syncScheduler) After(_ string, _ time.Duration, task func(ctx context.Context)) {
	task(context.Background())
}

func (s *syncScheduler) CancelConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, id)
}

func (s *syncScheduler) cancelCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, c := range s.cancelled {
		if c == id {
			n++
		}
	}
	return n
}

// flakyStore overrides selected chat.Store methods with injected failures.
type flakyStore struct {
	chat.Store
	completeErr error
}

func (f *flakyStore) CompleteTriage(ctx context.Context, id string, urgency int, summary string) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	return f.Store.CompleteTriage(ctx, id, urgency, summary)
}

func newTestMachine(provider Provider, profile *Profile) (*Machine, *memstore.Store, *syncScheduler) {
	store := memstore.New()
	sched := &syncScheduler{}
	classifier := NewClassifier(provider, profile, log.Nop(), Hooks{})
	m := NewMachine(store, classifier, sched, profile, log.Nop(), Hooks{})
	return m, store, sched
}

func seedSession(t *testing.T, store chat.Store, id string) {
	t.Helper()
	err := store.PutSession(context.Background(), &chat.Session{ID: id, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("PutSession: %v", err)
	}
}

func history(t *testing.T, store chat.Store, id string) []chat.Message {
	t.Helper()
	msgs, err := store.ListMessages(context.Background(), id)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	return msgs
}

func TestMachine_StartEmitsWelcomeAndFirstQuestion(t *testing.T) {
	t.Parallel()

	m, store, _ := newTestMachine(&mockProvider{}, testProfile())
	ctx := context.Background()
	seedSession(t, store, "c-start")

	if err := m.Start(ctx, "c-start"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	msgs := history(t, store, "c-start")
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 (welcome + first question)", len(msgs))
	}
	if msgs[0].Metadata != chat.MetaWelcome || msgs[0].Content != "welcome" {
		t.Errorf("first message = %q (%s), want welcome", msgs[0].Content, msgs[0].Metadata)
	}
	if msgs[1].Metadata != chat.MetaQuestion || msgs[1].Content != "q1" {
		t.Errorf("second message = %q (%s), want first question", msgs[1].Content, msgs[1].Metadata)
	}
	for _, msg := range msgs {
		if msg.Sender != chat.SenderSystem || !msg.IsSystem {
			t.Errorf("message %q not marked as system", msg.Content)
		}
	}
	if got := m.Phase("c-start"); got != PhaseQuestioning {
		t.Errorf("phase = %q, want %q", got, PhaseQuestioning)
	}
}

func TestMachine_StartIdempotent(t *testing.T) {
	t.Parallel()

	m, store, _ := newTestMachine(&mockProvider{}, testProfile())
	ctx := context.Background()
	seedSession(t, store, "c-idem")

	if err := m.Start(ctx, "c-idem"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := m.Start(ctx, "c-idem"); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if msgs := history(t, store, "c-idem"); len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 after repeated Start", len(msgs))
	}
}

func TestMachine_FullQuestionSequence(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		raws: []string{`{"urgencyLevel": 0, "suicideRisk": "none", "summary": "on"}`},
	}
	m, store, _ := newTestMachine(provider, testProfile())
	ctx := context.Background()
	seedSession(t, store, "c-flow")

	appendStudent := func(text string) {
		t.Helper()
		err := store.AppendMessage(ctx, &chat.Message{
			ID: text, ConversationID: "c-flow", Sender: chat.SenderStudent,
			Content: text, CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if err := m.OnStudentMessage(ctx, "c-flow"); err != nil {
			t.Fatalf("OnStudentMessage(%q): %v", text, err)
		}
	}

	// First student message opens the flow: welcome + question 1.
	appendStudent("em chao co")
	// Answers to questions 1 and 2 draw questions 2 and 3.
	appendStudent("tra loi 1")
	appendStudent("tra loi 2")
	// Answer to question 3 triggers analysis.
	appendStudent("tra loi 3")

	var system []chat.Message
	for _, msg := range history(t, store, "c-flow") {
		if msg.IsSystem {
			system = append(system, msg)
		}
	}

	wantContents := []string{"welcome", "q1", "q2", "q3", "closing"}
	if len(system) != len(wantContents) {
		t.Fatalf("system messages = %d, want %d", len(system), len(wantContents))
	}
	for i, want := range wantContents {
		if system[i].Content != want {
			t.Errorf("system[%d] = %q, want %q", i, system[i].Content, want)
		}
	}

	// Completed conversations are dropped from the in-memory map; the
	// outcome below lives on the session record.
	if got := m.Phase("c-flow"); got != PhaseNotStarted {
		t.Errorf("phase = %q, want %q after completion", got, PhaseNotStarted)
	}
	sess, _, err := store.GetSession(ctx, "c-flow")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !sess.TriageComplete {
		t.Error("expected TriageComplete")
	}
	if sess.UrgencyLevel == nil || *sess.UrgencyLevel != 0 {
		t.Errorf("UrgencyLevel = %v, want 0", sess.UrgencyLevel)
	}
	if sess.Summary != "on" {
		t.Errorf("Summary = %q, want %q", sess.Summary, "on")
	}
}

func TestMachine_CriticalUrgencyEmitsNotice(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		raws: []string{`{"urgencyLevel": 3, "suicideRisk": "high", "summary": "nguy cap"}`},
	}
	profile := testProfile()
	profile.Questions = nil // welcome only, next student message analyzes

	store := memstore.New()
	sched := &syncScheduler{}
	classifier := NewClassifier(provider, profile, log.Nop(), Hooks{})

	var (
		mu           sync.Mutex
		completed    []int
		noticeLevels []int
	)
	hooks := Hooks{
		OnCompletion:       func(urgency int, _ bool) { mu.Lock(); completed = append(completed, urgency); mu.Unlock() },
		OnEscalationNotice: func(level int) { mu.Lock(); noticeLevels = append(noticeLevels, level); mu.Unlock() },
	}
	m := NewMachine(store, classifier, sched, profile, log.Nop(), hooks)
	ctx := context.Background()
	seedSession(t, store, "c-crit")

	if err := m.Start(ctx, "c-crit"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.OnStudentMessage(ctx, "c-crit"); err != nil {
		t.Fatalf("OnStudentMessage: %v", err)
	}

	msgs := history(t, store, "c-crit")
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3 (welcome, closing, notice)", len(msgs))
	}
	if msgs[1].Metadata != chat.MetaClosing {
		t.Errorf("messages[1] metadata = %q, want closing", msgs[1].Metadata)
	}
	if msgs[2].Metadata != chat.MetaNotice || msgs[2].Content != "critical notice" {
		t.Errorf("messages[2] = %q (%s), want critical notice", msgs[2].Content, msgs[2].Metadata)
	}

	sess, _, _ := store.GetSession(ctx, "c-crit")
	if sess.UrgencyLevel == nil || *sess.UrgencyLevel != 3 {
		t.Errorf("UrgencyLevel = %v, want 3", sess.UrgencyLevel)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(completed) != 1 || completed[0] != 3 {
		t.Errorf("completion hook calls = %v, want [3]", completed)
	}
	if len(noticeLevels) != 1 || noticeLevels[0] != 3 {
		t.Errorf("notice hook calls = %v, want [3]", noticeLevels)
	}
}

func TestMachine_UrgentUrgencyUsesUrgentNotice(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		raws: []string{`{"urgencyLevel": 2, "suicideRisk": "low", "summary": "khan"}`},
	}
	profile := testProfile()
	profile.Questions = nil
	m, store, _ := newTestMachine(provider, profile)
	ctx := context.Background()
	seedSession(t, store, "c-urg")

	if err := m.Start(ctx, "c-urg"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.OnStudentMessage(ctx, "c-urg"); err != nil {
		t.Fatalf("OnStudentMessage: %v", err)
	}

	msgs := history(t, store, "c-urg")
	last := msgs[len(msgs)-1]
	if last.Metadata != chat.MetaNotice || last.Content != "urgent notice" {
		t.Errorf("last message = %q (%s), want urgent notice", last.Content, last.Metadata)
	}
}

func TestMachine_NormalUrgencyProducesNoNotice(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		raws: []string{`{"urgencyLevel": 1, "suicideRisk": "none", "summary": "theo doi them"}`},
	}
	profile := testProfile()
	profile.Questions = nil
	m, store, _ := newTestMachine(provider, profile)
	ctx := context.Background()
	seedSession(t, store, "c-norm")

	if err := m.Start(ctx, "c-norm"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.OnStudentMessage(ctx, "c-norm"); err != nil {
		t.Fatalf("OnStudentMessage: %v", err)
	}

	sess, _, _ := store.GetSession(ctx, "c-norm")
	if sess.UrgencyLevel == nil || *sess.UrgencyLevel != 1 {
		t.Errorf("UrgencyLevel = %v, want 1", sess.UrgencyLevel)
	}

	msgs := history(t, store, "c-norm")
	last := msgs[len(msgs)-1]
	if last.Metadata != chat.MetaClosing {
		t.Errorf("last message metadata = %q, want closing", last.Metadata)
	}
	for _, msg := range msgs {
		if msg.Metadata == chat.MetaNotice {
			t.Errorf("notice %q emitted at urgency below the escalation threshold", msg.Content)
		}
	}
}

func TestMachine_ClassifierFailureCompletesWithDefault(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{errs: []error{errors.New("backend down")}}
	profile := testProfile()
	profile.Questions = nil
	m, store, _ := newTestMachine(provider, profile)
	ctx := context.Background()
	seedSession(t, store, "c-fail")

	if err := m.Start(ctx, "c-fail"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.OnStudentMessage(ctx, "c-fail"); err != nil {
		t.Fatalf("OnStudentMessage: %v", err)
	}

	sess, _, _ := store.GetSession(ctx, "c-fail")
	if !sess.TriageComplete {
		t.Fatal("expected completion despite classifier failure")
	}
	if sess.UrgencyLevel == nil || *sess.UrgencyLevel != 0 {
		t.Errorf("UrgencyLevel = %v, want default 0", sess.UrgencyLevel)
	}
	if sess.Summary != "" {
		t.Errorf("Summary = %q, want empty on failed assessment", sess.Summary)
	}

	// The student still gets a graceful close; no notice at urgency 0.
	msgs := history(t, store, "c-fail")
	last := msgs[len(msgs)-1]
	if last.Metadata != chat.MetaClosing {
		t.Errorf("last message metadata = %q, want closing", last.Metadata)
	}
}

func TestMachine_StaffReplyHalts(t *testing.T) {
	t.Parallel()

	m, store, sched := newTestMachine(&mockProvider{}, testProfile())
	ctx := context.Background()
	seedSession(t, store, "c-halt")

	if err := m.Start(ctx, "c-halt"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.OnStaffMessage(ctx, "c-halt"); err != nil {
		t.Fatalf("OnStaffMessage: %v", err)
	}

	if got := m.Phase("c-halt"); got != PhaseNotStarted {
		t.Errorf("phase = %q, want %q (halted conversations are dropped)", got, PhaseNotStarted)
	}
	sess, _, _ := store.GetSession(ctx, "c-halt")
	if !sess.Halted() {
		t.Error("expected FirstStaffReplyAt to be set")
	}
	if sched.cancelCount("c-halt") != 1 {
		t.Errorf("cancel calls = %d, want 1", sched.cancelCount("c-halt"))
	}

	// Further student messages are ignored forever.
	before := len(history(t, store, "c-halt"))
	for range 3 {
		if err := m.OnStudentMessage(ctx, "c-halt"); err != nil {
			t.Fatalf("OnStudentMessage after halt: %v", err)
		}
	}
	if after := len(history(t, store, "c-halt")); after != before {
		t.Errorf("messages grew from %d to %d after halt", before, after)
	}
}

func TestMachine_SecondStaffReplyIsNoOp(t *testing.T) {
	t.Parallel()

	m, store, sched := newTestMachine(&mockProvider{}, testProfile())
	ctx := context.Background()
	seedSession(t, store, "c-halt2")

	if err := m.OnStaffMessage(ctx, "c-halt2"); err != nil {
		t.Fatalf("first OnStaffMessage: %v", err)
	}
	sess, _, _ := store.GetSession(ctx, "c-halt2")
	first := *sess.FirstStaffReplyAt

	time.Sleep(time.Millisecond)
	if err := m.OnStaffMessage(ctx, "c-halt2"); err != nil {
		t.Fatalf("second OnStaffMessage: %v", err)
	}
	sess, _, _ = store.GetSession(ctx, "c-halt2")
	if !sess.FirstStaffReplyAt.Equal(first) {
		t.Error("FirstStaffReplyAt changed on second staff reply")
	}
	if sched.cancelCount("c-halt2") != 1 {
		t.Errorf("cancel calls = %d, want 1 (halt is idempotent)", sched.cancelCount("c-halt2"))
	}
}

// haltingProvider marks the staff reply while classification is in flight.
type haltingProvider struct {
	store          chat.Store
	conversationID string
	raw            string
}

func (p *haltingProvider) Generate(ctx context.Context, _ *GenRequest) (string, error) {
	if err := p.store.MarkStaffReplied(ctx, p.conversationID); err != nil {
		return "", err
	}
	return p.raw, nil
}

func TestMachine_HaltDuringClassificationDiscardsResult(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	provider := &haltingProvider{
		store:          store,
		conversationID: "c-race",
		raw:            `{"urgencyLevel": 3, "suicideRisk": "high", "summary": "late"}`,
	}
	profile := testProfile()
	profile.Questions = nil
	sched := &syncScheduler{}
	classifier := NewClassifier(provider, profile, log.Nop(), Hooks{})
	m := NewMachine(store, classifier, sched, profile, log.Nop(), Hooks{})
	ctx := context.Background()
	seedSession(t, store, "c-race")

	if err := m.Start(ctx, "c-race"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.OnStudentMessage(ctx, "c-race"); err != nil {
		t.Fatalf("OnStudentMessage: %v", err)
	}

	sess, _, _ := store.GetSession(ctx, "c-race")
	if sess.TriageComplete {
		t.Error("triage completed despite staff reply during classification")
	}
	if sess.UrgencyLevel != nil {
		t.Errorf("UrgencyLevel = %v, want nil (result discarded)", sess.UrgencyLevel)
	}
	if !sess.Halted() {
		t.Error("expected session halted")
	}
	for _, msg := range history(t, store, "c-race") {
		if msg.Metadata == chat.MetaClosing || msg.Metadata == chat.MetaNotice {
			t.Errorf("emitted %q after halt", msg.Metadata)
		}
	}
}

func TestMachine_CompletionWriteFailurePropagates(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		raws: []string{
			`{"urgencyLevel": 1, "suicideRisk": "none", "summary": "a"}`,
			`{"urgencyLevel": 1, "suicideRisk": "none", "summary": "b"}`,
		},
	}
	profile := testProfile()
	profile.Questions = nil
	inner := memstore.New()
	store := &flakyStore{Store: inner, completeErr: errors.New("db down")}
	sched := &syncScheduler{}
	classifier := NewClassifier(provider, profile, log.Nop(), Hooks{})
	m := NewMachine(store, classifier, sched, profile, log.Nop(), Hooks{})
	ctx := context.Background()
	seedSession(t, inner, "c-dbfail")

	if err := m.Start(ctx, "c-dbfail"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.OnStudentMessage(ctx, "c-dbfail"); err == nil {
		t.Fatal("expected error when completion write fails")
	}

	sess, _, _ := inner.GetSession(ctx, "c-dbfail")
	if sess.TriageComplete {
		t.Error("session marked complete despite write failure")
	}
	for _, msg := range history(t, inner, "c-dbfail") {
		if msg.Metadata == chat.MetaClosing {
			t.Error("closing message emitted despite write failure")
		}
	}

	// The next student message retries analysis and succeeds.
	store.completeErr = nil
	if err := m.OnStudentMessage(ctx, "c-dbfail"); err != nil {
		t.Fatalf("retry OnStudentMessage: %v", err)
	}
	sess, _, _ = inner.GetSession(ctx, "c-dbfail")
	if !sess.TriageComplete {
		t.Error("expected completion on retry")
	}
}

func TestMachine_RecoverQuestionIndexFromHistory(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	ctx := context.Background()
	seedSession(t, store, "c-rec")

	// History as left behind by a previous process: welcome and two of the
	// three questions already asked, timestamped before any message the
	// recovered machine will emit now.
	now := time.Now().Add(-time.Minute)
	for i, m := range []struct{ content, meta string }{
		{"welcome", chat.MetaWelcome},
		{"q1", chat.MetaQuestion},
		{"tra loi 1", ""},
		{"q2", chat.MetaQuestion},
	} {
		sender := chat.SenderSystem
		isSystem := true
		if m.meta == "" {
			sender = chat.SenderStudent
			isSystem = false
		}
		err := store.AppendMessage(ctx, &chat.Message{
			ID: m.content, ConversationID: "c-rec", Sender: sender,
			Content: m.content, IsSystem: isSystem, Metadata: m.meta,
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	sched := &syncScheduler{}
	classifier := NewClassifier(&mockProvider{}, testProfile(), log.Nop(), Hooks{})
	m := NewMachine(store, classifier, sched, testProfile(), log.Nop(), Hooks{})

	if err := m.OnStudentMessage(ctx, "c-rec"); err != nil {
		t.Fatalf("OnStudentMessage: %v", err)
	}

	msgs := history(t, store, "c-rec")
	last := msgs[len(msgs)-1]
	if last.Content != "q3" || last.Metadata != chat.MetaQuestion {
		t.Errorf("recovered machine emitted %q (%s), want third question", last.Content, last.Metadata)
	}
}

func TestMachine_RecoverHaltedSession(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	ctx := context.Background()
	now := time.Now()
	err := store.PutSession(ctx, &chat.Session{
		ID: "c-rechalt", FirstStaffReplyAt: &now, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	m, _, _ := newTestMachine(&mockProvider{}, testProfile())
	m.store = store

	if err := m.Start(ctx, "c-rechalt"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.OnStudentMessage(ctx, "c-rechalt"); err != nil {
		t.Fatalf("OnStudentMessage: %v", err)
	}
	if msgs := history(t, store, "c-rechalt"); len(msgs) != 0 {
		t.Errorf("messages = %d, want 0 for a halted session", len(msgs))
	}
}

func TestMachine_RecoverCompletedSession(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	ctx := context.Background()
	seedSession(t, store, "c-reccomp")
	if err := store.CompleteTriage(ctx, "c-reccomp", 1, "done"); err != nil {
		t.Fatalf("CompleteTriage: %v", err)
	}

	m, _, _ := newTestMachine(&mockProvider{}, testProfile())
	m.store = store

	if err := m.OnStudentMessage(ctx, "c-reccomp"); err != nil {
		t.Fatalf("OnStudentMessage: %v", err)
	}
	if msgs := history(t, store, "c-reccomp"); len(msgs) != 0 {
		t.Errorf("messages = %d, want 0 for a completed session", len(msgs))
	}
}
