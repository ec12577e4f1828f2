package triage

import (
	"context"
	"sync"
	"time"
)

// Scheduler defers a task for a conversation. Tasks are "fire unless
// superseded": CancelConversation drops every pending task for that
// conversation, which the machine invokes on halt so no paced message is
// emitted after a staff member has replied.
type Scheduler interface {
	After(conversationID string, d time.Duration, task func(ctx context.Context))
	CancelConversation(conversationID string)
}

// TimerScheduler is the production Scheduler, backed by time.AfterFunc.
type TimerScheduler struct {
	mu      sync.Mutex
	stopped bool
	nextID  int
	pending map[string]map[int]*time.Timer // conversation ID -> task ID -> timer
}

// NewTimerScheduler initializes a TimerScheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{
		pending: make(map[string]map[int]*time.Timer),
	}
}

// After schedules task to run once after d. The task receives a background
// context: delayed emissions outlive the request that scheduled them.
func (s *TimerScheduler) After(conversationID string, d time.Duration, task func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.nextID++
	id := s.nextID

	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		tasks, ok := s.pending[conversationID]
		if ok {
			_, ok = tasks[id]
			delete(tasks, id)
			if len(tasks) == 0 {
				delete(s.pending, conversationID)
			}
		}
		s.mu.Unlock()

		// Cancelled between firing and lock acquisition: do not run.
		if !ok {
			return
		}
		task(context.Background())
	})

	if s.pending[conversationID] == nil {
		s.pending[conversationID] = make(map[int]*time.Timer)
	}
	s.pending[conversationID][id] = timer
}

// CancelConversation drops all pending tasks for a conversation.
func (s *TimerScheduler) CancelConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, timer := range s.pending[conversationID] {
		timer.Stop()
	}
	delete(s.pending, conversationID)
}

// Stop cancels every pending task and rejects new ones. Called on shutdown.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for _, tasks := range s.pending {
		for _, timer := range tasks {
			timer.Stop()
		}
	}
	s.pending = make(map[string]map[int]*time.Timer)
}
