// Package chatapi exposes the triage engine over HTTP: inbound message
// events from the chat frontend, conversation views for the counselor
// dashboard, and appointment pre-screening submissions.
package chatapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/solace/internal/chat"
)

// TriageService defines the business operations chatapi needs.
type TriageService interface {
	InitConversation(ctx context.Context, conversationID, studentID, studentName string) error
	HandleMessage(ctx context.Context, conversationID string, sender chat.Sender, content string) error
	GetConversation(ctx context.Context, conversationID string) (*chat.Session, []chat.Message, bool, error)
	ScreenAppointment(ctx context.Context, studentName, contact, issueText string) (*chat.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*chat.Appointment, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/conversations/{id}/triage", a.handleInitTriage)
		r.Post("/conversations/{id}/messages", a.handleMessage)
		r.Get("/conversations/{id}", a.handleGetConversation)
		r.Post("/appointments", a.handleSubmitAppointment)
		r.Get("/appointments/{id}", a.handleGetAppointment)
	})
}

// conversationView is the counselor-dashboard shape. AssessmentAvailable
// distinguishes a real urgency from the fail-safe default written when the
// backend was unavailable.
type conversationView struct {
	Session             *chat.Session  `json:"session"`
	Messages            []chat.Message `json:"messages"`
	AssessmentAvailable bool           `json:"assessment_available"`
}

func (a *API) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("solace.conversation.id", id))

	sess, history, ok, err := a.svc.GetConversation(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get conversation", "conversation_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, conversationView{
		Session:             sess,
		Messages:            history,
		AssessmentAvailable: assessmentAvailable(sess),
	})
}

// assessmentAvailable reports whether the persisted urgency came from a
// real assessment. A completion written on backend failure carries the
// default urgency with an empty summary.
func assessmentAvailable(sess *chat.Session) bool {
	return sess.TriageComplete && sess.Summary != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
