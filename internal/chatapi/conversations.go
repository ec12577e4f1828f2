package chatapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/solace/internal/chat"
)

type initTriageRequest struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
}

func (a *API) handleInitTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req initTriageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	if err := a.svc.InitConversation(r.Context(), id, req.StudentID, req.StudentName); err != nil {
		a.logger.Error(r.Context(), err, "failed to init triage", "conversation_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"conversation_id": id})
}

type messageRequest struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

func (a *API) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	sender := chat.Sender(strings.ToLower(strings.TrimSpace(req.Sender)))
	if sender != chat.SenderStudent && sender != chat.SenderStaff {
		http.Error(w, `{"error":"sender must be student or staff"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, `{"error":"content is required"}`, http.StatusBadRequest)
		return
	}

	if err := a.svc.HandleMessage(r.Context(), id, sender, req.Content); err != nil {
		a.logger.Error(r.Context(), err, "failed to handle message",
			"conversation_id", id, "sender", string(sender))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"conversation_id": id})
}
