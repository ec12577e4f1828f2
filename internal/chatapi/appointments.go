package chatapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/solace/internal/triage"
)

type appointmentRequest struct {
	StudentName string `json:"student_name"`
	Contact     string `json:"contact"`
	IssueText   string `json:"issue_text"`
}

func (a *API) handleSubmitAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.StudentName) == "" || strings.TrimSpace(req.IssueText) == "" {
		http.Error(w, `{"error":"student_name and issue_text are required"}`, http.StatusBadRequest)
		return
	}

	appt, err := a.svc.ScreenAppointment(r.Context(), req.StudentName, req.Contact, req.IssueText)
	if err != nil {
		// An appointment with a failed escalation fan-out is still booked;
		// only a persistence failure rejects the submission.
		if appt == nil {
			a.logger.Error(r.Context(), err, "failed to screen appointment")
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		a.logger.Error(r.Context(), err, "appointment escalation failed", "appointment_id", appt.ID)
	}

	escalated := appt.UrgencyLevel != nil && *appt.UrgencyLevel >= triage.UrgencyUrgent && err == nil
	writeJSON(w, http.StatusCreated, map[string]any{
		"appointment": appt,
		"escalated":   escalated,
	})
}

func (a *API) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	appt, ok, err := a.svc.GetAppointment(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get appointment", "appointment_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, appt)
}
