// Package escalate translates elevated urgency into human-facing signals:
// one notification per eligible staff member for appointment submissions
// that screened at or above the urgent threshold.
package escalate

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/solace/internal/chat"
	"github.com/linnemanlabs/solace/internal/notify"
	"github.com/linnemanlabs/solace/internal/triage"
)

// NotificationCategory tags escalation notifications for the client app.
const NotificationCategory = "triage_escalation"

// Hooks decouples the dispatcher from metrics. Nil funcs are skipped.
type Hooks struct {
	OnNotify func(status string)
}

func (h Hooks) notify(status string) {
	if h.OnNotify != nil {
		h.OnNotify(status)
	}
}

// Dispatcher fans escalations out over the staff directory.
type Dispatcher struct {
	directory chat.Store
	notifier  notify.Notifier
	logger    log.Logger
	hooks     Hooks
}

// NewDispatcher creates an escalation dispatcher.
func NewDispatcher(directory chat.Store, notifier notify.Notifier, logger log.Logger, hooks Hooks) *Dispatcher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Dispatcher{
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		hooks:     hooks,
	}
}

// EscalateAppointment notifies every counselor and admin about an elevated
// appointment screening. A directory lookup failure aborts the fan-out and
// is returned to the caller; an individual delivery failure is logged and
// the remaining staff are still notified (best-effort, not atomic).
func (d *Dispatcher) EscalateAppointment(ctx context.Context, appt *chat.Appointment, a *triage.Assessment) error {
	staff, err := d.directory.ListStaffByRole(ctx, chat.RoleCounselor, chat.RoleAdmin)
	if err != nil {
		return fmt.Errorf("list staff: %w", err)
	}
	if len(staff) == 0 {
		d.logger.Warn(ctx, "no eligible staff for escalation", "appointment_id", appt.ID)
		return nil
	}

	urgency := triage.UrgencyNormal
	if appt.UrgencyLevel != nil {
		urgency = *appt.UrgencyLevel
	}

	n := &notify.Notification{
		Category: NotificationCategory,
		Title:    noticeTitle(urgency),
		Body:     noticeBody(appt, urgency),
		Link:     "/appointments/" + appt.ID,
		Payload: map[string]any{
			"appointment_id": appt.ID,
			"student_name":   appt.StudentName,
			"urgency_level":  urgency,
		},
	}
	if a != nil {
		n.Payload["suicide_risk"] = string(a.SuicideRisk)
	}

	var delivered int
	for _, user := range staff {
		per := *n
		per.RecipientID = user.ID
		if err := d.notifier.Notify(ctx, &per); err != nil {
			d.logger.Error(ctx, err, "escalation notification failed",
				"appointment_id", appt.ID, "recipient_id", user.ID)
			d.hooks.notify("failed")
			continue
		}
		delivered++
		d.hooks.notify("sent")
	}

	d.logger.Info(ctx, "appointment escalated",
		"appointment_id", appt.ID,
		"urgency", urgency,
		"staff", len(staff),
		"delivered", delivered,
	)
	return nil
}

func noticeTitle(urgency int) string {
	if urgency >= triage.UrgencyCritical {
		return "KHẨN CẤP: Yêu cầu tham vấn mức nguy cấp"
	}
	return "Ưu tiên: Yêu cầu tham vấn cần chú ý sớm"
}

func noticeBody(appt *chat.Appointment, urgency int) string {
	level := "khẩn (mức 2)"
	if urgency >= triage.UrgencyCritical {
		level = "nguy cấp (mức 3)"
	}
	return fmt.Sprintf("%s vừa gửi yêu cầu đặt lịch tham vấn được đánh giá ở mức %s. Vui lòng xem chi tiết và liên hệ sớm.",
		appt.StudentName, level)
}
