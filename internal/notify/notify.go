// Package notify defines the notification sink contract used for staff
// escalation fan-out. Delivery is fire-and-forget per recipient.
package notify

import "context"

// Notification is one message for one recipient.
type Notification struct {
	RecipientID string         `json:"recipient_id"`
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Link        string         `json:"link,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Notifier delivers a notification to a single recipient.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}
