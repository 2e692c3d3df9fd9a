package model

import "time"

// NotificationEvent is the transient envelope produced by one triggering
// business action. It is never stored as-is; the dispatcher fans it out into
// one Notification row per recipient, all sharing CorrelationID.
type NotificationEvent struct {
	CorrelationID string            `json:"correlation_id"`
	Type          string            `json:"type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Payload       map[string]string `json:"payload,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	RelatedTaskID int               `json:"related_task_id,omitempty"`
	RelatedTeamID int               `json:"related_team_id,omitempty"`
}

// Notification is one durable per-recipient row. Content is immutable after
// creation; only IsRead changes.
type Notification struct {
	ID            int64             `json:"id"`
	OwnerUserID   int               `json:"owner_user_id"`
	Type          string            `json:"type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Payload       map[string]string `json:"payload,omitempty"`
	IsRead        bool              `json:"is_read"`
	CreatedAt     time.Time         `json:"created_at"`
	CorrelationID string            `json:"correlation_id"`
}

// Envelope is the compact push frame written to a pub/sub channel after the
// row it refers to has been persisted.
type Envelope struct {
	NotificationID int64             `json:"notification_id"`
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Payload        map[string]string `json:"payload,omitempty"`
	CorrelationID  string            `json:"correlation_id"`
}
