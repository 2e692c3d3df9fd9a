package mq

import "time"

// TeamInfo carries the team flags and membership the resolver needs. It is a
// snapshot taken by the publishing service; the notification service does not
// read team tables itself.
type TeamInfo struct {
	ID                   int   `json:"id"`
	NotificationsEnabled bool  `json:"notifications_enabled"`
	NotifyAllMembers     bool  `json:"notify_all_members"`
	MemberIDs            []int `json:"member_ids"`
}

// NotifyRequestedPayload is published by dashboard services (tasks, moderation,
// mentions) on routing key notify.requested whenever a business action should
// produce notifications.
type NotifyRequestedPayload struct {
	CorrelationID string            `json:"correlation_id"`
	Type          string            `json:"type"` // status_changed / mention / strike / ...
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Payload       map[string]string `json:"payload,omitempty"`
	ActorID       int               `json:"actor_id"`
	TargetIDs     []int             `json:"target_ids,omitempty"`
	Team          TeamInfo          `json:"team"`
	RelatedTaskID int               `json:"related_task_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// EmailRequestedPayload is emitted on routing key email.requested so the email
// collaborator can send its own copy. Best-effort: losing it never affects the
// durable notification rows.
type EmailRequestedPayload struct {
	CorrelationID string    `json:"correlation_id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	RecipientIDs  []int     `json:"recipient_ids"`
	CreatedAt     time.Time `json:"created_at"`
}
