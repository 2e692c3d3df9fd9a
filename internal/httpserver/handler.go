package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mqcontracts "notification-service/contracts/mq"
	"notification-service/internal/model"
	"notification-service/internal/recipient"
	"notification-service/internal/service"
	"notification-service/internal/store"
)

// NotificationHandler serves the client-facing notification endpoints and the
// internal dispatch trigger.
type NotificationHandler struct {
	store      store.Store
	dispatcher *service.Dispatcher
	logger     *zap.Logger
}

func NewNotificationHandler(st store.Store, dispatcher *service.Dispatcher, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// List is the reconciliation fetch: the authoritative newest-first set plus
// the unread count.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetInt("user_id")

	notifications, unread, err := h.store.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list notifications",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"unread_count":  unread,
	})
}

type markReadRequest struct {
	ID  int64 `json:"id"`
	All bool  `json:"all"`
}

// MarkRead flips read state for one id, or for everything when all is set.
// Repeating a call is a no-op, not an error.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := c.GetInt("user_id")

	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var err error
	switch {
	case req.All:
		err = h.store.MarkAllRead(c.Request.Context(), userID)
	case req.ID > 0:
		err = h.store.MarkRead(c.Request.Context(), userID, req.ID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "id or all is required"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to update read state",
			zap.Int("user_id", userID),
			zap.Int64("notification_id", req.ID),
			zap.Bool("all", req.All),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update read state"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Notify is the in-process trigger used by dashboard code that has not moved
// to MQ yet. Same payload shape as the notify.requested event.
func (h *NotificationHandler) Notify(c *gin.Context) {
	var p mqcontracts.NotifyRequestedPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	event := model.NotificationEvent{
		CorrelationID: p.CorrelationID,
		Type:          p.Type,
		Title:         p.Title,
		Message:       p.Message,
		Payload:       p.Payload,
		CreatedAt:     p.CreatedAt,
		RelatedTaskID: p.RelatedTaskID,
		RelatedTeamID: p.Team.ID,
	}
	res, err := h.dispatcher.Dispatch(c.Request.Context(), event, recipient.Input{
		ActorID:   p.ActorID,
		TargetIDs: p.TargetIDs,
		Team: recipient.Team{
			ID:                   p.Team.ID,
			NotificationsEnabled: p.Team.NotificationsEnabled,
			NotifyAllMembers:     p.Team.NotifyAllMembers,
			MemberIDs:            p.Team.MemberIDs,
		},
	})
	if err != nil {
		// Only total persistence failure reaches here; partial failures are
		// reported in the body with a success status.
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"recipients":        res.Recipients,
		"persisted":         len(res.PersistedIDs),
		"failed_recipients": res.FailedRecipients,
		"duplicates":        res.Duplicates,
	})
}
