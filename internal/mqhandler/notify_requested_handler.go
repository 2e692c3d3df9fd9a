package mqhandler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	mqcontracts "notification-service/contracts/mq"
	"notification-service/internal/model"
	"notification-service/internal/recipient"
	"notification-service/internal/service"
	"notification-service/pkg/metrics"
	"notification-service/pkg/trace"
	"notification-service/pkg/util"
)

const (
	QueueName  = "notify.requested.q"
	RoutingKey = "notify.requested"

	// maxDispatchRetries bounds redeliveries of one message before it is
	// dead-lettered.
	maxDispatchRetries = 5
)

// DeadLetterPublisher parks messages that cannot be processed. *mq.Publisher
// satisfies it; nil means exhausted messages are dropped with a log line.
type DeadLetterPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// NotifyRequestedHandler consumes notify.requested events from the other
// dashboard services and feeds them to the dispatcher.
type NotifyRequestedHandler struct {
	dispatcher *service.Dispatcher
	deduper    *util.Deduper
	retries    *util.RetryCounter
	dlq        DeadLetterPublisher
	logger     *zap.Logger
}

// NewNotifyRequestedHandler creates the handler. deduper and retries may be
// nil; the store's unique index still guards against duplicate rows, the
// redis helpers only short-circuit redeliveries and bound retry loops.
func NewNotifyRequestedHandler(
	dispatcher *service.Dispatcher,
	deduper *util.Deduper,
	retries *util.RetryCounter,
	dlq DeadLetterPublisher,
	logger *zap.Logger,
) *NotifyRequestedHandler {
	return &NotifyRequestedHandler{
		dispatcher: dispatcher,
		deduper:    deduper,
		retries:    retries,
		dlq:        dlq,
		logger:     logger,
	}
}

func (h *NotifyRequestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	start := time.Now()

	var p mqcontracts.NotifyRequestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal NotifyRequestedPayload", zap.Error(err))
		// Redelivering a malformed payload cannot help.
		h.deadLetter(raw, "json_decode_error", err)
		return nil
	}

	ctx = trace.WithContext(ctx, p.CorrelationID)
	log := h.logger.With(
		zap.String("correlation_id", p.CorrelationID),
		zap.String("type", p.Type),
		zap.Int("actor_id", p.ActorID),
	)

	if h.deduper != nil && p.CorrelationID != "" {
		if !h.deduper.AcquireOnce(ctx, RoutingKey, p.CorrelationID) {
			return nil
		}
	}

	log.Info("Handling notify.requested event", zap.Int("team_id", p.Team.ID))

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
	res, err := h.dispatcher.Dispatch(ctx, event, recipient.Input{
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
		return h.handleDispatchError(ctx, log, raw, p.CorrelationID, err)
	}

	if h.retries != nil && p.CorrelationID != "" {
		h.retries.Reset(ctx, util.FormatRetryKey(QueueName, p.CorrelationID))
	}

	metrics.RecordMQConsumeLatency(RoutingKey, QueueName, time.Since(start))

	log.Info("notify.requested handled",
		zap.Int("recipients", len(res.Recipients)),
		zap.Int("persisted", len(res.PersistedIDs)),
		zap.Int("failed", len(res.FailedRecipients)),
	)
	return nil
}

// handleDispatchError decides between requeue (return the error, consumer
// nacks) and dead-lettering (return nil, consumer acks).
func (h *NotifyRequestedHandler) handleDispatchError(ctx context.Context, log *zap.Logger, raw json.RawMessage, correlationID string, err error) error {
	retryable, kind := util.IsRetryableError(err)
	if !retryable {
		log.Error("Dispatch failed with non-retryable error, dead-lettering",
			zap.String("error_kind", kind),
			zap.Error(err),
		)
		h.deadLetter(raw, kind, err)
		return nil
	}

	if h.retries != nil && correlationID != "" {
		key := util.FormatRetryKey(QueueName, correlationID)
		count, cerr := h.retries.IncrementAndGet(ctx, key)
		if cerr != nil {
			log.Warn("Retry counter unavailable", zap.Error(cerr))
		} else if count > maxDispatchRetries {
			log.Error("Retry budget exhausted, dead-lettering",
				zap.Int64("retries", count),
				zap.Error(err),
			)
			h.deadLetter(raw, "retry_exhausted", err)
			return nil
		}
	}

	log.Error("Dispatch failed, requeueing", zap.String("error_kind", kind), zap.Error(err))
	return err
}

func (h *NotifyRequestedHandler) deadLetter(raw json.RawMessage, reason string, cause error) {
	metrics.RecordDeadLetter(RoutingKey, reason)
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(RoutingKey, raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ",
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}
