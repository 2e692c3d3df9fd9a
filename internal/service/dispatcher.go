package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	mqcontracts "notification-service/contracts/mq"
	"notification-service/internal/model"
	"notification-service/internal/pubsub"
	"notification-service/internal/recipient"
	"notification-service/internal/store"
	"notification-service/pkg/metrics"
)

// EmailPublisher is the outbound MQ hook for the email collaborator.
// *mq.Publisher satisfies it; nil disables the hook.
type EmailPublisher interface {
	Publish(routingKey string, payload any) error
}

// Result reports the per-recipient outcome of one dispatch.
type Result struct {
	Recipients       []int
	PersistedIDs     map[int]int64
	FailedRecipients []int
	Duplicates       []int
}

type publishJob struct {
	envelope    model.Envelope
	userChannel string
	teamChannel string
}

const publishQueueSize = 256

// Dispatcher turns one business event into durable per-recipient rows, then
// hands the push fan-out to an async worker so publish latency and failures
// never reach the triggering request.
type Dispatcher struct {
	store    store.Store
	broker   pubsub.Broker
	resolver *recipient.Resolver
	emails   EmailPublisher
	logger   *zap.Logger

	queue chan publishJob
	done  chan struct{}
	wg    sync.WaitGroup
}

func NewDispatcher(
	st store.Store,
	broker pubsub.Broker,
	resolver *recipient.Resolver,
	emails EmailPublisher,
	logger *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		broker:   broker,
		resolver: resolver,
		emails:   emails,
		logger:   logger,
		queue:    make(chan publishJob, publishQueueSize),
		done:     make(chan struct{}),
	}

	// A single worker keeps per-recipient channel order equal to issuance order.
	d.wg.Add(1)
	go d.runPublishWorker()

	return d
}

// Dispatch resolves recipients, persists one row per recipient with isolated
// failures, and enqueues a push envelope for every row that was written.
// It returns an error only when every recipient write failed; everything
// downstream of one successful write is best-effort.
func (d *Dispatcher) Dispatch(ctx context.Context, event model.NotificationEvent, in recipient.Input) (Result, error) {
	start := time.Now()

	event.CorrelationID = d.resolver.ValidateCorrelationID(event.CorrelationID)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	res := Result{
		Recipients:   d.resolver.Resolve(in),
		PersistedIDs: make(map[int]int64),
	}
	if len(res.Recipients) == 0 {
		d.logger.Debug("Event resolved to no recipients",
			zap.String("correlation_id", event.CorrelationID),
			zap.String("type", event.Type),
		)
		return res, nil
	}

	teamChannel := ""
	if event.RelatedTeamID != 0 {
		teamChannel = pubsub.TeamChannel(event.RelatedTeamID)
	}

	var lastWriteErr error
	for _, userID := range res.Recipients {
		n := &model.Notification{
			OwnerUserID:   userID,
			Type:          event.Type,
			Title:         event.Title,
			Message:       event.Message,
			Payload:       event.Payload,
			CreatedAt:     event.CreatedAt,
			CorrelationID: event.CorrelationID,
		}

		id, err := d.store.Create(ctx, n)
		if errors.Is(err, store.ErrDuplicate) {
			// Already persisted by an earlier delivery of the same event; the
			// recipient was pushed then, so no new envelope is issued.
			res.Duplicates = append(res.Duplicates, userID)
			metrics.NotificationsPersisted.WithLabelValues("duplicate").Inc()
			continue
		}
		if err != nil {
			// Isolated: one bad write never blocks the remaining recipients.
			d.logger.Error("Recipient write failed",
				zap.Int("owner_user_id", userID),
				zap.String("correlation_id", event.CorrelationID),
				zap.Error(err),
			)
			res.FailedRecipients = append(res.FailedRecipients, userID)
			lastWriteErr = err
			metrics.NotificationsPersisted.WithLabelValues("failed").Inc()
			continue
		}

		res.PersistedIDs[userID] = id
		metrics.NotificationsPersisted.WithLabelValues("created").Inc()

		d.enqueue(publishJob{
			envelope: model.Envelope{
				NotificationID: id,
				Type:           event.Type,
				Title:          event.Title,
				Message:        event.Message,
				Payload:        event.Payload,
				CorrelationID:  event.CorrelationID,
			},
			userChannel: pubsub.UserChannel(userID),
			teamChannel: teamChannel,
		})
	}

	metrics.RecordDispatchDuration(event.Type, time.Since(start))

	if len(res.PersistedIDs) == 0 && len(res.FailedRecipients) > 0 {
		// Nothing durable exists, so the triggering action must hear about it.
		// The underlying error stays wrapped for retry classification.
		return res, fmt.Errorf("all %d recipient writes failed for correlation id %s: %w",
			len(res.FailedRecipients), event.CorrelationID, lastWriteErr)
	}

	d.requestEmail(event, res.Recipients)

	if len(res.FailedRecipients) > 0 {
		d.logger.Warn("Dispatch completed with partial failures",
			zap.String("correlation_id", event.CorrelationID),
			zap.Int("persisted", len(res.PersistedIDs)),
			zap.Ints("failed_recipients", res.FailedRecipients),
		)
	}
	return res, nil
}

// requestEmail hands the event to the email collaborator over MQ. Failures
// are logged only; email must never affect notification persistence.
func (d *Dispatcher) requestEmail(event model.NotificationEvent, recipients []int) {
	if d.emails == nil {
		return
	}
	payload := mqcontracts.EmailRequestedPayload{
		CorrelationID: event.CorrelationID,
		Type:          event.Type,
		Title:         event.Title,
		Message:       event.Message,
		RecipientIDs:  recipients,
		CreatedAt:     event.CreatedAt,
	}
	if err := d.emails.Publish("email.requested", payload); err != nil {
		d.logger.Error("Failed to publish email.requested",
			zap.String("correlation_id", event.CorrelationID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) runPublishWorker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.publish(job)
		case <-d.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case job := <-d.queue:
					d.publish(job)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(job publishJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, err := json.Marshal(job.envelope)
	if err != nil {
		d.logger.Error("Failed to marshal push envelope",
			zap.Int64("notification_id", job.envelope.NotificationID),
			zap.Error(err),
		)
		metrics.ChannelPublishes.WithLabelValues("failed").Inc()
		return
	}

	d.publishTo(ctx, job.userChannel, body, job.envelope.NotificationID)
	if job.teamChannel != "" {
		d.publishTo(ctx, job.teamChannel, body, job.envelope.NotificationID)
	}
}

func (d *Dispatcher) publishTo(ctx context.Context, channel string, body []byte, notificationID int64) {
	if err := d.broker.Publish(ctx, channel, body); err != nil {
		d.logger.Error("Failed to publish envelope",
			zap.String("channel", channel),
			zap.Int64("notification_id", notificationID),
			zap.Error(err),
		)
		metrics.ChannelPublishes.WithLabelValues("failed").Inc()
		return
	}
	metrics.ChannelPublishes.WithLabelValues("success").Inc()
}

func (d *Dispatcher) enqueue(job publishJob) {
	select {
	case d.queue <- job:
	default:
		// Queue full: drop. The client's reconciliation fetch corrects it.
		d.logger.Warn("Publish queue full, dropping push",
			zap.String("channel", job.userChannel),
			zap.Int64("notification_id", job.envelope.NotificationID),
		)
		metrics.ChannelPublishes.WithLabelValues("dropped").Inc()
	}
}

// Close stops the publish worker after draining queued jobs.
func (d *Dispatcher) Close() {
	close(d.done)
	d.wg.Wait()
}
