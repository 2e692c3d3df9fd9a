package mqhandler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "notification-service/contracts/mq"
	"notification-service/internal/pubsub"
	"notification-service/internal/recipient"
	"notification-service/internal/service"
	"notification-service/internal/store"
)

// dlqRecorder captures dead-lettered payloads.
type dlqRecorder struct {
	parked [][]byte
}

func (d *dlqRecorder) PublishToDLQ(_ string, payload []byte, _ string) error {
	d.parked = append(d.parked, payload)
	return nil
}

func newHandler(t *testing.T) (*NotifyRequestedHandler, *store.Memory, *dlqRecorder) {
	t.Helper()

	st := store.NewMemory()
	broker := pubsub.NewMemoryBroker()
	dispatcher := service.NewDispatcher(st, broker, recipient.NewResolver(zap.NewNop()), nil, zap.NewNop())
	t.Cleanup(dispatcher.Close)

	dlq := &dlqRecorder{}
	return NewNotifyRequestedHandler(dispatcher, nil, nil, dlq, zap.NewNop()), st, dlq
}

func rawPayload(t *testing.T, p mqcontracts.NotifyRequestedPayload) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestHandlePersistsPerRecipient(t *testing.T) {
	h, st, _ := newHandler(t)

	raw := rawPayload(t, mqcontracts.NotifyRequestedPayload{
		CorrelationID: uuid.NewString(),
		Type:          "status_changed",
		Title:         "Task moved",
		ActorID:       1,
		Team: mqcontracts.TeamInfo{
			ID:                   10,
			NotificationsEnabled: true,
			NotifyAllMembers:     true,
			MemberIDs:            []int{1, 2, 3},
		},
	})

	if err := h.Handle(context.Background(), raw); err != nil {
		t.Fatalf("handle: %v", err)
	}

	for _, userID := range []int{2, 3} {
		rows, _, _ := st.List(context.Background(), userID)
		if len(rows) != 1 {
			t.Fatalf("user %d: expected 1 row, got %d", userID, len(rows))
		}
	}
	if rows, _, _ := st.List(context.Background(), 1); len(rows) != 0 {
		t.Fatal("actor must not be notified")
	}
}

func TestHandleRedeliveryCreatesNoNewRows(t *testing.T) {
	h, st, _ := newHandler(t)

	raw := rawPayload(t, mqcontracts.NotifyRequestedPayload{
		CorrelationID: uuid.NewString(),
		Type:          "mention",
		Title:         "hi",
		ActorID:       1,
		TargetIDs:     []int{2},
		Team:          mqcontracts.TeamInfo{ID: 10, NotificationsEnabled: true},
	})

	for i := 0; i < 2; i++ {
		if err := h.Handle(context.Background(), raw); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	rows, _, _ := st.List(context.Background(), 2)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after redelivery, got %d", len(rows))
	}
}

func TestHandleDeadLettersMalformedPayload(t *testing.T) {
	h, _, dlq := newHandler(t)

	// Acked, not requeued: redelivery cannot fix a broken payload.
	if err := h.Handle(context.Background(), json.RawMessage(`{"actor_id": "not-a-number"}`)); err != nil {
		t.Fatalf("malformed payload must be acked, got %v", err)
	}
	if len(dlq.parked) != 1 {
		t.Fatalf("expected 1 dead-lettered payload, got %d", len(dlq.parked))
	}
}
