package pubsub

import (
	"context"
	"testing"
)

func TestMemoryBrokerDeliversInOrder(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	var got []string
	unsubscribe, err := b.Subscribe(ctx, UserChannel(1), func(payload []byte) {
		got = append(got, string(payload))
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	for _, msg := range []string{"a", "b", "c"} {
		if err := b.Publish(ctx, UserChannel(1), []byte(msg)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("expected ordered delivery, got %v", got)
	}
}

func TestMemoryBrokerChannelsAreIsolated(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	delivered := 0
	unsubscribe, _ := b.Subscribe(ctx, UserChannel(1), func([]byte) { delivered++ })
	defer unsubscribe()

	if err := b.Publish(ctx, UserChannel(2), []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if delivered != 0 {
		t.Fatal("message leaked across channels")
	}
}

func TestMemoryBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()

	delivered := 0
	unsubscribe, _ := b.Subscribe(ctx, TeamChannel(5), func([]byte) { delivered++ })

	if got := b.SubscriberCount(TeamChannel(5)); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	unsubscribe()
	// Unsubscribing twice must be harmless.
	unsubscribe()

	if got := b.SubscriberCount(TeamChannel(5)); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
	if err := b.Publish(ctx, TeamChannel(5), []byte("x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if delivered != 0 {
		t.Fatal("delivery after unsubscribe")
	}
}

func TestChannelNames(t *testing.T) {
	if UserChannel(42) != "user:42" {
		t.Fatalf("unexpected user channel: %s", UserChannel(42))
	}
	if TeamChannel(7) != "team:7" {
		t.Fatalf("unexpected team channel: %s", TeamChannel(7))
	}
}
