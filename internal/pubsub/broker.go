package pubsub

import (
	"context"
	"fmt"
)

// Handler receives the raw payload of one channel message.
type Handler func(payload []byte)

// Broker is the pub/sub backend used for best-effort push delivery. Payloads
// are opaque bytes, per-channel order is preserved, nothing is durable: a
// missed message is corrected by the client's reconciliation fetch.
type Broker interface {
	// Publish sends payload to everyone currently subscribed to channel.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe registers h for channel and returns an unsubscribe func.
	// Unsubscribe must be called on every connection teardown path.
	Subscribe(ctx context.Context, channel string, h Handler) (func(), error)
}

// UserChannel is the routing key for one user's private notifications.
func UserChannel(userID int) string {
	return fmt.Sprintf("user:%d", userID)
}

// TeamChannel is the routing key for team-wide broadcast consumers.
func TeamChannel(teamID int) string {
	return fmt.Sprintf("team:%d", teamID)
}
