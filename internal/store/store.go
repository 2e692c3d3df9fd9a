package store

import (
	"context"
	"errors"

	"notification-service/internal/model"
)

// ErrDuplicate is returned by Create when a row for the same
// (correlation id, owner) pair already exists. Callers treat it as
// already-persisted, not as a failure.
var ErrDuplicate = errors.New("notification already exists for this correlation id and owner")

// Store is the durable notification collaborator. Writes are at-least-once
// durable; List never assumes visibility beyond writes this process issued.
type Store interface {
	// Create inserts one unread row and returns its id, or ErrDuplicate.
	Create(ctx context.Context, n *model.Notification) (int64, error)
	// MarkRead flips one owned row to read. Idempotent; unknown ids are a no-op.
	MarkRead(ctx context.Context, ownerUserID int, id int64) error
	// MarkAllRead flips every unread row owned by the user.
	MarkAllRead(ctx context.Context, ownerUserID int) error
	// List returns the owner's rows newest-first plus the unread count.
	List(ctx context.Context, ownerUserID int) ([]model.Notification, int, error)
}
