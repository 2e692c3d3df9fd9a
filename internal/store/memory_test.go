package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"notification-service/internal/model"
)

func newRow(owner int, correlationID string, createdAt time.Time) *model.Notification {
	return &model.Notification{
		OwnerUserID:   owner,
		Type:          "mention",
		Title:         "t",
		Message:       "m",
		CreatedAt:     createdAt,
		CorrelationID: correlationID,
	}
}

func TestCreateEnforcesCorrelationOwnerUniqueness(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if _, err := m.Create(ctx, newRow(1, "corr-1", now)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Same event, same owner: duplicate.
	if _, err := m.Create(ctx, newRow(1, "corr-1", now)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same event, different owner: its own row.
	if _, err := m.Create(ctx, newRow(2, "corr-1", now)); err != nil {
		t.Fatalf("other owner: %v", err)
	}

	// Different event, same owner: its own row.
	if _, err := m.Create(ctx, newRow(1, "corr-2", now)); err != nil {
		t.Fatalf("other correlation: %v", err)
	}
}

func TestListNewestFirstWithUnreadCount(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()

	oldID, _ := m.Create(ctx, newRow(1, "c1", base.Add(-time.Hour)))
	newID, _ := m.Create(ctx, newRow(1, "c2", base))
	m.Create(ctx, newRow(2, "c3", base))

	if err := m.MarkRead(ctx, 1, oldID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	rows, unread, err := m.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != newID || rows[1].ID != oldID {
		t.Fatalf("expected newest first, got %d then %d", rows[0].ID, rows[1].ID)
	}
	if unread != 1 {
		t.Fatalf("expected unread 1, got %d", unread)
	}
}

func TestMarkReadIsOwnerScopedAndIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, _ := m.Create(ctx, newRow(1, "c1", time.Now()))

	// Wrong owner: silent no-op.
	if err := m.MarkRead(ctx, 2, id); err != nil {
		t.Fatalf("wrong owner: %v", err)
	}
	if _, unread, _ := m.List(ctx, 1); unread != 1 {
		t.Fatal("wrong owner must not flip the row")
	}

	// Unknown id: silent no-op.
	if err := m.MarkRead(ctx, 1, 9999); err != nil {
		t.Fatalf("unknown id: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := m.MarkRead(ctx, 1, id); err != nil {
			t.Fatalf("mark read %d: %v", i+1, err)
		}
	}
	if _, unread, _ := m.List(ctx, 1); unread != 0 {
		t.Fatal("row should be read")
	}
}

func TestMarkAllReadOnlyTouchesOwner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	m.Create(ctx, newRow(1, "c1", now))
	m.Create(ctx, newRow(1, "c2", now))
	m.Create(ctx, newRow(2, "c3", now))

	if err := m.MarkAllRead(ctx, 1); err != nil {
		t.Fatalf("mark all: %v", err)
	}

	if _, unread, _ := m.List(ctx, 1); unread != 0 {
		t.Fatal("owner 1 should have no unread rows")
	}
	if _, unread, _ := m.List(ctx, 2); unread != 1 {
		t.Fatal("owner 2's rows must be untouched")
	}
}
