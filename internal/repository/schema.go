package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
    id             BIGSERIAL PRIMARY KEY,
    owner_user_id  BIGINT      NOT NULL,
    type           TEXT        NOT NULL,
    title          TEXT        NOT NULL DEFAULT '',
    message        TEXT        NOT NULL DEFAULT '',
    payload        JSONB,
    is_read        BOOLEAN     NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    correlation_id TEXT        NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_correlation_owner
    ON notifications (correlation_id, owner_user_id);

CREATE INDEX IF NOT EXISTS idx_notifications_owner_created
    ON notifications (owner_user_id, created_at DESC);
`

// EnsureSchema creates the notifications table and its dedup index.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure notifications schema: %w", err)
	}
	return nil
}
